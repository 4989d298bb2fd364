package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/colinmarc/hdfs/v2"
	"github.com/colinmarc/hdfs/v2/hadoopconf"
	"github.com/samber/lo"
)

// HDFSOptions configures the namenode connection.
type HDFSOptions struct {
	Namenodes []string
	User      string
	// UseHadoopConf loads namenode addresses from HADOOP_CONF_DIR/HADOOP_HOME
	// when Namenodes is empty.
	UseHadoopConf bool
}

type hdfsClient interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (ReadSeekCloser, error)
	Close() error
}

type hdfsClientAdapter struct {
	client *hdfs.Client
}

func (a hdfsClientAdapter) Stat(name string) (os.FileInfo, error) {
	return a.client.Stat(name)
}

func (a hdfsClientAdapter) Open(name string) (ReadSeekCloser, error) {
	return a.client.Open(name)
}

func (a hdfsClientAdapter) Close() error {
	return a.client.Close()
}

// HDFSBackend reads files from an HDFS cluster. *hdfs.FileReader already
// supports Seek, so handles are returned as-is.
type HDFSBackend struct {
	client hdfsClient
	root   string
}

func NewHDFSBackend(opts HDFSOptions, root string) (*HDFSBackend, error) {
	clientOpts, err := hdfsClientOptions(opts)
	if err != nil {
		return nil, err
	}
	client, err := hdfs.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to hdfs namenode: %w", err)
	}
	return &HDFSBackend{client: hdfsClientAdapter{client: client}, root: root}, nil
}

func newHDFSBackendWithClient(client hdfsClient, root string) *HDFSBackend {
	return &HDFSBackend{client: client, root: root}
}

func hdfsClientOptions(opts HDFSOptions) (hdfs.ClientOptions, error) {
	namenodes := lo.Uniq(lo.Compact(lo.Map(opts.Namenodes, func(addr string, _ int) string {
		return strings.TrimSpace(addr)
	})))
	if len(namenodes) == 0 && opts.UseHadoopConf {
		conf, err := hadoopconf.LoadFromEnvironment()
		if err != nil {
			return hdfs.ClientOptions{}, fmt.Errorf("load hadoop configuration: %w", err)
		}
		clientOpts := hdfs.ClientOptionsFromConf(conf)
		if opts.User != "" {
			clientOpts.User = opts.User
		}
		if len(clientOpts.Addresses) == 0 {
			return hdfs.ClientOptions{}, errors.New("hadoop configuration does not name any namenode")
		}
		return clientOpts, nil
	}
	if len(namenodes) == 0 {
		return hdfs.ClientOptions{}, errors.New("at least one hdfs namenode address is required")
	}
	return hdfs.ClientOptions{Addresses: namenodes, User: opts.User}, nil
}

func (b *HDFSBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, _, err := b.stat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *HDFSBackend) IsFile(ctx context.Context, name string) (bool, error) {
	info, _, err := b.stat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (b *HDFSBackend) Stat(ctx context.Context, name string) (Descriptor, error) {
	info, resolved, err := b.stat(ctx, name)
	if err != nil {
		return Descriptor{}, err
	}
	if !info.Mode().IsRegular() {
		return Descriptor{}, ErrNotAFile
	}
	return NewDescriptor(resolved, info.Size(), info.ModTime()), nil
}

func (b *HDFSBackend) Open(ctx context.Context, name string) (ReadSeekCloser, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	resolved, err := Resolve(b.root, name)
	if err != nil {
		return nil, err
	}
	reader, err := b.client.Open(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open hdfs file: %w", err)
	}
	return reader, nil
}

func (b *HDFSBackend) Ping(ctx context.Context) error {
	if err := ensureContext(ctx); err != nil {
		return err
	}
	root := b.root
	if root == "" {
		root = "/"
	}
	if _, err := b.client.Stat(root); err != nil {
		return fmt.Errorf("stat hdfs root %q: %w", root, err)
	}
	return nil
}

func (b *HDFSBackend) Close() error {
	return b.client.Close()
}

// stat returns the file info of name together with its resolved HDFS path.
func (b *HDFSBackend) stat(ctx context.Context, name string) (os.FileInfo, string, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, "", err
	}
	resolved, err := Resolve(b.root, name)
	if err != nil {
		return nil, "", err
	}
	info, err := b.client.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat hdfs file: %w", err)
	}
	return info, resolved, nil
}
