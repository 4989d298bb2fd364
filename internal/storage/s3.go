package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client used by S3Backend.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	AccessKey    string
	SecretKey    string
}

// S3Backend serves objects of one bucket. Keys ending in "/" and common
// prefixes are treated as directories.
type S3Backend struct {
	api    S3API
	bucket string
	root   string
}

func NewS3Backend(ctx context.Context, opts S3Options, root string) (*S3Backend, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(opts.Endpoint))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3BackendWithClient(client, opts.Bucket, root), nil
}

func NewS3BackendWithClient(api S3API, bucket, root string) *S3Backend {
	return &S3Backend{api: api, bucket: bucket, root: root}
}

func (b *S3Backend) Exists(ctx context.Context, name string) (bool, error) {
	key, err := b.key(name)
	if err != nil {
		return false, err
	}
	if _, err := b.head(ctx, key); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	out, err := b.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(strings.TrimSuffix(key, "/") + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list s3 prefix: %w", err)
	}
	return aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0, nil
}

func (b *S3Backend) IsFile(ctx context.Context, name string) (bool, error) {
	key, err := b.key(name)
	if err != nil {
		return false, err
	}
	if strings.HasSuffix(key, "/") {
		return false, nil
	}
	_, err = b.head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *S3Backend) Stat(ctx context.Context, name string) (Descriptor, error) {
	key, err := b.key(name)
	if err != nil {
		return Descriptor{}, err
	}
	if strings.HasSuffix(key, "/") {
		return Descriptor{}, ErrNotAFile
	}
	out, err := b.head(ctx, key)
	if err != nil {
		return Descriptor{}, err
	}
	return NewDescriptor("/"+key, aws.ToInt64(out.ContentLength), aws.ToTime(out.LastModified)), nil
}

// Open returns a reader that issues ranged GetObject calls lazily; ctx
// bounds every call made through the returned handle.
func (b *S3Backend) Open(ctx context.Context, name string) (ReadSeekCloser, error) {
	key, err := b.key(name)
	if err != nil {
		return nil, err
	}
	out, err := b.head(ctx, key)
	if err != nil {
		return nil, err
	}
	return &s3ObjectReader{
		ctx:    ctx,
		api:    b.api,
		bucket: b.bucket,
		key:    key,
		size:   aws.ToInt64(out.ContentLength),
	}, nil
}

func (b *S3Backend) Ping(ctx context.Context) error {
	if _, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err != nil {
		return fmt.Errorf("head s3 bucket %q: %w", b.bucket, err)
	}
	return nil
}

func (b *S3Backend) Close() error {
	return nil
}

func (b *S3Backend) key(name string) (string, error) {
	resolved, err := Resolve(b.root, name)
	if err != nil {
		return "", err
	}
	key := strings.TrimPrefix(resolved, "/")
	if strings.HasSuffix(name, "/") {
		key += "/"
	}
	return key, nil
}

func (b *S3Backend) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	if err := ensureContext(ctx); err != nil {
		return nil, err
	}
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("head s3 object: %w", err)
	}
	return out, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// s3ObjectReader makes an object seekable by reopening the body with a
// "bytes=<offset>-" range whenever the position moves.
type s3ObjectReader struct {
	ctx    context.Context
	api    S3API
	bucket string
	key    string
	size   int64
	offset int64
	body   io.ReadCloser
}

func (r *s3ObjectReader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}
	if r.body == nil {
		out, err := r.api.GetObject(r.ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(r.key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", r.offset)),
		})
		if err != nil {
			if isS3NotFound(err) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("get s3 object range: %w", err)
		}
		r.body = out.Body
	}
	n, err := r.body.Read(p)
	r.offset += int64(n)
	return n, err
}

func (r *s3ObjectReader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.size + offset
	default:
		return r.offset, fmt.Errorf("seek s3 object: invalid whence %d", whence)
	}
	if next < 0 {
		return r.offset, fmt.Errorf("seek s3 object: negative position %d", next)
	}
	if next != r.offset {
		r.dropBody()
		r.offset = next
	}
	return r.offset, nil
}

func (r *s3ObjectReader) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

func (r *s3ObjectReader) dropBody() {
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
}
