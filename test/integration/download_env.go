package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"dfsgate/internal/download"
	"dfsgate/internal/storage"
	"dfsgate/internal/transfer"
)

// DownloadEnv serves a temporary directory through the download service on a
// real loopback listener.
type DownloadEnv struct {
	t       *testing.T
	dataDir string
	server  *httptest.Server
}

type EnvOptions struct {
	BasePath          string
	Root              string
	BufferSize        int
	MaxBytesPerSecond int
	Logger            *slog.Logger
}

func NewDownloadEnv(t *testing.T, opts EnvOptions) *DownloadEnv {
	t.Helper()
	dataDir := t.TempDir()
	backend, err := storage.NewLocalBackend(dataDir, opts.Root)
	if err != nil {
		t.Fatalf("NewLocalBackend error: %v", err)
	}
	return NewDownloadEnvWithStore(t, backend, dataDir, opts)
}

// NewDownloadEnvWithStore serves an arbitrary store. dataDir may be empty
// when the store is not directory backed.
func NewDownloadEnvWithStore(t *testing.T, store storage.Store, dataDir string, opts EnvOptions) *DownloadEnv {
	t.Helper()
	if opts.BasePath == "" {
		opts.BasePath = "/download"
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = transfer.DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine, err := transfer.New(transfer.Options{BufferSize: opts.BufferSize, MaxBytesPerSecond: opts.MaxBytesPerSecond})
	if err != nil {
		t.Fatalf("transfer.New error: %v", err)
	}
	svc := &download.Service{
		Store:         store,
		Composer:      download.NewComposer(engine),
		BasePath:      opts.BasePath,
		HealthEnabled: true,
		Logger:        opts.Logger,
	}
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return &DownloadEnv{t: t, dataDir: dataDir, server: srv}
}

func (e *DownloadEnv) BaseURL() string { return e.server.URL }

func (e *DownloadEnv) Client() *http.Client { return e.server.Client() }

// Put writes a file below the data directory, creating parents.
func (e *DownloadEnv) Put(name string, data []byte) {
	e.t.Helper()
	full := filepath.Join(e.dataDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		e.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		e.t.Fatalf("write fixture: %v", err)
	}
}

// Get issues a request against the server; headers alternate name, value.
func (e *DownloadEnv) Get(method, path string, headers ...string) (*http.Response, []byte) {
	e.t.Helper()
	req, err := http.NewRequestWithContext(e.t.Context(), method, e.server.URL+path, nil)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatalf("read body: %v", err)
	}
	return resp, body
}

// Payload returns n deterministic bytes.
func Payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/251)
	}
	return out
}
