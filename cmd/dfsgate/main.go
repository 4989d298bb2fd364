package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dfsgate/internal/config"
	"dfsgate/internal/download"
	"dfsgate/internal/logging"
	"dfsgate/internal/runtime"
	"dfsgate/internal/storage"
	"dfsgate/internal/transfer"
)

const startupPingTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to service config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before DFSGATE_* overrides")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Server.LogFormat, cfg.Server.LogLevel, os.Stdout)

	backend, err := openBackend(context.Background(), cfg, os.Getenv)
	if err != nil {
		logger.Error("startup failed: storage backend", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("storage backend close failed", "error", closeErr)
		}
	}()

	if err := runtime.EnsureStorageAvailable(context.Background(), backend, startupPingTimeout); err != nil {
		logger.Error("startup failed: storage readiness", "backend", cfg.Storage.Backend, "error", err)
		_ = backend.Close()
		os.Exit(1)
	}

	handler, err := newHandler(cfg, backend, logger)
	if err != nil {
		logger.Error("startup failed: download service", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}

	srv, err := runtime.New(cfg, handler, logger)
	if err != nil {
		logger.Error("startup failed: server init", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Error("graceful shutdown failed", "error", shutdownErr)
		}
	}()

	logger.Info("server starting",
		"addr", cfg.Server.ListenAddress,
		"base_path", cfg.Server.BasePath,
		"backend", cfg.Storage.Backend,
		"root", cfg.Storage.Root,
		"buffer_size", cfg.Download.BufferSize,
		"tls_enabled", cfg.TLS.Enabled,
		"tls_mode", cfg.TLS.Mode,
	)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited with error", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// loadEnvFile seeds the process environment from a dotenv file. Variables
// already set win, and a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, getenv func(string) string) (storage.Backend, error) {
	sc := cfg.Storage
	var (
		backend storage.Backend
		err     error
	)
	switch sc.Backend {
	case config.BackendLocal:
		var local *storage.LocalBackend
		local, err = storage.NewLocalBackend(sc.Local.DataDir, sc.Root)
		backend = local
	case config.BackendHDFS:
		var hdfsBackend *storage.HDFSBackend
		hdfsBackend, err = storage.NewHDFSBackend(storage.HDFSOptions{
			Namenodes:     sc.HDFS.Namenodes,
			User:          sc.HDFS.User,
			UseHadoopConf: sc.HDFS.UseHadoopConf,
		}, sc.Root)
		backend = hdfsBackend
	case config.BackendS3:
		opts := storage.S3Options{
			Bucket:       sc.S3.Bucket,
			Region:       sc.S3.Region,
			Endpoint:     sc.S3.Endpoint,
			UsePathStyle: sc.S3.UsePathStyle,
		}
		if sc.S3.AccessKeyEnv != "" {
			opts.AccessKey = getenv(sc.S3.AccessKeyEnv)
			opts.SecretKey = getenv(sc.S3.SecretKeyEnv)
		}
		var s3Backend *storage.S3Backend
		s3Backend, err = storage.NewS3Backend(ctx, opts, sc.Root)
		backend = s3Backend
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func newHandler(cfg config.Config, backend storage.Backend, logger *slog.Logger) (http.Handler, error) {
	engine, err := transfer.New(transfer.Options{
		BufferSize:        cfg.Download.BufferSize,
		MaxBytesPerSecond: cfg.Download.MaxBytesPerSecond,
	})
	if err != nil {
		return nil, err
	}

	svc := &download.Service{
		Store:             backend,
		Composer:          download.NewComposer(engine),
		BasePath:          cfg.Server.BasePath,
		HealthEnabled:     cfg.Health.Enabled,
		PathLive:          cfg.Health.PathLive,
		PathReady:         cfg.Health.PathReady,
		ReadyCheck:        backend.Ping,
		Now:               time.Now,
		Logger:            logger,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	}
	return withServerHeader(svc.Handler()), nil
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "dfsgate")
		next.ServeHTTP(w, r)
	})
}
