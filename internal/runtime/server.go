package runtime

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"

	"dfsgate/internal/config"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the HTTP server. Only header reads are bounded by a timeout;
// downloads may legitimately stream for a long time.
func New(cfg config.Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	srv := &Server{httpServer: httpServer, logger: logger}

	if !cfg.TLS.Enabled {
		return srv, nil
	}

	switch cfg.TLS.Mode {
	case "manual":
		pair, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("manual tls load failed: invalid tls certificate or key material")
		}
		if warning, err := CheckKeyFilePermissions(cfg.TLS.KeyFile); err == nil && warning != "" {
			logger.Warn("tls key file permissions", "warning", warning)
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{pair}}
	case "self_signed":
		pair, err := generateSelfSignedPair(cfg.TLS.SelfSigned.CommonName, cfg.TLS.SelfSigned.ValidDays)
		if err != nil {
			return nil, fmt.Errorf("self-signed cert generation failed: %w", err)
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{pair}}
	default:
		return nil, fmt.Errorf("unsupported tls mode: %s", cfg.TLS.Mode)
	}

	return srv, nil
}

func (s *Server) Start() error {
	if s.httpServer.TLSConfig == nil {
		return s.httpServer.ListenAndServe()
	}
	return s.httpServer.ListenAndServeTLS("", "")
}

// Serve is Start on an already bound listener.
func (s *Server) Serve(ln net.Listener) error {
	if s.httpServer.TLSConfig == nil {
		return s.httpServer.Serve(ln)
	}
	return s.httpServer.ServeTLS(ln, "", "")
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func generateSelfSignedPair(commonName string, validDays int) (tls.Certificate, error) {
	certPEM, keyPEM, err := generateSelfSignedPEM(commonName, validDays)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func generateSelfSignedPEM(commonName string, validDays int) ([]byte, []byte, error) {
	if validDays <= 0 {
		validDays = 365
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	notBefore := time.Now().Add(-5 * time.Minute)
	notAfter := notBefore.Add(time.Duration(validDays) * 24 * time.Hour)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		DNSNames:     []string{commonName, "localhost"},
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return nil, nil, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM, nil
}

// Pinger is satisfied by every storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EnsureStorageAvailable pings the backing store once, bounded by timeout,
// so a misconfigured namenode or bucket fails startup instead of the first
// download.
func EnsureStorageAvailable(ctx context.Context, backend Pinger, timeout time.Duration) error {
	if backend == nil {
		return errors.New("storage backend is not configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("storage backend unavailable: %w", err)
	}
	return nil
}
