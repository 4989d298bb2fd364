package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

type RouterConfig struct {
	BasePath      string
	HealthEnabled bool
	PathLive      string
	PathReady     string
	ReadyCheck    func(context.Context) error
	Handler       func(http.ResponseWriter, *http.Request, Target)
	// ErrorHandler receives requests whose path cannot be mapped to a Target.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.HealthEnabled {
		livePath := cfg.PathLive
		if livePath == "" {
			livePath = "/healthz"
		}
		readyPath := cfg.PathReady
		if readyPath == "" {
			readyPath = "/readyz"
		}
		mux.HandleFunc(livePath, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc(readyPath, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if cfg.ReadyCheck != nil {
				if err := cfg.ReadyCheck(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		target, err := ParseTarget(r, cfg.BasePath)
		if err != nil {
			if cfg.ErrorHandler != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if cfg.Handler == nil {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		cfg.Handler(w, r, target)
	})

	return requestIDMiddleware(mux)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := GenerateRequestID()
		ctx := context.WithValue(r.Context(), requestIDContextKey, reqID)
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GenerateRequestID() string {
	var entropy [8]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("req-%d-%s", time.Now().UnixNano(), hex.EncodeToString(entropy[:]))
}

func RequestIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}
