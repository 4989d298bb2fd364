package download

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dfsgate/internal/apierr"
	"dfsgate/internal/ranges"
	"dfsgate/internal/router"
	"dfsgate/internal/storage"
)

type Service struct {
	Store             storage.Store
	Composer          *Composer
	BasePath          string
	HealthEnabled     bool
	PathLive          string
	PathReady         string
	ReadyCheck        func(context.Context) error
	Now               func() time.Time
	Logger            *slog.Logger
	TrustProxyHeaders bool
}

type requestInfo struct {
	RequestID string
	Target    router.Target
	Range     string
	ErrorCode string
}

func (s *Service) Handler() http.Handler {
	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serve := func(w http.ResponseWriter, r *http.Request, target router.Target, pathErr error) {
		start := nowFn()
		info := requestInfo{
			RequestID: router.RequestIDFromContext(r.Context()),
			Target:    target,
			Range:     r.Header.Get("Range"),
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		err := pathErr
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			sw.Header().Set("Allow", "GET, HEAD")
			err = apierr.MethodNotAllowed
		}
		if err == nil {
			err = s.handleDownload(sw, r, target)
		}

		var streamErr *StreamError
		switch {
		case err == nil:
		case errors.As(err, &streamErr):
			info.ErrorCode = "TransferAborted"
			logger.Warn("transfer aborted",
				"request_id", info.RequestID,
				"path", target.Name,
				"bytes_written", streamErr.Written,
				"error", streamErr.Err,
			)
			s.logRequest(logger, r, sw, nowFn().Sub(start), info)
			panic(http.ErrAbortHandler)
		case errors.Is(err, ranges.ErrMalformedSyntax), errors.Is(err, ranges.ErrUnsatisfiable):
			info.ErrorCode = apierr.RangeNotSatisfiable.Code
			sw.Header().Set("Content-Length", "0")
			sw.WriteHeader(apierr.RangeNotSatisfiable.StatusCode)
		default:
			apiErr := apierr.MapError(err)
			info.ErrorCode = apiErr.Code
			if apiErr.StatusCode >= http.StatusInternalServerError {
				logger.Error("download failed", "request_id", info.RequestID, "path", target.Name, "error", err)
			}
			apierr.Write(sw, info.RequestID, apiErr, r.URL.Path)
		}
		s.logRequest(logger, r, sw, nowFn().Sub(start), info)
	}

	mux := router.NewRouter(router.RouterConfig{
		BasePath:      s.BasePath,
		HealthEnabled: s.HealthEnabled,
		PathLive:      s.PathLive,
		PathReady:     s.PathReady,
		ReadyCheck:    s.ReadyCheck,
		Handler: func(w http.ResponseWriter, r *http.Request, target router.Target) {
			serve(w, r, target, nil)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			serve(w, r, router.Target{}, err)
		},
	})
	return mux
}

// handleDownload resolves the target and serves it. A 416 leaves its
// Content-Range header on w and returns the parser error.
func (s *Service) handleDownload(w http.ResponseWriter, r *http.Request, target router.Target) error {
	ctx := r.Context()
	exists, err := s.Store.Exists(ctx, target.Name)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	isFile, err := s.Store.IsFile(ctx, target.Name)
	if err != nil {
		return err
	}
	if !isFile {
		return storage.ErrNotAFile
	}
	desc, err := s.Store.Stat(ctx, target.Name)
	if err != nil {
		return err
	}

	if notModified(r, desc) {
		w.Header().Set("ETag", quoteETag(desc.Validator))
		w.Header().Set("Last-Modified", desc.LastModified.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	header := r.Header
	if values, ok := header["Range"]; ok && !ifRangeMatches(desc, header.Get("If-Range")) {
		// A malformed Range is rejected even when If-Range would discard it.
		if err := ranges.CheckSyntax(firstValue(values)); err != nil {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(desc.Size, 10))
			return err
		}
		header = header.Clone()
		header.Del("Range")
	}
	intervals, err := ranges.FromHeader(header, desc.Size)
	if err != nil {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(desc.Size, 10))
		return err
	}

	if r.Method == http.MethodHead {
		s.Composer.WriteHeader(w, s.Composer.Plan(desc, intervals))
		return nil
	}
	return s.Composer.Compose(ctx, w, desc, intervals, func(ctx context.Context) (storage.ReadSeekCloser, error) {
		return s.Store.Open(ctx, target.Name)
	})
}

func (s *Service) logRequest(logger *slog.Logger, r *http.Request, sw *statusWriter, latency time.Duration, info requestInfo) {
	logger.Info("request complete",
		"request_id", info.RequestID,
		"remote_addr", r.RemoteAddr,
		"client_ip", sourceIPString(resolveClientIP(r, s.TrustProxyHeaders)),
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", sw.status,
		"latency_ms", latency.Milliseconds(),
		"bytes_written", sw.written,
		"range", info.Range,
		"error_code", info.ErrorCode,
	)
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func notModified(r *http.Request, desc storage.Descriptor) bool {
	if ifNoneMatch := r.Header.Get("If-None-Match"); ifNoneMatch != "" {
		return ifNoneMatch == "*" || headerContainsETag(ifNoneMatch, desc.Validator)
	}
	if ifModifiedSince := r.Header.Get("If-Modified-Since"); ifModifiedSince != "" {
		if t, ok := parseHTTPDate(ifModifiedSince); ok {
			return !desc.LastModified.UTC().Truncate(time.Second).After(t)
		}
	}
	return false
}

func ifRangeMatches(desc storage.Descriptor, ifRange string) bool {
	if ifRange == "" {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(ifRange), "W/") {
		return false
	}
	if headerContainsETag(ifRange, desc.Validator) {
		return true
	}
	if t, ok := parseHTTPDate(ifRange); ok {
		return !desc.LastModified.UTC().Truncate(time.Second).After(t)
	}
	return false
}

func headerContainsETag(headerValue, etag string) bool {
	for _, token := range strings.Split(headerValue, ",") {
		candidate := strings.TrimSpace(token)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, "\"")
		if candidate == etag {
			return true
		}
	}
	return false
}

func parseHTTPDate(value string) (time.Time, bool) {
	parsed, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func resolveClientIP(r *http.Request, trustProxyHeaders bool) net.IP {
	if trustProxyHeaders {
		if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if ip := parseIPCandidate(first); ip != nil {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			if ip := parseIPCandidate(realIP); ip != nil {
				return ip
			}
		}
	}
	return parseIPCandidate(r.RemoteAddr)
}

func parseIPCandidate(raw string) net.IP {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil
	}
	if host, _, err := net.SplitHostPort(candidate); err == nil {
		candidate = host
	}
	candidate = strings.Trim(candidate, "[]")
	return net.ParseIP(candidate)
}

func sourceIPString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
