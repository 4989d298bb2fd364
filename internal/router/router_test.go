package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTargetStripsBasePath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		base string
		url  string
		want string
	}{
		{"/download", "http://gate.local/download/work/20151104.log", "work/20151104.log"},
		{"download/", "http://gate.local/download/a.bin", "a.bin"},
		{"/", "http://gate.local/a/b/c.txt", "a/b/c.txt"},
		{"", "http://gate.local/c.txt", "c.txt"},
		{"/hadoop-web-proxy/p1", "http://gate.local/hadoop-web-proxy/p1/work/x.log", "work/x.log"},
		{"/download", "http://gate.local/download/with%20space.txt", "with space.txt"},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.url, nil)
		target, err := ParseTarget(r, tc.base)
		require.NoError(t, err, tc.url)
		require.Equal(t, tc.want, target.Name, tc.url)
	}
}

func TestParseTargetRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url  string
		want error
	}{
		{"http://gate.local/other/a.txt", ErrOutsideBasePath},
		{"http://gate.local/downloads/a.txt", ErrOutsideBasePath},
		{"http://gate.local/download", ErrOutsideBasePath},
		{"http://gate.local/download/", ErrInvalidPath},
		{"http://gate.local/download/dir/", ErrInvalidPath},
		{"http://gate.local/download/a//b", ErrInvalidPath},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.url, nil)
		_, err := ParseTarget(r, "/download")
		require.ErrorIs(t, err, tc.want, tc.url)
	}

	r := httptest.NewRequest(http.MethodGet, "http://gate.local/download/x", nil)
	r.URL.Path = "/download/a/../b"
	_, err := ParseTarget(r, "/download")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestRouterHealthAndRequestID(t *testing.T) {
	t.Parallel()
	var seenID string
	ready := errors.New("backend offline")
	h := NewRouter(RouterConfig{
		BasePath:      "/download",
		HealthEnabled: true,
		ReadyCheck:    func(context.Context) error { return ready },
		Handler: func(w http.ResponseWriter, r *http.Request, target Target) {
			seenID = RequestIDFromContext(r.Context())
			_, _ = w.Write([]byte(target.Name))
		},
	})

	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ok", res.Body.String())

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	require.Equal(t, http.StatusMethodNotAllowed, res.Code)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/download/a/b.txt", nil))
	require.Equal(t, "a/b.txt", res.Body.String())
	require.Regexp(t, regexp.MustCompile(`^req-\d+-[0-9a-f]{16}$`), res.Header().Get("X-Request-Id"))
	require.Equal(t, res.Header().Get("X-Request-Id"), seenID)
}

func TestRouterErrorHandler(t *testing.T) {
	t.Parallel()
	var got error
	h := NewRouter(RouterConfig{
		BasePath: "/download",
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	})
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/elsewhere/x", nil))
	require.Equal(t, http.StatusTeapot, res.Code)
	require.ErrorIs(t, got, ErrOutsideBasePath)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTeapot, res.Code, "health endpoints are off unless enabled")
}
