// Package podtest starts sandbox pods for tests.
package podtest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/podfs/podfs-go/internal/podserver"
	"github.com/podfs/podfs-go/internal/storage/memory"
	"github.com/podfs/podfs-go/internal/storage/types"
)

// Pod is a running sandbox pod.
type Pod struct {
	URL     string
	Backend types.Backend
	Server  *httptest.Server
}

// NewServer starts a pod backed by memory and stops it when the test ends.
// Middleware, when given, wraps the pod handler.
func NewServer(t testing.TB, middleware ...func(http.Handler) http.Handler) *Pod {
	t.Helper()
	return NewServerWithBackend(t, memory.New(), middleware...)
}

// NewServerWithBackend starts a pod on an existing backend.
func NewServerWithBackend(t testing.TB, backend types.Backend, middleware ...func(http.Handler) http.Handler) *Pod {
	t.Helper()

	var h http.Handler = podserver.New(backend)
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return &Pod{URL: ts.URL, Backend: backend, Server: ts}
}
