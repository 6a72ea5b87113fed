// Package podserver implements a small Linked Data Platform server used as a
// sandbox pod. It serves containers and plain resources from a storage
// backend and honours ETag preconditions on writes.
package podserver

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/podfs/podfs-go/internal/storage/types"
)

const (
	contentTypeTurtle = "text/turtle"
	contentTypeBinary = "application/octet-stream"

	defaultMaxBodySize = 32 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaseURL fixes the URL prefix used for IRIs in container listings.
// By default it is derived from each request's Host.
func WithBaseURL(base string) Option {
	return func(s *Server) {
		s.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithMaxBodySize limits the size of PUT bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// Server is an http.Handler serving one pod.
type Server struct {
	backend     types.Backend
	logger      *zap.Logger
	baseURL     string
	maxBodySize int64
	router      chi.Router

	// writeMu serializes mutations so precondition checks and writes are atomic.
	writeMu sync.Mutex
}

// New creates a Server storing its data in backend.
func New(backend types.Backend, opts ...Option) *Server {
	s := &Server{
		backend:     backend,
		logger:      zap.NewNop(),
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Head("/*", s.handleRead)
	r.Get("/*", s.handleRead)
	r.Put("/*", s.handlePut)
	r.Delete("/*", s.handleDelete)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("pod server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		result = multierror.Append(result, err)
	}
	s.logger.Info("pod server stopped", zap.String("addr", addr))
	return result.ErrorOrNil()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// objectKey maps a request path to a storage key: no leading slash,
// containers keep their trailing slash, the root is "".
func objectKey(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, "/")
}

func isContainerKey(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}

// iri returns the absolute URL of a storage key.
func (s *Server) iri(r *http.Request, key string) string {
	path := (&url.URL{Path: "/" + key}).EscapedPath()
	if s.baseURL != "" {
		return s.baseURL + path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}
