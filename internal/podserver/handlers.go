package podserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := objectKey(r)

	if isContainerKey(key) {
		ok, err := s.containerExists(ctx, key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		members, err := s.children(ctx, key)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		body := renderContainer(s.iri(r, key), s.memberIRIs(r, key, members))
		w.Header().Set("Content-Type", contentTypeTurtle)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Add("Link", `<http://www.w3.org/ns/ldp#BasicContainer>; rel="type"`)
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, body)
		}
		return
	}

	obj, err := s.backend.Read(ctx, key)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = contentTypeBinary
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("ETag", etagOf(obj.Data))
	if !obj.Mtime.IsZero() {
		w.Header().Set("Last-Modified", obj.Mtime.UTC().Format(http.TimeFormat))
	}
	w.Header().Add("Link", `<http://www.w3.org/ns/ldp#Resource>; rel="type"`)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(obj.Data)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := objectKey(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodySize+1))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.maxBodySize {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if isContainerKey(key) {
		s.putContainer(ctx, w, r, key)
		return
	}

	if ok, err := s.backend.Exists(ctx, key+"/"); err != nil {
		s.fail(w, r, err)
		return
	} else if ok {
		http.Error(w, "a container exists at this location", http.StatusConflict)
		return
	}
	if blocked, err := s.ancestorIsResource(ctx, key); err != nil {
		s.fail(w, r, err)
		return
	} else if blocked {
		http.Error(w, "an ancestor of this location is not a container", http.StatusConflict)
		return
	}

	var current string
	existing, err := s.backend.Read(ctx, key)
	switch {
	case err == nil:
		current = etagOf(existing.Data)
	case errors.Is(err, os.ErrNotExist):
	default:
		s.fail(w, r, err)
		return
	}
	if !preconditionsHold(r, existing != nil, current) {
		http.Error(w, "precondition failed", http.StatusPreconditionFailed)
		return
	}

	if err := s.ensureContainers(ctx, parentKey(key)); err != nil {
		s.fail(w, r, err)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeBinary
	}
	if err := s.backend.Write(ctx, key, body, contentType); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("ETag", etagOf(body))
	if existing != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Location", s.iri(r, key))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) putContainer(ctx context.Context, w http.ResponseWriter, r *http.Request, key string) {
	ok, err := s.containerExists(ctx, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if occupied, err := s.backend.Exists(ctx, strings.TrimSuffix(key, "/")); err != nil {
		s.fail(w, r, err)
		return
	} else if occupied {
		http.Error(w, "a resource exists at this location", http.StatusConflict)
		return
	}
	if blocked, err := s.ancestorIsResource(ctx, key); err != nil {
		s.fail(w, r, err)
		return
	} else if blocked {
		http.Error(w, "an ancestor of this location is not a container", http.StatusConflict)
		return
	}

	if err := s.ensureContainers(ctx, key); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", s.iri(r, key))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := objectKey(r)
	if key == "" {
		http.Error(w, "the pod root cannot be deleted", http.StatusMethodNotAllowed)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if isContainerKey(key) {
		members, err := s.children(ctx, key)
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if len(members) > 0 {
			http.Error(w, "container is not empty", http.StatusConflict)
			return
		}
	}

	err := s.backend.Delete(ctx, key)
	if errors.Is(err, os.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) containerExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	return s.backend.Exists(ctx, key)
}

// children returns the direct member keys of a container, with containers
// keeping their trailing slash. It wraps os.ErrNotExist when the container
// is missing.
func (s *Server) children(ctx context.Context, key string) ([]string, error) {
	ok, err := s.containerExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("container %q: %w", key, os.ErrNotExist)
	}

	paths, err := s.backend.List(ctx, key)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	members := make([]string, 0)
	for _, p := range paths {
		rel := strings.TrimPrefix(p, key)
		if rel == "" {
			continue
		}
		if idx := strings.Index(rel, "/"); idx >= 0 {
			rel = rel[:idx+1]
		}
		if !seen[rel] {
			seen[rel] = true
			members = append(members, rel)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (s *Server) memberIRIs(r *http.Request, key string, members []string) []string {
	iris := make([]string, len(members))
	for i, m := range members {
		iris[i] = s.iri(r, key+m)
	}
	return iris
}

// ensureContainers writes container markers for key and all its ancestors.
func (s *Server) ensureContainers(ctx context.Context, key string) error {
	for _, c := range containerChain(key) {
		ok, err := s.backend.Exists(ctx, c)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := s.backend.Write(ctx, c, nil, contentTypeTurtle); err != nil {
			return err
		}
	}
	return nil
}

// ancestorIsResource reports whether a plain resource sits where one of the
// ancestor containers of key would go.
func (s *Server) ancestorIsResource(ctx context.Context, key string) (bool, error) {
	for _, c := range containerChain(parentKey(strings.TrimSuffix(key, "/"))) {
		ok, err := s.backend.Exists(ctx, strings.TrimSuffix(c, "/"))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// containerChain lists the container keys from the outermost down to key,
// e.g. "a/b/" gives ["a/", "a/b/"]. The root is omitted.
func containerChain(key string) []string {
	var chain []string
	trimmed := strings.Trim(key, "/")
	if trimmed == "" {
		return chain
	}
	parts := strings.Split(trimmed, "/")
	for i := range parts {
		chain = append(chain, strings.Join(parts[:i+1], "/")+"/")
	}
	return chain
}

// parentKey returns the container key holding key.
func parentKey(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return ""
	}
	return key[:idx+1]
}

func etagOf(data []byte) string {
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// preconditionsHold evaluates If-Match and If-None-Match against the current
// state of a resource.
func preconditionsHold(r *http.Request, exists bool, current string) bool {
	if v := r.Header.Get("If-Match"); v != "" {
		if !exists {
			return false
		}
		if strings.TrimSpace(v) != "*" && !etagListContains(v, current) {
			return false
		}
	}
	if v := r.Header.Get("If-None-Match"); v != "" && exists {
		if strings.TrimSpace(v) == "*" || etagListContains(v, current) {
			return false
		}
	}
	return true
}

func etagListContains(list, etag string) bool {
	for _, candidate := range strings.Split(list, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

