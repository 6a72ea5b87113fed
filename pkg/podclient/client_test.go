package podclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podfs/podfs-go/internal/podserver/podtest"
)

// recorder wraps a handler and remembers the requests it saw.
type recorder struct {
	next http.Handler

	mu       sync.Mutex
	requests []string
	headers  []http.Header
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
	r.headers = append(r.headers, req.Header.Clone())
	r.mu.Unlock()
	r.next.ServeHTTP(w, req)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
	r.headers = nil
}

func (r *recorder) lastHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[len(r.headers)-1]
}

func newTestPod(t *testing.T) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	sandbox := podtest.NewServer(t, func(next http.Handler) http.Handler {
		rec.next = next
		return rec
	})

	c, err := NewClient(sandbox.URL)
	require.NoError(t, err)
	return c, rec
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("https://pod.example/alice")
	require.NoError(t, err)
	assert.Equal(t, "https://pod.example/alice/", c.BaseURL())
	assert.Equal(t, "https://pod.example/alice/", c.ContainerURL(""))
	assert.Equal(t, "https://pod.example/alice/inbox/", c.ContainerURL("/inbox/"))
	assert.Equal(t, "https://pod.example/alice/a/b/", c.ContainerURL("a/b"))
	assert.Equal(t, "https://pod.example/alice/inbox/my%20log.txt", c.ResourceURL("inbox", "my log.txt"))

	_, err = NewClient("")
	assert.Error(t, err)
	_, err = NewClient("ftp://pod.example")
	assert.Error(t, err)
}

func TestCreateContainerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, rec := newTestPod(t)

	created, err := c.CreateContainer(ctx, "archive")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"HEAD /archive/", "PUT /archive/"}, rec.seen())
	assert.Equal(t, "text/turtle", rec.lastHeader().Get("Content-Type"))

	rec.reset()
	created, err = c.CreateContainer(ctx, "archive")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"HEAD /archive/"}, rec.seen())

	ok, err := c.ContainerExists(ctx, "archive")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ContainerExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateContainerFallsBackToPut(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL)
	require.NoError(t, err)

	_, err = c.CreateContainer(context.Background(), "inbox")
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusInternalServerError, herr.StatusCode)
	assert.Equal(t, http.MethodPut, herr.Method)
	assert.Equal(t, []string{http.MethodHead, http.MethodPut}, methods)
}

func TestPublishAndRead(t *testing.T) {
	ctx := context.Background()
	c, rec := newTestPod(t)

	require.NoError(t, c.PublishData(ctx, "inbox", "log.txt", []any{"one", 2, true}))
	assert.Equal(t, "text/plain", rec.lastHeader().Get("Content-Type"))

	raw, err := c.ReadResource(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, "one\n2\ntrue\n", string(raw))

	got, err := c.ReadData(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "2", "true"}, got)
	assert.Equal(t, "text/plain", rec.lastHeader().Get("Accept"))

	info, err := c.StatResource(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.NotEmpty(t, info.ETag)
}

func TestReadMissing(t *testing.T) {
	c, _ := newTestPod(t)

	_, err := c.ReadData(context.Background(), "inbox", "nope.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	_, err = c.StatResource(context.Background(), "inbox", "nope.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateAppends(t *testing.T) {
	ctx := context.Background()
	c, rec := newTestPod(t)

	require.NoError(t, c.PublishData(ctx, "inbox", "log.txt", []any{"a", "b"}))
	require.NoError(t, c.UpdateData(ctx, "inbox", "log.txt", []any{"c", 4}))
	assert.NotEmpty(t, rec.lastHeader().Get("If-Match"))

	got, err := c.ReadData(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "4"}, got)
}

func TestUpdateCreatesMissingResource(t *testing.T) {
	ctx := context.Background()
	c, rec := newTestPod(t)

	require.NoError(t, c.UpdateData(ctx, "inbox", "new.txt", []any{"first"}))
	assert.Equal(t, "*", rec.lastHeader().Get("If-None-Match"))

	got, err := c.ReadData(ctx, "inbox", "new.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)
}

func TestUpdateConflict(t *testing.T) {
	ctx := context.Background()

	// Another writer slips in between the read and the conditional write.
	var once sync.Once
	interleave := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Method == http.MethodGet {
				once.Do(func() {
					req := httptest.NewRequest(http.MethodPut, r.URL.Path, strings.NewReader("other\n"))
					next.ServeHTTP(httptest.NewRecorder(), req)
				})
			}
		})
	}
	sandbox := podtest.NewServer(t, interleave)

	c, err := NewClient(sandbox.URL)
	require.NoError(t, err)
	require.NoError(t, c.PublishData(ctx, "inbox", "log.txt", []any{"mine"}))

	err = c.UpdateData(ctx, "inbox", "log.txt", []any{"more"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	raw, err := c.ReadResource(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, "other\n", string(raw))
}

func TestListContainer(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestPod(t)

	require.NoError(t, c.PublishData(ctx, "docs", "b.txt", []any{"x"}))
	require.NoError(t, c.PublishData(ctx, "docs", "a b.txt", []any{"x"}))
	require.NoError(t, c.PublishData(ctx, "docs/img", "logo.txt", []any{"x"}))

	members, err := c.ListContainer(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, Member{Name: "a b.txt", URL: c.ResourceURL("docs", "a b.txt")}, members[0])
	assert.Equal(t, "b.txt", members[1].Name)
	assert.Equal(t, Member{Name: "img", URL: c.ContainerURL("docs/img"), IsContainer: true}, members[2])

	root, err := c.ListContainer(ctx, "")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "docs", root[0].Name)

	_, err = c.ListContainer(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestPod(t)

	require.NoError(t, c.PublishData(ctx, "tmp", "x.txt", []any{"x"}))
	assert.True(t, errors.Is(c.DeleteContainer(ctx, "tmp"), ErrConflict))

	require.NoError(t, c.DeleteResource(ctx, "tmp", "x.txt"))
	assert.True(t, errors.Is(c.DeleteResource(ctx, "tmp", "x.txt"), ErrNotFound))
	require.NoError(t, c.DeleteContainer(ctx, "tmp"))
	assert.Error(t, c.DeleteContainer(ctx, ""))
}

func TestWithHeader(t *testing.T) {
	ctx := context.Background()
	c, rec := newTestPod(t)
	c, err := NewClient(c.BaseURL(), WithHeader("X-Agent", "test"))
	require.NoError(t, err)
	_, err = c.ContainerExists(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "test", rec.lastHeader().Get("X-Agent"))
}
