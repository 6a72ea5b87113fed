// Package podclient is a typed client for Linked Data Platform containers and
// resources hosted on a Solid pod. Every operation returns an explicit error;
// see package pod for the best-effort, log-only variant.
package podclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/podfs/podfs-go/internal/tokens"
)

// Media types used on the wire.
const (
	ContentTypeTurtle = "text/turtle"
	ContentTypePlain  = "text/plain"
)

// Interface is the set of pod operations shared by Client and MockClient.
type Interface interface {
	CreateContainer(ctx context.Context, name string) (bool, error)
	ContainerExists(ctx context.Context, name string) (bool, error)
	ListContainer(ctx context.Context, name string) ([]Member, error)
	DeleteContainer(ctx context.Context, name string) error

	PublishData(ctx context.Context, container, file string, data []any) error
	ReadData(ctx context.Context, container, file string) ([]string, error)
	UpdateData(ctx context.Context, container, file string, data []any) error

	ReadResource(ctx context.Context, container, file string) ([]byte, error)
	WriteResource(ctx context.Context, container, file string, data []byte, contentType string) error
	StatResource(ctx context.Context, container, file string) (*ResourceInfo, error)
	DeleteResource(ctx context.Context, container, file string) error
}

// Member is one entry of a container listing.
type Member struct {
	Name        string
	URL         string
	IsContainer bool
}

// ResourceInfo describes a resource as reported by a HEAD request.
type ResourceInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// Client talks to a single pod. It holds no mutable state and is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
	logger     *zap.Logger
}

var _ Interface = (*Client)(nil)

// NewClient creates a client for the pod at baseURL. The URL is normalized to
// end with "/".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("podclient: base URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("podclient: invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("podclient: unsupported scheme %q in base URL", parsed.Scheme)
	}
	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}

	c := &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(http.Header),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized pod URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ContainerURL returns the URL of the named container, always ending in "/".
// The empty name designates the pod root.
func (c *Client) ContainerURL(name string) string {
	p := escapePath(name)
	if p == "" {
		return c.baseURL
	}
	return c.baseURL + p + "/"
}

// ResourceURL returns the URL of file inside container.
func (c *Client) ResourceURL(container, file string) string {
	return c.ContainerURL(container) + escapePath(file)
}

// CreateContainer makes sure the container exists. A HEAD answered with 200
// short-circuits the call and reports created=false; any other answer,
// including a transport failure, is followed by a PUT with an empty Turtle body.
func (c *Client) CreateContainer(ctx context.Context, name string) (bool, error) {
	target := c.ContainerURL(name)

	resp, err := c.do(ctx, http.MethodHead, target, nil, nil)
	if err == nil {
		drainAndClose(resp.Body)
		if resp.StatusCode == http.StatusOK {
			c.logger.Debug("container exists", zap.String("url", target))
			return false, nil
		}
	} else {
		c.logger.Debug("container probe failed", zap.String("url", target), zap.Error(err))
	}

	resp, err = c.do(ctx, http.MethodPut, target, []byte{}, http.Header{"Content-Type": {ContentTypeTurtle}})
	if err != nil {
		return false, err
	}
	if !isWriteSuccess(resp.StatusCode) {
		return false, newHTTPError(resp.Request, resp)
	}
	drainAndClose(resp.Body)
	return true, nil
}

// ContainerExists reports whether HEAD on the container answers 200.
func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, c.ContainerURL(name), nil, nil)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusOK {
		drainAndClose(resp.Body)
		return true, nil
	}
	herr := newHTTPError(resp.Request, resp)
	if errors.Is(herr, ErrNotFound) {
		return false, nil
	}
	return false, herr
}

// ListContainer returns the direct members of a container, sorted by name.
func (c *Client) ListContainer(ctx context.Context, name string) ([]Member, error) {
	target := c.ContainerURL(name)
	resp, err := c.do(ctx, http.MethodGet, target, nil, http.Header{"Accept": {ContentTypeTurtle}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.Request, resp)
	}
	defer drainAndClose(resp.Body)
	return parseMembers(target, resp.Body)
}

// DeleteContainer removes an empty container.
func (c *Client) DeleteContainer(ctx context.Context, name string) error {
	if escapePath(name) == "" {
		return errors.New("podclient: refusing to delete the pod root")
	}
	return c.delete(ctx, c.ContainerURL(name))
}

// PublishData replaces the resource with the newline-joined tokens of data.
func (c *Client) PublishData(ctx context.Context, container, file string, data []any) error {
	_, err := c.put(ctx, c.ResourceURL(container, file), []byte(tokens.Encode(data)), ContentTypePlain, nil)
	return err
}

// ReadData fetches the resource and splits it into tokens. A missing resource
// yields an error matching ErrNotFound.
func (c *Client) ReadData(ctx context.Context, container, file string) ([]string, error) {
	body, _, err := c.get(ctx, c.ResourceURL(container, file), ContentTypePlain)
	if err != nil {
		return nil, err
	}
	return tokens.Decode(string(body)), nil
}

// UpdateData appends data after the tokens already stored in the resource.
// The write is conditional on the ETag observed by the read (or on the
// resource still being absent), so a concurrent writer makes the call fail
// with an error matching ErrConflict instead of losing an update.
func (c *Client) UpdateData(ctx context.Context, container, file string, data []any) error {
	target := c.ResourceURL(container, file)

	var old []string
	precondition := make(http.Header)
	body, etag, err := c.get(ctx, target, ContentTypePlain)
	switch {
	case err == nil:
		if len(body) > 0 {
			old = tokens.Decode(string(body))
		}
		if etag != "" {
			precondition.Set("If-Match", etag)
		}
	case errors.Is(err, ErrNotFound):
		precondition.Set("If-None-Match", "*")
	default:
		return err
	}

	payload := tokens.Encode(tokens.Concat(old, data))
	_, err = c.put(ctx, target, []byte(payload), ContentTypePlain, precondition)
	return err
}

// ReadResource returns the raw body of a resource.
func (c *Client) ReadResource(ctx context.Context, container, file string) ([]byte, error) {
	body, _, err := c.get(ctx, c.ResourceURL(container, file), "*/*")
	return body, err
}

// WriteResource replaces a resource with data.
func (c *Client) WriteResource(ctx context.Context, container, file string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypePlain
	}
	_, err := c.put(ctx, c.ResourceURL(container, file), data, contentType, nil)
	return err
}

// StatResource issues a HEAD request for a resource.
func (c *Client) StatResource(ctx context.Context, container, file string) (*ResourceInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, c.ResourceURL(container, file), nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newHTTPError(resp.Request, resp)
	}
	drainAndClose(resp.Body)

	info := &ResourceInfo{
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}
	if info.Size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			info.Size = n
		} else {
			info.Size = 0
		}
	}
	return info, nil
}

// DeleteResource removes a resource.
func (c *Client) DeleteResource(ctx context.Context, container, file string) error {
	return c.delete(ctx, c.ResourceURL(container, file))
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, target, nil, http.Header{"Accept": {accept}})
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", newHTTPError(resp.Request, resp)
	}
	defer drainAndClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("podclient: read %s: %w", target, err)
	}
	return body, resp.Header.Get("ETag"), nil
}

func (c *Client) put(ctx context.Context, target string, data []byte, contentType string, extra http.Header) (string, error) {
	header := http.Header{"Content-Type": {contentType}}
	for k, values := range extra {
		for _, v := range values {
			header.Add(k, v)
		}
	}

	resp, err := c.do(ctx, http.MethodPut, target, data, header)
	if err != nil {
		return "", err
	}
	if !isWriteSuccess(resp.StatusCode) {
		return "", newHTTPError(resp.Request, resp)
	}
	drainAndClose(resp.Body)
	return resp.Header.Get("ETag"), nil
}

func (c *Client) delete(ctx context.Context, target string) error {
	resp, err := c.do(ctx, http.MethodDelete, target, nil, nil)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		drainAndClose(resp.Body)
		return nil
	}
	return newHTTPError(resp.Request, resp)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, header http.Header) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("podclient: build %s %s: %w", method, target, err)
	}
	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("podclient: %s %s: %w", method, target, err)
	}
	c.logger.Debug("pod request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func isWriteSuccess(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}

// escapePath trims surrounding slashes and percent-escapes every segment.
func escapePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
