package podclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNotFound indicates the container or resource does not exist.
	ErrNotFound = errors.New("podclient: not found")

	// ErrConflict indicates the pod rejected a write because the resource
	// changed since it was read, or the target is occupied.
	ErrConflict = errors.New("podclient: conflict")
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// HTTPError represents an unexpected status returned by the pod.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("podclient: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Is maps status codes onto the package sentinels so callers can use errors.Is.
func (e *HTTPError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	case ErrConflict:
		return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusPreconditionFailed
	}
	return false
}

func newHTTPError(req *http.Request, resp *http.Response) error {
	defer drainAndClose(resp.Body)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
