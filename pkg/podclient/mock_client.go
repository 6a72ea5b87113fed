package podclient

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/podfs/podfs-go/internal/tokens"
)

// MockClient is an in-memory pod used by unit tests. Writes create missing
// ancestor containers, as most Solid servers do.
type MockClient struct {
	mu         sync.RWMutex
	containers map[string]bool
	objects    map[string]*MockObject
	version    int
	nextErr    error
	calls      []string
}

// MockObject represents a stored resource.
type MockObject struct {
	Data         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
}

var _ Interface = (*MockClient)(nil)

// NewMockClient creates an empty mock pod holding only the root container.
func NewMockClient() *MockClient {
	return &MockClient{
		containers: map[string]bool{"": true},
		objects:    make(map[string]*MockObject),
	}
}

// FailNext makes the next call return err.
func (m *MockClient) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// Calls returns the operations invoked so far, e.g. "PublishData inbox/log.txt".
func (m *MockClient) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Object returns a copy of the stored resource, if any.
func (m *MockClient) Object(container, file string) (*MockObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[resourceKey(container, file)]
	if !ok {
		return nil, false
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return &cp, true
}

// begin records the call and returns a pending injected error. Callers hold m.mu.
func (m *MockClient) begin(op, target string) error {
	m.calls = append(m.calls, op+" "+target)
	if err := m.nextErr; err != nil {
		m.nextErr = nil
		return err
	}
	return nil
}

// CreateContainer creates the container and its ancestors.
func (m *MockClient) CreateContainer(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := containerKey(name)
	if err := m.begin("CreateContainer", key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.containers[key] {
		return false, nil
	}
	if _, ok := m.objects[key]; ok {
		return false, fmt.Errorf("mock pod: resource occupies %s: %w", key, ErrConflict)
	}
	m.ensureContainers(key)
	return true, nil
}

// ContainerExists reports whether the container was created.
func (m *MockClient) ContainerExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := containerKey(name)
	if err := m.begin("ContainerExists", key); err != nil {
		return false, err
	}
	return m.containers[key], ctx.Err()
}

// ListContainer lists the direct children of a container.
func (m *MockClient) ListContainer(ctx context.Context, name string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := containerKey(name)
	if err := m.begin("ListContainer", key); err != nil {
		return nil, err
	}
	if !m.containers[key] {
		return nil, fmt.Errorf("mock pod: container %s: %w", key, ErrNotFound)
	}

	prefix := key
	if prefix != "" {
		prefix += "/"
	}
	members := make([]Member, 0)
	for c := range m.containers {
		if rel, ok := directChild(prefix, c); ok {
			members = append(members, Member{Name: rel, URL: c + "/", IsContainer: true})
		}
	}
	for path := range m.objects {
		if rel, ok := directChild(prefix, path); ok {
			members = append(members, Member{Name: rel, URL: path})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

// DeleteContainer removes an empty container.
func (m *MockClient) DeleteContainer(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := containerKey(name)
	if err := m.begin("DeleteContainer", key); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("mock pod: refusing to delete the pod root")
	}
	if !m.containers[key] {
		return fmt.Errorf("mock pod: container %s: %w", key, ErrNotFound)
	}
	prefix := key + "/"
	for c := range m.containers {
		if strings.HasPrefix(c, prefix) {
			return fmt.Errorf("mock pod: container %s is not empty: %w", key, ErrConflict)
		}
	}
	for path := range m.objects {
		if strings.HasPrefix(path, prefix) {
			return fmt.Errorf("mock pod: container %s is not empty: %w", key, ErrConflict)
		}
	}
	delete(m.containers, key)
	return nil
}

// PublishData stores the newline-joined tokens.
func (m *MockClient) PublishData(ctx context.Context, container, file string, data []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("PublishData", key); err != nil {
		return err
	}
	return m.store(ctx, key, []byte(tokens.Encode(data)), ContentTypePlain)
}

// ReadData returns the stored tokens.
func (m *MockClient) ReadData(ctx context.Context, container, file string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("ReadData", key); err != nil {
		return nil, err
	}
	obj, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return tokens.Decode(string(obj.Data)), nil
}

// UpdateData appends tokens to the stored ones. The mock holds its lock for
// the whole read-modify-write, so it never conflicts.
func (m *MockClient) UpdateData(ctx context.Context, container, file string, data []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("UpdateData", key); err != nil {
		return err
	}

	var old []string
	if obj, ok := m.objects[key]; ok && len(obj.Data) > 0 {
		old = tokens.Decode(string(obj.Data))
	}
	return m.store(ctx, key, []byte(tokens.Encode(tokens.Concat(old, data))), ContentTypePlain)
}

// ReadResource returns a copy of the stored bytes.
func (m *MockClient) ReadResource(ctx context.Context, container, file string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("ReadResource", key); err != nil {
		return nil, err
	}
	obj, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), obj.Data...), nil
}

// WriteResource stores raw bytes.
func (m *MockClient) WriteResource(ctx context.Context, container, file string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("WriteResource", key); err != nil {
		return err
	}
	if contentType == "" {
		contentType = ContentTypePlain
	}
	return m.store(ctx, key, data, contentType)
}

// StatResource describes a stored resource.
func (m *MockClient) StatResource(ctx context.Context, container, file string) (*ResourceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("StatResource", key); err != nil {
		return nil, err
	}
	obj, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ResourceInfo{
		Size:        int64(len(obj.Data)),
		ContentType: obj.ContentType,
		ETag:        obj.ETag,
	}, nil
}

// DeleteResource removes a stored resource.
func (m *MockClient) DeleteResource(ctx context.Context, container, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := resourceKey(container, file)
	if err := m.begin("DeleteResource", key); err != nil {
		return err
	}
	if _, err := m.lookup(ctx, key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *MockClient) lookup(ctx context.Context, key string) (*MockObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("mock pod: resource %s: %w", key, ErrNotFound)
	}
	return obj, nil
}

func (m *MockClient) store(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.containers[key] {
		return fmt.Errorf("mock pod: container occupies %s: %w", key, ErrConflict)
	}
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		m.ensureContainers(key[:idx])
	}

	m.version++
	m.objects[key] = &MockObject{
		Data:         append([]byte(nil), data...),
		ContentType:  contentType,
		ETag:         `"` + strconv.Itoa(m.version) + `"`,
		LastModified: time.Now(),
	}
	return nil
}

func (m *MockClient) ensureContainers(key string) {
	for key != "" {
		m.containers[key] = true
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			return
		}
		key = key[:idx]
	}
}

func containerKey(name string) string {
	return strings.Trim(name, "/")
}

func resourceKey(container, file string) string {
	c := containerKey(container)
	f := strings.Trim(file, "/")
	if c == "" {
		return f
	}
	return c + "/" + f
}

// directChild reports the first path segment of path below prefix when path
// is exactly one level deeper.
func directChild(prefix, path string) (string, bool) {
	if path == "" || !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(path, prefix)
	if rel == "" || strings.Contains(rel, "/") {
		return "", false
	}
	return rel, true
}
