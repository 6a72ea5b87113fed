package fuse

import (
	"context"
	"errors"
	"mime"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/podfs/podfs-go/pkg/podclient"
)

// Attr represents file attributes
type Attr struct {
	Mode  os.FileMode
	Size  int64
	Mtime time.Time
	Uid   uint32
	Gid   uint32
}

// DirEntry represents a directory entry
type DirEntry struct {
	Name  string
	IsDir bool
}

// buffer holds the content of an open file until it is flushed to the pod.
type buffer struct {
	data    []byte
	mtime   time.Time
	dirty   bool
	version uint64

	// flushMu orders uploads of the same file.
	flushMu sync.Mutex
}

// touch records a modification. Callers hold fs.mu.
func (b *buffer) touch() {
	b.mtime = time.Now()
	b.dirty = true
	b.version++
}

// Filesystem maps filesystem paths onto a pod: directories are containers
// and regular files are resources. Paths are slash separated and rooted at
// "/", which is the pod root.
type Filesystem struct {
	client podclient.Interface
	logger *zap.Logger
	uid    uint32
	gid    uint32

	mu      sync.Mutex
	buffers map[string]*buffer
}

// NewFilesystem creates a filesystem backed by client
func NewFilesystem(client podclient.Interface, logger *zap.Logger) *Filesystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filesystem{
		client:  client,
		logger:  logger,
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
		buffers: make(map[string]*buffer),
	}
}

// normalizePath strips leading and trailing slashes, so the root becomes ""
func normalizePath(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

// splitPath returns the container and file name of a normalized path
func splitPath(p string) (string, string) {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// contentTypeFor derives the media type sent when a file is written
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return podclient.ContentTypePlain
}

// toErrno converts pod errors into errno values understood by the kernel
func toErrno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, podclient.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, podclient.ErrConflict):
		return syscall.EEXIST
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}

func (fs *Filesystem) dirAttr() *Attr {
	return &Attr{
		Mode:  os.ModeDir | 0755,
		Mtime: time.Now(),
		Uid:   fs.uid,
		Gid:   fs.gid,
	}
}

func (fs *Filesystem) fileAttr(size int64, mtime time.Time) *Attr {
	return &Attr{
		Mode:  0644,
		Size:  size,
		Mtime: mtime,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}
}

// GetAttr returns the attributes of a file or directory. Open files report
// their buffered size.
func (fs *Filesystem) GetAttr(ctx context.Context, p string) (*Attr, error) {
	key := normalizePath(p)
	if key == "" {
		return fs.dirAttr(), nil
	}

	fs.mu.Lock()
	buf, ok := fs.buffers[key]
	if ok {
		attr := fs.fileAttr(int64(len(buf.data)), buf.mtime)
		fs.mu.Unlock()
		return attr, nil
	}
	fs.mu.Unlock()

	container, name := splitPath(key)
	info, err := fs.client.StatResource(ctx, container, name)
	if err == nil {
		return fs.fileAttr(info.Size, time.Now()), nil
	}
	if !errors.Is(err, podclient.ErrNotFound) {
		return nil, toErrno(err)
	}

	exists, err := fs.client.ContainerExists(ctx, key)
	if err != nil {
		return nil, toErrno(err)
	}
	if !exists {
		return nil, syscall.ENOENT
	}
	return fs.dirAttr(), nil
}

// ReadDir lists a container, including files created but not yet flushed
func (fs *Filesystem) ReadDir(ctx context.Context, p string) ([]DirEntry, error) {
	key := normalizePath(p)

	members, err := fs.client.ListContainer(ctx, key)
	if err != nil {
		return nil, toErrno(err)
	}

	seen := make(map[string]bool)
	entries := make([]DirEntry, 0, len(members))
	for _, m := range members {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		entries = append(entries, DirEntry{Name: m.Name, IsDir: m.IsContainer})
	}

	fs.mu.Lock()
	for bufferedPath := range fs.buffers {
		container, name := splitPath(bufferedPath)
		if container == key && !seen[name] {
			seen[name] = true
			entries = append(entries, DirEntry{Name: name})
		}
	}
	fs.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFile reads up to size bytes at offset
func (fs *Filesystem) ReadFile(ctx context.Context, p string, offset int64, size int64) ([]byte, error) {
	key := normalizePath(p)

	var data []byte
	fs.mu.Lock()
	buf, ok := fs.buffers[key]
	if ok {
		data = append([]byte(nil), buf.data...)
	}
	fs.mu.Unlock()

	if !ok {
		container, name := splitPath(key)
		var err error
		data, err = fs.client.ReadResource(ctx, container, name)
		if err != nil {
			return nil, toErrno(err)
		}
	}

	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := int64(len(data))
	if size > 0 && offset+size < end {
		end = offset + size
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}

// load returns the buffer of an open file, fetching the current content the
// first time. A missing resource starts out empty. The pod is read without
// fs.mu; on success load returns with fs.mu held.
func (fs *Filesystem) load(ctx context.Context, key string) (*buffer, error) {
	fs.mu.Lock()
	if buf, ok := fs.buffers[key]; ok {
		return buf, nil
	}
	fs.mu.Unlock()

	container, name := splitPath(key)
	data, err := fs.client.ReadResource(ctx, container, name)
	if err != nil && !errors.Is(err, podclient.ErrNotFound) {
		return nil, toErrno(err)
	}

	fs.mu.Lock()
	if buf, ok := fs.buffers[key]; ok {
		// Opened by another caller while we were fetching.
		return buf, nil
	}
	buf := &buffer{data: data, mtime: time.Now()}
	fs.buffers[key] = buf
	return buf, nil
}

// WriteFile writes data at offset into the file's buffer. Nothing reaches
// the pod before Flush.
func (fs *Filesystem) WriteFile(ctx context.Context, p string, data []byte, offset int64) error {
	buf, err := fs.load(ctx, normalizePath(p))
	if err != nil {
		return err
	}
	defer fs.mu.Unlock()

	end := offset + int64(len(data))
	if end > int64(len(buf.data)) {
		grown := make([]byte, end)
		copy(grown, buf.data)
		buf.data = grown
	}
	copy(buf.data[offset:], data)
	buf.touch()
	return nil
}

// Truncate resizes a file, padding with zero bytes when it grows
func (fs *Filesystem) Truncate(ctx context.Context, p string, size int64) error {
	buf, err := fs.load(ctx, normalizePath(p))
	if err != nil {
		return err
	}
	defer fs.mu.Unlock()

	if size <= int64(len(buf.data)) {
		buf.data = buf.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, buf.data)
		buf.data = grown
	}
	buf.touch()
	return nil
}

// Create starts an empty file. It is written to the pod on the first flush.
func (fs *Filesystem) Create(ctx context.Context, p string) error {
	key := normalizePath(p)
	if key == "" {
		return syscall.EISDIR
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	buf := &buffer{data: []byte{}}
	buf.touch()
	fs.buffers[key] = buf
	return nil
}

// Flush writes a modified file to the pod. The content is snapshotted under
// fs.mu and uploaded without it, so other files stay usable during the PUT.
// Writes that land during the upload keep the buffer dirty.
func (fs *Filesystem) Flush(ctx context.Context, p string) error {
	key := normalizePath(p)

	fs.mu.Lock()
	buf, ok := fs.buffers[key]
	fs.mu.Unlock()
	if !ok {
		return nil
	}

	buf.flushMu.Lock()
	defer buf.flushMu.Unlock()

	fs.mu.Lock()
	if !buf.dirty {
		fs.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), buf.data...)
	version := buf.version
	fs.mu.Unlock()

	container, name := splitPath(key)
	if err := fs.client.WriteResource(ctx, container, name, data, contentTypeFor(name)); err != nil {
		fs.logger.Error("failed to write file",
			zap.String("path", key),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return toErrno(err)
	}

	fs.mu.Lock()
	if buf.version == version {
		buf.dirty = false
	}
	fs.mu.Unlock()
	fs.logger.Debug("file written", zap.String("path", key), zap.Int("bytes", len(data)))
	return nil
}

// Release flushes a file and drops its buffer unless it was modified again
func (fs *Filesystem) Release(ctx context.Context, p string) error {
	if err := fs.Flush(ctx, p); err != nil {
		return err
	}

	key := normalizePath(p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if buf, ok := fs.buffers[key]; ok && !buf.dirty {
		delete(fs.buffers, key)
	}
	return nil
}

// Remove deletes a file
func (fs *Filesystem) Remove(ctx context.Context, p string) error {
	key := normalizePath(p)

	fs.mu.Lock()
	_, buffered := fs.buffers[key]
	delete(fs.buffers, key)
	fs.mu.Unlock()

	container, name := splitPath(key)
	err := fs.client.DeleteResource(ctx, container, name)
	if buffered && errors.Is(err, podclient.ErrNotFound) {
		return nil
	}
	return toErrno(err)
}

// Mkdir creates a container
func (fs *Filesystem) Mkdir(ctx context.Context, p string) error {
	key := normalizePath(p)
	if key == "" {
		return syscall.EEXIST
	}

	created, err := fs.client.CreateContainer(ctx, key)
	if err != nil {
		return toErrno(err)
	}
	if !created {
		return syscall.EEXIST
	}
	return nil
}

// Rmdir deletes an empty container
func (fs *Filesystem) Rmdir(ctx context.Context, p string) error {
	key := normalizePath(p)
	if key == "" {
		return syscall.EBUSY
	}

	err := fs.client.DeleteContainer(ctx, key)
	if errors.Is(err, podclient.ErrConflict) {
		return syscall.ENOTEMPTY
	}
	return toErrno(err)
}
