package fuse

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"go.uber.org/zap"

	"github.com/podfs/podfs-go/pkg/podclient"
)

// FuseFS implements the fs.FS interface
type FuseFS struct {
	filesystem *Filesystem
}

var _ fs.FS = (*FuseFS)(nil)

// NewFuseFS wraps a Filesystem for serving with bazil.org/fuse
func NewFuseFS(filesystem *Filesystem) *FuseFS {
	return &FuseFS{filesystem: filesystem}
}

// Root returns the root directory
func (f *FuseFS) Root() (fs.Node, error) {
	return &Dir{filesystem: f.filesystem, path: "/"}, nil
}

// Dir represents a directory node
type Dir struct {
	filesystem *Filesystem
	path       string
}

var _ fs.Node = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)
var _ fs.NodeCreater = (*Dir)(nil)
var _ fs.NodeRemover = (*Dir)(nil)

func (d *Dir) child(name string) string {
	if d.path == "/" {
		return "/" + name
	}
	return d.path + "/" + name
}

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := d.filesystem.GetAttr(ctx, d.path)
	if err != nil {
		return err
	}
	fillAttr(a, attr)
	return nil
}

// Lookup looks up a child node
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	childPath := d.child(name)
	attr, err := d.filesystem.GetAttr(ctx, childPath)
	if err != nil {
		return nil, err
	}
	if attr.Mode.IsDir() {
		return &Dir{filesystem: d.filesystem, path: childPath}, nil
	}
	return &File{filesystem: d.filesystem, path: childPath}, nil
}

// ReadDirAll reads all directory entries
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.filesystem.ReadDir(ctx, d.path)
	if err != nil {
		return nil, err
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, entry := range entries {
		dirent := fuse.Dirent{Name: entry.Name, Type: fuse.DT_File}
		if entry.IsDir {
			dirent.Type = fuse.DT_Dir
		}
		dirents = append(dirents, dirent)
	}
	return dirents, nil
}

// Mkdir creates a container
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	childPath := d.child(req.Name)
	if err := d.filesystem.Mkdir(ctx, childPath); err != nil {
		return nil, err
	}
	return &Dir{filesystem: d.filesystem, path: childPath}, nil
}

// Create creates a new file in the directory
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	childPath := d.child(req.Name)
	if err := d.filesystem.Create(ctx, childPath); err != nil {
		return nil, nil, err
	}
	file := &File{filesystem: d.filesystem, path: childPath}
	return file, file, nil
}

// Remove removes a file or empty directory
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	childPath := d.child(req.Name)
	if req.Dir {
		return d.filesystem.Rmdir(ctx, childPath)
	}
	return d.filesystem.Remove(ctx, childPath)
}

// File represents a file node. It doubles as its own handle.
type File struct {
	filesystem *Filesystem
	path       string
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.NodeSetattrer = (*File)(nil)
var _ fs.NodeFsyncer = (*File)(nil)
var _ fs.HandleReader = (*File)(nil)
var _ fs.HandleWriter = (*File)(nil)
var _ fs.HandleFlusher = (*File)(nil)
var _ fs.HandleReleaser = (*File)(nil)

// Attr returns file attributes
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := f.filesystem.GetAttr(ctx, f.path)
	if err != nil {
		return err
	}
	fillAttr(a, attr)
	return nil
}

// Open opens a file
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if req.Flags&fuse.OpenTruncate != 0 {
		if err := f.filesystem.Truncate(ctx, f.path, 0); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Read reads file data
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := f.filesystem.ReadFile(ctx, f.path, req.Offset, int64(req.Size))
	if err != nil {
		return err
	}
	resp.Data = data
	return nil
}

// Write writes file data
func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if err := f.filesystem.WriteFile(ctx, f.path, req.Data, req.Offset); err != nil {
		return err
	}
	resp.Size = len(req.Data)
	return nil
}

// Setattr handles truncation; other attributes are fixed
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := f.filesystem.Truncate(ctx, f.path, int64(req.Size)); err != nil {
			return err
		}
	}
	attr, err := f.filesystem.GetAttr(ctx, f.path)
	if err != nil {
		return err
	}
	fillAttr(&resp.Attr, attr)
	return nil
}

// Flush flushes file buffers
func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return f.filesystem.Flush(ctx, f.path)
}

// Fsync syncs file data to the pod
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return f.filesystem.Flush(ctx, f.path)
}

// Release releases a file handle
func (f *File) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return f.filesystem.Release(ctx, f.path)
}

func fillAttr(a *fuse.Attr, attr *Attr) {
	a.Mode = attr.Mode
	a.Size = uint64(attr.Size)
	a.Mtime = attr.Mtime
	a.Uid = attr.Uid
	a.Gid = attr.Gid
}

// Mount mounts the pod at mountpoint and serves it until ctx is canceled or
// the filesystem is unmounted externally.
func Mount(ctx context.Context, mountpoint string, client podclient.Interface, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	filesystem := NewFilesystem(client, logger)

	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("podfs"),
		fuse.Subtype("podfs-go"),
	)
	if err != nil {
		return fmt.Errorf("failed to mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	logger.Info("mounted pod", zap.String("mountpoint", mountpoint))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := fuse.Unmount(mountpoint); err != nil {
				logger.Error("failed to unmount", zap.String("mountpoint", mountpoint), zap.Error(err))
			}
		case <-done:
		}
	}()

	if err := fs.Serve(c, NewFuseFS(filesystem)); err != nil {
		return fmt.Errorf("failed to serve %s: %w", mountpoint, err)
	}
	return nil
}
