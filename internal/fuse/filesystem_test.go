package fuse

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podfs/podfs-go/pkg/podclient"
)

func newTestFilesystem(t *testing.T) (*Filesystem, *podclient.MockClient) {
	t.Helper()
	client := podclient.NewMockClient()
	return NewFilesystem(client, nil), client
}

func TestGetAttr(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, client.PublishData(ctx, "inbox", "log.txt", []any{"one", 2, true}))

	attr, err := fs.GetAttr(ctx, "/")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsDir())

	attr, err = fs.GetAttr(ctx, "/inbox")
	require.NoError(t, err)
	assert.True(t, attr.Mode.IsDir())

	attr, err = fs.GetAttr(ctx, "/inbox/log.txt")
	require.NoError(t, err)
	assert.False(t, attr.Mode.IsDir())
	assert.Equal(t, int64(len("one\n2\ntrue\n")), attr.Size)

	_, err = fs.GetAttr(ctx, "/inbox/missing.txt")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestReadDir(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, client.PublishData(ctx, "docs", "b.txt", []any{"x"}))
	_, err := client.CreateContainer(ctx, "docs/img")
	require.NoError(t, err)
	require.NoError(t, fs.Create(ctx, "/docs/a.txt"))

	entries, err := fs.ReadDir(ctx, "/docs")
	require.NoError(t, err)
	assert.Equal(t, []DirEntry{
		{Name: "a.txt"},
		{Name: "b.txt"},
		{Name: "img", IsDir: true},
	}, entries)

	_, err = fs.ReadDir(ctx, "/missing")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestWriteFlushRead(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, fs.Create(ctx, "/notes/todo.json"))
	require.NoError(t, fs.WriteFile(ctx, "/notes/todo.json", []byte("hello"), 0))
	require.NoError(t, fs.WriteFile(ctx, "/notes/todo.json", []byte(" world"), 5))

	// Nothing reaches the pod before a flush
	_, ok := client.Object("notes", "todo.json")
	assert.False(t, ok)

	attr, err := fs.GetAttr(ctx, "/notes/todo.json")
	require.NoError(t, err)
	assert.Equal(t, int64(11), attr.Size)

	require.NoError(t, fs.Release(ctx, "/notes/todo.json"))
	obj, ok := client.Object("notes", "todo.json")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(obj.Data))
	assert.Equal(t, "application/json", obj.ContentType)

	data, err := fs.ReadFile(ctx, "/notes/todo.json", 6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = fs.ReadFile(ctx, "/notes/todo.json", 100, 5)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteExistingFile(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, client.PublishData(ctx, "inbox", "log", []any{"one"}))
	require.NoError(t, fs.WriteFile(ctx, "/inbox/log", []byte("two\n"), 4))
	require.NoError(t, fs.Flush(ctx, "/inbox/log"))

	got, err := client.ReadData(ctx, "inbox", "log")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	obj, _ := client.Object("inbox", "log")
	assert.Equal(t, podclient.ContentTypePlain, obj.ContentType)
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, client.WriteResource(ctx, "", "data.txt", []byte("abcdef"), ""))
	require.NoError(t, fs.Truncate(ctx, "/data.txt", 3))
	require.NoError(t, fs.Release(ctx, "/data.txt"))

	raw, err := client.ReadResource(ctx, "", "data.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(raw))
}

func TestFlushWithoutChangesDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, client.WriteResource(ctx, "a", "x.txt", []byte("x"), ""))
	_, err := fs.ReadFile(ctx, "/a/x.txt", 0, 10)
	require.NoError(t, err)
	require.NoError(t, fs.Release(ctx, "/a/x.txt"))

	writes := 0
	for _, call := range client.Calls() {
		if call == "WriteResource a/x.txt" {
			writes++
		}
	}
	assert.Equal(t, 1, writes)
}

func TestFlushFailure(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, fs.Create(ctx, "/a.txt"))
	client.FailNext(errors.New("connection reset"))
	assert.Equal(t, syscall.EIO, fs.Flush(ctx, "/a.txt"))

	// The buffer stays dirty and the next flush succeeds
	require.NoError(t, fs.Flush(ctx, "/a.txt"))
	_, ok := client.Object("", "a.txt")
	assert.True(t, ok)
}

// stallingClient holds every WriteResource until release is closed.
type stallingClient struct {
	*podclient.MockClient
	started chan struct{}
	release chan struct{}
}

func (c *stallingClient) WriteResource(ctx context.Context, container, file string, data []byte, contentType string) error {
	c.started <- struct{}{}
	<-c.release
	return c.MockClient.WriteResource(ctx, container, file, data, contentType)
}

func TestFlushDoesNotBlockOtherFiles(t *testing.T) {
	ctx := context.Background()
	mock := podclient.NewMockClient()
	client := &stallingClient{
		MockClient: mock,
		started:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	fs := NewFilesystem(client, nil)

	require.NoError(t, mock.WriteResource(ctx, "", "other.txt", []byte("other"), ""))
	require.NoError(t, fs.Create(ctx, "/slow.txt"))
	require.NoError(t, fs.WriteFile(ctx, "/slow.txt", []byte("first"), 0))

	flushed := make(chan error, 1)
	go func() { flushed <- fs.Flush(ctx, "/slow.txt") }()
	<-client.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := fs.GetAttr(ctx, "/other.txt")
		assert.NoError(t, err)
		data, err := fs.ReadFile(ctx, "/other.txt", 0, 10)
		assert.NoError(t, err)
		assert.Equal(t, "other", string(data))
		// Lands while the upload of "first" is in flight
		assert.NoError(t, fs.WriteFile(ctx, "/slow.txt", []byte("second"), 0))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("filesystem locked during upload")
	}

	close(client.release)
	require.NoError(t, <-flushed)
	obj, ok := mock.Object("", "slow.txt")
	require.True(t, ok)
	assert.Equal(t, "first", string(obj.Data))

	// The write made during the upload is still pending
	require.NoError(t, fs.Release(ctx, "/slow.txt"))
	obj, _ = mock.Object("", "slow.txt")
	assert.Equal(t, "second", string(obj.Data))
}

func TestMkdirRmdir(t *testing.T) {
	ctx := context.Background()
	fs, client := newTestFilesystem(t)

	require.NoError(t, fs.Mkdir(ctx, "/archive"))
	assert.Equal(t, syscall.EEXIST, fs.Mkdir(ctx, "/archive"))

	ok, err := client.ContainerExists(ctx, "archive")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, client.PublishData(ctx, "archive", "old.txt", []any{"x"}))
	assert.Equal(t, syscall.ENOTEMPTY, fs.Rmdir(ctx, "/archive"))

	require.NoError(t, fs.Remove(ctx, "/archive/old.txt"))
	assert.Equal(t, syscall.ENOENT, fs.Remove(ctx, "/archive/old.txt"))
	require.NoError(t, fs.Rmdir(ctx, "/archive"))
	assert.Equal(t, syscall.EBUSY, fs.Rmdir(ctx, "/"))
}

func TestRemoveUnflushedFile(t *testing.T) {
	ctx := context.Background()
	fs, _ := newTestFilesystem(t)

	require.NoError(t, fs.Create(ctx, "/tmp.txt"))
	require.NoError(t, fs.Remove(ctx, "/tmp.txt"))

	_, err := fs.GetAttr(ctx, "/tmp.txt")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestNodes(t *testing.T) {
	ctx := context.Background()
	filesystem, client := newTestFilesystem(t)
	require.NoError(t, client.PublishData(ctx, "inbox", "log.txt", []any{"one"}))

	root, err := NewFuseFS(filesystem).Root()
	require.NoError(t, err)
	dir := root.(*Dir)

	var a fuse.Attr
	require.NoError(t, dir.Attr(ctx, &a))
	assert.True(t, a.Mode.IsDir())

	node, err := dir.Lookup(ctx, "inbox")
	require.NoError(t, err)
	inbox, ok := node.(*Dir)
	require.True(t, ok)

	dirents, err := inbox.ReadDirAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fuse.Dirent{{Name: "log.txt", Type: fuse.DT_File}}, dirents)

	node, err = inbox.Lookup(ctx, "log.txt")
	require.NoError(t, err)
	file, ok := node.(*File)
	require.True(t, ok)

	var wresp fuse.WriteResponse
	require.NoError(t, file.Write(ctx, &fuse.WriteRequest{Data: []byte("two\n"), Offset: 4}, &wresp))
	assert.Equal(t, 4, wresp.Size)

	var rresp fuse.ReadResponse
	require.NoError(t, file.Read(ctx, &fuse.ReadRequest{Offset: 0, Size: 100}, &rresp))
	assert.Equal(t, "one\ntwo\n", string(rresp.Data))

	require.NoError(t, file.Release(ctx, &fuse.ReleaseRequest{}))
	got, err := client.ReadData(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)

	_, err = dir.Mkdir(ctx, &fuse.MkdirRequest{Name: "new"})
	require.NoError(t, err)
	require.NoError(t, dir.Remove(ctx, &fuse.RemoveRequest{Name: "new", Dir: true}))

	_, err = dir.Lookup(ctx, "nothing")
	assert.Equal(t, syscall.ENOENT, err)
}
