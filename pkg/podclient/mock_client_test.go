package podclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	require.NoError(t, m.PublishData(ctx, "inbox", "log.txt", []any{"one", 2, true}))
	obj, ok := m.Object("inbox", "log.txt")
	require.True(t, ok)
	assert.Equal(t, "one\n2\ntrue\n", string(obj.Data))
	assert.Equal(t, ContentTypePlain, obj.ContentType)

	got, err := m.ReadData(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "2", "true"}, got)

	require.NoError(t, m.UpdateData(ctx, "inbox", "log.txt", []any{"four"}))
	got, err = m.ReadData(ctx, "inbox", "log.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "2", "true", "four"}, got)

	updated, _ := m.Object("inbox", "log.txt")
	assert.NotEqual(t, obj.ETag, updated.ETag)
}

func TestMockContainers(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	created, err := m.CreateContainer(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.CreateContainer(ctx, "/a/b/")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, m.WriteResource(ctx, "a", "f.bin", []byte{1, 2}, "application/octet-stream"))

	members, err := m.ListContainer(ctx, "a")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "b", members[0].Name)
	assert.True(t, members[0].IsContainer)
	assert.Equal(t, "f.bin", members[1].Name)
	assert.False(t, members[1].IsContainer)

	assert.True(t, errors.Is(m.DeleteContainer(ctx, "a"), ErrConflict))
	require.NoError(t, m.DeleteContainer(ctx, "a/b"))
	require.NoError(t, m.DeleteResource(ctx, "a", "f.bin"))
	require.NoError(t, m.DeleteContainer(ctx, "a"))

	ok, err := m.ContainerExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMockFailNext(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()
	boom := errors.New("boom")

	m.FailNext(boom)
	assert.Equal(t, boom, m.PublishData(ctx, "inbox", "x", []any{"a"}))
	require.NoError(t, m.PublishData(ctx, "inbox", "x", []any{"a"}))

	_, err := m.ReadData(ctx, "inbox", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, []string{
		"PublishData inbox/x",
		"PublishData inbox/x",
		"ReadData inbox/missing",
	}, m.Calls())
}
