// Package storagetest holds a conformance suite run against every backend.
package storagetest

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podfs/podfs-go/internal/storage/types"
)

// Run exercises b with paths below prefix. The backend must not hold other
// objects below prefix.
func Run(t *testing.T, b types.Backend, prefix string) {
	ctx := context.Background()
	p := func(s string) string { return prefix + s }

	t.Run("write and read", func(t *testing.T) {
		require.NoError(t, b.Write(ctx, p("inbox/log.txt"), []byte("one\n2\ntrue\n"), "text/plain"))

		obj, err := b.Read(ctx, p("inbox/log.txt"))
		require.NoError(t, err)
		assert.Equal(t, "one\n2\ntrue\n", string(obj.Data))
		assert.Equal(t, "text/plain", obj.ContentType)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, b.Write(ctx, p("inbox/log.txt"), []byte("two\n"), "text/plain"))
		obj, err := b.Read(ctx, p("inbox/log.txt"))
		require.NoError(t, err)
		assert.Equal(t, "two\n", string(obj.Data))
	})

	t.Run("empty container marker", func(t *testing.T) {
		require.NoError(t, b.Write(ctx, p("inbox/"), nil, "text/turtle"))
		ok, err := b.Exists(ctx, p("inbox/"))
		require.NoError(t, err)
		assert.True(t, ok)

		obj, err := b.Read(ctx, p("inbox/"))
		require.NoError(t, err)
		assert.Empty(t, obj.Data)
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, b.Write(ctx, p("inbox/a.txt"), []byte("a\n"), "text/plain"))
		require.NoError(t, b.Write(ctx, p("inbox_other/x.txt"), []byte("x\n"), "text/plain"))

		paths, err := b.List(ctx, p("inbox/"))
		require.NoError(t, err)
		assert.Equal(t, []string{p("inbox/"), p("inbox/a.txt"), p("inbox/log.txt")}, paths)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := b.Read(ctx, p("nope.txt"))
		assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)

		ok, err := b.Exists(ctx, p("nope.txt"))
		require.NoError(t, err)
		assert.False(t, ok)

		assert.True(t, errors.Is(b.Delete(ctx, p("nope.txt")), os.ErrNotExist))
	})

	t.Run("delete", func(t *testing.T) {
		for _, path := range []string{"inbox/a.txt", "inbox/log.txt", "inbox/", "inbox_other/x.txt"} {
			require.NoError(t, b.Delete(ctx, p(path)))
		}
		paths, err := b.List(ctx, prefix)
		require.NoError(t, err)
		assert.Empty(t, paths)
	})
}
