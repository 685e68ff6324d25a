// Package storetest holds a conformance suite shared by every store.KV
// implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/eclectech/pkg/store"
)

// Run exercises kv against the store.KV contract. kv must be empty.
func Run(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		v, ok, err := kv.Get(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "a:1", "one"))
		v, ok, err := kv.Get(ctx, "a:1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "one", v)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "a:1", "uno"))
		v, _, err := kv.Get(ctx, "a:1")
		require.NoError(t, err)
		require.Equal(t, "uno", v)
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, kv.Put(ctx, "a:2", "two"))
		require.NoError(t, kv.Put(ctx, "b:1", "other"))

		entries, err := kv.List(ctx, "a:")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, "a:1", entries[0].Key)
		require.Equal(t, "a:2", entries[1].Key)
		require.NotEmpty(t, entries[0].ID)

		all, err := kv.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, kv.Delete(ctx, "a:1"))
		_, ok, err := kv.Get(ctx, "a:1")
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, kv.Delete(ctx, "never-existed"))
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, kv.Ping(ctx))
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, kv.Close())
		_, _, err := kv.Get(ctx, "a:2")
		require.ErrorIs(t, err, store.ErrClosed)
		require.ErrorIs(t, kv.Put(ctx, "x", "y"), store.ErrClosed)
	})
}
