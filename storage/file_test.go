package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend_StoreFetch(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	name := interfaces.KeyObjectName("signing-key.enc")
	data := []byte("sealed key bytes")

	require.NoError(t, backend.Store(ctx, name, data))

	fetched, err := backend.Fetch(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileBackend_FetchMissing(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), "no-such-object")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestFileBackend_ListEmpty(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	names, err := backend.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestFileBackend_List(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Store(ctx, "key-a.enc", []byte("a")))
	require.NoError(t, backend.Store(ctx, "key-b.enc", []byte("b")))

	names, err := backend.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]interfaces.KeyObjectName{"key-a.enc", "key-b.enc"}, names)
}

func TestFileBackend_RejectsTraversalNames(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	for _, name := range []interfaces.KeyObjectName{"..", "a/b", "../escape", ""} {
		_, err := backend.Fetch(ctx, name)
		assert.Error(t, err, "name %q should be rejected", name)

		err = backend.Store(ctx, name, []byte("x"))
		assert.Error(t, err, "name %q should be rejected", name)
	}
}

func TestFileBackend_Available(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	assert.True(t, backend.Available(context.Background()))
}
