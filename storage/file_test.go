package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/record-custody-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackendStoreFetch(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("opaque ciphertext bytes")

	id, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeContentID(data), id)

	fetched, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileBackendIdempotentStore(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte("same bytes every time")

	id1, err := backend.Store(ctx, data)
	require.NoError(t, err)
	id2, err := backend.Store(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	fetched, err := backend.Fetch(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileBackendFetchNotFound(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), interfaces.ComputeContentID([]byte("never stored")))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackendAvailable(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	assert.True(t, backend.Available(context.Background()))
}
