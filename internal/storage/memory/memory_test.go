package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citygate/internal/storage"
	"citygate/internal/storage/storagetest"
)

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.CreateCollection(ctx, "cities", nil))
	require.NoError(t, b.Put(ctx, "cities", "baku", []byte(`{"city":"Baku"}`), false))

	doc, err := b.Get(ctx, "cities", "baku")
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Baku"}`, string(doc))
	assert.Equal(t, 1, b.Len("cities"))
}

func TestBackendCreateOnlyDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.CreateCollection(ctx, "cities", nil))
	require.NoError(t, b.Put(ctx, "cities", "paris", []byte(`{"population":1}`), true))

	err := b.Put(ctx, "cities", "paris", []byte(`{"population":2}`), true)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	doc, err := b.Get(ctx, "cities", "paris")
	require.NoError(t, err)
	assert.JSONEq(t, `{"population":1}`, string(doc))
}

func TestBackendMissingCollection(t *testing.T) {
	ctx := context.Background()
	b := New()

	_, err := b.Get(ctx, "cities", "baku")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = b.Put(ctx, "cities", "baku", []byte(`{}`), false)
	assert.Error(t, err)

	exists, err := b.CollectionExists(ctx, "cities")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackendCreateCollectionTwice(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.CreateCollection(ctx, "cities", nil))
	assert.ErrorIs(t, b.CreateCollection(ctx, "cities", nil), storage.ErrAlreadyExists)
}

func TestBackendClosedFailsPing(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(context.Background()))
}

func TestBackendReturnsCopies(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.CreateCollection(ctx, "cities", nil))
	doc := []byte(`{"city":"London"}`)
	require.NoError(t, b.Put(ctx, "cities", "london", doc, false))
	doc[2] = 'X'

	got, err := b.Get(ctx, "cities", "london")
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"London"}`, string(got))
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return New()
	})
}
