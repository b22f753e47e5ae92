package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/kvstore"
)

func TestBackendCRUD(t *testing.T) {
	ctx := context.Background()
	b := New()

	rec, err := b.GetRecord(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "b", Value: json.RawMessage(`1`)}))
	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "a", Value: json.RawMessage(`"x"`)}))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	rec, err = b.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(rec.Value))

	require.NoError(t, b.DeleteRecord(ctx, "a"))
	require.NoError(t, b.DeleteRecord(ctx, "a"))
	assert.Equal(t, 1, b.Len())
}

func TestProviderNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := NewProvider()

	queue, err := p.Backend("pending-queue")
	require.NoError(t, err)
	drafts, err := p.Backend("drafts")
	require.NoError(t, err)

	require.NoError(t, queue.PutRecord(ctx, kvstore.Record{Key: "k", Value: json.RawMessage(`true`)}))

	keys, err := drafts.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	again, err := p.Backend("pending-queue")
	require.NoError(t, err)
	assert.Same(t, queue, again)
}

func TestBackendHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Keys(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
