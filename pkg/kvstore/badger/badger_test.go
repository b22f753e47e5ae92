package badger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/kvstore"
)

func openProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestBackendNamespaces(t *testing.T) {
	ctx := context.Background()
	p := openProvider(t)

	queue, err := p.Backend("queue")
	require.NoError(t, err)
	drafts, err := p.Backend("drafts")
	require.NoError(t, err)

	require.NoError(t, queue.PutRecord(ctx, kvstore.Record{Key: "pending-queue", Value: json.RawMessage(`[]`)}))
	require.NoError(t, drafts.PutRecord(ctx, kvstore.Record{Key: "form-submission-drafts", Value: json.RawMessage(`{}`)}))

	keys, err := queue.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending-queue"}, keys)

	rec, err := drafts.GetRecord(ctx, "pending-queue")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBackendDelete(t *testing.T) {
	ctx := context.Background()
	b, err := openProvider(t).Backend("ns")
	require.NoError(t, err)

	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "k", Value: json.RawMessage(`1`)}))
	require.NoError(t, b.DeleteRecord(ctx, "k"))
	require.NoError(t, b.DeleteRecord(ctx, "k"))

	rec, err := b.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestChunkedStoreOnBadger(t *testing.T) {
	ctx := context.Background()
	b, err := openProvider(t).Backend("drafts")
	require.NoError(t, err)
	store := kvstore.New(b, kvstore.WithThreshold(100))

	in := map[string]any{"attachment": strings.Repeat("A", 5000), "name": "photo"}
	require.NoError(t, store.Set(ctx, "draft-data-1", in))

	var out map[string]any
	found, err := store.Get(ctx, "draft-data-1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, apperror.KindCapacity, apperror.KindOf(classify(badgerdb.ErrTxnTooBig)))
	assert.Equal(t, apperror.KindUnknown, apperror.KindOf(classify(errors.New("other"))))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
