package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/kvstore"
)

func openSQLite(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(Config{Type: DatabaseTypeSQLite, SQLitePath: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
	assert.True(t, strings.HasSuffix(cfg.SQLitePath, filepath.Join("formsync", "formsync.db")))
	assert.NoError(t, cfg.Validate())

	pg := Config{Type: DatabaseTypePostgres}
	pg.ApplyDefaults()
	assert.Equal(t, 5432, pg.Postgres.Port)
	assert.Equal(t, "disable", pg.Postgres.SSLMode)
	assert.Error(t, pg.Validate())

	pg.Postgres.Host, pg.Postgres.Database, pg.Postgres.User = "db", "forms", "forms"
	assert.NoError(t, pg.Validate())
	assert.Contains(t, pg.Postgres.DSN(), "host=db port=5432")

	assert.Error(t, (&Config{Type: "mysql"}).Validate())
}

func TestBackendUpsertAndList(t *testing.T) {
	ctx := context.Background()
	b, err := openSQLite(t).Backend("queue")
	require.NoError(t, err)

	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "pending-queue", Value: json.RawMessage(`[]`)}))
	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "pending-queue", Value: json.RawMessage(`[1]`)}))
	require.NoError(t, b.PutRecord(ctx, kvstore.Record{Key: "a", Value: json.RawMessage(`true`)}))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "pending-queue"}, keys)

	rec, err := b.GetRecord(ctx, "pending-queue")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `[1]`, string(rec.Value))

	require.NoError(t, b.DeleteRecord(ctx, "a"))
	rec, err = b.GetRecord(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := openSQLite(t)

	a, err := p.Backend("a")
	require.NoError(t, err)
	b, err := p.Backend("b")
	require.NoError(t, err)

	require.NoError(t, a.PutRecord(ctx, kvstore.Record{Key: "k", Value: json.RawMessage(`1`)}))
	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = p.Backend("")
	assert.Error(t, err)
}

func TestChunkedStoreOnSQLite(t *testing.T) {
	ctx := context.Background()
	b, err := openSQLite(t).Backend("drafts")
	require.NoError(t, err)
	store := kvstore.New(b, kvstore.WithThreshold(64))

	in := map[string]any{"files": []any{strings.Repeat("x", 1000)}}
	require.NoError(t, store.Set(ctx, "draft-data-1", in))

	var out map[string]any
	found, err := store.Get(ctx, "draft-data-1", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("database or disk is full (13)"))
	assert.Equal(t, apperror.KindCapacity, apperror.KindOf(err))
}
