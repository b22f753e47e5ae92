// Package badger provides a kvstore backend on BadgerDB. Every namespace is
// a key prefix inside one database; each record write is its own
// transaction so a crash can lose a key but never corrupt another one.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/apperror"
	"github.com/marmos91/formsync/pkg/kvstore"
)

// Config configures the badger database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM (tests, ephemeral agents).
	InMemory bool
}

// Provider owns one badger database shared by all namespaces.
type Provider struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database.
func Open(cfg Config) (*Provider, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if cfg.Path == "" {
		return nil, errors.New("badger: path is required unless in-memory")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Badger store opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &Provider{db: db}, nil
}

// Name implements kvstore.Provider.
func (p *Provider) Name() string { return "badger" }

// Backend returns the namespace view.
func (p *Provider) Backend(namespace string) (kvstore.Backend, error) {
	if namespace == "" {
		return nil, errors.New("badger: namespace is required")
	}
	return &Backend{db: p.db, prefix: []byte(namespace + ":")}, nil
}

// Close closes the database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Backend is one namespace inside the badger database.
type Backend struct {
	db     *badgerdb.DB
	prefix []byte
}

func (b *Backend) physical(key string) []byte {
	k := make([]byte, 0, len(b.prefix)+len(key))
	k = append(k, b.prefix...)
	return append(k, key...)
}

// Keys lists every key in the namespace using a key-only prefix scan.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = b.prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			k := it.Item().Key()
			keys = append(keys, string(k[len(b.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func (b *Backend) GetRecord(ctx context.Context, key string) (*kvstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *kvstore.Record
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(b.physical(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		rec = &kvstore.Record{Key: key, Value: val}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return rec, nil
}

func (b *Backend) PutRecord(ctx context.Context, rec kvstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(b.physical(rec.Key), rec.Value)
	})
	if err != nil {
		return classify(fmt.Errorf("failed to put %q: %w", rec.Key, err))
	}
	return nil
}

func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(b.physical(key))
	})
	if err != nil {
		return classify(fmt.Errorf("failed to delete %q: %w", key, err))
	}
	return nil
}

// Close is a no-op; the Provider owns the database.
func (b *Backend) Close() error { return nil }

func classify(err error) error {
	if errors.Is(err, badgerdb.ErrTxnTooBig) || apperror.IsCapacityMessage(err.Error()) {
		return apperror.Capacity(err)
	}
	return err
}
