package kvstore

import (
	"context"
	"encoding/json"
)

// Record is the physical unit stored by a Backend. A logical value is one
// root record plus zero or more child records holding oversized strings.
type Record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Backend is a namespaced, prefix-listable key-value store. Writes must be
// durable per key: a crash may lose a key but never corrupt another one.
type Backend interface {
	// Keys returns every key stored in the namespace.
	Keys(ctx context.Context) ([]string, error)

	// GetRecord returns the record for key, or nil when it does not exist.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// PutRecord creates or replaces a record.
	PutRecord(ctx context.Context, rec Record) error

	// DeleteRecord removes key. Deleting a missing key is not an error.
	DeleteRecord(ctx context.Context, key string) error

	// Close releases resources held by this namespace.
	Close() error
}

// Provider hands out namespaced backends sharing one physical store.
type Provider interface {
	// Name identifies the backend type in logs ("memory", "badger", ...).
	Name() string

	// Backend returns the backend for namespace.
	Backend(namespace string) (Backend, error)

	// Close releases the physical store.
	Close() error
}
