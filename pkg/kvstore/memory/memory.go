// Package memory provides an in-process kvstore backend.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/marmos91/formsync/pkg/kvstore"
)

// Provider holds one map per namespace.
type Provider struct {
	mu         sync.Mutex
	namespaces map[string]*Backend
}

// NewProvider creates an empty in-memory provider.
func NewProvider() *Provider {
	return &Provider{namespaces: make(map[string]*Backend)}
}

// Name implements kvstore.Provider.
func (p *Provider) Name() string { return "memory" }

// Backend returns the backend for namespace, creating it on first use.
func (p *Provider) Backend(namespace string) (kvstore.Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.namespaces[namespace]
	if !ok {
		b = New()
		p.namespaces[namespace] = b
	}
	return b, nil
}

// Close implements kvstore.Provider.
func (p *Provider) Close() error { return nil }

// Backend is a map guarded by a RWMutex. Values are copied on the way in
// and out so callers can never alias stored bytes.
type Backend struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage

	// FailPut, when set, is returned by PutRecord. Tests use it to simulate
	// a full disk.
	FailPut error
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{records: make(map[string]json.RawMessage)}
}

func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.records))
	for k := range b.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *Backend) GetRecord(ctx context.Context, key string) (*kvstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.records[key]
	if !ok {
		return nil, nil
	}
	return &kvstore.Record{Key: key, Value: append(json.RawMessage(nil), v...)}, nil
}

func (b *Backend) PutRecord(ctx context.Context, rec kvstore.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailPut != nil {
		return b.FailPut
	}
	b.records[rec.Key] = append(json.RawMessage(nil), rec.Value...)
	return nil
}

func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, key)
	return nil
}

// Close is a no-op; data lives as long as the Backend.
func (b *Backend) Close() error { return nil }

// Len returns the number of physical records.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}
