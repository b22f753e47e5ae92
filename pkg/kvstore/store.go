// Package kvstore implements a chunked key-value store on top of a simple
// record Backend. Strings longer than a threshold are moved out of the
// value into child records so no single physical entry grows past the
// backend's practical size limit.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/internal/telemetry"
)

// DefaultThreshold is the string length above which a field is stored as a
// child record.
const DefaultThreshold = 25000

const childSeparator = "_"

// segmentEscaper keeps path segments containing the separator from
// colliding: {"a_b"} and {"a": {"b"}} get distinct child keys.
var segmentEscaper = strings.NewReplacer("~", "~0", childSeparator, "~1")

// Store is a chunked key-value store bound to one namespace.
type Store struct {
	backend   Backend
	name      string
	threshold int
}

// Option configures a Store.
type Option func(*Store)

// WithThreshold sets the chunking threshold in characters.
func WithThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithName sets the namespace name used in logs and spans.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the chunking threshold.
func (s *Store) Threshold() int {
	return s.threshold
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// ChildKey returns the key under which the string at path is stored for
// rootKey. Segments are escaped ("~" as "~0", "_" as "~1") so distinct
// paths never share a key.
func ChildKey(rootKey string, path ...string) string {
	escaped := make([]string, len(path))
	for i, seg := range path {
		escaped[i] = segmentEscaper.Replace(seg)
	}
	return rootKey + childSeparator + strings.Join(escaped, childSeparator)
}

// owns reports whether key is rootKey itself or one of its child records.
// A key that merely shares a textual prefix ("drafts" vs "drafts-data") is
// not owned.
func owns(rootKey, key string) bool {
	return key == rootKey || strings.HasPrefix(key, rootKey+childSeparator)
}

// Set stores value under key, replacing any previous value and its chunks.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanKVSet, telemetry.StoreKey(key))
	defer span.End()

	tree, err := toTree(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}

	var children []Record
	tree, err = s.split(key, nil, tree, &children)
	if err != nil {
		return fmt.Errorf("kvstore: split %q: %w", key, err)
	}
	root, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}

	if err := s.removeOwned(ctx, key); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	// Children go first so a crash before the root write leaves no root
	// rather than a root pointing at missing chunks.
	for _, child := range children {
		if err := s.backend.PutRecord(ctx, child); err != nil {
			telemetry.RecordError(ctx, err)
			return fmt.Errorf("kvstore: write chunk %q: %w", child.Key, err)
		}
	}
	if err := s.backend.PutRecord(ctx, Record{Key: key, Value: root}); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("kvstore: write %q: %w", key, err)
	}

	logger.Debug("KV set",
		logger.KeyNamespace, s.name,
		logger.KeyStoreKey, key,
		logger.KeyChunks, len(children),
		logger.KeySize, len(root))
	return nil
}

// Get loads key into out. It returns false when the key does not exist.
//
// A chunk referenced by the root but missing from the backend decodes as
// JSON null. Callers must treat such partial values as unavailable.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanKVGet, telemetry.StoreKey(key))
	defer span.End()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return false, fmt.Errorf("kvstore: list keys: %w", err)
	}

	var root *Record
	chunks := make(map[string]json.RawMessage)
	for _, k := range keys {
		if !owns(key, k) {
			continue
		}
		rec, err := s.backend.GetRecord(ctx, k)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return false, fmt.Errorf("kvstore: read %q: %w", k, err)
		}
		if rec == nil {
			continue
		}
		if rec.Key == key {
			root = rec
			continue
		}
		chunks[rec.Key] = rec.Value
	}
	if root == nil {
		return false, nil
	}

	tree, err := decodeTree(root.Value)
	if err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	tree, missing, err := join(key, nil, tree, chunks)
	if err != nil {
		return false, fmt.Errorf("kvstore: join %q: %w", key, err)
	}
	if missing > 0 {
		logger.Warn("KV value has missing chunks",
			logger.KeyNamespace, s.name,
			logger.KeyStoreKey, key,
			logger.KeyChunks, missing)
	}

	if out == nil {
		return true, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return false, fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return true, nil
}

// Remove deletes key and all of its chunks.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.removeOwned(ctx, key); err != nil {
		return err
	}
	logger.Debug("KV remove", logger.KeyNamespace, s.name, logger.KeyStoreKey, key)
	return nil
}

func (s *Store) removeOwned(ctx context.Context, key string) error {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return fmt.Errorf("kvstore: list keys: %w", err)
	}
	for _, k := range keys {
		if !owns(key, k) {
			continue
		}
		if err := s.backend.DeleteRecord(ctx, k); err != nil {
			return fmt.Errorf("kvstore: delete %q: %w", k, err)
		}
	}
	return nil
}

// split replaces every oversized string in tree with its child key and
// collects the replaced strings as child records.
func (s *Store) split(rootKey string, path []string, node any, children *[]Record) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		for k, v := range t {
			nv, err := s.split(rootKey, appendPath(path, k), v, children)
			if err != nil {
				return nil, err
			}
			t[k] = nv
		}
		return t, nil
	case []any:
		for i, v := range t {
			nv, err := s.split(rootKey, appendPath(path, strconv.Itoa(i)), v, children)
			if err != nil {
				return nil, err
			}
			t[i] = nv
		}
		return t, nil
	case string:
		if len(path) == 0 || utf8.RuneCountInString(t) <= s.threshold {
			return t, nil
		}
		value, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		childKey := ChildKey(rootKey, path...)
		*children = append(*children, Record{Key: childKey, Value: value})
		return childKey, nil
	default:
		return node, nil
	}
}

// join substitutes child references found at their own path with the
// stored chunk. A single pass, chunks are never resolved recursively.
func join(rootKey string, path []string, node any, chunks map[string]json.RawMessage) (any, int, error) {
	switch t := node.(type) {
	case map[string]any:
		missing := 0
		for k, v := range t {
			nv, m, err := join(rootKey, appendPath(path, k), v, chunks)
			if err != nil {
				return nil, 0, err
			}
			t[k] = nv
			missing += m
		}
		return t, missing, nil
	case []any:
		missing := 0
		for i, v := range t {
			nv, m, err := join(rootKey, appendPath(path, strconv.Itoa(i)), v, chunks)
			if err != nil {
				return nil, 0, err
			}
			t[i] = nv
			missing += m
		}
		return t, missing, nil
	case string:
		if len(path) == 0 || t != ChildKey(rootKey, path...) {
			return t, 0, nil
		}
		raw, ok := chunks[t]
		if !ok {
			return nil, 1, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, 0, err
		}
		return v, 0, nil
	default:
		return node, 0, nil
	}
}

func appendPath(path []string, seg string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	return append(next, seg)
}

// toTree deep-clones value into a generic JSON tree. Numbers are kept as
// json.Number so large integers survive the round trip.
func toTree(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return decodeTree(b)
}

func decodeTree(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetAs loads key as a T.
func GetAs[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var v T
	found, err := s.Get(ctx, key, &v)
	return v, found, err
}

// SetAs stores a T under key.
func SetAs[T any](ctx context.Context, s *Store, key string, v T) error {
	return s.Set(ctx, key, v)
}
