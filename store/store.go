// Package store is a path-keyed JSON document store with single-document
// transactions and change notifications on any path prefix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrAbort may be returned by a TxFunc to end a transaction without writing.
	ErrAbort = errors.New("store: transaction aborted")
	// ErrTooManyRetries is returned when a transaction kept conflicting.
	ErrTooManyRetries = errors.New("store: too many transaction retries")
	// ErrUnavailable wraps failures of the backing database.
	ErrUnavailable = errors.New("store: unavailable")
	ErrInvalidPath = errors.New("store: invalid path")
)

const DefaultMaxRetries = 25

// TxFunc computes the new document from the current one. It may run more than
// once and must not have side effects outside its return value.
type TxFunc func(current []byte, exists bool) ([]byte, error)

type Store interface {
	// Get decodes the document at path into out. It reports false if the document is missing.
	Get(ctx context.Context, path string, out any) (bool, error)
	Set(ctx context.Context, path string, v any) error
	// Update merges fields into the document, creating it if needed. Keys may
	// address nested objects with "/".
	Update(ctx context.Context, path string, fields map[string]any) error
	Increment(ctx context.Context, path, field string, delta int64) (int64, error)
	// Transact runs a read-modify-write on one document, retrying on conflict.
	Transact(ctx context.Context, path string, fn TxFunc) (committed bool, err error)
	// List returns the direct children of collection keyed by their last path segment.
	List(ctx context.Context, collection string) (map[string][]byte, error)
	Delete(ctx context.Context, path string) error
	Changes() *Hub
}

// Options configures a store implementation.
type Options struct {
	MaxRetries int
	// OnRetry is called every time a transaction attempt loses a conflict.
	OnRetry func(path string)
}

func (o Options) maxRetries() int {
	if o.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return o.MaxRetries
}

func (o Options) retried(path string) {
	if o.OnRetry != nil {
		o.OnRetry(path)
	}
}

// PushKey returns a unique, time-ordered key for a new child document.
func PushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Join builds a path from segments. Segments must be non-empty and free of "/".
func Join(segments ...string) (string, error) {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			return "", fmt.Errorf("%w: segment %q", ErrInvalidPath, s)
		}
	}
	return strings.Join(segments, "/"), nil
}

func validPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// TransactJSON runs fn against a freshly decoded T on every attempt. Returning
// ErrAbort from fn ends the transaction without writing. The committed value is returned.
func TransactJSON[T any](ctx context.Context, s Store, path string, fn func(doc *T, exists bool) error) (*T, bool, error) {
	var result *T
	committed, err := s.Transact(ctx, path, func(cur []byte, exists bool) ([]byte, error) {
		doc := new(T)
		if exists {
			if err := json.Unmarshal(cur, doc); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		if err := fn(doc, exists); err != nil {
			return nil, err
		}
		result = doc
		return json.Marshal(doc)
	})
	if err != nil || !committed {
		return nil, committed, err
	}
	return result, true, nil
}

// ListJSON decodes every direct child of collection into a T.
func ListJSON[T any](ctx context.Context, s Store, collection string) (map[string]T, error) {
	raw, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(raw))
	for key, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// applyUpdate merges fields into a JSON object document.
func applyUpdate(cur []byte, exists bool, fields map[string]any) ([]byte, error) {
	doc := map[string]any{}
	if exists && len(cur) > 0 {
		if err := json.Unmarshal(cur, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for key, value := range fields {
		setNested(doc, strings.Split(key, "/"), value)
	}
	return json.Marshal(doc)
}

func setNested(doc map[string]any, keys []string, value any) {
	for _, k := range keys[:len(keys)-1] {
		child, ok := doc[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			doc[k] = child
		}
		doc = child
	}
	doc[keys[len(keys)-1]] = value
}

// applyIncrement adds delta to a numeric field and returns the document and new value.
func applyIncrement(cur []byte, exists bool, field string, delta int64) ([]byte, int64, error) {
	doc := map[string]any{}
	if exists && len(cur) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(cur)))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode document: %w", err)
		}
	}
	keys := strings.Split(field, "/")
	parent := doc
	for _, k := range keys[:len(keys)-1] {
		child, ok := parent[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			parent[k] = child
		}
		parent = child
	}
	last := keys[len(keys)-1]
	var current int64
	if n, ok := parent[last].(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return nil, 0, fmt.Errorf("field %s is not an integer: %w", field, err)
		}
		current = v
	}
	next := current + delta
	parent[last] = next
	out, err := json.Marshal(doc)
	return out, next, err
}

// isDirectChild reports whether path is collection/<key> and returns key.
func isDirectChild(collection, path string) (string, bool) {
	prefix := collection + "/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(path, prefix)
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
