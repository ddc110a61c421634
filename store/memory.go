package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
)

type memDoc struct {
	data    []byte
	version int64
}

// MemoryStore keeps documents in process. Transactions use the same optimistic
// compare-and-swap protocol as GormStore, so conflicts really retry.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]memDoc
	seq  int64 // version source, never reused after a delete
	hub  *Hub
	opts Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		docs: map[string]memDoc{},
		hub:  NewHub(),
		opts: opts,
	}
}

func (m *MemoryStore) Changes() *Hub { return m.hub }

func (m *MemoryStore) read(path string) (memDoc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	return doc, ok
}

func (m *MemoryStore) Get(ctx context.Context, path string, out any) (bool, error) {
	if err := validPath(path); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	doc, ok := m.read(path)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(doc.data, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, v any) error {
	if err := validPath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.seq++
	m.docs[path] = memDoc{data: data, version: m.seq}
	m.mu.Unlock()

	m.hub.Publish(path)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := m.Transact(ctx, path, func(cur []byte, exists bool) ([]byte, error) {
		return applyUpdate(cur, exists, fields)
	})
	return err
}

func (m *MemoryStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	var next int64
	_, err := m.Transact(ctx, path, func(cur []byte, exists bool) ([]byte, error) {
		out, n, err := applyIncrement(cur, exists, field, delta)
		next = n
		return out, err
	})
	return next, err
}

func (m *MemoryStore) Transact(ctx context.Context, path string, fn TxFunc) (bool, error) {
	if err := validPath(path); err != nil {
		return false, err
	}
	for attempt := 0; attempt < m.opts.maxRetries(); attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		snap, exists := m.read(path)

		out, err := fn(snap.data, exists)
		if errors.Is(err, ErrAbort) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		m.mu.Lock()
		current, stillExists := m.docs[path]
		if stillExists != exists || current.version != snap.version {
			m.mu.Unlock()
			m.opts.retried(path)
			runtime.Gosched()
			continue
		}
		m.seq++
		m.docs[path] = memDoc{data: out, version: m.seq}
		m.mu.Unlock()

		m.hub.Publish(path)
		return true, nil
	}
	return false, fmt.Errorf("%w: %s", ErrTooManyRetries, path)
}

func (m *MemoryStore) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := validPath(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]byte{}
	for path, doc := range m.docs {
		if key, ok := isDirectChild(collection, path); ok {
			out[key] = doc.data
		}
	}
	return out, nil
}

// Delete removes the document at path and every document below it.
func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := validPath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for p := range m.docs {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.docs, p)
		}
	}
	m.mu.Unlock()

	m.hub.Publish(path)
	return nil
}
