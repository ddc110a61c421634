package store

import (
	"context"
	"encoding/json"
)

// Snapshot is the value delivered to a watcher.
type Snapshot struct {
	Path     string                     `json:"path"`
	Exists   bool                       `json:"exists"`
	Data     json.RawMessage            `json:"data,omitempty"`
	Children map[string]json.RawMessage `json:"children,omitempty"`
}

// WatchDocument calls fn with the current document at path and again after every
// change, delivering only the latest value when changes arrive in bursts.
// The returned func unsubscribes and waits for the watcher to stop.
func WatchDocument(ctx context.Context, s Store, path string, fn func(Snapshot)) func() {
	return watch(ctx, s, path, fn, func(ctx context.Context) (Snapshot, error) {
		var raw json.RawMessage
		ok, err := s.Get(ctx, path, &raw)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Path: path, Exists: ok, Data: raw}, nil
	})
}

// WatchCollection is WatchDocument for the direct children of collection.
func WatchCollection(ctx context.Context, s Store, collection string, fn func(Snapshot)) func() {
	return watch(ctx, s, collection, fn, func(ctx context.Context) (Snapshot, error) {
		raw, err := s.List(ctx, collection)
		if err != nil {
			return Snapshot{}, err
		}
		children := make(map[string]json.RawMessage, len(raw))
		for k, v := range raw {
			children[k] = v
		}
		return Snapshot{Path: collection, Exists: len(children) > 0, Children: children}, nil
	})
}

func watch(ctx context.Context, s Store, path string, fn func(Snapshot), read func(context.Context) (Snapshot, error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	changes, unsubscribe := s.Changes().Subscribe(path)
	done := make(chan struct{})

	deliver := func() {
		snap, err := read(ctx)
		if err != nil {
			// the next change retries the read
			return
		}
		fn(snap)
	}

	go func() {
		defer close(done)
		defer unsubscribe()
		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				deliver()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
