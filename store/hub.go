package store

import (
	"strings"
	"sync"
)

// Hub fans out changed paths to subscribers of any path prefix.
// Notifications carry no data; subscribers re-read the store, so bursts coalesce.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	subs      map[int]*subscription
	forwarder func(path string)
}

type subscription struct {
	prefix string
	ch     chan string
}

func NewHub() *Hub {
	return &Hub{subs: map[int]*subscription{}}
}

// Subscribe returns a channel signalled whenever prefix or anything below it
// changes, and a cancel func that must be called on teardown.
func (h *Hub) Subscribe(prefix string) (<-chan string, func()) {
	sub := &subscription{prefix: prefix, ch: make(chan string, 1)}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// SetForwarder registers a func called for every locally originated change.
func (h *Hub) SetForwarder(fn func(path string)) {
	h.mu.Lock()
	h.forwarder = fn
	h.mu.Unlock()
}

// Publish announces a local change to subscribers and to the forwarder.
func (h *Hub) Publish(path string) {
	h.Deliver(path)

	h.mu.RLock()
	fwd := h.forwarder
	h.mu.RUnlock()
	if fwd != nil {
		fwd(path)
	}
}

// Deliver announces a change to local subscribers only.
func (h *Hub) Deliver(path string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !matches(sub.prefix, path) {
			continue
		}
		select {
		case sub.ch <- path:
		default:
			// a notification is already pending
		}
	}
}

func (h *Hub) subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// matches reports whether a change at path is visible to a subscriber of prefix.
// Parents see their children and a child sees a replacement of its parent.
func matches(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(prefix, path+"/")
}
