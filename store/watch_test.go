package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_CoalescesBursts(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("users/u1")
	defer cancel()

	h.Publish("users/u1")
	h.Publish("users/u1/referrals/u2")
	h.Publish("users/u1")
	h.Publish("users/u2")

	assert.Len(t, ch, 1)
	<-ch
	assert.Len(t, ch, 0)
}

func TestHub_Matches(t *testing.T) {
	assert.True(t, matches("users/u1", "users/u1"))
	assert.True(t, matches("users", "users/u1"))
	assert.True(t, matches("users/u1/referrals/u2", "users/u1"))
	assert.False(t, matches("users/u1", "users/u10"))
	assert.False(t, matches("withdrawRequests", "depositRequests/x"))
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("users")
	assert.Equal(t, 1, h.subscribers())
	cancel()
	cancel()
	assert.Equal(t, 0, h.subscribers())
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) last() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func TestWatchDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Options{})
	require.NoError(t, s.Set(ctx, "users/u1", counterDoc{Count: 1}))

	rec := &recorder{}
	stop := WatchDocument(ctx, s, "users/u1", rec.add)

	require.Eventually(t, func() bool {
		_, n := rec.last()
		return n >= 1
	}, time.Second, 5*time.Millisecond)

	snap, _ := rec.last()
	assert.True(t, snap.Exists)

	require.NoError(t, s.Set(ctx, "users/u1", counterDoc{Count: 2}))
	require.Eventually(t, func() bool {
		snap, _ := rec.last()
		var doc counterDoc
		return json.Unmarshal(snap.Data, &doc) == nil && doc.Count == 2
	}, time.Second, 5*time.Millisecond)

	stop()
	assert.Equal(t, 0, s.Changes().subscribers())

	_, before := rec.last()
	require.NoError(t, s.Set(ctx, "users/u1", counterDoc{Count: 3}))
	time.Sleep(20 * time.Millisecond)
	_, after := rec.last()
	assert.Equal(t, before, after)
}

func TestWatchCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Options{})

	rec := &recorder{}
	stop := WatchCollection(ctx, s, "withdrawRequests", rec.add)
	defer stop()

	require.Eventually(t, func() bool {
		_, n := rec.last()
		return n >= 1
	}, time.Second, 5*time.Millisecond)
	snap, _ := rec.last()
	assert.False(t, snap.Exists)

	require.NoError(t, s.Set(ctx, "withdrawRequests/w1", counterDoc{Name: "w1"}))
	require.Eventually(t, func() bool {
		snap, _ := rec.last()
		return len(snap.Children) == 1
	}, time.Second, 5*time.Millisecond)
}
