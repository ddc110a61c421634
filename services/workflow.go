package services

import (
	"context"
	"sort"
	"time"

	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"
)

// request is implemented by the pointer types of every request document.
type request[T any] interface {
	*T
	Meta() *models.RequestMeta
}

// transition moves a pending request to status. A request that is already
// terminal is never changed and yields ErrRequestFinalized.
func transition[T any, P request[T]](ctx context.Context, st store.Store, path string, status models.RequestStatus, reviewer string, now time.Time) (P, error) {
	doc, _, err := store.TransactJSON(ctx, st, path, func(doc *T, exists bool) error {
		if !exists {
			return ErrRequestNotFound
		}
		meta := P(doc).Meta()
		if meta.Status != models.StatusPending {
			return ErrRequestFinalized
		}
		meta.Status = status
		meta.ReviewedBy = reviewer
		meta.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return P(doc), nil
}

// markSettled records that the ledger effects of a terminal request are complete.
func markSettled[T any, P request[T]](ctx context.Context, st store.Store, path string, now time.Time) (P, error) {
	doc, committed, err := store.TransactJSON(ctx, st, path, func(doc *T, exists bool) error {
		if !exists {
			return ErrRequestNotFound
		}
		meta := P(doc).Meta()
		if meta.Settled {
			return store.ErrAbort
		}
		meta.Settled = true
		meta.SettledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !committed {
		return loadRequest[T, P](ctx, st, path)
	}
	return P(doc), nil
}

func loadRequest[T any, P request[T]](ctx context.Context, st store.Store, path string) (P, error) {
	doc := P(new(T))
	ok, err := st.Get(ctx, path, doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRequestNotFound
	}
	return doc, nil
}

// RequestFilter selects requests in a listing. Empty fields match everything.
type RequestFilter struct {
	Status models.RequestStatus
	UserID string
}

func (f RequestFilter) match(m *models.RequestMeta) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.UserID != "" && m.UserID != f.UserID {
		return false
	}
	return true
}

// listRequests returns the matching requests of collection, newest first.
func listRequests[T any, P request[T]](ctx context.Context, st store.Store, collection string, filter RequestFilter) ([]P, error) {
	docs, err := store.ListJSON[T](ctx, st, collection)
	if err != nil {
		return nil, err
	}
	out := make([]P, 0, len(docs))
	for key := range docs {
		doc := docs[key]
		p := P(&doc)
		if filter.match(p.Meta()) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Meta(), out[j].Meta()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

// unsettled reports whether a request reached a terminal state without its
// ledger effects being recorded as complete.
func unsettled(m *models.RequestMeta) bool {
	return m.Status.Terminal() && !m.Settled
}

// settlementExpired reports whether m was reviewed before the account markers
// that make its ledger effect idempotent may have been compacted.
func settlementExpired(m *models.RequestMeta, now time.Time) bool {
	return m.ReviewedAt != nil && m.ReviewedAt.Before(now.Add(-models.AppliedMarkerRetention))
}
