package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one row of the documents table.
type Document struct {
	Path      string    `gorm:"primaryKey;type:text" json:"path"`
	Data      string    `gorm:"type:jsonb;not null" json:"data"`
	Version   int64     `gorm:"not null" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

// GormStore keeps documents in postgres. Every write bumps the row version and
// transactions commit with an UPDATE guarded by the version they read.
type GormStore struct {
	db   *gorm.DB
	hub  *Hub
	opts Options
}

func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	return &GormStore{
		db:   db.Session(&gorm.Session{SkipDefaultTransaction: true}),
		hub:  NewHub(),
		opts: opts,
	}
}

func (g *GormStore) Migrate() error {
	return g.db.AutoMigrate(&Document{})
}

func (g *GormStore) Changes() *Hub { return g.hub }

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (g *GormStore) load(ctx context.Context, path string) (*Document, error) {
	var rows []Document
	err := g.db.WithContext(ctx).
		Raw("SELECT path, data, version, updated_at FROM documents WHERE path = ?", path).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (g *GormStore) Get(ctx context.Context, path string, out any) (bool, error) {
	if err := validPath(path); err != nil {
		return false, err
	}
	doc, err := g.load(ctx, path)
	if err != nil || doc == nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(doc.Data), out); err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

func (g *GormStore) Set(ctx context.Context, path string, v any) error {
	if err := validPath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	now := time.Now().UTC()
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":       string(data),
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": now,
		}),
	}).Create(&Document{Path: path, Data: string(data), Version: 1, UpdatedAt: now}).Error
	if err != nil {
		return unavailable(err)
	}
	g.hub.Publish(path)
	return nil
}

func (g *GormStore) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := g.Transact(ctx, path, func(cur []byte, exists bool) ([]byte, error) {
		return applyUpdate(cur, exists, fields)
	})
	return err
}

func (g *GormStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	var next int64
	_, err := g.Transact(ctx, path, func(cur []byte, exists bool) ([]byte, error) {
		out, n, err := applyIncrement(cur, exists, field, delta)
		next = n
		return out, err
	})
	return next, err
}

func (g *GormStore) Transact(ctx context.Context, path string, fn TxFunc) (bool, error) {
	if err := validPath(path); err != nil {
		return false, err
	}
	for attempt := 0; attempt < g.opts.maxRetries(); attempt++ {
		doc, err := g.load(ctx, path)
		if err != nil {
			return false, err
		}

		var cur []byte
		if doc != nil {
			cur = []byte(doc.Data)
		}
		out, err := fn(cur, doc != nil)
		if errors.Is(err, ErrAbort) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		written, err := g.compareAndSwap(ctx, path, doc, out)
		if err != nil {
			return false, err
		}
		if !written {
			g.opts.retried(path)
			continue
		}
		g.hub.Publish(path)
		return true, nil
	}
	return false, fmt.Errorf("%w: %s", ErrTooManyRetries, path)
}

// compareAndSwap writes out only if the row still has the version that was read,
// or still does not exist when prev is nil.
func (g *GormStore) compareAndSwap(ctx context.Context, path string, prev *Document, out []byte) (bool, error) {
	now := time.Now().UTC()
	if prev == nil {
		res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoNothing: true,
		}).Create(&Document{Path: path, Data: string(out), Version: 1, UpdatedAt: now})
		if res.Error != nil {
			return false, unavailable(res.Error)
		}
		return res.RowsAffected == 1, nil
	}

	res := g.db.WithContext(ctx).Model(&Document{}).
		Where("path = ? AND version = ?", path, prev.Version).
		Updates(map[string]any{
			"data":       string(out),
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *GormStore) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := validPath(collection); err != nil {
		return nil, err
	}
	var rows []Document
	err := g.db.WithContext(ctx).
		Raw("SELECT path, data, version, updated_at FROM documents WHERE path LIKE ?", collection+"/%").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	out := make(map[string][]byte, len(rows))
	for _, row := range rows {
		// LIKE treats "_" as a wildcard, so filter again on the exact prefix
		if key, ok := isDirectChild(collection, row.Path); ok {
			out[key] = []byte(row.Data)
		}
	}
	return out, nil
}

// Delete removes the document at path and every document below it.
func (g *GormStore) Delete(ctx context.Context, path string) error {
	if err := validPath(path); err != nil {
		return err
	}
	err := g.db.WithContext(ctx).
		Exec("DELETE FROM documents WHERE path = ? OR path LIKE ?", path, path+"/%").Error
	if err != nil {
		return unavailable(err)
	}
	g.hub.Publish(path)
	return nil
}
