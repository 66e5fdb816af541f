// Package snapshots persists cart snapshots in the cart_snapshots SQL table.
package snapshots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/kv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartSnapshot is one persisted cart, keyed by its namespaced storage key.
type CartSnapshot struct {
	CartKey   string    `gorm:"column:cart_key;primaryKey"`
	Payload   string    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
	// Version increments on every write and guards optimistic updates.
	Version int64 `gorm:"column:version;not null;default:0"`
}

func (CartSnapshot) TableName() string { return "cart_snapshots" }

// Repository implements kv.Versioned on top of gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ kv.Versioned = (*Repository)(nil)

// NewRepository binds a repository to the provided GORM connection.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	var snap CartSnapshot
	err := r.db.WithContext(ctx).Where("cart_key = ?", key).Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load cart snapshot: %w", err)
	}
	return snap.Payload, nil
}

// Set upserts the payload for key.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cart key required")
	}
	now := r.now().UTC()
	snap := CartSnapshot{CartKey: key, Payload: value, UpdatedAt: now, Version: 1}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload":    value,
			"updated_at": now,
			"version":    gorm.Expr("cart_snapshots.version + 1"),
		}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}
	return nil
}

// Update applies fn to the stored payload and writes the result only if the row's
// version is unchanged. A lost race, including a concurrent first insert, returns
// kv.ErrConflict.
func (r *Repository) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cart key required")
	}
	db := r.db.WithContext(ctx)

	var snap CartSnapshot
	found := true
	err := db.Where("cart_key = ?", key).Take(&snap).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		found = false
	case err != nil:
		return fmt.Errorf("load cart snapshot: %w", err)
	}

	next, err := fn(snap.Payload, found)
	if err != nil {
		return err
	}
	now := r.now().UTC()

	var res *gorm.DB
	if found {
		res = db.Model(&CartSnapshot{}).
			Where("cart_key = ? AND version = ?", key, snap.Version).
			Updates(map[string]any{"payload": next, "updated_at": now, "version": snap.Version + 1})
	} else {
		res = db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&CartSnapshot{CartKey: key, Payload: next, UpdatedAt: now, Version: 1})
	}
	if res.Error != nil {
		return fmt.Errorf("save cart snapshot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return kv.ErrConflict
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("cart_key = ?", key).Delete(&CartSnapshot{}).Error; err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

// Prune removes snapshots not written since cutoff and returns how many were deleted.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("updated_at < ?", cutoff.UTC()).Delete(&CartSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune cart snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
