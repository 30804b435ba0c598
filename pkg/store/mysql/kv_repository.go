package mysql

import (
	"context"
	"errors"
	"fmt"

	"trustcompute/pkg/store/mysql/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepository KeyValueStore over the kv_entries table
type KVRepository struct {
	ds *Datastore
}

// NewKVRepository creates KV repository
func NewKVRepository(ds *Datastore) *KVRepository {
	return &KVRepository{ds: ds}
}

// Get returns the value stored under table/key
func (r *KVRepository) Get(ctx context.Context, table, key string) (string, bool, error) {
	var entry model.KVEntry
	err := r.ds.DB(ctx).
		Where("table_name = ? AND entry_key = ?", table, key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return entry.Value, true, nil
}

// Set upserts value under table/key
func (r *KVRepository) Set(ctx context.Context, table, key, value string) error {
	entry := &model.KVEntry{Table: table, EntryKey: key, Value: value}
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", table, key, err)
	}
	return nil
}

// Remove deletes table/key
func (r *KVRepository) Remove(ctx context.Context, table, key string) error {
	err := r.ds.DB(ctx).
		Where("table_name = ? AND entry_key = ?", table, key).
		Delete(&model.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", table, key, err)
	}
	return nil
}

// Lookup returns every key in table ordered by key
func (r *KVRepository) Lookup(ctx context.Context, table string) ([]string, error) {
	keys := make([]string, 0)
	err := r.ds.DB(ctx).Model(&model.KVEntry{}).
		Where("table_name = ?", table).
		Order("entry_key ASC").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lookup table %s: %w", table, err)
	}
	return keys, nil
}

// Close is a no-op; the datastore is closed through Repository
func (r *KVRepository) Close() error {
	return nil
}
