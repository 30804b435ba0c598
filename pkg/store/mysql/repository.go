package mysql

import (
	"fmt"

	"trustcompute/pkg/config"
	"trustcompute/pkg/store/mysql/model"
)

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	KV *KVRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds: ds,
		KV: NewKVRepository(ds),
	}, nil
}

// BuildDSN builds a go-sql-driver DSN from configuration
func BuildDSN(cfg config.MySQLConfig) string {
	port := cfg.Port
	if port <= 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		port,
		cfg.Database,
	)
}

// AutoMigrate creates or updates the tables used by the repositories
func (r *Repository) AutoMigrate() error {
	if err := r.ds.GetDB().AutoMigrate(&model.KVEntry{}); err != nil {
		return fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
