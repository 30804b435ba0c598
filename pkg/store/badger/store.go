package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trustcompute/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

const tableSeparator = ":"

// Store KeyValueStore backed by an embedded badger database.
// Keys are "<table>:<key>" so a table is a key prefix and Lookup is a prefix scan.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a badger database in dir
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a non-persistent badger database, used by tests and the CLI dry-run
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithMemTableSize(16 << 20).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger store: %w", err)
	}
	return &Store{db: db}, nil
}

func tablePrefix(table string) []byte {
	return []byte(table + tableSeparator)
}

func dbKey(table, key string) []byte {
	return []byte(table + tableSeparator + key)
}

// Get returns the value stored under table/key
func (s *Store) Get(ctx context.Context, table, key string) (string, bool, error) {
	var value []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(table, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return string(value), found, nil
}

// Set writes value under table/key
func (s *Store) Set(ctx context.Context, table, key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(table, key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", table, key, err)
	}
	return nil
}

// Remove deletes table/key
func (s *Store) Remove(ctx context.Context, table, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(table, key))
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", table, key, err)
	}
	return nil
}

// Lookup returns every key in table in byte order
func (s *Store) Lookup(ctx context.Context, table string) ([]string, error) {
	prefix := tablePrefix(table)
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lookup table %s: %w", table, err)
	}
	return keys, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through the service logger
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Errorf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warnf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debugf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debugf("badger: "+strings.TrimSpace(format), args...)
}
