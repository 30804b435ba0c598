package interfaces

import "context"

// KeyValueStore ordered key-value store organised into named tables.
// Each call is durable on its own; there are no cross-table transactions.
type KeyValueStore interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, table, key string) (string, bool, error)

	// Set writes or overwrites a value
	Set(ctx context.Context, table, key, value string) error

	// Remove deletes a key; removing a missing key is not an error
	Remove(ctx context.Context, table, key string) error

	// Lookup returns every key of a table in the store's iteration order
	Lookup(ctx context.Context, table string) ([]string, error)

	// Close releases the underlying storage
	Close() error
}
