// Package kvstore is the partitioned key-value store the entity stores
// sit on. Records live in named partitions and are scanned in
// descending key order, which lines up with the time-ordered IDs used
// as keys everywhere above it.
package kvstore

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when no record exists under the key.
var ErrNotFound = errors.New("kvstore: record not found")

// Record is one stored key/value pair.
type Record struct {
	Key   string
	Value []byte
}

// Query bounds a Scan. Before and After are exclusive key bounds; empty
// means unbounded. Limit caps the number of records returned; zero or
// negative means no cap.
type Query struct {
	Before string
	After  string
	Limit  int
}

// Store is an ordered, partitioned key-value store.
type Store interface {
	// Put writes value under (partition, key), replacing any prior value.
	Put(partition, key string, value []byte) error

	// Get reads the value under (partition, key), or ErrNotFound.
	Get(partition, key string) ([]byte, error)

	// Delete removes (partition, key). Deleting an absent key is not an
	// error.
	Delete(partition, key string) error

	// Scan returns the records of partition in descending key order,
	// bounded by q.
	Scan(partition string, q Query) ([]Record, error)

	// DeletePartition removes every record in partition.
	DeletePartition(partition string) error

	// Close releases underlying resources.
	Close() error
}
