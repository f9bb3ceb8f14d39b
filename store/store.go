// Package store is the key-value persistence collaborator. The orchestration
// core writes transcripts, cost records, and audit events here after a loop
// terminates, never mid-loop.
package store

import (
	"errors"
	"time"
)

// Well-known partitions.
const (
	PartitionTranscript = "transcript"
	PartitionCost       = "cost"
	PartitionAudit      = "audit"
	PartitionWorld      = "world"
)

// ErrNotFound is returned by Get when no record matches.
var ErrNotFound = errors.New("record not found")

// Record is one flat persisted item. Payload is opaque to the store;
// producers use JSON.
type Record struct {
	Partition string    `json:"partition"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a key-value interface with per-partition range queries.
type Store interface {
	// Get retrieves the record at (partition, key).
	Get(partition, key string) (*Record, error)

	// Put inserts or replaces a record. CreatedAt is set if zero.
	Put(rec Record) error

	// Query returns records in a partition whose keys start with keyPrefix
	// (empty prefix matches all), ordered by key, up to limit (0 = no limit).
	Query(partition, keyPrefix string, limit int) ([]Record, error)
}
