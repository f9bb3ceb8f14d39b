package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	partition  TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (partition, key)
);
CREATE INDEX IF NOT EXISTS idx_records_created ON records (partition, created_at);
`

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and ensures the
// records table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get retrieves the record at (partition, key).
func (s *SQLiteStore) Get(partition, key string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT partition, key, payload, created_at FROM records WHERE partition=? AND key=?`,
		partition, key,
	)
	var rec Record
	err := row.Scan(&rec.Partition, &rec.Key, &rec.Payload, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(rec Record) error {
	if rec.Partition == "" || rec.Key == "" {
		return fmt.Errorf("partition and key are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO records (partition, key, payload, created_at) VALUES (?,?,?,?)`,
		rec.Partition, rec.Key, rec.Payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", rec.Partition, rec.Key, err)
	}
	return nil
}

// Query returns records in a partition matching the key prefix, ordered by key.
func (s *SQLiteStore) Query(partition, keyPrefix string, limit int) ([]Record, error) {
	q := `SELECT partition, key, payload, created_at FROM records WHERE partition=? AND key LIKE ? ORDER BY key`
	args := []any{partition, keyPrefix + "%"}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Partition, &rec.Key, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
