package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const createSlotsTable = `
CREATE TABLE IF NOT EXISTS slots (
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	data BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (owner, name)
);`

// SQLite stores slots in a single table of a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer at a time; sqlite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createSlotsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create slots table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM slots WHERE owner = ? AND name = ?`, partition, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLite) Put(ctx context.Context, partition, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (owner, name, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(owner, name) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		partition, key, value)
	return err
}

func (s *SQLite) Delete(ctx context.Context, partition, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE owner = ? AND name = ?`, partition, key)
	return err
}
