package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/easelhq/easel/internal/deck"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS decks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS app_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const activeDeckKey = "active_deck"

const upsertDeckSQL = `
	INSERT INTO decks (id, title, status, data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		status = excluded.status,
		data = excluded.data,
		updated_at = excluded.updated_at
`

// SQLite is a Store backed by an embedded SQLite database. Decks are stored
// as JSON documents; status and timestamps are lifted into columns for
// listing without a full decode.
type SQLite struct {
	db *sql.DB

	// writeMu serializes in-process writers so concurrent UpdateDeck calls
	// queue on the mutex instead of each other's transactions. The
	// transaction in UpdateDeck guards the read-modify-write itself.
	writeMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the deck database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetDeck(ctx context.Context, id string) (*deck.Deck, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM decks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeckNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}

	var d deck.Deck
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to decode deck %s: %w", id, err)
	}
	return &d, nil
}

func (s *SQLite) ListDecks(ctx context.Context) ([]*deck.Deck, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM decks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var out []*deck.Deck
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan deck: %w", err)
		}
		var d deck.Deck
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("failed to decode deck: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *SQLite) PutDeck(ctx context.Context, d *deck.Deck) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.putLocked(ctx, d)
}

func (s *SQLite) putLocked(ctx context.Context, d *deck.Deck) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertDeckSQL,
		d.ID, d.Title, string(d.Status), string(data), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store deck: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteDeck(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeckNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM app_state WHERE key = ? AND value = ?`, activeDeckKey, id)
	if err != nil {
		return fmt.Errorf("failed to clear active deck: %w", err)
	}
	return nil
}

// UpdateDeck applies fn inside a single transaction, so the read and the
// write either land together or not at all, even with other processes on the
// same database file.
func (s *SQLite) UpdateDeck(ctx context.Context, id string, fn func(*deck.Deck) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM decks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeckNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get deck: %w", err)
	}
	var d deck.Deck
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return fmt.Errorf("failed to decode deck %s: %w", id, err)
	}

	if err := fn(&d); err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()

	encoded, err := json.Marshal(&d)
	if err != nil {
		return fmt.Errorf("failed to encode deck: %w", err)
	}
	_, err = tx.ExecContext(ctx, upsertDeckSQL,
		d.ID, d.Title, string(d.Status), string(encoded), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store deck: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) ActiveDeckID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, activeDeckKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active deck: %w", err)
	}
	return id, nil
}

func (s *SQLite) SetActiveDeck(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.GetDeck(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, activeDeckKey, id)
	if err != nil {
		return fmt.Errorf("failed to set active deck: %w", err)
	}
	return nil
}

var _ Store = (*SQLite)(nil)
