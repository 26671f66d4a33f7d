// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when no event has the requested ID.
	ErrNotFound = errors.New("event not found")

	// ErrInvalidRating is returned for rating values outside 1-5 that
	// are not the clear sentinel.
	ErrInvalidRating = errors.New("rating must be 1-5 or -1 to clear")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                    TEXT PRIMARY KEY,
	model                 TEXT NOT NULL,
	prompt                TEXT NOT NULL,
	response              TEXT NOT NULL,
	response_time_seconds REAL NOT NULL DEFAULT 0,
	template_id           TEXT NOT NULL DEFAULT '',
	tags                  TEXT NOT NULL DEFAULT '[]',
	generation_id         TEXT NOT NULL DEFAULT '',
	prompt_tokens         INTEGER,
	completion_tokens     INTEGER,
	total_tokens          INTEGER,
	rating                INTEGER,
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at DESC);
`

// =============================================================================
// EVENT STORE
// =============================================================================

// Store is the SQLite-backed event store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the event database at path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event database: %w", err)
	}

	// The pure-Go driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEvent inserts a new event and returns it with its assigned ID.
func (s *Store) SaveEvent(ctx context.Context, req history.PersistRequest) (history.Event, error) {
	event := history.Event{
		ID:                  "evt_" + uuid.NewString(),
		Model:               req.Model,
		Prompt:              req.Prompt,
		Response:            req.Response,
		ResponseTimeSeconds: req.ResponseTimeSeconds,
		TemplateID:          req.TemplateID,
		Tags:                req.Tags,
		GenerationID:        req.GenerationID,
		Usage:               req.Usage,
		CreatedAt:           time.Now().UTC(),
	}

	tags, err := json.Marshal(event.Tags)
	if err != nil {
		return history.Event{}, fmt.Errorf("encoding tags: %w", err)
	}

	var promptTok, completionTok, totalTok sql.NullInt64
	if u := event.Usage; u != nil {
		promptTok = sql.NullInt64{Int64: int64(u.PromptTokens), Valid: true}
		completionTok = sql.NullInt64{Int64: int64(u.CompletionTokens), Valid: true}
		totalTok = sql.NullInt64{Int64: int64(u.TotalTokens), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (
			id, model, prompt, response, response_time_seconds,
			template_id, tags, generation_id,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Model, event.Prompt, event.Response, event.ResponseTimeSeconds,
		event.TemplateID, string(tags), event.GenerationID,
		promptTok, completionTok, totalTok, event.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return history.Event{}, fmt.Errorf("inserting event: %w", err)
	}

	return event, nil
}

// GetEvent returns the event with the given ID, or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (history.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, prompt, response, response_time_seconds,
		       template_id, tags, generation_id,
		       prompt_tokens, completion_tokens, total_tokens, rating, created_at
		FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEvents returns up to limit events, newest first. A limit of 0 or
// less means no limit.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]history.Event, error) {
	query := `
		SELECT id, model, prompt, response, response_time_seconds,
		       template_id, tags, generation_id,
		       prompt_tokens, completion_tokens, total_tokens, rating, created_at
		FROM events ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []history.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SetRating updates an event's rating. A rating of -1 clears it. Returns
// ErrNotFound if the event does not exist.
func (s *Store) SetRating(ctx context.Context, id string, rating int) error {
	if !history.ValidRating(rating) {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	var value sql.NullInt64
	if rating != history.RatingCleared {
		value = sql.NullInt64{Int64: int64(rating), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE events SET rating = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("updating rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (history.Event, error) {
	var (
		event     history.Event
		tags      string
		promptTok sql.NullInt64
		complTok  sql.NullInt64
		totalTok  sql.NullInt64
		rating    sql.NullInt64
		createdAt string
	)

	err := row.Scan(
		&event.ID, &event.Model, &event.Prompt, &event.Response, &event.ResponseTimeSeconds,
		&event.TemplateID, &tags, &event.GenerationID,
		&promptTok, &complTok, &totalTok, &rating, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Event{}, ErrNotFound
	}
	if err != nil {
		return history.Event{}, fmt.Errorf("scanning event: %w", err)
	}

	if tags != "" && tags != "[]" && tags != "null" {
		if err := json.Unmarshal([]byte(tags), &event.Tags); err != nil {
			return history.Event{}, fmt.Errorf("decoding tags for %s: %w", event.ID, err)
		}
	}
	if promptTok.Valid || complTok.Valid || totalTok.Valid {
		event.Usage = &history.UsageMetrics{
			PromptTokens:     int(promptTok.Int64),
			CompletionTokens: int(complTok.Int64),
			TotalTokens:      int(totalTok.Int64),
		}
	}
	if rating.Valid {
		event.Rating = int(rating.Int64)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		event.CreatedAt = t
	}

	return event, nil
}
