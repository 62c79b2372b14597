// Copyright 2024-2026 Aiku AI

// Package prefs stores per-player relay preferences and chat-platform account
// links in SQLite.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS player_prefs (
	player_id  TEXT PRIMARY KEY,
	hide_chat  INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS linked_accounts (
	author_id  TEXT PRIMARY KEY,
	player_id  TEXT NOT NULL,
	linked_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_linked_player ON linked_accounts(player_id);
`

// Link is a chat-platform author bound to a game player.
type Link struct {
	AuthorID string
	PlayerID string
	LinkedAt time.Time
}

// Store implements relay.PreferenceLookup and relay.LinkLookup.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens or creates the database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "prefs").Logger()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IsFiltered reports whether playerID hid relayed chat. Lookup errors are
// logged and treated as not filtered.
func (s *Store) IsFiltered(ctx context.Context, playerID string) bool {
	var hide bool
	err := s.db.QueryRowContext(ctx,
		`SELECT hide_chat FROM player_prefs WHERE player_id = ?`, playerID,
	).Scan(&hide)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	} else if err != nil {
		s.log.Warn().Err(err).Str("player_id", playerID).Msg("Failed to look up player preference")
		return false
	}
	return hide
}

// SetFiltered sets whether playerID receives relayed chat.
func (s *Store) SetFiltered(ctx context.Context, playerID string, hide bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO player_prefs (player_id, hide_chat, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(player_id) DO UPDATE SET hide_chat = excluded.hide_chat, updated_at = excluded.updated_at`,
		playerID, hide, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preference for %s: %w", playerID, err)
	}
	return nil
}

// IsLinked reports whether authorID is linked to a game account. Lookup
// errors are logged and treated as not linked.
func (s *Store) IsLinked(ctx context.Context, authorID string) bool {
	if authorID == "" {
		return false
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM linked_accounts WHERE author_id = ?`, authorID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	} else if err != nil {
		s.log.Warn().Err(err).Str("author_id", authorID).Msg("Failed to look up account link")
		return false
	}
	return true
}

// Link binds authorID to playerID, replacing any previous link of authorID.
func (s *Store) Link(ctx context.Context, authorID, playerID string) error {
	if authorID == "" || playerID == "" {
		return errors.New("author ID and player ID are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO linked_accounts (author_id, player_id, linked_at) VALUES (?, ?, ?)
		 ON CONFLICT(author_id) DO UPDATE SET player_id = excluded.player_id, linked_at = excluded.linked_at`,
		authorID, playerID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to link %s: %w", authorID, err)
	}
	return nil
}

// Unlink removes the link of authorID. It reports whether a link existed.
func (s *Store) Unlink(ctx context.Context, authorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM linked_accounts WHERE author_id = ?`, authorID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink %s: %w", authorID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to unlink %s: %w", authorID, err)
	}
	return n > 0, nil
}

// Links returns all account links ordered by link time.
func (s *Store) Links(ctx context.Context) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT author_id, player_id, linked_at FROM linked_accounts ORDER BY linked_at, author_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.AuthorID, &l.PlayerID, &l.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
