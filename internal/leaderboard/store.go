// Package leaderboard persists per-user accumulated quiz points. The
// increment is a single UPSERT statement so concurrent awards for the
// same user can never lose updates.
package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/papercastlabs/papercast-core/internal/config"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	TotalPoints int       `json:"total_points"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store wraps the SQLite-backed leaderboard.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the leaderboard database, creating the schema if needed.
func Open(ctx context.Context, cfg config.LeaderboardConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS leaderboard (
    user_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    total_points INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leaderboard_points ON leaderboard(total_points DESC, user_id ASC);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Award adds points to a user's total. The read-modify-write happens
// inside the database, so interleaved awards commute: any ordering of
// [10, 15, 5] for the same user ends at +30 exactly. Totals only grow;
// negative awards are rejected.
func (s *Store) Award(ctx context.Context, userID string, points int) error {
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	if points < 0 {
		return fmt.Errorf("points must be >= 0")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard(user_id, total_points, updated_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     total_points = total_points + excluded.total_points,
		     updated_at = excluded.updated_at`,
		userID, points, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

// SetDisplayName updates the name shown for a user, creating the row if
// the user has never scored.
func (s *Store) SetDisplayName(ctx context.Context, userID, name string) error {
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard(user_id, display_name, total_points, updated_at)
		 VALUES(?, ?, 0, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     display_name = excluded.display_name,
		     updated_at = excluded.updated_at`,
		userID, name, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	return nil
}

// Top returns the n highest-scoring users, ties broken by user id so the
// ordering is deterministic.
func (s *Store) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, total_points, updated_at
		 FROM leaderboard ORDER BY total_points DESC, user_id ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated string
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.TotalPoints, &updated); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			e.UpdatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Total reports a single user's accumulated points.
func (s *Store) Total(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT total_points FROM leaderboard WHERE user_id = ?`, userID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}
