// Package history keeps an append-only SQLite log of finished pose-feedback
// sessions. It is write-and-list only: nothing here restores game state.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit caps Recent when the caller passes a non-positive limit.
const DefaultLimit = 20

// MaxLimit is the largest page Recent returns.
const MaxLimit = 500

// Summary is the end-of-session record.
type Summary struct {
	SessionID       string    `json:"session_id"`
	RemoteAddr      string    `json:"remote_addr,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Samples         int       `json:"samples"`
	RejectedFrames  int       `json:"rejected_frames"`
	DegradedTurns   int       `json:"degraded_turns"`
	TotalScore      int       `json:"total_score"`
	Level           int       `json:"level"`
	HighestAccuracy float64   `json:"highest_accuracy"`
	Achievements    []string  `json:"achievements"`
	PosesMastered   []string  `json:"poses_mastered"`
	EndReason       string    `json:"end_reason"`
}

// Duration returns how long the session lasted.
func (s Summary) Duration() time.Duration {
	if s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Store is a SQLite-backed summary log.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies migrations.
// A leading ~ is expanded to the home directory.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: database path is required")
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("history: cannot expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: cannot create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: cannot open database: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: cannot connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished session. Recording the same session ID twice
// replaces the earlier row.
func (s *Store) Record(ctx context.Context, sum Summary) error {
	if strings.TrimSpace(sum.SessionID) == "" {
		return errors.New("history: session id is required")
	}
	achievements, err := encodeList(sum.Achievements)
	if err != nil {
		return err
	}
	mastered, err := encodeList(sum.PosesMastered)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_summaries (
			session_id, remote_addr, started_at_ms, ended_at_ms, samples, rejected_frames,
			degraded_turns, total_score, level, highest_accuracy, achievements, poses_mastered, end_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.RemoteAddr, sum.StartedAt.UnixMilli(), sum.EndedAt.UnixMilli(),
		sum.Samples, sum.RejectedFrames, sum.DegradedTurns, sum.TotalScore, sum.Level,
		sum.HighestAccuracy, achievements, mastered, sum.EndReason,
	)
	if err != nil {
		return fmt.Errorf("history: cannot record session %s: %w", sum.SessionID, err)
	}
	return nil
}

// Recent returns up to limit summaries, most recently ended first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, remote_addr, started_at_ms, ended_at_ms, samples, rejected_frames,
		       degraded_turns, total_score, level, highest_accuracy, achievements, poses_mastered, end_reason
		FROM session_summaries
		ORDER BY ended_at_ms DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: cannot query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var (
			sum                 Summary
			startedMS, endedMS  int64
			achievements, poses string
		)
		if err := rows.Scan(
			&sum.SessionID, &sum.RemoteAddr, &startedMS, &endedMS, &sum.Samples, &sum.RejectedFrames,
			&sum.DegradedTurns, &sum.TotalScore, &sum.Level, &sum.HighestAccuracy, &achievements, &poses, &sum.EndReason,
		); err != nil {
			return nil, fmt.Errorf("history: cannot scan session: %w", err)
		}
		sum.StartedAt = time.UnixMilli(startedMS).UTC()
		sum.EndedAt = time.UnixMilli(endedMS).UTC()
		if sum.Achievements, err = decodeList(achievements); err != nil {
			return nil, err
		}
		if sum.PosesMastered, err = decodeList(poses); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: cannot read sessions: %w", err)
	}
	return out, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("history: encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("history: decode list: %w", err)
	}
	return out, nil
}
