package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: sqlite serialises writers anyway, and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS user_prefs (
			user_id TEXT PRIMARY KEY,
			opt_in INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS learned_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_learned_user_id ON learned_messages(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_learned_timestamp ON learned_messages(timestamp);`,
		`CREATE TABLE IF NOT EXISTS bot_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SetOptIn(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_prefs (user_id, opt_in) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET opt_in = excluded.opt_in`,
		userID, boolToInt(enabled),
	)
	if err != nil {
		return fmt.Errorf("failed to set opt-in: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsOptedIn(ctx context.Context, userID string) (bool, error) {
	return isOptedIn(ctx, s.db, userID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isOptedIn(ctx context.Context, q queryRower, userID string) (bool, error) {
	var optIn int
	err := q.QueryRowContext(ctx, `SELECT opt_in FROM user_prefs WHERE user_id = ?`, userID).Scan(&optIn)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read opt-in: %w", err)
	}
	return optIn != 0, nil
}

func (s *SQLiteStore) LogMessage(ctx context.Context, userID, content string) (bool, error) {
	return s.logMessageAt(ctx, userID, content, s.now())
}

func (s *SQLiteStore) logMessageAt(ctx context.Context, userID, content string, at time.Time) (bool, error) {
	if strings.TrimSpace(content) == "" {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	optedIn, err := isOptedIn(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	if !optedIn {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO learned_messages (user_id, content, timestamp) VALUES (?, ?, ?)`,
		userID, content, formatStored(at),
	); err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit message: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) SampleMessages(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content FROM learned_messages ORDER BY RANDOM() LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample messages: %w", err)
	}
	defer rows.Close()

	messages := make([]string, 0, limit)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		messages = append(messages, content)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM learned_messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ClearBefore(ctx context.Context, ts string) (int64, error) {
	return s.clearWhere(ctx, "<", ts)
}

func (s *SQLiteStore) ClearAfter(ctx context.Context, ts string) (int64, error) {
	return s.clearWhere(ctx, ">", ts)
}

func (s *SQLiteStore) clearWhere(ctx context.Context, op, ts string) (int64, error) {
	bound, err := ParseTimestamp(ts)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM learned_messages WHERE timestamp `+op+` ?`,
		formatStored(bound),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Stats(ctx context.Context, top int) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_prefs WHERE opt_in = 1`).Scan(&stats.OptedInUsers); err != nil {
		return nil, fmt.Errorf("failed to count opted-in users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learned_messages`).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	if top <= 0 {
		return stats, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*) AS msg_count
		FROM learned_messages
		GROUP BY user_id
		ORDER BY msg_count DESC, MIN(id) ASC
		LIMIT ?`, top)
	if err != nil {
		return nil, fmt.Errorf("failed to rank contributors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Contributor
		if err := rows.Scan(&c.UserID, &c.Messages); err != nil {
			return nil, err
		}
		stats.TopContributors = append(stats.TopContributors, c)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM bot_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
