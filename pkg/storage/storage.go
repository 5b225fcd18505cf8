package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS view_states (
  table_key   TEXT PRIMARY KEY,
  state_json  TEXT NOT NULL,
  updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS action_log (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  action      TEXT NOT NULL,
  target_id   TEXT NOT NULL,
  mode        TEXT NOT NULL CHECK (mode IN ('single','bulk')),
  result      TEXT NOT NULL CHECK (result IN ('ok','error')),
  error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_action_time ON action_log(occurred_at);
CREATE INDEX IF NOT EXISTS idx_action_target ON action_log(target_id, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// GetViewState returns the stored JSON of a table, and whether one exists.
func (d *DB) GetViewState(ctx context.Context, tableKey string) (string, bool, error) {
	var raw string
	err := d.sql.QueryRowContext(ctx, "SELECT state_json FROM view_states WHERE table_key = ?", tableKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}

func (d *DB) PutViewState(ctx context.Context, tableKey, stateJSON string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO view_states(table_key, state_json, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(table_key) DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP`, tableKey, stateJSON)
	return err
}

func (d *DB) DeleteViewState(ctx context.Context, tableKey string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM view_states WHERE table_key = ?", tableKey)
	return err
}

// ListViewStates returns every stored view state ordered by table key.
func (d *DB) ListViewStates(ctx context.Context) ([]ViewStateRow, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT table_key, state_json, updated_at FROM view_states ORDER BY table_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ViewStateRow
	for rows.Next() {
		var v ViewStateRow
		var updatedAt string
		if err := rows.Scan(&v.TableKey, &v.StateJSON, &updatedAt); err != nil {
			return nil, err
		}
		v.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecordAction appends one entry to the action log.
func (d *DB) RecordAction(ctx context.Context, a ActionRecord) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO action_log(occurred_at, action, target_id, mode, result, error) VALUES(?,?,?,?,?,?)`,
		formatTimestamp(a.OccurredAt), a.Action, a.TargetID, a.Mode, a.Result, nullIfEmpty(a.Error))
	return err
}

// ListRecentActions returns the most recent N actions, newest first.
func (d *DB) ListRecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, action, target_id, mode, result, error FROM action_log ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []ActionRecord{}
	for rows.Next() {
		var a ActionRecord
		var occurredAtStr string
		var errText sql.NullString
		if err := rows.Scan(&occurredAtStr, &a.Action, &a.TargetID, &a.Mode, &a.Result, &errText); err != nil {
			return nil, err
		}
		a.OccurredAt = parseTimestamp(occurredAtStr)
		a.Error = errText.String
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

func (d *DB) GetActionStats(ctx context.Context) ([]ActionStats, error) {
	query := `
		SELECT
			action,
			SUM(CASE WHEN result = 'ok' THEN 1 ELSE 0 END),
			SUM(CASE WHEN result = 'error' THEN 1 ELSE 0 END),
			MAX(occurred_at)
		FROM
			action_log
		GROUP BY
			action
		ORDER BY
			action;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ActionStats
	for rows.Next() {
		var s ActionStats
		var last string
		if err := rows.Scan(&s.Action, &s.OKCount, &s.ErrCount, &last); err != nil {
			return nil, err
		}
		s.LastSent = parseTimestamp(last)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

const sqliteTimestamp = "2006-01-02 15:04:05"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(sqliteTimestamp)
}

// parseTimestamp reads SQLite CURRENT_TIMESTAMP, falling back to RFC3339.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(sqliteTimestamp, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
