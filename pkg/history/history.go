// Package history keeps an append-only log of knowledge-store mutations in
// sqlite, so operators can see when a spec was first learned, upgraded to a
// better source, or corroborated by a weaker one.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hwlore/hwlore/pkg/knowledge"
)

type Log struct {
	sql *sql.DB
}

func Open(path string) (*Log, error) {
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
CREATE TABLE IF NOT EXISTS spec_events (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  device_key  TEXT NOT NULL,
  spec_key    TEXT NOT NULL,
  change_type TEXT NOT NULL CHECK (change_type IN ('added','upgraded','corroborated')),
  source      TEXT NOT NULL,
  confidence  REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_time ON spec_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_device ON spec_events(device_key, occurred_at);
	`); err != nil {
		return nil, err
	}
	return &Log{sql: db}, nil
}

func (l *Log) Close() error {
	if l == nil || l.sql == nil {
		return nil
	}
	return l.sql.Close()
}

// Record appends knowledge-store changes to the log.
func (l *Log) Record(ctx context.Context, changes []knowledge.Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := l.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, ch := range changes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO spec_events(device_key, spec_key, change_type, source, confidence) VALUES(?,?,?,?,?)`,
			ch.DeviceKey, ch.SpecKey, string(ch.Type), ch.Source, ch.Confidence)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Event is one logged knowledge mutation.
type Event struct {
	OccurredAt time.Time
	DeviceKey  string
	SpecKey    string
	ChangeType string
	Source     string
	Confidence float64
}

// ListRecent returns the most recent events, newest first.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, device_key, spec_key, change_type, source, confidence FROM spec_events ORDER BY id DESC LIMIT ?"
	rows, err := l.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var occurredAtStr string
		if err := rows.Scan(&occurredAtStr, &e.DeviceKey, &e.SpecKey, &e.ChangeType, &e.Source, &e.Confidence); err != nil {
			return nil, err
		}
		// Parse SQLite CURRENT_TIMESTAMP format, then RFC3339.
		if t, perr := time.Parse("2006-01-02 15:04:05", occurredAtStr); perr == nil {
			e.OccurredAt = t
		} else if t2, perr2 := time.Parse(time.RFC3339, occurredAtStr); perr2 == nil {
			e.OccurredAt = t2
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByDevice returns how many events each device key has accumulated.
func (l *Log) CountByDevice(ctx context.Context) (map[string]int, error) {
	rows, err := l.sql.QueryContext(ctx, "SELECT device_key, COUNT(*) FROM spec_events GROUP BY device_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}
