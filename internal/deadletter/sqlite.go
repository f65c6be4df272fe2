package deadletter

import (
	"context"
	"database/sql"
)

// SQLiteStore is a Store backed by SQLite, for deployments that want
// dead letters to survive a process restart.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			group_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload BLOB,
			reason TEXT NOT NULL,
			failed_at TIMESTAMP NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, dl DeadLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (topic, group_id, event_id, event_type, payload, reason, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dl.Topic,
		dl.GroupID,
		dl.EventID,
		dl.EventType,
		dl.Payload,
		dl.Reason,
		dl.FailedAt,
	)
	return err
}

func (s *SQLiteStore) List(ctx context.Context, topic string, limit int) ([]DeadLetter, error) {
	query := `
		SELECT topic, group_id, event_id, event_type, payload, reason, failed_at
		FROM dead_letters`
	args := []any{}
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.Topic, &dl.GroupID, &dl.EventID, &dl.EventType, &dl.Payload, &dl.Reason, &dl.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	return n, err
}
