package telemetry

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"addintestserver/pkg/logger"
)

// Outcome values stored in usage_events.outcome.
const (
	OutcomeSuccess   = "success"
	OutcomeException = "exception"
)

// Record is one stored usage event.
type Record struct {
	ID         string
	Event      string
	Outcome    string
	Message    string
	RecordedAt time.Time
}

// SQLiteSink persists usage events to a local SQLite database so test runs
// can be inspected after the fact.
type SQLiteSink struct {
	DB  *sql.DB
	now func() time.Time
}

// OpenSQLiteSink opens (creating if needed) the database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{DB: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			outcome TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_event ON usage_events(event, recorded_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteSink) RecordSuccess(event string) {
	s.insert(event, OutcomeSuccess, "")
}

func (s *SQLiteSink) RecordException(event, message string) {
	s.insert(event, OutcomeException, message)
}

func (s *SQLiteSink) insert(event, outcome, message string) {
	_, err := s.DB.Exec(
		`INSERT INTO usage_events (id, event, outcome, message, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), event, outcome, message, s.now().UnixNano(),
	)
	if err != nil {
		logger.Warn("[Telemetry] failed to store usage event", "event", event, "error", err)
	}
}

// Events returns stored events oldest first.
func (s *SQLiteSink) Events() ([]Record, error) {
	rows, err := s.DB.Query(
		`SELECT id, event, outcome, message, recorded_at FROM usage_events ORDER BY recorded_at, rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.Event, &rec.Outcome, &rec.Message, &ts); err != nil {
			return nil, err
		}
		rec.RecordedAt = time.Unix(0, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.DB.Close()
}
