package journal

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loomrun/coreagent/pkg/models"
)

// SQLiteStore is an additive, optional session journal backend (spec
// 4.K): the same append-only, insertion-order-preserving contract as
// JSONLStore, backed by a SQLite table instead of a flat file, for
// deployments that want a single durable store shared with other
// SQLite-resident state rather than a bare file on disk.
//
// Every row is identified by a generated record id plus the {role,
// timestamp} (or {role, toolCallId} for tool results) key the journal
// format specifies; insertion order is recovered by an autoincrement
// sequence column rather than by timestamp, since two records can share
// a timestamp.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed journal at
// path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_records (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id   TEXT NOT NULL,
			role        TEXT NOT NULL,
			tool_call_id TEXT,
			timestamp   DATETIME NOT NULL,
			data        TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("journal: create table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_records_role ON journal_records(role)`)
	if err != nil {
		return fmt.Errorf("journal: create index: %w", err)
	}
	return nil
}

// Append inserts one message record keyed by role, timestamp, and (for
// tool results) toolCallId, with a fresh record id.
func (s *SQLiteStore) Append(m models.Message) error {
	data, err := models.MarshalMessage(m)
	if err != nil {
		return fmt.Errorf("journal: marshal %T: %w", m, err)
	}

	var toolCallID sql.NullString
	if tr, ok := m.(models.ToolResult); ok {
		toolCallID = sql.NullString{String: tr.ToolCallID, Valid: true}
	}

	_, err = s.db.Exec(
		`INSERT INTO journal_records (record_id, role, tool_call_id, timestamp, data) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), m.Kind(), toolCallID, m.Timestamp(), string(data),
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// ReadAll reconstructs the message list in insertion (seq) order.
func (s *SQLiteStore) ReadAll() (models.MessageList, error) {
	rows, err := s.db.Query(`SELECT data FROM journal_records ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	out := models.MessageList{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		m, err := models.UnmarshalMessage([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("journal: corrupt record: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
