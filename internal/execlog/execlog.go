// Package execlog persists one append-only record per function
// execution. Records are never mutated or deleted here; retention is an
// operational concern outside this service.
package execlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Origin records how an execution was triggered.
type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginAuto     Origin = "auto"
	OriginManual   Origin = "manual"
)

// Execution status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record is one execution, success or failure.
type Record struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Function   string         `json:"function"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Status     string         `json:"status"`
	Origin     Origin         `json:"origin"`
	Confidence *int           `json:"confidence,omitempty"`
}

// Store is the sqlite-backed execution log.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS function_executions (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMP NOT NULL,
	function   TEXT NOT NULL,
	arguments  TEXT,
	result     TEXT,
	error      TEXT,
	status     TEXT NOT NULL,
	origin     TEXT NOT NULL,
	confidence INTEGER
);
CREATE INDEX IF NOT EXISTS idx_function_executions_ts ON function_executions(ts);
`

// Open opens (creating if needed) the execution log database at path.
// Use ":memory:" for an ephemeral log.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open execution log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init execution log schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

type row struct {
	ID         string         `db:"id"`
	TS         time.Time      `db:"ts"`
	Function   string         `db:"function"`
	Arguments  sql.NullString `db:"arguments"`
	Result     sql.NullString `db:"result"`
	Error      sql.NullString `db:"error"`
	Status     string         `db:"status"`
	Origin     string         `db:"origin"`
	Confidence sql.NullInt64  `db:"confidence"`
}

// Append writes one record. The record's ID and timestamp are filled in
// when empty.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var args, result sql.NullString
	if len(rec.Arguments) > 0 {
		data, err := json.Marshal(rec.Arguments)
		if err != nil {
			return fmt.Errorf("marshal arguments: %w", err)
		}
		args = sql.NullString{String: string(data), Valid: true}
	}
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}
	var confidence sql.NullInt64
	if rec.Confidence != nil {
		confidence = sql.NullInt64{Int64: int64(*rec.Confidence), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO function_executions (
			id, ts, function, arguments, result, error, status, origin, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp,
		rec.Function,
		args,
		result,
		sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		rec.Status,
		string(rec.Origin),
		confidence,
	)
	if err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest last.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, ts, function, arguments, result, error, status, origin, confidence
		FROM function_executions
		ORDER BY ts DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution records: %w", err)
	}

	out := make([]Record, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		rec := Record{
			ID:        r.ID,
			Timestamp: r.TS,
			Function:  r.Function,
			Status:    r.Status,
			Origin:    Origin(r.Origin),
		}
		if r.Arguments.Valid {
			json.Unmarshal([]byte(r.Arguments.String), &rec.Arguments)
		}
		if r.Result.Valid {
			json.Unmarshal([]byte(r.Result.String), &rec.Result)
		}
		if r.Error.Valid {
			rec.Error = r.Error.String
		}
		if r.Confidence.Valid {
			c := int(r.Confidence.Int64)
			rec.Confidence = &c
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountByStatus returns the number of records per status value.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS n
		FROM function_executions
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count execution records: %w", err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
