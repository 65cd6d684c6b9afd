package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/opensec-dev/bastion/internal/redact"
	"github.com/opensec-dev/bastion/internal/scorer"
)

// SQLite mirrors the audit trail into a local database so external
// tooling can query it without parsing JSONL. It is an optional backend;
// the JSONL trail remains the primary record.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the mirror database at path and applies
// the schema.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing handle and applies the schema. The store
// takes ownership of the handle; Close closes it.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			timestamp TEXT,
			type TEXT,
			agent TEXT,
			capability TEXT,
			decision TEXT,
			reason_code TEXT,
			score REAL,
			engines JSON,
			prompt TEXT,
			detail TEXT,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_request ON audit_events(request_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Write(event Event) error {
	event.Prompt = redact.All(event.Prompt)

	var enginesJSON string
	if len(event.Engines) > 0 {
		data, err := json.Marshal(event.Engines)
		if err != nil {
			return err
		}
		enginesJSON = string(data)
	}

	query := `INSERT INTO audit_events (
		id, request_id, timestamp, type, agent, capability, decision, reason_code, score, engines, prompt, detail, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(context.Background(), query,
		event.ID, event.RequestID, event.Timestamp, string(event.Type), event.Agent,
		event.Capability, event.Decision, event.ReasonCode, event.Score, enginesJSON,
		event.Prompt, event.Detail, event.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, request_id, timestamp, type, agent, capability, decision, reason_code, score, engines, prompt, detail, error
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// ByRequest returns every event recorded for one request, oldest first.
func (s *SQLite) ByRequest(ctx context.Context, requestID string) ([]Event, error) {
	query := `
		SELECT id, request_id, timestamp, type, agent, capability, decision, reason_code, score, engines, prompt, detail, error
		FROM audit_events
		WHERE request_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanEventRow(rows *sql.Rows) (Event, error) {
	var (
		e           Event
		requestID   sql.NullString
		agent       sql.NullString
		capability  sql.NullString
		decision    sql.NullString
		reasonCode  sql.NullString
		score       sql.NullFloat64
		enginesJSON sql.NullString
		prompt      sql.NullString
		detail      sql.NullString
		errText     sql.NullString
		typ         string
	)
	err := rows.Scan(&e.ID, &requestID, &e.Timestamp, &typ, &agent, &capability,
		&decision, &reasonCode, &score, &enginesJSON, &prompt, &detail, &errText)
	if err != nil {
		return Event{}, err
	}
	e.RequestID = requestID.String
	e.Type = Type(typ)
	e.Agent = agent.String
	e.Capability = capability.String
	e.Decision = decision.String
	e.ReasonCode = reasonCode.String
	if score.Valid {
		v := score.Float64
		e.Score = &v
	}
	if enginesJSON.Valid && enginesJSON.String != "" {
		var engines []scorer.ScoreResult
		if err := json.Unmarshal([]byte(enginesJSON.String), &engines); err == nil {
			e.Engines = engines
		}
	}
	e.Prompt = prompt.String
	e.Detail = detail.String
	e.Error = errText.String
	return e, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
