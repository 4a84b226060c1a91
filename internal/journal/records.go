package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/vigil/internal/engine"
)

// ErrDuplicateSession is returned by RecordSession for an id already journaled.
var ErrDuplicateSession = errors.New("session already recorded")

// Mutation is one journaled store mutation.
type Mutation struct {
	Seq    int64           `json:"seq"`
	Action string          `json:"action"`
	State  json.RawMessage `json:"state"`
}

// Session is one journaled session outcome.
type Session struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Outcome    string   `json:"outcome"`
	Violations []string `json:"violations"`
}

// AppendMutation records a mutation. Implements store.Journal.
//
// A seq already present is an error: the journal never rewrites history.
func (j *Journal) AppendMutation(ctx context.Context, seq int64, action string, state []byte) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO mutations (seq, action, state) VALUES (?, ?, ?)`,
		seq, action, string(state),
	)
	if err != nil {
		return fmt.Errorf("append mutation %d: %w", seq, err)
	}
	return nil
}

// RecordSession records a finished session. Implements engine.Recorder.
// Recording an id twice fails with ErrDuplicateSession and keeps the first row.
func (j *Journal) RecordSession(ctx context.Context, rec engine.SessionRecord) error {
	violations := rec.Violations
	if violations == nil {
		violations = []string{}
	}
	data, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, kind, outcome, violations)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Kind, rec.Outcome, string(data))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("record session %s: %w", rec.ID, ErrDuplicateSession)
	}
	if err != nil {
		return fmt.Errorf("record session %s: %w", rec.ID, err)
	}
	return nil
}

// Mutations returns every journaled mutation ordered by seq.
func (j *Journal) Mutations(ctx context.Context) ([]Mutation, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT seq, action, state FROM mutations ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	var out []Mutation
	for rows.Next() {
		var (
			m     Mutation
			state string
		)
		if err := rows.Scan(&m.Seq, &m.Action, &state); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		m.State = json.RawMessage(state)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM mutations`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// HasSession reports whether a session with id has been recorded.
func (j *Journal) HasSession(ctx context.Context, id string) (bool, error) {
	var one int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query session %s: %w", id, err)
	}
	return true, nil
}

// Sessions returns every recorded session in the order it was recorded.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, outcome, violations FROM sessions ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s          Session
			violations string
		)
		if err := rows.Scan(&s.ID, &s.Kind, &s.Outcome, &violations); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(violations), &s.Violations); err != nil {
			return nil, fmt.Errorf("decode violations for %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
