package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/bifrost/internal/ir"
)

// ErrNotFound is returned when no evaluation has the requested id.
var ErrNotFound = errors.New("evaluation not found")

// Verdict is the outcome of one evaluation.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// Evaluation is one audit row.
type Evaluation struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	Fingerprint string    `json:"fingerprint"`
	Dialect     string    `json:"dialect"`
	Query       string    `json:"query"`
	Verdict     Verdict   `json:"verdict"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
	Validator   string    `json:"validator,omitempty"`
	Report      string    `json:"report,omitempty"` // canonical JSON, accepted rows only
	Version     string    `json:"guard_version"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordEvaluation appends an evaluation and returns it as stored.
// A missing ID is minted as a random UUID, a zero CreatedAt becomes now
// (UTC) and an empty Version becomes the running guard version.
// Re-recording an existing ID is a no-op.
func (s *Store) RecordEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Version == "" {
		ev.Version = ir.GuardVersion
	}
	switch ev.Verdict {
	case VerdictAccepted, VerdictRejected:
	default:
		return Evaluation{}, fmt.Errorf("record evaluation: invalid verdict %q", ev.Verdict)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
		(id, fingerprint, dialect, query, verdict, code, message, validator, report, guard_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Fingerprint,
		ev.Dialect,
		ev.Query,
		string(ev.Verdict),
		ev.Code,
		ev.Message,
		ev.Validator,
		ev.Report,
		ev.Version,
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Evaluation{}, fmt.Errorf("record evaluation: %w", err)
	}

	return s.GetEvaluation(ctx, ev.ID)
}

const selectColumns = `
	SELECT seq, id, fingerprint, dialect, query, verdict, code, message, validator, report, guard_version, created_at
	FROM evaluations`

// GetEvaluation reads one evaluation by id. Returns an error wrapping
// ErrNotFound when the id is unknown.
func (s *Store) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	ev, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, fmt.Errorf("get evaluation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Evaluation{}, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return ev, nil
}

// ListEvaluations returns the most recent evaluations, newest first.
// A limit <= 0 returns every row.
//
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) ListEvaluations(ctx context.Context, limit int) ([]Evaluation, error) {
	return s.list(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, sqlLimit(limit))
}

// ListByFingerprint returns every evaluation of the same input, oldest first.
func (s *Store) ListByFingerprint(ctx context.Context, fingerprint string) ([]Evaluation, error) {
	return s.list(ctx, selectColumns+` WHERE fingerprint = ? ORDER BY seq ASC`, fingerprint)
}

// CountByCode tallies rejected evaluations per error code.
func (s *Store) CountByCode(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, COUNT(*)
		FROM evaluations
		WHERE verdict = ?
		GROUP BY code
		ORDER BY code COLLATE BINARY ASC
	`, string(VerdictRejected))
	if err != nil {
		return nil, fmt.Errorf("count by code: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	evals := []Evaluation{}
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return evals, nil
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row scanner) (Evaluation, error) {
	var ev Evaluation
	var verdict, created string
	err := row.Scan(
		&ev.Seq,
		&ev.ID,
		&ev.Fingerprint,
		&ev.Dialect,
		&ev.Query,
		&verdict,
		&ev.Code,
		&ev.Message,
		&ev.Validator,
		&ev.Report,
		&ev.Version,
		&created,
	)
	if err != nil {
		return Evaluation{}, err
	}
	ev.Verdict = Verdict(verdict)
	if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Evaluation{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return ev, nil
}
