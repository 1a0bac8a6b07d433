package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bifrost/internal/ir"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func accepted(query string) Evaluation {
	return Evaluation{
		Fingerprint: "fp-" + query,
		Dialect:     "mysql",
		Query:       query,
		Verdict:     VerdictAccepted,
		Validator:   "orders",
		Report:      `{"stage":"validated"}`,
	}
}

func rejected(query, code string) Evaluation {
	return Evaluation{
		Fingerprint: "fp-" + query,
		Dialect:     "mysql",
		Query:       query,
		Verdict:     VerdictRejected,
		Code:        code,
		Message:     "rejected",
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='evaluations'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "evaluations", name)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/audit.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestMigrations_SetUserVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, migrations[len(migrations)-1].version, version)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_evaluations_verdict_code'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestRecordEvaluation_FillsDefaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	got, err := s.RecordEvaluation(ctx, accepted("SELECT orders.id FROM orders"))
	require.NoError(t, err)

	_, err = uuid.Parse(got.ID)
	assert.NoError(t, err, "id should be a UUID")
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, ir.GuardVersion, got.Version)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, VerdictAccepted, got.Verdict)
	assert.Equal(t, "orders", got.Validator)
	assert.Equal(t, `{"stage":"validated"}`, got.Report)
}

func TestRecordEvaluation_KeepsGivenFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	ev := rejected("SELECT x FROM t", string(ir.ErrCodeUnqualifiedColumn))
	ev.ID = "6f1c1f4e-0000-4000-8000-000000000001"
	ev.CreatedAt = at
	ev.Version = "0.0.9"

	got, err := s.RecordEvaluation(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, at.Equal(got.CreatedAt))
	assert.Equal(t, "0.0.9", got.Version)
	assert.Equal(t, "UNQUALIFIED_COLUMN", got.Code)
	assert.Empty(t, got.Report)
}

func TestRecordEvaluation_DuplicateIDIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := accepted("SELECT orders.id FROM orders")
	ev.ID = uuid.NewString()
	first, err := s.RecordEvaluation(ctx, ev)
	require.NoError(t, err)

	ev.Query = "something else"
	second, err := s.RecordEvaluation(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := s.ListEvaluations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordEvaluation_InvalidVerdict(t *testing.T) {
	s := createTestStore(t)

	ev := accepted("SELECT 1")
	ev.Verdict = "maybe"
	_, err := s.RecordEvaluation(context.Background(), ev)
	assert.ErrorContains(t, err, "invalid verdict")
}

func TestGetEvaluation_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetEvaluation(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListEvaluations_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := s.RecordEvaluation(ctx, accepted(q))
		require.NoError(t, err)
	}

	all, err := s.ListEvaluations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"q3", "q2", "q1"}, []string{all[0].Query, all[1].Query, all[2].Query})

	two, err := s.ListEvaluations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "q3", two[0].Query)
}

func TestListEvaluations_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	all, err := s.ListEvaluations(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestListByFingerprint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.RecordEvaluation(ctx, accepted("same"))
	require.NoError(t, err)
	_, err = s.RecordEvaluation(ctx, accepted("other"))
	require.NoError(t, err)
	_, err = s.RecordEvaluation(ctx, rejected("same", "ILLEGAL_TABLE"))
	require.NoError(t, err)

	got, err := s.ListByFingerprint(ctx, "fp-same")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, VerdictAccepted, got[0].Verdict)
	assert.Equal(t, VerdictRejected, got[1].Verdict)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestCountByCode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	evals := []Evaluation{
		accepted("a"),
		rejected("b", "ILLEGAL_TABLE"),
		rejected("c", "ILLEGAL_TABLE"),
		rejected("d", "UNQUALIFIED_COLUMN"),
	}
	for _, ev := range evals {
		_, err := s.RecordEvaluation(ctx, ev)
		require.NoError(t, err)
	}

	counts, err := s.CountByCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ILLEGAL_TABLE": 2, "UNQUALIFIED_COLUMN": 1}, counts)
}
