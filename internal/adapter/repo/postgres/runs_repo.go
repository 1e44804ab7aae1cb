package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// PgxPool is the subset of pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Schema creates the test_runs table and its listing index.
const Schema = `CREATE TABLE IF NOT EXISTS test_runs (
	id           TEXT PRIMARY KEY,
	host         TEXT NOT NULL,
	server       TEXT NOT NULL,
	date         TIMESTAMPTZ NOT NULL,
	elapsed_time DOUBLE PRECISION NOT NULL,
	tests        JSONB NOT NULL,
	results      JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS test_runs_server_date_idx ON test_runs (server, date DESC)`

// RunRepo persists test run documents.
type RunRepo struct{ Pool PgxPool }

// NewRunRepo constructs a RunRepo with the given pool.
func NewRunRepo(p PgxPool) *RunRepo { return &RunRepo{Pool: p} }

// EnsureSchema creates the table when missing.
func (r *RunRepo) EnsureSchema(ctx domain.Context) error {
	if _, err := r.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("op=run.ensure_schema: %w", err)
	}
	return nil
}

// Insert stores run and returns its id, generating one when empty.
func (r *RunRepo) Insert(ctx domain.Context, run domain.TestRun) (string, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Insert")
	defer span.End()

	id := run.ID
	if id == "" {
		id = ulid.Make().String()
	}
	date := run.Date
	if date.IsZero() {
		date = time.Now()
	}
	tests, err := json.Marshal(run.Tests)
	if err != nil {
		return "", fmt.Errorf("op=run.insert: %w", err)
	}
	results := run.Results
	if results == nil {
		results = map[domain.Outcome][]domain.CaseResult{}
	}
	resJSON, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("op=run.insert: %w", err)
	}
	q := `INSERT INTO test_runs (id, host, server, date, elapsed_time, tests, results) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, run.Host, run.Server, date.UTC(), run.ElapsedTime, tests, resJSON); err != nil {
		return "", fmt.Errorf("op=run.insert: %w", err)
	}
	return id, nil
}

// List returns runs matching q, newest first. A zero Limit returns all rows.
func (r *RunRepo) List(ctx domain.Context, q domain.RunQuery) ([]domain.TestRun, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.List")
	defer span.End()

	sql, args := listQuery(q)
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("op=run.list: %w", err)
	}
	defer rows.Close()

	var out []domain.TestRun
	for rows.Next() {
		var (
			run     domain.TestRun
			tests   []byte
			results []byte
		)
		if err := rows.Scan(&run.ID, &run.Host, &run.Server, &run.Date, &run.ElapsedTime, &tests, &results); err != nil {
			return nil, fmt.Errorf("op=run.list: scan: %w", err)
		}
		if err := json.Unmarshal(tests, &run.Tests); err != nil {
			return nil, fmt.Errorf("op=run.list: tests %s: %w", run.ID, err)
		}
		if len(results) > 0 {
			if err := json.Unmarshal(results, &run.Results); err != nil {
				return nil, fmt.Errorf("op=run.list: results %s: %w", run.ID, err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=run.list: %w", err)
	}
	return out, nil
}

func listQuery(q domain.RunQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.ID != "" {
		add("id = $%d", q.ID)
	}
	if q.Server != "" {
		add("server = $%d", q.Server)
	}
	if !q.Since.IsZero() {
		add("date >= $%d", q.Since.UTC())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, host, server, date, elapsed_time, tests, results FROM test_runs`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY date DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
