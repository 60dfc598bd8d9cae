package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Postgres stores runs in a single runs table.
type Postgres struct {
	db DBTX
}

var _ RunStore = (*Postgres)(nil)

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    language    TEXT NOT NULL,
    source_code TEXT NOT NULL,
    stdin       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending',
    output      TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS runs_pending_idx ON runs (created_at) WHERE status = 'pending';
`

// Migrate creates the runs table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("migrate runs table: %w", err)
	}
	return nil
}

const runColumns = `id, language, source_code, stdin, status, output, created_at, updated_at`

const createRun = `
INSERT INTO runs (language, source_code, stdin)
VALUES ($1, $2, $3)
RETURNING ` + runColumns

func (p *Postgres) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	row := p.db.QueryRow(ctx, createRun, arg.Language, arg.SourceCode, arg.Stdin)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

const getRun = `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

func (p *Postgres) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	run, err := scanRun(p.db.QueryRow(ctx, getRun, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

const claimNextRun = `
UPDATE runs SET status = 'running', updated_at = now()
WHERE id = (
    SELECT id FROM runs
    WHERE status = 'pending'
    ORDER BY created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + runColumns

func (p *Postgres) ClaimNextRun(ctx context.Context) (Run, error) {
	run, err := scanRun(p.db.QueryRow(ctx, claimNextRun))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNoPendingRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("claim run: %w", err)
	}
	return run, nil
}

const finishRun = `
UPDATE runs SET status = 'finished', output = $2, updated_at = now()
WHERE id = $1
RETURNING ` + runColumns

func (p *Postgres) FinishRun(ctx context.Context, id uuid.UUID, output string) (Run, error) {
	run, err := scanRun(p.db.QueryRow(ctx, finishRun, id, output))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("finish run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	var status string
	err := row.Scan(
		&r.ID,
		&r.Language,
		&r.SourceCode,
		&r.Stdin,
		&status,
		&r.Output,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	r.Status = RunStatus(status)
	return r, err
}
