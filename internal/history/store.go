// Package history persists workflow runs to Postgres so `forge context`
// can answer against closed, historical runs as well as the one in the
// current artifact store (spec.md §4.9, "Done/Failed are durable"). It is
// an optional collaborator: a nil *Store means history is disabled and
// every method on it is a no-op.
package history

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperion-agent/contractforge/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a connection pool to the run-history database.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore dials dsn and verifies the connection is alive.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, model.NewError(model.KindConfigInvalid, "failed to parse history DSN", err)
	}

	pool, err := pgxpool.NewWithConfig(dialCtx, poolConfig)
	if err != nil {
		return nil, model.NewError(model.KindConfigInvalid, "failed to create history connection pool", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, model.NewError(model.KindNetworkUnreachable, "failed to ping history database", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies every pending migration under migrations/.
func (s *Store) Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run history migrations: %w", err)
	}
	return nil
}

// Record upserts the full current state of a run, keyed on RunID. Called
// after every stage transition so a crash mid-run still leaves the last
// known stage queryable (spec.md §9 "durable progress, not all-or-nothing").
func (s *Store) Record(ctx context.Context, state *model.WorkflowState) error {
	if s == nil {
		return nil
	}
	network, err := json.Marshal(state.Network)
	if err != nil {
		return fmt.Errorf("marshal network: %w", err)
	}
	bypasses, err := json.Marshal(state.Bypasses)
	if err != nil {
		return fmt.Errorf("marshal bypasses: %w", err)
	}
	artifacts, err := json.Marshal(state.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	errs, err := json.Marshal(state.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (run_id, stage, prompt, network, bypasses, artifacts, errors, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			artifacts = EXCLUDED.artifacts,
			errors = EXCLUDED.errors,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		string(state.RunID), string(state.Stage), state.Prompt,
		network, bypasses, artifacts, errs,
		state.StartedAt, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert workflow run: %w", err)
	}
	return nil
}

// Get retrieves a single run by id, or (nil, nil) if it has no history.
func (s *Store) Get(ctx context.Context, runID model.RunID) (*model.WorkflowState, error) {
	if s == nil {
		return nil, nil
	}
	query := `
		SELECT run_id, stage, prompt, network, bypasses, artifacts, errors, started_at, updated_at
		FROM workflow_runs WHERE run_id = $1`

	state, err := scanRow(s.pool.QueryRow(ctx, query, string(runID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow run: %w", err)
	}
	return state, nil
}

// List returns the most recent runs, newest first, bounded by limit.
func (s *Store) List(ctx context.Context, limit int) ([]*model.WorkflowState, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, stage, prompt, network, bypasses, artifacts, errors, started_at, updated_at
		FROM workflow_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	defer rows.Close()

	var out []*model.WorkflowState
	for rows.Next() {
		state, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// row is the subset of pgx.Row/pgx.Rows a single scan needs.
type row interface {
	Scan(dest ...interface{}) error
}

func scanRow(r row) (*model.WorkflowState, error) {
	var (
		state             model.WorkflowState
		runID, stage      string
		network, bypasses []byte
		artifacts, errs   []byte
	)
	if err := r.Scan(&runID, &stage, &state.Prompt, &network, &bypasses, &artifacts, &errs, &state.StartedAt, &state.UpdatedAt); err != nil {
		return nil, err
	}
	state.RunID = model.RunID(runID)
	state.Stage = model.Stage(stage)
	if err := json.Unmarshal(network, &state.Network); err != nil {
		return nil, fmt.Errorf("unmarshal network: %w", err)
	}
	if err := json.Unmarshal(bypasses, &state.Bypasses); err != nil {
		return nil, fmt.Errorf("unmarshal bypasses: %w", err)
	}
	state.Artifacts = make(map[model.Stage]string)
	if err := json.Unmarshal(artifacts, &state.Artifacts); err != nil {
		return nil, fmt.Errorf("unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal(errs, &state.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return &state, nil
}
