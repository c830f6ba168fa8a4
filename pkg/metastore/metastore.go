// Package metastore persists job definitions in Postgres. It is the
// system of record for everything pkg/registry, pkg/capture, pkg/worker
// and pkg/search need to know about a job beyond what's in its generated
// storage.
package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/verror"
)

// Store is a Postgres-backed job metadata store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New opens a connection pool to connStr and ensures the vectorize schema
// and job table exist.
func New(ctx context.Context, connStr string, logger *zap.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing database connection string: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewFromPool wraps an already-open pool, for tests and components that
// share one pool across the metastore, queue, and capture packages.
func NewFromPool(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range ddl.CreateSchema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running schema bootstrap statement: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx, ddl.CreateJobTable()); err != nil {
		return fmt.Errorf("creating job table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, ddl.CreateCaptureQueueTable()); err != nil {
		return fmt.Errorf("creating capture queue table: %w", err)
	}
	s.logger.Info("metastore schema ready")
	return nil
}

// Pool exposes the underlying pool for packages that need to run
// job-specific DDL or queries alongside metastore operations within the
// same transaction (pkg/registry, pkg/capture).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Insert persists a new job row. Returns verror.ErrAlreadyExists if the
// name is taken.
func (s *Store) Insert(ctx context.Context, j job.Job) (job.Job, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO vectorize.job (name, transformer, search_alg, table_method, schedule, params)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING job_id;`,
		j.Name, j.Transformer, j.SearchAlg.String(), j.TableMethod.String(), j.Schedule, j.Params,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return job.Job{}, fmt.Errorf("job %q: %w", j.Name, verror.ErrAlreadyExists)
		}
		return job.Job{}, fmt.Errorf("inserting job %q: %w", j.Name, err)
	}
	j.ID = id

	s.logger.Info("job inserted", zap.String("name", j.Name), zap.Int64("job_id", id))
	return j, nil
}

// Get fetches a job by name, decoding its frozen params back into Source
// and Dimension. Returns verror.ErrNotFound if no such job exists.
func (s *Store) Get(ctx context.Context, name string) (job.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT job_id, name, transformer, search_alg, table_method, schedule, params, last_completion
FROM vectorize.job WHERE name = $1;`, name)

	var j job.Job
	var searchAlg, tableMethod string
	if err := row.Scan(&j.ID, &j.Name, &j.Transformer, &searchAlg, &tableMethod, &j.Schedule, &j.Params, &j.LastCompletion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, fmt.Errorf("job %q: %w", name, verror.ErrNotFound)
		}
		return job.Job{}, fmt.Errorf("fetching job %q: %w", name, err)
	}

	alg, err := job.ParseSearchAlg(searchAlg)
	if err != nil {
		return job.Job{}, fmt.Errorf("job %q: %w", name, err)
	}
	j.SearchAlg = alg

	method, err := job.ParseTableMethod(tableMethod)
	if err != nil {
		return job.Job{}, fmt.Errorf("job %q: %w", name, err)
	}
	j.TableMethod = method

	var snapshot struct {
		Source    job.Source `json:"source"`
		Dimension int        `json:"dimension"`
	}
	if err := json.Unmarshal(j.Params, &snapshot); err != nil {
		return job.Job{}, fmt.Errorf("job %q: decoding frozen params: %w", name, err)
	}
	j.Source = snapshot.Source
	j.Dimension = snapshot.Dimension

	return j, nil
}

// List returns every job, ordered by name.
func (s *Store) List(ctx context.Context) ([]job.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM vectorize.job ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning job name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	jobs := make([]job.Job, 0, len(names))
	for _, name := range names {
		j, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Delete removes a job row. Returns verror.ErrNotFound if no such job
// exists.
func (s *Store) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vectorize.job WHERE name = $1;`, name)
	if err != nil {
		return fmt.Errorf("deleting job %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %q: %w", name, verror.ErrNotFound)
	}
	s.logger.Info("job deleted", zap.String("name", name))
	return nil
}

// StampLastCompletion records that a scheduled full-table pass for name
// finished successfully. Realtime change capture never calls this; per
// the job model, last_completion tracks only cron-initiated passes.
func (s *Store) StampLastCompletion(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vectorize.job SET last_completion = now() WHERE name = $1;`, name)
	if err != nil {
		return fmt.Errorf("stamping last_completion for %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %q: %w", name, verror.ErrNotFound)
	}
	return nil
}
