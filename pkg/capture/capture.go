// Package capture installs and drives the two ways a job learns which
// rows changed: realtime triggers that land change rows in a table, and
// a cron-driven scan that re-derives the changed set from the source
// table's update column.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/queue"
)

// InstallRealtime creates the trigger function and AFTER INSERT/UPDATE
// triggers that feed a realtime job's changes into the landing table.
func InstallRealtime(ctx context.Context, pool *pgxpool.Pool, name string, src job.Source) error {
	fnStmt, err := ddl.CreateTriggerFunction(name, src)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, fnStmt); err != nil {
		return fmt.Errorf("installing trigger function for %q: %w", name, err)
	}

	for _, event := range []string{"INSERT", "UPDATE"} {
		stmt, err := ddl.CreateRowTrigger(name, src, event)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("installing %s trigger for %q: %w", event, name, err)
		}
	}
	return nil
}

// UninstallRealtime drops a realtime job's triggers and trigger
// function. Safe to call even if the job never used realtime capture.
func UninstallRealtime(ctx context.Context, pool *pgxpool.Pool, name string, src job.Source) error {
	stmts, err := ddl.DropTriggers(name, src)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("uninstalling realtime capture for %q: %w", name, err)
		}
	}
	return nil
}

// drainBatchSize bounds how many landing-table rows one drain call
// moves into pgmq, so one large source-table UPDATE can't starve other
// jobs' queue reads.
const drainBatchSize = 500

// DrainCaptureQueue moves up to drainBatchSize rows in total (oldest
// first, across all jobs) out of the shared realtime landing table
// (vectorize._capture_queue) and into
// each job's pgmq queue, then deletes the drained rows. This is the
// bridge a trigger-fired change needs because PL/pgSQL trigger
// functions cannot themselves call out to a queue.
func DrainCaptureQueue(ctx context.Context, pool *pgxpool.Pool, q *queue.Client, logger *zap.Logger) error {
	rows, err := pool.Query(ctx, `
SELECT id, job_name, pk FROM vectorize._capture_queue
ORDER BY id
LIMIT $1;`, drainBatchSize)
	if err != nil {
		return fmt.Errorf("querying capture queue: %w", err)
	}

	type captured struct {
		id      int64
		jobName string
		pk      string
	}
	var batch []captured
	for rows.Next() {
		var c captured
		if err := rows.Scan(&c.id, &c.jobName, &c.pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning capture row: %w", err)
		}
		batch = append(batch, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating capture queue: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	byJob := make(map[string][]string)
	var ids []int64
	for _, c := range batch {
		byJob[c.jobName] = append(byJob[c.jobName], c.pk)
		ids = append(ids, c.id)
	}

	for name, pks := range byJob {
		bodies := make([]any, len(pks))
		for i, pk := range pks {
			bodies[i] = map[string]string{"pk": pk}
		}
		if _, err := q.SendBatch(ctx, job.QueueName(name), bodies); err != nil {
			return fmt.Errorf("draining captured rows for %q: %w", name, err)
		}
	}

	if _, err := pool.Exec(ctx, `DELETE FROM vectorize._capture_queue WHERE id = ANY($1);`, ids); err != nil {
		return fmt.Errorf("clearing drained capture rows: %w", err)
	}

	logger.Debug("drained capture queue", zap.Int("rows", len(batch)), zap.Int("jobs", len(byJob)))
	return nil
}

// EntryID identifies a registered cron entry, returned by RegisterScan
// so a caller can later Unregister it (a job's schedule changed, or the
// job was deleted).
type EntryID = cron.EntryID

// Scheduler runs one cron.v3 entry per scheduled job, calling the scan
// function registered for that job on each tick. It does not stamp
// last_completion itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a Scheduler. Call Start to begin ticking.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), logger: logger}
}

// ScanFunc enqueues the changed primary keys for one job. Registered
// per job by RegisterScan.
type ScanFunc func(ctx context.Context) error

// RegisterScan adds a cron entry for j that calls scan on every tick of
// j.Schedule. Returns an error if j.Schedule is not a valid cron
// expression (or is the realtime sentinel, which has no cron entry).
func (s *Scheduler) RegisterScan(j job.Job, scan ScanFunc) (EntryID, error) {
	if j.Schedule.IsRealtime() {
		return 0, fmt.Errorf("job %q is realtime, not scheduled", j.Name)
	}

	id, err := s.cron.AddFunc(string(j.Schedule), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := scan(ctx); err != nil {
			s.logger.Error("scheduled scan failed", zap.String("job", j.Name), zap.Error(err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("registering cron schedule %q for job %q: %w", j.Schedule, j.Name, err)
	}
	return id, nil
}

// Unregister removes a previously registered cron entry. Safe to call
// with an entry ID that no longer exists.
func (s *Scheduler) Unregister(id EntryID) { s.cron.Remove(id) }

// Start begins running registered cron entries in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running entries to finish and stops the scheduler.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
