// Package registry implements job creation, deletion, and description:
// the only component that mutates a job's generated storage, indexes,
// and change capture, and the only writer of vectorize.job metadata
// besides the worker's last_completion stamp.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/capture"
	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/eventstream"
	"github.com/paperlane/vectorize/pkg/eventstream/nop"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/queue"
	"github.com/paperlane/vectorize/pkg/verror"
)

// Registry orchestrates the metastore, generated storage, the work
// queue, and change capture behind create/delete/describe.
type Registry struct {
	meta      *metastore.Store
	queue     *queue.Client
	providers embedprovider.Config
	logger    *zap.Logger
	events    eventstream.Publisher
}

// New creates a Registry. providers supplies the credentials every
// embedding provider variant needs to resolve a transformer's
// dimension during Create. events may be nil, in which case lifecycle
// events are discarded.
func New(meta *metastore.Store, q *queue.Client, providers embedprovider.Config, logger *zap.Logger, events eventstream.Publisher) *Registry {
	if events == nil {
		events = nop.NewPublisher()
	}
	return &Registry{meta: meta, queue: q, providers: providers, logger: logger, events: events}
}

// Create validates spec, materializes its generated storage, indexes,
// and change capture, and enqueues an initial full backfill. Every side
// effect is idempotent and rolled back in reverse order if a later step
// fails, including the metadata row itself.
func (r *Registry) Create(ctx context.Context, spec job.Spec) (job.Job, error) {
	if err := ddl.CheckIdentifiers(spec.Name, spec.Source.Schema, spec.Source.Relation, spec.Source.PrimaryKey); err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
	}
	if err := ddl.CheckIdentifiers(spec.Source.TextColumns...); err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
	}
	if spec.Schedule.IsRealtime() && spec.TableMethod != job.TableMethodJoin {
		return job.Job{}, fmt.Errorf("%w: realtime schedule requires table_method=join", verror.ErrInvalidRequest)
	}

	if _, err := r.meta.Get(ctx, spec.Name); err == nil {
		return job.Job{}, fmt.Errorf("job %q: %w", spec.Name, verror.ErrAlreadyExists)
	} else if !errors.Is(err, verror.ErrNotFound) {
		return job.Job{}, err
	}

	pkType, err := r.columnType(ctx, spec.Source.Schema, spec.Source.Relation, spec.Source.PrimaryKey)
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: primary key %q: %v", verror.ErrInvalidRequest, spec.Source.PrimaryKey, err)
	}
	spec.Source.PrimaryKeyType = pkType

	if spec.Source.UpdateColumn != "" {
		if err := ddl.CheckIdentifier(spec.Source.UpdateColumn); err != nil {
			return job.Job{}, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
		}
		updType, err := r.columnType(ctx, spec.Source.Schema, spec.Source.Relation, spec.Source.UpdateColumn)
		if err != nil {
			return job.Job{}, fmt.Errorf("%w: update_column %q: %v", verror.ErrInvalidRequest, spec.Source.UpdateColumn, err)
		}
		if updType != "timestamp with time zone" {
			return job.Job{}, fmt.Errorf("%w: update_column %q must be timestamptz, got %q", verror.ErrInvalidRequest, spec.Source.UpdateColumn, updType)
		}
	}

	variant, model, err := embedprovider.ParseTransformer(spec.Transformer)
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
	}
	provider, err := embedprovider.New(variant, r.providers)
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
	}
	dimension, err := provider.Dimension(ctx, model)
	if err != nil {
		return job.Job{}, fmt.Errorf("resolving dimension for transformer %q: %w", spec.Transformer, err)
	}

	params, err := job.Params(spec, dimension)
	if err != nil {
		return job.Job{}, fmt.Errorf("freezing job params: %w", err)
	}
	j := job.Job{
		Name:        spec.Name,
		Source:      spec.Source,
		Transformer: spec.Transformer,
		Dimension:   dimension,
		SearchAlg:   spec.SearchAlg,
		TableMethod: spec.TableMethod,
		Schedule:    spec.Schedule,
		Params:      params,
	}

	var rollback []func(context.Context) error
	unwind := func() {
		for i := len(rollback) - 1; i >= 0; i-- {
			if err := rollback[i](ctx); err != nil {
				r.logger.Error("rollback step failed", zap.String("job", spec.Name), zap.Error(err))
			}
		}
	}

	queueName := job.QueueName(spec.Name)
	if err := r.queue.Create(ctx, queueName); err != nil {
		return job.Job{}, fmt.Errorf("creating work queue for %q: %w", spec.Name, err)
	}
	rollback = append(rollback, func(ctx context.Context) error { return r.queue.Drop(ctx, queueName) })

	if err := r.createStorage(ctx, j); err != nil {
		unwind()
		return job.Job{}, err
	}
	rollback = append(rollback, func(ctx context.Context) error { return r.dropStorage(ctx, j) })

	if err := r.createIndex(ctx, j); err != nil {
		unwind()
		return job.Job{}, err
	}
	rollback = append(rollback, func(ctx context.Context) error { return r.dropIndex(ctx, j) })

	inserted, err := r.meta.Insert(ctx, j)
	if err != nil {
		unwind()
		return job.Job{}, err
	}
	j = inserted
	name := j.Name
	rollback = append(rollback, func(ctx context.Context) error { return r.meta.Delete(ctx, name) })

	if j.Schedule.IsRealtime() {
		if err := capture.InstallRealtime(ctx, r.meta.Pool(), j.Name, j.Source); err != nil {
			unwind()
			return job.Job{}, fmt.Errorf("installing realtime capture for %q: %w", j.Name, err)
		}
		rollback = append(rollback, func(ctx context.Context) error {
			return capture.UninstallRealtime(ctx, r.meta.Pool(), j.Name, j.Source)
		})
	}

	if err := r.enqueueBackfill(ctx, j); err != nil {
		unwind()
		return job.Job{}, fmt.Errorf("enqueueing initial backfill for %q: %w", j.Name, err)
	}

	r.logger.Info("job created",
		zap.String("name", j.Name),
		zap.Int("dimension", j.Dimension),
		zap.String("table_method", j.TableMethod.String()),
	)
	if err := r.events.Publish(ctx, &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeJobCreated,
		EventID:       eventstream.NewEventID(),
		EmittedAt:     time.Now(),
		JobName:       j.Name,
		Payload: eventstream.JobCreatedPayload{
			Schema:      j.Source.Schema,
			Relation:    j.Source.Relation,
			TextColumns: j.Source.TextColumns,
			Transformer: j.Transformer,
			TableMethod: j.TableMethod.String(),
			Realtime:    j.Schedule.IsRealtime(),
			Schedule:    string(j.Schedule),
		},
	}); err != nil {
		r.logger.Warn("publishing job.created event", zap.String("name", j.Name), zap.Error(err))
	}
	return j, nil
}

// Delete removes a job's realtime triggers (if any), HNSW index,
// generated storage, queue, and metadata row, in that order.
func (r *Registry) Delete(ctx context.Context, name string) error {
	j, err := r.meta.Get(ctx, name)
	if err != nil {
		return err
	}

	if j.Schedule.IsRealtime() {
		if err := capture.UninstallRealtime(ctx, r.meta.Pool(), j.Name, j.Source); err != nil {
			return fmt.Errorf("uninstalling realtime capture for %q: %w", name, err)
		}
	}
	if err := r.dropIndex(ctx, j); err != nil {
		return err
	}
	if err := r.dropStorage(ctx, j); err != nil {
		return err
	}
	if err := r.queue.Drop(ctx, job.QueueName(name)); err != nil {
		return fmt.Errorf("dropping work queue for %q: %w", name, err)
	}
	if err := r.meta.Delete(ctx, name); err != nil {
		return err
	}

	r.logger.Info("job deleted", zap.String("name", name))
	if err := r.events.Publish(ctx, &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeJobDeleted,
		EventID:       eventstream.NewEventID(),
		EmittedAt:     time.Now(),
		JobName:       name,
		Payload:       eventstream.JobDeletedPayload{DroppedStorage: true},
	}); err != nil {
		r.logger.Warn("publishing job.deleted event", zap.String("name", name), zap.Error(err))
	}
	return nil
}

// Describe returns a job's current definition plus its live queue
// depth, for the describe API/CLI surface.
func (r *Registry) Describe(ctx context.Context, name string) (job.Job, int64, error) {
	j, err := r.meta.Get(ctx, name)
	if err != nil {
		return job.Job{}, 0, err
	}
	depth, err := r.queue.QueueLength(ctx, job.QueueName(name))
	if err != nil {
		return job.Job{}, 0, fmt.Errorf("fetching queue depth for %q: %w", name, err)
	}
	return j, depth, nil
}

func (r *Registry) createStorage(ctx context.Context, j job.Job) error {
	switch j.TableMethod {
	case job.TableMethodJoin:
		stmt, err := ddl.CreateEmbeddingTable(j.Name, j.Source, j.Dimension)
		if err != nil {
			return err
		}
		if _, err := r.meta.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating embedding storage for %q: %w", j.Name, err)
		}
	default:
		stmts, err := ddl.AddAppendColumns(j.Name, j.Source, j.Dimension)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := r.meta.Pool().Exec(ctx, stmt); err != nil {
				return fmt.Errorf("creating embedding storage for %q: %w", j.Name, err)
			}
		}
	}
	return nil
}

func (r *Registry) dropStorage(ctx context.Context, j job.Job) error {
	stmts, err := ddl.DropStorage(j.Name, j.TableMethod, j.Source)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := r.meta.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("dropping embedding storage for %q: %w", j.Name, err)
		}
	}
	return nil
}

func (r *Registry) createIndex(ctx context.Context, j job.Job) error {
	stmt, err := ddl.CreateHNSWIndex(j.Name, j.TableMethod, j.Source, j.SearchAlg)
	if err != nil {
		return err
	}
	if _, err := r.meta.Pool().Exec(ctx, stmt); err != nil {
		return fmt.Errorf("creating index for %q: %w", j.Name, err)
	}
	return nil
}

func (r *Registry) dropIndex(ctx context.Context, j job.Job) error {
	stmt, err := ddl.DropHNSWIndex(j.Name, j.TableMethod, j.Source)
	if err != nil {
		return err
	}
	if _, err := r.meta.Pool().Exec(ctx, stmt); err != nil {
		return fmt.Errorf("dropping index for %q: %w", j.Name, err)
	}
	return nil
}

// enqueueBackfill sends every current primary key onto the job's queue,
// since NewRowsQuery with no update_column and no embeddings yet always
// returns the full table.
func (r *Registry) enqueueBackfill(ctx context.Context, j job.Job) error {
	query, err := ddl.NewRowsQuery(j.Name, j.TableMethod, j.Source)
	if err != nil {
		return err
	}

	rows, err := r.meta.Pool().Query(ctx, query)
	if err != nil {
		return fmt.Errorf("scanning backfill rows: %w", err)
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return fmt.Errorf("scanning backfill pk: %w", err)
		}
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating backfill rows: %w", err)
	}
	if len(pks) == 0 {
		return nil
	}

	const batchSize = 500
	for start := 0; start < len(pks); start += batchSize {
		end := min(start+batchSize, len(pks))
		bodies := make([]any, end-start)
		for i, pk := range pks[start:end] {
			bodies[i] = map[string]string{"pk": pk}
		}
		if _, err := r.queue.SendBatch(ctx, job.QueueName(j.Name), bodies); err != nil {
			return fmt.Errorf("sending backfill batch: %w", err)
		}
	}
	return nil
}

func (r *Registry) columnType(ctx context.Context, schema, relation, column string) (string, error) {
	row := r.meta.Pool().QueryRow(ctx, `
SELECT data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 AND column_name = $3;`,
		schema, relation, column,
	)
	var dataType string
	if err := row.Scan(&dataType); err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("column %s.%s.%s does not exist", schema, relation, column)
		}
		return "", fmt.Errorf("looking up column %s.%s.%s: %w", schema, relation, column, err)
	}
	return dataType, nil
}

