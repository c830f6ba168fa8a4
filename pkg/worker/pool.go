// Package worker drains each job's pgmq queue, embeds the rows it names,
// and writes the resulting vectors back to generated storage. It is the
// only component that calls out to an embedding provider on the hot
// path, and the only writer of embedding columns.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/capture"
	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/eventstream"
	"github.com/paperlane/vectorize/pkg/eventstream/nop"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/queue"
)

const (
	defaultNumWorkers        = 3
	defaultReadBatchSize     = 10
	defaultVisibilityTimeout = 5 * time.Minute
	defaultMaxAttempts       = int32(5)
	defaultPollInterval      = 2 * time.Second
	defaultDrainInterval     = time.Second
)

// Config tunes the pool. Zero values fall back to defaults sized for a
// single-node deployment.
type Config struct {
	NumWorkers        int
	ReadBatchSize     int
	VisibilityTimeout time.Duration
	MaxAttempts       int32
	PollInterval      time.Duration
	DrainInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.ReadBatchSize <= 0 {
		c.ReadBatchSize = defaultReadBatchSize
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = defaultVisibilityTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = defaultDrainInterval
	}
	return c
}

// Pool runs a fixed number of worker goroutines over every active job's
// queue, plus one goroutine draining the realtime capture landing table,
// one dispatching job names to workers on a timer, and a cron scheduler
// that re-scans non-realtime jobs' source tables for changed rows.
type Pool struct {
	meta      *metastore.Store
	queue     *queue.Client
	providers embedprovider.Config
	logger    *zap.Logger
	cfg       Config
	events    eventstream.Publisher

	jobNames  chan string
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	scheduler *capture.Scheduler
	scheduled map[string]capture.EntryID
}

// NewPool builds a Pool. Call Start to begin processing. events may be
// nil, in which case lifecycle events are discarded.
func NewPool(meta *metastore.Store, q *queue.Client, providers embedprovider.Config, logger *zap.Logger, cfg Config, events eventstream.Publisher) *Pool {
	cfg = cfg.withDefaults()
	if events == nil {
		events = nop.NewPublisher()
	}
	return &Pool{
		meta:      meta,
		queue:     q,
		providers: providers,
		logger:    logger,
		cfg:       cfg,
		events:    events,
		jobNames:  make(chan string, cfg.NumWorkers),
		scheduled: make(map[string]capture.EntryID),
	}
}

// Start launches the dispatcher, the capture drainer, the scheduled-scan
// cron, and cfg.NumWorkers worker goroutines. Everything stops when Stop
// is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.scheduler = capture.NewScheduler(p.logger)
	p.scheduler.Start()

	p.wg.Add(2 + p.cfg.NumWorkers)
	go p.runDrainer(ctx)
	go p.runDispatcher(ctx)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		go p.runWorker(ctx)
	}
}

// Stop cancels every running goroutine, waits for them to exit, and
// stops the scheduled-scan cron.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}

func (p *Pool) runDrainer(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := capture.DrainCaptureQueue(ctx, p.meta.Pool(), p.queue, p.logger); err != nil {
				p.logger.Error("draining capture queue", zap.Error(err))
			}
		}
	}
}

func (p *Pool) runDispatcher(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := p.meta.List(ctx)
			if err != nil {
				p.logger.Error("listing jobs", zap.Error(err))
				continue
			}
			p.syncSchedules(jobs)
			for _, j := range jobs {
				select {
				case p.jobNames <- j.Name:
				default:
					p.logger.Debug("worker pool busy, skipping job this tick", zap.String("job", j.Name))
				}
			}
		}
	}
}

// syncSchedules registers a cron entry for every non-realtime job that
// doesn't already have one, and drops entries for jobs that no longer
// exist (deleted since the last tick). Only called from runDispatcher,
// so p.scheduled needs no locking.
func (p *Pool) syncSchedules(jobs []job.Job) {
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		seen[j.Name] = true
		if j.Schedule.IsRealtime() {
			continue
		}
		if _, ok := p.scheduled[j.Name]; ok {
			continue
		}
		name := j.Name
		id, err := p.scheduler.RegisterScan(j, func(ctx context.Context) error {
			return p.ScanJob(ctx, name)
		})
		if err != nil {
			p.logger.Error("registering scheduled scan", zap.String("job", name), zap.Error(err))
			continue
		}
		p.scheduled[name] = id
	}
	for name, id := range p.scheduled {
		if !seen[name] {
			p.scheduler.Unregister(id)
			delete(p.scheduled, name)
		}
	}
}

// ScanJob re-derives a scheduled job's changed primary keys from its
// source table's update column (if it has none: every key for join
// method, the keys with a NULL embedding for append method) and
// enqueues them, then deletes any join-method embedding rows whose
// source row no longer exists. Exported so a CLI "scan once" command
// can drive it directly, the same way ProcessJob drives one queue pass.
func (p *Pool) ScanJob(ctx context.Context, name string) error {
	j, err := p.meta.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("loading job %q: %w", name, err)
	}

	query, err := ddl.NewRowsQuery(j.Name, j.TableMethod, j.Source)
	if err != nil {
		return err
	}
	rows, err := p.meta.Pool().Query(ctx, query)
	if err != nil {
		return fmt.Errorf("scanning changed rows for %q: %w", name, err)
	}
	var pks []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning changed pk for %q: %w", name, err)
		}
		pks = append(pks, pk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating changed rows for %q: %w", name, err)
	}

	if len(pks) > 0 {
		const batchSize = 500
		qname := job.QueueName(name)
		for start := 0; start < len(pks); start += batchSize {
			end := min(start+batchSize, len(pks))
			bodies := make([]any, end-start)
			for i, pk := range pks[start:end] {
				bodies[i] = map[string]string{"pk": pk}
			}
			if _, err := p.queue.SendBatch(ctx, qname, bodies); err != nil {
				return fmt.Errorf("enqueueing changed rows for %q: %w", name, err)
			}
		}
	}

	if j.TableMethod == job.TableMethodJoin {
		stmt, err := ddl.StaleEmbeddingsQuery(j.Name, j.Source)
		if err != nil {
			return err
		}
		if _, err := p.meta.Pool().Exec(ctx, stmt); err != nil {
			return fmt.Errorf("cleaning stale embeddings for %q: %w", name, err)
		}
	}

	p.logger.Debug("scheduled scan complete", zap.String("job", name), zap.Int("changed", len(pks)))
	return nil
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-p.jobNames:
			if err := p.ProcessJob(ctx, name); err != nil {
				p.logger.Error("processing job", zap.String("job", name), zap.Error(err))
			}
		}
	}
}

// ProcessJob runs one pass over a job's queue: read a batch, embed the
// rows it names, write the vectors back, and delete or archive the
// messages. Exported so a CLI "run once" command can drive it directly
// without starting the full pool.
func (p *Pool) ProcessJob(ctx context.Context, name string) error {
	j, err := p.meta.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("loading job %q: %w", name, err)
	}

	variant, model, err := embedprovider.ParseTransformer(j.Transformer)
	if err != nil {
		return fmt.Errorf("parsing transformer for %q: %w", name, err)
	}
	provider, err := embedprovider.New(variant, p.providers)
	if err != nil {
		return fmt.Errorf("resolving provider for %q: %w", name, err)
	}

	qname := job.QueueName(name)
	msgs, err := p.queue.Read(ctx, qname, p.cfg.VisibilityTimeout, p.cfg.ReadBatchSize)
	if err != nil {
		return fmt.Errorf("reading queue for %q: %w", name, err)
	}
	if len(msgs) == 0 {
		p.maybeStampCompletion(ctx, j, qname)
		return nil
	}

	pkMsgIDs := make(map[string][]int64)
	readCt := make(map[int64]int32)
	for _, m := range msgs {
		var body struct {
			PK string `json:"pk"`
		}
		if err := json.Unmarshal(m.Body, &body); err != nil {
			p.logger.Error("decoding message body, archiving", zap.String("job", name), zap.Int64("msg_id", m.ID), zap.Error(err))
			if aerr := p.queue.Archive(ctx, qname, m.ID); aerr != nil {
				p.logger.Error("archiving undecodable message", zap.Int64("msg_id", m.ID), zap.Error(aerr))
			}
			continue
		}
		pkMsgIDs[body.PK] = append(pkMsgIDs[body.PK], m.ID)
		readCt[m.ID] = m.ReadCt
	}

	pks := make([]string, 0, len(pkMsgIDs))
	for pk := range pkMsgIDs {
		pks = append(pks, pk)
	}

	texts, err := p.fetchText(ctx, j.Source, pks)
	if err != nil {
		return fmt.Errorf("fetching row text for %q: %w", name, err)
	}

	// Rows deleted since their key was queued have nothing left to embed;
	// their messages are simply done.
	for _, pk := range pks {
		if _, ok := texts[pk]; ok {
			continue
		}
		for _, id := range pkMsgIDs[pk] {
			if err := p.queue.Delete(ctx, qname, id); err != nil {
				p.logger.Error("deleting message for vanished row", zap.String("job", name), zap.Int64("msg_id", id), zap.Error(err))
			}
		}
		delete(pkMsgIDs, pk)
	}

	// A row whose configured text_columns are all NULL/empty concatenates
	// to blank; there's nothing to embed, so leave its embedding column
	// NULL and just clear the message rather than calling the provider.
	for _, pk := range pks {
		if _, ok := pkMsgIDs[pk]; !ok {
			continue
		}
		if strings.TrimSpace(texts[pk]) != "" {
			continue
		}
		for _, id := range pkMsgIDs[pk] {
			if err := p.queue.Delete(ctx, qname, id); err != nil {
				p.logger.Error("deleting message for empty text", zap.String("job", name), zap.Int64("msg_id", id), zap.Error(err))
			}
		}
		delete(pkMsgIDs, pk)
	}

	livePks := make([]string, 0, len(pkMsgIDs))
	for pk := range pkMsgIDs {
		livePks = append(livePks, pk)
	}
	sort.Strings(livePks)

	maxBatch := provider.MaxBatchInputs()
	if maxBatch <= 0 {
		maxBatch = len(livePks)
	}
	for start := 0; start < len(livePks); start += maxBatch {
		end := min(start+maxBatch, len(livePks))
		chunk := livePks[start:end]

		inputs := make([]string, len(chunk))
		for i, pk := range chunk {
			inputs[i] = embedprovider.TruncateToTokens(texts[pk], provider.MaxInputTokens())
		}

		embedStart := time.Now()
		vectors, err := provider.Embed(ctx, model, inputs)
		if err != nil {
			p.handleEmbedError(ctx, qname, name, chunk, pkMsgIDs, readCt, err, provider)
			continue
		}

		if badDim := p.checkDimensions(ctx, qname, name, chunk, vectors, j.Dimension, pkMsgIDs, readCt); len(badDim) > 0 {
			chunk, vectors = dropIndices(chunk, vectors, badDim)
			if len(chunk) == 0 {
				continue
			}
		}

		if err := p.upsertChunk(ctx, j, chunk, vectors); err != nil {
			p.logger.Error("upserting embeddings", zap.String("job", name), zap.Error(err))
			continue
		}
		p.publishEmbeddingWritten(ctx, name, provider.Name(), len(chunk), time.Since(embedStart))

		for _, pk := range chunk {
			for _, id := range pkMsgIDs[pk] {
				if err := p.queue.Delete(ctx, qname, id); err != nil {
					p.logger.Error("deleting processed message", zap.String("job", name), zap.Int64("msg_id", id), zap.Error(err))
				}
			}
		}
	}

	p.maybeStampCompletion(ctx, j, qname)
	return nil
}

// handleEmbedError decides, per message, whether a failed embedding call
// is worth retrying (leave the message for its visibility timeout to
// expire) or permanent (archive it as a dead letter).
func (p *Pool) handleEmbedError(ctx context.Context, qname, jobName string, chunk []string, pkMsgIDs map[string][]int64, readCt map[int64]int32, err error, provider embedprovider.Provider) {
	permanent := !provider.Retryable(err)
	for _, pk := range chunk {
		for _, id := range pkMsgIDs[pk] {
			if permanent || readCt[id] >= p.cfg.MaxAttempts {
				if aerr := p.queue.Archive(ctx, qname, id); aerr != nil {
					p.logger.Error("archiving failed message", zap.String("job", jobName), zap.Int64("msg_id", id), zap.Error(aerr))
					continue
				}
				reason := "provider_permanent"
				if !permanent {
					reason = "attempts_exhausted"
				}
				p.publishMessageArchived(ctx, jobName, id, readCt[id], reason)
				continue
			}
			p.logger.Warn("embedding call failed, message will retry",
				zap.String("job", jobName), zap.Int64("msg_id", id), zap.Int32("read_ct", readCt[id]), zap.Error(err))
		}
	}
}

// checkDimensions archives any message whose provider response has the
// wrong vector dimension for this job (e.g. the provider was
// reconfigured to a different model after the job's dimension was
// frozen at creation) and returns the indices into chunk/vectors that
// failed, for the caller to drop before writing back.
func (p *Pool) checkDimensions(ctx context.Context, qname, jobName string, chunk []string, vectors [][]float32, dimension int, pkMsgIDs map[string][]int64, readCt map[int64]int32) []int {
	var bad []int
	for i, pk := range chunk {
		if len(vectors[i]) == dimension {
			continue
		}
		bad = append(bad, i)
		for _, id := range pkMsgIDs[pk] {
			if aerr := p.queue.Archive(ctx, qname, id); aerr != nil {
				p.logger.Error("archiving wrong-dimension message", zap.String("job", jobName), zap.Int64("msg_id", id), zap.Error(aerr))
				continue
			}
			p.publishMessageArchived(ctx, jobName, id, readCt[id], "provider_permanent")
		}
		p.logger.Error("provider returned wrong-dimension vector, archiving",
			zap.String("job", jobName), zap.String("pk", pk), zap.Int("want", dimension), zap.Int("got", len(vectors[i])))
	}
	return bad
}

// dropIndices removes bad indices from chunk and vectors in lockstep,
// so a wrong-dimension result doesn't reach upsertChunk.
func dropIndices(chunk []string, vectors [][]float32, bad []int) ([]string, [][]float32) {
	badSet := make(map[int]bool, len(bad))
	for _, i := range bad {
		badSet[i] = true
	}
	outChunk := make([]string, 0, len(chunk)-len(bad))
	outVectors := make([][]float32, 0, len(vectors)-len(bad))
	for i := range chunk {
		if badSet[i] {
			continue
		}
		outChunk = append(outChunk, chunk[i])
		outVectors = append(outVectors, vectors[i])
	}
	return outChunk, outVectors
}

func (p *Pool) publishEmbeddingWritten(ctx context.Context, jobName, providerName string, rowCount int, elapsed time.Duration) {
	err := p.events.Publish(ctx, &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeEmbeddingWritten,
		EventID:       eventstream.NewEventID(),
		EmittedAt:     time.Now(),
		JobName:       jobName,
		Payload: eventstream.EmbeddingWrittenPayload{
			RowCount:   rowCount,
			Provider:   providerName,
			DurationMs: elapsed.Milliseconds(),
		},
	})
	if err != nil {
		p.logger.Warn("publishing embedding.written event", zap.String("job", jobName), zap.Error(err))
	}
}

func (p *Pool) publishMessageArchived(ctx context.Context, jobName string, msgID int64, readCount int32, reason string) {
	err := p.events.Publish(ctx, &eventstream.Event{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeMessageArchived,
		EventID:       eventstream.NewEventID(),
		EmittedAt:     time.Now(),
		JobName:       jobName,
		Payload: eventstream.MessageArchivedPayload{
			MessageID: msgID,
			ReadCount: readCount,
			Reason:    reason,
		},
	})
	if err != nil {
		p.logger.Warn("publishing message.archived event", zap.String("job", jobName), zap.Error(err))
	}
}

func (p *Pool) fetchText(ctx context.Context, src job.Source, pks []string) (map[string]string, error) {
	if len(pks) == 0 {
		return map[string]string{}, nil
	}
	query, err := ddl.FetchTextQuery(src)
	if err != nil {
		return nil, err
	}
	rows, err := p.meta.Pool().Query(ctx, query, pks)
	if err != nil {
		return nil, fmt.Errorf("querying row text: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(pks))
	for rows.Next() {
		var pk, body string
		if err := rows.Scan(&pk, &body); err != nil {
			return nil, fmt.Errorf("scanning row text: %w", err)
		}
		out[pk] = body
	}
	return out, rows.Err()
}

func (p *Pool) upsertChunk(ctx context.Context, j job.Job, pks []string, vectors [][]float32) error {
	query, err := ddl.UpsertEmbeddingQuery(j.Name, j.TableMethod, j.Source)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, pk := range pks {
		batch.Queue(query, pk, pgvector.NewVector(vectors[i]))
	}

	br := p.meta.Pool().SendBatch(ctx, batch)
	defer br.Close()
	for range pks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("writing embedding for %q: %w", j.Name, err)
		}
	}
	return nil
}

// maybeStampCompletion records a scheduled job's last_completion once its
// queue has drained to empty. Realtime jobs have no cron pass to stamp.
func (p *Pool) maybeStampCompletion(ctx context.Context, j job.Job, qname string) {
	if j.Schedule.IsRealtime() {
		return
	}
	depth, err := p.queue.QueueLength(ctx, qname)
	if err != nil {
		p.logger.Error("checking queue depth", zap.String("job", j.Name), zap.Error(err))
		return
	}
	if depth != 0 {
		return
	}
	if err := p.meta.StampLastCompletion(ctx, j.Name); err != nil {
		p.logger.Error("stamping last_completion", zap.String("job", j.Name), zap.Error(err))
	}
}
