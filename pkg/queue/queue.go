// Package queue is a thin Go client over the pgmq Postgres extension.
// It never holds messages in process memory: every operation is a SQL
// call against the pgmq schema, so queue state survives a worker crash
// or redeploy exactly as pgmq's own at-least-once contract promises.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is a single dequeued item plus the bookkeeping pgmq needs to
// delete or archive it later.
type Message struct {
	ID      int64
	ReadCt  int32
	EnqTime time.Time
	VT      time.Time
	Body    json.RawMessage
}

// Client wraps a connection pool with pgmq operations scoped to one
// queue at a time; callers pass the queue name explicitly so a single
// Client can serve every job's queue.
type Client struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The metastore and the queue share one pool
// so job creation and queue creation commit together.
func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Create provisions a queue. Idempotent.
func (c *Client) Create(ctx context.Context, queueName string) error {
	if _, err := c.pool.Exec(ctx, `SELECT pgmq.create($1);`, queueName); err != nil {
		return fmt.Errorf("creating queue %q: %w", queueName, err)
	}
	return nil
}

// Drop removes a queue and every message still enqueued on it.
func (c *Client) Drop(ctx context.Context, queueName string) error {
	if _, err := c.pool.Exec(ctx, `SELECT pgmq.drop_queue($1);`, queueName); err != nil {
		return fmt.Errorf("dropping queue %q: %w", queueName, err)
	}
	return nil
}

// Send enqueues body on queueName and returns the new message id.
func (c *Client) Send(ctx context.Context, queueName string, body any) (int64, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling message body: %w", err)
	}

	row := c.pool.QueryRow(ctx, `SELECT * FROM pgmq.send(queue_name => $1, msg => $2);`, queueName, raw)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("sending message to %q: %w", queueName, err)
	}
	return id, nil
}

// SendBatch enqueues every body in one round trip.
func (c *Client) SendBatch(ctx context.Context, queueName string, bodies []any) ([]int64, error) {
	if len(bodies) == 0 {
		return nil, nil
	}
	raws := make([]json.RawMessage, len(bodies))
	for i, b := range bodies {
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshaling message body %d: %w", i, err)
		}
		raws[i] = raw
	}

	rows, err := c.pool.Query(ctx, `SELECT * FROM pgmq.send_batch(queue_name => $1, msgs => $2);`, queueName, raws)
	if err != nil {
		return nil, fmt.Errorf("sending batch to %q: %w", queueName, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning send_batch id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Read pops up to limit messages off queueName, making them invisible
// to other readers for vt seconds. A message not deleted or archived
// before vt expires becomes visible again, which is how an at-least-once
// consumer recovers from a crash mid-processing.
func (c *Client) Read(ctx context.Context, queueName string, vt time.Duration, limit int) ([]Message, error) {
	rows, err := c.pool.Query(ctx, `
SELECT msg_id, read_ct, enqueued_at, vt, message
FROM pgmq.read($1, $2, $3);`,
		queueName, int32(vt.Seconds()), int32(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("reading from %q: %w", queueName, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ReadCt, &m.EnqTime, &m.VT, &m.Body); err != nil {
			return nil, fmt.Errorf("scanning message from %q: %w", queueName, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Delete removes a successfully processed message.
func (c *Client) Delete(ctx context.Context, queueName string, msgID int64) error {
	row := c.pool.QueryRow(ctx, `SELECT pgmq.delete($1, $2);`, queueName, msgID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return fmt.Errorf("deleting message %d from %q: %w", msgID, queueName, err)
	}
	return nil
}

// Archive moves a permanently-failed message to pgmq's archive table
// instead of deleting it outright, so it can still be inspected.
func (c *Client) Archive(ctx context.Context, queueName string, msgID int64) error {
	row := c.pool.QueryRow(ctx, `SELECT pgmq.archive($1, $2);`, queueName, msgID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return fmt.Errorf("archiving message %d from %q: %w", msgID, queueName, err)
	}
	return nil
}

// QueueLength reports how many messages are currently visible (not
// in-flight) on a queue, for status/describe endpoints.
func (c *Client) QueueLength(ctx context.Context, queueName string) (int64, error) {
	row := c.pool.QueryRow(ctx, `SELECT queue_length FROM pgmq.metrics($1);`, queueName)
	var n int64
	if err := row.Scan(&n); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("fetching metrics for %q: %w", queueName, err)
	}
	return n, nil
}
