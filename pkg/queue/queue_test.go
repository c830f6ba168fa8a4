package queue_test

import (
	"context"
	"encoding/json"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperlane/vectorize/pkg/queue"
)

func connStr() string {
	dsn := os.Getenv("VECTORIZE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("VECTORIZE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Client", func() {
	var (
		pool *pgxpool.Pool
		c    *queue.Client
		ctx  context.Context
		q    = "vectorize_j_test_queue"
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		pool, err = pgxpool.New(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgmq;`)
		Expect(err).NotTo(HaveOccurred())

		c = queue.New(pool)
		_ = c.Drop(ctx, q)
		Expect(c.Create(ctx, q)).To(Succeed())
	})

	AfterEach(func() {
		if pool != nil {
			_ = c.Drop(ctx, q)
			pool.Close()
		}
	})

	Describe("Send and Read", func() {
		It("round-trips a message body", func() {
			_, err := c.Send(ctx, q, map[string]string{"pk": "42"})
			Expect(err).NotTo(HaveOccurred())

			msgs, err := c.Read(ctx, q, 30*time.Second, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			var body map[string]string
			Expect(json.Unmarshal(msgs[0].Body, &body)).To(Succeed())
			Expect(body["pk"]).To(Equal("42"))
		})

		It("hides a read message until its visibility timeout elapses", func() {
			_, err := c.Send(ctx, q, map[string]string{"pk": "1"})
			Expect(err).NotTo(HaveOccurred())

			first, err := c.Read(ctx, q, 30*time.Second, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(1))

			second, err := c.Read(ctx, q, 30*time.Second, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeEmpty())
		})
	})

	Describe("SendBatch", func() {
		It("enqueues every body and returns one id per message", func() {
			ids, err := c.SendBatch(ctx, q, []any{
				map[string]string{"pk": "1"},
				map[string]string{"pk": "2"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(HaveLen(2))
		})
	})

	Describe("Delete and Archive", func() {
		It("removes a deleted message from both the queue and re-reads", func() {
			_, err := c.Send(ctx, q, map[string]string{"pk": "1"})
			Expect(err).NotTo(HaveOccurred())

			msgs, err := c.Read(ctx, q, 30*time.Second, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Delete(ctx, q, msgs[0].ID)).To(Succeed())
		})

		It("archives a permanently failed message instead of deleting it", func() {
			_, err := c.Send(ctx, q, map[string]string{"pk": "1"})
			Expect(err).NotTo(HaveOccurred())

			msgs, err := c.Read(ctx, q, 30*time.Second, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Archive(ctx, q, msgs[0].ID)).To(Succeed())
		})
	})
})
