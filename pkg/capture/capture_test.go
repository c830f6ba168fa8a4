package capture_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/capture"
	"github.com/paperlane/vectorize/pkg/job"
)

func connStr() string {
	dsn := os.Getenv("VECTORIZE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("VECTORIZE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Scheduler", func() {
	It("rejects registering a scan for a realtime job", func() {
		s := capture.NewScheduler(zap.NewNop())
		j := job.Job{Name: "products", Schedule: job.Realtime}

		_, err := s.RegisterScan(j, func(ctx context.Context) error { return nil })
		Expect(err).To(HaveOccurred())
	})

	It("accepts a valid cron expression", func() {
		s := capture.NewScheduler(zap.NewNop())
		j := job.Job{Name: "products", Schedule: job.Schedule("*/5 * * * *")}

		_, err := s.RegisterScan(j, func(ctx context.Context) error { return nil })
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a malformed cron expression", func() {
		s := capture.NewScheduler(zap.NewNop())
		j := job.Job{Name: "products", Schedule: job.Schedule("not a cron expression")}

		_, err := s.RegisterScan(j, func(ctx context.Context) error { return nil })
		Expect(err).To(HaveOccurred())
	})

	It("allows unregistering a previously registered entry", func() {
		s := capture.NewScheduler(zap.NewNop())
		j := job.Job{Name: "products", Schedule: job.Schedule("*/5 * * * *")}

		id, err := s.RegisterScan(j, func(ctx context.Context) error { return nil })
		Expect(err).NotTo(HaveOccurred())

		s.Unregister(id)
	})
})

var _ = Describe("InstallRealtime and UninstallRealtime", func() {
	var (
		pool *pgxpool.Pool
		ctx  context.Context
		src  = job.Source{Schema: "public", Relation: "capture_products", PrimaryKey: "product_id"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		pool, err = pgxpool.New(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS vectorize;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS public.capture_products (
	product_id bigint PRIMARY KEY,
	name text
);`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vectorize._capture_queue (
	id BIGSERIAL PRIMARY KEY,
	job_name TEXT NOT NULL,
	pk TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if pool != nil {
			_ = capture.UninstallRealtime(ctx, pool, "capture_products", src)
			pool.Exec(ctx, `DROP TABLE IF EXISTS public.capture_products;`)
			pool.Close()
		}
	})

	It("writes a capture row when the source table changes", func() {
		Expect(capture.InstallRealtime(ctx, pool, "capture_products", src)).To(Succeed())

		_, err := pool.Exec(ctx, `INSERT INTO public.capture_products (product_id, name) VALUES (1, 'widget');`)
		Expect(err).NotTo(HaveOccurred())

		var count int
		err = pool.QueryRow(ctx, `SELECT count(*) FROM vectorize._capture_queue WHERE job_name = 'capture_products';`).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("stops capturing once uninstalled", func() {
		Expect(capture.InstallRealtime(ctx, pool, "capture_products", src)).To(Succeed())
		Expect(capture.UninstallRealtime(ctx, pool, "capture_products", src)).To(Succeed())

		_, err := pool.Exec(ctx, `INSERT INTO public.capture_products (product_id, name) VALUES (2, 'gadget');`)
		Expect(err).NotTo(HaveOccurred())

		var count int
		err = pool.QueryRow(ctx, `SELECT count(*) FROM vectorize._capture_queue;`).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))
	})
})
