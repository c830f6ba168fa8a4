package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/eventstream"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/queue"
	"github.com/paperlane/vectorize/pkg/registry"
	"github.com/paperlane/vectorize/pkg/verror"
)

// recordingPublisher captures every event passed to Publish, for asserting
// Registry emits the expected lifecycle events without a real broker.
type recordingPublisher struct {
	events []eventstream.Event
}

func (r *recordingPublisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func connStr() string {
	dsn := os.Getenv("VECTORIZE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("VECTORIZE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Registry", func() {
	var (
		ctx    context.Context
		store  *metastore.Store
		reg    *registry.Registry
		fakeOl *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()

		fakeOl = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3,0.4]]}`))
		}))

		var err error
		store, err = metastore.New(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DELETE FROM vectorize.job;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.registry_products;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
CREATE TABLE public.registry_products (
	product_id bigint PRIMARY KEY,
	name text,
	description text,
	updated_at timestamptz NOT NULL DEFAULT now()
);`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `INSERT INTO public.registry_products (product_id, name, description) VALUES (1, 'widget', 'a fine widget');`)
		Expect(err).NotTo(HaveOccurred())

		q := queue.New(store.Pool())
		reg = registry.New(store, q, embedprovider.Config{OllamaBaseURL: fakeOl.URL}, zap.NewNop(), nil)
	})

	AfterEach(func() {
		if fakeOl != nil {
			fakeOl.Close()
		}
		if store != nil {
			store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.registry_products;`)
			store.Close()
		}
	})

	newSpec := func(method job.TableMethod, schedule job.Schedule) job.Spec {
		return job.Spec{
			Name: "registry_products",
			Source: job.Source{
				Schema:       "public",
				Relation:     "registry_products",
				PrimaryKey:   "product_id",
				TextColumns:  []string{"name", "description"},
				UpdateColumn: "updated_at",
			},
			Transformer: "ollama/nomic-embed-text",
			SearchAlg:   job.SearchAlgCosine,
			TableMethod: method,
			Schedule:    schedule,
		}
	}

	Describe("Create", func() {
		It("materializes storage, index, metadata, and an initial backfill for join method", func() {
			created, err := reg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Dimension).To(Equal(4))

			var exists bool
			err = store.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema='vectorize' AND table_name='_embeddings_registry_products');`).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())

			length, err := queue.New(store.Pool()).QueueLength(ctx, job.QueueName("registry_products"))
			Expect(err).NotTo(HaveOccurred())
			Expect(length).To(BeNumerically(">=", 1))
		})

		It("publishes a job.created event", func() {
			rec := &recordingPublisher{}
			recReg := registry.New(store, queue.New(store.Pool()), embedprovider.Config{OllamaBaseURL: fakeOl.URL}, zap.NewNop(), rec)

			_, err := recReg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.events).To(HaveLen(1))
			Expect(rec.events[0].EventType).To(Equal(eventstream.EventTypeJobCreated))
			Expect(rec.events[0].JobName).To(Equal("registry_products"))
		})

		It("installs realtime triggers when schedule is realtime and method is join", func() {
			_, err := reg.Create(ctx, newSpec(job.TableMethodJoin, job.Realtime))
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Pool().Exec(ctx, `INSERT INTO public.registry_products (product_id, name) VALUES (2, 'gadget');`)
			Expect(err).NotTo(HaveOccurred())

			var count int
			err = store.Pool().QueryRow(ctx, `SELECT count(*) FROM vectorize._capture_queue WHERE job_name = 'registry_products';`).Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeNumerically(">=", 1))
		})

		It("rejects realtime schedule with append table method", func() {
			_, err := reg.Create(ctx, newSpec(job.TableMethodAppend, job.Realtime))
			Expect(err).To(MatchError(verror.ErrInvalidRequest))
		})

		It("rejects a duplicate name", func() {
			_, err := reg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).NotTo(HaveOccurred())

			_, err = reg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).To(MatchError(verror.ErrAlreadyExists))
		})

		It("rejects a primary key that does not exist on the source", func() {
			spec := newSpec(job.TableMethodJoin, job.Schedule("0 * * * *"))
			spec.Source.PrimaryKey = "nonexistent_column"
			_, err := reg.Create(ctx, spec)
			Expect(err).To(MatchError(verror.ErrInvalidRequest))
		})
	})

	Describe("Delete", func() {
		It("removes storage, index, queue, and metadata", func() {
			_, err := reg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).NotTo(HaveOccurred())

			Expect(reg.Delete(ctx, "registry_products")).To(Succeed())

			var exists bool
			err = store.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema='vectorize' AND table_name='_embeddings_registry_products');`).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())

			_, err = store.Get(ctx, "registry_products")
			Expect(err).To(MatchError(verror.ErrNotFound))
		})
	})

	Describe("Describe", func() {
		It("reports the job definition and queue depth", func() {
			_, err := reg.Create(ctx, newSpec(job.TableMethodJoin, job.Schedule("0 * * * *")))
			Expect(err).NotTo(HaveOccurred())

			j, depth, err := reg.Describe(ctx, "registry_products")
			Expect(err).NotTo(HaveOccurred())
			Expect(j.Name).To(Equal("registry_products"))
			Expect(depth).To(BeNumerically(">=", 1))
		})
	})
})
