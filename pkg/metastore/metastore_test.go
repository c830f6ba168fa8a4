package metastore_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/verror"
)

// connStr returns the PostgreSQL connection string from environment or
// skips the test. A real Postgres instance with pgvector and pgmq is
// required; these tests never run against a mock.
func connStr() string {
	dsn := os.Getenv("VECTORIZE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("VECTORIZE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Store", func() {
	var (
		store *metastore.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = metastore.New(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Pool().Exec(ctx, "DELETE FROM vectorize.job;")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	newJob := func(name string) job.Job {
		spec := job.Spec{
			Name: name,
			Source: job.Source{
				Schema:      "public",
				Relation:    "products",
				PrimaryKey:  "product_id",
				TextColumns: []string{"name", "description"},
			},
			Transformer: "openai/text-embedding-ada-002",
			SearchAlg:   job.SearchAlgCosine,
			TableMethod: job.TableMethodJoin,
			Schedule:    job.Realtime,
		}
		params, err := job.Params(spec, 1536)
		Expect(err).NotTo(HaveOccurred())

		return job.Job{
			Name:        spec.Name,
			Source:      spec.Source,
			Transformer: spec.Transformer,
			Dimension:   1536,
			SearchAlg:   spec.SearchAlg,
			TableMethod: spec.TableMethod,
			Schedule:    spec.Schedule,
			Params:      params,
		}
	}

	Describe("Insert and Get", func() {
		It("round-trips a job including its frozen params", func() {
			created, err := store.Insert(ctx, newJob("products"))
			Expect(err).NotTo(HaveOccurred())
			Expect(created.ID).To(BeNumerically(">", 0))

			got, err := store.Get(ctx, "products")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Source.Relation).To(Equal("products"))
			Expect(got.Dimension).To(Equal(1536))
			Expect(got.SearchAlg).To(Equal(job.SearchAlgCosine))
			Expect(got.TableMethod).To(Equal(job.TableMethodJoin))
			Expect(got.LastCompletion).To(BeNil())
		})

		It("rejects a duplicate name", func() {
			_, err := store.Insert(ctx, newJob("products"))
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Insert(ctx, newJob("products"))
			Expect(err).To(MatchError(verror.ErrAlreadyExists))
		})

		It("returns ErrNotFound for a missing job", func() {
			_, err := store.Get(ctx, "missing")
			Expect(err).To(MatchError(verror.ErrNotFound))
		})
	})

	Describe("List", func() {
		It("returns every job ordered by name", func() {
			_, err := store.Insert(ctx, newJob("zeta"))
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, newJob("alpha"))
			Expect(err).NotTo(HaveOccurred())

			jobs, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].Name).To(Equal("alpha"))
			Expect(jobs[1].Name).To(Equal("zeta"))
		})
	})

	Describe("Delete", func() {
		It("removes the job row", func() {
			_, err := store.Insert(ctx, newJob("products"))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete(ctx, "products")).To(Succeed())

			_, err = store.Get(ctx, "products")
			Expect(err).To(MatchError(verror.ErrNotFound))
		})

		It("returns ErrNotFound for a missing job", func() {
			Expect(store.Delete(ctx, "missing")).To(MatchError(verror.ErrNotFound))
		})
	})

	Describe("StampLastCompletion", func() {
		It("sets last_completion and leaves it untouched by nothing else", func() {
			_, err := store.Insert(ctx, newJob("products"))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.StampLastCompletion(ctx, "products")).To(Succeed())

			got, err := store.Get(ctx, "products")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LastCompletion).NotTo(BeNil())
		})
	})
})
