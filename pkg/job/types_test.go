package job_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperlane/vectorize/pkg/job"
)

var _ = Describe("TableMethod", func() {
	It("parses known values", func() {
		m, err := job.ParseTableMethod("join")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(job.TableMethodJoin))
	})

	It("rejects unknown values", func() {
		_, err := job.ParseTableMethod("merge")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SearchAlg", func() {
	DescribeTable("op class and operator",
		func(alg job.SearchAlg, wantOpClass, wantOp string) {
			Expect(alg.OpClass()).To(Equal(wantOpClass))
			Expect(alg.Operator()).To(Equal(wantOp))
		},
		Entry("cosine", job.SearchAlgCosine, "vector_cosine_ops", "<=>"),
		Entry("l2", job.SearchAlgL2, "vector_l2_ops", "<->"),
		Entry("inner_product", job.SearchAlgInnerProduct, "vector_ip_ops", "<#>"),
	)
})

var _ = Describe("Schedule", func() {
	It("identifies realtime", func() {
		Expect(job.Realtime.IsRealtime()).To(BeTrue())
		Expect(job.Schedule("0 * * * *").IsRealtime()).To(BeFalse())
	})
})

var _ = Describe("deterministic derived names", func() {
	It("derives storage and queue names purely from the job name", func() {
		Expect(job.EmbeddingsTable("products")).To(Equal("_embeddings_products"))
		Expect(job.AppendEmbeddingColumn("products")).To(Equal("products_embeddings"))
		Expect(job.AppendUpdatedAtColumn("products")).To(Equal("products_updated_at"))
		Expect(job.QueueName("products")).To(Equal("vectorize_j_products"))
		Expect(job.TriggerFunctionName("products")).To(Equal("_vectorize_trigger_products"))
	})
})

var _ = Describe("Params", func() {
	It("freezes the resolved dimension alongside the spec", func() {
		spec := job.Spec{
			Name: "products",
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

		raw, err := job.Params(spec, 1536)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"dimension":1536`))
		Expect(string(raw)).To(ContainSubstring(`"transformer":"openai/text-embedding-ada-002"`))
	})
})
