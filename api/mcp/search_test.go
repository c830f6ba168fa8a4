package mcp_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperlane/vectorize/api/mcp"
)

var _ = Describe("Search tool schema", func() {
	It("round-trips SearchInput through JSON", func() {
		input := mcp.SearchInput{
			Job:   "products",
			Query: "mobile charger",
			Limit: 2,
			Filters: []mcp.SearchFilter{
				{Column: "category", Op: "=", Value: "electronics"},
			},
		}

		data, err := json.Marshal(input)
		Expect(err).NotTo(HaveOccurred())

		var decoded mcp.SearchInput
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(Equal(input))
	})

	It("round-trips SearchOutput through JSON", func() {
		output := mcp.SearchOutput{
			Query: "mobile charger",
			Job:   "products",
			Results: []mcp.SearchResult{
				{PK: "3", SimilarityScore: 0.9, RRFScore: 0.031},
			},
			Count: 1,
		}

		data, err := json.Marshal(output)
		Expect(err).NotTo(HaveOccurred())

		var decoded mcp.SearchOutput
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(Equal(output))
	})
})
