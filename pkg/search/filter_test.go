package search_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/verror"
)

var _ = Describe("Compile", func() {
	It("returns an empty predicate for no filters", func() {
		pred, args, err := search.Compile(nil, nil, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(pred).To(BeEmpty())
		Expect(args).To(BeEmpty())
	})

	It("rejects an unknown column", func() {
		_, _, err := search.Compile(
			[]search.Filter{{Column: "nonexistent", Op: search.OpEq, Value: "x"}},
			nil, 1,
		)
		Expect(err).To(MatchError(verror.ErrFilterUnsafe))
	})

	It("rejects an unsafe identifier even if it happens to match nothing", func() {
		_, _, err := search.Compile(
			[]search.Filter{{Column: "name; drop table x", Op: search.OpEq, Value: "x"}},
			nil, 1,
		)
		Expect(err).To(MatchError(verror.ErrFilterUnsafe))
	})

	It("rejects an unsupported operator", func() {
		_, _, err := search.Compile(
			[]search.Filter{{Column: "price", Op: "LIKE", Value: "x"}},
			nil, 1,
		)
		Expect(err).To(MatchError(verror.ErrFilterUnsafe))
	})
})
