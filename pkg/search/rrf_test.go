package search

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("fuse", func() {
	It("scores a row present in both lists higher than one present in only one", func() {
		semantic := []rankedRow{{PK: "1", SemanticRank: 1}, {PK: "2", SemanticRank: 2}}
		lexical := []rankedRow{{PK: "1", FTSRank: 1}}

		out := fuse(semantic, lexical, 60, 1, 1)

		Expect(out[0].PK).To(Equal("1"))
		Expect(out[0].RRFScore).To(BeNumerically("~", 1.0/61+1.0/61, 1e-9))
		Expect(out[1].PK).To(Equal("2"))
		Expect(out[1].RRFScore).To(BeNumerically("~", 1.0/62, 1e-9))
	})

	It("treats an absent rank as contributing zero", func() {
		semantic := []rankedRow{{PK: "1", SemanticRank: 1}}
		out := fuse(semantic, nil, 60, 1, 1)
		Expect(out[0].FTSRank).To(Equal(0))
		Expect(out[0].RRFScore).To(BeNumerically("~", 1.0/61, 1e-9))
	})

	It("falls back to the default k when k is non-positive", func() {
		semantic := []rankedRow{{PK: "1", SemanticRank: 1}}
		out := fuse(semantic, nil, 0, 1, 1)
		Expect(out[0].RRFScore).To(BeNumerically("~", 1.0/(defaultRRFK+1), 1e-9))
	})

	It("tie-breaks by semantic rank then pk", func() {
		// "a" and "b" swap ranks across the two lists, so their scores tie
		// exactly; "b" has the better semantic rank and sorts first.
		semantic := []rankedRow{{PK: "b", SemanticRank: 1}, {PK: "a", SemanticRank: 2}}
		lexical := []rankedRow{{PK: "a", FTSRank: 1}, {PK: "b", FTSRank: 2}}
		out := fuse(semantic, lexical, 60, 1, 1)
		Expect(out[0].PK).To(Equal("b"))
		Expect(out[1].PK).To(Equal("a"))

		// Neither row has a semantic rank and both share an FTS rank, so
		// both tie on score and on semantic rank; pk breaks the tie.
		lexical = []rankedRow{{PK: "b", FTSRank: 1}, {PK: "a", FTSRank: 1}}
		out = fuse(nil, lexical, 60, 1, 1)
		Expect(out[0].PK).To(Equal("a"))
		Expect(out[1].PK).To(Equal("b"))
	})

	It("weights the semantic and lexical terms independently", func() {
		semantic := []rankedRow{{PK: "1", SemanticRank: 1}}
		lexical := []rankedRow{{PK: "1", FTSRank: 1}}
		out := fuse(semantic, lexical, 60, 2, 0.5)
		Expect(out[0].RRFScore).To(BeNumerically("~", 2.0/61+0.5/61, 1e-9))
	})
})
