package parse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Policy", func() {
	var (
		policy *Policy
		err    error
	)

	BeforeEach(func() {
		policy, err = NewPolicy(DefaultPolicyConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewPolicy", func() {
		When("a threshold is out of range", func() {
			It("returns ErrConfigInvalid", func() {
				cfg := DefaultPolicyConfig()
				cfg.MinItemConfidence = 1.5
				_, err := NewPolicy(cfg)
				Expect(err).To(MatchError(ErrConfigInvalid))
			})
		})

		When("the weights sum to zero", func() {
			It("returns ErrConfigInvalid", func() {
				cfg := DefaultPolicyConfig()
				cfg.EngineWeight = 0
				cfg.CoverageWeight = 0
				cfg.ItemWeight = 0
				_, err := NewPolicy(cfg)
				Expect(err).To(MatchError(ErrConfigInvalid))
			})
		})
	})

	Describe("document confidence", func() {
		It("weights engine confidence, coverage, and mean item confidence", func() {
			doc := ReceiptDocument{
				Items: []CandidateItem{
					{Confidence: 0.8, LineTotal: &Amount{Cents: 100, Confidence: 1.0}},
					{Confidence: 0.6, LineTotal: &Amount{Cents: 200, Confidence: 1.0}},
				},
				LinesTotal:      4,
				LinesClassified: 2,
			}
			policy.Apply(0.9, &doc)
			// 0.4*0.9 + 0.3*0.5 + 0.3*0.7 = 0.72
			Expect(doc.Confidence).To(BeNumerically("~", 0.72, 1e-9))
		})

		It("stays at or below 0.1 for empty garbage input", func() {
			doc := ReceiptDocument{Items: []CandidateItem{}}
			policy.Apply(0, &doc)
			Expect(doc.Confidence).To(BeNumerically("<=", 0.1))
		})

		It("subtracts the reconciliation penalty on mismatch", func() {
			clean := ReceiptDocument{LinesTotal: 2, LinesClassified: 2}
			policy.Apply(0.9, &clean)

			flagged := ReceiptDocument{LinesTotal: 2, LinesClassified: 2, TotalsMismatch: true}
			policy.Apply(0.9, &flagged)

			Expect(flagged.Confidence).To(BeNumerically("~", clean.Confidence-DefaultPolicyConfig().ReconcilePenalty, 1e-9))
		})
	})

	Describe("item acceptance", func() {
		It("accepts an item that clears both thresholds", func() {
			doc := ReceiptDocument{Items: []CandidateItem{
				{Confidence: 0.9, LineTotal: &Amount{Cents: 100, Confidence: 1.0}},
			}}
			policy.Apply(0.9, &doc)
			Expect(doc.Items[0].Accepted).To(BeTrue())
		})

		It("rejects an item below the item threshold", func() {
			doc := ReceiptDocument{Items: []CandidateItem{
				{Confidence: 0.5, LineTotal: &Amount{Cents: 100, Confidence: 1.0}},
			}}
			policy.Apply(0.9, &doc)
			Expect(doc.Items[0].Accepted).To(BeFalse())
		})

		It("rejects an item whose price confidence is too low", func() {
			doc := ReceiptDocument{Items: []CandidateItem{
				{Confidence: 0.9, LineTotal: &Amount{Cents: 100, Confidence: 0.6}},
			}}
			policy.Apply(0.9, &doc)
			Expect(doc.Items[0].Accepted).To(BeFalse())
		})

		It("keeps rejected items in the document", func() {
			doc := ReceiptDocument{Items: []CandidateItem{
				{Confidence: 0.1, LineTotal: &Amount{Cents: 100, Confidence: 0.6}},
			}}
			policy.Apply(0.9, &doc)
			Expect(doc.Items).To(HaveLen(1))
			Expect(policy.VisibleItems(doc)).To(BeEmpty())
		})
	})

	Describe("VisibleItems", func() {
		It("returns only accepted items", func() {
			doc := ReceiptDocument{Items: []CandidateItem{
				{Name: "good", Confidence: 0.9, LineTotal: &Amount{Cents: 100, Confidence: 1.0}},
				{Name: "shaky", Confidence: 0.3, LineTotal: &Amount{Cents: 100, Confidence: 0.5}},
			}}
			policy.Apply(0.9, &doc)
			visible := policy.VisibleItems(doc)
			Expect(visible).To(HaveLen(1))
			Expect(visible[0].Name).To(Equal("good"))
		})
	})
})
