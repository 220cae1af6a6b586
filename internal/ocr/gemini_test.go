package ocr

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	Describe("NewGemini", func() {
		It("requires an API key", func() {
			_, err := NewGemini(context.Background(), "", "gemini-2.5-pro")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("stripCodeFences", func() {
		It("removes markdown fences around the transcription", func() {
			Expect(stripCodeFences("```text\nWALMART\nTOTAL 7.00\n```")).To(Equal("WALMART\nTOTAL 7.00"))
			Expect(stripCodeFences("```\nWALMART\n```")).To(Equal("WALMART"))
		})

		It("leaves plain output alone", func() {
			Expect(stripCodeFences("WALMART\nTOTAL 7.00")).To(Equal("WALMART\nTOTAL 7.00"))
		})
	})

	Describe("transcriptionConfidence", func() {
		It("is zero for no lines", func() {
			Expect(transcriptionConfidence(nil)).To(BeZero())
		})

		It("caps fully readable output at the ceiling", func() {
			lines := []Line{{Text: "WALMART"}, {Text: "TOTAL 7.00"}}
			Expect(transcriptionConfidence(lines)).To(Equal(geminiConfidenceCeiling))
		})

		It("scales with the readable-line fraction", func() {
			lines := []Line{{Text: "WALMART"}, {Text: "%%%%"}}
			Expect(transcriptionConfidence(lines)).To(BeNumerically("~", geminiConfidenceCeiling/2, 1e-9))
		})
	})
})
