package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mwynn/tillscan/internal/parse"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(db.Close()).To(Succeed())
	})

	sample := func(id string) *Receipt {
		return &Receipt{
			ID:          id,
			Filename:    id + "_receipt.png",
			ContentType: "image/png",
			Preset:      "minimal",
			PageSegMode: "single-column",
			Document: parse.ReceiptDocument{
				MerchantName: "WALMART",
				Total:        &parse.Amount{Cents: 700, Confidence: 1.0},
				Items: []parse.CandidateItem{
					{Name: "BREAD", Quantity: 1, LineTotal: &parse.Amount{Cents: 299, Confidence: 1.0}, Confidence: 0.9, Accepted: true},
				},
				Confidence: 0.85,
			},
			CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		}
	}

	Describe("SaveReceipt and GetReceipt", func() {
		It("round-trips a receipt including its document", func() {
			Expect(db.SaveReceipt(sample("r1"))).To(Succeed())

			got, err := db.GetReceipt("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("r1"))
			Expect(got.Document.MerchantName).To(Equal("WALMART"))
			Expect(got.Document.Items).To(HaveLen(1))
			Expect(got.Document.Items[0].LineTotal.Cents).To(Equal(int64(299)))
			Expect(got.Document.Items[0].Accepted).To(BeTrue())
			Expect(got.Document.Total.Cents).To(Equal(int64(700)))
		})

		It("replaces an existing receipt on save", func() {
			Expect(db.SaveReceipt(sample("r1"))).To(Succeed())

			updated := sample("r1")
			updated.Document.MerchantName = "TARGET"
			Expect(db.SaveReceipt(updated)).To(Succeed())

			got, err := db.GetReceipt("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Document.MerchantName).To(Equal("TARGET"))
		})

		It("fails for an unknown ID", func() {
			_, err := db.GetReceipt("missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ListReceipts", func() {
		It("returns an empty slice for a fresh store", func() {
			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
		})

		It("returns every stored receipt", func() {
			Expect(db.SaveReceipt(sample("r1"))).To(Succeed())
			Expect(db.SaveReceipt(sample("r2"))).To(Succeed())

			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
		})
	})

	Describe("DeleteReceipt", func() {
		It("removes a stored receipt", func() {
			Expect(db.SaveReceipt(sample("r1"))).To(Succeed())
			Expect(db.DeleteReceipt("r1")).To(Succeed())

			_, err := db.GetReceipt("r1")
			Expect(err).To(HaveOccurred())
		})

		It("is a no-op for an unknown ID", func() {
			Expect(db.DeleteReceipt("missing")).To(Succeed())
		})
	})
})
