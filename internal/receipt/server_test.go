package receipt

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mwynn/tillscan/internal/ocr"
	"github.com/mwynn/tillscan/internal/parse"
)

// multipartUpload builds a receipt upload request with optional extra form
// fields.
func multipartUpload(filename string, data []byte, fields map[string]string) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	for k, v := range fields {
		Expect(w.WriteField(k, v)).To(Succeed())
	}
	Expect(w.Close()).To(Succeed())

	req := httptest.NewRequest("POST", "/api/receipts", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

var _ = Describe("Server", func() {
	var (
		db      *mockDB
		storage *mockStorage
		engine  *mockEngine
		server  *Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine()
		service := NewServiceWithDeps(db, engine, storage,
			parse.DefaultConfig(), parse.DefaultPolicyConfig(),
			&mockIDGenerator{id: "test-id-123"},
			&mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
		)
		server = NewServerWithMux(service, BasicAuth{}, http.NewServeMux())
	})

	Describe("POST /api/receipts", func() {
		It("processes an upload and returns the staged receipt", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, multipartUpload("receipt.png", receiptPNG(), nil))

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var got Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.ID).To(Equal("test-id-123"))
			Expect(got.Document.MerchantName).To(Equal("WALMART"))
			Expect(db.receipts).To(HaveKey("test-id-123"))
		})

		It("honors processing options from form fields", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, multipartUpload("receipt.png", receiptPNG(), map[string]string{
				"preset":        "standard",
				"page_seg_mode": "uniform-block",
			}))

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var got Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.Preset).To(Equal("standard"))
			Expect(got.PageSegMode).To(Equal("uniform-block"))
		})

		It("rejects an unknown preset", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, multipartUpload("receipt.png", receiptPNG(), map[string]string{
				"preset": "maximum",
			}))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a request without a file", func() {
			var body bytes.Buffer
			w := multipart.NewWriter(&body)
			Expect(w.Close()).To(Succeed())
			req := httptest.NewRequest("POST", "/api/receipts", &body)
			req.Header.Set("Content-Type", w.FormDataContentType())

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an undecodable image", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, multipartUpload("receipt.png", []byte("not an image"), nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps engine failures to 502", func() {
			engine.errs[ocr.PSMSingleColumn] = ocr.ErrEngine
			engine.errs[ocr.PSMAuto] = ocr.ErrEngine

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, multipartUpload("receipt.png", receiptPNG(), nil))
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GET /api/receipts", func() {
		It("lists staged receipts", func() {
			db.receipts["r1"] = &Receipt{ID: "r1"}

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/receipts", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var got []Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("r1"))
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		It("returns a staged receipt", func() {
			db.receipts["r1"] = &Receipt{ID: "r1", Document: parse.ReceiptDocument{MerchantName: "WALMART"}}

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/receipts/r1", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var got Receipt
			Expect(json.Unmarshal(rec.Body.Bytes(), &got)).To(Succeed())
			Expect(got.Document.MerchantName).To(Equal("WALMART"))
		})

		It("returns 404 for an unknown ID", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/receipts/missing", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts/{id}/file", func() {
		It("returns the original upload", func() {
			db.receipts["r1"] = &Receipt{ID: "r1", Filename: "r1_receipt.png", ContentType: "image/png"}
			storage.files["r1_receipt.png"] = []byte("original bytes")

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/receipts/r1/file", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/png"))
			Expect(rec.Body.Bytes()).To(Equal([]byte("original bytes")))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		It("removes the receipt and its file", func() {
			db.receipts["r1"] = &Receipt{ID: "r1", Filename: "r1_receipt.png"}
			storage.files["r1_receipt.png"] = []byte("original bytes")

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/receipts/r1", nil))

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(db.receipts).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			service := NewServiceWithDeps(db, engine, storage,
				parse.DefaultConfig(), parse.DefaultPolicyConfig(),
				&mockIDGenerator{id: "test-id-123"},
				&mockTimeSource{now: time.Now()},
			)
			server = NewServerWithMux(service, BasicAuth{Username: "user", Password: "secret"}, http.NewServeMux())
		})

		It("rejects requests without credentials", func() {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest("GET", "/api/receipts", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).NotTo(BeEmpty())
		})

		It("accepts requests with valid credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			req.SetBasicAuth("user", "secret")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/receipts", nil)
			req.SetBasicAuth("user", "wrong")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("normalizeContentType", func() {
		It("keeps a declared content type", func() {
			Expect(normalizeContentType("image/jpeg", "x.png")).To(Equal("image/jpeg"))
		})

		It("fills a missing content type from the extension", func() {
			Expect(normalizeContentType("", "scan.PDF")).To(Equal("application/pdf"))
			Expect(normalizeContentType("", "photo.HEIC")).To(Equal("image/heic"))
			Expect(normalizeContentType("", "photo.jpg")).To(Equal("image/jpeg"))
		})

		It("falls back to octet-stream", func() {
			Expect(normalizeContentType("", "mystery.bin")).To(Equal("application/octet-stream"))
		})
	})
})
