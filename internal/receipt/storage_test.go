package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		dir     string
		storage *LocalStorage
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewLocalStorage", func() {
		It("creates a missing directory", func() {
			nested := filepath.Join(dir, "a", "b")
			_, err := NewLocalStorage(nested)
			Expect(err).NotTo(HaveOccurred())
			Expect(nested).To(BeADirectory())
		})
	})

	Describe("Save and Get", func() {
		It("round-trips file contents", func() {
			key, err := storage.Save("upload.png", []byte("image bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("upload.png"))

			data, err := storage.Get(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("image bytes")))
		})

		It("flattens path components so uploads stay in the directory", func() {
			key, err := storage.Save("../../etc/passwd", []byte("nope"))
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("passwd"))

			entries, err := os.ReadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Name()).To(Equal("passwd"))
		})

		It("rejects a name that flattens to nothing", func() {
			_, err := storage.Save(".", []byte("x"))
			Expect(err).To(HaveOccurred())
		})

		It("fails Get for a missing key", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes a stored file", func() {
			key, err := storage.Save("upload.png", []byte("image bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete(key)).To(Succeed())
			_, err = storage.Get(key)
			Expect(err).To(HaveOccurred())
		})

		It("fails for a missing key", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})
