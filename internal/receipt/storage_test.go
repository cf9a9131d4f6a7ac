package receipt

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage BlobStore
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Put", func() {
		var (
			id   string
			data []byte
			err  error
		)

		BeforeEach(func() {
			id = "test-id"
			data = []byte("test file content")
		})

		JustBeforeEach(func() {
			err = storage.Put(ctx, id, data)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the file to disk", func() {
				filePath := filepath.Join(tmpDir, id)
				Expect(filePath).To(BeAnExistingFile())
				Expect(os.ReadFile(filePath)).To(Equal(data))
			})

			It("leaves no temp files behind", func() {
				entries, readErr := os.ReadDir(tmpDir)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the id already exists", func() {
			BeforeEach(func() {
				Expect(storage.Put(ctx, id, []byte("old"))).To(Succeed())
			})

			It("overwrites it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(storage.Get(ctx, id)).To(Equal(data))
			})
		})

		When("the id escapes the directory", func() {
			BeforeEach(func() {
				id = "../escape"
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
				Expect(filepath.Join(tmpDir, "..", "escape")).NotTo(BeAnExistingFile())
			})
		})

		When("the id is empty", func() {
			BeforeEach(func() {
				id = ""
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Get", func() {
		var (
			id   string
			data []byte
			err  error
		)

		BeforeEach(func() {
			id = "test-id"
		})

		JustBeforeEach(func() {
			data, err = storage.Get(ctx, id)
		})

		When("the file exists", func() {
			BeforeEach(func() {
				Expect(storage.Put(ctx, id, []byte("test file content"))).To(Succeed())
			})

			It("should return the file data", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("test file content")))
			})
		})

		When("the file does not exist", func() {
			It("returns ErrBlobNotFound", func() {
				Expect(err).To(MatchError(ErrBlobNotFound))
			})
		})
	})

	Describe("Delete", func() {
		var (
			id  string
			err error
		)

		BeforeEach(func() {
			id = "test-id"
		})

		JustBeforeEach(func() {
			err = storage.Delete(ctx, id)
		})

		When("the file exists", func() {
			BeforeEach(func() {
				Expect(storage.Put(ctx, id, []byte("test file content"))).To(Succeed())
			})

			It("should delete the file", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, id)).NotTo(BeAnExistingFile())
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
