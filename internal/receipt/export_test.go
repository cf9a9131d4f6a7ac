package receipt

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-vault/internal/scanning"
)

var _ = Describe("Export", func() {
	Describe("filenames", func() {
		var result scanning.ExtractionResult

		BeforeEach(func() {
			result = scanning.ExtractionResult{
				MerchantName: "Joe's Café & Bar",
				Date:         "2024-03-09",
				TotalAmount:  amount("7.5"),
			}
		})

		It("builds the automatic export name", func() {
			Expect(exportFilename(result)).To(Equal("TaxTrack_2024-03-09_joe_s_caf____bar_7.50.jpg"))
		})

		It("builds the manual export name", func() {
			Expect(manualExportFilename(result)).To(Equal("TaxTrack_2024-03-09_joe_s_caf____bar.jpg"))
		})

		It("counts characters outside the BMP as two", func() {
			result.MerchantName = "Taco🌮Stand"
			Expect(manualExportFilename(result)).To(Equal("TaxTrack_2024-03-09_taco__stand.jpg"))
		})

		It("is deterministic", func() {
			Expect(exportFilename(result)).To(Equal(exportFilename(result)))
		})
	})

	Describe("DirExporter", func() {
		var (
			dir      string
			exporter *DirExporter
			ctx      context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			dir = filepath.Join(GinkgoT().TempDir(), "exports")
			var err error
			exporter, err = NewDirExporter(dir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("creates the directory", func() {
			Expect(dir).To(BeADirectory())
		})

		It("writes the file", func() {
			Expect(exporter.Export(ctx, []byte("image"), "TaxTrack_a.jpg")).To(Succeed())
			Expect(os.ReadFile(filepath.Join(dir, "TaxTrack_a.jpg"))).To(Equal([]byte("image")))
		})

		It("never overwrites an existing export", func() {
			Expect(exporter.Export(ctx, []byte("first"), "TaxTrack_a.jpg")).To(Succeed())
			Expect(exporter.Export(ctx, []byte("second"), "TaxTrack_a.jpg")).To(Succeed())
			Expect(os.ReadFile(filepath.Join(dir, "TaxTrack_a.jpg"))).To(Equal([]byte("first")))
			Expect(os.ReadFile(filepath.Join(dir, "TaxTrack_a (1).jpg"))).To(Equal([]byte("second")))
		})

		It("strips directories from the filename", func() {
			Expect(exporter.Export(ctx, []byte("image"), "../TaxTrack_a.jpg")).To(Succeed())
			Expect(filepath.Join(dir, "TaxTrack_a.jpg")).To(BeAnExistingFile())
		})
	})

	Describe("AsyncExporter", func() {
		var (
			next  *mockExporter
			async *AsyncExporter
		)

		BeforeEach(func() {
			next = &mockExporter{}
			var err error
			async, err = NewAsyncExporter(next, 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("runs the export in the background", func() {
			Expect(async.Export(context.Background(), []byte("image"), "a.jpg")).To(Succeed())
			async.Close()
			Expect(next.calls).To(HaveLen(1))
			Expect(next.calls[0].filename).To(Equal("a.jpg"))
		})

		It("ignores cancellation of the caller's context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			Expect(async.Export(ctx, []byte("image"), "a.jpg")).To(Succeed())
			cancel()
			async.Close()
			Expect(next.calls).To(HaveLen(1))
		})

		When("the export fails", func() {
			BeforeEach(func() {
				next.err = errors.New("disk full")
			})

			It("does not report it to the caller", func() {
				Expect(async.Export(context.Background(), []byte("image"), "a.jpg")).To(Succeed())
				async.Close()
			})
		})
	})
})
