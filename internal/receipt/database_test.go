package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"

	"github.com/zombor/receipt-vault/internal/scanning"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	putRaw := func(bucket, key, value string) {
		err := db.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(bucket)).Put([]byte(key), []byte(value))
		})
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("LoadReceipts", func() {
		var (
			receipts []*Receipt
			err      error
		)

		JustBeforeEach(func() {
			receipts, err = db.LoadReceipts()
		})

		When("nothing has been saved", func() {
			It("returns an empty collection", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
				Expect(receipts).To(BeEmpty())
			})
		})

		When("the stored collection is malformed", func() {
			BeforeEach(func() {
				putRaw(receiptsBucketName, collectionKey, "{not json")
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the stored collection holds null entries", func() {
			BeforeEach(func() {
				putRaw(receiptsBucketName, collectionKey, `[null,{"id":"a","merchantName":"Coffee Shop"},null]`)
			})

			It("drops them", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(1))
				Expect(receipts[0].ID).To(Equal("a"))
			})
		})

		When("only null entries were saved", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipts([]*Receipt{nil})).To(Succeed())
			})

			It("returns an empty collection", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).NotTo(BeNil())
				Expect(receipts).To(BeEmpty())
			})

			It("gives a service that answers lookups", func() {
				service := NewService(db, &mockExtractor{}, newMockStorage(), nil)
				_, getErr := service.Get("nope")
				Expect(getErr).To(MatchError(ErrNotFound))
				Expect(service.List(Filter{Search: "coffee"})).To(BeEmpty())
				Expect(service.Categories()).To(BeEmpty())
			})
		})
	})

	Describe("SaveReceipts", func() {
		var (
			saved []*Receipt
			err   error
		)

		BeforeEach(func() {
			saved = []*Receipt{
				{
					ExtractionResult: scanning.ExtractionResult{
						MerchantName: "Coffee Shop",
						Date:         "2024-01-15",
						TotalAmount:  amount("12.50"),
						Currency:     "$",
						Category:     "Meals & Entertainment",
						Items:        []scanning.Item{{Description: "Latte", Amount: amount("12.50")}},
					},
					ID:        "new",
					CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
					ImageRef:  "new",
				},
				coffeeReceipt("old", "3.00"),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveReceipts(saved)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("round-trips the collection in order", func() {
			loaded, loadErr := db.LoadReceipts()
			Expect(loadErr).NotTo(HaveOccurred())
			Expect(loaded).To(HaveLen(2))
			Expect(loaded[0].ID).To(Equal("new"))
			Expect(loaded[0].MerchantName).To(Equal("Coffee Shop"))
			Expect(loaded[0].TotalAmount.Equal(amount("12.50"))).To(BeTrue())
			Expect(loaded[0].Items).To(HaveLen(1))
			Expect(loaded[0].CreatedAt.Equal(saved[0].CreatedAt)).To(BeTrue())
			Expect(loaded[1].ID).To(Equal("old"))
		})

		It("replaces the previous collection", func() {
			Expect(db.SaveReceipts([]*Receipt{coffeeReceipt("only", "1.00")})).To(Succeed())
			loaded, loadErr := db.LoadReceipts()
			Expect(loadErr).NotTo(HaveOccurred())
			Expect(loaded).To(HaveLen(1))
			Expect(loaded[0].ID).To(Equal("only"))
		})

		It("survives reopening the database", func() {
			Expect(db.Close()).To(Succeed())
			var openErr error
			db, openErr = NewBoltDB(dbPath)
			Expect(openErr).NotTo(HaveOccurred())

			loaded, loadErr := db.LoadReceipts()
			Expect(loadErr).NotTo(HaveOccurred())
			Expect(loaded).To(HaveLen(2))
		})

		When("saving nil", func() {
			BeforeEach(func() {
				saved = nil
			})

			It("stores an empty collection", func() {
				Expect(err).NotTo(HaveOccurred())
				loaded, loadErr := db.LoadReceipts()
				Expect(loadErr).NotTo(HaveOccurred())
				Expect(loaded).To(BeEmpty())
			})
		})
	})

	Describe("Settings", func() {
		When("nothing has been saved", func() {
			It("returns the defaults", func() {
				settings, err := db.LoadSettings()
				Expect(err).NotTo(HaveOccurred())
				Expect(settings).To(Equal(DefaultSettings()))
			})
		})

		When("settings are saved", func() {
			BeforeEach(func() {
				Expect(db.SaveSettings(Settings{AutoExportOnCapture: false})).To(Succeed())
			})

			It("loads them back", func() {
				settings, err := db.LoadSettings()
				Expect(err).NotTo(HaveOccurred())
				Expect(settings.AutoExportOnCapture).To(BeFalse())
			})
		})

		When("the stored settings are malformed", func() {
			BeforeEach(func() {
				putRaw(settingsBucketName, settingsKey, "[]")
			})

			It("returns the defaults with an error", func() {
				settings, err := db.LoadSettings()
				Expect(err).To(HaveOccurred())
				Expect(settings).To(Equal(DefaultSettings()))
			})
		})
	})
})
