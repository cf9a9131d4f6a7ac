package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Filter", func() {
	var receipts []*Receipt

	BeforeEach(func() {
		coffee := coffeeReceipt("coffee", "12.50")

		flight := coffeeReceipt("flight", "300.00")
		flight.MerchantName = "Delta Airlines"
		flight.Category = "Travel"
		flight.Date = "2024-01-02"

		paper := coffeeReceipt("paper", "20.00")
		paper.MerchantName = "Office Depot"
		paper.Category = "Office Supplies"
		paper.Date = "2023-11-30"

		receipts = []*Receipt{coffee, flight, paper}
	})

	ids := func(rs []*Receipt) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	DescribeTable("Apply",
		func(f Filter, expected []string) {
			Expect(ids(f.Apply(receipts))).To(Equal(expected))
		},
		Entry("zero filter keeps everything in order", Filter{}, []string{"coffee", "flight", "paper"}),
		Entry("search ignores case", Filter{Search: "DELTA"}, []string{"flight"}),
		Entry("search matches substrings", Filter{Search: "o"}, []string{"coffee", "flight", "paper"}),
		Entry("category is exact", Filter{Category: "Travel"}, []string{"flight"}),
		Entry("start date is inclusive", Filter{StartDate: "2024-01-02"}, []string{"coffee", "flight"}),
		Entry("end date is inclusive", Filter{EndDate: "2024-01-02"}, []string{"flight", "paper"}),
		Entry("filters combine", Filter{Search: "shop", Category: "Travel"}, []string{}),
	)
})

var _ = Describe("ComputeStats", func() {
	var (
		receipts []*Receipt
		now      time.Time
		stats    Stats
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

		march := coffeeReceipt("march", "10.00")
		march.Date = "2024-03-01"

		jan := coffeeReceipt("jan", "5.25")
		jan.Date = "2024-01-20"

		travel := coffeeReceipt("travel", "100.00")
		travel.Category = "Travel"
		travel.Date = "2023-10-05"

		old := coffeeReceipt("old", "1.00")
		old.Date = "2023-01-01"

		receipts = []*Receipt{march, jan, travel, old}
	})

	JustBeforeEach(func() {
		stats = ComputeStats(receipts, now)
	})

	It("totals everything", func() {
		Expect(stats.ReceiptCount).To(Equal(4))
		Expect(stats.TotalSpent.Equal(amount("116.25"))).To(BeTrue())
	})

	It("orders categories by spend", func() {
		Expect(stats.ByCategory).To(HaveLen(2))
		Expect(stats.ByCategory[0].Category).To(Equal("Travel"))
		Expect(stats.ByCategory[1].Category).To(Equal("Meals & Entertainment"))
		Expect(stats.ByCategory[1].Total.Equal(amount("16.25"))).To(BeTrue())
	})

	It("covers the last six months oldest first", func() {
		months := make([]string, 0, len(stats.ByMonth))
		for _, m := range stats.ByMonth {
			months = append(months, m.Month)
		}
		Expect(months).To(Equal([]string{"2023-10", "2023-11", "2023-12", "2024-01", "2024-02", "2024-03"}))
		Expect(stats.ByMonth[0].Total.Equal(amount("100.00"))).To(BeTrue())
		Expect(stats.ByMonth[3].Total.Equal(amount("5.25"))).To(BeTrue())
		Expect(stats.ByMonth[4].Total.IsZero()).To(BeTrue())
		Expect(stats.ByMonth[5].Total.Equal(amount("10.00"))).To(BeTrue())
	})

	When("there are no receipts", func() {
		BeforeEach(func() {
			receipts = nil
		})

		It("returns zeroed stats", func() {
			Expect(stats.ReceiptCount).To(BeZero())
			Expect(stats.TotalSpent.IsZero()).To(BeTrue())
			Expect(stats.ByCategory).To(BeEmpty())
			Expect(stats.ByMonth).To(HaveLen(6))
		})
	})
})
