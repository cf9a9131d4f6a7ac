package receipt

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows a receipt listing. Zero values match everything.
type Filter struct {
	Search    string // case-insensitive substring of the merchant name
	Category  string // exact category
	StartDate string // inclusive, YYYY-MM-DD
	EndDate   string // inclusive, YYYY-MM-DD
}

// Match reports whether r passes the filter. ISO dates compare correctly as strings.
func (f Filter) Match(r *Receipt) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(r.MerchantName), strings.ToLower(f.Search)) {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.StartDate != "" && r.Date < f.StartDate {
		return false
	}
	if f.EndDate != "" && r.Date > f.EndDate {
		return false
	}
	return true
}

// Apply returns the matching receipts, preserving order
func (f Filter) Apply(receipts []*Receipt) []*Receipt {
	out := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// CategoryTotal is the spend in one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// MonthTotal is the spend in one calendar month
type MonthTotal struct {
	Month string          `json:"month"` // YYYY-MM
	Total decimal.Decimal `json:"total"`
}

// Stats summarizes a set of receipts for the dashboard
type Stats struct {
	TotalSpent   decimal.Decimal `json:"totalSpent"`
	ReceiptCount int             `json:"receiptCount"`
	ByCategory   []CategoryTotal `json:"byCategory"`
	ByMonth      []MonthTotal    `json:"byMonth"`
}

const statsMonths = 6

// ComputeStats totals receipts overall, per category (largest first) and for
// the last six calendar months ending with the month of now (oldest first)
func ComputeStats(receipts []*Receipt, now time.Time) Stats {
	stats := Stats{
		TotalSpent:   decimal.Zero,
		ReceiptCount: len(receipts),
		ByCategory:   make([]CategoryTotal, 0),
		ByMonth:      make([]MonthTotal, 0, statsMonths),
	}

	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthIndex := make(map[string]int, statsMonths)
	for i := statsMonths - 1; i >= 0; i-- {
		key := firstOfMonth.AddDate(0, -i, 0).Format("2006-01")
		monthIndex[key] = len(stats.ByMonth)
		stats.ByMonth = append(stats.ByMonth, MonthTotal{Month: key, Total: decimal.Zero})
	}

	categoryIndex := make(map[string]int)
	for _, r := range receipts {
		stats.TotalSpent = stats.TotalSpent.Add(r.TotalAmount)

		idx, ok := categoryIndex[r.Category]
		if !ok {
			idx = len(stats.ByCategory)
			categoryIndex[r.Category] = idx
			stats.ByCategory = append(stats.ByCategory, CategoryTotal{Category: r.Category, Total: decimal.Zero})
		}
		stats.ByCategory[idx].Total = stats.ByCategory[idx].Total.Add(r.TotalAmount)

		if len(r.Date) >= 7 {
			if mi, ok := monthIndex[r.Date[:7]]; ok {
				stats.ByMonth[mi].Total = stats.ByMonth[mi].Total.Add(r.TotalAmount)
			}
		}
	}

	sort.SliceStable(stats.ByCategory, func(i, j int) bool {
		return stats.ByCategory[i].Total.GreaterThan(stats.ByCategory[j].Total)
	})

	return stats
}

// distinctCategories returns the sorted set of categories in use
func distinctCategories(receipts []*Receipt) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range receipts {
		if _, ok := seen[r.Category]; ok {
			continue
		}
		seen[r.Category] = struct{}{}
		out = append(out, r.Category)
	}
	sort.Strings(out)
	return out
}
