package receipt

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-vault/internal/scanning"
)

// amountTolerance absorbs representation noise, it is absolute and not a percentage
var amountTolerance = decimal.New(1, -2)

// Classification is the outcome of comparing a fresh extraction to the
// existing collection
type Classification struct {
	Duplicate bool
	Match     *Receipt
}

// Classify reports whether candidate duplicates any existing receipt.
// A duplicate has the same merchant ignoring case, the same ISO date string
// and a total within amountTolerance (strictly less than). existing is in
// newest-first order and the first match wins.
func Classify(candidate scanning.ExtractionResult, existing []*Receipt) Classification {
	for _, r := range existing {
		if isDuplicate(candidate, r) {
			return Classification{Duplicate: true, Match: r}
		}
	}
	return Classification{}
}

func isDuplicate(candidate scanning.ExtractionResult, r *Receipt) bool {
	if r == nil {
		return false
	}
	if !strings.EqualFold(candidate.MerchantName, r.MerchantName) {
		return false
	}
	if candidate.Date != r.Date {
		return false
	}
	return candidate.TotalAmount.Sub(r.TotalAmount).Abs().LessThan(amountTolerance)
}
