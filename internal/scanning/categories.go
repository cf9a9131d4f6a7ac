package scanning

import "strings"

// DefaultCategory is assigned when the service returns no category
const DefaultCategory = "Other Business Expense"

// Categories is the fixed list the extraction prompt asks the model to choose from
var Categories = []string{
	"Meals & Entertainment",
	"Travel",
	"Office Supplies",
	"Software & Subscriptions",
	"Utilities",
	"Rent/Lease",
	"Professional Services",
	"Marketing/Advertising",
	"Insurance",
	"Taxes & Licenses",
	"Maintenance & Repairs",
	DefaultCategory,
}

// canonicalCategory maps a case-insensitive match onto the fixed list.
// Free text that matches nothing is kept as-is.
func canonicalCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory
	}
	for _, c := range Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return category
}
