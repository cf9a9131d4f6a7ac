package scanning

import (
	"fmt"
	"strings"
)

// extractionPrompt is shared by all backends
var extractionPrompt = fmt.Sprintf(`Act as a professional bookkeeper. Extract the details from this receipt precisely.

1. merchantName: the store or business name, usually the largest text at the top.
2. date: the transaction date in YYYY-MM-DD format.
3. totalAmount: the final total actually paid, as a number without currency symbols.
4. currency: the currency symbol printed on the receipt, such as $ or £.
5. category: exactly one of: %s.
6. items: every purchased line with its description and amount as a number.

Return ONLY valid JSON in this exact format:
{
  "merchantName": "Store Name",
  "date": "YYYY-MM-DD",
  "totalAmount": 0.00,
  "currency": "$",
  "category": "Other Business Expense",
  "items": [{"description": "Item", "amount": 0.00}]
}

If you cannot find a field, use null for that field. Do not include any text before or after the JSON.`,
	strings.Join(Categories, ", "))
