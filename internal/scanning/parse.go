package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	isoDate         = "2006-01-02"
	unknownMerchant = "Unknown Merchant"
	defaultCurrency = "$"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// rawExtraction mirrors the JSON the model is asked for, but with loose types
// so that strings-for-numbers and nulls do not fail decoding
type rawExtraction struct {
	MerchantName *string         `json:"merchantName"`
	Date         *string         `json:"date"`
	TotalAmount  json.RawMessage `json:"totalAmount"`
	Currency     *string         `json:"currency"`
	Category     *string         `json:"category"`
	Items        json.RawMessage `json:"items"`
}

type rawItem struct {
	Description *string         `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

var dateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// extractJSONObject strips markdown fences and surrounding prose, returning
// the outermost JSON object in text
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parseExtraction decodes a model response and normalizes it into a fully
// populated ExtractionResult. now supplies the fallback date.
func parseExtraction(text string, now time.Time) (*ExtractionResult, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, NewExtractionError(KindUnknown, err)
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, NewExtractionError(KindUnknown, fmt.Errorf("unmarshaling json: %w", err))
	}

	result := &ExtractionResult{
		MerchantName: normalizeMerchant(raw.MerchantName),
		Date:         normalizeDate(raw.Date, now),
		TotalAmount:  parseAmount(raw.TotalAmount),
		Currency:     normalizeCurrency(raw.Currency),
		Category:     canonicalCategory(deref(raw.Category)),
		Items:        parseItems(raw.Items),
	}

	if err := validate.Struct(result); err != nil {
		return nil, NewExtractionError(KindUnknown, fmt.Errorf("validating extraction: %w", err))
	}

	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizeMerchant(name *string) string {
	merchant := strings.Join(strings.Fields(deref(name)), " ")
	if merchant == "" {
		return unknownMerchant
	}
	return merchant
}

func normalizeCurrency(currency *string) string {
	c := strings.TrimSpace(deref(currency))
	if c == "" {
		return defaultCurrency
	}
	return c
}

func normalizeDate(date *string, now time.Time) string {
	d := strings.TrimSpace(deref(date))
	today := now.Format(isoDate)
	if d == "" {
		return today
	}
	if parsed, err := time.Parse(isoDate, d); err == nil {
		return parsed.Format(isoDate)
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, d); err == nil {
			return parsed.Format(isoDate)
		}
	}
	return today
}

// parseAmount accepts a JSON number or a string such as "$1,234.50".
// Anything unparseable becomes zero.
func parseAmount(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero
		}
		s = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, str)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

func parseItems(raw json.RawMessage) []Item {
	items := make([]Item, 0)
	if len(raw) == 0 {
		return items
	}
	var rawItems []rawItem
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return items
	}
	for _, ri := range rawItems {
		desc := strings.TrimSpace(deref(ri.Description))
		if desc == "" {
			continue
		}
		items = append(items, Item{
			Description: desc,
			Amount:      parseAmount(ri.Amount),
		})
	}
	return items
}
