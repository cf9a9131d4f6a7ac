package scanning

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is a single line entry on a receipt
type Item struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// ExtractionResult contains the structured fields read from a receipt image.
// Every field is populated; missing values are replaced with defaults before
// the result leaves this package.
type ExtractionResult struct {
	MerchantName string          `json:"merchantName" validate:"required"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Currency     string          `json:"currency" validate:"required"`
	Category     string          `json:"category" validate:"required"`
	Items        []Item          `json:"items" validate:"dive"`
}

// Extractor defines the interface for AI receipt extraction
type Extractor interface {
	// Extract analyzes a receipt image/PDF and returns its structured fields.
	// Failures are always *ExtractionError.
	Extract(ctx context.Context, imageData []byte, contentType string) (*ExtractionResult, error)
	// Close closes the extractor and releases resources
	Close() error
}
