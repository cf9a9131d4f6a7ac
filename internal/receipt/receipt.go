package receipt

import (
	"time"

	"github.com/zombor/receipt-vault/internal/scanning"
)

// Receipt is a persisted record of one purchase. The image bytes live in the
// BlobStore under ImageRef; the metadata store only keeps the fields below.
type Receipt struct {
	scanning.ExtractionResult
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ImageRef  string    `json:"imageRef"`
}

// Settings holds user preferences
type Settings struct {
	AutoExportOnCapture bool `json:"autoExportOnCapture"`
}

// DefaultSettings is used when nothing has been persisted yet
func DefaultSettings() Settings {
	return Settings{AutoExportOnCapture: true}
}

// PendingReceipt holds a capture that matched an existing record while the
// user decides whether to keep it
type PendingReceipt struct {
	Result      scanning.ExtractionResult `json:"result"`
	DuplicateOf *Receipt                  `json:"duplicateOf"`
	Image       []byte                    `json:"-"`
}

// State is the capture cycle state
type State string

const (
	StateIdle           State = "IDLE"
	StateCapturing      State = "CAPTURING"
	StateExtracted      State = "EXTRACTED"
	StateReconciling    State = "RECONCILING"
	StatePendingConfirm State = "PENDING_CONFIRM"
	StateFinalizing     State = "FINALIZING"
)
