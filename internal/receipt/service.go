package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-vault/internal/scanning"
)

var (
	// ErrCaptureInProgress is returned when a capture starts while another
	// capture is running or a duplicate is awaiting confirmation
	ErrCaptureInProgress = errors.New("a capture is already in progress")

	// ErrNoPending is returned by ConfirmPending and DiscardPending when the slot is empty
	ErrNoPending = errors.New("no receipt is awaiting confirmation")

	// ErrNotFound is returned when a receipt id is unknown
	ErrNotFound = errors.New("receipt not found")

	// ErrExportDisabled is returned by ExportReceipt when no exporter is configured
	ErrExportDisabled = errors.New("export is not configured")

	// ErrInvalidUpdate wraps validation failures from Update
	ErrInvalidUpdate = errors.New("invalid update")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// CaptureStatus tells the caller what happened to a capture
type CaptureStatus string

const (
	CaptureSaved   CaptureStatus = "saved"
	CapturePending CaptureStatus = "pending_confirmation"
)

// CaptureResult is returned by a successful Capture
type CaptureResult struct {
	Status  CaptureStatus   `json:"status"`
	Receipt *Receipt        `json:"receipt,omitempty"`
	Pending *PendingReceipt `json:"pending,omitempty"`
}

// ReceiptUpdate carries the fields to overwrite; nil fields are left alone.
// Items replaces the whole line item list.
type ReceiptUpdate struct {
	MerchantName *string          `json:"merchantName,omitempty" validate:"omitempty,min=1"`
	Date         *string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TotalAmount  *decimal.Decimal `json:"totalAmount,omitempty"`
	Currency     *string          `json:"currency,omitempty" validate:"omitempty,min=1"`
	Category     *string          `json:"category,omitempty" validate:"omitempty,min=1"`
	Items        *[]scanning.Item `json:"items,omitempty"`
}

func (u ReceiptUpdate) empty() bool {
	return u.MerchantName == nil && u.Date == nil && u.TotalAmount == nil &&
		u.Currency == nil && u.Category == nil && u.Items == nil
}

func (u ReceiptUpdate) validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	if u.Items != nil {
		for i, item := range *u.Items {
			if err := validate.Struct(item); err != nil {
				return fmt.Errorf("%w: item %d: %v", ErrInvalidUpdate, i, err)
			}
		}
	}
	return nil
}

// Service owns the receipt collection and the capture cycle. It is the only
// writer of the metadata store; persistence always rewrites the whole
// collection, so a second writer would need real concurrency control.
type Service struct {
	store       MetadataStore
	extractor   scanning.Extractor
	blobs       BlobStore
	exporter    Exporter
	idGenerator IDGenerator
	timeSource  TimeSource

	mu        sync.Mutex
	receipts  []*Receipt // newest first, entries are never mutated after publishing
	settings  Settings
	pending   *PendingReceipt
	activeErr *scanning.ExtractionError
	state     State
}

// NewService creates a Service with default ID generator and time source and
// loads the persisted state. exporter may be nil.
func NewService(store MetadataStore, extractor scanning.Extractor, blobs BlobStore, exporter Exporter) *Service {
	return NewServiceWithDeps(store, extractor, blobs, exporter, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(store MetadataStore, extractor scanning.Extractor, blobs BlobStore, exporter Exporter, idGen IDGenerator, timeSrc TimeSource) *Service {
	s := &Service{
		store:       store,
		extractor:   extractor,
		blobs:       blobs,
		exporter:    exporter,
		idGenerator: idGen,
		timeSource:  timeSrc,
		state:       StateIdle,
	}
	s.load()
	return s
}

// load reads the persisted collection and settings once. Unreadable data
// degrades to the empty state.
func (s *Service) load() {
	receipts, err := s.store.LoadReceipts()
	if err != nil {
		slog.Warn("Failed to load receipts, starting with an empty collection", "error", err)
		receipts = make([]*Receipt, 0)
	}
	settings, err := s.store.LoadSettings()
	if err != nil {
		slog.Warn("Failed to load settings, using defaults", "error", err)
		settings = DefaultSettings()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = receipts
	s.settings = settings
}

// Capture runs one capture cycle: extraction, duplicate classification and,
// for new receipts, Finalize. A duplicate is parked in the pending slot and
// CapturePending is returned. Extraction failures are returned as
// *scanning.ExtractionError and become the active error. Once issued, the
// cycle runs to completion even if ctx is cancelled.
func (s *Service) Capture(ctx context.Context, image []byte, contentType string) (*CaptureResult, error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrCaptureInProgress
	}
	s.state = StateCapturing
	s.activeErr = nil
	s.mu.Unlock()

	result, err := s.extractor.Extract(ctx, image, contentType)
	if err != nil {
		extErr := asExtractionError(err)
		slog.Error("Failed to extract receipt",
			"content_type", contentType,
			"file_size", len(image),
			"kind", extErr.Kind,
			"error", err,
		)
		s.mu.Lock()
		s.activeErr = extErr
		s.state = StateIdle
		s.mu.Unlock()
		return nil, extErr
	}

	s.mu.Lock()
	s.state = StateReconciling
	classification := Classify(*result, s.receipts)
	if classification.Duplicate {
		s.pending = &PendingReceipt{
			Result:      *result,
			DuplicateOf: classification.Match,
			Image:       image,
		}
		s.state = StatePendingConfirm
		pending := s.pending
		s.mu.Unlock()

		slog.Info("Possible duplicate receipt",
			"merchant", result.MerchantName,
			"date", result.Date,
			"amount", result.TotalAmount.String(),
			"duplicate_of", classification.Match.ID,
		)
		return &CaptureResult{Status: CapturePending, Pending: pending}, nil
	}
	s.state = StateFinalizing
	s.mu.Unlock()

	receipt, err := s.Finalize(ctx, *result, image)

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &CaptureResult{Status: CaptureSaved, Receipt: receipt}, nil
}

// Finalize assigns an id, stores the image, then prepends the receipt to the
// collection. The image write completes before the metadata write so a crash
// in between leaves an orphaned blob rather than a receipt without an image.
// If the metadata write fails the blob is left behind; there is no rollback.
func (s *Service) Finalize(ctx context.Context, result scanning.ExtractionResult, image []byte) (*Receipt, error) {
	id := s.idGenerator.Generate()

	if err := s.blobs.Put(ctx, id, image); err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	receipt := &Receipt{
		ExtractionResult: cloneResult(result),
		ID:               id,
		CreatedAt:        s.timeSource.Now(),
		ImageRef:         id,
	}

	s.mu.Lock()
	updated := make([]*Receipt, 0, len(s.receipts)+1)
	updated = append(updated, receipt)
	updated = append(updated, s.receipts...)
	if err := s.store.SaveReceipts(updated); err != nil {
		s.mu.Unlock()
		slog.Error("Failed to save receipt metadata, image left orphaned", "id", id, "error", err)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	s.receipts = updated
	autoExport := s.settings.AutoExportOnCapture
	s.mu.Unlock()

	if autoExport {
		s.export(ctx, image, exportFilename(receipt.ExtractionResult))
	}

	slog.Info("Saved receipt", "id", id, "merchant", receipt.MerchantName, "amount", receipt.TotalAmount.String())
	return receipt, nil
}

func (s *Service) export(ctx context.Context, image []byte, filename string) {
	if s.exporter == nil {
		return
	}
	if err := s.exporter.Export(ctx, image, filename); err != nil {
		slog.Warn("Failed to export receipt image", "filename", filename, "error", err)
	}
}

// Pending returns the receipt awaiting confirmation, or nil
func (s *Service) Pending() *PendingReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ConfirmPending saves the pending duplicate as a new receipt. The slot is
// cleared whether or not the save succeeds, so the save ignores cancellation
// of ctx.
func (s *Service) ConfirmPending(ctx context.Context) (*Receipt, error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil, ErrNoPending
	}
	pending := s.pending
	s.pending = nil
	s.state = StateFinalizing
	s.mu.Unlock()

	receipt, err := s.Finalize(ctx, pending.Result, pending.Image)

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DiscardPending drops the pending duplicate without writing anything
func (s *Service) DiscardPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ErrNoPending
	}
	s.pending = nil
	s.state = StateIdle
	return nil
}

// Update overwrites the given fields of a receipt. An unknown id is a no-op,
// as is an empty update. The blob store is not touched.
func (s *Service) Update(_ context.Context, id string, update ReceiptUpdate) error {
	if update.empty() {
		return nil
	}
	if err := update.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		slog.Debug("Ignoring update for unknown receipt", "id", id)
		return nil
	}

	edited := *s.receipts[idx]
	edited.ExtractionResult = cloneResult(edited.ExtractionResult)
	if update.MerchantName != nil {
		edited.MerchantName = *update.MerchantName
	}
	if update.Date != nil {
		edited.Date = *update.Date
	}
	if update.TotalAmount != nil {
		edited.TotalAmount = *update.TotalAmount
	}
	if update.Currency != nil {
		edited.Currency = *update.Currency
	}
	if update.Category != nil {
		edited.Category = *update.Category
	}
	if update.Items != nil {
		edited.Items = cloneItems(*update.Items)
	}

	updated := make([]*Receipt, len(s.receipts))
	copy(updated, s.receipts)
	updated[idx] = &edited
	if err := s.store.SaveReceipts(updated); err != nil {
		return fmt.Errorf("saving receipt to database: %w", err)
	}
	s.receipts = updated
	return nil
}

// Delete removes a receipt and its image. A failed image delete is logged
// and the metadata delete still happens. An unknown id is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	imageRef := s.receipts[idx].ImageRef
	s.mu.Unlock()

	if err := s.blobs.Delete(ctx, imageRef); err != nil {
		slog.Warn("Failed to delete receipt image", "id", id, "image_ref", imageRef, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make([]*Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		if r.ID != id {
			updated = append(updated, r)
		}
	}
	if err := s.store.SaveReceipts(updated); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	s.receipts = updated
	return nil
}

// Get returns a receipt by id
func (s *Service) Get(id string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("getting receipt %s: %w", id, ErrNotFound)
	}
	return s.receipts[idx], nil
}

// List returns the receipts matching f, newest first
func (s *Service) List(f Filter) []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.Apply(s.receipts)
}

// Stats summarizes the receipts matching f
func (s *Service) Stats(f Filter) Stats {
	return ComputeStats(s.List(f), s.timeSource.Now())
}

// Categories returns the distinct categories in use, sorted
func (s *Service) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return distinctCategories(s.receipts)
}

// Image returns the stored image for a receipt
func (s *Service) Image(ctx context.Context, id string) ([]byte, error) {
	receipt, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, receipt.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("getting receipt image: %w", err)
	}
	return data, nil
}

// ExportReceipt saves a copy of a receipt image through the exporter
func (s *Service) ExportReceipt(ctx context.Context, id string) (string, error) {
	if s.exporter == nil {
		return "", ErrExportDisabled
	}
	receipt, err := s.Get(id)
	if err != nil {
		return "", err
	}
	data, err := s.Image(ctx, id)
	if err != nil {
		return "", err
	}
	filename := manualExportFilename(receipt.ExtractionResult)
	if err := s.exporter.Export(ctx, data, filename); err != nil {
		return "", fmt.Errorf("exporting receipt: %w", err)
	}
	return filename, nil
}

// Settings returns the current settings
func (s *Service) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetAutoExport toggles export on capture and persists the settings
func (s *Service) SetAutoExport(enabled bool) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.settings
	settings.AutoExportOnCapture = enabled
	if err := s.store.SaveSettings(settings); err != nil {
		return s.settings, fmt.Errorf("saving settings: %w", err)
	}
	s.settings = settings
	return settings, nil
}

// ActiveError returns the error from the last failed capture, or nil
func (s *Service) ActiveError() *scanning.ExtractionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeErr
}

// DismissError clears the active error
func (s *Service) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeErr = nil
}

// State returns the capture cycle state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// indexOf must be called with mu held
func (s *Service) indexOf(id string) int {
	for i, r := range s.receipts {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func asExtractionError(err error) *scanning.ExtractionError {
	var extErr *scanning.ExtractionError
	if errors.As(err, &extErr) {
		return extErr
	}
	return scanning.NewExtractionError(scanning.KindUnknown, err)
}

func cloneResult(r scanning.ExtractionResult) scanning.ExtractionResult {
	r.Items = cloneItems(r.Items)
	return r
}

func cloneItems(items []scanning.Item) []scanning.Item {
	out := make([]scanning.Item, len(items))
	copy(out, items)
	return out
}
