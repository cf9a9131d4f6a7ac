package receipt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/panjf2000/ants/v2"

	"github.com/zombor/receipt-vault/internal/scanning"
)

const exportPrefix = "TaxTrack"

// Exporter copies a receipt image somewhere the user can reach it outside the app
type Exporter interface {
	Export(ctx context.Context, data []byte, filename string) error
}

// exportFilename is the name used for automatic exports after capture
func exportFilename(r scanning.ExtractionResult) string {
	return fmt.Sprintf("%s_%s_%s_%s.jpg", exportPrefix, r.Date, cleanMerchant(r.MerchantName), r.TotalAmount.StringFixed(2))
}

// manualExportFilename is the name used when the user saves a copy by hand
func manualExportFilename(r scanning.ExtractionResult) string {
	return fmt.Sprintf("%s_%s_%s.jpg", exportPrefix, r.Date, cleanMerchant(r.MerchantName))
}

// cleanMerchant lowercases the name and replaces every character outside
// [a-z0-9] with an underscore. Characters beyond the Basic Multilingual Plane
// become two underscores, one per UTF-16 code unit.
func cleanMerchant(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case utf16.RuneLen(r) == 2:
			b.WriteString("__")
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DirExporter writes exports into a directory, never overwriting an existing file
type DirExporter struct {
	dir string
}

// NewDirExporter creates the export directory if needed
func NewDirExporter(dir string) (*DirExporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &DirExporter{dir: dir}, nil
}

// Export writes data to filename, appending " (n)" before the extension when taken
func (d *DirExporter) Export(_ context.Context, data []byte, filename string) error {
	filename = filepath.Base(filename)
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	for n := 0; n < 1000; n++ {
		name := filename
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("writing export file: %w", err)
		}
		return f.Close()
	}
	return fmt.Errorf("too many exports named %s", filename)
}

// AsyncExporter runs exports on a goroutine pool. Export returns as soon as
// the job is queued; failures are only logged.
type AsyncExporter struct {
	next Exporter
	pool *ants.Pool
	wg   sync.WaitGroup
}

// NewAsyncExporter wraps next with a pool of the given size
func NewAsyncExporter(next Exporter, workers int) (*AsyncExporter, error) {
	if workers <= 0 {
		workers = 2
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating export pool: %w", err)
	}
	return &AsyncExporter{next: next, pool: pool}, nil
}

// Export queues the export and returns immediately
func (a *AsyncExporter) Export(ctx context.Context, data []byte, filename string) error {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	err := a.pool.Submit(func() {
		defer a.wg.Done()
		if err := a.next.Export(ctx, data, filename); err != nil {
			slog.Warn("Failed to export receipt image", "filename", filename, "error", err)
			return
		}
		slog.Info("Exported receipt image", "filename", filename)
	})
	if err != nil {
		a.wg.Done()
		return fmt.Errorf("queueing export: %w", err)
	}
	return nil
}

// Close waits for queued exports and releases the pool
func (a *AsyncExporter) Close() {
	a.wg.Wait()
	a.pool.Release()
}
