package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/receipt-vault/internal/scanning"
)

// 50MB to handle high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes {"error": message}
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// contentTypeFor falls back to the file extension when the part has no Content-Type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleCapture runs a capture cycle on the uploaded file
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)

	result, err := s.service.Capture(r.Context(), data, contentType)
	if err != nil {
		var extErr *scanning.ExtractionError
		switch {
		case errors.Is(err, ErrCaptureInProgress):
			jsonError(w, err.Error(), http.StatusConflict)
		case errors.As(err, &extErr):
			writeJSON(w, http.StatusUnprocessableEntity, extErr)
		default:
			slog.Error("Error saving receipt", "filename", header.Filename, "error", err)
			jsonError(w, "Failed to save receipt", http.StatusInternalServerError)
		}
		return
	}

	code := http.StatusCreated
	if result.Status == CapturePending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, result)
}

// handleGetPending returns the receipt awaiting confirmation
func (s *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	pending := s.service.Pending()
	if pending == nil {
		jsonError(w, ErrNoPending.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleConfirmPending saves the pending duplicate
func (s *Server) handleConfirmPending(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.ConfirmPending(r.Context())
	if errors.Is(err, ErrNoPending) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error confirming pending receipt", "error", err)
		jsonError(w, "Failed to save receipt", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleDiscardPending drops the pending duplicate
func (s *Server) handleDiscardPending(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DiscardPending(); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetError returns the active extraction error
func (s *Server) handleGetError(w http.ResponseWriter, r *http.Request) {
	extErr := s.service.ActiveError()
	if extErr == nil {
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, extErr)
}

// handleDismissError clears the active extraction error
func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	s.service.DismissError()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// filterFromQuery reads search, category, from and to
func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{
		Search:    strings.TrimSpace(q.Get("search")),
		Category:  q.Get("category"),
		StartDate: q.Get("from"),
		EndDate:   q.Get("to"),
	}
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return Filter{}, err
		}
	}
	return f, nil
}

// handleListReceipts returns the receipts matching the query, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		jsonError(w, "Dates must be formatted YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.service.List(f))
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleUpdateReceipt applies a partial update. An unknown id is not an error.
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var update ReceiptUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.Update(r.Context(), id, update); err != nil {
		if errors.Is(err, ErrInvalidUpdate) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error updating receipt", "id", id, "error", err)
		jsonError(w, "Failed to update receipt", http.StatusInternalServerError)
		return
	}

	receipt, err := s.service.Get(id)
	if err != nil {
		setCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleDeleteReceipt deletes a receipt and its image
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.Delete(r.Context(), id); err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetReceiptImage returns the stored image for a receipt
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Image(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBlobNotFound) {
			corsError(w, "Image not found", http.StatusNotFound)
			return
		}
		slog.Error("Error reading receipt image", "error", err)
		corsError(w, "Error reading image", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", http.DetectContentType(data))
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing receipt image", "error", err)
	}
}

// handleExportReceipt saves a copy of the receipt image to the export target
func (s *Server) handleExportReceipt(w http.ResponseWriter, r *http.Request) {
	filename, err := s.service.ExportReceipt(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrExportDisabled):
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrBlobNotFound):
			jsonError(w, "Receipt not found", http.StatusNotFound)
		default:
			slog.Error("Error exporting receipt", "error", err)
			jsonError(w, "Failed to export receipt", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": filename})
}

// handleStats returns dashboard totals for the matching receipts
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		jsonError(w, "Dates must be formatted YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Stats(f))
}

// handleCategories returns the known categories and the ones in use
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"known": scanning.Categories,
		"used":  s.service.Categories(),
	})
}

// handleGetSettings returns the current settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Settings())
}

// handleUpdateSettings changes the auto-export setting
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AutoExportOnCapture *bool `json:"autoExportOnCapture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AutoExportOnCapture == nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	settings, err := s.service.SetAutoExport(*req.AutoExportOnCapture)
	if err != nil {
		slog.Error("Error saving settings", "error", err)
		jsonError(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
