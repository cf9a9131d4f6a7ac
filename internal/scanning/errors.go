package scanning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// ErrorKind classifies an extraction failure for the user
type ErrorKind string

const (
	KindImageQuality ErrorKind = "IMAGE_QUALITY"
	KindNetwork      ErrorKind = "NETWORK"
	KindAPILimit     ErrorKind = "API_LIMIT"
	KindUnknown      ErrorKind = "UNKNOWN"
	KindInvalidFile  ErrorKind = "INVALID_FILE"
)

// ExtractionError is the only error type returned by an Extractor
type ExtractionError struct {
	Kind        ErrorKind `json:"type"`
	Message     string    `json:"message"`
	Suggestions []string  `json:"suggestions"`
	Cause       error     `json:"-"`
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

var defaultMessages = map[ErrorKind]struct {
	message     string
	suggestions []string
}{
	KindImageQuality: {
		message: "The receipt could not be read from this image.",
		suggestions: []string{
			"Retake the photo in better lighting",
			"Make sure the whole receipt is in frame and in focus",
			"Flatten creased or curled receipts before capturing",
		},
	},
	KindNetwork: {
		message: "Could not reach the extraction service.",
		suggestions: []string{
			"Check your internet connection",
			"Try again in a few moments",
		},
	},
	KindAPILimit: {
		message: "The extraction service quota has been exhausted.",
		suggestions: []string{
			"Wait a minute and try again",
			"Verify your API key plan and quota",
		},
	},
	KindInvalidFile: {
		message: "This file type is not supported.",
		suggestions: []string{
			"Upload a JPEG, PNG, GIF, HEIC or PDF file",
			"Make sure the file is not empty or corrupted",
		},
	},
	KindUnknown: {
		message: "AI failed to process the receipt safely.",
		suggestions: []string{
			"Check your internet connection",
			"The image might be too large or complex",
			"Verify your API key is still valid",
		},
	},
}

// NewExtractionError builds an error of the given kind with the default
// message and suggestions for that kind
func NewExtractionError(kind ErrorKind, cause error) *ExtractionError {
	d, ok := defaultMessages[kind]
	if !ok {
		kind = KindUnknown
		d = defaultMessages[KindUnknown]
	}
	suggestions := make([]string, len(d.suggestions))
	copy(suggestions, d.suggestions)
	return &ExtractionError{
		Kind:        kind,
		Message:     d.message,
		Suggestions: suggestions,
		Cause:       cause,
	}
}

// classifyError maps a backend error onto the extraction taxonomy.
// Errors that are already classified pass through unchanged.
func classifyError(err error) *ExtractionError {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return NewExtractionError(kindForStatus(apiErr.Code), err)
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return NewExtractionError(kindForStatus(statusErr.code), err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return NewExtractionError(KindImageQuality, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewExtractionError(KindNetwork, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewExtractionError(KindNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota"):
		return NewExtractionError(KindAPILimit, err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return NewExtractionError(KindNetwork, err)
	}

	return NewExtractionError(KindUnknown, err)
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindAPILimit
	case code == http.StatusRequestEntityTooLarge || code == http.StatusUnsupportedMediaType:
		return KindInvalidFile
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// httpStatusError is returned by HTTP based backends for non-200 responses
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.code, e.body)
}
