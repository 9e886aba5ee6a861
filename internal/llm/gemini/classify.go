package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/aipe-tech/dataextract/internal/common"
)

// classify maps a transport/API error onto the pipeline taxonomy. Rate limits,
// server faults and timeouts are transient; a 4xx rejection of the payload
// means the document itself is the problem.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("gemini: status %d: %w", gerr.Code, common.ErrServiceUnavailable)
		case gerr.Code == http.StatusBadRequest || gerr.Code == http.StatusUnprocessableEntity:
			return fmt.Errorf("gemini: status %d: %w", gerr.Code, common.ErrInvalidDocument)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("gemini: %v: %w", err, common.ErrServiceUnavailable)
	}
	// Unrecognized transport faults are treated as transient.
	return fmt.Errorf("gemini: %v: %w", err, common.ErrServiceUnavailable)
}
