package ingest

import (
	"fmt"
	"strings"
)

const (
	maxUIDLength = 255
	// maxTextLength bounds a single document. Under ALL_SUBSTRINGS mode the
	// index grows quadratically with token length, so unbounded input is a
	// memory hazard rather than a correctness one.
	maxTextLength = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIndexRequest checks the identifier and text constraints. Empty
// text is allowed: it registers the identifier without contributing tokens.
func ValidateIndexRequest(req *IndexRequest) error {
	errs := make(map[string]string)

	if req.UID == "" {
		errs["uid"] = "uid is required"
	} else if len(req.UID) > maxUIDLength {
		errs["uid"] = fmt.Sprintf("uid must be at most %d bytes", maxUIDLength)
	}
	if len(req.Text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
