package financeapi

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// StatusError is returned when the finance API replies with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	// Body is the response body, truncated to maxErrorBody bytes.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("finance API %s %s: %s", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("finance API %s %s: %s: %s", e.Method, e.URL, e.Status, e.Body)
}

// IsStatusError returns the *StatusError from the err chain, if any.
func IsStatusError(err error) (*StatusError, bool) {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}
