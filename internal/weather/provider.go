package weather

import (
	"context"
	"errors"
	"fmt"
)

// Provider abstracts the upstream weather source for a single, fixed location.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (Reading, error)
}

var (
	// ErrFetchFailed covers network errors, timeouts and an open circuit.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrFetchRejected is matched by *RejectedError for non-2xx responses.
	ErrFetchRejected = errors.New("fetch rejected")
	// ErrFetchMalformed is returned when the body is not the expected JSON shape.
	ErrFetchMalformed = errors.New("fetch malformed")
)

// RejectedError carries the upstream status and (truncated) body for diagnostics.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrFetchRejected, e.StatusCode, e.Body)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrFetchRejected
}

// ErrorKind names the fetch failure class of err, or "" if err is not a fetch error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrFetchRejected):
		return "FetchRejected"
	case errors.Is(err, ErrFetchMalformed):
		return "FetchMalformed"
	case errors.Is(err, ErrFetchFailed):
		return "FetchFailed"
	default:
		return ""
	}
}
