package adapters

import (
	"context"
	"errors"
)

// ErrFetch wraps every failure to obtain an observation from upstream:
// transport errors, timeouts, unexpected status codes and undecodable bodies.
var ErrFetch = errors.New("fetch failed")

// Source is the interface that all peakwatch upstream adapters implement.
//
// Fetch performs one request/response round trip and returns a single
// observation. It must respect context cancellation and deadlines, and never
// panic. Values that are not finite non-negative integers are reported with an
// error wrapping records.ErrInvalidObservation.
type Source interface {
	Fetch(ctx context.Context) (int64, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "steam", "prometheus".
	Name() string
}
