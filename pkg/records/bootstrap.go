package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Loader reads the persisted state. Load returns (nil, nil) when nothing has
// been persisted yet and an error wrapping ErrMalformedState when a document
// exists but cannot be trusted.
type Loader interface {
	Load(ctx context.Context) (*State, error)
}

// Bootstrap loads the persisted state and seeds store with it. Absent and
// malformed state both fall back to the zero state; any other load error means
// storage is unreachable and is returned to the caller as fatal.
func Bootstrap(ctx context.Context, loader Loader, store *Store, logger *slog.Logger) (State, error) {
	if logger == nil {
		logger = slog.Default()
	}

	persisted, err := loader.Load(ctx)
	switch {
	case errors.Is(err, ErrMalformedState):
		logger.Warn("persisted state is malformed, starting from zero", "error", err)
		persisted = nil
	case err != nil:
		return State{}, fmt.Errorf("load persisted state: %w", err)
	case persisted == nil:
		logger.Info("no persisted state found, starting from zero")
	}

	state, reset := store.Initialize(persisted)
	if reset && persisted != nil {
		logger.Warn("persisted state failed validation, starting from zero")
	}

	logger.Info("record state loaded",
		"current_high", state.CurrentHigh,
		"history", len(state.History),
		"capacity", store.Capacity(),
	)
	return state, nil
}
