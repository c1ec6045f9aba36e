package ports

import (
	"context"
	"errors"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// ErrTraceNotFound is returned when a run ID cannot be found in the store.
var ErrTraceNotFound = errors.New("trace not found")

// TraceStore persists finished run traces. The engine core never persists
// anything itself; hosts that want replay or audit save the Result's trace
// through one of these.
type TraceStore interface {
	// Save persists the trace under its RunID.
	Save(ctx context.Context, trace *domain.Trace) error

	// Load retrieves a trace by run ID.
	// Returns ErrTraceNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Trace, error)

	// List returns the run IDs currently held by the store.
	List(ctx context.Context) ([]string, error)

	// Delete removes the trace for a run ID.
	Delete(ctx context.Context, runID string) error
}
