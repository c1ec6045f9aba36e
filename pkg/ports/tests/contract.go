// Package tests provides reusable contract suites for ports implementations.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

// RunTraceStoreContract exercises the TraceStore behavior every adapter
// must satisfy.
func RunTraceStoreContract(t *testing.T, store ports.TraceStore) {
	t.Helper()
	ctx := context.Background()

	trace := &domain.Trace{
		RunID:     "run-contract-1",
		Machine:   "contract",
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Steps: []domain.StepTrace{
			{Seq: 1, State: "start", Transition: "work"},
			{Seq: 2, State: "work", Output: map[string]any{"ok": true}, Transition: "done"},
		},
		Output: map[string]any{"ok": true},
	}

	// Load before save must report not-found.
	_, err := store.Load(ctx, trace.RunID)
	assert.ErrorIs(t, err, ports.ErrTraceNotFound)

	require.NoError(t, store.Save(ctx, trace))

	loaded, err := store.Load(ctx, trace.RunID)
	require.NoError(t, err)
	assert.Equal(t, trace.RunID, loaded.RunID)
	assert.Equal(t, trace.Machine, loaded.Machine)
	assert.Len(t, loaded.Steps, 2)
	assert.Equal(t, "work", loaded.Steps[0].Transition)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, trace.RunID)

	require.NoError(t, store.Delete(ctx, trace.RunID))
	_, err = store.Load(ctx, trace.RunID)
	assert.ErrorIs(t, err, ports.ErrTraceNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, trace.RunID)
}
