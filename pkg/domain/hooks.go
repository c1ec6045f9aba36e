package domain

import "context"

// Hooks intercepts the run-loop lifecycle. Implementations receive snapshot
// values and return the new authoritative values; they must not retain or
// mutate the snapshots after returning. Any state a hook keeps (counters,
// clocks) is owned by the hook instance and injected at construction.
//
// A hook that returns an error aborts the run with that error as fatal.
type Hooks interface {
	// OnStateEnter runs before input resolution. The returned map becomes
	// the run context.
	OnStateEnter(ctx context.Context, state string, snapshot map[string]any) (map[string]any, error)

	// OnStateExit runs after a successful agent call, before the output
	// batch is merged into context. The returned value becomes the output.
	OnStateExit(ctx context.Context, state string, snapshot map[string]any, output any) (any, error)

	// OnTransition runs after a transition target has been selected and may
	// redirect to a different state name. The returned name must exist in
	// the machine; a bad redirect fails the run with UnknownStateError.
	OnTransition(ctx context.Context, from, to string, snapshot map[string]any) (string, error)

	// OnError runs when an agent call has failed past its execution
	// strategy and the state's on_error table had no matching entry.
	// Returning a state name routes there; returning "" declines to handle
	// and the error propagates as fatal.
	OnError(ctx context.Context, state string, cause error, snapshot map[string]any) (string, error)
}

// BaseHooks is the identity implementation. Embed it to override a subset
// of the extension points.
type BaseHooks struct{}

// OnStateEnter returns the snapshot unchanged.
func (BaseHooks) OnStateEnter(_ context.Context, _ string, snapshot map[string]any) (map[string]any, error) {
	return snapshot, nil
}

// OnStateExit returns the output unchanged.
func (BaseHooks) OnStateExit(_ context.Context, _ string, _ map[string]any, output any) (any, error) {
	return output, nil
}

// OnTransition keeps the selected target.
func (BaseHooks) OnTransition(_ context.Context, _, to string, _ map[string]any) (string, error) {
	return to, nil
}

// OnError declines to handle.
func (BaseHooks) OnError(_ context.Context, _ string, _ error, _ map[string]any) (string, error) {
	return "", nil
}

// Chain composes hooks in registration order. Each hook receives the
// previous one's output; chains never run hooks concurrently.
type Chain []Hooks

var _ Hooks = Chain(nil)

// OnStateEnter threads the context snapshot through every hook.
func (c Chain) OnStateEnter(ctx context.Context, state string, snapshot map[string]any) (map[string]any, error) {
	var err error
	for _, h := range c {
		if snapshot, err = h.OnStateEnter(ctx, state, snapshot); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

// OnStateExit threads the output through every hook.
func (c Chain) OnStateExit(ctx context.Context, state string, snapshot map[string]any, output any) (any, error) {
	var err error
	for _, h := range c {
		if output, err = h.OnStateExit(ctx, state, snapshot, output); err != nil {
			return nil, err
		}
	}
	return output, nil
}

// OnTransition threads the target through every hook; each hook sees the
// previous hook's (possibly redirected) target.
func (c Chain) OnTransition(ctx context.Context, from, to string, snapshot map[string]any) (string, error) {
	var err error
	for _, h := range c {
		if to, err = h.OnTransition(ctx, from, to, snapshot); err != nil {
			return "", err
		}
	}
	return to, nil
}

// OnError returns the first hook's non-empty recovery state.
func (c Chain) OnError(ctx context.Context, state string, cause error, snapshot map[string]any) (string, error) {
	for _, h := range c {
		next, err := h.OnError(ctx, state, cause, snapshot)
		if err != nil {
			return "", err
		}
		if next != "" {
			return next, nil
		}
	}
	return "", nil
}
