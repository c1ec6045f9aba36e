// Package metrics provides a Hooks implementation that counts engine
// activity on Prometheus collectors. The collectors are owned by the Hooks
// instance and registered at construction, never on global state.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// Hooks counts states entered, transitions taken and agent errors by kind.
// It observes only; context, outputs and transition targets pass through
// unchanged.
type Hooks struct {
	domain.BaseHooks

	statesEntered *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	agentErrors   *prometheus.CounterVec
}

var _ domain.Hooks = (*Hooks)(nil)

// NewHooks creates the hooks and registers its collectors on reg.
func NewHooks(reg prometheus.Registerer) *Hooks {
	h := &Hooks{
		statesEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flatagents",
			Name:      "states_entered_total",
			Help:      "States entered by the run loop.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flatagents",
			Name:      "transitions_total",
			Help:      "Transitions taken, labeled by edge.",
		}, []string{"from", "to"}),
		agentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flatagents",
			Name:      "agent_errors_total",
			Help:      "Agent failures reaching the error hook, by kind.",
		}, []string{"state", "kind"}),
	}
	reg.MustRegister(h.statesEntered, h.transitions, h.agentErrors)
	return h
}

// OnStateEnter counts the state and passes the context through.
func (h *Hooks) OnStateEnter(_ context.Context, state string, snapshot map[string]any) (map[string]any, error) {
	h.statesEntered.WithLabelValues(state).Inc()
	return snapshot, nil
}

// OnTransition counts the edge and keeps the selected target.
func (h *Hooks) OnTransition(_ context.Context, from, to string, _ map[string]any) (string, error) {
	h.transitions.WithLabelValues(from, to).Inc()
	return to, nil
}

// OnError counts the failure by kind and declines to handle it.
func (h *Hooks) OnError(_ context.Context, state string, cause error, _ map[string]any) (string, error) {
	kind := domain.KindOf(cause)
	if kind == "" {
		kind = "unknown"
	}
	h.agentErrors.WithLabelValues(state, kind).Inc()
	return "", nil
}
