package config

import (
	"fmt"
	"sort"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// Validate checks the structural invariants of a machine definition.
// It is called by Parse and exported for machines built in Go
// (flatagents.NewFromDefinition). Every failure is a ConfigError.
func Validate(m *domain.Machine) error {
	fail := func(format string, args ...any) error {
		return &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf(format, args...)}
	}

	if m.Name == "" {
		return fail("machine has no name")
	}
	if len(m.States) == 0 {
		return fail("machine declares no states")
	}
	if m.Settings.Grammar != "" &&
		m.Settings.Grammar != domain.GrammarMinimal &&
		m.Settings.Grammar != domain.GrammarExtended {
		return fail("unknown expression grammar %q", m.Settings.Grammar)
	}
	if m.Settings.MaxSteps < 0 {
		return fail("max_steps must be positive, got %d", m.Settings.MaxSteps)
	}

	entry := ""
	for _, name := range stateNames(m) {
		state := m.States[name]
		switch state.Kind {
		case domain.StateKindInitial:
			if entry != "" {
				return fail("multiple initial states: %q and %q", entry, name)
			}
			entry = name
			if state.Agent != "" {
				return fail("initial state %q must not call an agent", name)
			}
			if len(state.Transitions) == 0 {
				return fail("initial state %q has no transitions", name)
			}
		case domain.StateKindAgent:
			if state.Agent == "" {
				return fail("agent state %q names no agent", name)
			}
			if len(state.Transitions) == 0 {
				return fail("agent state %q has no transitions", name)
			}
			if len(m.Agents) > 0 {
				if _, ok := m.Agents[state.Agent]; !ok {
					return fail("state %q references undeclared agent %q", name, state.Agent)
				}
			}
		case domain.StateKindFinal:
			if len(state.Transitions) > 0 {
				return fail("final state %q must not have transitions", name)
			}
			if state.Agent != "" {
				return fail("final state %q must not call an agent", name)
			}
		default:
			return fail("state %q has unknown kind %q", name, state.Kind)
		}

		for _, t := range state.Transitions {
			if t.To == "" {
				return fail("state %q has a transition without a target", name)
			}
			if _, ok := m.States[t.To]; !ok {
				return fail("state %q transitions to unknown state %q", name, t.To)
			}
		}
		for kind, target := range state.OnError {
			if _, ok := m.States[target]; !ok {
				return fail("state %q routes error kind %q to unknown state %q", name, kind, target)
			}
		}
	}

	if entry == "" {
		return fail("machine has no initial state")
	}
	m.Entry = entry
	return nil
}

// stateNames returns states in declaration order. Definitions built in Go
// without a StateOrder get a sorted one so iteration stays deterministic.
func stateNames(m *domain.Machine) []string {
	if len(m.StateOrder) != len(m.States) {
		names := make([]string, 0, len(m.States))
		for name := range m.States {
			names = append(names, name)
		}
		sort.Strings(names)
		m.StateOrder = names
	}
	return m.StateOrder
}
