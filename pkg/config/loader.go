// Package config loads machine definitions from YAML documents and
// validates them at load time: structural problems are ConfigErrors here,
// never run-time surprises.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/memgrafter/flatagents/pkg/domain"
)

type machineDoc struct {
	Name     string                    `yaml:"name"`
	Settings settingsDoc               `yaml:"settings"`
	Context  map[string]any            `yaml:"context"`
	Agents   map[string]map[string]any `yaml:"agents"`
	States   yaml.Node                 `yaml:"states"`
}

type settingsDoc struct {
	Grammar          string `yaml:"grammar"`
	MaxSteps         int    `yaml:"max_steps"`
	DefaultExecution string `yaml:"default_execution"`
	Hooks            string `yaml:"hooks"`
}

// stateDoc is decoded strictly: unknown keys are configuration errors so a
// typoed "transistions" cannot silently produce a dead state.
type stateDoc struct {
	Kind            string            `mapstructure:"kind"`
	Agent           string            `mapstructure:"agent"`
	Execution       map[string]any    `mapstructure:"execution"`
	Input           map[string]any    `mapstructure:"input"`
	OutputToContext map[string]any    `mapstructure:"output_to_context"`
	Output          map[string]any    `mapstructure:"output"`
	OnError         map[string]string `mapstructure:"on_error"`
	Transitions     []transitionDoc   `mapstructure:"transitions"`
}

type transitionDoc struct {
	Condition string `mapstructure:"condition"`
	To        string `mapstructure:"to"`
}

// Load reads and parses a machine definition file.
func Load(path string) (*domain.Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read machine definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML machine definition and validates it. The states
// mapping keeps its declaration order.
func Parse(data []byte) (*domain.Machine, error) {
	var doc machineDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ConfigError{Reason: fmt.Sprintf("malformed YAML: %v", err)}
	}

	m := &domain.Machine{
		Name:           doc.Name,
		InitialContext: doc.Context,
		Agents:         doc.Agents,
		States:         make(map[string]*domain.State),
		Settings: domain.Settings{
			Grammar:          doc.Settings.Grammar,
			MaxSteps:         doc.Settings.MaxSteps,
			DefaultExecution: doc.Settings.DefaultExecution,
			Hooks:            doc.Settings.Hooks,
		},
	}

	if err := decodeStates(m, &doc.States); err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeStates(m *domain.Machine, states *yaml.Node) error {
	if states.Kind == 0 || states.IsZero() {
		return &domain.ConfigError{Machine: m.Name, Reason: "machine declares no states"}
	}
	if states.Kind != yaml.MappingNode {
		return &domain.ConfigError{Machine: m.Name, Reason: "states must be a mapping of state name to definition"}
	}

	for i := 0; i+1 < len(states.Content); i += 2 {
		name := states.Content[i].Value
		var raw map[string]any
		if err := states.Content[i+1].Decode(&raw); err != nil {
			return &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf("state %q: %v", name, err)}
		}

		var sd stateDoc
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			ErrorUnused: true,
			Result:      &sd,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(raw); err != nil {
			return &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf("state %q: %v", name, err)}
		}

		state, err := buildState(name, &sd)
		if err != nil {
			return &domain.ConfigError{Machine: m.Name, Reason: err.Error()}
		}
		if _, dup := m.States[name]; dup {
			return &domain.ConfigError{Machine: m.Name, Reason: fmt.Sprintf("duplicate state %q", name)}
		}
		m.States[name] = state
		m.StateOrder = append(m.StateOrder, name)
	}
	return nil
}

func buildState(name string, sd *stateDoc) (*domain.State, error) {
	state := &domain.State{
		Name:            name,
		Kind:            domain.StateKind(sd.Kind),
		Agent:           sd.Agent,
		Input:           sd.Input,
		OutputToContext: sd.OutputToContext,
		Output:          sd.Output,
		OnError:         sd.OnError,
	}

	for _, t := range sd.Transitions {
		state.Transitions = append(state.Transitions, domain.Transition{
			Condition: t.Condition,
			To:        t.To,
		})
	}

	if spec := sd.Execution; spec != nil {
		tag, _ := spec["type"].(string)
		if tag == "" {
			return nil, fmt.Errorf("state %q: execution block is missing its type", name)
		}
		params := make(map[string]any, len(spec)-1)
		for k, v := range spec {
			if k != "type" {
				params[k] = v
			}
		}
		state.Execution = domain.ExecutionSpec{Type: tag, Params: params}
	}

	// Kind may be inferred from the shape for terseness.
	if state.Kind == "" {
		switch {
		case state.Agent != "":
			state.Kind = domain.StateKindAgent
		case state.Output != nil && len(state.Transitions) == 0:
			state.Kind = domain.StateKindFinal
		default:
			return nil, fmt.Errorf("state %q: cannot infer kind, declare one of initial/agent/final", name)
		}
	}
	switch state.Kind {
	case domain.StateKindInitial, domain.StateKindAgent, domain.StateKindFinal:
	default:
		return nil, fmt.Errorf("state %q: unknown kind %q", name, state.Kind)
	}
	return state, nil
}
