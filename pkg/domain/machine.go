package domain

// StateKind discriminates the three kinds of states a machine may declare.
type StateKind string

const (
	// StateKindInitial marks the entry state. It performs no agent call;
	// it only routes to the first real state.
	StateKindInitial StateKind = "initial"
	// StateKindAgent calls an agent and routes on its output.
	StateKindAgent StateKind = "agent"
	// StateKindFinal terminates the run and produces the machine output.
	StateKindFinal StateKind = "final"
)

// GrammarMinimal and GrammarExtended select the expression grammar for a
// machine. Both grammars share an identical core subset; the extended one
// additionally accepts &&/||/! spellings and a small set of pure predicates.
const (
	GrammarMinimal  = "minimal"
	GrammarExtended = "extended"
)

// DefaultMaxSteps bounds the run loop when a machine does not configure
// its own budget. Self-referential transitions are the normal looping
// device, so the cap is the only termination discipline for bad configs.
const DefaultMaxSteps = 100

// Machine is the immutable workflow definition. It is parsed once and may
// be shared by any number of concurrent runs; nothing mutates it after load.
type Machine struct {
	// Name identifies the machine in logs, traces and the HTTP adapter.
	Name string

	// InitialContext holds templated defaults seeded into every run's
	// context. Values may reference the caller input (e.g. "{{ input.x }}").
	InitialContext map[string]any

	// Agents declares the agent names this machine calls, mapped to opaque
	// resolver-specific parameters. The engine never interprets the params;
	// it only validates that agent states reference declared names.
	Agents map[string]map[string]any

	// States maps state name to definition. StateOrder preserves the
	// declaration order of the document for introspection and rendering.
	States     map[string]*State
	StateOrder []string

	// Entry is the name of the single initial-kind state.
	Entry string

	Settings Settings
}

// Settings carries machine-level execution options.
type Settings struct {
	// Grammar selects the expression grammar ("minimal" or "extended").
	Grammar string
	// MaxSteps caps loop iterations per run. Zero means DefaultMaxSteps.
	MaxSteps int
	// DefaultExecution is the strategy tag used by agent states that do
	// not declare one. Empty means "default".
	DefaultExecution string
	// Hooks names an externally constructed hook chain. The engine does
	// not resolve it; hosts bind it at machine construction.
	Hooks string
}

// State is a single node of the machine.
type State struct {
	Name string
	Kind StateKind

	// Agent names the declared agent to invoke (agent kind only).
	Agent string

	// Execution selects and parameterizes the execution strategy
	// wrapping the agent call (agent kind only).
	Execution ExecutionSpec

	// Input maps agent-input fields to templates resolved against
	// {context, input} before the call.
	Input map[string]any

	// OutputToContext maps context keys to templates resolved against
	// {context, input, output} after a successful call. Every template in
	// one batch sees the context as it was before the batch.
	OutputToContext map[string]any

	// Output maps the machine output fields (final kind only).
	Output map[string]any

	// OnError routes agent failures by error kind. The "default" key
	// matches any kind without an exact entry.
	OnError map[string]string

	// Transitions are evaluated in declaration order; the first whose
	// condition holds (or that has no condition) is taken.
	Transitions []Transition
}

// Transition is an ordered, conditionally guarded edge to a successor state.
type Transition struct {
	// Condition is an expression string. Empty means unconditional.
	Condition string
	// To is the target state name.
	To string
}

// ExecutionSpec selects an execution strategy by tag and carries its
// parameter bag. Params are decoded by the strategy factory at load time;
// unknown tags or malformed params never reach the run loop.
type ExecutionSpec struct {
	Type   string
	Params map[string]any
}

// MaxSteps returns the effective loop budget for this machine.
func (m *Machine) MaxSteps() int {
	if m.Settings.MaxSteps > 0 {
		return m.Settings.MaxSteps
	}
	return DefaultMaxSteps
}

// Grammar returns the effective expression grammar name.
func (m *Machine) Grammar() string {
	if m.Settings.Grammar == "" {
		return GrammarMinimal
	}
	return m.Settings.Grammar
}

// ExecutionFor returns the effective execution spec for a state, applying
// the machine-level default tag when the state declares none.
func (m *Machine) ExecutionFor(s *State) ExecutionSpec {
	spec := s.Execution
	if spec.Type == "" {
		spec.Type = m.Settings.DefaultExecution
	}
	if spec.Type == "" {
		spec.Type = "default"
	}
	return spec
}
