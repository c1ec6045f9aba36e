// Package flatagents is a declarative workflow engine for agent pipelines.
//
// A Machine is defined as a YAML document (or built in Go): named states
// connected by ordered, conditionally guarded transitions, where each agent
// state calls an opaque agent through a pluggable execution strategy
// (plain, retry, parallel fan-out, or first-to-ahead-by-k voting) and maps
// its output back into the run context. The engine never implements agents
// itself; hosts supply them through the ports.Resolver boundary.
//
// Basic usage:
//
//	machine, err := flatagents.New("machine.yml",
//		flatagents.WithAgent("speller", myAgent),
//	)
//	result, err := machine.Execute(ctx, map[string]any{"target": "Hi"})
//
// Every run produces a deterministic trace alongside its output; hooks can
// observe or override control flow at state-enter, state-exit, transition
// and error points.
package flatagents
