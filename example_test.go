package flatagents_test

import (
	"context"
	"fmt"
	"log"

	"github.com/memgrafter/flatagents"
	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

// ExampleNewFromDefinition runs a machine built from Go structs with an
// in-process agent. This is the embedded usage: no YAML file, no external
// processes.
func ExampleNewFromDefinition() {
	def := &domain.Machine{
		Name: "greeter",
		States: map[string]*domain.State{
			"start": {
				Kind: domain.StateKindInitial,
				Transitions: []domain.Transition{
					{To: "greet"},
				},
			},
			"greet": {
				Kind:  domain.StateKindAgent,
				Agent: "greeter",
				Input: map[string]any{
					"name": "{{ input.name }}",
				},
				OutputToContext: map[string]any{
					"greeting": "{{ output.greeting }}",
				},
				Transitions: []domain.Transition{
					{To: "done"},
				},
			},
			"done": {
				Kind: domain.StateKindFinal,
				Output: map[string]any{
					"greeting": "{{ context.greeting }}",
				},
			},
		},
	}

	greeter := ports.AgentFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"greeting": fmt.Sprintf("Hello, %v!", input["name"])}, nil
	})

	machine, err := flatagents.NewFromDefinition(def, flatagents.WithAgent("greeter", greeter))
	if err != nil {
		log.Fatal(err)
	}

	result, err := machine.Execute(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Output["greeting"])
	fmt.Println(len(result.Trace.Steps), "steps")
	// Output:
	// Hello, Ada!
	// 3 steps
}
