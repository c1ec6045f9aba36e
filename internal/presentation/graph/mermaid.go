// Package graph renders machine definitions as Mermaid flowcharts for the
// CLI and documentation.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// GenerateMermaid produces Mermaid flowchart syntax for a machine.
// Semantic shapes: initial states are circles, agent states rectangles
// (annotated with their execution strategy when not the default), final
// states double circles. Error routes render as dotted edges.
func GenerateMermaid(m *domain.Machine) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, name := range m.StateOrder {
		state := m.States[name]
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch state.Kind {
		case domain.StateKindInitial:
			opener, closer = "((", "))"
		case domain.StateKindFinal:
			opener, closer = "(((", ")))"
		}

		label := name
		if state.Kind == domain.StateKindAgent {
			if spec := m.ExecutionFor(state); spec.Type != "default" {
				label = fmt.Sprintf("%s <br/> %s", name, spec.Type)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, t := range state.Transitions {
			safeTo := sanitizeMermaidID(t.To)
			arrow := "-->"
			if t.Condition != "" {
				safeCondition := strings.ReplaceAll(t.Condition, "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", safeCondition)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}

		kinds := make([]string, 0, len(state.OnError))
		for kind := range state.OnError {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			safeTo := sanitizeMermaidID(state.OnError[kind])
			sb.WriteString(fmt.Sprintf("    %s -. \"on %s\" .-> %s\n", safeID, kind, safeTo))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
