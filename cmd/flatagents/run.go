package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/memgrafter/flatagents"
	"github.com/memgrafter/flatagents/internal/presentation/tui"
	"github.com/memgrafter/flatagents/pkg/adapters/process"
	"github.com/memgrafter/flatagents/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <machine.yml>",
	Short: "Execute a machine once",
	Long: `Executes a machine definition. Agents are resolved as external
processes from the document's agents section ({command, args, dir, env});
each invocation writes the resolved input to stdin as JSON and reads a JSON
object from stdout.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMachine(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("input", "{}", "Run input as a JSON object")
	runCmd.Flags().Bool("trace", false, "Print the full run trace as JSON")
	runCmd.Flags().Bool("pretty", false, "Render a run summary (default: on when stdout is a TTY)")
}

func runMachine(cmd *cobra.Command, path string) error {
	inputJSON, _ := cmd.Flags().GetString("input")
	var input map[string]any
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return fmt.Errorf("--input must be a JSON object: %w", err)
	}

	machine, err := flatagents.New(path,
		flatagents.WithResolver(process.NewResolver()),
		flatagents.WithLogger(newLogger(cmd)),
	)
	if err != nil {
		return err
	}

	// Interrupts cancel the run, including in-flight parallel/voting calls.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := machine.Execute(ctx, input)

	if showTrace, _ := cmd.Flags().GetBool("trace"); showTrace && result != nil {
		data, _ := json.MarshalIndent(result.Trace, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	}

	pretty, _ := cmd.Flags().GetBool("pretty")
	if !cmd.Flags().Changed("pretty") {
		pretty = term.IsTerminal(int(os.Stdout.Fd()))
	}
	if pretty && result != nil {
		render := tui.NewRenderer()
		if out, err := render(summarize(machine.Name, result, runErr)); err == nil {
			fmt.Print(out)
		}
	}

	if runErr != nil {
		return fmt.Errorf("[%s] %w", domain.KindOf(runErr), runErr)
	}

	data, err := json.MarshalIndent(result.Output, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// summarize builds a markdown summary of a finished run.
func summarize(name string, result *domain.Result, runErr error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s run `%s`\n\n", name, result.Trace.RunID)
	sb.WriteString("| # | state | samples | next |\n|---|-------|---------|------|\n")
	for _, step := range result.Trace.Steps {
		next := step.Transition
		if next == "" {
			next = "∎"
		}
		fmt.Fprintf(&sb, "| %d | %s | %d | %s |\n", step.Seq, step.State, len(step.Samples), next)
	}
	if runErr != nil {
		fmt.Fprintf(&sb, "\n**Failed**: %v\n", runErr)
	}
	return sb.String()
}
