package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memgrafter/flatagents/internal/presentation/graph"
	"github.com/memgrafter/flatagents/pkg/config"
)

var graphCmd = &cobra.Command{
	Use:   "graph <machine.yml>",
	Short: "Render a machine as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := config.Load(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(graph.GenerateMermaid(m))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
