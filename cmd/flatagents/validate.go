package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memgrafter/flatagents/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <machine.yml>",
	Short: "Check a machine definition for consistency",
	Long:  `Loads a machine definition and reports structural problems: unknown state references, missing transitions, bad strategy parameters.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := config.Load(args[0])
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Machine %q is valid (%d states, entry %q)\n", m.Name, len(m.States), m.Entry)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
