package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/phase"
)

var checkArtifact string

var checkCmd = &cobra.Command{
	Use:   "check <bead-id> <target-phase>",
	Short: "Check whether a phase transition would be allowed",
	Long: `Run the gate for a proposed phase transition without changing anything.

The gate scales with bead priority: P0-P1 beads block on invalid
transitions, P2-P3 beads warn, and lower priorities pass unchecked.

Examples:
  gait check gt-42 executing
  gait check gt-42 shipping --artifact history/plans/gt-42-plan.md`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		beadID := args[0]

		target, ok := phase.Parse(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown phase %q (valid: %v)\n", args[1], phase.All)
			os.Exit(1)
		}

		verdict := eng.EnforceGate(ctx, beadID, target, checkArtifact)

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		if verdict.Message != "" {
			fmt.Println(yellow(verdict.Message))
		}
		if verdict.Proceed {
			fmt.Printf("%s %s -> %s (%s)\n", green("✓"), beadID, target, verdict.Decision)
			return
		}
		fmt.Printf("%s %s -> %s blocked\n", red("✗"), beadID, target)
		os.Exit(1)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkArtifact, "artifact", "", "Artifact path used for phase fallback and review staleness")
	rootCmd.AddCommand(checkCmd)
}
