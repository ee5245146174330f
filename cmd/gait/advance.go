package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/phase"
)

var (
	advanceReason   string
	advanceArtifact string
	advanceForce    bool
)

var advanceCmd = &cobra.Command{
	Use:   "advance <bead-id> <target-phase>",
	Short: "Advance a bead to a new lifecycle phase",
	Long: `Run the gate for the transition and, if it proceeds, record the new
phase in the tracker and in the bead's artifact header.

--force skips the gate entirely and records the phase anyway. Prefer
setting skip_reason in .beads/gait.yaml so the override is audited on
the bead.

Examples:
  gait advance gt-42 executing --reason "plan approved"
  gait advance gt-42 shipping --artifact history/plans/gt-42-plan.md
  gait advance gt-42 done --force`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		beadID := args[0]

		target, ok := phase.Parse(args[1])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown phase %q (valid: %v)\n", args[1], phase.All)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		if !advanceForce {
			verdict := eng.EnforceGate(ctx, beadID, target, advanceArtifact)
			if verdict.Message != "" {
				fmt.Println(yellow(verdict.Message))
			}
			if !verdict.Proceed {
				fmt.Printf("%s %s -> %s blocked\n", red("✗"), beadID, target)
				os.Exit(1)
			}
		}

		eng.AdvancePhase(ctx, beadID, target, advanceReason, advanceArtifact)
		fmt.Printf("%s %s is now %s\n", green("✓"), beadID, target)
	},
}

func init() {
	advanceCmd.Flags().StringVar(&advanceReason, "reason", "", "Why the bead is moving to this phase")
	advanceCmd.Flags().StringVar(&advanceArtifact, "artifact", "", "Artifact whose phase header should be updated")
	advanceCmd.Flags().BoolVar(&advanceForce, "force", false, "Skip the gate and record the phase unconditionally")
	rootCmd.AddCommand(advanceCmd)
}
