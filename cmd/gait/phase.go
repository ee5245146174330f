package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/artifact"
	"github.com/steveyegge/gait/internal/phase"
)

var phaseArtifact string

var phaseCmd = &cobra.Command{
	Use:   "phase <bead-id>",
	Short: "Show a bead's current phase and legal next phases",
	Long: `Resolve the bead's phase from the tracker, falling back to the phase
header in its plan artifact, and list the transitions the gate would
allow from there.

Examples:
  gait phase gt-42
  gait phase gt-42 --artifact history/plans/gt-42-plan.md`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		beadID := args[0]

		artifactPath := phaseArtifact
		if artifactPath == "" {
			artifactPath = artifact.FindForBead(workRepo, artifact.CategoryPlans, beadID)
		}

		stored := eng.Store().GetPhase(ctx, beadID)
		var fromHeader phase.Phase
		if artifactPath != "" {
			fromHeader = artifact.ReadHeader(workRepo, artifactPath)
		}
		current := eng.GetPhaseWithFallback(ctx, beadID, artifactPath)

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		switch {
		case current == "":
			fmt.Printf("%s has no recorded phase\n", beadID)
		case stored == "":
			fmt.Printf("%s is %s %s\n", beadID, cyan(current), gray("(from artifact header)"))
		case fromHeader != "" && fromHeader != stored:
			fmt.Printf("%s is %s %s\n", beadID, cyan(current),
				yellow(fmt.Sprintf("(tracker; artifact header says %s)", fromHeader)))
		default:
			fmt.Printf("%s is %s %s\n", beadID, cyan(current), gray("(from tracker)"))
		}
		if artifactPath != "" {
			fmt.Printf("  artifact: %s\n", gray(artifactPath))
		}

		next := eng.NextPhases(current)
		if len(next) == 0 {
			fmt.Println("  no legal transitions")
			os.Exit(0)
		}
		fmt.Print("  next: ")
		for i, n := range next {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(n)
		}
		fmt.Println()
	},
}

func init() {
	phaseCmd.Flags().StringVar(&phaseArtifact, "artifact", "", "Artifact to read the fallback phase header from")
	rootCmd.AddCommand(phaseCmd)
}
