package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/discovery"
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Print a one-line backlog summary",
	Long: `Print a condensed backlog status suitable for a shell prompt or
session banner. Results are cached briefly, and an empty backlog prints
nothing at all.

Example:
  gait brief`,
	Run: func(cmd *cobra.Command, args []string) {
		scanner := discovery.NewScanner(discovery.ScannerConfig{
			Config:  cfg,
			Tracker: trk,
			Repo:    workRepo,
			Store:   eng.Store(),
			Log:     eventLog,
			Session: session,
		})

		summary, err := scanner.BriefScan(context.Background())
		if errors.Is(err, discovery.ErrUnavailable) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if summary != "" {
			fmt.Println(summary)
		}
	},
}

func init() {
	rootCmd.AddCommand(briefCmd)
}
