package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/discovery"
)

var (
	scanLane string
	scanJSON bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rank the backlog and recommend next actions",
	Long: `Scan open and in-progress beads, score each on priority, lifecycle
progress and recency, and print them best-first with a recommended next
action. Artifacts that reference no live bead are listed last as
candidates for a new bead.

Examples:
  gait scan
  gait scan --lane backend
  gait scan --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if scanLane != "" {
			cfg.LaneFilter = scanLane
		}

		scanner := discovery.NewScanner(discovery.ScannerConfig{
			Config:  cfg,
			Tracker: trk,
			Repo:    workRepo,
			Store:   eng.Store(),
			Log:     eventLog,
			Session: session,
		})

		records, err := scanner.Scan(ctx)
		if errors.Is(err, discovery.ErrUnavailable) {
			fmt.Fprintln(os.Stderr, "No beads database found. Run bd init first.")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if scanJSON {
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
			return
		}

		if len(records) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("No actionable work found."))
			return
		}

		printScanTable(records)
	},
}

func printScanTable(records []*discovery.ScoreRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Score", "Bead", "P", "Phase", "Action", "Title", "Notes"})

	for _, rec := range records {
		id := rec.ID
		if rec.Orphan {
			id = "-"
		}
		ph := rec.Phase
		if ph == "" {
			ph = "-"
		}
		var notes []string
		if rec.Stale {
			notes = append(notes, "stale")
		}
		notes = append(notes, rec.Penalties...)
		t.AppendRow(table.Row{
			rec.Score,
			id,
			fmt.Sprintf("P%d", rec.Priority),
			ph,
			rec.Action,
			rec.Title,
			strings.Join(notes, ", "),
		})
	}
	t.Render()
}

func init() {
	scanCmd.Flags().StringVar(&scanLane, "lane", "", "Only scan beads carrying this label")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print records as JSON")
	rootCmd.AddCommand(scanCmd)
}
