package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gait/internal/config"
	"github.com/steveyegge/gait/internal/gate"
	"github.com/steveyegge/gait/internal/repo"
	"github.com/steveyegge/gait/internal/sideband"
	"github.com/steveyegge/gait/internal/telemetry"
	"github.com/steveyegge/gait/internal/tracker"
)

// Shared across commands, wired by setup() before any Run executes.
var (
	cfg         *config.Config
	trk         tracker.Tracker
	workRepo    *repo.FS
	eng         *gate.Engine
	eventLog    telemetry.Logger
	projectRoot string
	session     string
)

var rootCmd = &cobra.Command{
	Use:   "gait",
	Short: "Lifecycle gates and work discovery for beads",
	Long: `gait adds a phase lifecycle to the beads issue tracker.

Each bead moves through brainstorm, review, planning, execution and
shipping phases. gait enforces which phase transitions are legal (scaled
by bead priority), keeps the phase recorded both in the tracker and in
the bead's markdown artifacts, and ranks the backlog so sessions can pick
up the most valuable next piece of work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func setup() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	projectRoot = findProjectRoot(cwd)

	cfg, err = config.Load(projectRoot)
	if err != nil {
		return err
	}

	workRepo, err = repo.NewFS(projectRoot)
	if err != nil {
		return err
	}

	bd, err := tracker.NewBDCLI(cfg.BDPath)
	if err != nil {
		return err
	}
	trk = bd

	eventLog = telemetry.NewFileLogger(telemetry.DefaultLogPath(projectRoot))
	session = resolveSession()

	pub := sideband.NewPublisher(projectRoot, session, sideband.NewFileEnvelopeWriter(projectRoot))
	eng = gate.NewEngine(gate.EngineConfig{
		Config:    cfg,
		Tracker:   trk,
		Repo:      workRepo,
		Log:       eventLog,
		Publisher: pub,
	})
	return nil
}

// findProjectRoot walks upward looking for a .beads directory. Without
// one the current directory is the root; discovery will then report the
// missing backing store itself.
func findProjectRoot(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".beads")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func resolveSession() string {
	if s := os.Getenv("GAIT_SESSION"); s != "" {
		return s
	}
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
