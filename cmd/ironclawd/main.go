// Command ironclawd runs the ironclaw multi-channel assistant daemon: the
// channel multiplexer, the orchestrator agent loop, the sandboxed job
// subsystem, and the worker callback HTTP surface, wired from config.Load.
// Grounded on the teacher's cmd/nexus entrypoint: a cobra root command with
// subcommands built by small buildXCmd() functions, version info threaded
// through via ldflags, and a JSON slog logger configured once in main.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ironclawd",
		Short:        "ironclaw - multi-channel personal AI assistant daemon",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildDoctorCmd(), buildChannelsCmd())
	return root
}
