package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panosAthDBX/ironclaw/internal/config"
	"github.com/panosAthDBX/ironclaw/internal/dockerdetect"
)

// buildDoctorCmd checks the environment a `run` would need: config loads
// cleanly, and Docker is installed and reachable if sandbox jobs are
// enabled. Grounded on the teacher's `nexus doctor` command, scoped down
// to this core's two real preconditions instead of the teacher's config
// migration/plugin-manifest checks, which have no equivalent here.
func buildDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and Docker availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(out, "config: FAIL (%v)\n", err)
				return err
			}
			fmt.Fprintf(out, "config: OK (db=%s, sandbox_enabled=%v)\n", cfg.Database.Driver, cfg.Sandbox.Enabled)

			if !cfg.Sandbox.Enabled {
				fmt.Fprintln(out, "docker: skipped (sandbox disabled)")
				return nil
			}

			detection := dockerdetect.Check(context.Background())
			if detection.Status.IsOK() {
				fmt.Fprintln(out, "docker: OK")
				return nil
			}
			fmt.Fprintf(out, "docker: %s\n", detection.Status)
			fmt.Fprintln(out, detection.Platform.InstallHint())
			fmt.Fprintln(out, detection.Platform.StartHint())
			return fmt.Errorf("docker not available: %s", detection.Status)
		},
	}
}
