package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panosAthDBX/ironclaw/internal/config"
)

// buildChannelsCmd mirrors the teacher's "channels" command group, scoped
// to the one operation this core needs without live channel state to
// query: listing which channels the current configuration would register
// on `run`.
func buildChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect configured channels",
	}
	cmd.AddCommand(buildChannelsListCmd())
	return cmd
}

func buildChannelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List channels that would be registered on run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "bench    always registered")
			fmt.Fprintf(out, "http     always registered (port %d)\n", cfg.HTTPChannel.Port)
			fmt.Fprintf(out, "discord  %s\n", enabledLabel(cfg.Discord.PublicKeyHex != ""))
			fmt.Fprintf(out, "telegram %s\n", enabledLabel(cfg.Telegram.BotToken != ""))
			fmt.Fprintf(out, "slack    %s\n", enabledLabel(cfg.Slack.BotToken != ""))
			return nil
		},
	}
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled (no credentials configured)"
}
