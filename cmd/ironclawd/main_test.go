package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "doctor", "channels"}
	for _, name := range required {
		require.Truef(t, names[name], "expected subcommand %q to be registered", name)
	}
}

func clearIronclawEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		const prefix = "IRONCLAW_"
		if len(kv) < len(prefix) || kv[:len(prefix)] != prefix {
			continue
		}
		var key string
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDoctorCmd_ReportsConfigAndSkipsDockerWhenSandboxDisabled(t *testing.T) {
	clearIronclawEnv(t)
	t.Setenv("IRONCLAW_SANDBOX_ENABLED", "false")

	cmd := buildDoctorCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))
	require.Contains(t, out.String(), "config: OK")
	require.Contains(t, out.String(), "docker: skipped")
}

func TestChannelsListCmd_ReflectsConfiguredCredentials(t *testing.T) {
	clearIronclawEnv(t)
	t.Setenv("IRONCLAW_TELEGRAM_BOT_TOKEN", "tok")

	cmd := buildChannelsListCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))
	require.Contains(t, out.String(), "telegram enabled")
	require.Contains(t, out.String(), "discord  disabled")
	require.Contains(t, out.String(), "slack    disabled")
}
