package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 8080, cfg.Server.Port)
	require.False(t, cfg.Heartbeat.Enabled)
	require.True(t, cfg.Sandbox.Enabled)
}

func TestLoad_InvalidDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("IRONCLAW_DB_DRIVER", "mongo")
	_, err := Load()
	require.Error(t, err)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, ErrInvalidValue, cfgErr.Kind)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("IRONCLAW_TURN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("IRONCLAW_PORT", "9999")
	t.Setenv("IRONCLAW_SANDBOX_ALLOWED_DOMAINS", "github.com, *.crates.io")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, []string{"github.com", "*.crates.io"}, cfg.Sandbox.AllowedDomains)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for _, prefix := range []string{"IRONCLAW_"} {
			if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
				key, _, _ := cutEnv(kv)
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
		}
	}
}

func cutEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}
