// Package config loads ironclaw's configuration from the environment,
// following the teacher's internal/config package shape: typed sections,
// hand-rolled env parsing (no viper), explicit defaults, and a fail-fast
// ConfigError on any missing-required or malformed value.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrorKind enumerates the ConfigError taxonomy (SPEC_FULL.md §7).
type ErrorKind string

const (
	ErrMissingRequired ErrorKind = "missing_required"
	ErrInvalidValue    ErrorKind = "invalid_value"
)

// Error is a fatal startup configuration failure. It is never swallowed.
type Error struct {
	Kind    ErrorKind
	Key     string
	Hint    string
	Message string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return string(e.Kind) + " " + e.Key + ": " + e.Message + " (" + e.Hint + ")"
	}
	return string(e.Kind) + " " + e.Key + ": " + e.Message
}

// ServerConfig configures the web gateway / worker callback HTTP server.
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int
	GatewayPort int
	AuthToken   string // bearer token for the web gateway, §6
	ProjectsDir string // sandbox base for /projects/{id}/..., §6
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is the sqlite file path or the postgres connection string.
	DSN string
}

// SandboxConfig configures Docker-backed job spawning.
type SandboxConfig struct {
	Enabled        bool
	JobTimeout     time.Duration
	AllowedDomains []string
	Image          string
}

// HeartbeatConfig configures the periodic checklist runner (§4.J).
type HeartbeatConfig struct {
	Enabled             bool
	Interval            time.Duration
	ConsecutiveFailMax  int
	NotifyChannel       string
	NotifyUser          string
	ChecklistPath       string
}

// OrchestratorConfig bounds a single agent turn.
type OrchestratorConfig struct {
	MaxToolIterations int
	TurnTimeout       time.Duration
	ToolFailureThreshold int
}

// DiscordConfig configures Discord webhook signature verification.
type DiscordConfig struct {
	PublicKeyHex string
}

// TelegramConfig configures the long-polling Telegram channel.
type TelegramConfig struct {
	BotToken string
}

// SlackConfig configures the thin Slack channel registration.
type SlackConfig struct {
	BotToken string
}

// HTTPChannelConfig configures the §6 HTTP webhook channel.
type HTTPChannelConfig struct {
	Host          string
	Port          int
	WebhookSecret string
}

// Config is the fully loaded, validated ironclaw configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Sandbox      SandboxConfig
	Heartbeat    HeartbeatConfig
	Orchestrator OrchestratorConfig
	Discord      DiscordConfig
	Telegram     TelegramConfig
	Slack        SlackConfig
	HTTPChannel  HTTPChannelConfig
}

// Load reads configuration from environment variables, applying defaults
// for everything optional. Precedence follows the teacher's
// optional_env/parse_bool_env pattern: an explicit env var always wins over
// the hardcoded default below (there is no intermediate settings file in
// this core, unlike the teacher's YAML+env layering, since config-loader
// exhaustiveness is out of scope per SPEC_FULL.md §1).
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("IRONCLAW_HOST", "0.0.0.0"),
			Port:        0,
			MetricsPort: 0,
			GatewayPort: 0,
			AuthToken:   os.Getenv("IRONCLAW_AUTH_TOKEN"),
			ProjectsDir: getEnv("IRONCLAW_PROJECTS_DIR", defaultProjectsDir()),
		},
		Database: DatabaseConfig{
			Driver: getEnv("IRONCLAW_DB_DRIVER", "sqlite"),
			DSN:    getEnv("IRONCLAW_DB_DSN", "ironclaw.db"),
		},
		Sandbox: SandboxConfig{
			Enabled:        true,
			JobTimeout:     0,
			AllowedDomains: splitCSV(os.Getenv("IRONCLAW_SANDBOX_ALLOWED_DOMAINS")),
			Image:          getEnv("IRONCLAW_SANDBOX_IMAGE", "ironclaw/worker:latest"),
		},
		Heartbeat: HeartbeatConfig{
			Enabled:            false,
			Interval:           0,
			ConsecutiveFailMax: 0,
			NotifyChannel:      os.Getenv("IRONCLAW_HEARTBEAT_CHANNEL"),
			NotifyUser:         os.Getenv("IRONCLAW_HEARTBEAT_USER"),
			ChecklistPath:      getEnv("IRONCLAW_HEARTBEAT_CHECKLIST", "CHECKLIST.md"),
		},
		Orchestrator: OrchestratorConfig{
			MaxToolIterations:    0,
			TurnTimeout:          0,
			ToolFailureThreshold: 0,
		},
		Discord: DiscordConfig{
			PublicKeyHex: os.Getenv("IRONCLAW_DISCORD_PUBLIC_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("IRONCLAW_TELEGRAM_BOT_TOKEN"),
		},
		Slack: SlackConfig{
			BotToken: os.Getenv("IRONCLAW_SLACK_BOT_TOKEN"),
		},
		HTTPChannel: HTTPChannelConfig{
			Host:          getEnv("IRONCLAW_HTTP_HOST", "0.0.0.0"),
			Port:          0,
			WebhookSecret: os.Getenv("IRONCLAW_WEBHOOK_SECRET"),
		},
	}

	var err error
	if cfg.Server.Port, err = getEnvInt("IRONCLAW_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Server.MetricsPort, err = getEnvInt("IRONCLAW_METRICS_PORT", 9090); err != nil {
		return nil, err
	}
	if cfg.HTTPChannel.Port, err = getEnvInt("IRONCLAW_HTTP_PORT", 8081); err != nil {
		return nil, err
	}
	if cfg.Server.GatewayPort, err = getEnvInt("IRONCLAW_GATEWAY_PORT", 8082); err != nil {
		return nil, err
	}
	if cfg.Sandbox.Enabled, err = getEnvBool("IRONCLAW_SANDBOX_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Sandbox.JobTimeout, err = getEnvDuration("IRONCLAW_SANDBOX_JOB_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Heartbeat.Enabled, err = getEnvBool("IRONCLAW_HEARTBEAT_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Heartbeat.Interval, err = getEnvDuration("IRONCLAW_HEARTBEAT_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Heartbeat.ConsecutiveFailMax, err = getEnvInt("IRONCLAW_HEARTBEAT_MAX_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.Orchestrator.MaxToolIterations, err = getEnvInt("IRONCLAW_MAX_TOOL_ITERATIONS", 10); err != nil {
		return nil, err
	}
	if cfg.Orchestrator.TurnTimeout, err = getEnvDuration("IRONCLAW_TURN_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Orchestrator.ToolFailureThreshold, err = getEnvInt("IRONCLAW_TOOL_FAILURE_THRESHOLD", 3); err != nil {
		return nil, err
	}

	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, &Error{
			Kind:    ErrInvalidValue,
			Key:     "IRONCLAW_DB_DRIVER",
			Message: "must be \"sqlite\" or \"postgres\", got " + cfg.Database.Driver,
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Kind: ErrInvalidValue, Key: key, Message: "not an integer: " + v}
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &Error{Kind: ErrInvalidValue, Key: key, Message: "not a boolean: " + v}
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &Error{Kind: ErrInvalidValue, Key: key, Message: "not a duration: " + v, Hint: "use Go duration syntax, e.g. \"30m\""}
	}
	return d, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultProjectsDir returns ~/.ironclaw/projects, falling back to a
// relative path if the home directory can't be resolved.
func defaultProjectsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ironclaw/projects"
	}
	return home + "/.ironclaw/projects"
}
