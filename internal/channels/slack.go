package channels

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// SlackConfig configures the Slack registry slot. Only BotToken is used, to
// construct a real slack.Client so the dependency is genuinely exercised
// (e.g. for AuthTest during HealthCheck); full event ingestion/posting is
// out of core scope per SPEC_FULL.md §1 — this is a deliberately thin
// binding, registered but not deeply implemented.
type SlackConfig struct {
	BotToken    string
	ChannelName string // defaults to "slack"
	Logger      *slog.Logger
}

// Slack is a minimal channel registration: it proves the registry can hold
// a Slack client and answer a health check against the real Slack API
// (auth.test), without implementing the full event-subscription/posting
// surface a production Slack adapter would need.
type Slack struct {
	NoopStatusSender
	NoopContextExtractor

	config SlackConfig
	logger *slog.Logger
	client *slack.Client
	stream chan models.IncomingMessage

	started bool
}

// NewSlack constructs an unstarted, thin Slack registration.
func NewSlack(config SlackConfig) *Slack {
	if config.ChannelName == "" {
		config.ChannelName = "slack"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		config: config,
		logger: logger.With("channel", "slack"),
		client: slack.New(config.BotToken),
		stream: make(chan models.IncomingMessage),
	}
}

func (s *Slack) Name() string { return s.config.ChannelName }

// Start registers the channel but never produces messages: the stream
// stays open and empty until a future event-subscription implementation
// exists.
func (s *Slack) Start(context.Context) (<-chan models.IncomingMessage, error) {
	if s.started {
		return nil, NewChannelError(ErrStartupFailed, "slack channel already started", nil)
	}
	s.started = true
	s.logger.Info("slack channel registered (thin binding, no event ingestion)")
	return s.stream, nil
}

func (s *Slack) Respond(context.Context, models.IncomingMessage, models.OutgoingResponse) error {
	return NewChannelError(ErrSendFailed, "slack adapter does not implement message posting", nil)
}

// HealthCheck calls the real Slack API (auth.test) to prove the wired
// client is live, the one place this thin binding genuinely exercises
// github.com/slack-go/slack beyond construction.
func (s *Slack) HealthCheck(ctx context.Context) error {
	if !s.started {
		return NewChannelError(ErrHealthCheckFailed, "slack channel not started", nil)
	}
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return NewChannelError(ErrHealthCheckFailed, "slack auth.test failed", err)
	}
	return nil
}

func (s *Slack) Shutdown(context.Context) error {
	s.started = false
	return nil
}

var _ Channel = (*Slack)(nil)
