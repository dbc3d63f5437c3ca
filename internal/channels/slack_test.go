package channels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSlack_RegistersAsChannel is the construction-time registration test
// this deliberately thin binding gets: it proves NewSlack satisfies the
// Channel contract and starts/stops cleanly, without touching the live
// Slack API for message flow.
func TestSlack_RegistersAsChannel(t *testing.T) {
	s := NewSlack(SlackConfig{BotToken: "xoxb-test"})
	require.Equal(t, "slack", s.Name())

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	_, err = s.Start(ctx)
	require.Error(t, err, "double start must fail like every other channel")

	require.NoError(t, s.Shutdown(ctx))
}
