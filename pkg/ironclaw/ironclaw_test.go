package ironclaw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBenchChannel_SatisfiesChannel(t *testing.T) {
	var ch Channel = NewBenchChannel()
	require.Equal(t, "bench", ch.Name())

	_, err := ch.Start(context.Background())
	require.NoError(t, err)
}

func TestNewChannelError_WrapsKindAndCause(t *testing.T) {
	err := NewChannelError(ErrorKind("send_failed"), "boom", nil)
	require.Contains(t, err.Error(), "boom")
}

func TestSentinelConstants(t *testing.T) {
	require.Equal(t, "always", ApprovalSentinel)
	require.Equal(t, "bench-user", BenchUser)
}
