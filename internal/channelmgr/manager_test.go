package channelmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
)

func TestStartAll_FailsOnlyIfZeroStarted(t *testing.T) {
	mgr := New(nil)
	bad := channels.NewBench()
	// Start it once up-front so the manager's own StartAll call fails.
	_, err := bad.Start(context.Background())
	require.NoError(t, err)
	mgr.Add(bad)

	_, err = mgr.StartAll(context.Background())
	require.Error(t, err)
}

func TestStartAll_MergesMultipleChannelsAndInjection(t *testing.T) {
	mgr := New(nil)
	a := channels.NewBench()
	mgr.Add(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := mgr.StartAll(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Inject(ctx, models.NewIncomingMessage("bench", "u", "from-channel")))

	inject := mgr.InjectSender()
	inject <- models.NewIncomingMessage("injected", "sys", "from-injection")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-out:
			seen[msg.Content] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged message")
		}
	}
	require.True(t, seen["from-channel"])
	require.True(t, seen["from-injection"])
}

func TestRespond_UnknownChannelIsHardFailure(t *testing.T) {
	mgr := New(nil)
	msg := models.NewIncomingMessage("nonexistent", "u", "hi")
	err := mgr.Respond(context.Background(), msg, models.OutgoingResponse{Content: "x"})
	require.Error(t, err)
}

func TestSendStatus_MissingChannelIsSilent(t *testing.T) {
	mgr := New(nil)
	require.NotPanics(t, func() {
		mgr.SendStatus(context.Background(), "missing", models.Status{Text: "hi"}, nil)
	})
}

func TestBroadcastAll_ContinuesThroughFailure(t *testing.T) {
	mgr := New(nil)
	good := channels.NewBench()
	mgr.Add(good)
	// Never started, so every send through it fails.
	bad := channels.NewTelegram(channels.TelegramConfig{})
	mgr.Add(bad)

	results := mgr.BroadcastAll(context.Background(), "user", models.OutgoingResponse{Content: "hi"})
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Channel == "bench" {
			require.NoError(t, r.Err)
		} else {
			require.Error(t, r.Err)
		}
	}
}
