package channels

import (
	"context"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// fakeTelegramBot stands in for *bot.Bot so Start/SendMessage never touch
// the network; handleUpdate is invoked directly to simulate an update.
type fakeTelegramBot struct {
	handler tgbot.HandlerFunc
	sent    []tgbot.SendMessageParams
}

func (f *fakeTelegramBot) Start(ctx context.Context) {
	<-ctx.Done()
}

func (f *fakeTelegramBot) SendMessage(_ context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error) {
	f.sent = append(f.sent, *params)
	return &tgmodels.Message{}, nil
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeTelegramBot) {
	t.Helper()
	tg := NewTelegram(TelegramConfig{Token: "test-token"})
	var fake *fakeTelegramBot
	tg.newBot = func(token string, handler tgbot.HandlerFunc) (telegramBot, error) {
		fake = &fakeTelegramBot{handler: handler}
		return fake, nil
	}
	return tg, fake
}

func TestTelegram_InboundMessageReachesStream(t *testing.T) {
	tg, _ := newTestTelegram(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := tg.Start(ctx)
	require.NoError(t, err)

	tg.handleUpdate(ctx, nil, &tgmodels.Update{
		Message: &tgmodels.Message{
			Text: "hello bot",
			From: &tgmodels.User{ID: 42, Username: "panos"},
			Chat: tgmodels.Chat{ID: 42},
		},
	})

	select {
	case msg := <-stream:
		require.Equal(t, "telegram", msg.Channel)
		require.Equal(t, "42", msg.UserID)
		require.Equal(t, "hello bot", msg.Content)
		require.NotNil(t, msg.ThreadID)
		require.Equal(t, "42", *msg.ThreadID)
	case <-time.After(time.Second):
		t.Fatal("message never reached stream")
	}
}

func TestTelegram_RespondSendsToChat(t *testing.T) {
	tg, fake := newTestTelegram(t)
	ctx := context.Background()
	_, err := tg.Start(ctx)
	require.NoError(t, err)
	defer tg.Shutdown(ctx)

	threadID := "42"
	msg := models.IncomingMessage{Channel: "telegram", UserID: "42", ThreadID: &threadID}
	require.NoError(t, tg.Respond(ctx, msg, models.OutgoingResponse{Content: "hi there"}))

	require.Len(t, fake.sent, 1)
	require.Equal(t, "hi there", fake.sent[0].Text)
}

func TestTelegram_HealthCheckBeforeStartFails(t *testing.T) {
	tg, _ := newTestTelegram(t)
	require.Error(t, tg.HealthCheck(context.Background()))
}
