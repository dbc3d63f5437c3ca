package channels

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// TelegramConfig configures the Telegram long-polling channel.
type TelegramConfig struct {
	Token       string
	ChannelName string // defaults to "telegram"
	Logger      *slog.Logger
}

// telegramBot is the subset of *bot.Bot this channel calls, narrowed for
// substitutability in tests without a live bot token.
type telegramBot interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram implements the channel contract over go-telegram/bot's long
// polling mode. Grounded on the teacher's telegram adapter (Config shape,
// slog logging, bot.New/RegisterHandler/Start wiring), collapsed from its
// dual long-polling/webhook mode support to long polling only — this spec
// names no webhook requirement for Telegram the way it does for Discord.
type Telegram struct {
	NoopContextExtractor

	config TelegramConfig
	logger *slog.Logger

	newBot func(token string, handler tgbot.HandlerFunc) (telegramBot, error)

	mu      sync.Mutex
	started bool
	bot     telegramBot
	cancel  context.CancelFunc
	stream  chan models.IncomingMessage
}

// NewTelegram constructs an unstarted Telegram channel.
func NewTelegram(config TelegramConfig) *Telegram {
	if config.ChannelName == "" {
		config.ChannelName = "telegram"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telegram{
		config: config,
		logger: logger.With("channel", "telegram"),
		stream: make(chan models.IncomingMessage, 256),
	}
	t.newBot = t.newRealBot
	return t
}

func (t *Telegram) Name() string { return t.config.ChannelName }

func (t *Telegram) newRealBot(token string, handler tgbot.HandlerFunc) (telegramBot, error) {
	return tgbot.New(token, tgbot.WithDefaultHandler(handler))
}

func (t *Telegram) Start(ctx context.Context) (<-chan models.IncomingMessage, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil, NewChannelError(ErrStartupFailed, "telegram channel already started", nil)
	}

	b, err := t.newBot(t.config.Token, t.handleUpdate)
	if err != nil {
		t.mu.Unlock()
		return nil, NewChannelError(ErrStartupFailed, "failed to create telegram bot", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.bot = b
	t.cancel = cancel
	t.started = true
	t.mu.Unlock()

	go func() {
		defer close(t.stream)
		b.Start(runCtx)
	}()

	t.logger.Info("telegram channel started")
	return t.stream, nil
}

func (t *Telegram) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msg := models.NewIncomingMessage("telegram", itoa(update.Message.From.ID), update.Message.Text)
	if update.Message.From.Username != "" {
		name := update.Message.From.Username
		msg.DisplayName = &name
	}
	threadID := itoa(update.Message.Chat.ID)
	msg.ThreadID = &threadID
	msg.Metadata["telegram_chat_id"] = update.Message.Chat.ID

	select {
	case t.stream <- msg:
	case <-ctx.Done():
	default:
		t.logger.Warn("telegram stream full, dropping message", "chat_id", update.Message.Chat.ID)
	}
}

// Respond sends resp into the chat named by msg.ThreadID.
func (t *Telegram) Respond(ctx context.Context, msg models.IncomingMessage, resp models.OutgoingResponse) error {
	return t.sendTo(ctx, msg.ThreadID, resp.Content)
}

// Broadcast sends resp into the chat named by userID (Telegram has no
// separate group concept at this layer; the chat id IS the user id for a
// direct-message bot).
func (t *Telegram) Broadcast(ctx context.Context, userID string, resp models.OutgoingResponse) error {
	return t.sendTo(ctx, &userID, resp.Content)
}

func (t *Telegram) sendTo(ctx context.Context, chatID *string, content string) error {
	if chatID == nil {
		return NewChannelError(ErrSendFailed, "telegram response missing chat id", nil)
	}
	t.mu.Lock()
	b := t.bot
	t.mu.Unlock()
	if b == nil {
		return NewChannelError(ErrSendFailed, "telegram bot not started", nil)
	}

	id, err := parseInt64(*chatID)
	if err != nil {
		return NewChannelError(ErrSendFailed, "invalid telegram chat id", err)
	}

	_, err = b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: id, Text: content})
	if err != nil {
		return NewChannelError(ErrSendFailed, "failed to send telegram message", err)
	}
	return nil
}

func (t *Telegram) SendStatus(context.Context, models.StatusUpdate, map[string]any) error { return nil }

func (t *Telegram) HealthCheck(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return NewChannelError(ErrHealthCheckFailed, "telegram channel not started", nil)
	}
	return nil
}

func (t *Telegram) Shutdown(context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	t.started = false
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

var _ Channel = (*Telegram)(nil)
