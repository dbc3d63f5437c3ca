package channels

import (
	"context"
	"sync"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// WebEvent is one item on a user's web-gateway event bus: either a reply
// the orchestrator sent back through this channel, or a best-effort status
// update, destined for that user's open SSE/WebSocket connections.
type WebEvent struct {
	Kind     string // "response" or "status"
	Response *models.OutgoingResponse
	Status   models.StatusUpdate
}

const webSubscriberBuffer = 64

type webSubscription struct {
	events chan WebEvent
}

// Web is the §6 web gateway channel. It carries no transport of its own —
// the gateway package owns the actual HTTP, SSE, and WebSocket servers —
// it is the Channel-shaped fan-out hub those servers subscribe to and
// inject messages through, playing the same in-memory role the bench
// channel plays for tests but with per-user multi-subscriber delivery
// instead of a single capture slice.
type Web struct {
	NoopContextExtractor

	mu      sync.Mutex
	started bool
	stream  chan models.IncomingMessage

	subsMu sync.Mutex
	subs   map[string][]*webSubscription
}

// NewWeb constructs an unstarted web channel.
func NewWeb() *Web {
	return &Web{
		stream: make(chan models.IncomingMessage, 256),
		subs:   make(map[string][]*webSubscription),
	}
}

func (w *Web) Name() string { return "web" }

// Start returns the web channel's inbound stream. Calling Start twice fails.
func (w *Web) Start(ctx context.Context) (<-chan models.IncomingMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil, NewChannelError(ErrStartupFailed, "web channel already started", nil)
	}
	w.started = true
	return w.stream, nil
}

// Inject pushes a message from the gateway's chat-send endpoint into the
// merged stream, blocking until the channel has room or ctx is done.
func (w *Web) Inject(ctx context.Context, msg models.IncomingMessage) error {
	select {
	case w.stream <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a new per-user event sink; the returned func
// unregisters it. The gateway's SSE and WebSocket handlers call this once
// per open connection.
func (w *Web) Subscribe(userID string) (<-chan WebEvent, func()) {
	sub := &webSubscription{events: make(chan WebEvent, webSubscriberBuffer)}
	w.subsMu.Lock()
	w.subs[userID] = append(w.subs[userID], sub)
	w.subsMu.Unlock()

	cancel := func() {
		w.subsMu.Lock()
		defer w.subsMu.Unlock()
		list := w.subs[userID]
		for i, s := range list {
			if s == sub {
				w.subs[userID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return sub.events, cancel
}

func (w *Web) publishTo(userID string, ev WebEvent) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, sub := range w.subs[userID] {
		select {
		case sub.events <- ev:
		default:
			// Subscriber's buffer is full; drop, matching the "status
			// updates are best-effort" rule (SPEC_FULL.md §5).
		}
	}
}

func (w *Web) publishAll(ev WebEvent) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, subs := range w.subs {
		for _, sub := range subs {
			select {
			case sub.events <- ev:
			default:
			}
		}
	}
}

// Respond routes the reply to the subscriptions open for msg.UserID.
func (w *Web) Respond(_ context.Context, msg models.IncomingMessage, resp models.OutgoingResponse) error {
	w.publishTo(msg.UserID, WebEvent{Kind: "response", Response: &resp})
	return nil
}

// SendStatus has no per-user routing information in its signature (the
// channel manager dispatches by channel name only, SPEC_FULL.md §4.D), so
// a web-channel status update fans out to every open connection rather
// than a single user; each browser tab discards events for threads it
// isn't displaying.
func (w *Web) SendStatus(_ context.Context, status models.StatusUpdate, _ map[string]any) error {
	w.publishAll(WebEvent{Kind: "status", Status: status})
	return nil
}

// Broadcast routes a proactive message to one user's open connections.
func (w *Web) Broadcast(_ context.Context, userID string, resp models.OutgoingResponse) error {
	w.publishTo(userID, WebEvent{Kind: "response", Response: &resp})
	return nil
}

func (w *Web) HealthCheck(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return NewChannelError(ErrHealthCheckFailed, "web channel not started", nil)
	}
	return nil
}

func (w *Web) Shutdown(context.Context) error {
	w.mu.Lock()
	w.started = false
	w.mu.Unlock()
	return nil
}

var _ Channel = (*Web)(nil)
