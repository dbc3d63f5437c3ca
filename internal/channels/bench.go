package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// Bench is a headless, in-memory channel used by tests and by any
// supervisory process that needs a scriptable transport. It captures every
// response it sends and auto-approves any ApprovalNeeded status by
// injecting a synthetic "always" message from the bench user.
type Bench struct {
	NoopContextExtractor

	mu        sync.Mutex
	started   bool
	stream    chan models.IncomingMessage
	responses []string
	statusLog []string
}

// NewBench constructs an unstarted bench channel.
func NewBench() *Bench {
	return &Bench{stream: make(chan models.IncomingMessage, 64)}
}

func (b *Bench) Name() string { return "bench" }

// Start returns the bench's inbound stream. Calling Start twice fails.
func (b *Bench) Start(ctx context.Context) (<-chan models.IncomingMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil, NewChannelError(ErrStartupFailed, "bench channel already started", nil)
	}
	b.started = true
	return b.stream, nil
}

// Respond records the response content for later assertion.
func (b *Bench) Respond(_ context.Context, _ models.IncomingMessage, resp models.OutgoingResponse) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, resp.Content)
	return nil
}

// SendStatus auto-approves ApprovalNeeded by injecting a sentinel message
// from the bench user and logging the approval, matching scenario S2.
func (b *Bench) SendStatus(ctx context.Context, status models.StatusUpdate, _ map[string]any) error {
	approval, ok := status.(models.ApprovalNeeded)
	if !ok {
		return nil
	}
	b.mu.Lock()
	b.statusLog = append(b.statusLog, fmt.Sprintf("auto_approved: %s", approval.RequestID))
	b.mu.Unlock()

	msg := models.NewIncomingMessage("bench", BenchUser, ApprovalSentinel)
	select {
	case b.stream <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bench) Broadcast(context.Context, string, models.OutgoingResponse) error { return nil }

func (b *Bench) HealthCheck(context.Context) error { return nil }

func (b *Bench) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		close(b.stream)
		b.started = false
	}
	return nil
}

// Responses returns a snapshot of every response captured so far.
func (b *Bench) Responses() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.responses...)
}

// StatusLog returns a snapshot of every status-log entry captured so far.
func (b *Bench) StatusLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.statusLog...)
}

// Inject pushes a synthetic IncomingMessage directly into the bench stream,
// for scripting test scenarios.
func (b *Bench) Inject(ctx context.Context, msg models.IncomingMessage) error {
	select {
	case b.stream <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Channel = (*Bench)(nil)
