// Package channels defines the capability-set contract every transport
// (CLI, HTTP webhook, web UI, Telegram, Signal, Discord) implements, modeled
// as small interfaces rather than one fat interface so adapters only need
// to satisfy the capabilities they actually have.
package channels

import (
	"context"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// ErrorKind enumerates the ChannelError taxonomy.
type ErrorKind string

const (
	ErrStartupFailed     ErrorKind = "startup_failed"
	ErrSendFailed        ErrorKind = "send_failed"
	ErrHealthCheckFailed ErrorKind = "health_check_failed"
)

// ChannelError wraps a channel-taxonomy kind and an optional cause.
type ChannelError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ChannelError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *ChannelError) Unwrap() error { return e.Cause }

// NewChannelError constructs a ChannelError.
func NewChannelError(kind ErrorKind, message string, cause error) *ChannelError {
	return &ChannelError{Kind: kind, Message: message, Cause: cause}
}

// Starter is implemented by every channel. Start is one-shot: calling it
// twice on the same instance must fail.
type Starter interface {
	Name() string
	Start(ctx context.Context) (<-chan models.IncomingMessage, error)
}

// Responder sends a reply in the thread of an inbound message.
type Responder interface {
	Respond(ctx context.Context, msg models.IncomingMessage, resp models.OutgoingResponse) error
}

// StatusSender sends a best-effort status update. Implementations that have
// nothing useful to do with a status should satisfy this with a no-op
// rather than omitting it, so the channel manager can always call it
// uniformly; NoopStatusSender is provided for that purpose.
type StatusSender interface {
	SendStatus(ctx context.Context, status models.StatusUpdate, routingMetadata map[string]any) error
}

// Broadcaster sends a proactive message with no incoming reference.
type Broadcaster interface {
	Broadcast(ctx context.Context, userID string, resp models.OutgoingResponse) error
}

// HealthChecker reports liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Shutdowner idempotently tears the channel down.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ContextExtractor pulls LLM-prompt hints (sender, group, ...) out of a
// message's opaque metadata.
type ContextExtractor interface {
	ConversationContext(metadata map[string]any) map[string]string
}

// Channel aggregates every capability a full transport implementation
// offers. Code that only needs one capability should depend on that
// capability's interface instead of this aggregate, per the no-downcasting
// design constraint.
type Channel interface {
	Starter
	Responder
	StatusSender
	Broadcaster
	HealthChecker
	Shutdowner
	ContextExtractor
}

// NoopStatusSender can be embedded by channels with no meaningful status
// surface; SendStatus and Broadcast become silent no-ops, matching the
// "default implementation is a no-op" contract.
type NoopStatusSender struct{}

func (NoopStatusSender) SendStatus(context.Context, models.StatusUpdate, map[string]any) error {
	return nil
}

func (NoopStatusSender) Broadcast(context.Context, string, models.OutgoingResponse) error {
	return nil
}

// NoopContextExtractor returns an empty mapping.
type NoopContextExtractor struct{}

func (NoopContextExtractor) ConversationContext(map[string]any) map[string]string {
	return map[string]string{}
}

// ApprovalSentinel is the content value that signals acceptance of a
// pending tool approval when emitted as an IncomingMessage.
const ApprovalSentinel = "always"

// BenchUser is the synthetic user id headless test channels use when
// auto-approving.
const BenchUser = "bench-user"
