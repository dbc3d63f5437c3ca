// Package llm defines the opaque LLM provider boundary the orchestrator
// depends on. No concrete vendor SDK is wired in here — that is out of
// scope per SPEC_FULL.md §1 — only the capability interface and a
// deterministic fake good enough to drive the orchestrator's tests,
// mirroring the teacher's internal/agent.LLMProvider capability boundary
// without committing to one vendor.
package llm

import (
	"context"
	"errors"
)

// Message is one turn of conversation handed to the provider. Role is one
// of "user", "assistant", "system", or "tool".
type Message struct {
	Role    string
	Content string
}

// ToolDefinition describes one callable tool for the provider's function
// calling surface.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema, as accepted by jsonschema.CompileString
}

// ToolCall is one invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments []byte // raw JSON arguments
	Rationale string // free-text explanation the model gave for this call
}

// Request is a single completion request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
	// Temperature of 0 uses the provider's default.
	Temperature float64
}

// Response is either a terminal assistant reply or a set of requested tool
// calls (never both non-empty in practice, but both fields are always
// populated so callers can check either).
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// ErrorKind distinguishes a transient (retry-once) failure from a
// deterministic one (abort the turn) per SPEC_FULL.md §7.
type ErrorKind string

const (
	ErrTransient      ErrorKind = "transient"
	ErrDeterministic  ErrorKind = "deterministic"
)

// Error wraps a provider failure with its retry classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// IsTransient reports whether err (or any error it wraps) is a transient
// LLMError eligible for the orchestrator's single internal retry.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ErrTransient
}

// Provider is the opaque capability the orchestrator depends on. Real
// vendor SDKs (Anthropic, OpenAI, Bedrock, ...) implement this outside the
// core; only Fake (below) ships with it.
type Provider interface {
	// Complete sends req and returns either a terminal reply or tool calls.
	Complete(ctx context.Context, req Request) (Response, error)
	// Name identifies the provider for logging/diagnostics.
	Name() string
}
