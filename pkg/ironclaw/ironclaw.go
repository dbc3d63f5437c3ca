// Package ironclaw re-exports the small, stable surface an external
// embedder needs to add a channel or a tool to an ironclaw daemon, without
// reaching into internal/. Mirrors the teacher's pkg/pluginsdk split: the
// daemon's own packages live under internal/ and evolve freely, while this
// package is the seam a third party builds against.
package ironclaw

import (
	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/tools"
)

// Channel is the transport contract every adapter implements (§4.C).
type Channel = channels.Channel

// IncomingMessage is one inbound message from any channel (§3).
type IncomingMessage = models.IncomingMessage

// OutgoingResponse is a reply sent back through a channel (§3).
type OutgoingResponse = models.OutgoingResponse

// StatusUpdate is the sum type of in-flight turn status events (§3).
type StatusUpdate = models.StatusUpdate

// Tool is the contract a tool implementation satisfies to be registered
// with the orchestrator (§4.I.6).
type Tool = tools.Tool

// BaseTool supplies the common no-approval, non-sandbox-spawning Tool
// defaults; embed it and override only what differs.
type BaseTool = tools.BaseTool

// ToolResult is what a Tool.Execute call returns.
type ToolResult = tools.Result

// LLMProvider is the single-shot completion boundary the orchestrator
// calls through; out-of-scope per SPEC_FULL.md §1, so no concrete vendor
// implementation lives in this module — embedders provide their own.
type LLMProvider = llm.Provider

// NewBenchChannel constructs a headless, in-memory channel suitable for
// embedding ironclaw in a test harness or a supervisory process that drives
// turns programmatically rather than over a wire transport.
func NewBenchChannel() Channel {
	return channels.NewBench()
}

// ChannelError is the common fallible-operation error taxonomy every
// Channel method returns (StartupFailed, SendFailed, HealthCheckFailed).
type ChannelError = channels.ChannelError

// ErrorKind enumerates ChannelError.Kind values.
type ErrorKind = channels.ErrorKind

// NewChannelError constructs a ChannelError, for embedders implementing
// their own Channel.
func NewChannelError(kind ErrorKind, message string, cause error) *ChannelError {
	return channels.NewChannelError(kind, message, cause)
}

// ApprovalSentinel is the special content value a Channel sends from
// BenchUser to auto-approve a pending ApprovalNeeded status (§4.C).
const ApprovalSentinel = channels.ApprovalSentinel

// BenchUser is the synthetic user id a headless channel uses for
// auto-approval.
const BenchUser = channels.BenchUser
