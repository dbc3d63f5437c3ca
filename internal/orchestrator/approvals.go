package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/models"
)

// PendingApproval is a suspended tool call awaiting a human decision.
type PendingApproval struct {
	RequestID      string
	ToolCall       llm.ToolCall
	ConversationID uuid.UUID
	Channel        string
	UserID         string
	ThreadID       *string
	RequestedAt    time.Time
}

type approvalTable struct {
	mu      sync.Mutex
	pending map[string]*PendingApproval
}

func newApprovalTable() *approvalTable {
	return &approvalTable{pending: make(map[string]*PendingApproval)}
}

func (t *approvalTable) put(p *PendingApproval) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[p.RequestID] = p
}

func (t *approvalTable) take(requestID string) (*PendingApproval, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[requestID]
	if ok {
		delete(t.pending, requestID)
	}
	return p, ok
}

// takeOldestFor finds the longest-outstanding pending approval for
// (channel, userID) and removes it. Used when the inbound approval
// message carries no explicit request id of its own — the bench channel's
// auto-approve and most chat-style approve/deny buttons only ever have
// one tool call outstanding per user at a time, so channel+user scoping
// is sufficient correlation.
func (t *approvalTable) takeOldestFor(channel, userID string) (*PendingApproval, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var oldestID string
	var oldest *PendingApproval
	for id, p := range t.pending {
		if p.Channel != channel || p.UserID != userID {
			continue
		}
		if oldest == nil || p.RequestedAt.Before(oldest.RequestedAt) {
			oldest, oldestID = p, id
		}
	}
	if oldest == nil {
		return nil, false
	}
	delete(t.pending, oldestID)
	return oldest, true
}

// isApprovalResponse reports whether content is the approval sentinel
// (channels.ApprovalSentinel, "always") that headless/auto-approving
// channels emit. Channels with a richer approve/deny affordance instead
// stamp Metadata["request_id"] (and, for denial, Metadata["approve"] =
// false) on an otherwise-ordinary message; isApprovalResponse recognizes
// that shape too.
func isApprovalResponse(msg models.IncomingMessage) bool {
	if msg.Content == channels.ApprovalSentinel {
		return true
	}
	_, ok := msg.Metadata["request_id"]
	return ok
}

// resumeApproval handles an approval-response message: look up the
// suspended call, execute or deny it, persist the result, and let the
// turn finish with one more LLM round so the user sees a final reply.
func (o *Orchestrator) resumeApproval(ctx context.Context, msg models.IncomingMessage) error {
	var pending *PendingApproval
	var ok bool

	if requestID, has := msg.Metadata["request_id"].(string); has {
		pending, ok = o.approvals.take(requestID)
	} else {
		pending, ok = o.approvals.takeOldestFor(msg.Channel, msg.UserID)
	}
	if !ok {
		o.log.Warn("approval response matched no pending request", "channel", msg.Channel, "user_id", msg.UserID)
		return nil
	}

	approve := true
	if v, has := msg.Metadata["approve"].(bool); has {
		approve = v
	}

	conv, err := o.storeDB.GetConversation(ctx, pending.ConversationID)
	if err != nil {
		return err
	}

	var result string
	switch {
	case !approve:
		result = "tool call denied by user"
	default:
		synthMsg := models.IncomingMessage{Channel: pending.Channel, UserID: pending.UserID, ThreadID: pending.ThreadID}
		if t, ok := o.registry.Get(pending.ToolCall.Name); ok && t.IsSandboxSpawning() {
			jobResult, err := o.spawnJob(ctx, synthMsg, conv, t, pending.ToolCall)
			if err != nil {
				result = "job spawn failed: " + err.Error()
			} else {
				result = jobResult
			}
		} else {
			res, execErr := o.executeTool(ctx, pending.ToolCall)
			if execErr != nil {
				result = "tool error: " + execErr.Error()
			} else {
				result = res.Content
			}
		}
	}

	if err := o.persistToolResult(ctx, conv.ID, pending.ToolCall, result); err != nil {
		return err
	}

	synth := models.IncomingMessage{
		ID:       uuid.New(),
		Channel:  pending.Channel,
		UserID:   pending.UserID,
		ThreadID: pending.ThreadID,
	}
	return o.continueTurn(ctx, synth, conv)
}
