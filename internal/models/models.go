// Package models holds the shared data types that flow between channels,
// the orchestrator, and the persistence store.
package models

import (
	"time"

	"github.com/google/uuid"
)

// IncomingMessage is produced by a channel transport and consumed exactly
// once by the orchestrator. It is never mutated after construction.
type IncomingMessage struct {
	ID          uuid.UUID
	Channel     string
	UserID      string
	DisplayName *string
	Content     string
	ThreadID    *string
	ReceivedAt  time.Time
	Metadata    map[string]any
}

// NewIncomingMessage stamps a fresh id and receive timestamp.
func NewIncomingMessage(channel, userID, content string) IncomingMessage {
	return IncomingMessage{
		ID:         uuid.New(),
		Channel:    channel,
		UserID:     userID,
		Content:    content,
		ReceivedAt: time.Now().UTC(),
		Metadata:   map[string]any{},
	}
}

// Attachment is an opaque attachment reference carried on an OutgoingResponse.
type Attachment struct {
	Name        string
	ContentType string
	URL         string
}

// OutgoingResponse is an immutable reply to be sent back through a channel.
type OutgoingResponse struct {
	Content     string
	ThreadID    *string
	Attachments []Attachment
	Metadata    map[string]any
}

// StatusUpdate is a closed sum type of best-effort progress signals. Only
// the types declared in this file implement it.
type StatusUpdate interface {
	statusUpdate()
}

type Thinking struct{ Text string }
type ToolStarted struct{ Name string }
type ToolCompleted struct {
	Name    string
	Success bool
}
type ToolResult struct {
	Name    string
	Preview string
}
type StreamChunk struct{ Text string }
type ReasoningUpdate struct {
	Session, Thread string
	Turn            int
	Narrative       *string
	Decisions       []string
}
type Status struct{ Text string }
type JobStarted struct {
	JobID, Title, URL string
}
type ApprovalNeeded struct {
	RequestID, Tool, Description string
	Params                       map[string]any
}
type AuthRequired struct {
	Ext                                  string
	Instructions, AuthURL, SetupURL      *string
}
type AuthCompleted struct {
	Ext     string
	Success bool
	Message string
}

func (Thinking) statusUpdate()        {}
func (ToolStarted) statusUpdate()     {}
func (ToolCompleted) statusUpdate()   {}
func (ToolResult) statusUpdate()      {}
func (StreamChunk) statusUpdate()     {}
func (ReasoningUpdate) statusUpdate() {}
func (Status) statusUpdate()          {}
func (JobStarted) statusUpdate()      {}
func (ApprovalNeeded) statusUpdate()  {}
func (AuthRequired) statusUpdate()    {}
func (AuthCompleted) statusUpdate()   {}

// Conversation is a persisted sequence of messages between one user and the
// agent on one channel.
type Conversation struct {
	ID           uuid.UUID
	Channel      string
	UserID       string
	ThreadID     *string
	StartedAt    time.Time
	LastActivity time.Time
	Metadata     map[string]any
}

// ConversationMessage roles. These four are the only legal values.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleToolCalls = "tool_calls"
	RoleSystem    = "system"
)

type ConversationMessage struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	CreatedAt      time.Time
}

// JobState is the lifecycle of a sandboxed job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobTimedOut  JobState = "timed_out"
)

type Job struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Title          string
	State          JobState
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ResultStatus   string
	SessionID      *string
}

// CredentialGrant maps a declared secret name to the environment variable a
// sandboxed job should see it under. Immutable per job, held only in memory.
type CredentialGrant struct {
	SecretName string
	EnvVar     string
}

// BrokenTool is a diagnostic record of a tool that has crossed its failure
// threshold and is eligible for repair.
type BrokenTool struct {
	Name            string
	LastError       *string
	FailureCount    int
	FirstFailure    time.Time
	LastFailure     time.Time
	LastBuildResult *string
	RepairAttempts  int
}

// SettingRow is a single (key -> value) settings entry with its last write time.
type SettingRow struct {
	Key       string
	Value     []byte // JSON-encoded
	UpdatedAt time.Time
}

// ConversationSummary is a lightweight listing row with a content preview.
type ConversationSummary struct {
	Conversation
	Preview string
}
