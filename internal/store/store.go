package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// DefaultUserID is the literal settings-namespace user id used when no
// authenticated user is attached to a request (SPEC_FULL.md §6).
const DefaultUserID = "default"

// ConversationStore persists conversations and their messages. Three
// implementations exist (SQLite, Postgres, and the in-process Memory); the
// orchestrator depends only on this interface.
type ConversationStore interface {
	// CreateConversation persists a brand new conversation.
	CreateConversation(ctx context.Context, conv models.Conversation) error
	// GetConversation fetches a conversation by id.
	GetConversation(ctx context.Context, id uuid.UUID) (models.Conversation, error)
	// TouchConversation updates LastActivity to now.
	TouchConversation(ctx context.Context, id uuid.UUID, now time.Time) error
	// GetOrCreateConversation returns the existing conversation for
	// (channel, userID, threadID) or creates a fresh one of the given kind.
	// threadID may be nil for channels without sub-threads.
	GetOrCreateConversation(ctx context.Context, channel, userID string, threadID *string) (models.Conversation, error)
	// OwnedBy reports whether conversation id belongs to userID. Used to
	// enforce cross-user thread isolation (SPEC_FULL.md §4.I.2).
	OwnedBy(ctx context.Context, id uuid.UUID, userID string) (bool, error)

	// AppendMessage persists msg, immutable once written.
	AppendMessage(ctx context.Context, msg models.ConversationMessage) error
	// ListMessages returns up to limit messages for conv ordered by
	// (CreatedAt, ID), optionally paginated strictly before a cursor message
	// id (nil cursor means "most recent page").
	ListMessages(ctx context.Context, conv uuid.UUID, before *uuid.UUID, limit int) ([]models.ConversationMessage, error)
	// ListConversations returns a preview-annotated summary page for userID.
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationSummary, error)

	// SetMetadata upserts a single metadata key on a conversation.
	SetMetadata(ctx context.Context, id uuid.UUID, key string, value any) error
	// GetMetadata reads a single metadata key, returning (nil, false) if absent.
	GetMetadata(ctx context.Context, id uuid.UUID, key string) (any, bool, error)
}

// SettingsStore persists per-user (key -> JSON value) settings.
type SettingsStore interface {
	Set(ctx context.Context, userID, key string, value []byte) error
	Get(ctx context.Context, userID, key string) ([]byte, error)
	Delete(ctx context.Context, userID, key string) error
	List(ctx context.Context, userID string) ([]models.SettingRow, error)
	// SetAll and GetAll operate transactionally across every key in one call.
	SetAll(ctx context.Context, userID string, values map[string][]byte) error
	GetAll(ctx context.Context, userID string) (map[string][]byte, error)
	Exists(ctx context.Context, userID, key string) (bool, error)
}

// ToolFailureStore tracks per-tool failure counters and repair state.
type ToolFailureStore interface {
	// RecordFailure upserts the counter for name, incrementing by one and
	// recording lastErr and the current time as LastFailure (and, on first
	// insert, FirstFailure too).
	RecordFailure(ctx context.Context, name, lastErr string, at time.Time) error
	// GetBrokenTools returns every tool whose FailureCount is >= threshold.
	GetBrokenTools(ctx context.Context, threshold int) ([]models.BrokenTool, error)
	// MarkRepaired resets a tool's failure counter to zero.
	MarkRepaired(ctx context.Context, name string, buildResult string) error
	// IncrementRepairAttempts bumps a tool's RepairAttempts counter.
	IncrementRepairAttempts(ctx context.Context, name string) error
}

// Store groups the three persistence contracts the orchestrator depends on,
// plus a Close for backend teardown.
type Store interface {
	ConversationStore
	SettingsStore
	ToolFailureStore
	Close() error
}
