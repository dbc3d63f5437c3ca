package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// Memory is an in-process Store used by tests; store.Open never selects
// it. Grounded on the teacher's storage.MemoryAgentStore
// family: one RWMutex-guarded map per entity, generalized to our richer
// contract.
type Memory struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]models.Conversation
	messages      map[uuid.UUID][]models.ConversationMessage
	settings      map[string]map[string][]byte // userID -> key -> value
	brokenTools   map[string]*models.BrokenTool
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[uuid.UUID]models.Conversation),
		messages:      make(map[uuid.UUID][]models.ConversationMessage),
		settings:      make(map[string]map[string][]byte),
		brokenTools:   make(map[string]*models.BrokenTool),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateConversation(_ context.Context, conv models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv
	return nil
}

func (m *Memory) GetConversation(_ context.Context, id uuid.UUID) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return models.Conversation{}, NewError(ErrNotFound, "conversation not found", nil)
	}
	return conv, nil
}

func (m *Memory) TouchConversation(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return NewError(ErrNotFound, "conversation not found", nil)
	}
	conv.LastActivity = now
	m.conversations[id] = conv
	return nil
}

func (m *Memory) GetOrCreateConversation(_ context.Context, channel, userID string, threadID *string) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conv := range m.conversations {
		if conv.Channel == channel && conv.UserID == userID && sameThread(conv.ThreadID, threadID) {
			return conv, nil
		}
	}

	now := time.Now().UTC()
	conv := models.Conversation{
		ID:           uuid.New(),
		Channel:      channel,
		UserID:       userID,
		ThreadID:     threadID,
		StartedAt:    now,
		LastActivity: now,
		Metadata:     map[string]any{},
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func sameThread(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Memory) OwnedBy(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return false, NewError(ErrNotFound, "conversation not found", nil)
	}
	return conv.UserID == userID, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg models.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		return NewError(ErrNotFound, "conversation not found", nil)
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *Memory) ListMessages(_ context.Context, conv uuid.UUID, before *uuid.UUID, limit int) ([]models.ConversationMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := append([]models.ConversationMessage(nil), m.messages[conv]...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if before != nil {
		cut := len(all)
		for i, msg := range all {
			if msg.ID == *before {
				cut = i
				break
			}
		}
		all = all[:cut]
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string, limit, offset int) ([]models.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summaries []models.ConversationSummary
	for _, conv := range m.conversations {
		if conv.UserID != userID {
			continue
		}
		preview := ""
		msgs := m.messages[conv.ID]
		if len(msgs) > 0 {
			preview = msgs[len(msgs)-1].Content
		}
		summaries = append(summaries, models.ConversationSummary{Conversation: conv, Preview: preview})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})

	if offset < 0 {
		offset = 0
	}
	if offset > len(summaries) {
		offset = len(summaries)
	}
	end := len(summaries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return summaries[offset:end], nil
}

func (m *Memory) SetMetadata(_ context.Context, id uuid.UUID, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return NewError(ErrNotFound, "conversation not found", nil)
	}
	if conv.Metadata == nil {
		conv.Metadata = map[string]any{}
	}
	conv.Metadata[key] = value
	m.conversations[id] = conv
	return nil
}

func (m *Memory) GetMetadata(_ context.Context, id uuid.UUID, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, false, NewError(ErrNotFound, "conversation not found", nil)
	}
	v, ok := conv.Metadata[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, userID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings[userID] == nil {
		m.settings[userID] = make(map[string][]byte)
	}
	m.settings[userID][key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Get(_ context.Context, userID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[userID][key]
	if !ok {
		return nil, NewError(ErrNotFound, "setting not found", nil)
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Delete(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings[userID], key)
	return nil
}

func (m *Memory) List(_ context.Context, userID string) ([]models.SettingRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := make([]models.SettingRow, 0, len(m.settings[userID]))
	for k, v := range m.settings[userID] {
		rows = append(rows, models.SettingRow{Key: k, Value: append([]byte(nil), v...)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func (m *Memory) SetAll(_ context.Context, userID string, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings[userID] == nil {
		m.settings[userID] = make(map[string][]byte)
	}
	for k, v := range values {
		m.settings[userID][k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *Memory) GetAll(_ context.Context, userID string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.settings[userID]))
	for k, v := range m.settings[userID] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) Exists(_ context.Context, userID, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.settings[userID][key]
	return ok, nil
}

func (m *Memory) RecordFailure(_ context.Context, name, lastErr string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bt, ok := m.brokenTools[name]
	if !ok {
		bt = &models.BrokenTool{Name: name, FirstFailure: at}
		m.brokenTools[name] = bt
	}
	bt.LastError = &lastErr
	bt.FailureCount++
	bt.LastFailure = at
	return nil
}

func (m *Memory) GetBrokenTools(_ context.Context, threshold int) ([]models.BrokenTool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BrokenTool
	for _, bt := range m.brokenTools {
		if bt.FailureCount >= threshold {
			out = append(out, *bt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) MarkRepaired(_ context.Context, name string, buildResult string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bt, ok := m.brokenTools[name]
	if !ok {
		return NewError(ErrNotFound, "tool not found", nil)
	}
	bt.FailureCount = 0
	bt.LastBuildResult = &buildResult
	return nil
}

func (m *Memory) IncrementRepairAttempts(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bt, ok := m.brokenTools[name]
	if !ok {
		return NewError(ErrNotFound, "tool not found", nil)
	}
	bt.RepairAttempts++
	return nil
}

var _ Store = (*Memory)(nil)
