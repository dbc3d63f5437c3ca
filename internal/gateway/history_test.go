package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

func authedGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHistory_ListsConversations(t *testing.T) {
	db := store.NewMemory()
	conv, err := db.GetOrCreateConversation(context.Background(), "web", store.DefaultUserID, nil)
	require.NoError(t, err)
	require.NoError(t, db.AppendMessage(context.Background(), models.ConversationMessage{
		ID: uuid.New(), ConversationID: conv.ID, Role: models.RoleUser, Content: "hi",
	}))

	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), db, nil, nil)
	rec := authedGet(t, s, "/api/chat/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	require.Equal(t, conv.ID, resp.Conversations[0].ID)
}

func TestHistory_ListsMessagesForConversation(t *testing.T) {
	db := store.NewMemory()
	conv, err := db.GetOrCreateConversation(context.Background(), "web", store.DefaultUserID, nil)
	require.NoError(t, err)
	require.NoError(t, db.AppendMessage(context.Background(), models.ConversationMessage{
		ID: uuid.New(), ConversationID: conv.ID, Role: models.RoleUser, Content: "hi",
	}))

	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), db, nil, nil)
	rec := authedGet(t, s, "/api/chat/history?conversation_id="+conv.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	require.Equal(t, "hi", resp.Messages[0].Content)
}

// TestHistory_InvariantOwnerIsolation is invariant 11: hydrating a
// conversation belonging to another user must not surface its messages.
func TestHistory_InvariantOwnerIsolation(t *testing.T) {
	db := store.NewMemory()
	conv, err := db.GetOrCreateConversation(context.Background(), "web", "someone-else", nil)
	require.NoError(t, err)

	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), db, nil, nil)
	rec := authedGet(t, s, "/api/chat/history?conversation_id="+conv.ID.String())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory_InvalidConversationIDRejected(t *testing.T) {
	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), store.NewMemory(), nil, nil)
	rec := authedGet(t, s, "/api/chat/history?conversation_id=not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
