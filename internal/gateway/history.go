package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

const defaultHistoryLimit = 50

type historyResponse struct {
	Conversations []models.ConversationSummary `json:"conversations,omitempty"`
	Messages      []models.ConversationMessage `json:"messages,omitempty"`
}

// handleChatHistory lists either the operator's conversations (no
// conversation_id query param) or one conversation's messages, paginated
// strictly before an optional cursor message id.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	convIDRaw := q.Get("conversation_id")
	if convIDRaw == "" {
		s.listConversations(w, r, limit)
		return
	}

	convID, err := uuid.Parse(convIDRaw)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}

	owned, err := s.store.OwnedBy(r.Context(), convID, store.DefaultUserID)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !owned {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var before *uuid.UUID
	if raw := q.Get("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid before cursor", http.StatusBadRequest)
			return
		}
		before = &id
	}

	messages, err := s.store.ListMessages(r.Context(), convID, before, limit)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, historyResponse{Messages: messages})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request, limit int) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	conversations, err := s.store.ListConversations(r.Context(), store.DefaultUserID, limit, offset)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, historyResponse{Conversations: conversations})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
