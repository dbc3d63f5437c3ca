package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

type chatSendRequest struct {
	Content  string  `json:"content"`
	ThreadID *string `json:"thread_id,omitempty"`
}

type chatSendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// handleChatSend accepts one chat message from the web UI and injects it
// into the web channel's stream for the orchestrator to pick up; the
// reply itself arrives asynchronously over /api/chat/events or
// /api/chat/ws, not in this response.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	msg := models.NewIncomingMessage("web", store.DefaultUserID, req.Content)
	msg.ThreadID = req.ThreadID

	if err := s.web.Inject(r.Context(), msg); err != nil {
		http.Error(w, "could not accept message", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatSendResponse{MessageID: msg.ID.String(), Status: "accepted"})
}
