package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// HTTPConfig configures the HTTP webhook channel.
type HTTPConfig struct {
	Host          string
	Port          int
	WebhookSecret string // empty means no secret is required
}

// WaitForResponseTimeout bounds how long a webhook request with
// wait_for_response=true blocks for the agent's reply.
const WaitForResponseTimeout = 60 * time.Second

type webhookRequest struct {
	UserID          string  `json:"user_id"`
	Content         string  `json:"content"`
	ThreadID        *string `json:"thread_id,omitempty"`
	Secret          *string `json:"secret,omitempty"`
	WaitForResponse bool    `json:"wait_for_response"`
}

type webhookResponse struct {
	MessageID uuid.UUID `json:"message_id"`
	Status    string    `json:"status"`
	Response  *string   `json:"response,omitempty"`
}

// HTTP is the §6 HTTP webhook channel: a net/http server exposing
// POST /webhook and GET /health.
type HTTP struct {
	NoopContextExtractor

	config HTTPConfig

	mu       sync.Mutex
	started  bool
	stream   chan models.IncomingMessage
	server   *http.Server
	listener net.Listener

	pendingMu sync.Mutex
	pending   map[uuid.UUID]chan string
}

// NewHTTP constructs an unstarted HTTP webhook channel.
func NewHTTP(config HTTPConfig) *HTTP {
	return &HTTP{
		config:  config,
		stream:  make(chan models.IncomingMessage, 256),
		pending: make(map[uuid.UUID]chan string),
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Start(ctx context.Context) (<-chan models.IncomingMessage, error) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil, NewChannelError(ErrStartupFailed, "http channel already started", nil)
	}

	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		h.mu.Unlock()
		return nil, NewChannelError(ErrStartupFailed, fmt.Sprintf("failed to bind to %s", addr), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /webhook", h.handleWebhook)

	h.server = &http.Server{Handler: mux}
	h.listener = ln
	h.started = true
	h.mu.Unlock()

	go func() {
		_ = h.server.Serve(ln)
	}()

	return h.stream, nil
}

func (h *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "channel": "http"})
}

func (h *HTTP) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Response: strPtr("invalid request body")})
		return
	}

	if h.config.WebhookSecret != "" {
		switch {
		case req.Secret == nil:
			h.writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "error", Response: strPtr("Webhook secret required")})
			return
		case *req.Secret != h.config.WebhookSecret:
			h.writeJSON(w, http.StatusUnauthorized, webhookResponse{Status: "error", Response: strPtr("Invalid webhook secret")})
			return
		}
	}

	msg := models.NewIncomingMessage("http", req.UserID, req.Content)
	msg.ThreadID = req.ThreadID
	msg.Metadata["wait_for_response"] = req.WaitForResponse

	status, resp := h.processMessage(r.Context(), msg, req.WaitForResponse)
	h.writeJSON(w, status, resp)
}

func (h *HTTP) processMessage(ctx context.Context, msg models.IncomingMessage, wait bool) (int, webhookResponse) {
	var waiter chan string
	if wait {
		waiter = make(chan string, 1)
		h.pendingMu.Lock()
		h.pending[msg.ID] = waiter
		h.pendingMu.Unlock()
	}

	select {
	case h.stream <- msg:
	case <-ctx.Done():
		return http.StatusInternalServerError, webhookResponse{MessageID: msg.ID, Status: "error", Response: strPtr("Channel closed")}
	}

	if !wait {
		return http.StatusOK, webhookResponse{MessageID: msg.ID, Status: "accepted"}
	}

	select {
	case content := <-waiter:
		return http.StatusOK, webhookResponse{MessageID: msg.ID, Status: "accepted", Response: &content}
	case <-time.After(WaitForResponseTimeout):
		h.pendingMu.Lock()
		delete(h.pending, msg.ID)
		h.pendingMu.Unlock()
		return http.StatusOK, webhookResponse{MessageID: msg.ID, Status: "accepted", Response: strPtr("Response timeout")}
	}
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, resp webhookResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Respond resolves a pending wait_for_response waiter, if one exists for
// msg.ID. For fire-and-forget requests this is a no-op.
func (h *HTTP) Respond(_ context.Context, msg models.IncomingMessage, resp models.OutgoingResponse) error {
	h.pendingMu.Lock()
	waiter, ok := h.pending[msg.ID]
	if ok {
		delete(h.pending, msg.ID)
	}
	h.pendingMu.Unlock()
	if ok {
		select {
		case waiter <- resp.Content:
		default:
		}
	}
	return nil
}

func (h *HTTP) SendStatus(context.Context, models.StatusUpdate, map[string]any) error { return nil }

func (h *HTTP) Broadcast(context.Context, string, models.OutgoingResponse) error { return nil }

func (h *HTTP) HealthCheck(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return NewChannelError(ErrHealthCheckFailed, "http channel not started", nil)
	}
	return nil
}

func (h *HTTP) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	server := h.server
	h.started = false
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func strPtr(s string) *string { return &s }

var _ Channel = (*HTTP)(nil)
