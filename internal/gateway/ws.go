package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 45 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsChatSend struct {
	Content  string  `json:"content"`
	ThreadID *string `json:"thread_id,omitempty"`
}

// handleChatWS upgrades to a WebSocket and bridges it to the web channel:
// inbound frames are decoded as wsChatSend and injected, outbound
// WebEvents (and, best-effort, keepalive pings) are written back.
// Grounded on the teacher's wsControlPlane session loop (one goroutine
// reading, one writing, a shared cancel), generalized down from its
// JSON-RPC envelope to this core's plain request/event shapes.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	events, unsubscribe := s.web.Subscribe(store.DefaultUserID)

	go s.wsWriteLoop(ctx, conn, events)
	s.wsReadLoop(ctx, conn)

	cancel()
	unsubscribe()
	conn.Close()
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsChatSend
		if err := json.Unmarshal(data, &req); err != nil || req.Content == "" {
			continue
		}
		msg := models.NewIncomingMessage("web", store.DefaultUserID, req.Content)
		msg.ThreadID = req.ThreadID
		if err := s.web.Inject(ctx, msg); err != nil {
			return
		}
	}
}

func (s *Server) wsWriteLoop(ctx context.Context, conn *websocket.Conn, events <-chan channels.WebEvent) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
