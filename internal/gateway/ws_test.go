package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

func TestChatWS_InboundFrameReachesOrchestratorStream(t *testing.T) {
	web := channels.NewWeb()
	stream, err := web.Start(context.Background())
	require.NoError(t, err)
	s := New(Config{AuthToken: "secret-token"}, web, store.NewMemory(), nil, nil)

	server := httptest.NewServer(s)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/chat/ws?token=secret-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsChatSend{Content: "hello"}))

	select {
	case msg := <-stream:
		require.Equal(t, "hello", msg.Content)
		require.Equal(t, "web", msg.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator-facing stream never received the injected message")
	}
}

func TestChatWS_OutboundResponseReachesClient(t *testing.T) {
	web := channels.NewWeb()
	_, err := web.Start(context.Background())
	require.NoError(t, err)
	s := New(Config{AuthToken: "secret-token"}, web, store.NewMemory(), nil, nil)

	server := httptest.NewServer(s)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/chat/ws?token=secret-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine time to register its subscription before
	// the reply is published.
	time.Sleep(50 * time.Millisecond)
	msg := models.NewIncomingMessage("web", store.DefaultUserID, "hi")
	require.NoError(t, web.Respond(context.Background(), msg, models.OutgoingResponse{Content: "pong"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev channels.WebEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "response", ev.Kind)
	require.Equal(t, "pong", ev.Response.Content)
}

func TestChatWS_RejectsMissingToken(t *testing.T) {
	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), store.NewMemory(), nil, nil)
	server := httptest.NewServer(s)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/chat/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}
