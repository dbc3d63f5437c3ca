package gateway

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

func TestChatEvents_StreamsResponse(t *testing.T) {
	web := channels.NewWeb()
	_, err := web.Start(context.Background())
	require.NoError(t, err)
	s := New(Config{AuthToken: "secret-token"}, web, store.NewMemory(), nil, nil)

	server := httptest.NewServer(s)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/chat/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	go func() {
		time.Sleep(50 * time.Millisecond)
		msg := models.NewIncomingMessage("web", store.DefaultUserID, "hi")
		_ = web.Respond(context.Background(), msg, models.OutgoingResponse{Content: "pong"})
	}()

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "pong") {
			return
		}
	}
	t.Fatal("never observed the expected SSE event")
}

func TestLogEvents_ReturnsUnavailableWithoutLogBus(t *testing.T) {
	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), store.NewMemory(), nil, nil)
	server := httptest.NewServer(s)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/logs/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
