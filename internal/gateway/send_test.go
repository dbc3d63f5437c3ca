package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

func TestChatSend_InjectsIntoWebChannel(t *testing.T) {
	web := channels.NewWeb()
	stream, err := web.Start(context.Background())
	require.NoError(t, err)

	s := New(Config{AuthToken: "secret-token"}, web, store.NewMemory(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case msg := <-stream:
		require.Equal(t, "hello", msg.Content)
		require.Equal(t, "web", msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("message never reached the web channel stream")
	}
}

func TestChatSend_EmptyContentRejected(t *testing.T) {
	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), store.NewMemory(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", bytes.NewBufferString(`{"content":""}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSend_WrongMethodRejected(t *testing.T) {
	s := New(Config{AuthToken: "secret-token"}, channels.NewWeb(), store.NewMemory(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/send", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
