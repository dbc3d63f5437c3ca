package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{AuthToken: "secret-token", ProjectsDir: t.TempDir()}, channels.NewWeb(), store.NewMemory(), nil, nil)
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BearerHeaderAccepted(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_WrongBearerRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req.Header.Set("Authorization", "Bearer not-the-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestAuth_S5 is scenario S5: a query token works on an SSE path but not on
// a plain REST path.
func TestAuth_S5(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sseReq := httptest.NewRequest(http.MethodGet, "/api/chat/events?token=secret-token", nil)
	sseRec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.ServeHTTP(sseRec, sseReq.WithContext(ctx))
		close(done)
	}()
	<-ctx.Done()
	<-done
	require.Equal(t, http.StatusOK, sseRec.Code)

	historyReq := httptest.NewRequest(http.MethodGet, "/api/chat/history?token=secret-token", nil)
	historyRec := httptest.NewRecorder()
	s.ServeHTTP(historyRec, historyReq)
	require.Equal(t, http.StatusUnauthorized, historyRec.Code)
}

func TestAuth_UnconfiguredTokenAuthenticatesNothing(t *testing.T) {
	s := New(Config{ProjectsDir: t.TempDir()}, channels.NewWeb(), store.NewMemory(), nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
