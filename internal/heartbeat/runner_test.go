package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/models"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []models.OutgoingResponse
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, _, _ string, resp models.OutgoingResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, resp)
	return nil
}

func writeChecklist(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunner_Tick_OkIsSilent(t *testing.T) {
	path := writeChecklist(t, "check the inbox")
	loader := NewChecklistLoader(path)
	defer loader.Close()

	provider := llm.NewFake().ScriptResponse(llm.Response{Content: Token})
	notify := &fakeBroadcaster{}
	r := NewRunner(Config{Enabled: true, NotifyChannel: "discord"}, provider, loader, notify, nil)

	result, terminate := r.tick(context.Background())
	require.Equal(t, Ok, result)
	require.False(t, terminate)
	require.Empty(t, notify.calls)
	require.Equal(t, 0, r.consecutiveFail)
}

func TestRunner_Tick_NeedsAttentionBroadcasts(t *testing.T) {
	path := writeChecklist(t, "check the inbox")
	loader := NewChecklistLoader(path)
	defer loader.Close()

	provider := llm.NewFake().ScriptResponse(llm.Response{Content: "Inbox has 3 new items"})
	notify := &fakeBroadcaster{}
	r := NewRunner(Config{Enabled: true, NotifyChannel: "discord"}, provider, loader, notify, nil)

	result, terminate := r.tick(context.Background())
	require.Equal(t, NeedsAttention, result)
	require.False(t, terminate)
	require.Len(t, notify.calls, 1)
	require.Contains(t, notify.calls[0].Content, "Heartbeat Alert")
	require.Contains(t, notify.calls[0].Content, "Inbox has 3 new items")
}

func TestRunner_Tick_EmptyChecklistSkips(t *testing.T) {
	path := writeChecklist(t, "")
	loader := NewChecklistLoader(path)
	defer loader.Close()

	provider := llm.NewFake()
	notify := &fakeBroadcaster{}
	r := NewRunner(Config{Enabled: true}, provider, loader, notify, nil)

	result, terminate := r.tick(context.Background())
	require.Equal(t, Skipped, result)
	require.False(t, terminate)
	require.Empty(t, provider.Calls())
	require.Empty(t, notify.calls)
}

func TestRunner_Tick_FailuresTerminateAtMax(t *testing.T) {
	path := writeChecklist(t, "check the inbox")
	loader := NewChecklistLoader(path)
	defer loader.Close()

	provider := llm.NewFake().ScriptError(errBoom).ScriptError(errBoom)
	notify := &fakeBroadcaster{}
	r := NewRunner(Config{Enabled: true, ConsecutiveFailMax: 2}, provider, loader, notify, nil)

	_, terminate := r.tick(context.Background())
	require.False(t, terminate)
	_, terminate = r.tick(context.Background())
	require.True(t, terminate)
}

var errBoom = &llm.Error{Kind: llm.ErrTransient, Message: "boom"}
