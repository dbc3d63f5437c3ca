package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/channelmgr"
	"github.com/panosAthDBX/ironclaw/internal/channels"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/store"
	"github.com/panosAthDBX/ironclaw/internal/tools"
	"github.com/panosAthDBX/ironclaw/internal/workerauth"
)

// fakeSpawner scripts job spawn/stop without touching Docker.
type fakeSpawner struct {
	spawned []JobSpec
	stopped []string
}

func (f *fakeSpawner) Spawn(_ context.Context, spec JobSpec) (string, error) {
	f.spawned = append(f.spawned, spec)
	return "container-" + spec.JobID.String(), nil
}

func (f *fakeSpawner) Stop(_ context.Context, containerID string) error {
	f.stopped = append(f.stopped, containerID)
	return nil
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, spawner JobSpawner) (*Orchestrator, *channelmgr.Manager, *channels.Bench) {
	t.Helper()
	mgr := channelmgr.New(nil)
	bench := channels.NewBench()
	mgr.Add(bench)

	registry := tools.NewRegistry()
	registry.Register(tools.Echo{})
	registry.Register(tools.NewShellInSandbox([]string{"GITHUB_TOKEN"}))

	o := New(Config{CallbackBaseURL: "http://orchestrator.local", JobImage: "ironclaw/worker:latest"},
		nil, mgr, provider, registry, tools.NewRateLimiter(tools.DefaultRateLimiterConfig()),
		store.NewMemory(), workerauth.NewTokenStore(), spawner)
	return o, mgr, bench
}

func drive(ctx context.Context, t *testing.T, mgr *channelmgr.Manager, o *Orchestrator) {
	t.Helper()
	stream, err := mgr.StartAll(ctx)
	require.NoError(t, err)
	go func() {
		for msg := range stream {
			_ = o.HandleIncoming(ctx, msg)
		}
	}()
}

func TestOrchestrator_SimpleReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	provider := llm.NewFake().ScriptResponse(llm.Response{Content: "hello there"})
	o, mgr, bench := newTestOrchestrator(t, provider, nil)
	drive(ctx, t, mgr, o)

	require.NoError(t, bench.Inject(ctx, models.NewIncomingMessage("bench", channels.BenchUser, "hi")))

	require.Eventually(t, func() bool { return len(bench.Responses()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "hello there", bench.Responses()[0])
}

func TestOrchestrator_ToolCallThenReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	provider := llm.NewFake().
		ScriptResponse(llm.Response{ToolCalls: []llm.ToolCall{{ID: "1", Name: "echo", Arguments: []byte(`{"text":"ping"}`), Rationale: "checking echo"}}}).
		ScriptResponse(llm.Response{Content: "done"})
	o, mgr, bench := newTestOrchestrator(t, provider, nil)
	drive(ctx, t, mgr, o)

	require.NoError(t, bench.Inject(ctx, models.NewIncomingMessage("bench", channels.BenchUser, "echo ping please")))

	require.Eventually(t, func() bool { return len(bench.Responses()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "done", bench.Responses()[0])
}

func TestOrchestrator_ApprovalSuspendAndBenchAutoApprove(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	provider := llm.NewFake().
		ScriptResponse(llm.Response{ToolCalls: []llm.ToolCall{{ID: "1", Name: "shell_in_sandbox", Arguments: []byte(`{"command":"ls"}`), Rationale: "listing files"}}}).
		ScriptResponse(llm.Response{Content: "started the job, I'll keep you posted"})
	spawner := &fakeSpawner{}
	o, mgr, bench := newTestOrchestrator(t, provider, spawner)
	drive(ctx, t, mgr, o)

	require.NoError(t, bench.Inject(ctx, models.NewIncomingMessage("bench", channels.BenchUser, "run ls in a sandbox")))

	require.Eventually(t, func() bool { return len(bench.StatusLog()) == 1 }, time.Second, 10*time.Millisecond)
	require.Contains(t, bench.StatusLog()[0], "auto_approved")

	require.Eventually(t, func() bool { return len(spawner.spawned) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"sh", "-c", "ls"}, spawner.spawned[0].Command)
	require.Eventually(t, func() bool { return len(bench.Responses()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "started the job, I'll keep you posted", bench.Responses()[0])
}

func TestOrchestrator_JobNoticeRoutesToOriginatingConversation(t *testing.T) {
	ctx := context.Background()
	o, mgr, bench := newTestOrchestrator(t, llm.NewFake(), &fakeSpawner{})
	_ = mgr

	conv, err := o.storeDB.GetOrCreateConversation(ctx, "bench", channels.BenchUser, nil)
	require.NoError(t, err)

	jobID := uuid.New()
	o.jobs.put(&jobRecord{
		JobID:          jobID,
		ConversationID: conv.ID,
		Channel:        "bench",
		UserID:         channels.BenchUser,
	})

	notice := models.NewIncomingMessage("job_monitor", "system", "[Job abc] Claude Code: done reading the file")
	notice.Metadata["job_id"] = jobID.String()

	require.NoError(t, o.HandleIncoming(ctx, notice))
	require.Len(t, bench.Responses(), 1)
	require.Contains(t, bench.Responses()[0], "done reading the file")

	// terminal job_result revokes the token and tears down bookkeeping.
	result := models.NewIncomingMessage("job_monitor", "system", "[Job abc] Container finished (status: succeeded)")
	result.Metadata["job_id"] = jobID.String()
	result.Metadata["job_result"] = true
	require.NoError(t, o.HandleIncoming(ctx, result))

	_, stillTracked := o.jobs.get(jobID)
	require.False(t, stillTracked)
}
