package jobmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// TestJobMonitor_S6 is scenario S6: the monitor forwards exactly two
// messages and terminates on the job's JobResult; a subsequent JobMessage
// for the same job is not forwarded.
func TestJobMonitor_S6(t *testing.T) {
	bus := NewMemoryBus()
	jobID := uuid.New()
	injector := make(chan models.IncomingMessage, 8)

	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		Run(ctx, nil, jobID, bus.Subscribe(), injector)
		close(done)
	}()

	bus.Publish(Event{JobID: jobID, Kind: EventJobMessage, Role: "assistant", Content: "found bug"})
	bus.Publish(Event{JobID: jobID, Kind: EventJobResult, Status: "completed"})

	var got []models.IncomingMessage
	for i := 0; i < 2; i++ {
		select {
		case msg := <-injector:
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for forwarded message")
		}
	}
	require.Len(t, got, 2)
	require.Contains(t, got[0].Content, "found bug")
	require.Contains(t, got[1].Content, "status: completed")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not terminate after JobResult")
	}

	// A subsequent JobMessage for the same job must not be forwarded: the
	// monitor goroutine has already exited.
	bus.Publish(Event{JobID: jobID, Kind: EventJobMessage, Role: "assistant", Content: "late message"})
	select {
	case msg := <-injector:
		t.Fatalf("unexpected forwarded message after terminal result: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestJobMonitor_Invariant9 covers invariant 9: other-job events, tool
// events, and non-assistant messages produce no forwarded message.
func TestJobMonitor_Invariant9(t *testing.T) {
	bus := NewMemoryBus()
	jobID := uuid.New()
	otherJob := uuid.New()
	injector := make(chan models.IncomingMessage, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		Run(ctx, nil, jobID, bus.Subscribe(), injector)
		close(done)
	}()

	bus.Publish(Event{JobID: otherJob, Kind: EventJobMessage, Role: "assistant", Content: "not ours"})
	bus.Publish(Event{JobID: jobID, Kind: EventOther, Content: "tool use"})
	bus.Publish(Event{JobID: jobID, Kind: EventJobMessage, Role: "user", Content: "user turn"})
	bus.Publish(Event{JobID: jobID, Kind: EventJobResult, Status: "done"})

	select {
	case msg := <-injector:
		require.Contains(t, msg.Content, "status: done")
	case <-time.After(time.Second):
		t.Fatal("expected exactly the terminal message")
	}
	select {
	case msg := <-injector:
		t.Fatalf("unexpected extra message: %+v", msg)
	default:
	}

	<-done
}
