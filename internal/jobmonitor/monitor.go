// Package jobmonitor implements the job monitor: a goroutine that
// subscribes to a job's event bus and forwards a filtered subset of its
// events back into the channel manager's injection stream, breaking the
// cyclic relationship between the orchestrator (which creates jobs) and
// the jobs themselves (whose output must reach the orchestrator again).
package jobmonitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

// EventKind enumerates the job-bus event shapes the monitor understands.
type EventKind string

const (
	EventJobMessage EventKind = "job_message"
	EventJobResult  EventKind = "job_result"
	EventOther      EventKind = "other" // tool use/result, user-role messages, plain status
)

// Event is one item on a job's broadcast event bus.
type Event struct {
	JobID  uuid.UUID
	Kind   EventKind
	Role   string // only meaningful for EventJobMessage: "assistant", "user", ...
	Content string
	Status  string // only meaningful for EventJobResult
}

// Broadcast is a minimal multi-producer broadcast channel abstraction: Recv
// delivers every published event to every subscriber, and reports Lagged
// when a slow subscriber's internal buffer overflowed (events were dropped
// for it specifically), and Closed when the bus itself shut down.
type Broadcast interface {
	Recv(ctx context.Context) (ev Event, lagged int, closed bool)
}

const shortIDLen = 8

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) < shortIDLen {
		return s
	}
	return s[:shortIDLen]
}

// Run subscribes to bus for events belonging to jobID and forwards them
// into injector, following the forwarding rules in SPEC_FULL.md §4.E. It
// returns once the job's terminal JobResult has been forwarded, the bus
// closes, the injection send fails, or ctx is cancelled.
func Run(ctx context.Context, log *slog.Logger, jobID uuid.UUID, bus Broadcast, injector chan<- models.IncomingMessage) {
	if log == nil {
		log = slog.Default()
	}
	short := shortID(jobID)

	for {
		ev, lagged, closed := bus.Recv(ctx)
		if closed {
			return
		}
		if lagged > 0 {
			log.Warn("job monitor lagged", slog.String("job_id", jobID.String()), slog.Int("skipped", lagged))
			continue
		}
		if ev.JobID != jobID {
			continue
		}

		switch ev.Kind {
		case EventJobMessage:
			if ev.Role != models.RoleAssistant {
				continue
			}
			msg := models.NewIncomingMessage("job_monitor", "system",
				fmt.Sprintf("[Job %s] Claude Code: %s", short, ev.Content))
			msg.Metadata["job_id"] = jobID.String()
			if !send(ctx, injector, msg) {
				return
			}
		case EventJobResult:
			msg := models.NewIncomingMessage("job_monitor", "system",
				fmt.Sprintf("[Job %s] Container finished (status: %s)", short, ev.Status))
			msg.Metadata["job_id"] = jobID.String()
			msg.Metadata["job_result"] = true
			send(ctx, injector, msg)
			return
		default:
			continue
		}
	}
}

func send(ctx context.Context, injector chan<- models.IncomingMessage, msg models.IncomingMessage) bool {
	select {
	case injector <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
