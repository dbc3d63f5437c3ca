package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/jobmonitor"
)

// JobSpec describes a sandbox-spawning tool's one-shot container job.
// Grounded on the teacher's tools/sandbox.ExecuteParams, generalized from
// one-shot code execution to a long-running container with a bearer-token
// callback (SPEC_FULL.md §4.I.6.c).
type JobSpec struct {
	JobID       uuid.UUID
	Token       string
	CallbackURL string
	Title       string
	Image       string
	Command     []string
}

// JobSpawner starts and stops the container backing a sandbox job. The
// token is passed to Spawn and never appears in a log line or a returned
// error.
type JobSpawner interface {
	Spawn(ctx context.Context, spec JobSpec) (containerID string, err error)
	Stop(ctx context.Context, containerID string) error
}

// DockerJobSpawner runs each job as its own ephemeral container, carrying
// the job id, token, and callback URL in through environment variables
// rather than the command line (so they never show up in `docker inspect`
// process listings). Grounded on internal/sidecar's Docker client usage,
// collapsed from "one named long-lived container" to "one disposable
// container per job, no health-check polling" since job liveness is
// tracked through the job-monitor event bus instead.
type DockerJobSpawner struct {
	cli *client.Client
}

// NewDockerJobSpawner wraps cli, which may be nil if Docker was not
// detected; Spawn then fails every call with a clear error instead of
// panicking.
func NewDockerJobSpawner(cli *client.Client) *DockerJobSpawner {
	return &DockerJobSpawner{cli: cli}
}

func (d *DockerJobSpawner) Spawn(ctx context.Context, spec JobSpec) (string, error) {
	if d.cli == nil {
		return "", fmt.Errorf("docker not available: cannot spawn job %s", spec.JobID)
	}

	env := []string{
		"IRONCLAW_JOB_ID=" + spec.JobID.String(),
		"IRONCLAW_JOB_TOKEN=" + spec.Token,
		"IRONCLAW_CALLBACK_URL=" + spec.CallbackURL,
	}

	name := "ironclaw-job-" + spec.JobID.String()
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: spec.Image,
		Env:   env,
		Cmd:   spec.Command,
	}, &container.HostConfig{AutoRemove: false}, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create job container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start job container: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerJobSpawner) Stop(ctx context.Context, containerID string) error {
	if d.cli == nil || containerID == "" {
		return nil
	}
	timeout := 5
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop job container: %w", err)
	}
	return nil
}

// jobBusRegistry holds one jobmonitor.MemoryBus per active job, so the
// worker callback server can publish into the same bus the job monitor
// goroutine is subscribed to.
type jobBusRegistry struct {
	mu    sync.Mutex
	buses map[uuid.UUID]*jobmonitor.MemoryBus
}

func newJobBusRegistry() *jobBusRegistry {
	return &jobBusRegistry{buses: make(map[uuid.UUID]*jobmonitor.MemoryBus)}
}

func (r *jobBusRegistry) create(jobID uuid.UUID) *jobmonitor.MemoryBus {
	r.mu.Lock()
	defer r.mu.Unlock()
	bus := jobmonitor.NewMemoryBus()
	r.buses[jobID] = bus
	return bus
}

func (r *jobBusRegistry) get(jobID uuid.UUID) (*jobmonitor.MemoryBus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[jobID]
	return b, ok
}

func (r *jobBusRegistry) remove(jobID uuid.UUID) {
	r.mu.Lock()
	bus, ok := r.buses[jobID]
	delete(r.buses, jobID)
	r.mu.Unlock()
	if ok {
		bus.Close()
	}
}

// jobRecord is the orchestrator's in-memory bookkeeping for one active
// sandbox job, enough to route a job-monitor notice back to its
// originating conversation/channel and to cancel the job.
type jobRecord struct {
	JobID          uuid.UUID
	ConversationID uuid.UUID
	Channel        string
	UserID         string
	ThreadID       *string
	Title          string
	ContainerID    string
	StartedAt      time.Time
	timer          *time.Timer
}

type jobTable struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*jobRecord
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[uuid.UUID]*jobRecord)}
}

func (t *jobTable) put(rec *jobRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[rec.JobID] = rec
}

func (t *jobTable) get(jobID uuid.UUID) (*jobRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.jobs[jobID]
	return r, ok
}

func (t *jobTable) remove(jobID uuid.UUID) (*jobRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.jobs[jobID]
	if ok {
		if r.timer != nil {
			r.timer.Stop()
		}
		delete(t.jobs, jobID)
	}
	return r, ok
}

func (t *jobTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
