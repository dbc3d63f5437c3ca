// Package sidecar manages long-lived helper containers (e.g. a headless
// browser) that tools can depend on, distinct from the per-job sandboxes in
// internal/jobmonitor/internal/orchestrator. Grounded on the teacher's
// tools/sandbox pool.go Get/Put single-flight-ish wait pattern, adapted from
// "wait for a pooled executor" to "wait for the one named container to
// become ready".
package sidecar

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// State is the sidecar lifecycle (SPEC_FULL.md §3 SidecarState). Transitions
// are monotonic within one lifecycle: NotStarted -> Starting -> Ready or
// Failed -> Stopped.
type State string

const (
	NotStarted State = "not_started"
	Starting   State = "starting"
	Ready      State = "ready"
	Failed     State = "failed"
	Stopped    State = "stopped"
)

// HealthKind selects how ensure_ready probes container readiness.
type HealthKind string

const (
	HealthNone HealthKind = "none"
	HealthHTTP HealthKind = "http"
	HealthTCP  HealthKind = "tcp"
	HealthExec HealthKind = "exec"
)

// HealthCheck describes one readiness probe. Only the fields relevant to
// Kind are read.
type HealthCheck struct {
	Kind    HealthKind
	Path    string   // HTTP: request path, e.g. "/healthz"
	Port    int      // HTTP/TCP: container port to probe
	Command []string // Exec: command run inside the container, success = exit 0
}

// PortBinding maps one container port to a host port. HostPort 0 lets Docker
// assign an ephemeral port; the resolved value is read back after start.
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string // "tcp" (default) or "udp"
}

// VolumeMount is a host-path bind mount into the container.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Config is the declarative description of one sidecar container.
type Config struct {
	Name           string
	Image          string
	Ports          []PortBinding
	Env            map[string]string
	Volumes        []VolumeMount
	HealthCheck    HealthCheck
	StartupTimeout time.Duration
	PollInterval   time.Duration
	AutoPull       bool
	KeepOnShutdown bool
	ExtraHosts     []string
	NetworkMode    string
}

// ContainerName is the derived name Docker sees: "ironclaw-sidecar-{name}".
func (c Config) ContainerName() string {
	return "ironclaw-sidecar-" + c.Name
}

// ErrorKind enumerates the SidecarError taxonomy (SPEC_FULL.md §7).
type ErrorKind string

const (
	ErrDockerNotAvailable     ErrorKind = "docker_not_available"
	ErrImagePullFailed        ErrorKind = "image_pull_failed"
	ErrContainerCreateFailed  ErrorKind = "container_creation_failed"
	ErrContainerStartFailed   ErrorKind = "container_start_failed"
	ErrHealthCheckFailed      ErrorKind = "health_check_failed"
	ErrContainerStoppedFailed ErrorKind = "container_stopped"
)

// Error is a structured sidecar failure; all kinds propagate to the caller,
// who decides whether to retry ensure_ready.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Endpoint is the externally reachable address of a sidecar's first
// configured port.
type Endpoint struct {
	Host string
	Port int
}

// Sidecar manages one long-lived helper container's lifecycle.
type Sidecar struct {
	cfg    Config
	client *client.Client

	mu          sync.Mutex
	state       State
	failReason  string
	containerID string
	bindings    []PortBinding // resolved host ports, filled in after start
	startCh     chan struct{} // non-nil while Starting; closed when resolved
	startErr    error
}

// New constructs a Sidecar bound to cli, not yet started.
func New(cfg Config, cli *client.Client) *Sidecar {
	return &Sidecar{cfg: cfg, client: cli, state: NotStarted}
}

// State reports the current lifecycle state.
func (s *Sidecar) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureReady starts the container if needed and blocks until it is Ready
// or the startup deadline expires. It is idempotent and single-flight:
// concurrent callers coalesce onto the one in-flight startup.
func (s *Sidecar) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Ready:
		s.mu.Unlock()
		return nil
	case Starting:
		ch := s.startCh
		s.mu.Unlock()
		select {
		case <-ch:
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.state == Ready {
				return nil
			}
			return s.startErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.state = Starting
	ch := make(chan struct{})
	s.startCh = ch
	s.mu.Unlock()

	err := s.start(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.startErr = err
		var sidecarErr *Error
		if e, ok := err.(*Error); ok {
			sidecarErr = e
		}
		if sidecarErr != nil {
			s.failReason = sidecarErr.Message
		} else {
			s.failReason = err.Error()
		}
	} else {
		s.state = Ready
		s.startErr = nil
	}
	close(ch)
	s.mu.Unlock()
	return err
}

func (s *Sidecar) start(ctx context.Context) error {
	deadlineCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.StartupTimeout > 0 {
		deadlineCtx, cancel = context.WithTimeout(ctx, s.cfg.StartupTimeout)
		defer cancel()
	}

	if s.client == nil {
		return newErr(ErrDockerNotAvailable, "no docker client configured", nil)
	}

	if s.cfg.AutoPull {
		if err := s.pullImage(deadlineCtx); err != nil {
			return err
		}
	}

	id, err := s.createContainer(deadlineCtx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.containerID = id
	s.mu.Unlock()

	if err := s.client.ContainerStart(deadlineCtx, id, container.StartOptions{}); err != nil {
		return newErr(ErrContainerStartFailed, "start container", err)
	}

	if err := s.resolveBindings(deadlineCtx, id); err != nil {
		return err
	}

	if err := s.waitHealthy(deadlineCtx); err != nil {
		return err
	}

	return nil
}

func (s *Sidecar) pullImage(ctx context.Context) error {
	rc, err := s.client.ImagePull(ctx, s.cfg.Image, image.PullOptions{})
	if err != nil {
		return newErr(ErrImagePullFailed, "pull image "+s.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return newErr(ErrImagePullFailed, "read pull response", err)
	}
	return nil
}

func (s *Sidecar) createContainer(ctx context.Context) (string, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range s.cfg.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		exposed[port] = struct{}{}
		hostPort := ""
		if p.HostPort != 0 {
			hostPort = fmt.Sprintf("%d", p.HostPort)
		}
		bindings[port] = append(bindings[port], nat.PortBinding{HostIP: "127.0.0.1", HostPort: hostPort})
	}

	var env []string
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}

	var binds []string
	for _, v := range s.cfg.Volumes {
		mode := "rw"
		if v.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", v.HostPath, v.ContainerPath, mode))
	}

	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		Binds:        binds,
		ExtraHosts:   s.cfg.ExtraHosts,
		NetworkMode:  container.NetworkMode(s.cfg.NetworkMode),
	}

	resp, err := s.client.ContainerCreate(ctx, &container.Config{
		Image:        s.cfg.Image,
		Env:          env,
		ExposedPorts: exposed,
	}, hostCfg, nil, nil, s.cfg.ContainerName())
	if err != nil {
		return "", newErr(ErrContainerCreateFailed, "create container "+s.cfg.ContainerName(), err)
	}
	return resp.ID, nil
}

func (s *Sidecar) resolveBindings(ctx context.Context, id string) error {
	if len(s.cfg.Ports) == 0 {
		return nil
	}
	inspect, err := s.client.ContainerInspect(ctx, id)
	if err != nil {
		return newErr(ErrContainerStartFailed, "inspect container", err)
	}

	var resolved []PortBinding
	for _, p := range s.cfg.Ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
		hostPort := p.HostPort
		if bindings, ok := inspect.NetworkSettings.Ports[port]; ok && len(bindings) > 0 {
			fmt.Sscanf(bindings[0].HostPort, "%d", &hostPort)
		}
		resolved = append(resolved, PortBinding{ContainerPort: p.ContainerPort, HostPort: hostPort, Protocol: proto})
	}

	s.mu.Lock()
	s.bindings = resolved
	s.mu.Unlock()
	return nil
}

func (s *Sidecar) waitHealthy(ctx context.Context) error {
	if s.cfg.HealthCheck.Kind == HealthNone || s.cfg.HealthCheck.Kind == "" {
		return nil
	}

	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	for {
		ok, err := s.probeOnce(ctx)
		if err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return newErr(ErrHealthCheckFailed, "health check did not pass before startup timeout", ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (s *Sidecar) probeOnce(ctx context.Context) (bool, error) {
	switch s.cfg.HealthCheck.Kind {
	case HealthHTTP:
		ep := s.endpointForPort(s.cfg.HealthCheck.Port)
		if ep == nil {
			return false, nil
		}
		url := fmt.Sprintf("http://%s:%d%s", ep.Host, ep.Port, s.cfg.HealthCheck.Path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, nil
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	case HealthTCP:
		ep := s.endpointForPort(s.cfg.HealthCheck.Port)
		if ep == nil {
			return false, nil
		}
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port), 2*time.Second)
		if err != nil {
			return false, nil
		}
		conn.Close()
		return true, nil
	case HealthExec:
		return s.probeExec(ctx)
	default:
		return true, nil
	}
}

func (s *Sidecar) probeExec(ctx context.Context) (bool, error) {
	s.mu.Lock()
	id := s.containerID
	s.mu.Unlock()
	if id == "" {
		return false, nil
	}

	execResp, err := s.client.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          s.cfg.HealthCheck.Command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return false, nil
	}

	attach, err := s.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return false, nil
	}
	defer attach.Close()
	_, _ = io.Copy(io.Discard, attach.Reader)

	inspect, err := s.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return false, nil
	}
	return !inspect.Running && inspect.ExitCode == 0, nil
}

func (s *Sidecar) endpointForPort(containerPort int) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.ContainerPort == containerPort {
			return &Endpoint{Host: "127.0.0.1", Port: b.HostPort}
		}
	}
	return nil
}

// Endpoint returns the first configured port's externally reachable
// address, or nil if no ports are configured.
func (s *Sidecar) Endpoint() *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bindings) == 0 {
		return nil
	}
	b := s.bindings[0]
	return &Endpoint{Host: "127.0.0.1", Port: b.HostPort}
}

// Shutdown stops and removes the container unless KeepOnShutdown is set.
func (s *Sidecar) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	id := s.containerID
	keep := s.cfg.KeepOnShutdown
	s.mu.Unlock()

	if id == "" {
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		return nil
	}

	if keep {
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		return nil
	}

	timeout := 10
	if err := s.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return newErr(ErrContainerStoppedFailed, "stop container", err)
	}
	if err := s.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return newErr(ErrContainerStoppedFailed, "remove container", err)
	}

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	return nil
}
