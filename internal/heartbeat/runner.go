// Package heartbeat implements the periodic checklist runner (SPEC_FULL.md
// §4.J): on an interval, it asks the LLM provider whether anything in the
// workspace checklist needs attention, staying silent on HEARTBEAT_OK and
// broadcasting an alert otherwise. Grounded on the teacher's
// internal/agents/heartbeat package's HEARTBEAT_OK token and missed-count
// classification, adapted from per-agent liveness tracking to a single
// workspace-wide checklist run.
package heartbeat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/models"
)

// Token is the exact marker the heartbeat prompt asks the model to reply
// when nothing needs attention.
const Token = "HEARTBEAT_OK"

// DefaultPrompt instructs the model to stay silent unless something in the
// checklist needs a human's attention.
const DefaultPrompt = "Read the checklist below. If nothing needs attention, reply with exactly \"" + Token + "\" and nothing else. Otherwise, reply with a short summary of what needs attention."

// Result classifies the outcome of one tick.
type Result string

const (
	Skipped        Result = "skipped"
	Ok             Result = "ok"
	NeedsAttention Result = "needs_attention"
)

// Broadcaster is the subset of *channelmgr.Manager the runner depends on,
// kept as an interface so tests can substitute a fake.
type Broadcaster interface {
	Broadcast(ctx context.Context, channelName, userID string, resp models.OutgoingResponse) error
}

// Config configures one runner instance (SPEC_FULL.md §4.J).
type Config struct {
	Enabled            bool
	Interval           time.Duration
	ConsecutiveFailMax int
	NotifyChannel      string
	NotifyUser         string
}

// Runner ticks on Config.Interval. The first tick comes one full interval
// after Run starts, so nothing fires immediately at startup.
type Runner struct {
	cfg       Config
	provider  llm.Provider
	checklist *ChecklistLoader
	notify    Broadcaster
	logger    *slog.Logger

	mu              sync.Mutex
	consecutiveFail int
	stopped         bool
	stopCh          chan struct{}
	doneCh          chan struct{}
}

// NewRunner constructs a Runner. provider and notify must be non-nil;
// checklist may be nil only if cfg.Enabled is false.
func NewRunner(cfg Config, provider llm.Provider, checklist *ChecklistLoader, notify Broadcaster, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		provider:  provider,
		checklist: checklist,
		notify:    notify,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run blocks, ticking at cfg.Interval, until ctx is cancelled or Stop is
// called. If cfg.Enabled is false, Run returns immediately.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.doneCh)

	if !r.cfg.Enabled {
		return
	}

	interval := r.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			_, terminate := r.tick(ctx)
			if terminate {
				return
			}
		}
	}
}

// Stop requests the run loop exit and waits for it to do so.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()
	<-r.doneCh
}

// tick runs one heartbeat cycle, classifying its outcome as a Result, and
// reports whether the runner should terminate (consecutive failure limit
// reached).
func (r *Runner) tick(ctx context.Context) (Result, bool) {
	content := ""
	if r.checklist != nil {
		content = strings.TrimSpace(r.checklist.Current())
	}
	if content == "" {
		r.logger.Debug("heartbeat tick skipped, no checklist content")
		return Skipped, false
	}

	req := llm.Request{
		System:      DefaultPrompt,
		Messages:    []llm.Message{{Role: "user", Content: content}},
		MaxTokens:   1024,
		Temperature: 0,
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return "", r.recordFailure(err)
	}
	r.resetFailures()

	if isOk(resp.Content) {
		r.logger.Debug("heartbeat ok")
		return Ok, false
	}

	r.logger.Info("heartbeat needs attention", "summary", resp.Content)
	r.alert(ctx, resp.Content)
	return NeedsAttention, false
}

func isOk(content string) bool {
	return strings.Contains(content, Token)
}

func (r *Runner) recordFailure(err error) bool {
	r.mu.Lock()
	r.consecutiveFail++
	count := r.consecutiveFail
	r.mu.Unlock()

	r.logger.Warn("heartbeat LLM call failed", "error", err, "consecutive_failures", count)

	max := r.cfg.ConsecutiveFailMax
	if max <= 0 {
		max = 5
	}
	if count >= max {
		r.logger.Error("heartbeat runner terminating after repeated failures", "consecutive_failures", count)
		return true
	}
	return false
}

func (r *Runner) resetFailures() {
	r.mu.Lock()
	r.consecutiveFail = 0
	r.mu.Unlock()
}

func (r *Runner) alert(ctx context.Context, summary string) {
	if r.notify == nil || r.cfg.NotifyChannel == "" {
		return
	}
	resp := models.OutgoingResponse{Content: "Heartbeat Alert: " + summary}
	if err := r.notify.Broadcast(ctx, r.cfg.NotifyChannel, r.cfg.NotifyUser, resp); err != nil {
		r.logger.Warn("heartbeat alert broadcast failed", "error", err)
	}
}
