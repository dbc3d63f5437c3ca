// Package orchestrator implements the agent loop: the component that
// turns a merged channel stream into LLM calls, tool executions, sandbox
// jobs, and replies, per SPEC_FULL.md §4.I. Grounded on the teacher's
// internal/gateway.ensureRuntime (tool registration + approval wiring) and
// internal/agent.AgenticLoop (Init -> Stream -> Execute Tools -> Complete
// state machine), generalized from one LLM vendor's streaming contract to
// the single-shot llm.Provider boundary this module depends on.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/channelmgr"
	"github.com/panosAthDBX/ironclaw/internal/jobmonitor"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/metrics"
	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/netpolicy"
	"github.com/panosAthDBX/ironclaw/internal/store"
	"github.com/panosAthDBX/ironclaw/internal/tools"
	"github.com/panosAthDBX/ironclaw/internal/workerauth"
)

// Config bounds one agent turn (mirrors config.OrchestratorConfig so this
// package does not import internal/config directly).
type Config struct {
	MaxToolIterations    int
	TurnTimeout          time.Duration
	ToolFailureThreshold int
	SystemPrompt         string
	Model                string
	CallbackBaseURL      string
	JobImage             string
	JobTimeout           time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 8
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 90 * time.Second
	}
	if c.ToolFailureThreshold <= 0 {
		c.ToolFailureThreshold = 5
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	return c
}

// Orchestrator owns the agent loop. It holds no per-conversation state of
// its own beyond the active-job and pending-approval tables: conversation
// history lives entirely in store.Store.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	channels *channelmgr.Manager
	provider llm.Provider
	registry *tools.Registry
	limiter  *tools.RateLimiter
	storeDB  store.Store
	tokens   *workerauth.TokenStore
	spawner  JobSpawner

	jobs      *jobTable
	jobBuses  *jobBusRegistry
	approvals *approvalTable

	policy  netpolicy.PolicyDecider
	metrics *metrics.Metrics
}

// New wires an Orchestrator from its dependencies. provider, registry,
// limiter, storeDB, tokens, and channels must be non-nil; spawner may be
// nil if sandbox jobs are disabled, in which case sandbox-spawning tool
// calls fail with a clear in-band error instead of panicking.
func New(cfg Config, log *slog.Logger, channels *channelmgr.Manager, provider llm.Provider, registry *tools.Registry, limiter *tools.RateLimiter, storeDB store.Store, tokens *workerauth.TokenStore, spawner JobSpawner) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		log:       log,
		channels:  channels,
		provider:  provider,
		registry:  registry,
		limiter:   limiter,
		storeDB:   storeDB,
		tokens:    tokens,
		spawner:   spawner,
		jobs:      newJobTable(),
		jobBuses:  newJobBusRegistry(),
		approvals: newApprovalTable(),
		policy:    netpolicy.NewDefaultPolicyDecider(netpolicy.EmptyAllowlist(), nil),
	}
}

// SetPolicy overrides the network egress policy decider consulted by the
// worker proxy endpoint (§4.B). Defaults to a decider over an empty
// allowlist, which denies every host until a caller wires one up — an
// empty allowlist reads as "no egress configured", not "unrestricted",
// per the allowlist's own deny-when-empty rule.
func (o *Orchestrator) SetPolicy(policy netpolicy.PolicyDecider) {
	o.policy = policy
}

// SetMetrics wires a collector set that spawnJob/finishJob and
// recordToolFailure report into. Left nil, those calls are simply skipped;
// callers that do not care about /metrics do not need to construct one.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// messageKind is the classification SPEC_FULL.md §4.I.1 requires before
// any further processing.
type messageKind int

const (
	kindUserUtterance messageKind = iota
	kindApprovalResponse
	kindJobNotice
	kindHeartbeatAlert
)

func classify(msg models.IncomingMessage) messageKind {
	switch {
	case isApprovalResponse(msg):
		return kindApprovalResponse
	case msg.Channel == "job_monitor":
		return kindJobNotice
	case msg.Channel == "heartbeat":
		return kindHeartbeatAlert
	default:
		return kindUserUtterance
	}
}

// HandleIncoming is the per-message entry point fed by the merged channel
// stream (SPEC_FULL.md §4.I, steps 1-8).
func (o *Orchestrator) HandleIncoming(ctx context.Context, msg models.IncomingMessage) error {
	switch classify(msg) {
	case kindApprovalResponse:
		return o.resumeApproval(ctx, msg)
	case kindJobNotice:
		return o.handleJobNotice(ctx, msg)
	case kindHeartbeatAlert:
		// The heartbeat runner already delivers its own alert directly
		// through the channel manager; a message classified here has
		// nothing further to do but be observable in logs.
		o.log.Debug("heartbeat alert observed", "content", msg.Content)
		return nil
	default:
		ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
		return o.runTurn(ctx, msg)
	}
}

// resolveConversation implements step 2's cross-user isolation rule: a
// thread id that parses as a UUID and already exists in persistence is
// only hydrated if it belongs to the claiming user; otherwise a fresh
// conversation is created instead of exposing someone else's history.
func (o *Orchestrator) resolveConversation(ctx context.Context, msg models.IncomingMessage) (models.Conversation, error) {
	if msg.ThreadID != nil {
		if id, err := uuid.Parse(*msg.ThreadID); err == nil {
			owned, err := o.storeDB.OwnedBy(ctx, id, msg.UserID)
			if err == nil && owned {
				return o.storeDB.GetConversation(ctx, id)
			}
			if err == nil && !owned {
				o.log.Warn("refusing to hydrate conversation owned by another user",
					"conversation_id", id.String(), "claiming_user", msg.UserID)
			}
		}
	}
	return o.storeDB.GetOrCreateConversation(ctx, msg.Channel, msg.UserID, msg.ThreadID)
}

func (o *Orchestrator) runTurn(ctx context.Context, msg models.IncomingMessage) error {
	conv, err := o.resolveConversation(ctx, msg)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	if err := o.storeDB.AppendMessage(ctx, models.ConversationMessage{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        msg.Content,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if err := o.storeDB.TouchConversation(ctx, conv.ID, time.Now().UTC()); err != nil {
		o.log.Warn("touch conversation failed", "error", err)
	}

	return o.continueTurn(ctx, msg, conv)
}

// continueTurn runs (or resumes) the LLM/tool-call cycle for conv up to
// MaxToolIterations, then hands the final content to the channel manager.
// msg supplies the channel/user/thread routing for Respond; it need not
// be the message that triggered persistence (approval resumption passes a
// synthetic one).
func (o *Orchestrator) continueTurn(ctx context.Context, msg models.IncomingMessage, conv models.Conversation) error {
	for iteration := 0; iteration < o.cfg.MaxToolIterations; iteration++ {
		history, err := o.storeDB.ListMessages(ctx, conv.ID, nil, 0)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}

		resp, err := o.callLLM(ctx, o.buildRequest(history))
		if err != nil {
			return o.finalize(ctx, msg, conv, "I couldn't complete that request: "+err.Error(), true)
		}

		if len(resp.ToolCalls) == 0 {
			return o.finalize(ctx, msg, conv, resp.Content, false)
		}

		suspended, err := o.runToolCalls(ctx, msg, conv, resp.ToolCalls)
		if err != nil {
			return err
		}
		if suspended {
			// An approval is pending; the turn resumes asynchronously
			// from resumeApproval. Nothing more to do right now.
			return nil
		}
	}

	return o.finalize(ctx, msg, conv, "I wasn't able to finish this within the allotted tool-call budget.", true)
}

// callLLM applies the spec's single transient retry (§7): one immediate
// retry on an ErrTransient LLMError, no retry on ErrDeterministic.
func (o *Orchestrator) callLLM(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp, err := o.provider.Complete(ctx, req)
	if err != nil && llm.IsTransient(err) {
		resp, err = o.provider.Complete(ctx, req)
	}
	return resp, err
}

func (o *Orchestrator) buildRequest(history []models.ConversationMessage) llm.Request {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role == models.RoleToolCalls {
			role = "tool"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return llm.Request{
		Model:       o.cfg.Model,
		System:      o.cfg.SystemPrompt,
		Messages:    messages,
		Tools:       o.toolDefinitions(),
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

func (o *Orchestrator) toolDefinitions() []llm.ToolDefinition {
	names := o.registry.Names()
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return defs
}

// toolCallRecord is the persisted shape of one tool_calls message: an
// array of {name, arguments, rationale, result} entries, letting the web
// UI reconstruct what happened in one turn without a second query.
type toolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Rationale string `json:"rationale"`
	Result    string `json:"result,omitempty"`
	Suspended bool   `json:"suspended,omitempty"`
}

// runToolCalls processes every tool call the LLM requested in one round
// (SPEC_FULL.md §4.I.6). It returns suspended=true if any call is now
// waiting on human approval, in which case the turn must not continue
// until resumeApproval runs.
func (o *Orchestrator) runToolCalls(ctx context.Context, msg models.IncomingMessage, conv models.Conversation, calls []llm.ToolCall) (bool, error) {
	records := make([]toolCallRecord, 0, len(calls))
	suspended := false

	for _, tc := range calls {
		rationale := sanitizeRationale(tc.Rationale)

		if !o.limiter.Allow(tc.Name) {
			records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: "rate limited: try again shortly"})
			continue
		}

		t, ok := o.registry.Get(tc.Name)
		if !ok {
			records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: "unknown tool: " + tc.Name})
			continue
		}

		if t.RequiresApproval() {
			requestID := uuid.NewString()
			o.approvals.put(&PendingApproval{
				RequestID:      requestID,
				ToolCall:       tc,
				ConversationID: conv.ID,
				Channel:        msg.Channel,
				UserID:         msg.UserID,
				ThreadID:       msg.ThreadID,
				RequestedAt:    time.Now().UTC(),
			})
			o.channels.SendStatus(ctx, msg.Channel, models.ApprovalNeeded{
				RequestID:   requestID,
				Tool:        tc.Name,
				Description: rationale,
				Params:      decodeParams(tc.Arguments),
			}, nil)
			records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Suspended: true})
			suspended = true
			continue
		}

		if t.IsSandboxSpawning() {
			result, err := o.spawnJob(ctx, msg, conv, t, tc)
			if err != nil {
				records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: "job spawn failed: " + err.Error()})
				continue
			}
			records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: result})
			continue
		}

		result, err := o.executeTool(ctx, tc)
		if err != nil {
			records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: "tool error: " + err.Error()})
			continue
		}
		records = append(records, toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: rationale, Result: result.Content})
	}

	if err := o.persistToolCallRecords(ctx, conv.ID, records); err != nil {
		return false, err
	}
	return suspended, nil
}

func decodeParams(raw []byte) map[string]any {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil
	}
	return params
}

// executeTool validates params, runs the tool, and accounts failures
// (SPEC_FULL.md §4.I's tool-failure threshold).
func (o *Orchestrator) executeTool(ctx context.Context, tc llm.ToolCall) (tools.Result, error) {
	t, ok := o.registry.Get(tc.Name)
	if !ok {
		return tools.Result{}, fmt.Errorf("unknown tool: %s", tc.Name)
	}
	if err := o.registry.Validate(tc.Name, tc.Arguments); err != nil {
		o.recordToolFailure(ctx, tc.Name, err)
		return tools.Result{}, err
	}

	result, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		o.recordToolFailure(ctx, tc.Name, err)
		return tools.Result{}, err
	}
	if result.IsError {
		o.recordToolFailure(ctx, tc.Name, fmt.Errorf("%s", result.Content))
	}
	return result, nil
}

func (o *Orchestrator) recordToolFailure(ctx context.Context, name string, cause error) {
	if o.metrics != nil {
		o.metrics.RecordToolFailure(name)
	}
	if err := o.storeDB.RecordFailure(ctx, name, cause.Error(), time.Now().UTC()); err != nil {
		o.log.Warn("record tool failure", "tool", name, "error", err)
		return
	}
	broken, err := o.storeDB.GetBrokenTools(ctx, o.cfg.ToolFailureThreshold)
	if err != nil {
		return
	}
	for _, bt := range broken {
		if bt.Name == name {
			o.log.Warn("tool crossed failure threshold, marked broken", "tool", name, "failure_count", bt.FailureCount)
			return
		}
	}
}

func (o *Orchestrator) persistToolCallRecords(ctx context.Context, convID uuid.UUID, records []toolCallRecord) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode tool call records: %w", err)
	}
	return o.persistMessage(ctx, convID, models.RoleToolCalls, string(encoded))
}

func (o *Orchestrator) persistToolResult(ctx context.Context, convID uuid.UUID, tc llm.ToolCall, result string) error {
	record := toolCallRecord{Name: tc.Name, Arguments: string(tc.Arguments), Rationale: sanitizeRationale(tc.Rationale), Result: result}
	encoded, err := json.Marshal([]toolCallRecord{record})
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	return o.persistMessage(ctx, convID, models.RoleToolCalls, string(encoded))
}

func (o *Orchestrator) persistMessage(ctx context.Context, convID uuid.UUID, role, content string) error {
	return o.storeDB.AppendMessage(ctx, models.ConversationMessage{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	})
}

// finalize persists the assistant's closing content and hands it to the
// channel manager, satisfying the "the agent always produces a final
// assistant turn" guarantee (SPEC_FULL.md §7) even on exhaustion/failure.
func (o *Orchestrator) finalize(ctx context.Context, msg models.IncomingMessage, conv models.Conversation, content string, incomplete bool) error {
	if err := o.persistMessage(ctx, conv.ID, models.RoleAssistant, content); err != nil {
		o.log.Warn("persist assistant message failed", "error", err)
	}
	if incomplete {
		if err := o.storeDB.SetMetadata(ctx, conv.ID, "incomplete", true); err != nil {
			o.log.Warn("set incomplete metadata failed", "error", err)
		}
	}
	return o.channels.Respond(ctx, msg, models.OutgoingResponse{Content: content, ThreadID: msg.ThreadID})
}

// handleJobNotice routes a forwarded job-monitor message back to the
// conversation and channel that originally spawned the job, correlating
// via jobmonitor's Metadata["job_id"] stamp rather than parsing the
// human-readable content string.
func (o *Orchestrator) handleJobNotice(ctx context.Context, msg models.IncomingMessage) error {
	jobIDStr, ok := msg.Metadata["job_id"].(string)
	if !ok {
		o.log.Warn("job monitor message missing job_id metadata")
		return nil
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		o.log.Warn("job monitor message has malformed job_id", "job_id", jobIDStr)
		return nil
	}

	rec, ok := o.jobs.get(jobID)
	if !ok {
		o.log.Warn("job notice for unknown or already-finished job", "job_id", jobIDStr)
		return nil
	}

	synth := models.IncomingMessage{ID: uuid.New(), Channel: rec.Channel, UserID: rec.UserID, ThreadID: rec.ThreadID}
	if err := o.channels.Respond(ctx, synth, models.OutgoingResponse{Content: msg.Content, ThreadID: rec.ThreadID}); err != nil {
		o.log.Warn("job notice respond failed", "error", err)
	}

	if resultDone, _ := msg.Metadata["job_result"].(bool); resultDone {
		o.finishJob(ctx, jobID)
	}
	return nil
}

// finishJob tears down everything associated with a completed or
// cancelled job: the bearer token (denying any further worker callback),
// the job-bus subscription, and the bookkeeping record.
func (o *Orchestrator) finishJob(ctx context.Context, jobID uuid.UUID) {
	o.tokens.Revoke(jobID)
	o.jobBuses.remove(jobID)
	rec, ok := o.jobs.remove(jobID)
	if o.metrics != nil {
		o.metrics.SetJobsActive(o.jobs.len())
	}
	if ok && o.spawner != nil && rec.ContainerID != "" {
		if err := o.spawner.Stop(ctx, rec.ContainerID); err != nil {
			o.log.Warn("stop job container failed", "job_id", jobID.String(), "error", err)
		}
	}
}

// CancelJob revokes jobID's token and stops its container, denying all
// further worker callbacks immediately (SPEC_FULL.md §4.I Cancellation).
func (o *Orchestrator) CancelJob(ctx context.Context, jobID uuid.UUID) {
	o.finishJob(ctx, jobID)
}

// spawnJob implements step 6.c: mint a token, decide credential grants,
// announce JobStarted, start the container, and subscribe a job monitor.
func (o *Orchestrator) spawnJob(ctx context.Context, msg models.IncomingMessage, conv models.Conversation, t tools.Tool, tc llm.ToolCall) (string, error) {
	if o.spawner == nil {
		return "", fmt.Errorf("sandbox jobs are disabled")
	}

	jobID := uuid.New()
	token, err := o.tokens.CreateToken(jobID)
	if err != nil {
		return "", fmt.Errorf("mint job token: %w", err)
	}

	grants := o.grantsFor(t.SandboxCapabilities())
	o.tokens.StoreGrants(jobID, grants)

	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		o.tokens.Revoke(jobID)
		return "", fmt.Errorf("decode tool call arguments: %w", err)
	}

	callbackURL := fmt.Sprintf("%s/worker/%s", o.cfg.CallbackBaseURL, jobID.String())
	spec := JobSpec{
		JobID:       jobID,
		Token:       token,
		CallbackURL: callbackURL,
		Title:       t.Name(),
		Image:       o.cfg.JobImage,
		Command:     []string{"sh", "-c", args.Command},
	}
	containerID, err := o.spawner.Spawn(ctx, spec)
	if err != nil {
		o.tokens.Revoke(jobID)
		return "", err
	}

	rec := &jobRecord{
		JobID:          jobID,
		ConversationID: conv.ID,
		Channel:        msg.Channel,
		UserID:         msg.UserID,
		ThreadID:       msg.ThreadID,
		Title:          t.Name(),
		ContainerID:    containerID,
		StartedAt:      time.Now().UTC(),
	}
	rec.timer = time.AfterFunc(o.cfg.JobTimeout, func() { o.timeoutJob(jobID) })
	o.jobs.put(rec)
	if o.metrics != nil {
		o.metrics.SetJobsActive(o.jobs.len())
	}

	bus := o.jobBuses.create(jobID)
	sub := bus.Subscribe()
	injector := o.channels.InjectSender()
	go jobmonitor.Run(context.Background(), o.log, jobID, sub, injector)

	o.channels.SendStatus(ctx, msg.Channel, models.JobStarted{JobID: jobID.String(), Title: t.Name(), URL: callbackURL}, nil)

	return "job " + jobID.String() + " started", nil
}

// grantsFor intersects a tool's declared sandbox capability set with the
// secrets this process actually has available as environment variables,
// refusing to grant anything the tool did not ask for.
func (o *Orchestrator) grantsFor(capabilities []string) []models.CredentialGrant {
	grants := make([]models.CredentialGrant, 0, len(capabilities))
	for _, name := range capabilities {
		if _, ok := os.LookupEnv(name); !ok {
			continue
		}
		grants = append(grants, models.CredentialGrant{SecretName: name, EnvVar: name})
	}
	return grants
}

// timeoutJob is invoked by a job's timer when it overruns JobTimeout: it
// revokes the token, stops the container, and sends a "[Job <first 8 chars
// of id>] timed out" notice straight to the originating channel. Nothing is injected
// into the merged message stream, so the notice does not pass through
// HandleIncoming and is not persisted to the conversation.
func (o *Orchestrator) timeoutJob(jobID uuid.UUID) {
	ctx := context.Background()
	rec, ok := o.jobs.get(jobID)
	if !ok {
		return
	}
	o.finishJob(ctx, jobID)

	synth := models.NewIncomingMessage("job_monitor", "system", fmt.Sprintf("[Job %s] timed out", jobID.String()[:8]))
	synth.Metadata["job_id"] = jobID.String()
	synth.Metadata["job_result"] = true
	respMsg := models.IncomingMessage{ID: uuid.New(), Channel: rec.Channel, UserID: rec.UserID, ThreadID: rec.ThreadID}
	if err := o.channels.Respond(ctx, respMsg, models.OutgoingResponse{Content: synth.Content, ThreadID: rec.ThreadID}); err != nil {
		o.log.Warn("job timeout respond failed", "error", err)
	}
}
