package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Echo is a trivial in-process tool used by tests and the bench channel's
// scripted turns: it reflects its input straight back.
type Echo struct{ BaseTool }

func (Echo) Name() string        { return "echo" }
func (Echo) Description() string { return "Echoes the given text back unchanged." }
func (Echo) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`)
}

func (Echo) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return Result{}, NewError(ErrInvalidInput, "bad params", err)
	}
	return Result{Content: in.Text}, nil
}

// WebSearch is a stub standing in for a real search backend (out of scope
// per SPEC_FULL.md §1); it always returns a fixed "no results" body so the
// orchestrator's tool-call plumbing has a second in-process tool to
// exercise beyond Echo.
type WebSearch struct{ BaseTool }

func (WebSearch) Name() string        { return "web_search" }
func (WebSearch) Description() string { return "Searches the web for the given query." }
func (WebSearch) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"query": {"type": "string"}},
		"required": ["query"]
	}`)
}

func (WebSearch) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return Result{}, NewError(ErrInvalidInput, "bad params", err)
	}
	return Result{Content: fmt.Sprintf("no results for %q (web search is a stub)", in.Query)}, nil
}

// ShellInSandbox is the minimal sandbox-spawning tool: it never runs
// in-process, requires operator approval, and declares the credential
// capabilities a spawned job may request. The orchestrator recognizes it
// via IsSandboxSpawning rather than a name comparison, matching the
// no-downcasing design constraint.
type ShellInSandbox struct {
	BaseTool
	Title        string
	Capabilities []string
}

// NewShellInSandbox constructs the sandbox-spawning shell tool with the
// given declared credential capability set (intersected against available
// secrets by the orchestrator before granting, per SPEC_FULL.md §4.I.6.c).
func NewShellInSandbox(capabilities []string) ShellInSandbox {
	return ShellInSandbox{Title: "Run shell command in sandbox", Capabilities: capabilities}
}

func (ShellInSandbox) Name() string        { return "shell_in_sandbox" }
func (ShellInSandbox) Description() string { return "Runs a shell command inside an isolated container." }
func (ShellInSandbox) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`)
}

func (t ShellInSandbox) RequiresApproval() bool        { return true }
func (t ShellInSandbox) IsSandboxSpawning() bool        { return true }
func (t ShellInSandbox) SandboxCapabilities() []string { return t.Capabilities }

// Execute is never called directly by the orchestrator for a
// sandbox-spawning tool (job creation replaces in-process execution), but
// is implemented to satisfy the Tool interface and for direct unit tests of
// the tool's parameter validation.
func (ShellInSandbox) Execute(_ context.Context, params json.RawMessage) (Result, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return Result{}, NewError(ErrInvalidInput, "bad params", err)
	}
	return Result{}, NewError(ErrTransport, "shell_in_sandbox must be executed via job spawn, not in-process", nil)
}

var (
	_ Tool = Echo{}
	_ Tool = WebSearch{}
	_ Tool = ShellInSandbox{}
)
