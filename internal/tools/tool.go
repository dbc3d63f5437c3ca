package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is a tool's output, fed back to the LLM as a tool result message.
type Result struct {
	Content string
	IsError bool
}

// Tool is a single named capability the LLM may invoke. RequiresApproval
// and IsSandboxSpawning let the orchestrator branch per SPEC_FULL.md
// §4.I.6 without downcasting: both are declared capabilities, not type
// assertions.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (Result, error)
	RequiresApproval() bool
	// IsSandboxSpawning reports whether invoking this tool starts a
	// containerized job rather than running in-process. SandboxCapabilities
	// names the credential-grant capability set it may request.
	IsSandboxSpawning() bool
	SandboxCapabilities() []string
}

// BaseTool can be embedded by in-process tools that need neither approval
// nor sandbox spawning, matching the "most tools are plain" common case.
type BaseTool struct{}

func (BaseTool) RequiresApproval() bool       { return false }
func (BaseTool) IsSandboxSpawning() bool      { return false }
func (BaseTool) SandboxCapabilities() []string { return nil }

// Registry holds every registered tool plus its compiled JSON schema,
// validating parameters before execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register compiles t's schema and adds it to the registry. A tool whose
// schema fails to compile is a programming error and panics at startup,
// matching the teacher's fail-fast posture for malformed static schemas.
func (r *Registry) Register(t Tool) {
	compiler := jsonschema.NewCompiler()
	name := t.Name()
	if err := compiler.AddResource(name+".schema.json", bytes.NewReader(t.Schema())); err != nil {
		panic(fmt.Sprintf("tool %q: invalid schema: %v", name, err))
	}
	schema, err := compiler.Compile(name + ".schema.json")
	if err != nil {
		panic(fmt.Sprintf("tool %q: schema compile failed: %v", name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	r.schemas[name] = schema
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Validate checks params against the named tool's compiled schema,
// returning a ToolError{InvalidInput} on any violation.
func (r *Registry) Validate(name string, params json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return NewError(ErrInvalidInput, "unknown tool: "+name, nil)
	}

	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return NewError(ErrInvalidInput, "params are not valid JSON", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return NewError(ErrInvalidInput, "params failed schema validation", err)
	}
	return nil
}
