package llm

import (
	"context"
	"sync"
)

// Fake is a deterministic Provider used by tests and the heartbeat runner's
// own unit tests: it returns scripted responses in order, or a single
// repeating response if only one was configured, and can be told to fail.
type Fake struct {
	mu        sync.Mutex
	responses []Response
	errs      []error
	calls     []Request
	cursor    int
}

// NewFake constructs a Fake with no scripted behavior; it echoes the last
// user message back as the assistant reply until scripted otherwise.
func NewFake() *Fake { return &Fake{} }

// ScriptResponse appends a response to the reply queue.
func (f *Fake) ScriptResponse(resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	f.errs = append(f.errs, nil)
	return f
}

// ScriptError appends a failure to the reply queue.
func (f *Fake) ScriptError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, Response{})
	f.errs = append(f.errs, err)
	return f
}

func (f *Fake) Name() string { return "fake" }

// Complete returns the next scripted response/error, repeating the last
// scripted entry once the queue is exhausted. With nothing scripted, it
// echoes the last user message.
func (f *Fake) Complete(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if len(f.responses) == 0 {
		return Response{Content: lastUserContent(req)}, nil
	}

	idx := f.cursor
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	} else {
		f.cursor++
	}
	return f.responses[idx], f.errs[idx]
}

// Calls returns every request Complete has observed, for test assertions.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func lastUserContent(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

var _ Provider = (*Fake)(nil)
