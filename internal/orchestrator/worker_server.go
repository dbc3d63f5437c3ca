package orchestrator

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/panosAthDBX/ironclaw/internal/jobmonitor"
	"github.com/panosAthDBX/ironclaw/internal/llm"
	"github.com/panosAthDBX/ironclaw/internal/netpolicy"
	"github.com/panosAthDBX/ironclaw/internal/workerauth"
)

// WorkerServer exposes the sandboxed-worker callback surface
// (SPEC_FULL.md §4.I "Worker callback surface", §6 "Worker callback
// surface"): LLM completion passthrough, credential fetch-by-name, and
// job message/result submission, all mounted behind workerauth.Middleware
// so a request is only ever served for the job id its own bearer token
// names.
//
// Paths are of the form /worker/{job_uuid}/{action}; the job id segment
// is consumed by workerauth.Middleware before ExtractJobID's own split, so
// routing here dispatches on the action suffix rather than a
// net/http.ServeMux pattern (the job id is a variable segment in the
// middle of the path, not a fixed prefix a ServeMux pattern can express
// without method+wildcard routing the teacher doesn't otherwise use).
type WorkerServer struct {
	o *Orchestrator
}

// NewWorkerServer builds the http.Handler to mount at "/worker/".
func NewWorkerServer(o *Orchestrator) http.Handler {
	ws := &WorkerServer{o: o}
	return workerauth.Middleware(o.tokens)(http.HandlerFunc(ws.route))
}

func (ws *WorkerServer) route(w http.ResponseWriter, r *http.Request) {
	_, ok := workerauth.JobIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	switch action(r.URL.Path) {
	case "complete":
		ws.handleComplete(w, r)
	case "credential":
		ws.handleCredential(w, r)
	case "message":
		ws.handleMessage(w, r)
	case "result":
		ws.handleResult(w, r)
	case "proxy":
		ws.handleProxy(w, r)
	default:
		http.NotFound(w, r)
	}
}

// action returns the path segment after /worker/{uuid}/, e.g. "complete"
// for "/worker/<uuid>/complete".
func action(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

type completeRequest struct {
	System      string        `json:"system"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

func (ws *WorkerServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	resp, err := ws.o.provider.Complete(r.Context(), llm.Request{
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type credentialRequest struct {
	SecretName string `json:"secret_name"`
}

type credentialResponse struct {
	EnvVar string `json:"env_var"`
	Value  string `json:"value"`
}

// handleCredential consults get_grants(job_id) and refuses any secret
// name not explicitly granted to this job (SPEC_FULL.md §4.I). The
// secret's actual value is resolved from this process's own environment:
// a real secrets-vault integration is out of scope (SPEC_FULL.md §1), so
// the operator provisions secrets the same way they provision any other
// config, and the grant mechanism is what scopes which jobs may read
// which ones.
func (ws *WorkerServer) handleCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID, ok := workerauth.JobIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	grants := ws.o.tokens.GetGrants(jobID)
	for _, g := range grants {
		if g.SecretName == req.SecretName {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(credentialResponse{EnvVar: g.EnvVar, Value: os.Getenv(g.SecretName)})
			return
		}
	}
	http.Error(w, "secret not granted to this job", http.StatusForbidden)
}

type jobMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (ws *WorkerServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID, ok := workerauth.JobIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	var req jobMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	bus, ok := ws.o.jobBuses.get(jobID)
	if !ok {
		http.Error(w, "job not active", http.StatusNotFound)
		return
	}
	bus.Publish(jobmonitor.Event{JobID: jobID, Kind: jobmonitor.EventJobMessage, Role: req.Role, Content: req.Content})
	w.WriteHeader(http.StatusAccepted)
}

type jobResultRequest struct {
	Status string `json:"status"`
}

func (ws *WorkerServer) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID, ok := workerauth.JobIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	var req jobResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	bus, ok := ws.o.jobBuses.get(jobID)
	if !ok {
		http.Error(w, "job not active", http.StatusNotFound)
		return
	}
	bus.Publish(jobmonitor.Event{JobID: jobID, Kind: jobmonitor.EventJobResult, Status: req.Status})
	w.WriteHeader(http.StatusAccepted)
}

var proxyClient = &http.Client{Timeout: 30 * time.Second}

type proxyRequest struct {
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

type proxyResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
}

// handleProxy mediates a sandbox's outbound request through the
// orchestrator's network policy (§4.B): the job has no direct network
// access of its own and instead describes the request it wants to make,
// which this handler evaluates against o.policy before actually issuing
// it. A Deny decision never reaches the network at all. AllowWithCredentials
// injects the named secret's value, resolved from this process's own
// environment exactly like handleCredential, without ever handing the raw
// value back to the job.
func (ws *WorkerServer) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	netReq, ok := netpolicy.NewNetworkRequest(req.Method, req.URL)
	if !ok {
		http.Error(w, "invalid or unsupported url", http.StatusBadRequest)
		return
	}

	decision := ws.o.policy.Decide(r.Context(), netReq)
	if !decision.Allowed() {
		reason := "denied by network policy"
		if deny, ok := decision.(netpolicy.Deny); ok && deny.Reason != "" {
			reason = deny.Reason
		}
		http.Error(w, reason, http.StatusForbidden)
		return
	}

	target := req.URL
	outReq, err := http.NewRequestWithContext(r.Context(), netReq.Method, target, strings.NewReader(req.Body))
	if err != nil {
		http.Error(w, "could not build outbound request", http.StatusBadGateway)
		return
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			outReq.Header.Add(k, v)
		}
	}

	if creds, ok := decision.(netpolicy.AllowWithCredentials); ok {
		value := os.Getenv(creds.SecretName)
		switch creds.Location {
		case netpolicy.LocationAuthorizationBearer:
			outReq.Header.Set("Authorization", "Bearer "+value)
		case netpolicy.LocationHeader:
			outReq.Header.Set(creds.SecretName, value)
		case netpolicy.LocationQueryParam:
			q := outReq.URL.Query()
			q.Set(strings.ToLower(creds.SecretName), value)
			outReq.URL.RawQuery = q.Encode()
		}
	}

	resp, err := proxyClient.Do(outReq)
	if err != nil {
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		http.Error(w, "reading upstream response failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       string(body),
	})
}
