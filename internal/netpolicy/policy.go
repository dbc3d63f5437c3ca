package netpolicy

import (
	"context"
	"strings"
)

// CredentialLocation describes where a policy decider should inject an
// outbound credential.
type CredentialLocation string

const (
	LocationAuthorizationBearer CredentialLocation = "authorization_bearer"
	LocationHeader              CredentialLocation = "header"
	LocationQueryParam          CredentialLocation = "query_param"
)

// CredentialMapping binds a secret to the hosts it may be injected into.
type CredentialMapping struct {
	SecretName   string
	Location     CredentialLocation
	HostPatterns []string
}

// NetworkRequest is a single outgoing request a sandbox wants to make.
type NetworkRequest struct {
	Method string
	URL    string
	Host   string
	Path   string
}

// NewNetworkRequest extracts host/path from rawURL. It returns false if the
// URL is not a valid http/https URL.
func NewNetworkRequest(method, rawURL string) (NetworkRequest, bool) {
	host, ok := ExtractHost(rawURL)
	if !ok {
		return NetworkRequest{}, false
	}
	return NetworkRequest{
		Method: strings.ToUpper(method),
		URL:    rawURL,
		Host:   host,
		Path:   extractPath(rawURL),
	}, true
}

func extractPath(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return "/"
	}
	rest := rawURL[idx+3:]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		return rest[slash:]
	}
	return "/"
}

// PolicyDecision is the outcome of evaluating a NetworkRequest.
type PolicyDecision interface {
	policyDecision()
	Allowed() bool
}

type Allow struct{}

func (Allow) policyDecision() {}
func (Allow) Allowed() bool   { return true }

type AllowWithCredentials struct {
	SecretName string
	Location   CredentialLocation
}

func (AllowWithCredentials) policyDecision() {}
func (AllowWithCredentials) Allowed() bool   { return true }

type Deny struct{ Reason string }

func (Deny) policyDecision() {}
func (Deny) Allowed() bool   { return false }

// PolicyDecider evaluates a NetworkRequest and returns a decision.
type PolicyDecider interface {
	Decide(ctx context.Context, req NetworkRequest) PolicyDecision
}

// DefaultPolicyDecider checks the allowlist first; only on a pass does it
// consult credential mappings. This order resolves the spec's open
// question on allowlist/credential precedence (see SPEC_FULL.md §9).
type DefaultPolicyDecider struct {
	allowlist   *DomainAllowlist
	credentials []CredentialMapping
}

// NewDefaultPolicyDecider constructs a decider over the given allowlist and
// credential mappings.
func NewDefaultPolicyDecider(allowlist *DomainAllowlist, credentials []CredentialMapping) *DefaultPolicyDecider {
	return &DefaultPolicyDecider{allowlist: allowlist, credentials: credentials}
}

func (d *DefaultPolicyDecider) findCredential(host string) *CredentialMapping {
	hostLower := strings.ToLower(host)
	for i := range d.credentials {
		for _, pattern := range d.credentials[i].HostPatterns {
			if hostMatchesPattern(hostLower, pattern) {
				return &d.credentials[i]
			}
		}
	}
	return nil
}

func (d *DefaultPolicyDecider) Decide(_ context.Context, req NetworkRequest) PolicyDecision {
	allowed, reason := d.allowlist.IsAllowed(req.Host)
	if !allowed {
		return Deny{Reason: reason}
	}
	if mapping := d.findCredential(req.Host); mapping != nil {
		return AllowWithCredentials{SecretName: mapping.SecretName, Location: mapping.Location}
	}
	return Allow{}
}

// hostMatchesPattern supports "*.example.com" wildcards for credential
// mapping lookup. Unlike DomainPattern.Matches, the wildcard form here does
// NOT match the bare base domain — only a strict subdomain of it — mirroring
// the original credential-matching semantics exactly.
func hostMatchesPattern(host, pattern string) bool {
	patternLower := strings.ToLower(pattern)
	if patternLower == host {
		return true
	}
	suffix, isWildcard := strings.CutPrefix(patternLower, "*.")
	if !isWildcard {
		return false
	}
	if !strings.HasSuffix(host, suffix) || len(host) <= len(suffix) {
		return false
	}
	prefix := host[:len(host)-len(suffix)]
	return strings.HasSuffix(prefix, ".") || prefix == ""
}

// AllowAllDecider allows every request. Used for unconstrained access.
type AllowAllDecider struct{}

func (AllowAllDecider) Decide(context.Context, NetworkRequest) PolicyDecision { return Allow{} }

// DenyAllDecider denies every request with a fixed reason.
type DenyAllDecider struct{ Reason string }

func (d DenyAllDecider) Decide(context.Context, NetworkRequest) PolicyDecision {
	return Deny{Reason: d.Reason}
}
