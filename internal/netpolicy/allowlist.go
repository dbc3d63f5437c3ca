// Package netpolicy implements the domain allowlist and network policy
// decider that gate every outgoing network request a sandboxed job makes.
package netpolicy

import (
	"net/url"
	"strings"
)

// DomainPattern is either an exact host or a "*.base" wildcard. The
// wildcard also matches the base domain itself. Matching is
// case-insensitive and operates on the host only.
type DomainPattern struct {
	raw        string
	isWildcard bool
	baseDomain string
}

// NewDomainPattern parses a pattern string.
func NewDomainPattern(pattern string) DomainPattern {
	isWildcard := strings.HasPrefix(pattern, "*.")
	base := pattern
	if isWildcard {
		base = pattern[2:]
	}
	return DomainPattern{
		raw:        pattern,
		isWildcard: isWildcard,
		baseDomain: strings.ToLower(base),
	}
}

// Matches reports whether host satisfies this pattern.
func (p DomainPattern) Matches(host string) bool {
	hostLower := strings.ToLower(host)
	if p.isWildcard {
		return hostLower == p.baseDomain || strings.HasSuffix(hostLower, "."+p.baseDomain)
	}
	return hostLower == p.baseDomain
}

// String returns the original pattern text.
func (p DomainPattern) String() string { return p.raw }

// DomainAllowlist validates a host against an ordered list of patterns.
type DomainAllowlist struct {
	patterns []DomainPattern
}

// NewDomainAllowlist builds an allowlist from pattern strings.
func NewDomainAllowlist(domains []string) *DomainAllowlist {
	patterns := make([]DomainPattern, 0, len(domains))
	for _, d := range domains {
		patterns = append(patterns, NewDomainPattern(d))
	}
	return &DomainAllowlist{patterns: patterns}
}

// EmptyAllowlist returns an allowlist that denies everything.
func EmptyAllowlist() *DomainAllowlist { return &DomainAllowlist{} }

// Add appends a pattern to the allowlist.
func (a *DomainAllowlist) Add(pattern string) {
	a.patterns = append(a.patterns, NewDomainPattern(pattern))
}

// IsAllowed returns true and an empty reason on the first matching pattern,
// or false and a denial reason. An empty allowlist always denies.
func (a *DomainAllowlist) IsAllowed(host string) (bool, string) {
	if len(a.patterns) == 0 {
		return false, "empty allowlist"
	}
	for _, p := range a.patterns {
		if p.Matches(host) {
			return true, ""
		}
	}
	names := make([]string, len(a.patterns))
	for i, p := range a.patterns {
		names[i] = p.String()
	}
	return false, "host '" + host + "' not in allowlist: [" + strings.Join(names, ", ") + "]"
}

// Len reports the number of patterns in the allowlist.
func (a *DomainAllowlist) Len() int { return len(a.patterns) }

// ExtractHost parses rawURL and returns the lower-cased host with userinfo,
// port, and IPv6 brackets stripped. Only http/https schemes are accepted;
// anything else (including unparseable input) yields ("", false).
func ExtractHost(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := u.Hostname()
	if host == "" {
		return "", false
	}
	return strings.ToLower(host), true
}
