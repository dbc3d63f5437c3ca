package orchestrator

import "regexp"

// DefaultRationale replaces any tool-call rationale the safety layer
// rejects, so a blocked rationale is never silently dropped nor leaked
// (SPEC_FULL.md §4.I.6.d).
const DefaultRationale = "rationale withheld by safety layer"

// maxRationaleLen bounds how much free text the LLM may attach to a tool
// call before the safety layer refuses it outright.
const maxRationaleLen = 500

// controlChars matches the general control range \x00-\x1f except tab,
// newline and carriage return, which it lets through: a rationale is
// display text, not a command, but the other control characters in it are
// never legitimate and are cheap to smuggle a prompt-injection payload in.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// sanitizeRationale validates a tool call's free-text rationale and
// substitutes DefaultRationale on rejection. Grounded on the teacher's
// internal/exec.SanitizeExecutableValue: reject control characters and
// excessive length rather than attempt to repair the input.
func sanitizeRationale(rationale string) string {
	if rationale == "" {
		return DefaultRationale
	}
	if len(rationale) > maxRationaleLen {
		return DefaultRationale
	}
	if controlChars.MatchString(rationale) {
		return DefaultRationale
	}
	return rationale
}
