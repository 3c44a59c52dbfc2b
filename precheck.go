// precheck.go — L: lexical pre-filter.
//
// Cheap, regexp/byte-length textual checks applied before the source is
// ever tokenized, bounding parser cost and host symbol-table growth.
// Grounded on daios-ai-msg's practice of guarding expensive work behind
// size/shape checks before parsing (see lexer.go's MAX_SOURCE comments);
// the three rules themselves are spec.md §4.1 verbatim, including the
// oddly specific `"foo"` heuristic spec.md §9 flags as possibly anecdotal.
package sandbox

import (
	"regexp"

	"github.com/daios-ai/sandeval/sandboxcfg"
)

// identifierCallPattern matches `\w+\d+()`: an identifier ending in digits
// immediately followed by a zero-argument call. spec.md §4.1 rule 2 uses
// this as a cheap proxy for identifier-table exhaustion attacks (code that
// generates thousands of distinct zero-arity call sites to force host
// symbol-table growth).
var identifierCallPattern = regexp.MustCompile(`\w+\d+\(\)`)

// precheck applies the three lexical pre-filter rules in order, first
// match wins, exactly as spec.md §4.1 specifies.
func precheck(code []byte, limits sandboxcfg.Limits) error {
	if len(code) > limits.MaxSourceBytes {
		return errCodeTooLarge()
	}
	if count := len(identifierCallPattern.FindAllIndex(code, -1)); count > limits.IdentifierCallThreshold {
		return errSuspiciousPatterns()
	}
	if suspiciousFooHeuristic(code, limits.FooHeuristicMinLength) {
		return errAtomExhaustion()
	}
	return nil
}

// suspiciousFooHeuristic reproduces spec.md §4.1 rule 3 verbatim: source
// containing the literal substring "foo" AND longer than the configured
// threshold is rejected as a "potential atom exhaustion attack". spec.md
// §9 flags this as "oddly specific" and "may be a debugging artifact
// rather than a deliberate rule" — kept isolated in its own function, with
// this comment, so a future maintainer can find and remove it without
// re-deriving the rule from the rest of the validator.
func suspiciousFooHeuristic(code []byte, minLength int) bool {
	return len(code) > minLength && containsFoo(code)
}

func containsFoo(code []byte) bool {
	const needle = "foo"
	if len(code) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(code); i++ {
		if code[i] == 'f' && code[i+1] == 'o' && code[i+2] == 'o' {
			return true
		}
	}
	return false
}
