// Package sandboxcfg loads the lexical pre-filter's tunable resource
// limits from an optional YAML document.
//
// The whitelist tables themselves (spec.md §3) are a closed, process-wide
// set and are never loaded from configuration — only the cheap numeric
// thresholds the lexical pre-filter (L) checks before parsing are
// caller-tunable. Grounded on davidkellis-able/interpreter10-go's
// pkg/driver/manifest.go, which parses a project's package.yml via
// gopkg.in/yaml.v3 into a typed Manifest with documented defaults; this
// file is the same shape, scaled down to three fields.
package sandboxcfg

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Default limit values, matching spec.md §4.1.
const (
	DefaultMaxSourceBytes          = 100000
	DefaultIdentifierCallThreshold = 1000
	DefaultFooHeuristicMinLength   = 10000
)

// Limits bounds the lexical pre-filter's resource checks (spec.md §4.1).
// The zero value is not valid; use Default() or LoadLimits.
type Limits struct {
	// MaxSourceBytes rejects source larger than this many bytes.
	MaxSourceBytes int `yaml:"max_source_bytes"`
	// IdentifierCallThreshold is the maximum number of `\w+\d+()` call
	// sites tolerated before the identifier-table-exhaustion heuristic
	// rejects the source.
	IdentifierCallThreshold int `yaml:"identifier_call_threshold"`
	// FooHeuristicMinLength is the character-length threshold paired with
	// the `"foo"` substring heuristic (spec.md §4.1 rule 3; see DESIGN.md
	// for why this oddly specific rule is kept).
	FooHeuristicMinLength int `yaml:"foo_heuristic_min_length"`
}

// Default returns the sandbox's built-in default limits.
func Default() Limits {
	return Limits{
		MaxSourceBytes:          DefaultMaxSourceBytes,
		IdentifierCallThreshold: DefaultIdentifierCallThreshold,
		FooHeuristicMinLength:   DefaultFooHeuristicMinLength,
	}
}

// LoadLimits parses a YAML document into a Limits override, starting from
// Default() so a partial document only overrides the fields it sets.
func LoadLimits(r io.Reader) (Limits, error) {
	lim := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&lim); err != nil {
		if err == io.EOF {
			return lim, nil
		}
		return Limits{}, fmt.Errorf("sandboxcfg: parse limits: %w", err)
	}
	if lim.MaxSourceBytes <= 0 {
		return Limits{}, fmt.Errorf("sandboxcfg: max_source_bytes must be positive, got %d", lim.MaxSourceBytes)
	}
	if lim.IdentifierCallThreshold <= 0 {
		return Limits{}, fmt.Errorf("sandboxcfg: identifier_call_threshold must be positive, got %d", lim.IdentifierCallThreshold)
	}
	if lim.FooHeuristicMinLength <= 0 {
		return Limits{}, fmt.Errorf("sandboxcfg: foo_heuristic_min_length must be positive, got %d", lim.FooHeuristicMinLength)
	}
	return lim, nil
}
