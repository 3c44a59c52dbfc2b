package sandbox

import (
	"bytes"
	"strings"
	"testing"

	"github.com/daios-ai/sandeval/sandboxcfg"
)

func TestPrecheck_CodeTooLarge(t *testing.T) {
	limits := sandboxcfg.Default()
	limits.MaxSourceBytes = 10
	err := precheck([]byte("defmodule TooLong do end"), limits)
	wantErrKind(t, err, KindPrecheck, "Code size exceeds maximum limit")
}

func TestPrecheck_SuspiciousIdentifierCallPattern(t *testing.T) {
	limits := sandboxcfg.Default()
	limits.IdentifierCallThreshold = 2
	var buf bytes.Buffer
	for i := 0; i < 5; i++ {
		buf.WriteString("x1()\n")
	}
	err := precheck(buf.Bytes(), limits)
	wantErrKind(t, err, KindPrecheck, "Suspicious code patterns detected")
}

func TestPrecheck_FooHeuristic(t *testing.T) {
	limits := sandboxcfg.Default()
	limits.FooHeuristicMinLength = 5
	code := []byte(strings.Repeat("a", 10) + "foo")
	err := precheck(code, limits)
	wantErrKind(t, err, KindPrecheck, "Potential atom exhaustion attack detected")
}

func TestPrecheck_FooHeuristicSparesShortSource(t *testing.T) {
	limits := sandboxcfg.Default()
	limits.FooHeuristicMinLength = 100
	err := precheck([]byte("foo"), limits)
	wantOk(t, err)
}

func TestPrecheck_CleanSourcePasses(t *testing.T) {
	err := precheck([]byte(calculatorSrc), sandboxcfg.Default())
	wantOk(t, err)
}

func TestPrecheck_OrderedRulesFirstMatchWins(t *testing.T) {
	// A source that is both too large AND contains "foo" past the
	// foo-heuristic threshold should report the size violation, since
	// precheck applies its rules in order and returns on the first hit.
	limits := sandboxcfg.Default()
	limits.MaxSourceBytes = 5
	limits.FooHeuristicMinLength = 1
	err := precheck([]byte("foofoofoofoo"), limits)
	wantErrKind(t, err, KindPrecheck, "Code size exceeds maximum limit")
}
