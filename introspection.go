// introspection.go — read-only reflective view of the whitelist tables.
//
// Grounded on daios-ai-msg's convention (scattered across builtin_*.go
// registration helpers) of exposing a sorted, deep-copied snapshot of an
// otherwise internal registry for tooling and documentation rather than
// handing out the live map. Never mutates package state; the tables
// themselves stay process-wide and immutable after init, per spec.md §3.
package sandbox

import (
	"sort"
	"strconv"
)

// whitelistSnapshot builds a WhitelistSnapshot from the package-level
// admission tables, each field sorted for deterministic output.
func whitelistSnapshot() WhitelistSnapshot {
	snap := WhitelistSnapshot{
		Operators:       sortedKeys(allowedOperators),
		Sigils:          sortedByteKeys(allowedSigils),
		KernelGuards:    sortedFuncKeys(allowedKernelGuards),
		KernelFunctions: sortedFuncKeys(allowedKernelFunctions),
		Modules:         sortedModuleKeys(allowedModules),
	}
	return snap
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedByteKeys(m map[byte]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func sortedFuncKeys(m map[funcKey]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, formatFuncKey(k))
	}
	sort.Strings(out)
	return out
}

func sortedModuleKeys(m map[string]modulePolicy) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatFuncKey(k funcKey) string {
	return k.Name + "/" + strconv.Itoa(k.Arity)
}
