// whitelist.go — the process-wide, immutable admission tables of spec.md
// §3.
//
// Grounded on daios-ai-msg/builtin_core.go's registerCoreBuiltins: a flat
// Go-literal registration table built once and never mutated, keyed by
// name (there, a *Builtin registry; here, a set/policy table). The
// whitelist here is deliberately NOT an init()-populated map built from a
// loop over reflection or config — spec.md §3 calls these tables
// "process-wide, immutable after initialization", and a literal Go map
// value is the simplest thing that is true of.
package sandbox

// ALLOWED_OPERATORS is spec.md §3's operator whitelist, verbatim.
var allowedOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"==": true, "!=": true, "===": true, "!==": true,
	">": true, ">=": true, "<": true, "<=": true,
	"&&": true, "||": true, "and": true, "or": true, "not": true,
	"<>": true, "++": true, "|>": true, "|": true, ".": true,
	"{}": true, "<<>>": true, "::": true, "when": true, "->": true,
	"fn": true, "__block__": true,
	// Unary forms share their binary token's entry in this table; "-" and
	// "not" above also admit the unary UnaryExpression case (see
	// validator.go).
	"^": true, "!": true,
}

// funcKey is a (name, arity) pair — the unit the name/arity matcher and
// whitelist validator both resolve against.
type funcKey struct {
	Name  string
	Arity int
}

// ALLOWED_KERNEL_GUARDS: identifier/arity pairs usable inside `when`
// guards. spec.md §3 leaves the exact member list to the implementer
// ("e.g. abs/1, to_string/1, length/1, …"); this is the closed set chosen
// for this module, matching common BEAM guard-safe functions.
var allowedKernelGuards = map[funcKey]bool{
	{"is_atom", 1}: true, {"is_binary", 1}: true, {"is_boolean", 1}: true,
	{"is_float", 1}: true, {"is_integer", 1}: true, {"is_list", 1}: true,
	{"is_map", 1}: true, {"is_nil", 1}: true, {"is_number", 1}: true,
	{"is_tuple", 1}: true, {"is_function", 1}: true, {"is_function", 2}: true,
	{"abs", 1}: true, {"length", 1}: true, {"hd", 1}: true, {"tl", 1}: true,
	{"elem", 2}: true, {"tuple_size", 1}: true, {"map_size", 1}: true,
	{"node", 0}: true,
}

// ALLOWED_KERNEL_FUNCTIONS: identifier/arity pairs callable as ordinary
// (non-guard) local calls, per spec.md §3's example row.
var allowedKernelFunctions = map[funcKey]bool{
	{"abs", 1}: true, {"to_string", 1}: true, {"length", 1}: true,
	{"hd", 1}: true, {"tl", 1}: true, {"elem", 2}: true,
	{"tuple_size", 1}: true, {"map_size", 1}: true,
	{"round", 1}: true, {"trunc", 1}: true, {"floor", 1}: true, {"ceil", 1}: true,
	{"max", 2}: true, {"min", 2}: true, {"rem", 2}: true, {"div", 2}: true,
	{"inspect", 1}: true,
}

// ALLOWED_SIGILS: spec.md §3's sigil-letter whitelist, verbatim.
var allowedSigils = map[byte]bool{
	'C': true, 'D': true, 'N': true, 'R': true, 'S': true, 'T': true,
	'U': true, 'c': true, 'r': true, 's': true, 'w': true,
}

// modulePolicyKind distinguishes the four module-policy shapes of
// spec.md §3.
type modulePolicyKind int

const (
	policyAllFunctions modulePolicyKind = iota
	policyDenylist
	policyAllowlist
	policySingle
)

// modulePolicy is one row of ALLOWED_MODULES: a module name maps to one of
// the four admission policies spec.md §3 defines.
type modulePolicy struct {
	Kind   modulePolicyKind
	Set    map[funcKey]bool // used by denylist/allowlist
	Single funcKey          // used by single
}

func (p modulePolicy) admits(f funcKey) bool {
	switch p.Kind {
	case policyAllFunctions:
		return true
	case policyAllowlist:
		return p.Set[f]
	case policyDenylist:
		return !p.Set[f]
	case policySingle:
		return f == p.Single
	default:
		return false
	}
}

// ALLOWED_MODULES: spec.md §3's module → policy mapping. The three example
// rows (String denylist, Map all_functions, Access single) are reproduced
// verbatim; the Enum and Kernel allowlist rows are added to give
// internal/runtime's kernel a realistic whitelisted surface to implement,
// grounded on daios-ai-msg/builtin_strings.go's and builtin_misc.go's
// function names re-keyed to this spec's admitted set.
var allowedModules = map[string]modulePolicy{
	"String": {
		Kind: policyDenylist,
		Set: map[funcKey]bool{
			{"to_atom", 1}:          true,
			{"to_existing_atom", 1}: true,
		},
	},
	"Map": {Kind: policyAllFunctions},
	"Access": {
		Kind:   policySingle,
		Single: funcKey{"get", 2},
	},
	"Enum": {
		Kind: policyAllowlist,
		Set: map[funcKey]bool{
			{"map", 2}: true, {"filter", 2}: true, {"reduce", 3}: true,
			{"sum", 1}: true, {"count", 1}: true, {"sort", 1}: true,
			{"at", 2}: true, {"reverse", 1}: true, {"member?", 2}: true,
			{"max", 1}: true, {"min", 1}: true, {"empty?", 1}: true,
			{"uniq", 1}: true, {"join", 2}: true, {"zip", 2}: true,
			{"into", 2}: true,
		},
	},
	"Kernel": {
		Kind: policyAllowlist,
		Set: map[funcKey]bool{
			{"abs", 1}: true, {"to_string", 1}: true, {"length", 1}: true,
		},
	},
}

// WhitelistSnapshot is a read-only view of the admission tables, returned
// by Whitelist() for introspection (see introspection.go).
type WhitelistSnapshot struct {
	Operators       []string
	KernelGuards    []string
	KernelFunctions []string
	Sigils          []string
	Modules         []string
}
