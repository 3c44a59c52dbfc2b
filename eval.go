// eval.go — R: runtime adaptor, and the single public entry point that
// wires the lexical pre-filter, parser, shape checker, name/arity matcher,
// whitelist validator, and module cache into one pipeline.
//
// Grounded on daios-ai-msg/interpreter.go's public-surface doc convention
// (a short PUBLIC METHODS block of thin, heavily-commented delegations over
// a richer private implementation) and on daios-ai-msg/modules.go's
// install/purge lifecycle narrative, adapted from "install a VTModule into
// a process-wide table" to "validate once, cache the admitted AST, hand it
// to internal/runtime on every call". Installing (parsing, shape-checking,
// validating, and caching) a given module_id is serialized with a
// per-module_id mutex so two concurrent first-time Eval calls for the same
// module_id cannot race to populate the cache with different results;
// invocation of an already-admitted function carries no lock, since
// moduleCache's own RWMutex already makes concurrent reads safe.
package sandbox

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"

	"github.com/daios-ai/sandeval/ast"
	"github.com/daios-ai/sandeval/internal/runtime"
	"github.com/daios-ai/sandeval/sandboxcfg"
)

// Value is the dynamic value type exchanged across the sandbox boundary:
// caller-supplied arguments and the function's result. It is a direct alias
// of internal/runtime's Value so construction helpers (Int, Float, String,
// ...) work identically on both sides of the boundary without a conversion
// layer — the host runtime and the public API share one value
// representation.
type Value = runtime.Value

// Re-exported value constructors, so callers never need to reach into
// internal/runtime (which the Go toolchain would refuse to let them import
// anyway).
var (
	Nil         = runtime.Nil
	Bool        = runtime.Bool
	Int         = runtime.Int
	Float       = runtime.Float
	String      = runtime.String
	Atom        = runtime.Atom
	Tuple       = runtime.Tuple
	List        = runtime.List
	Map         = runtime.Map
	NewMapValue = runtime.NewMap
)

// MapValue is the ordered-map payload of a TagMap Value.
type MapValue = runtime.MapValue

// Re-exported value tags, so callers never need to reach into
// internal/runtime (which the Go toolchain would refuse to let them import
// anyway).
const (
	TagNil    = runtime.TagNil
	TagBool   = runtime.TagBool
	TagInt    = runtime.TagInt
	TagFloat  = runtime.TagFloat
	TagString = runtime.TagString
	TagAtom   = runtime.TagAtom
	TagTuple  = runtime.TagTuple
	TagList   = runtime.TagList
	TagMap    = runtime.TagMap
	TagFun    = runtime.TagFun
)

////////////////////////////////////////////////////////////////////////////
//                              PUBLIC API
////////////////////////////////////////////////////////////////////////////

// Sandbox evaluates admitted source against a fixed set of whitelist
// tables (package-level, immutable) paired with a per-instance module
// cache and logger. Multiple Sandboxes may run concurrently; each owns an
// independent cache, so persistence is scoped to the Sandbox that
// produced it, not process-wide.
type Sandbox struct {
	cache         *moduleCache
	logger        *slog.Logger
	limits        sandboxcfg.Limits
	cacheCapacity int
	installMu     sync.Map // module_id (string) -> *sync.Mutex
}

// Option configures a Sandbox at construction time.
type Option func(*Sandbox)

// WithLogger sets the *slog.Logger used for Debug-level install/purge/cache
// tracing. Defaults to slog.Default(); the sandbox core (lexer, parser,
// shape checker, matcher, validator) never logs — only R and C do.
func WithLogger(logger *slog.Logger) Option {
	return func(sb *Sandbox) { sb.logger = logger }
}

// WithLimits overrides the lexical pre-filter's resource thresholds.
// Defaults to sandboxcfg.Default().
func WithLimits(limits sandboxcfg.Limits) Option {
	return func(sb *Sandbox) { sb.limits = limits }
}

// WithCacheCapacity bounds the number of distinct module_ids the module
// cache (C) remembers at once, evicting least-recently-used entries beyond
// that. Defaults to 256.
func WithCacheCapacity(capacity int) Option {
	return func(sb *Sandbox) { sb.cacheCapacity = capacity }
}

// New builds a Sandbox with the given options applied over documented
// defaults.
func New(opts ...Option) *Sandbox {
	sb := &Sandbox{limits: sandboxcfg.Default(), cacheCapacity: 256}
	for _, opt := range opts {
		opt(sb)
	}
	if sb.logger == nil {
		sb.logger = slog.Default()
	}
	sb.cache = newModuleCache(sb.cacheCapacity, sb.logger)
	return sb
}

// CallOption configures one Eval call, mirroring spec.md §6's opts record
// (`{ persistent: bool = true }`). A bool field on a plain options struct
// cannot express "defaults to true" without a pointer or sentinel, so — as
// sandrolain-gosonata's evaluator.EvalOption does for its own per-call
// knobs — this is a small functional-option type instead.
type CallOption func(*callConfig)

type callConfig struct {
	persistent bool
}

// Persistent overrides spec.md §6's opts.persistent (default true). Ephemeral
// calls (Persistent(false)) skip the cache entirely and purge any trace of
// the compiled unit after the call returns, per spec.md §4.6.
func Persistent(persistent bool) CallOption {
	return func(c *callConfig) { c.persistent = persistent }
}

// defaultSandbox backs the package-level Eval convenience function so
// simple callers never need to construct a Sandbox themselves — the same
// "package-level default, New for anything else" convention
// sandrolain-gosonata's evaluator package follows with its own zero-config
// New().
var defaultSandbox = New()

// Eval is the sandbox's single public entry point (spec.md §6):
//
//	eval(code, module, function, args[], opts) -> Ok(Value) | Err(String)
//
// It runs the full L → P → S → N → V → R pipeline (consulting C first when
// persistence is requested), using a process-wide default Sandbox. module
// and function name the caller's expectation; arity is implied by len(args).
func Eval(code []byte, module, function string, args []Value, opts ...CallOption) (Value, error) {
	return defaultSandbox.Eval(code, module, function, args, opts...)
}

// Whitelist returns a read-only snapshot of the process-wide admission
// tables, for tooling/documentation use. It never mutates sandbox state.
func Whitelist() WhitelistSnapshot { return whitelistSnapshot() }

////////////////////////////////////////////////////////////////////////////
//                         PRIVATE IMPLEMENTATION
////////////////////////////////////////////////////////////////////////////

// Eval is the Sandbox method backing the package-level Eval function, for
// callers who need an isolated cache/logger (e.g. one Sandbox per tenant).
func (sb *Sandbox) Eval(code []byte, module, function string, args []Value, opts ...CallOption) (Value, error) {
	cfg := callConfig{persistent: true}
	for _, o := range opts {
		o(&cfg)
	}

	if err := precheck(code, sb.limits); err != nil {
		return Value{}, err
	}

	digest := digestOf(code)
	key := funcKey{Name: function, Arity: len(args)}

	mod, matched, err := sb.admitLocked(code, module, function, len(args), digest, key, cfg.persistent)
	if err != nil {
		return Value{}, err
	}

	return sb.invoke(mod, matched, args)
}

// admitLocked serializes admit() per module_id, per spec.md §5; see the
// package doc comment above for why invoke() itself needs no such lock.
func (sb *Sandbox) admitLocked(code []byte, module, function string, arity int, digest [sha256.Size]byte, key funcKey, persistent bool) (*ast.DefModule, *matchedFunction, error) {
	unlock := sb.lockModule(module)
	defer unlock()
	return sb.admit(code, module, function, arity, digest, key, persistent)
}

// admit runs C/P/S/N/V and returns the admitted module and matched function,
// or the first stage's error. On a cache hit, P and S are skipped and N runs
// again over the cached AST to find the requested function; V is skipped
// when that (function, arity) has already been validated for this
// module_id, and runs once otherwise.
func (sb *Sandbox) admit(code []byte, module, function string, arity int, digest [sha256.Size]byte, key funcKey, persistent bool) (*ast.DefModule, *matchedFunction, error) {
	if persistent {
		if cm, ok := sb.cache.get(module, digest); ok {
			matched, err := matchModuleAndFunction(cm.root, module, function, arity)
			if err != nil {
				return nil, nil, err
			}
			if !cm.alreadyValidated(key) {
				if err := validateModule(cm.root, matched); err != nil {
					return nil, nil, err
				}
				cm.markValidated(key)
			}
			sb.logger.Debug("sandbox module admitted from cache", "module_id", module)
			return cm.root, matched, nil
		}
	}

	root, err := parseSource(code)
	if err != nil {
		return nil, nil, err
	}
	mod, err := checkShape(root)
	if err != nil {
		return nil, nil, err
	}
	matched, err := matchModuleAndFunction(mod, module, function, arity)
	if err != nil {
		return nil, nil, err
	}
	if err := validateModule(mod, matched); err != nil {
		return nil, nil, err
	}

	if persistent {
		cm := sb.cache.put(module, digest, mod)
		cm.markValidated(key)
		sb.logger.Debug("sandbox module installed", "module_id", module)
	}
	return mod, matched, nil
}

// invoke hands the admitted AST to internal/runtime and converts its result
// per spec.md §4.6: success passes the Value through, a runtime panic or
// error becomes a KindRuntime *Error with the host's message unchanged
// ("runtime exception messages pass through unchanged from the host",
// spec.md §6). The recover here mirrors daios-ai-msg/interpreter_exec.go's
// runTopWithSource: the host evaluator is trusted to return errors for
// ordinary failures (division by zero, no matching clause), but a defensive
// recover still converts an unexpected internal panic into a well-formed
// Err(String) instead of crashing the caller's process.
func (sb *Sandbox) invoke(mod *ast.DefModule, matched *matchedFunction, args []Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errRuntime(fmt.Sprintf("%v", r))
			result = Value{}
		}
	}()
	ip := runtime.NewInterpreter(mod)
	v, rerr := ip.Invoke(matched.Def, args)
	if rerr != nil {
		return Value{}, errRuntime(rerr.Error())
	}
	return v, nil
}

// lockModule returns an unlock function that serializes install/purge of
// module_id across concurrent Eval calls on this Sandbox, per spec.md §5
// ("Implementations MUST serialize R's module install/purge with respect to
// other installs of the same module_id").
func (sb *Sandbox) lockModule(module string) func() {
	muAny, _ := sb.installMu.LoadOrStore(module, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
