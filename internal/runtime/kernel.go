// kernel.go — the Kernel guard/function builtins and the module-function
// dispatch helper shared by stringmod.go, enummod.go, mapmod.go.
//
// Grounded on daios-ai-msg/builtin_core.go and builtin_misc.go: a flat,
// init-time Go-literal table keyed by (name, arity), each entry a small
// closure that type-checks its own arguments and returns a RuntimeError on
// mismatch rather than panicking. The names and arities mirror whitelist.go's
// ALLOWED_KERNEL_GUARDS/ALLOWED_KERNEL_FUNCTIONS exactly — the validator
// admits only calls these tables can serve.
package runtime

import "math"

// funcSig is the runtime's own (name, arity) lookup key, kept distinct from
// the sandbox package's funcKey since internal/runtime cannot import it
// (nor needs to: V has already admitted the call by the time this table is
// consulted).
type funcSig struct {
	Name  string
	Arity int
}

// moduleFn is the shape of one Module.function/N entry: it receives the
// interpreter so Enum's higher-order functions can invoke a closure
// argument via ip.CallClosure.
type moduleFn func(ip *Interpreter, args []Value, line int) (Value, error)

// callModuleFunction looks up name/len(args) in table and invokes it, or
// reports the same "undefined function" shape evalCall would for an
// unresolved local call.
func callModuleFunction(table map[funcSig]moduleFn, ip *Interpreter, modName, name string, args []Value, line int) (Value, error) {
	fn, ok := table[funcSig{name, len(args)}]
	if !ok {
		return Value{}, errf(line, "undefined function %s.%s/%d", modName, name, len(args))
	}
	return fn(ip, args, line)
}

// kernelFunctions backs bare local calls (abs(x), round(x), ...), qualified
// Kernel.foo(x) calls, and the calls inside `when` guards alike: evalCall
// has no guard-mode distinction — restricting guards to guard-safe
// functions is V's job, already enforced before the runtime sees the call.
var kernelFunctions = map[funcSig]func(args []Value, line int) (Value, error){
	{"abs", 1}: func(args []Value, line int) (Value, error) {
		switch args[0].Tag {
		case TagInt:
			n := args[0].Data.(int64)
			if n < 0 {
				n = -n
			}
			return Int(n), nil
		case TagFloat:
			return Float(math.Abs(args[0].Data.(float64))), nil
		}
		return Value{}, errf(line, "abs/1 expects a number")
	},
	{"to_string", 1}: func(args []Value, line int) (Value, error) {
		return String(args[0].String()), nil
	},
	{"inspect", 1}: func(args []Value, line int) (Value, error) {
		return String(args[0].Inspect()), nil
	},
	{"length", 1}: func(args []Value, line int) (Value, error) {
		v := args[0]
		switch v.Tag {
		case TagList:
			return Int(int64(len(v.Data.([]Value)))), nil
		case TagString:
			return Int(int64(len([]rune(v.Data.(string))))), nil
		}
		return Value{}, errf(line, "length/1 expects a list or string")
	},
	{"hd", 1}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagList {
			return Value{}, errf(line, "hd/1 expects a list")
		}
		elems := args[0].Data.([]Value)
		if len(elems) == 0 {
			return Value{}, errf(line, "hd/1 of an empty list")
		}
		return elems[0], nil
	},
	{"tl", 1}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagList {
			return Value{}, errf(line, "tl/1 expects a list")
		}
		elems := args[0].Data.([]Value)
		if len(elems) == 0 {
			return Value{}, errf(line, "tl/1 of an empty list")
		}
		return List(append([]Value{}, elems[1:]...)), nil
	},
	{"elem", 2}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagTuple || args[1].Tag != TagInt {
			return Value{}, errf(line, "elem/2 expects a tuple and an integer index")
		}
		elems := args[0].Data.([]Value)
		i := args[1].Data.(int64)
		if i < 0 || int(i) >= len(elems) {
			return Value{}, errf(line, "elem/2 index out of range")
		}
		return elems[i], nil
	},
	{"tuple_size", 1}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagTuple {
			return Value{}, errf(line, "tuple_size/1 expects a tuple")
		}
		return Int(int64(len(args[0].Data.([]Value)))), nil
	},
	{"map_size", 1}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagMap {
			return Value{}, errf(line, "map_size/1 expects a map")
		}
		return Int(int64(args[0].Data.(*MapValue).Len())), nil
	},
	{"round", 1}: func(args []Value, line int) (Value, error) {
		f, err := requireNumber(args[0], "round/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(math.Round(f))), nil
	},
	{"trunc", 1}: func(args []Value, line int) (Value, error) {
		f, err := requireNumber(args[0], "trunc/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(math.Trunc(f))), nil
	},
	{"floor", 1}: func(args []Value, line int) (Value, error) {
		f, err := requireNumber(args[0], "floor/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(math.Floor(f))), nil
	},
	{"ceil", 1}: func(args []Value, line int) (Value, error) {
		f, err := requireNumber(args[0], "ceil/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(math.Ceil(f))), nil
	},
	{"max", 2}: func(args []Value, line int) (Value, error) {
		if Less(args[0], args[1]) {
			return args[1], nil
		}
		return args[0], nil
	},
	{"min", 2}: func(args []Value, line int) (Value, error) {
		if Less(args[1], args[0]) {
			return args[1], nil
		}
		return args[0], nil
	},
	{"rem", 2}: func(args []Value, line int) (Value, error) {
		a, b, err := requireIntPair(args[0], args[1], "rem/2", line)
		if err != nil {
			return Value{}, err
		}
		if b == 0 {
			return Value{}, errf(line, "rem/2 by zero")
		}
		return Int(a % b), nil
	},
	{"div", 2}: func(args []Value, line int) (Value, error) {
		a, b, err := requireIntPair(args[0], args[1], "div/2", line)
		if err != nil {
			return Value{}, err
		}
		if b == 0 {
			return Value{}, errf(line, "div/2 by zero")
		}
		return Int(a / b), nil
	},
	{"is_atom", 1}:     tagPredicate(TagAtom),
	{"is_binary", 1}:   tagPredicate(TagString),
	{"is_boolean", 1}:  tagPredicate(TagBool),
	{"is_float", 1}:    tagPredicate(TagFloat),
	{"is_integer", 1}:  tagPredicate(TagInt),
	{"is_list", 1}:     tagPredicate(TagList),
	{"is_map", 1}:      tagPredicate(TagMap),
	{"is_nil", 1}:      tagPredicate(TagNil),
	{"is_tuple", 1}:    tagPredicate(TagTuple),
	{"is_number", 1}: func(args []Value, line int) (Value, error) {
		return Bool(args[0].Tag == TagInt || args[0].Tag == TagFloat), nil
	},
	{"is_function", 1}: tagPredicate(TagFun),
	{"is_function", 2}: func(args []Value, line int) (Value, error) {
		if args[0].Tag != TagFun || args[1].Tag != TagInt {
			return Bool(false), nil
		}
		arity := int(args[1].Data.(int64))
		for _, cl := range args[0].Data.(*Closure).Clauses {
			if cl.Arity == arity {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	},
	{"node", 0}: func(args []Value, line int) (Value, error) {
		return Atom("nonode@nohost"), nil
	},
}

func tagPredicate(tag Tag) func(args []Value, line int) (Value, error) {
	return func(args []Value, line int) (Value, error) {
		return Bool(args[0].Tag == tag), nil
	}
}

func requireNumber(v Value, who string, line int) (float64, error) {
	switch v.Tag {
	case TagInt:
		return float64(v.Data.(int64)), nil
	case TagFloat:
		return v.Data.(float64), nil
	}
	return 0, errf(line, "%s expects a number", who)
}

func requireIntPair(a, b Value, who string, line int) (int64, int64, error) {
	if a.Tag != TagInt || b.Tag != TagInt {
		return 0, 0, errf(line, "%s expects two integers", who)
	}
	return a.Data.(int64), b.Data.(int64), nil
}
