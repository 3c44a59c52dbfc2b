package runtime

import (
	"testing"

	"github.com/daios-ai/sandeval/ast"
)

func pos() ast.Position { return ast.Position{Line: 1, Col: 1} }

func TestValue_EqualTreatsIntAndFloatAsNumericallyEqual(t *testing.T) {
	if !Equal(Int(2), Float(2.0)) {
		t.Fatalf("want 2 == 2.0")
	}
	if StrictEqual(Int(2), Float(2.0)) {
		t.Fatalf("want 2 !== 2.0")
	}
}

func TestValue_LessOrdersByRankThenValue(t *testing.T) {
	if !Less(Int(1), Atom("a")) {
		t.Fatalf("numbers should sort before atoms")
	}
	if !Less(Int(1), Int(2)) {
		t.Fatalf("1 should be less than 2")
	}
}

func TestMapValue_GetSetPreservesInsertionOrder(t *testing.T) {
	mv := NewMap()
	mv.Set(Atom("b"), Int(2))
	mv.Set(Atom("a"), Int(1))
	var order []string
	mv.Each(func(k, _ Value) { order = append(order, k.Data.(string)) })
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("want insertion order [b a], got %v", order)
	}
}

func TestMapValue_CloneIsIndependent(t *testing.T) {
	mv := NewMap()
	mv.Set(Atom("x"), Int(1))
	clone := mv.Clone()
	clone.Set(Atom("x"), Int(99))
	orig, _ := mv.Get(Atom("x"))
	wantInt(t, orig, 1)
}

func TestKernel_Abs(t *testing.T) {
	fn := kernelFunctions[funcSig{"abs", 1}]
	v, err := fn([]Value{Int(-5)}, 1)
	wantOk(t, err)
	wantInt(t, v, 5)
}

func TestKernel_DivByZero(t *testing.T) {
	fn := kernelFunctions[funcSig{"div", 2}]
	_, err := fn([]Value{Int(1), Int(0)}, 1)
	if err == nil {
		t.Fatalf("want error dividing by zero")
	}
}

func TestKernel_Round(t *testing.T) {
	fn := kernelFunctions[funcSig{"round", 1}]
	v, err := fn([]Value{Float(2.6)}, 1)
	wantOk(t, err)
	wantInt(t, v, 3)
}

func TestStringMod_UpcaseAndSplit(t *testing.T) {
	up := stringFunctions[funcSig{"upcase", 1}]
	v, err := up(nil, []Value{String("hi")}, 1)
	wantOk(t, err)
	if v.Data.(string) != "HI" {
		t.Fatalf("want HI, got %v", v)
	}

	split := stringFunctions[funcSig{"split", 2}]
	v, err = split(nil, []Value{String("a,b,c"), String(",")}, 1)
	wantOk(t, err)
	elems := v.Data.([]Value)
	if len(elems) != 3 || elems[1].Data.(string) != "b" {
		t.Fatalf("want [a b c], got %v", elems)
	}
}

func TestMapMod_GetPutMerge(t *testing.T) {
	mv := NewMap()
	mv.Set(Atom("a"), Int(1))

	get := mapFunctions[funcSig{"get", 2}]
	v, err := get(nil, []Value{Map(mv), Atom("a")}, 1)
	wantOk(t, err)
	wantInt(t, v, 1)

	getDefault := mapFunctions[funcSig{"get", 3}]
	v, err = getDefault(nil, []Value{Map(mv), Atom("missing"), Int(42)}, 1)
	wantOk(t, err)
	wantInt(t, v, 42)

	put := mapFunctions[funcSig{"put", 3}]
	v, err = put(nil, []Value{Map(mv), Atom("b"), Int(2)}, 1)
	wantOk(t, err)
	updated := v.Data.(*MapValue)
	bv, ok := updated.Get(Atom("b"))
	if !ok {
		t.Fatalf("want b in updated map")
	}
	wantInt(t, bv, 2)
	// the original map must be untouched (Map.put/3 is not mutating).
	if _, ok := mv.Get(Atom("b")); ok {
		t.Fatalf("Map.put/3 must not mutate its argument")
	}
}

func TestEnumMod_SumCountFilter(t *testing.T) {
	ip := NewInterpreter(&ast.DefModule{})
	list := List([]Value{Int(1), Int(2), Int(3), Int(4)})

	sum := enumFunctions[funcSig{"sum", 1}]
	v, err := sum(ip, []Value{list}, 1)
	wantOk(t, err)
	wantInt(t, v, 10)

	count := enumFunctions[funcSig{"count", 1}]
	v, err = count(ip, []Value{list}, 1)
	wantOk(t, err)
	wantInt(t, v, 4)

	isEven := &Closure{Clauses: []FnClauseSpec{{
		Arity: 1,
		Match: func(env *Env, args []Value) (*Env, bool) { return env, len(args) == 1 },
		Eval: func(env *Env) (Value, error) {
			n, _ := env.Get("__arg")
			return Bool(n.Data.(int64)%2 == 0), nil
		},
	}}}
	filter := enumFunctions[funcSig{"filter", 2}]
	filtered, err := filter(ip, []Value{list, Fun(isEvenBoundTo(isEven))}, 1)
	wantOk(t, err)
	elems := filtered.Data.([]Value)
	if len(elems) != 2 {
		t.Fatalf("want 2 even numbers, got %v", elems)
	}
}

// isEvenBoundTo rewires the closure's Eval to read the single positional
// argument CallClosure passes, since FnClauseSpec.Match does not itself
// thread the call's args into the child env the way evalFn's generated
// clauses do — this test exercises enumFunctions directly rather than
// through a parsed fn literal.
func isEvenBoundTo(c *Closure) *Closure {
	return &Closure{Clauses: []FnClauseSpec{{
		Arity: 1,
		Match: func(env *Env, args []Value) (*Env, bool) {
			child := env.Child()
			child.Define("__arg", args[0])
			return child, true
		},
		Eval: func(env *Env) (Value, error) {
			n, _ := env.Get("__arg")
			return Bool(n.Data.(int64)%2 == 0), nil
		},
	}}}
}

func TestInterpreter_InvokeSimpleAddition(t *testing.T) {
	a := ast.NewIdentifier("a", pos())
	b := ast.NewIdentifier("b", pos())
	body := ast.NewBinaryExpression("+", a, b, pos())
	def := ast.NewDef(false, "add", []ast.Expression{a, b}, nil, ast.NewBlock([]ast.Statement{body}, pos()), pos())
	mod := ast.NewDefModule([]string{"M"}, []ast.Statement{def}, pos())

	ip := NewInterpreter(mod)
	v, err := ip.Invoke(def, []Value{Int(3), Int(4)})
	wantOk(t, err)
	wantInt(t, v, 7)
}

func TestInterpreter_InvokeArityMismatch(t *testing.T) {
	a := ast.NewIdentifier("a", pos())
	def := ast.NewDef(false, "id", []ast.Expression{a}, nil, ast.NewBlock([]ast.Statement{a}, pos()), pos())
	mod := ast.NewDefModule([]string{"M"}, []ast.Statement{def}, pos())

	ip := NewInterpreter(mod)
	_, err := ip.Invoke(def, []Value{Int(1), Int(2)})
	if err == nil {
		t.Fatalf("want argument count mismatch error")
	}
}

func TestInterpreter_PatternMatchFailureIsAnError(t *testing.T) {
	zero := ast.NewIntegerLiteral(0, pos())
	def := ast.NewDef(false, "onlyZero", []ast.Expression{zero}, nil, ast.NewBlock([]ast.Statement{zero}, pos()), pos())
	mod := ast.NewDefModule([]string{"M"}, []ast.Statement{def}, pos())

	ip := NewInterpreter(mod)
	_, err := ip.Invoke(def, []Value{Int(1)})
	if err == nil {
		t.Fatalf("want pattern match failure for onlyZero(1)")
	}
}

func wantOk(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantInt(t *testing.T, v Value, n int64) {
	t.Helper()
	if v.Tag != TagInt || v.Data.(int64) != n {
		t.Fatalf("want int %d, got %#v", n, v)
	}
}
