package sandbox

import (
	"strings"
	"testing"

	"github.com/daios-ai/sandeval/sandboxcfg"
)

func wantOk(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func wantErrKind(t *testing.T, err error, kind Kind, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("want error, got nil")
	}
	se, ok := err.(*Error)
	if !ok {
		t.Fatalf("want *Error, got %T (%v)", err, err)
	}
	if se.Kind != kind {
		t.Fatalf("want Kind %v, got %v (%v)", kind, se.Kind, se)
	}
	if substr != "" && !strings.Contains(se.Error(), substr) {
		t.Fatalf("want error containing %q, got %q", substr, se.Error())
	}
}

func wantInt(t *testing.T, v Value, n int64) {
	t.Helper()
	if v.Tag != TagInt || v.Data.(int64) != n {
		t.Fatalf("want int %d, got %#v", n, v)
	}
}

func wantFloat(t *testing.T, v Value, f float64) {
	t.Helper()
	if v.Tag != TagFloat || v.Data.(float64) != f {
		t.Fatalf("want float %g, got %#v", f, v)
	}
}

const calculatorSrc = `
defmodule Calculator do
  def add_tax(price) do
    tax = price * 0.2
    %{price: price, tax: tax, total: price + tax}
  end
end
`

func TestEval_HappyArithmetic(t *testing.T) {
	sb := New()
	v, err := sb.Eval([]byte(calculatorSrc), "Calculator", "add_tax", []Value{Int(100)})
	wantOk(t, err)
	if v.Tag != TagMap {
		t.Fatalf("want map result, got %#v", v)
	}
	mv := v.Data.(*MapValue)
	tax, ok := mv.Get(Atom("tax"))
	if !ok {
		t.Fatalf("missing tax key in %v", v)
	}
	wantFloat(t, tax, 20)
	total, ok := mv.Get(Atom("total"))
	if !ok {
		t.Fatalf("missing total key in %v", v)
	}
	wantFloat(t, total, 120)
}

const fibonacciSrc = `
defmodule Fib do
  def fibonacci(n) do
    case n do
      0 -> 0
      1 -> 1
      n -> fibonacci(n - 1) + fibonacci(n - 2)
    end
  end
end
`

func TestEval_Recursion(t *testing.T) {
	sb := New()
	v, err := sb.Eval([]byte(fibonacciSrc), "Fib", "fibonacci", []Value{Int(10)})
	wantOk(t, err)
	wantInt(t, v, 55)
}

const forbiddenCallSrc = `
defmodule Danger do
  def leak(path) do
    File.read!(path)
  end
end
`

func TestEval_ForbiddenModuleFunction(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(forbiddenCallSrc), "Danger", "leak", []Value{String("/etc/passwd")})
	wantErrKind(t, err, KindWhitelist, "Forbidden function: File.read!")
}

const reassignParamSrc = `
defmodule Bad do
  def f(x) do
    x = x + 1
    x
  end
end
`

func TestEval_ParameterReassignmentRejected(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(reassignParamSrc), "Bad", "f", []Value{Int(1)})
	wantErrKind(t, err, KindWhitelist, "Cannot assign to function parameter x")
}

const nestedModuleSrc = `
defmodule Outer do
  defmodule Inner do
    def g() do
      1
    end
  end
end
`

func TestEval_NestedModuleRejected(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(nestedModuleSrc), "Outer", "g", nil)
	wantErrKind(t, err, KindStructural, "Nested modules are not allowed")
}

const arityMismatchSrc = `
defmodule M do
  def f(a, b) do
    a + b
  end
end
`

func TestEval_ArityMismatch(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(arityMismatchSrc), "M", "f", []Value{Int(1)})
	wantErrKind(t, err, KindStructural, "Function f/1 not found")
}

const divideSrc = `
defmodule M do
  def divide(a, b) do
    a / b
  end
end
`

func TestEval_RuntimeDivisionByZero(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(divideSrc), "M", "divide", []Value{Int(4), Int(0)})
	wantErrKind(t, err, KindRuntime, "division by zero")
}

func TestEval_ModuleNameMismatch(t *testing.T) {
	sb := New()
	_, err := sb.Eval([]byte(calculatorSrc), "NotCalculator", "add_tax", []Value{Int(1)})
	wantErrKind(t, err, KindStructural, "Module name mismatch. Expected NotCalculator, got Calculator")
}

func TestEval_Deterministic(t *testing.T) {
	sb := New()
	v1, err1 := sb.Eval([]byte(fibonacciSrc), "Fib", "fibonacci", []Value{Int(12)})
	wantOk(t, err1)
	v2, err2 := sb.Eval([]byte(fibonacciSrc), "Fib", "fibonacci", []Value{Int(12)})
	wantOk(t, err2)
	if v1.Data.(int64) != v2.Data.(int64) {
		t.Fatalf("nondeterministic: %v vs %v", v1, v2)
	}
}

func TestEval_EphemeralDoesNotPersistAcrossCalls(t *testing.T) {
	sb := New()
	const firstVersion = `
defmodule Stale do
  def value() do
    1
  end
end
`
	const secondVersion = `
defmodule Stale do
  def value() do
    2
  end
end
`
	v1, err := sb.Eval([]byte(firstVersion), "Stale", "value", nil, Persistent(false))
	wantOk(t, err)
	wantInt(t, v1, 1)

	v2, err := sb.Eval([]byte(secondVersion), "Stale", "value", nil, Persistent(false))
	wantOk(t, err)
	wantInt(t, v2, 2)
}

func TestEval_PersistentCacheInvalidatesOnContentChange(t *testing.T) {
	sb := New()
	const firstVersion = `
defmodule Cached do
  def value() do
    1
  end
end
`
	const secondVersion = `
defmodule Cached do
  def value() do
    2
  end
end
`
	v1, err := sb.Eval([]byte(firstVersion), "Cached", "value", nil)
	wantOk(t, err)
	wantInt(t, v1, 1)

	v2, err := sb.Eval([]byte(secondVersion), "Cached", "value", nil)
	wantOk(t, err)
	wantInt(t, v2, 2)
}

func TestEval_PackageLevelConvenienceFunction(t *testing.T) {
	v, err := Eval([]byte(fibonacciSrc), "Fib", "fibonacci", []Value{Int(5)})
	wantOk(t, err)
	wantInt(t, v, 5)
}

func TestWhitelist_Snapshot(t *testing.T) {
	snap := Whitelist()
	if !containsStr(snap.Operators, "+") {
		t.Fatalf("expected operator + in snapshot, got %v", snap.Operators)
	}
	if !containsStr(snap.Modules, "Map") || !containsStr(snap.Modules, "String") {
		t.Fatalf("expected Map and String modules in snapshot, got %v", snap.Modules)
	}
	if !containsStr(snap.KernelFunctions, "abs/1") {
		t.Fatalf("expected abs/1 in kernel functions, got %v", snap.KernelFunctions)
	}
}

func containsStr(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func TestEval_PipeOperatorRewrite(t *testing.T) {
	const src = `
defmodule Pipe do
  def run(x) do
    x |> double() |> triple()
  end

  defp double(x) do
    x * 2
  end

  defp triple(x) do
    x * 3
  end
end
`
	sb := New()
	v, err := sb.Eval([]byte(src), "Pipe", "run", []Value{Int(2)})
	wantOk(t, err)
	wantInt(t, v, 12)
}

func TestEval_GuardRestrictsToKernelGuards(t *testing.T) {
	const src = `
defmodule Guarded do
  def classify(x) when is_integer(x) do
    :int
  end

  def classify(x) do
    :other
  end
end
`
	sb := New()
	v, err := sb.Eval([]byte(src), "Guarded", "classify", []Value{Int(1)})
	wantOk(t, err)
	if v.Tag != TagAtom || v.Data.(string) != "int" {
		t.Fatalf("want :int, got %#v", v)
	}
}

func TestEval_GuardRejectsNonGuardFunction(t *testing.T) {
	const src = `
defmodule BadGuard do
  def classify(x) when to_string(x) == "1" do
    :match
  end
end
`
	sb := New()
	_, err := sb.Eval([]byte(src), "BadGuard", "classify", []Value{Int(1)})
	wantErrKind(t, err, KindWhitelist, "Forbidden function: to_string/1")
}

func TestEval_WithOptionsCustomLimits(t *testing.T) {
	limits := sandboxcfg.Default()
	limits.MaxSourceBytes = 64
	sb := New(WithLimits(limits), WithCacheCapacity(4))
	_, err := sb.Eval([]byte(calculatorSrc), "Calculator", "add_tax", []Value{Int(1)})
	wantErrKind(t, err, KindPrecheck, "Code size exceeds maximum limit")
}
