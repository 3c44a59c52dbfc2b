package sandbox

import "testing"

func TestMatch_FindsFunctionByNameAndArity(t *testing.T) {
	const src = `
defmodule M do
  def f(a) do
    a
  end
  def f(a, b) do
    a + b
  end
end
`
	root, err := parseSource([]byte(src))
	wantOk(t, err)
	mod, err := checkShape(root)
	wantOk(t, err)

	matched, err := matchModuleAndFunction(mod, "M", "f", 2)
	wantOk(t, err)
	if len(matched.Params) != 2 {
		t.Fatalf("want 2 params, got %d", len(matched.Params))
	}
}

func TestMatch_ModuleNameMismatch(t *testing.T) {
	const src = `
defmodule Real do
  def f() do
    1
  end
end
`
	root, err := parseSource([]byte(src))
	wantOk(t, err)
	mod, err := checkShape(root)
	wantOk(t, err)

	_, err = matchModuleAndFunction(mod, "Fake", "f", 0)
	wantErrKind(t, err, KindStructural, "Module name mismatch. Expected Fake, got Real")
}

func TestMatch_FunctionNotFound(t *testing.T) {
	const src = `
defmodule M do
  def f() do
    1
  end
end
`
	root, err := parseSource([]byte(src))
	wantOk(t, err)
	mod, err := checkShape(root)
	wantOk(t, err)

	_, err = matchModuleAndFunction(mod, "M", "g", 0)
	wantErrKind(t, err, KindStructural, "Function g/0 not found")
}

func TestMatch_ArityMismatchAmongSameName(t *testing.T) {
	const src = `
defmodule M do
  def f(a) do
    a
  end
end
`
	root, err := parseSource([]byte(src))
	wantOk(t, err)
	mod, err := checkShape(root)
	wantOk(t, err)

	_, err = matchModuleAndFunction(mod, "M", "f", 3)
	wantErrKind(t, err, KindStructural, "Function f/3 not found")
}
