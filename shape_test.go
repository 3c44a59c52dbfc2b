package sandbox

import (
	"testing"

	"github.com/daios-ai/sandeval/ast"
)

func parseAndCheckShape(t *testing.T, src string) (*ast.DefModule, error) {
	t.Helper()
	root, err := parseSource([]byte(src))
	if err != nil {
		return nil, err
	}
	return checkShape(root)
}

func TestShape_AcceptsDefAndAttribute(t *testing.T) {
	const src = `
defmodule Ok do
  @moduledoc "docs"
  def f() do
    1
  end
end
`
	_, err := parseAndCheckShape(t, src)
	wantOk(t, err)
}

func TestShape_RejectsNestedModule(t *testing.T) {
	const src = `
defmodule Outer do
  defmodule Inner do
  end
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Nested modules are not allowed")
}

func TestShape_RejectsAlias(t *testing.T) {
	const src = `
defmodule M do
  alias Foo.Bar
  def f() do
    1
  end
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Module aliases are not allowed")
}

func TestShape_RejectsImport(t *testing.T) {
	const src = `
defmodule M do
  import Foo
  def f() do
    1
  end
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Module imports are not allowed")
}

func TestShape_RejectsRequire(t *testing.T) {
	const src = `
defmodule M do
  require Foo
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Module requires are not allowed")
}

func TestShape_RejectsUse(t *testing.T) {
	const src = `
defmodule M do
  use Foo
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Module use is not allowed")
}

func TestShape_RejectsTopLevelExpression(t *testing.T) {
	const src = `
defmodule M do
  1 + 1
end
`
	_, err := parseAndCheckShape(t, src)
	wantErrKind(t, err, KindStructural, "Immediate code execution in modules is not allowed")
}

func TestShape_RejectsNonModuleRoot(t *testing.T) {
	root, err := parseSource([]byte("1 + 1"))
	wantOk(t, err)
	_, err = checkShape(root)
	wantErrKind(t, err, KindStructural, "Immediate code execution in modules is not allowed")
}
