package sandbox

import "testing"

func admitAndValidate(t *testing.T, src, module, function string, arity int) error {
	t.Helper()
	root, err := parseSource([]byte(src))
	wantOk(t, err)
	mod, err := checkShape(root)
	wantOk(t, err)
	matched, err := matchModuleAndFunction(mod, module, function, arity)
	wantOk(t, err)
	return validateModule(mod, matched)
}

func TestValidator_AdmitsArithmeticAndLocalCall(t *testing.T) {
	const src = `
defmodule M do
  def f(x) do
    g(x) + 1
  end

  defp g(x) do
    x * 2
  end
end
`
	wantOk(t, admitAndValidate(t, src, "M", "f", 1))
}

func TestValidator_RejectsForbiddenModuleFunction(t *testing.T) {
	const src = `
defmodule M do
  def f() do
    System.cmd("ls", [])
  end
end
`
	err := admitAndValidate(t, src, "M", "f", 0)
	wantErrKind(t, err, KindWhitelist, "Forbidden function: System.cmd")
}

func TestValidator_RejectsUnboundIdentifier(t *testing.T) {
	const src = `
defmodule M do
  def f() do
    unbound_name
  end
end
`
	err := admitAndValidate(t, src, "M", "f", 0)
	wantErrKind(t, err, KindWhitelist, "Forbidden expression")
}

func TestValidator_RejectsParamReassignment(t *testing.T) {
	const src = `
defmodule M do
  def f(x) do
    x = 2
    x
  end
end
`
	err := admitAndValidate(t, src, "M", "f", 1)
	wantErrKind(t, err, KindWhitelist, "Cannot assign to function parameter x")
}

func TestValidator_AllowsLocalRebinding(t *testing.T) {
	const src = `
defmodule M do
  def f(x) do
    y = x + 1
    y = y + 1
    y
  end
end
`
	wantOk(t, admitAndValidate(t, src, "M", "f", 1))
}

func TestValidator_RejectsNestedDefInBody(t *testing.T) {
	const src = `
defmodule M do
  def f() do
    def g() do
      1
    end
  end
end
`
	err := admitAndValidate(t, src, "M", "f", 0)
	wantErrKind(t, err, KindWhitelist, "defmodule/def inside function body is not allowed")
}

func TestValidator_AdmitsCasePatternBindingWithoutParamCheck(t *testing.T) {
	const src = `
defmodule M do
  def f(x) do
    case x do
      {a, b} -> a + b
      other -> other
    end
  end
end
`
	wantOk(t, admitAndValidate(t, src, "M", "f", 1))
}

func TestValidator_AdmitsModuleAttributeExpression(t *testing.T) {
	const src = `
defmodule M do
  @limit 1 + 2
  def f() do
    1
  end
end
`
	wantOk(t, admitAndValidate(t, src, "M", "f", 0))
}

func TestValidator_RejectsForbiddenAttributeExpression(t *testing.T) {
	const src = `
defmodule M do
  @danger File.read!("x")
  def f() do
    1
  end
end
`
	err := admitAndValidate(t, src, "M", "f", 0)
	wantErrKind(t, err, KindWhitelist, "Forbidden function: File.read!")
}

func TestValidator_PinOperatorIsReadOnlyReference(t *testing.T) {
	const src = `
defmodule M do
  def f(x) do
    case x do
      ^x -> :same
      _ -> :different
    end
  end
end
`
	wantOk(t, admitAndValidate(t, src, "M", "f", 1))
}
