// match.go — N: name/arity matcher.
//
// Grounded on spec.md §4.4 verbatim: confirm the declared module name
// against the caller's expectation, then scan `def`/`defp` children for the
// first whose name and parameter count match the request. Mirrors
// daios-ai-msg's convention of a narrow, single-purpose lookup function
// returning a concrete result plus a typed error rather than a generic
// "visitor".
package sandbox

import "github.com/daios-ai/sandeval/ast"

// matchedFunction is the result of a successful N-stage lookup: the
// function's body and its formal parameter patterns, ready for V.
type matchedFunction struct {
	Def    *ast.Def
	Params []ast.Expression
	Body   ast.Expression
}

// matchModuleAndFunction implements spec.md §4.4: confirm the module name,
// then scan mod.Body in source order for the first def/defp whose name and
// parameter count match the request.
func matchModuleAndFunction(mod *ast.DefModule, wantModule, wantFunction string, arity int) (*matchedFunction, error) {
	gotModule := dottedName(mod.Name)
	if gotModule != wantModule {
		return nil, errModuleNameMismatch(wantModule, gotModule)
	}

	var sameName []*ast.Def
	for _, stmt := range mod.Body {
		def, ok := stmt.(*ast.Def)
		if !ok {
			continue
		}
		if def.Name != wantFunction {
			continue
		}
		sameName = append(sameName, def)
		if len(def.Params) == arity {
			return &matchedFunction{Def: def, Params: def.Params, Body: def.Body}, nil
		}
	}

	if len(sameName) == 1 {
		return nil, errFunctionArityMismatch(wantFunction, arity, len(sameName[0].Params))
	}
	return nil, errFunctionNotFound(wantFunction, arity)
}

func dottedName(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
