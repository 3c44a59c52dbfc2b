// shape.go — S: shape validator.
//
// Enforces spec.md §4.3's table: the parsed root must be a single
// `defmodule` whose body statements are only `def`/`defp` definitions and
// attribute declarations. Grounded on daios-ai-msg/errors.go's convention
// of a fixed, named literal per rejection reason — this file never formats
// its own ad-hoc string, it calls the matching err* constructor from
// errors.go so the wording stays byte-identical everywhere it's produced.
package sandbox

import "github.com/daios-ai/sandeval/ast"

// checkShape validates root against spec.md §4.3 and returns the
// *ast.DefModule on success.
func checkShape(root ast.Statement) (*ast.DefModule, error) {
	mod, ok := root.(*ast.DefModule)
	if !ok {
		return nil, errImmediateExecution(posOf(root))
	}
	for _, stmt := range mod.Body {
		if err := checkTopLevelStatement(stmt); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

// checkTopLevelStatement classifies one statement of a module body per the
// spec.md §4.3 table, first rejecting statement wins.
func checkTopLevelStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.Def:
		return nil
	case *ast.Attribute:
		return nil
	case *ast.DefModule:
		return errNestedModules(posOf(s))
	case *ast.Directive:
		switch s.Kind {
		case "alias":
			return errAliasesNotAllowed(posOf(s))
		case "import":
			return errImportsNotAllowed(posOf(s))
		case "require":
			return errRequiresNotAllowed(posOf(s))
		case "use":
			return errUseNotAllowed(posOf(s))
		default:
			return errImmediateExecution(posOf(s))
		}
	default:
		return errImmediateExecution(posOf(stmt))
	}
}
