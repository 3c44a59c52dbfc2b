// spans.go — source position plumbing.
//
// Grounded on daios-ai-msg/spans.go: a thin sidecar type carrying 1-based
// line/column so diagnostics can be rendered without threading raw byte
// offsets through every stage. Here the position lives directly on each
// ast.Node (ast.Position) rather than in a side table, since the AST is a
// typed tree rather than a dynamic S-expression; this file just gives the
// rest of the package a short local alias and a couple of combinators.
package sandbox

import "github.com/daios-ai/sandeval/ast"

type position = ast.Position

func posOf(n ast.Node) position {
	if n == nil {
		return position{}
	}
	return n.Pos()
}
