// token.go — lexical token kinds for the sandboxed surface syntax.
//
// Grounded on daios-ai-msg/lexer.go's TokenType enum: a flat, closed set of
// token kinds consumed by a hand-rolled recursive-descent parser, not a
// generated one. Punctuation is not split by "preceded by whitespace or
// not": each bracket has a single token kind.
package sandbox

type tokenKind int

const (
	tEOF tokenKind = iota
	tIllegal

	tIdent   // lower-case-leading name, may end in ? or !
	tAlias   // Upper-case-leading name (module segment)
	tInt     // integer literal
	tFloat   // float literal
	tString  // string literal body between quotes (interpolation split separately)
	tAtom    // :name or :"quoted name"
	tModAttr // @name

	tLParen
	tRParen
	tLBracket
	tRBracket
	tLBrace
	tRBrace
	tMapOpen // %{
	tComma
	tColon
	tSemi
	tDot
	tQuestion
	tAmp     // &
	tCaret   // ^
	tTilde   // ~ (sigil introducer)
	tDColon  // ::
	tLShift2 // <<
	tRShift2 // >>
	tBar     // |

	tPlus
	tMinus
	tStar
	tSlash
	tPercent
	tStarStar
	tAssign   // =
	tEq       // ==
	tNeq      // !=
	tEqStrict // ===
	tNeqStrict
	tLt
	tLe
	tGt
	tGe
	tAndAnd // &&
	tOrOr   // ||
	tBang   // !
	tConcat // <>
	tAppend // ++
	tPipeOp // |>
	tArrow  // ->
	tFatArrow
	tLArrow // <-

	tNewline
)

var keywords = map[string]bool{
	"def": true, "defp": true, "defmodule": true,
	"do": true, "end": true, "fn": true, "when": true,
	"case": true, "cond": true, "with": true, "else": true,
	"true": true, "false": true, "nil": true,
	"and": true, "or": true, "not": true,
	"alias": true, "import": true, "require": true, "use": true,
}

type token struct {
	kind tokenKind
	text string
	pos  position
}
