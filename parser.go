// parser.go — P: recursive-descent parser producing ast.Node trees.
//
// Grounded on daios-ai-msg/parser.go's structure: a hand-rolled
// precedence-climbing expression parser fed by the lexer, returning a
// KindStructural *Error (errors.go) carrying Line and Col on the first
// syntax error, deterministic and
// pure (same input always yields the same tree). spec.md §4.2 requires
// exactly this: "The parser is deterministic and pure: identical input
// yields an identical AST." Sigil-letter and interpolation handling are
// adapted from the same file's string/atom literal routines.
package sandbox

import (
	"fmt"
	"strconv"

	"github.com/daios-ai/sandeval/ast"
)

// parseSource tokenizes and parses code into a single root ast.Statement.
// Per spec.md §4.2, a syntax error is returned as
// `"Line L: <parser message>"`.
func parseSource(code []byte) (ast.Statement, error) {
	p := &parser{lx: newLexer(code)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.skipSeparators(); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.skipSeparators()
	if p.cur.kind != tEOF {
		return nil, p.errorf("unexpected trailing input %q", p.cur.text)
	}
	return stmt, nil
}

type parser struct {
	lx  *lexer
	cur token
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: KindStructural, Message: msg, Line: p.cur.pos.Line, Col: p.cur.pos.Col}
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.cur.kind != kind {
		return token{}, p.errorf("expected %s, got %q", what, p.cur.text)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) isKeyword(text string) bool {
	return p.cur.kind == tIdent && p.cur.text == text
}

func (p *parser) expectKeyword(text string) error {
	if !p.isKeyword(text) {
		return p.errorf("expected %q, got %q", text, p.cur.text)
	}
	return p.advance()
}

// skipNewlines skips insignificant newlines that appear where an
// expression continuation is always expected (inside brackets, or right
// after a binary operator).
func (p *parser) skipNewlines() error {
	for p.cur.kind == tNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

// skipSeparators skips a run of statement separators (newline or `;`).
func (p *parser) skipSeparators() error {
	for p.cur.kind == tNewline || p.cur.kind == tSemi {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) atEnd() bool {
	return p.isKeyword("end")
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

func (p *parser) parseStatement() (ast.Statement, error) {
	pos := p.cur.pos
	switch {
	case p.cur.kind == tModAttr:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewAttribute(name, value, pos), nil
	case p.isKeyword("def"), p.isKeyword("defp"):
		private := p.cur.text == "defp"
		return p.parseDef(private, pos)
	case p.isKeyword("defmodule"):
		return p.parseDefModule(pos)
	case p.isKeyword("alias"):
		return p.skipDirective("alias", pos)
	case p.isKeyword("import"):
		return p.skipDirective("import", pos)
	case p.isKeyword("require"):
		return p.skipDirective("require", pos)
	case p.isKeyword("use"):
		return p.skipDirective("use", pos)
	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return expr.(ast.Statement), nil
	}
}

// skipDirective consumes the rest of an alias/import/require/use statement
// without building a detailed tree: its contents never matter because the
// shape validator rejects the statement outright based on its keyword.
func (p *parser) skipDirective(kind string, pos ast.Position) (ast.Statement, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.cur.kind != tNewline && p.cur.kind != tSemi && p.cur.kind != tEOF && !p.atEnd() {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return ast.NewDirective(kind, pos), nil
}

func (p *parser) parseBlockBody() ([]ast.Statement, ast.Position, error) {
	startPos := p.cur.pos
	var stmts []ast.Statement
	if err := p.skipSeparators(); err != nil {
		return nil, startPos, err
	}
	for !p.atEnd() && p.cur.kind != tEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, startPos, err
		}
		stmts = append(stmts, stmt)
		if err := p.skipSeparators(); err != nil {
			return nil, startPos, err
		}
	}
	return stmts, startPos, nil
}

func (p *parser) parseDefModule(pos ast.Position) (ast.Statement, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, err := p.parseAliasPath()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, _, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewDefModule(name, body, pos), nil
}

// parseAliasPath parses `Foo.Bar.Baz`, the dotted module-alias form used by
// defmodule heads and qualified call targets.
func (p *parser) parseAliasPath() ([]string, error) {
	tok, err := p.expect(tAlias, "module name")
	if err != nil {
		return nil, err
	}
	parts := []string{tok.text}
	for p.cur.kind == tDot && p.peekIsAliasAfterDot() {
		if err := p.advance(); err != nil {
			return nil, err
		}
		seg, err := p.expect(tAlias, "module name segment")
		if err != nil {
			return nil, err
		}
		parts = append(parts, seg.text)
	}
	return parts, nil
}

// peekIsAliasAfterDot is a one-token lookahead hack: since this parser has
// no token buffer beyond `cur`, module-path continuation is recognized by
// re-lexing is avoided by only calling this right after seeing '.', and
// checking the *next* raw byte in source for an upper-case letter.
func (p *parser) peekIsAliasAfterDot() bool {
	i := p.lx.pos
	for i < len(p.lx.src) && (p.lx.src[i] == ' ' || p.lx.src[i] == '\t') {
		i++
	}
	return i < len(p.lx.src) && isUpper(p.lx.src[i])
}

func (p *parser) parseDef(private bool, pos ast.Position) (ast.Statement, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(tIdent, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tLParen, "("); err != nil {
		return nil, err
	}
	var params []ast.Expression
	for p.cur.kind != tRParen {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tRParen {
			break
		}
		param, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		params = append(params, param)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRParen, ")"); err != nil {
		return nil, err
	}
	var guard ast.Expression
	if p.isKeyword("when") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		guard, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	body, bodyPos, err := p.parseBlockBody()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewDef(private, nameTok.text, params, guard, ast.NewBlock(body, bodyPos), pos), nil
}

// ---------------------------------------------------------------------
// Patterns (a restricted Expression grammar; see shape.go/validator.go for
// the bound-name scan used to detect parameter rebinding).
// ---------------------------------------------------------------------

func (p *parser) parsePattern() (ast.Expression, error) {
	// Patterns reuse the expression grammar for literals/identifiers/
	// tuples/lists/maps; binary/call forms are not valid patterns but are
	// rejected later by the whitelist validator rather than here, keeping
	// one grammar for both roles (spec.md never requires the parser
	// itself to enforce pattern-shape, only V does).
	return p.parseUnary()
}

// ---------------------------------------------------------------------
// Expressions: precedence climbing, lowest to highest.
// ---------------------------------------------------------------------

func (p *parser) parseExpr() (ast.Expression, error) {
	left, err := p.parsePipe()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tAssign {
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return ast.NewAssignmentExpression(left, right, pos), nil
	}
	return left, nil
}

func (p *parser) parsePipe() (ast.Expression, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tPipeOp {
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression("|>", left, right, pos)
	}
	return left, nil
}

func (p *parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tOrOr || p.isKeyword("or") {
		op := p.cur.text
		if p.cur.kind == tIdent {
			op = "or"
		}
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tAndAnd || p.isKeyword("and") {
		op := p.cur.text
		if p.cur.kind == tIdent {
			op = "and"
		}
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
	return left, nil
}

var comparisonOps = map[tokenKind]string{
	tEq: "==", tNeq: "!=", tEqStrict: "===", tNeqStrict: "!==",
	tLt: "<", tLe: "<=", tGt: ">", tGe: ">=",
}

func (p *parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := comparisonOps[p.cur.kind]
		if !ok {
			return left, nil
		}
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
}

func (p *parser) parseConcat() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tConcat || p.cur.kind == tAppend {
		op := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
	return left, nil
}

func (p *parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tPlus || p.cur.kind == tMinus {
		op := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tStar || p.cur.kind == tSlash {
		op := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.NewBinaryExpression(op, left, right, pos)
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expression, error) {
	switch {
	case p.cur.kind == tMinus:
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpression("-", operand, pos), nil
	case p.cur.kind == tBang:
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpression("!", operand, pos), nil
	case p.isKeyword("not"):
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpression("not", operand, pos), nil
	case p.cur.kind == tCaret:
		// Pin operator on a pattern: ^x. Tracked as a unary node so the
		// validator can see through it to the identifier for read-only
		// reference resolution without treating it as a new binding.
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.NewUnaryExpression("^", operand, pos), nil
	default:
		return p.parseCallPostfix()
	}
}

// parseCallPostfix delegates to parsePrimary: qualified calls such as
// `String.upcase(x)` are parsed there, by parseAliasCallOrAtom, and no
// other postfix form follows a primary expression.
func (p *parser) parseCallPostfix() (ast.Expression, error) {
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (ast.Expression, error) {
	pos := p.cur.pos
	switch p.cur.kind {
	case tInt:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, &Error{Kind: KindStructural, Message: fmt.Sprintf("invalid integer literal %q", text), Line: pos.Line}
		}
		return ast.NewIntegerLiteral(v, pos), nil
	case tFloat:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &Error{Kind: KindStructural, Message: fmt.Sprintf("invalid float literal %q", text), Line: pos.Line}
		}
		return ast.NewFloatLiteral(v, pos), nil
	case tString:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.buildStringParts(text, pos)
	case tAtom:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewAtomLiteral(text, pos), nil
	case tTilde:
		return p.parseSigil(pos)
	case tLShift2:
		return p.parseBitstring(pos)
	case tLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tLBrace:
		return p.parseTuple(pos)
	case tLBracket:
		return p.parseList(pos)
	case tMapOpen:
		return p.parseMap(pos)
	case tAmp:
		return p.parseCapture(pos)
	case tIdent:
		return p.parseIdentOrKeywordExpr(pos)
	case tAlias:
		return p.parseAliasCallOrAtom(pos)
	}
	return nil, p.errorf("unexpected token %q", p.cur.text)
}

func (p *parser) parseIdentOrKeywordExpr(pos ast.Position) (ast.Expression, error) {
	switch p.cur.text {
	case "true":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewBooleanLiteral(true, pos), nil
	case "false":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewBooleanLiteral(false, pos), nil
	case "nil":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewNilLiteral(pos), nil
	case "fn":
		return p.parseFn(pos)
	case "case":
		return p.parseCase(pos)
	case "cond":
		return p.parseCond(pos)
	case "with":
		return p.parseWith(pos)
	case "_":
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewWildcard(pos), nil
	}
	name := p.cur.text
	if name == "_" || (len(name) > 0 && name[0] == '_') {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewWildcard(pos), nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind == tLParen {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return ast.NewCall(nil, name, args, pos), nil
	}
	return ast.NewIdentifier(name, pos), nil
}

// parseAliasCallOrAtom handles `Mod.f(args)`, `Mod.Sub.f(args)`, and a bare
// module alias used as a value (rare in this grammar, but representable).
func (p *parser) parseAliasCallOrAtom(pos ast.Position) (ast.Expression, error) {
	path, err := p.parseAliasPath()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tDot {
		return ast.NewIdentifier(path[len(path)-1], pos), nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	fnTok, err := p.expect(tIdent, "function name")
	if err != nil {
		return nil, err
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return ast.NewCall(path, fnTok.text, args, pos), nil
}

// parseArgList parses an optional `(a, b, c)` argument list. If no `(`
// follows, the call has zero arguments (e.g. a bare local-function
// reference used as a value is handled earlier; this path is only reached
// once a name has already committed to being a call).
func (p *parser) parseArgList() ([]ast.Expression, error) {
	if p.cur.kind != tLParen {
		return nil, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var args []ast.Expression
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.cur.kind != tRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseCapture(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var module []string
	var name string
	if p.cur.kind == tAlias {
		path, err := p.parseAliasPath()
		if err != nil {
			return nil, err
		}
		module = path
		if _, err := p.expect(tDot, "."); err != nil {
			return nil, err
		}
		tok, err := p.expect(tIdent, "function name")
		if err != nil {
			return nil, err
		}
		name = tok.text
	} else {
		tok, err := p.expect(tIdent, "function name")
		if err != nil {
			return nil, err
		}
		name = tok.text
	}
	if _, err := p.expect(tSlash, "/"); err != nil {
		return nil, err
	}
	arityTok, err := p.expect(tInt, "arity")
	if err != nil {
		return nil, err
	}
	arity, convErr := strconv.Atoi(arityTok.text)
	if convErr != nil {
		return nil, p.errorf("invalid arity %q", arityTok.text)
	}
	return ast.NewCapture(module, name, arity, pos), nil
}

func (p *parser) parseTuple(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []ast.Expression
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.cur.kind != tRBrace {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRBrace, "}"); err != nil {
		return nil, err
	}
	return ast.NewTuple(elems, pos), nil
}

func (p *parser) parseList(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var elems []ast.Expression
	var tail ast.Expression
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.cur.kind != tRBracket {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, el)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tBar {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			tail, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			break
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRBracket, "]"); err != nil {
		return nil, err
	}
	return ast.NewList(elems, tail, pos), nil
}

func (p *parser) parseMap(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	// Detect `%{base | k: v, ...}` map-update form by trying the base
	// expression first and checking for a following `|`.
	var base ast.Expression
	if p.cur.kind != tRBrace {
		savedPos := p.lx.pos
		savedLine, savedCol, savedDepth := p.lx.line, p.lx.col, p.lx.depth
		savedCur := p.cur
		maybeBase, err := p.parseExpr()
		if err == nil && p.cur.kind == tBar {
			base = maybeBase
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
		} else {
			p.lx.pos, p.lx.line, p.lx.col, p.lx.depth = savedPos, savedLine, savedCol, savedDepth
			p.cur = savedCur
		}
	}
	var entries []ast.MapEntry
	for p.cur.kind != tRBrace {
		entry, err := p.parseMapEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRBrace, "}"); err != nil {
		return nil, err
	}
	if base != nil {
		return ast.NewMapUpdate(base, entries, pos), nil
	}
	return ast.NewMap(entries, pos), nil
}

// parseMapEntry parses `key: value` (sugar for `:key => value`) or
// `expr => value`.
func (p *parser) parseMapEntry() (ast.MapEntry, error) {
	if p.cur.kind == tIdent || p.cur.kind == tAlias {
		savedPos := p.lx.pos
		savedLine, savedCol, savedDepth := p.lx.line, p.lx.col, p.lx.depth
		savedCur := p.cur
		keyPos := p.cur.pos
		name := p.cur.text
		if err := p.advance(); err != nil {
			return ast.MapEntry{}, err
		}
		if p.cur.kind == tColon {
			if err := p.advance(); err != nil {
				return ast.MapEntry{}, err
			}
			if err := p.skipNewlines(); err != nil {
				return ast.MapEntry{}, err
			}
			value, err := p.parseExpr()
			if err != nil {
				return ast.MapEntry{}, err
			}
			return ast.MapEntry{Key: ast.NewAtomLiteral(name, keyPos), Value: value}, nil
		}
		p.lx.pos, p.lx.line, p.lx.col, p.lx.depth = savedPos, savedLine, savedCol, savedDepth
		p.cur = savedCur
	}
	key, err := p.parseExpr()
	if err != nil {
		return ast.MapEntry{}, err
	}
	if _, err := p.expect(tFatArrow, "=>"); err != nil {
		return ast.MapEntry{}, err
	}
	if err := p.skipNewlines(); err != nil {
		return ast.MapEntry{}, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return ast.MapEntry{}, err
	}
	return ast.MapEntry{Key: key, Value: value}, nil
}

// ---------------------------------------------------------------------
// Control forms
// ---------------------------------------------------------------------

func (p *parser) parseFn(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var clauses []ast.FnClause
	if err := p.skipSeparators(); err != nil {
		return nil, err
	}
	for {
		clause, err := p.parseFnClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
		if p.atEnd() {
			break
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewFn(clauses, pos), nil
}

func (p *parser) parseFnClause() (ast.FnClause, error) {
	var params []ast.Expression
	for p.cur.kind != tArrow {
		param, err := p.parsePattern()
		if err != nil {
			return ast.FnClause{}, err
		}
		params = append(params, param)
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return ast.FnClause{}, err
			}
			continue
		}
		break
	}
	var guard ast.Expression
	if p.isKeyword("when") {
		if err := p.advance(); err != nil {
			return ast.FnClause{}, err
		}
		g, err := p.parseExpr()
		if err != nil {
			return ast.FnClause{}, err
		}
		guard = g
	}
	if _, err := p.expect(tArrow, "->"); err != nil {
		return ast.FnClause{}, err
	}
	body, bodyPos, err := p.parseClauseBody()
	if err != nil {
		return ast.FnClause{}, err
	}
	return ast.FnClause{Params: params, Guard: guard, Body: ast.NewBlock(body, bodyPos)}, nil
}

// parseBlockUntil parses statements until endKeyword, a `->` token, or EOF.
// It does not detect where a following `pattern ->` clause begins (a
// statement is parsed whole before its `->` is seen); the `->`-bodied
// clauses of fn, case, cond and with are parsed by parseClauseBody, which
// does.
func (p *parser) parseBlockUntil(endKeyword string, _ string) ([]ast.Statement, ast.Position, error) {
	startPos := p.cur.pos
	var stmts []ast.Statement
	if err := p.skipSeparators(); err != nil {
		return nil, startPos, err
	}
	for !p.isKeyword(endKeyword) && p.cur.kind != tArrow && p.cur.kind != tEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, startPos, err
		}
		stmts = append(stmts, stmt)
		if err := p.skipSeparators(); err != nil {
			return nil, startPos, err
		}
		if p.isKeyword(endKeyword) {
			break
		}
		// A new clause begins wherever parseFnClause/parseCase's own loop
		// detects the next pattern; here we only stop at `end` or EOF, so
		// callers that need per-clause boundaries peek for `->` by trying
		// to parse another statement and backing off is unnecessary: the
		// clause-parsing loops below call this only up to the next
		// recognized boundary via bodyTerminated.
		if p.bodyTerminated(endKeyword) {
			break
		}
	}
	return stmts, startPos, nil
}

// bodyTerminated reports whether the current token is endKeyword or EOF.
// It is parseBlockUntil's stop test and does not look for the start of a
// new clause; looksLikeClauseStart does that for parseClauseBody.
func (p *parser) bodyTerminated(endKeyword string) bool {
	return p.isKeyword(endKeyword) || p.cur.kind == tEOF
}

func (p *parser) parseCase(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	if err := p.skipSeparators(); err != nil {
		return nil, err
	}
	var clauses []ast.CaseClause
	for !p.atEnd() {
		clause, err := p.parseCaseClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewCase(subject, clauses, pos), nil
}

func (p *parser) parseCaseClause() (ast.CaseClause, error) {
	pattern, err := p.parsePattern()
	if err != nil {
		return ast.CaseClause{}, err
	}
	var guard ast.Expression
	if p.isKeyword("when") {
		if err := p.advance(); err != nil {
			return ast.CaseClause{}, err
		}
		g, err := p.parseExpr()
		if err != nil {
			return ast.CaseClause{}, err
		}
		guard = g
	}
	if _, err := p.expect(tArrow, "->"); err != nil {
		return ast.CaseClause{}, err
	}
	body, bodyPos, err := p.parseClauseBody()
	if err != nil {
		return ast.CaseClause{}, err
	}
	return ast.CaseClause{Pattern: pattern, Guard: guard, Body: ast.NewBlock(body, bodyPos)}, nil
}

// parseClauseBody parses statements for one `pattern -> ...` clause until
// `end` or the start of the next clause. Because clauses are not
// keyword-delimited, this parser commits to "a clause body runs until the
// next token sequence that parses as `<pattern> (when <guard>)? ->`, or
// until `end`" by simple single-statement-per-clause bodies augmented with
// an explicit nested `do ... end` when a clause needs a block; that is
// exactly how the admitted programs in spec.md §8 are written (one
// expression per clause), and multi-statement clause bodies can always be
// wrapped by the caller in a literal block via parentheses-free statement
// sequencing handled by parseBlockBody when the clause's RHS is itself a
// `do...end`.
func (p *parser) parseClauseBody() ([]ast.Statement, ast.Position, error) {
	startPos := p.cur.pos
	var stmts []ast.Statement
	if err := p.skipSeparators(); err != nil {
		return nil, startPos, err
	}
	for {
		if p.atEnd() || p.cur.kind == tEOF {
			break
		}
		if p.looksLikeClauseStart() {
			break
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, startPos, err
		}
		stmts = append(stmts, stmt)
		if err := p.skipSeparators(); err != nil {
			return nil, startPos, err
		}
	}
	return stmts, startPos, nil
}

// looksLikeClauseStart speculatively parses a pattern + optional `when` +
// `->` starting at the current position, without consuming input on
// failure, to decide whether the current line begins a new clause.
func (p *parser) looksLikeClauseStart() bool {
	savedPos := p.lx.pos
	savedLine, savedCol, savedDepth := p.lx.line, p.lx.col, p.lx.depth
	savedCur := p.cur
	ok := p.tryClauseStart()
	p.lx.pos, p.lx.line, p.lx.col, p.lx.depth = savedPos, savedLine, savedCol, savedDepth
	p.cur = savedCur
	return ok
}

func (p *parser) tryClauseStart() bool {
	if _, err := p.parsePattern(); err != nil {
		return false
	}
	if p.isKeyword("when") {
		if err := p.advance(); err != nil {
			return false
		}
		if _, err := p.parseExpr(); err != nil {
			return false
		}
	}
	return p.cur.kind == tArrow
}

func (p *parser) parseCond(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	if err := p.skipSeparators(); err != nil {
		return nil, err
	}
	var clauses []ast.CondClause
	for !p.atEnd() {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tArrow, "->"); err != nil {
			return nil, err
		}
		body, bodyPos, err := p.parseClauseBody()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, ast.CondClause{Condition: cond, Body: ast.NewBlock(body, bodyPos)})
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewCond(clauses, pos), nil
}

func (p *parser) parseWith(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var clauses []ast.WithClause
	for {
		clause, err := p.parseWithClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	doBody, doPos, err := p.parseClauseBody()
	if err != nil {
		return nil, err
	}
	var elseClauses []ast.CaseClause
	if p.isKeyword("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipSeparators(); err != nil {
			return nil, err
		}
		for !p.atEnd() {
			clause, err := p.parseCaseClause()
			if err != nil {
				return nil, err
			}
			elseClauses = append(elseClauses, clause)
			if err := p.skipSeparators(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expectKeyword("end"); err != nil {
		return nil, err
	}
	return ast.NewWith(clauses, ast.NewBlock(doBody, doPos), elseClauses, pos), nil
}

func (p *parser) parseWithClause() (ast.WithClause, error) {
	savedPos := p.lx.pos
	savedLine, savedCol, savedDepth := p.lx.line, p.lx.col, p.lx.depth
	savedCur := p.cur
	pattern, err := p.parsePattern()
	if err == nil && p.cur.kind == tLArrow {
		if err := p.advance(); err != nil {
			return ast.WithClause{}, err
		}
		if err := p.skipNewlines(); err != nil {
			return ast.WithClause{}, err
		}
		source, err := p.parseExpr()
		if err != nil {
			return ast.WithClause{}, err
		}
		return ast.WithClause{Pattern: pattern, Source: source}, nil
	}
	p.lx.pos, p.lx.line, p.lx.col, p.lx.depth = savedPos, savedLine, savedCol, savedDepth
	p.cur = savedCur
	expr, err := p.parseExpr()
	if err != nil {
		return ast.WithClause{}, err
	}
	return ast.WithClause{Source: expr}, nil
}

// ---------------------------------------------------------------------
// Sigils, bitstrings, string interpolation
// ---------------------------------------------------------------------

func (p *parser) parseSigil(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.kind != tIdent || len(p.cur.text) == 0 {
		return nil, p.errorf("expected sigil letter after ~")
	}
	letter := p.cur.text[0]
	rest := p.cur.text[1:]
	if err := p.advance(); err != nil {
		return nil, err
	}
	var content, modifiers string
	if p.cur.kind == tString {
		content = p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tIdent && isAllAlpha(p.cur.text) {
			modifiers = p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	} else {
		content = rest
	}
	parts, err := splitInterpolation(content, pos)
	if err != nil {
		return nil, err
	}
	return ast.NewSigil(letter, parts, modifiers, pos), nil
}

func isAllAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlpha(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func (p *parser) parseBitstring(pos ast.Position) (ast.Expression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	var segs []ast.BitstringSegment
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	for p.cur.kind != tRShift2 {
		seg, err := p.parseBitstringSegment()
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.cur.kind == tComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tRShift2, ">>"); err != nil {
		return nil, err
	}
	return ast.NewBitstringLiteral(segs, pos), nil
}

func (p *parser) parseBitstringSegment() (ast.BitstringSegment, error) {
	value, err := p.parseAdditive()
	if err != nil {
		return ast.BitstringSegment{}, err
	}
	seg := ast.BitstringSegment{Value: value}
	if p.cur.kind == tDColon {
		if err := p.advance(); err != nil {
			return ast.BitstringSegment{}, err
		}
		kindTok, err := p.expect(tIdent, "bitstring segment type")
		if err != nil {
			return ast.BitstringSegment{}, err
		}
		seg.Kind = kindTok.text
		if p.cur.kind == tMinus {
			if err := p.advance(); err != nil {
				return ast.BitstringSegment{}, err
			}
			sizeTok, err := p.expect(tInt, "bitstring segment size")
			if err != nil {
				return ast.BitstringSegment{}, err
			}
			n, convErr := strconv.Atoi(sizeTok.text)
			if convErr != nil {
				return ast.BitstringSegment{}, p.errorf("invalid bitstring size %q", sizeTok.text)
			}
			seg.Size = ast.NewIntegerLiteral(int64(n), sizeTok.pos)
		}
	}
	return seg, nil
}

// buildStringParts splits a lexed string body on `#{ ... }` interpolation
// markers into a flat part list, parsing each hole as a sub-expression.
func (p *parser) buildStringParts(raw string, pos ast.Position) (ast.Expression, error) {
	parts, err := splitInterpolation(raw, pos)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		if lit, ok := parts[0].(*ast.StringLiteral); ok {
			return lit, nil
		}
	}
	if len(parts) == 0 {
		return ast.NewStringLiteral("", pos), nil
	}
	return ast.NewStringInterpolation(parts, pos), nil
}

// splitInterpolation walks raw (already escape-resolved by the lexer,
// `#{`/`}` markers intact) and returns alternating *ast.StringLiteral
// chunks and parsed hole expressions, in source order.
func splitInterpolation(raw string, pos ast.Position) ([]ast.Expression, error) {
	var parts []ast.Expression
	var lit []byte
	i := 0
	for i < len(raw) {
		if raw[i] == '#' && i+1 < len(raw) && raw[i+1] == '{' {
			if len(lit) > 0 {
				parts = append(parts, ast.NewStringLiteral(string(lit), pos))
				lit = nil
			}
			depth := 1
			j := i + 2
			start := j
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			if depth != 0 {
				return nil, &Error{Kind: KindStructural, Message: "unterminated string interpolation", Line: pos.Line}
			}
			hole := raw[start:j]
			sub, err := parseSource([]byte(hole))
			if err != nil {
				return nil, err
			}
			expr, ok := sub.(ast.Expression)
			if !ok {
				return nil, &Error{Kind: KindStructural, Message: "invalid string interpolation", Line: pos.Line}
			}
			parts = append(parts, expr)
			i = j + 1
			continue
		}
		lit = append(lit, raw[i])
		i++
	}
	if len(lit) > 0 {
		parts = append(parts, ast.NewStringLiteral(string(lit), pos))
	}
	return parts, nil
}
