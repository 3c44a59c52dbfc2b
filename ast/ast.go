// Package ast defines the tagged-variant syntax tree produced by the
// sandbox parser and walked by the shape and whitelist validators.
//
// Grounded on davidkellis-able/interpreter10-go's pkg/ast/ast.go: a closed
// NodeType enum, a thin Node interface, and marker interfaces that let
// callers type-switch on concrete structs instead of pattern-matching a
// dynamically typed S-expression. spec.md §9 calls this out by name as the
// preferred re-architecture over the quoted/dynamic AST representation a
// host language parser would normally hand back ("define an explicit
// tagged-variant AST type covering exactly the admitted forms ... Non-
// admitted forms are representable (so errors can cite them) but never
// executed").
//
// Every node carries a Position (line/column) so validation errors can be
// line-tagged per spec.md §4.5 and §7.
package ast

// NodeType names one of the closed set of syntax forms the parser can
// produce. It exists purely for diagnostics and fast type switches;
// validators still type-switch on the concrete Go type.
type NodeType string

const (
	NodeIdentifier       NodeType = "Identifier"
	NodeWildcard         NodeType = "Wildcard"
	NodeInteger          NodeType = "Integer"
	NodeFloat            NodeType = "Float"
	NodeString           NodeType = "String"
	NodeAtom             NodeType = "Atom"
	NodeBoolean          NodeType = "Boolean"
	NodeNil              NodeType = "Nil"
	NodeStringInterp     NodeType = "StringInterpolation"
	NodeBitstring        NodeType = "Bitstring"
	NodeSigil            NodeType = "Sigil"
	NodeTuple            NodeType = "Tuple"
	NodeList             NodeType = "List"
	NodeMap              NodeType = "Map"
	NodeMapUpdate        NodeType = "MapUpdate"
	NodeUnary            NodeType = "UnaryExpression"
	NodeBinary           NodeType = "BinaryExpression"
	NodeAssignment       NodeType = "AssignmentExpression"
	NodeCall             NodeType = "Call"
	NodeCapture          NodeType = "FunctionCapture"
	NodeBlock            NodeType = "Block"
	NodeCase             NodeType = "Case"
	NodeCond             NodeType = "Cond"
	NodeFn               NodeType = "AnonymousFunction"
	NodeWith             NodeType = "With"
	NodeAttribute        NodeType = "Attribute"
	NodeDef              NodeType = "Def"
	NodeDefModule        NodeType = "DefModule"
	NodeDirective        NodeType = "Directive"
)

// Position is the 1-based line/column of the token that introduced a node.
type Position struct {
	Line int
	Col  int
}

// Node is implemented by every syntax tree node.
type Node interface {
	Type() NodeType
	Pos() Position
}

// Expression is implemented by nodes that produce a value.
type Expression interface {
	Node
	expressionNode()
}

// Statement is implemented by nodes admissible as a top-level module
// statement or as one element of a block body. Every Expression is also a
// Statement: in this language, any expression can appear where a statement
// is expected.
type Statement interface {
	Node
	statementNode()
}

type base struct {
	kind NodeType
	pos  Position
}

func (b base) Type() NodeType { return b.kind }
func (b base) Pos() Position  { return b.pos }

type exprMarker struct{}

func (exprMarker) expressionNode() {}

type stmtMarker struct{}

func (stmtMarker) statementNode() {}

// exprBase is embedded by every expression node; expressions double as
// statements so they can appear directly in a block body.
type exprBase struct {
	base
	exprMarker
	stmtMarker
}

func newExprBase(kind NodeType, pos Position) exprBase {
	return exprBase{base: base{kind: kind, pos: pos}}
}

// ---------------------------------------------------------------------
// Literals and identifiers
// ---------------------------------------------------------------------

type Identifier struct {
	exprBase
	Name string
}

func NewIdentifier(name string, pos Position) *Identifier {
	return &Identifier{exprBase: newExprBase(NodeIdentifier, pos), Name: name}
}

// Wildcard is the "_" pattern: matches anything, binds nothing.
type Wildcard struct {
	exprBase
}

func NewWildcard(pos Position) *Wildcard {
	return &Wildcard{exprBase: newExprBase(NodeWildcard, pos)}
}

type IntegerLiteral struct {
	exprBase
	Value int64
}

func NewIntegerLiteral(v int64, pos Position) *IntegerLiteral {
	return &IntegerLiteral{exprBase: newExprBase(NodeInteger, pos), Value: v}
}

type FloatLiteral struct {
	exprBase
	Value float64
}

func NewFloatLiteral(v float64, pos Position) *FloatLiteral {
	return &FloatLiteral{exprBase: newExprBase(NodeFloat, pos), Value: v}
}

// StringLiteral is a non-interpolated string segment or a whole string
// literal with no interpolation holes.
type StringLiteral struct {
	exprBase
	Value string
}

func NewStringLiteral(v string, pos Position) *StringLiteral {
	return &StringLiteral{exprBase: newExprBase(NodeString, pos), Value: v}
}

type AtomLiteral struct {
	exprBase
	Name string
}

func NewAtomLiteral(name string, pos Position) *AtomLiteral {
	return &AtomLiteral{exprBase: newExprBase(NodeAtom, pos), Name: name}
}

type BooleanLiteral struct {
	exprBase
	Value bool
}

func NewBooleanLiteral(v bool, pos Position) *BooleanLiteral {
	return &BooleanLiteral{exprBase: newExprBase(NodeBoolean, pos), Value: v}
}

type NilLiteral struct {
	exprBase
}

func NewNilLiteral(pos Position) *NilLiteral {
	return &NilLiteral{exprBase: newExprBase(NodeNil, pos)}
}

// StringInterpolation holds alternating literal chunks and #{...} holes.
// Parts contains *StringLiteral for literal chunks and any Expression for
// an interpolation hole, in source order.
type StringInterpolation struct {
	exprBase
	Parts []Expression
}

func NewStringInterpolation(parts []Expression, pos Position) *StringInterpolation {
	return &StringInterpolation{exprBase: newExprBase(NodeStringInterp, pos), Parts: parts}
}

// BitstringSegment is one `value::type-size` segment of a <<>> literal.
type BitstringSegment struct {
	Value Expression
	Size  Expression // nil if unspecified
	Kind  string     // e.g. "integer", "binary", "utf8"; "" if unspecified
}

type BitstringLiteral struct {
	exprBase
	Segments []BitstringSegment
}

func NewBitstringLiteral(segs []BitstringSegment, pos Position) *BitstringLiteral {
	return &BitstringLiteral{exprBase: newExprBase(NodeBitstring, pos), Segments: segs}
}

// Sigil is ~x<content>modifiers, e.g. ~s[hello] or ~r/foo/i.
type Sigil struct {
	exprBase
	Letter    byte
	Parts     []Expression // literal chunks / interpolation holes, as StringInterpolation
	Modifiers string
}

func NewSigil(letter byte, parts []Expression, modifiers string, pos Position) *Sigil {
	return &Sigil{exprBase: newExprBase(NodeSigil, pos), Letter: letter, Parts: parts, Modifiers: modifiers}
}

// ---------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------

type Tuple struct {
	exprBase
	Elements []Expression
}

func NewTuple(elems []Expression, pos Position) *Tuple {
	return &Tuple{exprBase: newExprBase(NodeTuple, pos), Elements: elems}
}

// List is a plain list literal [a, b, c] or a cons cell [h | t] when Tail
// is non-nil.
type List struct {
	exprBase
	Elements []Expression
	Tail     Expression // nil unless this is a [h | t] cons literal
}

func NewList(elems []Expression, tail Expression, pos Position) *List {
	return &List{exprBase: newExprBase(NodeList, pos), Elements: elems, Tail: tail}
}

// MapEntry is one `key => value` or `key: value` pair.
type MapEntry struct {
	Key   Expression
	Value Expression
}

type Map struct {
	exprBase
	Entries []MapEntry
}

func NewMap(entries []MapEntry, pos Position) *Map {
	return &Map{exprBase: newExprBase(NodeMap, pos), Entries: entries}
}

// MapUpdate is %{base | k: v, ...}.
type MapUpdate struct {
	exprBase
	Base    Expression
	Entries []MapEntry
}

func NewMapUpdate(base Expression, entries []MapEntry, pos Position) *MapUpdate {
	return &MapUpdate{exprBase: newExprBase(NodeMapUpdate, pos), Base: base, Entries: entries}
}

// ---------------------------------------------------------------------
// Operators, assignment, calls
// ---------------------------------------------------------------------

type UnaryExpression struct {
	exprBase
	Operator string
	Operand  Expression
}

func NewUnaryExpression(op string, operand Expression, pos Position) *UnaryExpression {
	return &UnaryExpression{exprBase: newExprBase(NodeUnary, pos), Operator: op, Operand: operand}
}

type BinaryExpression struct {
	exprBase
	Operator string
	Left     Expression
	Right    Expression
}

func NewBinaryExpression(op string, left, right Expression, pos Position) *BinaryExpression {
	return &BinaryExpression{exprBase: newExprBase(NodeBinary, pos), Operator: op, Left: left, Right: right}
}

// AssignmentExpression is `Target = Value`. Target is a pattern: an
// Identifier, Wildcard, Tuple, List, Map, or nested combination thereof.
type AssignmentExpression struct {
	exprBase
	Target Expression
	Value  Expression
}

func NewAssignmentExpression(target, value Expression, pos Position) *AssignmentExpression {
	return &AssignmentExpression{exprBase: newExprBase(NodeAssignment, pos), Target: target, Value: value}
}

// Call is a function application. Module is nil for a local call (`f(x)`);
// for a qualified call (`Mod.f(x)`) it holds the dotted alias parts
// (`["String"]`, `["Foo", "Bar"]`, ...).
type Call struct {
	exprBase
	Module []string
	Name   string
	Args   []Expression
}

func NewCall(module []string, name string, args []Expression, pos Position) *Call {
	return &Call{exprBase: newExprBase(NodeCall, pos), Module: module, Name: name, Args: args}
}

// Capture is `&Mod.f/n` or `&f/n`.
type Capture struct {
	exprBase
	Module []string
	Name   string
	Arity  int
}

func NewCapture(module []string, name string, arity int, pos Position) *Capture {
	return &Capture{exprBase: newExprBase(NodeCapture, pos), Module: module, Name: name, Arity: arity}
}

// ---------------------------------------------------------------------
// Blocks and control forms
// ---------------------------------------------------------------------

type Block struct {
	exprBase
	Statements []Statement
}

func NewBlock(stmts []Statement, pos Position) *Block {
	return &Block{exprBase: newExprBase(NodeBlock, pos), Statements: stmts}
}

type CaseClause struct {
	Pattern Expression
	Guard   Expression // nil if no `when` guard
	Body    Expression
}

type Case struct {
	exprBase
	Subject Expression
	Clauses []CaseClause
}

func NewCase(subject Expression, clauses []CaseClause, pos Position) *Case {
	return &Case{exprBase: newExprBase(NodeCase, pos), Subject: subject, Clauses: clauses}
}

type CondClause struct {
	Condition Expression
	Body      Expression
}

type Cond struct {
	exprBase
	Clauses []CondClause
}

func NewCond(clauses []CondClause, pos Position) *Cond {
	return &Cond{exprBase: newExprBase(NodeCond, pos), Clauses: clauses}
}

type FnClause struct {
	Params []Expression // patterns
	Guard  Expression   // nil if no `when` guard
	Body   Expression
}

// Fn is an anonymous function: `fn p1, p2 -> body; p3 -> body2 end`.
type Fn struct {
	exprBase
	Clauses []FnClause
}

func NewFn(clauses []FnClause, pos Position) *Fn {
	return &Fn{exprBase: newExprBase(NodeFn, pos), Clauses: clauses}
}

// WithClause is `pattern <- source` (a generator that must match) or a
// bare boolean expression (Pattern is nil).
type WithClause struct {
	Pattern Expression // nil for a plain boolean guard clause
	Source  Expression
}

type With struct {
	exprBase
	Clauses     []WithClause
	Do          Expression
	ElseClauses []CaseClause // optional `else` clauses, matched like case
}

func NewWith(clauses []WithClause, do Expression, elseClauses []CaseClause, pos Position) *With {
	return &With{exprBase: newExprBase(NodeWith, pos), Clauses: clauses, Do: do, ElseClauses: elseClauses}
}

// ---------------------------------------------------------------------
// Module-level forms
// ---------------------------------------------------------------------

// Attribute is `@name expr`.
type Attribute struct {
	exprBase
	Name  string
	Value Expression
}

func NewAttribute(name string, value Expression, pos Position) *Attribute {
	return &Attribute{exprBase: newExprBase(NodeAttribute, pos), Name: name, Value: value}
}

// Def is a function definition: `def name(params) when guard do body end`
// (or `defp` for a private definition).
type Def struct {
	base
	stmtMarker
	Private bool
	Name    string
	Params  []Expression // patterns
	Guard   Expression   // nil if no `when` guard
	Body    Expression
}

func (d *Def) statementNode() {}

func NewDef(private bool, name string, params []Expression, guard, body Expression, pos Position) *Def {
	return &Def{base: base{kind: NodeDef, pos: pos}, Private: private, Name: name, Params: params, Guard: guard, Body: body}
}

// DefModule is the root node of an admitted source file: `defmodule Name do
// ... end`.
type DefModule struct {
	base
	stmtMarker
	Name []string
	Body []Statement
}

func (m *DefModule) statementNode() {}

func NewDefModule(name []string, body []Statement, pos Position) *DefModule {
	return &DefModule{base: base{kind: NodeDefModule, pos: pos}, Name: name, Body: body}
}

// Directive represents a rejected top-level form that S must name in its
// error message: defmodule (nested), alias, import, require, use. It is
// never admitted past the shape validator, but must be representable so
// the rejection can cite it (spec.md §9: "Non-admitted forms are
// representable (so errors can cite them) but never executed").
type Directive struct {
	base
	stmtMarker
	Kind string // "defmodule" | "alias" | "import" | "require" | "use"
}

func (d *Directive) statementNode() {}

func NewDirective(kind string, pos Position) *Directive {
	return &Directive{base: base{kind: NodeDirective, pos: pos}, Kind: kind}
}
