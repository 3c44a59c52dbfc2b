// eval.go — the tree-walking evaluator itself.
//
// Grounded on daios-ai-msg/interpreter_exec.go's Exec/Eval split (statement
// vs. expression evaluation over the same node kinds), collapsed here into
// a single Eval since every admitted node in this sandbox's grammar is an
// expression (spec.md's AST has no separate statement form). Kernel/String/
// Enum/Map functions live in kernel.go, stringmod.go, enummod.go, mapmod.go.
package runtime

import (
	"fmt"
	"strings"

	"github.com/daios-ai/sandeval/ast"
)

// Interpreter evaluates admitted ASTs against a fixed module: local calls
// resolve against Module's own def/defp children, recursively.
type Interpreter struct {
	Module *ast.DefModule
	defs   map[string][]*ast.Def // by name, every arity variant
}

func NewInterpreter(mod *ast.DefModule) *Interpreter {
	ip := &Interpreter{Module: mod, defs: make(map[string][]*ast.Def)}
	for _, stmt := range mod.Body {
		if def, ok := stmt.(*ast.Def); ok {
			ip.defs[def.Name] = append(ip.defs[def.Name], def)
		}
	}
	return ip
}

// Invoke runs def with args bound to its formal parameters in a fresh
// top-level environment, per spec.md §4.6.
func (ip *Interpreter) Invoke(def *ast.Def, args []Value) (Value, error) {
	env := NewEnv(nil)
	if err := ip.bindParams(env, def.Params, args, def.Pos().Line); err != nil {
		return Value{}, err
	}
	if def.Guard != nil {
		guardVal, err := ip.Eval(def.Guard, env)
		if err != nil {
			return Value{}, err
		}
		if !Truthy(guardVal) {
			return Value{}, errf(def.Pos().Line, "no function clause matching in %s/%d", def.Name, len(def.Params))
		}
	}
	return ip.Eval(def.Body, env)
}

func (ip *Interpreter) bindParams(env *Env, params []ast.Expression, args []Value, line int) error {
	if len(params) != len(args) {
		return errf(line, "argument count mismatch: expected %d, got %d", len(params), len(args))
	}
	for i, p := range params {
		if !ip.matchPattern(env, p, args[i]) {
			return errf(line, "no match of right hand side value")
		}
	}
	return nil
}

func (ip *Interpreter) localDef(name string, arity int) *ast.Def {
	for _, def := range ip.defs[name] {
		if len(def.Params) == arity {
			return def
		}
	}
	return nil
}

// Eval evaluates a single admitted expression node.
func (ip *Interpreter) Eval(expr ast.Expression, env *Env) (Value, error) {
	switch e := expr.(type) {
	case nil:
		return Nil, nil
	case *ast.IntegerLiteral:
		return Int(e.Value), nil
	case *ast.FloatLiteral:
		return Float(e.Value), nil
	case *ast.StringLiteral:
		return String(e.Value), nil
	case *ast.AtomLiteral:
		return Atom(e.Name), nil
	case *ast.BooleanLiteral:
		return Bool(e.Value), nil
	case *ast.NilLiteral:
		return Nil, nil
	case *ast.Wildcard:
		return Nil, nil
	case *ast.Identifier:
		return ip.evalIdentifier(e, env)
	case *ast.StringInterpolation:
		return ip.evalInterpolation(e, env)
	case *ast.BitstringLiteral:
		return ip.evalBitstring(e, env)
	case *ast.Sigil:
		return ip.evalSigil(e, env)
	case *ast.Tuple:
		vals, err := ip.evalAll(e.Elements, env)
		if err != nil {
			return Value{}, err
		}
		return Tuple(vals), nil
	case *ast.List:
		return ip.evalList(e, env)
	case *ast.Map:
		return ip.evalMap(e, env)
	case *ast.MapUpdate:
		return ip.evalMapUpdate(e, env)
	case *ast.UnaryExpression:
		return ip.evalUnary(e, env)
	case *ast.BinaryExpression:
		return ip.evalBinary(e, env)
	case *ast.AssignmentExpression:
		return ip.evalAssignment(e, env)
	case *ast.Call:
		return ip.evalCall(e, env)
	case *ast.Capture:
		return ip.evalCapture(e, env)
	case *ast.Block:
		return ip.evalBlock(e, env)
	case *ast.Case:
		return ip.evalCase(e, env)
	case *ast.Cond:
		return ip.evalCond(e, env)
	case *ast.Fn:
		return ip.evalFn(e, env)
	case *ast.With:
		return ip.evalWith(e, env)
	case *ast.Attribute:
		return ip.Eval(e.Value, env)
	default:
		return Value{}, errf(expr.Pos().Line, "unsupported node in runtime evaluator")
	}
}

func (ip *Interpreter) evalAll(exprs []ast.Expression, env *Env) ([]Value, error) {
	vals := make([]Value, len(exprs))
	for i, ex := range exprs {
		v, err := ip.Eval(ex, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (ip *Interpreter) evalIdentifier(e *ast.Identifier, env *Env) (Value, error) {
	if v, ok := env.Get(e.Name); ok {
		return v, nil
	}
	if def := ip.localDef(e.Name, 0); def != nil {
		return ip.Invoke(def, nil)
	}
	return Value{}, errf(e.Pos().Line, "undefined variable %q", e.Name)
}

func (ip *Interpreter) evalInterpolation(e *ast.StringInterpolation, env *Env) (Value, error) {
	var sb strings.Builder
	for _, part := range e.Parts {
		if lit, ok := part.(*ast.StringLiteral); ok {
			sb.WriteString(lit.Value)
			continue
		}
		v, err := ip.Eval(part, env)
		if err != nil {
			return Value{}, err
		}
		sb.WriteString(v.String())
	}
	return String(sb.String()), nil
}

func (ip *Interpreter) evalBitstring(e *ast.BitstringLiteral, env *Env) (Value, error) {
	var buf []byte
	for _, seg := range e.Segments {
		v, err := ip.Eval(seg.Value, env)
		if err != nil {
			return Value{}, err
		}
		switch seg.Kind {
		case "binary", "utf8":
			if v.Tag == TagString {
				buf = append(buf, []byte(v.Data.(string))...)
			}
		default:
			if v.Tag == TagInt {
				buf = append(buf, byte(v.Data.(int64)))
			}
		}
	}
	return String(string(buf)), nil
}

// evalSigil supports the ALLOWED_SIGILS letters with a minimal but
// non-crashing host implementation; no full Date/Regex/URI engine is in
// scope (spec.md treats the host runtime's exact built-in semantics as
// constrained only where sandbox correctness depends on them).
func (ip *Interpreter) evalSigil(e *ast.Sigil, env *Env) (Value, error) {
	content, err := ip.evalAll(e.Parts, env)
	if err != nil {
		return Value{}, err
	}
	var sb strings.Builder
	for _, v := range content {
		sb.WriteString(v.String())
	}
	text := sb.String()
	switch e.Letter {
	case 'c', 'C':
		runes := []rune(text)
		vals := make([]Value, len(runes))
		for i, r := range runes {
			vals[i] = Int(int64(r))
		}
		return List(vals), nil
	case 'w':
		words := strings.Fields(text)
		vals := make([]Value, len(words))
		for i, w := range words {
			vals[i] = String(w)
		}
		return List(vals), nil
	default:
		return String(text), nil
	}
}

func (ip *Interpreter) evalList(e *ast.List, env *Env) (Value, error) {
	vals, err := ip.evalAll(e.Elements, env)
	if err != nil {
		return Value{}, err
	}
	if e.Tail == nil {
		return List(vals), nil
	}
	tail, err := ip.Eval(e.Tail, env)
	if err != nil {
		return Value{}, err
	}
	if tail.Tag != TagList {
		return Value{}, errf(e.Pos().Line, "list tail must be a list")
	}
	return List(append(vals, tail.Data.([]Value)...)), nil
}

func (ip *Interpreter) evalMap(e *ast.Map, env *Env) (Value, error) {
	mv := NewMap()
	for _, ent := range e.Entries {
		k, err := ip.Eval(ent.Key, env)
		if err != nil {
			return Value{}, err
		}
		v, err := ip.Eval(ent.Value, env)
		if err != nil {
			return Value{}, err
		}
		mv.Set(k, v)
	}
	return Map(mv), nil
}

func (ip *Interpreter) evalMapUpdate(e *ast.MapUpdate, env *Env) (Value, error) {
	base, err := ip.Eval(e.Base, env)
	if err != nil {
		return Value{}, err
	}
	if base.Tag != TagMap {
		return Value{}, errf(e.Pos().Line, "map update target is not a map")
	}
	mv := base.Data.(*MapValue).Clone()
	for _, ent := range e.Entries {
		k, err := ip.Eval(ent.Key, env)
		if err != nil {
			return Value{}, err
		}
		v, err := ip.Eval(ent.Value, env)
		if err != nil {
			return Value{}, err
		}
		mv.Set(k, v)
	}
	return Map(mv), nil
}

func (ip *Interpreter) evalUnary(e *ast.UnaryExpression, env *Env) (Value, error) {
	if e.Operator == "^" {
		return ip.Eval(e.Operand, env)
	}
	v, err := ip.Eval(e.Operand, env)
	if err != nil {
		return Value{}, err
	}
	switch e.Operator {
	case "-":
		switch v.Tag {
		case TagInt:
			return Int(-v.Data.(int64)), nil
		case TagFloat:
			return Float(-v.Data.(float64)), nil
		}
		return Value{}, errf(e.Pos().Line, "bad argument in arithmetic expression")
	case "!", "not":
		return Bool(!Truthy(v)), nil
	default:
		return Value{}, errf(e.Pos().Line, "unsupported unary operator %q", e.Operator)
	}
}

func (ip *Interpreter) evalBinary(e *ast.BinaryExpression, env *Env) (Value, error) {
	if e.Operator == "|>" {
		return ip.evalPipe(e, env)
	}
	left, err := ip.Eval(e.Left, env)
	if err != nil {
		return Value{}, err
	}
	if e.Operator == "&&" || e.Operator == "and" {
		if !Truthy(left) {
			return left, nil
		}
		return ip.Eval(e.Right, env)
	}
	if e.Operator == "||" || e.Operator == "or" {
		if Truthy(left) {
			return left, nil
		}
		return ip.Eval(e.Right, env)
	}
	right, err := ip.Eval(e.Right, env)
	if err != nil {
		return Value{}, err
	}
	return applyOperator(e.Operator, left, right, e.Pos().Line)
}

func (ip *Interpreter) evalPipe(e *ast.BinaryExpression, env *Env) (Value, error) {
	left, err := ip.Eval(e.Left, env)
	if err != nil {
		return Value{}, err
	}
	switch rhs := e.Right.(type) {
	case *ast.Call:
		args, err := ip.evalAll(rhs.Args, env)
		if err != nil {
			return Value{}, err
		}
		return ip.call(rhs.Module, rhs.Name, append([]Value{left}, args...), env, rhs.Pos().Line)
	case *ast.Identifier:
		return ip.call(nil, rhs.Name, []Value{left}, env, rhs.Pos().Line)
	default:
		return Value{}, errf(e.Pos().Line, "pipe target is not a call")
	}
}

func applyOperator(op string, left, right Value, line int) (Value, error) {
	switch op {
	case "+", "-", "*", "/":
		return arith(op, left, right, line)
	case "==":
		return Bool(Equal(left, right)), nil
	case "!=":
		return Bool(!Equal(left, right)), nil
	case "===":
		return Bool(StrictEqual(left, right)), nil
	case "!==":
		return Bool(!StrictEqual(left, right)), nil
	case "<":
		return Bool(Less(left, right)), nil
	case "<=":
		return Bool(Less(left, right) || Equal(left, right)), nil
	case ">":
		return Bool(Less(right, left)), nil
	case ">=":
		return Bool(Less(right, left) || Equal(left, right)), nil
	case "<>":
		return String(left.String() + right.String()), nil
	case "++":
		if left.Tag != TagList || right.Tag != TagList {
			return Value{}, errf(line, "++ requires two lists")
		}
		return List(append(append([]Value{}, left.Data.([]Value)...), right.Data.([]Value)...)), nil
	default:
		return Value{}, errf(line, "unsupported operator %q", op)
	}
}

func arith(op string, left, right Value, line int) (Value, error) {
	if left.Tag != TagInt && left.Tag != TagFloat {
		return Value{}, errf(line, "bad argument in arithmetic expression")
	}
	if right.Tag != TagInt && right.Tag != TagFloat {
		return Value{}, errf(line, "bad argument in arithmetic expression")
	}
	if left.Tag == TagInt && right.Tag == TagInt && op != "/" {
		l, r := left.Data.(int64), right.Data.(int64)
		switch op {
		case "+":
			return Int(l + r), nil
		case "-":
			return Int(l - r), nil
		case "*":
			return Int(l * r), nil
		}
	}
	l, r := numericOf(left), numericOf(right)
	switch op {
	case "+":
		return Float(l + r), nil
	case "-":
		return Float(l - r), nil
	case "*":
		return Float(l * r), nil
	case "/":
		if r == 0 {
			return Value{}, errf(line, "division by zero")
		}
		return Float(l / r), nil
	}
	return Value{}, errf(line, "unsupported arithmetic operator %q", op)
}

func (ip *Interpreter) evalAssignment(e *ast.AssignmentExpression, env *Env) (Value, error) {
	v, err := ip.Eval(e.Value, env)
	if err != nil {
		return Value{}, err
	}
	if !ip.matchPattern(env, e.Target, v) {
		return Value{}, errf(e.Pos().Line, "no match of right hand side value")
	}
	return v, nil
}

func (ip *Interpreter) evalCall(e *ast.Call, env *Env) (Value, error) {
	args, err := ip.evalAll(e.Args, env)
	if err != nil {
		return Value{}, err
	}
	return ip.call(e.Module, e.Name, args, env, e.Pos().Line)
}

// call dispatches a resolved (module?, name, args) application. The
// admission decision was already made by the whitelist validator; this is
// purely "which Go function implements it".
func (ip *Interpreter) call(module []string, name string, args []Value, env *Env, line int) (Value, error) {
	if len(module) == 0 {
		if def := ip.localDef(name, len(args)); def != nil {
			return ip.Invoke(def, args)
		}
		if fn, ok := kernelFunctions[funcSig{name, len(args)}]; ok {
			return fn(args, line)
		}
		return Value{}, errf(line, "undefined function %s/%d", name, len(args))
	}
	modName := strings.Join(module, ".")
	switch modName {
	case "String":
		return callModuleFunction(stringFunctions, ip, modName, name, args, line)
	case "Enum":
		return callModuleFunction(enumFunctions, ip, modName, name, args, line)
	case "Map", "Access":
		return callModuleFunction(mapFunctions, ip, modName, name, args, line)
	case "Kernel":
		if fn, ok := kernelFunctions[funcSig{name, len(args)}]; ok {
			return fn(args, line)
		}
		return Value{}, errf(line, "undefined function %s.%s/%d", modName, name, len(args))
	default:
		return Value{}, errf(line, "unknown module %s", modName)
	}
}

func (ip *Interpreter) evalCapture(e *ast.Capture, env *Env) (Value, error) {
	module, name, arity := e.Module, e.Name, e.Arity
	closure := &Closure{Env: env}
	closure.Clauses = []FnClauseSpec{{
		Arity: arity,
		Match: func(callEnv *Env, args []Value) (*Env, bool) {
			if len(args) != arity {
				return callEnv, false
			}
			child := callEnv.Child()
			for i, a := range args {
				child.Define(fmt.Sprintf("__capture_arg_%d", i), a)
			}
			return child, true
		},
		Eval: func(callEnv *Env) (Value, error) {
			args := make([]Value, arity)
			for i := 0; i < arity; i++ {
				v, _ := callEnv.Get(fmt.Sprintf("__capture_arg_%d", i))
				args[i] = v
			}
			return ip.call(module, name, args, callEnv, e.Pos().Line)
		},
	}}
	return Fun(closure), nil
}

func (ip *Interpreter) evalBlock(e *ast.Block, env *Env) (Value, error) {
	var result Value = Nil
	for _, stmt := range e.Statements {
		expr, ok := stmt.(ast.Expression)
		if !ok {
			return Value{}, errf(stmt.Pos().Line, "non-expression statement reached the runtime")
		}
		v, err := ip.Eval(expr, env)
		if err != nil {
			return Value{}, err
		}
		result = v
	}
	return result, nil
}

func (ip *Interpreter) evalCase(e *ast.Case, env *Env) (Value, error) {
	subject, err := ip.Eval(e.Subject, env)
	if err != nil {
		return Value{}, err
	}
	for _, clause := range e.Clauses {
		clauseEnv := env.Child()
		if !ip.matchPattern(clauseEnv, clause.Pattern, subject) {
			continue
		}
		if clause.Guard != nil {
			gv, err := ip.Eval(clause.Guard, clauseEnv)
			if err != nil {
				return Value{}, err
			}
			if !Truthy(gv) {
				continue
			}
		}
		return ip.Eval(clause.Body, clauseEnv)
	}
	return Value{}, errf(e.Pos().Line, "no case clause matching")
}

func (ip *Interpreter) evalCond(e *ast.Cond, env *Env) (Value, error) {
	for _, clause := range e.Clauses {
		v, err := ip.Eval(clause.Condition, env)
		if err != nil {
			return Value{}, err
		}
		if Truthy(v) {
			return ip.Eval(clause.Body, env.Child())
		}
	}
	return Value{}, errf(e.Pos().Line, "no cond clause matching")
}

func (ip *Interpreter) evalFn(e *ast.Fn, env *Env) (Value, error) {
	closure := &Closure{Env: env}
	for _, clause := range e.Clauses {
		cl := clause
		closure.Clauses = append(closure.Clauses, FnClauseSpec{
			Arity: len(cl.Params),
			Match: func(callEnv *Env, args []Value) (*Env, bool) {
				if len(args) != len(cl.Params) {
					return callEnv, false
				}
				child := callEnv.Child()
				for i, p := range cl.Params {
					if !ip.matchPattern(child, p, args[i]) {
						return callEnv, false
					}
				}
				if cl.Guard != nil {
					gv, err := ip.Eval(cl.Guard, child)
					if err != nil || !Truthy(gv) {
						return callEnv, false
					}
				}
				return child, true
			},
			Eval: func(boundEnv *Env) (Value, error) { return ip.Eval(cl.Body, boundEnv) },
		})
	}
	return Fun(closure), nil
}

// CallClosure applies a fn-literal Value to args, trying each clause in
// order — the runtime counterpart of case-clause matching for anonymous
// functions, used by Enum.map/2 and friends when the caller passes a
// closure built from an admitted `fn ... end`.
func (ip *Interpreter) CallClosure(fn Value, args []Value) (Value, error) {
	if fn.Tag != TagFun {
		return Value{}, errf(0, "attempted to call a non-function value")
	}
	closure := fn.Data.(*Closure)
	for _, clause := range closure.Clauses {
		if clause.Arity != len(args) {
			continue
		}
		boundEnv, ok := clause.Match(closure.Env, args)
		if !ok {
			continue
		}
		return clause.Eval(boundEnv)
	}
	return Value{}, errf(0, "no function clause matching")
}

func (ip *Interpreter) evalWith(e *ast.With, env *Env) (Value, error) {
	cur := env
	for _, clause := range e.Clauses {
		v, err := ip.Eval(clause.Source, cur)
		if err != nil {
			return Value{}, err
		}
		if clause.Pattern == nil {
			if !Truthy(v) {
				return ip.runWithElse(e, v)
			}
			continue
		}
		child := cur.Child()
		if !ip.matchPattern(child, clause.Pattern, v) {
			return ip.runWithElse(e, v)
		}
		cur = child
	}
	return ip.Eval(e.Do, cur)
}

func (ip *Interpreter) runWithElse(e *ast.With, unmatched Value) (Value, error) {
	if len(e.ElseClauses) == 0 {
		return Value{}, errf(e.Pos().Line, "with clause did not match and no else was given")
	}
	for _, clause := range e.ElseClauses {
		elseEnv := NewEnv(nil)
		if !ip.matchPattern(elseEnv, clause.Pattern, unmatched) {
			continue
		}
		return ip.Eval(clause.Body, elseEnv)
	}
	return Value{}, errf(e.Pos().Line, "no with-else clause matching")
}

// matchPattern attempts to bind pattern against value within env, defining
// any new identifiers it introduces. Returns false on a failed structural
// match (pattern-match failure is a normal, catchable runtime outcome in
// this language, not a host panic).
func (ip *Interpreter) matchPattern(env *Env, pattern ast.Expression, value Value) bool {
	switch p := pattern.(type) {
	case *ast.Wildcard:
		return true
	case *ast.Identifier:
		env.Define(p.Name, value)
		return true
	case *ast.IntegerLiteral:
		return value.Tag == TagInt && value.Data.(int64) == p.Value
	case *ast.FloatLiteral:
		return value.Tag == TagFloat && value.Data.(float64) == p.Value
	case *ast.StringLiteral:
		return value.Tag == TagString && value.Data.(string) == p.Value
	case *ast.AtomLiteral:
		return value.Tag == TagAtom && value.Data.(string) == p.Name
	case *ast.BooleanLiteral:
		return value.Tag == TagBool && value.Data.(bool) == p.Value
	case *ast.NilLiteral:
		return value.Tag == TagNil
	case *ast.Tuple:
		if value.Tag != TagTuple {
			return false
		}
		elems := value.Data.([]Value)
		if len(elems) != len(p.Elements) {
			return false
		}
		for i, el := range p.Elements {
			if !ip.matchPattern(env, el, elems[i]) {
				return false
			}
		}
		return true
	case *ast.List:
		if value.Tag != TagList {
			return false
		}
		elems := value.Data.([]Value)
		if p.Tail == nil {
			if len(elems) != len(p.Elements) {
				return false
			}
			for i, el := range p.Elements {
				if !ip.matchPattern(env, el, elems[i]) {
					return false
				}
			}
			return true
		}
		if len(elems) < len(p.Elements) {
			return false
		}
		for i, el := range p.Elements {
			if !ip.matchPattern(env, el, elems[i]) {
				return false
			}
		}
		return ip.matchPattern(env, p.Tail, List(elems[len(p.Elements):]))
	case *ast.Map:
		if value.Tag != TagMap {
			return false
		}
		mv := value.Data.(*MapValue)
		for _, ent := range p.Entries {
			keyVal, err := ip.Eval(ent.Key, env)
			if err != nil {
				return false
			}
			actual, ok := mv.Get(keyVal)
			if !ok {
				return false
			}
			if !ip.matchPattern(env, ent.Value, actual) {
				return false
			}
		}
		return true
	case *ast.UnaryExpression:
		if p.Operator != "^" {
			return false
		}
		bound, err := ip.Eval(p.Operand, env)
		if err != nil {
			return false
		}
		return Equal(bound, value)
	default:
		return false
	}
}
