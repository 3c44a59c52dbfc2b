// validator.go — V: whitelist validator, the core of the sandbox.
//
// Implements spec.md §4.5: a single post-order walk over the admitted AST
// with an environment (params, locals) threaded through recursion, pure
// (no I/O, no global mutation), admitting only whitelisted nodes. Grounded
// on davidkellis-able/interpreter10-go's typechecker env-scoping style
// (push/pop a binding scope around case/fn/with clauses) adapted from type
// environments to admission environments, and on daios-ai-msg/errors.go's
// line-tagged error convention reused throughout via errors.go's err*
// constructors — this file never hand-formats a rejection string.
package sandbox

import "github.com/daios-ai/sandeval/ast"

// venv is V's threaded environment: params never change size during a
// walk; locals grows on entering a binding scope (case/fn/with clause,
// assignment) and is restored (by virtue of being copied, not mutated) on
// return from that scope. guard marks that the current subtree is a
// `when` guard expression, restricting Call resolution to
// ALLOWED_KERNEL_GUARDS only, per spec.md §4.5.
type venv struct {
	params map[string]bool
	locals map[string]bool
	guard  bool
}

func (e venv) isBound(name string) bool {
	return e.params[name] || e.locals[name]
}

func (e venv) withLocals(names []string) venv {
	fresh := false
	for _, n := range names {
		if n != "" && !e.locals[n] {
			fresh = true
			break
		}
	}
	if !fresh {
		return e
	}
	newLocals := make(map[string]bool, len(e.locals)+len(names))
	for k := range e.locals {
		newLocals[k] = true
	}
	for _, n := range names {
		if n != "" {
			newLocals[n] = true
		}
	}
	return venv{params: e.params, locals: newLocals, guard: e.guard}
}

func (e venv) asGuard() venv {
	return venv{params: e.params, locals: e.locals, guard: true}
}

func toNameSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			m[n] = true
		}
	}
	return m
}

// buildModuleFuncIndex records every def/defp's (name, arity) so local
// calls and bare zero-arity identifier references can resolve against
// "defined within the same module" per spec.md §4.5.
func buildModuleFuncIndex(mod *ast.DefModule) map[funcKey]bool {
	idx := make(map[funcKey]bool)
	for _, stmt := range mod.Body {
		if def, ok := stmt.(*ast.Def); ok {
			idx[funcKey{def.Name, len(def.Params)}] = true
		}
	}
	return idx
}

// validateModule runs V over the matched function's body and, per the
// Open Question resolution recorded in DESIGN.md, over every module
// attribute's value expression as well.
func validateModule(mod *ast.DefModule, matched *matchedFunction) error {
	moduleFuncs := buildModuleFuncIndex(mod)
	baseEnv := venv{params: map[string]bool{}, locals: map[string]bool{}}
	for _, stmt := range mod.Body {
		attr, ok := stmt.(*ast.Attribute)
		if !ok {
			continue
		}
		if err := validateExpr(attr.Value, baseEnv, moduleFuncs); err != nil {
			return err
		}
	}

	var paramNames []string
	for _, p := range matched.Params {
		paramNames = append(paramNames, collectPatternNames(p)...)
	}
	bodyEnv := venv{params: toNameSet(paramNames), locals: map[string]bool{}}
	if matched.Def.Guard != nil {
		if err := validateExpr(matched.Def.Guard, bodyEnv.asGuard(), moduleFuncs); err != nil {
			return err
		}
	}
	return validateExpr(matched.Body, bodyEnv, moduleFuncs)
}

// validateExpr is the single recursive classifier: every admitted node
// type has a case; anything else falls through to "Forbidden expression".
func validateExpr(expr ast.Expression, env venv, moduleFuncs map[funcKey]bool) error {
	switch e := expr.(type) {
	case nil:
		return nil
	case *ast.IntegerLiteral, *ast.FloatLiteral, *ast.StringLiteral,
		*ast.AtomLiteral, *ast.BooleanLiteral, *ast.NilLiteral, *ast.Wildcard:
		return nil
	case *ast.Identifier:
		if env.isBound(e.Name) {
			return nil
		}
		if moduleFuncs[funcKey{e.Name, 0}] {
			return nil
		}
		return errForbiddenExpression(posOf(e))
	case *ast.StringInterpolation:
		for _, part := range e.Parts {
			if err := validateExpr(part, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	case *ast.BitstringLiteral:
		for _, seg := range e.Segments {
			if err := validateExpr(seg.Value, env, moduleFuncs); err != nil {
				return err
			}
			if seg.Size != nil {
				if err := validateExpr(seg.Size, env, moduleFuncs); err != nil {
					return err
				}
			}
		}
		return nil
	case *ast.Sigil:
		if !allowedSigils[e.Letter] {
			return errForbiddenExpression(posOf(e))
		}
		for _, part := range e.Parts {
			if err := validateExpr(part, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	case *ast.Tuple:
		for _, el := range e.Elements {
			if err := validateExpr(el, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	case *ast.List:
		for _, el := range e.Elements {
			if err := validateExpr(el, env, moduleFuncs); err != nil {
				return err
			}
		}
		if e.Tail != nil {
			return validateExpr(e.Tail, env, moduleFuncs)
		}
		return nil
	case *ast.Map:
		for _, ent := range e.Entries {
			if err := validateExpr(ent.Key, env, moduleFuncs); err != nil {
				return err
			}
			if err := validateExpr(ent.Value, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	case *ast.MapUpdate:
		if err := validateExpr(e.Base, env, moduleFuncs); err != nil {
			return err
		}
		for _, ent := range e.Entries {
			if err := validateExpr(ent.Key, env, moduleFuncs); err != nil {
				return err
			}
			if err := validateExpr(ent.Value, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	case *ast.UnaryExpression:
		if !allowedOperators[e.Operator] {
			return errForbiddenExpression(posOf(e))
		}
		return validateExpr(e.Operand, env, moduleFuncs)
	case *ast.BinaryExpression:
		return validateBinary(e, env, moduleFuncs)
	case *ast.AssignmentExpression:
		if _, err := checkAssignmentTarget(e.Target, env); err != nil {
			return err
		}
		return validateExpr(e.Value, env, moduleFuncs)
	case *ast.Call:
		return validateCall(e, env, moduleFuncs)
	case *ast.Capture:
		return validateCapture(e, env, moduleFuncs)
	case *ast.Block:
		return validateBlockBody(e.Statements, env, moduleFuncs)
	case *ast.Case:
		return validateCase(e, env, moduleFuncs)
	case *ast.Cond:
		return validateCond(e, env, moduleFuncs)
	case *ast.Fn:
		return validateFn(e, env, moduleFuncs)
	case *ast.With:
		return validateWith(e, env, moduleFuncs)
	case *ast.Attribute:
		return validateExpr(e.Value, env, moduleFuncs)
	default:
		return errForbiddenExpression(posOf(expr))
	}
}

// validateBinary handles the pipe rewrite (spec.md §4.5: "a |> f(b) ≡
// f(a, b) before whitelist resolution") and the plain-operator case.
func validateBinary(e *ast.BinaryExpression, env venv, moduleFuncs map[funcKey]bool) error {
	if e.Operator == "|>" {
		switch rhs := e.Right.(type) {
		case *ast.Call:
			args := append([]ast.Expression{e.Left}, rhs.Args...)
			return validateCall(ast.NewCall(rhs.Module, rhs.Name, args, rhs.Pos()), env, moduleFuncs)
		case *ast.Identifier:
			return validateCall(ast.NewCall(nil, rhs.Name, []ast.Expression{e.Left}, rhs.Pos()), env, moduleFuncs)
		default:
			return errForbiddenExpression(posOf(e))
		}
	}
	if !allowedOperators[e.Operator] {
		return errForbiddenExpression(posOf(e))
	}
	if err := validateExpr(e.Left, env, moduleFuncs); err != nil {
		return err
	}
	return validateExpr(e.Right, env, moduleFuncs)
}

// validateCall resolves a call's target to (Module?, Function, Arity) and
// admits it per spec.md §4.5's local/qualified resolution rules. In guard
// mode, only ALLOWED_KERNEL_GUARDS is consulted and qualified calls are
// always rejected.
func validateCall(e *ast.Call, env venv, moduleFuncs map[funcKey]bool) error {
	arity := len(e.Args)
	if len(e.Module) == 0 {
		key := funcKey{e.Name, arity}
		admitted := allowedKernelGuards[key]
		if !env.guard {
			admitted = admitted || allowedKernelFunctions[key] || moduleFuncs[key]
		}
		if !admitted {
			return errForbiddenFunction(e.Name, arity, posOf(e))
		}
		for _, a := range e.Args {
			if err := validateExpr(a, env, moduleFuncs); err != nil {
				return err
			}
		}
		return nil
	}
	modName := dottedName(e.Module)
	if env.guard {
		return errForbiddenModuleFunction(modName, e.Name, posOf(e))
	}
	policy, ok := allowedModules[modName]
	if !ok || !policy.admits(funcKey{e.Name, arity}) {
		return errForbiddenModuleFunction(modName, e.Name, posOf(e))
	}
	for _, a := range e.Args {
		if err := validateExpr(a, env, moduleFuncs); err != nil {
			return err
		}
	}
	return nil
}

// validateCapture validates &Mod.f/n and &f/n against the same tables a
// call would use (spec.md §4.5).
func validateCapture(e *ast.Capture, env venv, moduleFuncs map[funcKey]bool) error {
	key := funcKey{e.Name, e.Arity}
	if len(e.Module) == 0 {
		if allowedKernelGuards[key] || allowedKernelFunctions[key] || moduleFuncs[key] {
			return nil
		}
		return errForbiddenFunction(e.Name, e.Arity, posOf(e))
	}
	modName := dottedName(e.Module)
	policy, ok := allowedModules[modName]
	if !ok || !policy.admits(key) {
		return errForbiddenModuleFunction(modName, e.Name, posOf(e))
	}
	return nil
}

// validateBlockBody walks a statement sequence left to right, threading
// newly bound names from each assignment into the env visible to later
// statements (the sequential-binding semantics implied by the happy-path
// example in spec.md §8: `tax = price * 0.2` followed by a reference to
// `tax`).
func validateBlockBody(stmts []ast.Statement, env venv, moduleFuncs map[funcKey]bool) error {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.Def, *ast.DefModule:
			return errNestedDefInBody(posOf(stmt))
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
				return errForbiddenExpression(posOf(s))
			}
		case *ast.Attribute:
			if err := validateExpr(s.Value, env, moduleFuncs); err != nil {
				return err
			}
		case *ast.AssignmentExpression:
			names, err := checkAssignmentTarget(s.Target, env)
			if err != nil {
				return err
			}
			if err := validateExpr(s.Value, env, moduleFuncs); err != nil {
				return err
			}
			env = env.withLocals(names)
		case ast.Expression:
			if err := validateExpr(s, env, moduleFuncs); err != nil {
				return err
			}
		default:
			return errForbiddenExpression(posOf(stmt))
		}
	}
	return nil
}

func validateCase(e *ast.Case, env venv, moduleFuncs map[funcKey]bool) error {
	if err := validateExpr(e.Subject, env, moduleFuncs); err != nil {
		return err
	}
	for _, clause := range e.Clauses {
		clauseEnv := env.withLocals(collectPatternNames(clause.Pattern))
		if clause.Guard != nil {
			if err := validateExpr(clause.Guard, clauseEnv.asGuard(), moduleFuncs); err != nil {
				return err
			}
		}
		if err := validateExpr(clause.Body, clauseEnv, moduleFuncs); err != nil {
			return err
		}
	}
	return nil
}

func validateCond(e *ast.Cond, env venv, moduleFuncs map[funcKey]bool) error {
	for _, clause := range e.Clauses {
		if err := validateExpr(clause.Condition, env, moduleFuncs); err != nil {
			return err
		}
		if err := validateExpr(clause.Body, env, moduleFuncs); err != nil {
			return err
		}
	}
	return nil
}

func validateFn(e *ast.Fn, env venv, moduleFuncs map[funcKey]bool) error {
	for _, clause := range e.Clauses {
		var names []string
		for _, p := range clause.Params {
			names = append(names, collectPatternNames(p)...)
		}
		clauseEnv := env.withLocals(names)
		if clause.Guard != nil {
			if err := validateExpr(clause.Guard, clauseEnv.asGuard(), moduleFuncs); err != nil {
				return err
			}
		}
		if err := validateExpr(clause.Body, clauseEnv, moduleFuncs); err != nil {
			return err
		}
	}
	return nil
}

func validateWith(e *ast.With, env venv, moduleFuncs map[funcKey]bool) error {
	curEnv := env
	for _, clause := range e.Clauses {
		if err := validateExpr(clause.Source, curEnv, moduleFuncs); err != nil {
			return err
		}
		if clause.Pattern != nil {
			curEnv = curEnv.withLocals(collectPatternNames(clause.Pattern))
		}
	}
	if err := validateExpr(e.Do, curEnv, moduleFuncs); err != nil {
		return err
	}
	for _, clause := range e.ElseClauses {
		clauseEnv := env.withLocals(collectPatternNames(clause.Pattern))
		if clause.Guard != nil {
			if err := validateExpr(clause.Guard, clauseEnv.asGuard(), moduleFuncs); err != nil {
				return err
			}
		}
		if err := validateExpr(clause.Body, clauseEnv, moduleFuncs); err != nil {
			return err
		}
	}
	return nil
}

// checkAssignmentTarget implements spec.md §4.5's I4 check: scans the
// pattern's identifier leaves and rejects if any names a formal parameter.
// Returns every bound name on success, for the caller to add to locals.
func checkAssignmentTarget(target ast.Expression, env venv) ([]string, error) {
	var names []string
	var firstErr error
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		if firstErr != nil {
			return
		}
		switch t := e.(type) {
		case *ast.Identifier:
			if env.params[t.Name] {
				firstErr = errCannotAssignParam(t.Name, posOf(t))
				return
			}
			names = append(names, t.Name)
		case *ast.Wildcard:
		case *ast.Tuple:
			for _, el := range t.Elements {
				walk(el)
			}
		case *ast.List:
			for _, el := range t.Elements {
				walk(el)
			}
			if t.Tail != nil {
				walk(t.Tail)
			}
		case *ast.Map:
			for _, ent := range t.Entries {
				walk(ent.Value)
			}
		case *ast.UnaryExpression:
			// `^name` pins an existing binding; it introduces no new name
			// and is not a rebind.
		}
	}
	walk(target)
	if firstErr != nil {
		return nil, firstErr
	}
	return names, nil
}

// collectPatternNames gathers every identifier leaf bound by a pattern
// (case clause, fn parameter, with generator) with no param-rebind check;
// only assignment (`=`) enforces I4 per spec.md §4.5.
func collectPatternNames(pattern ast.Expression) []string {
	var names []string
	var walk func(ast.Expression)
	walk = func(e ast.Expression) {
		switch t := e.(type) {
		case *ast.Identifier:
			names = append(names, t.Name)
		case *ast.Tuple:
			for _, el := range t.Elements {
				walk(el)
			}
		case *ast.List:
			for _, el := range t.Elements {
				walk(el)
			}
			if t.Tail != nil {
				walk(t.Tail)
			}
		case *ast.Map:
			for _, ent := range t.Entries {
				walk(ent.Value)
			}
		}
	}
	walk(pattern)
	return names
}
