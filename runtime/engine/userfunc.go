package engine

import (
	"fmt"

	"github.com/imagemath-lang/imagemath/core/ast"
)

// callUserFunction binds arguments into a fresh scope nested in the script
// scope and runs the body's assignments in order. The call's result is the
// variable named "result" when the body sets one, else the last
// assignment's value. A list passed as the first argument broadcasts the
// call over its elements.
func (e *Evaluator) callUserFunction(def *ast.FunctionDef, call *ast.FunctionCall, env *Environment) (any, error) {
	bound, err := e.bindUserArgs(def, call, env)
	if err != nil {
		return nil, err
	}
	return e.invokeUser(def, bound, env)
}

func (e *Evaluator) invokeUser(def *ast.FunctionDef, bound []any, env *Environment) (any, error) {
	if len(def.Params) > 0 {
		if list, ok := asList(bound[0]); ok {
			out := make([]any, len(list))
			for i, item := range list {
				itemBound := append([]any(nil), bound...)
				itemBound[0] = item
				v, err := e.invokeUser(def, itemBound, env)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
	}

	local := env.Child()
	for i, param := range def.Params {
		local.Set(param, bound[i])
	}

	// Each invocation gets its own memo cache: the printed body text is
	// identical across calls while the bound values are not.
	savedMemo := e.memo
	e.memo = map[uint64]any{}
	defer func() { e.memo = savedMemo }()

	var last any
	hasValue := false
	for _, assignment := range def.Body {
		if assignment.Expr == nil {
			continue
		}
		v, err := e.evalExpr(assignment.Expr, local)
		if err != nil {
			if e.collecting {
				continue
			}
			return nil, fmt.Errorf("in function '%s': %w", def.Name, err)
		}
		if assignment.Variable != "" {
			local.Set(assignment.Variable, v)
		}
		last = v
		hasValue = true
	}
	if v, ok := local.vars["result"]; ok {
		return v, nil
	}
	if !hasValue && !e.collecting {
		return nil, fmt.Errorf("function '%s' produced no result", def.Name)
	}
	return last, nil
}

// bindUserArgs maps call arguments to parameters: named arguments bind by
// parameter name, positional ones fill the rest in order. Arity is strict
// unless the evaluator was configured lenient.
func (e *Evaluator) bindUserArgs(def *ast.FunctionDef, call *ast.FunctionCall, env *Environment) ([]any, error) {
	named := map[string]any{}
	var positional []any
	for _, arg := range call.Args {
		v, err := e.evalExpr(arg.Value, env)
		if err != nil {
			return nil, err
		}
		if arg.Name != "" {
			named[arg.Name] = v
		} else {
			positional = append(positional, v)
		}
	}
	for name := range named {
		if !containsString(def.Params, name) {
			return nil, &ValidationError{
				Function: def.Name,
				Argument: name,
				Reason:   "unknown parameter",
			}
		}
	}
	bound := make([]any, len(def.Params))
	taken := make([]bool, len(def.Params))
	for i, param := range def.Params {
		if v, ok := named[param]; ok {
			bound[i] = v
			taken[i] = true
		}
	}
	pi := 0
	for i := range def.Params {
		if taken[i] {
			continue
		}
		if pi < len(positional) {
			bound[i] = positional[pi]
			taken[i] = true
			pi++
		}
	}
	supplied := len(named) + len(positional)
	if e.strictArity && (supplied != len(def.Params) || pi < len(positional)) {
		return nil, &ValidationError{
			Function: def.Name,
			Reason:   fmt.Sprintf("expects %d arguments, but got %d", len(def.Params), supplied),
		}
	}
	return bound, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
