package engine

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Environment is a variable scope. Lookup walks from the innermost scope
// outwards; assignment always writes the innermost scope, so user function
// locals never leak into the script scope.
type Environment struct {
	parent *Environment
	vars   map[string]any
	order  []string
}

// NewEnvironment creates a root scope.
func NewEnvironment() *Environment {
	return &Environment{vars: map[string]any{}}
}

// Child creates a fresh scope nested in e.
func (e *Environment) Child() *Environment {
	return &Environment{parent: e, vars: map[string]any{}}
}

// Set binds a variable in this scope. Rebinding keeps the original
// definition order.
func (e *Environment) Set(name string, value any) {
	if _, exists := e.vars[name]; !exists {
		e.order = append(e.order, name)
	}
	e.vars[name] = value
}

// Get resolves a variable through the scope chain.
func (e *Environment) Get(name string) (any, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if v, ok := scope.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether the name is bound in any visible scope.
func (e *Environment) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Names returns every visible variable name, innermost scope first, in
// definition order.
func (e *Environment) Names() []string {
	var names []string
	seen := map[string]bool{}
	for scope := e; scope != nil; scope = scope.parent {
		for _, name := range scope.order {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Snapshot returns a flat copy of all visible bindings, outer scopes first
// so that inner bindings win.
func (e *Environment) Snapshot() map[string]any {
	out := map[string]any{}
	var scopes []*Environment
	for scope := e; scope != nil; scope = scope.parent {
		scopes = append(scopes, scope)
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		for name, v := range scopes[i].vars {
			out[name] = v
		}
	}
	return out
}

// unresolved builds the error for a missing name, with fuzzy suggestions
// drawn from the candidate set.
func unresolved(kind UnresolvedKind, name string, candidates []string) *UnresolvedError {
	ranks := fuzzy.RankFindNormalizedFold(name, candidates)
	sort.Sort(ranks)
	var suggestions []string
	for i, r := range ranks {
		if i == 3 {
			break
		}
		suggestions = append(suggestions, r.Target)
	}
	return &UnresolvedError{Kind: kind, Name: name, Suggestions: suggestions}
}
