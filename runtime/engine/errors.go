package engine

import (
	"fmt"
	"strings"
)

// UnresolvedKind distinguishes the two name resolution failures.
type UnresolvedKind string

const (
	UnresolvedVariable UnresolvedKind = "variable"
	UnresolvedFunction UnresolvedKind = "function"
)

// UnresolvedError reports a reference to a name that is not defined in any
// visible scope. Suggestions hold close matches among the known names.
type UnresolvedError struct {
	Kind        UnresolvedKind
	Name        string
	Suggestions []string
}

func (e *UnresolvedError) Error() string {
	msg := fmt.Sprintf("unresolved %s '%s'", e.Kind, e.Name)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

// ValidationError reports a builtin call whose arguments fail the declared
// contract, before any computation is attempted.
type ValidationError struct {
	Function string
	Argument string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("function '%s', argument '%s': %s", e.Function, e.Argument, e.Reason)
	}
	return fmt.Sprintf("function '%s': %s", e.Function, e.Reason)
}

// InvalidExpression records a statement that failed during evaluation.
// Failures are collected per statement so that independent statements in the
// same script still run.
type InvalidExpression struct {
	Expression string
	Line       int
	Err        error
}

func (e InvalidExpression) Error() string {
	return fmt.Sprintf("line %d: %s: %v", e.Line, e.Expression, e.Err)
}
