package parser

import (
	"fmt"
	"strings"

	"github.com/imagemath-lang/imagemath/runtime/lexer"
)

// ParseError represents a parsing error with location and context
// information. Parsing is fault tolerant: errors are collected per statement
// and the rest of the file keeps parsing, so a single ParseError never means
// the whole AST is unusable.
type ParseError struct {
	Position    lexer.Position
	Message     string
	Context     string          // "section header", "function call arguments", ...
	Got         lexer.TokenType // the offending token type
	Suggestions []string        // possible fixes
}

// Error returns the formatted error message with line/column information.
func (e ParseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d:%d: %s", e.Position.Line, e.Position.Column, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Context)
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&sb, "\n  suggestion: %s", strings.Join(e.Suggestions, ", "))
	}
	return sb.String()
}

// Snippet renders the offending source line with a caret under the error
// column, for CLI diagnostics.
func (e ParseError) Snippet(source string) string {
	lines := strings.Split(source, "\n")
	if e.Position.Line < 1 || e.Position.Line > len(lines) {
		return ""
	}
	line := lines[e.Position.Line-1]
	col := e.Position.Column
	if col < 1 {
		col = 1
	}
	if col > len(line)+1 {
		col = len(line) + 1
	}
	return fmt.Sprintf("  %s\n  %s^", line, strings.Repeat(" ", col-1))
}

// ErrorList joins multiple parse errors into a single error value.
type ErrorList []ParseError

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}
