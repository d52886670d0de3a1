package parser

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/runtime/lexer"
)

// resolveIncludes loads and parses every include directive in the script.
// Paths resolve against the parser's include directory; a path without an
// extension falls back to `<path>.math` when the bare file does not exist.
// Includes that cannot be read, or that would re-enter a file already open
// on the current resolution path, stay marked unresolved. Visited tracks
// absolute paths on the current chain so that cycles terminate.
func (p *Parser) resolveIncludes(script *ast.Script, visited map[string]bool) {
	for _, inc := range script.Includes() {
		path := inc.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.includeDir, path)
		}
		resolved, err := resolveIncludePath(path)
		if err != nil {
			inc.Unresolved = true
			p.logger.Debug("include not found", "path", inc.Path)
			continue
		}
		if visited[resolved] {
			inc.Unresolved = true
			p.addError(ParseError{
				Position: lexer.Position(inc.Pos),
				Message:  "include cycle detected: " + inc.Path,
				Context:  "include directive",
			})
			continue
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			inc.Unresolved = true
			continue
		}

		visited[resolved] = true
		sub := New(string(data), WithIncludeDir(filepath.Dir(resolved)))
		sub.logger = p.logger
		included := sub.parseScript()
		sub.resolveIncludes(included, visited)
		delete(visited, resolved)

		for _, subErr := range sub.errors {
			subErr.Context = strings.TrimSpace(subErr.Context + " (included from " + inc.Path + ")")
			p.errors = append(p.errors, subErr)
		}
		inc.Substitutes = included.Nodes
	}
}

// resolveIncludePath returns the absolute path of the include target,
// trying the exact path first and then the `.math` variant.
func resolveIncludePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}
	withExt := path + ".math"
	if _, err := os.Stat(withExt); err == nil {
		return filepath.Abs(withExt)
	}
	return "", os.ErrNotExist
}

// InlineIncludes returns a new script with every resolved include replaced
// by the nodes of the included script, recursively. Unresolved includes are
// kept in place so that downstream consumers can report them. The input
// script is not modified.
func InlineIncludes(script *ast.Script) *ast.Script {
	out := &ast.Script{}
	out.Nodes = inlineNodes(script.Nodes)
	return out
}

func inlineNodes(nodes []ast.Node) []ast.Node {
	var out []ast.Node
	for _, node := range nodes {
		inc, ok := node.(*ast.IncludeDef)
		if !ok {
			out = append(out, node)
			continue
		}
		if inc.Unresolved {
			out = append(out, inc)
			continue
		}
		out = append(out, inlineNodes(inc.Substitutes)...)
	}
	return out
}
