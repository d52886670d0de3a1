// Package imagemath implements the ImageMath scripting engine: a small
// domain-specific language describing how to combine, transform and export
// processed images. The package bundles the entry points the surrounding
// application consumes; the machinery lives in the runtime subpackages
// (lexer, parser, analysis, engine, bridge).
package imagemath

import (
	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/runtime/analysis"
	"github.com/imagemath-lang/imagemath/runtime/engine"
	"github.com/imagemath-lang/imagemath/runtime/parser"
)

// Version is the engine version, checked against script requires
// declarations.
const Version = "1.0.0"

// Parse parses source text into a script, resolving includes without
// inlining them. The error slice holds every recovered syntax error.
func Parse(source string, opts ...parser.Option) (*ast.Script, []parser.ParseError) {
	return parser.Parse(source, opts...)
}

// ParseAndInlineIncludes parses and splices resolved includes in place.
// Unresolved includes stay in the tree unexpanded.
func ParseAndInlineIncludes(source string, opts ...parser.Option) (*ast.Script, []parser.ParseError) {
	return parser.ParseAndInlineIncludes(source, opts...)
}

// ExtractParameters reads the declarative surface of a script: parameters,
// localized title/description, outputs metadata, author and version
// requirements. It never evaluates code and tolerates malformed scripts.
func ExtractParameters(source string) *analysis.ParameterExtractionResult {
	return analysis.ExtractParameters(source)
}

// Evaluate runs the standard sections of a script against named inputs and
// parameter values, returning the named outputs.
func Evaluate(script *ast.Script, inputs, params map[string]any, opts ...engine.EvalOption) *engine.Result {
	ev := engine.NewEvaluator(opts...)
	defer ev.Dispose()
	for name, v := range inputs {
		ev.PutVariable(name, v)
	}
	for name, v := range params {
		ev.PutVariable(name, v)
	}
	return ev.Execute(script, ast.Single)
}

// EvaluateBatch runs the batch sections once per item, merging outputs by
// name across iterations.
func EvaluateBatch(script *ast.Script, inputs, params map[string]any, items []map[string]any, opts ...engine.EvalOption) *engine.Result {
	ev := engine.NewEvaluator(opts...)
	defer ev.Dispose()
	for name, v := range inputs {
		ev.PutVariable(name, v)
	}
	for name, v := range params {
		ev.PutVariable(name, v)
	}
	return ev.ExecuteBatch(script, items)
}

// CollectShifts returns the sorted set of pixel shifts the script needs,
// computed in one static pass without touching image data.
func CollectShifts(script *ast.Script, params map[string]any) []float64 {
	ev := engine.NewEvaluator()
	defer ev.Dispose()
	for name, v := range params {
		ev.PutVariable(name, v)
	}
	return ev.CollectShifts(script)
}
