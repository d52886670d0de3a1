package engine

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/core/image"
	"github.com/imagemath-lang/imagemath/runtime/bridge"
)

// OutputsSectionName is the section whose assignments become the script's
// named outputs. Scripts without one fall back to their first anonymous
// section.
const OutputsSectionName = "outputs"

var runCounter atomic.Uint64

// ImageSupplier produces the input image for a pixel shift. It is the
// engine's only connection to the frame-reconstruction stage.
type ImageSupplier func(shift float64) (*image.Image, error)

// Evaluator is a tree-walking interpreter over a parsed script. One
// Evaluator drives one logical script run; it is not safe for concurrent
// use, but independent Evaluators may run in parallel.
type Evaluator struct {
	registry    *Registry
	contexts    *bridge.Registry
	runID       string
	supplier    ImageSupplier
	strictArity bool
	logger      *slog.Logger

	env        *Environment
	collecting bool
	shifts     map[float64]bool
	images     map[float64]*image.Image
	memo       map[uint64]any
	functions  map[string]*ast.FunctionDef
	runIndex   int
}

// EvalOption configures an Evaluator.
type EvalOption func(*Evaluator)

// WithImageSupplier connects the evaluator to the input image source.
// Without one, img() yields empty placeholder images.
func WithImageSupplier(s ImageSupplier) EvalOption {
	return func(e *Evaluator) { e.supplier = s }
}

// WithRegistry replaces the builtin function table.
func WithRegistry(r *Registry) EvalOption {
	return func(e *Evaluator) { e.registry = r }
}

// WithContextRegistry supplies the foreign runtime context registry. The
// evaluator's run ID keys its persistent guest context.
func WithContextRegistry(r *bridge.Registry) EvalOption {
	return func(e *Evaluator) { e.contexts = r }
}

// WithRunID pins the run identifier used for foreign context lookup.
func WithRunID(id string) EvalOption {
	return func(e *Evaluator) { e.runID = id }
}

// WithLenientArity disables the strict argument count check on user
// function calls.
func WithLenientArity() EvalOption {
	return func(e *Evaluator) { e.strictArity = false }
}

// NewEvaluator creates an evaluator with the standard builtins registered.
func NewEvaluator(opts ...EvalOption) *Evaluator {
	logLevel := slog.LevelInfo
	if os.Getenv("IMAGEMATH_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	e := &Evaluator{
		registry:    NewRegistry(),
		contexts:    bridge.NewRegistry(),
		runID:       fmt.Sprintf("run-%d", runCounter.Add(1)),
		strictArity: true,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		})),
		env:       NewEnvironment(),
		shifts:    map[float64]bool{},
		images:    map[float64]*image.Image{},
		memo:      map[uint64]any{},
		functions: map[string]*ast.FunctionDef{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PutVariable seeds a script-scope variable before evaluation. Input images
// and declared parameters arrive this way.
func (e *Evaluator) PutVariable(name string, value any) {
	e.env.Set(name, value)
}

// GetVariable reads a script-scope variable after evaluation.
func (e *Evaluator) GetVariable(name string) (any, bool) {
	return e.env.Get(name)
}

// Registry returns the builtin table, so hosts can register extra builtins.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Dispose releases the foreign runtime context of this run.
func (e *Evaluator) Dispose() {
	e.contexts.Dispose(e.runID)
}

// Result is the outcome of one script run.
type Result struct {
	// Outputs maps output variable names to their values, OutputOrder
	// preserving declaration order.
	Outputs     map[string]any
	OutputOrder []string
	// Invalid lists the statements that failed; statements are isolated,
	// one failure does not stop the rest of the script.
	Invalid []InvalidExpression
	// Shifts holds every pixel shift the script references, sorted.
	Shifts []float64
}

// Execute runs the sections of the given kind in document order. The
// variable environment carries forward across sections, and across calls to
// Execute on the same evaluator.
func (e *Evaluator) Execute(script *ast.Script, kind ast.SectionKind) *Result {
	e.runIndex++
	sections := script.FindSections(kind)
	result := &Result{Outputs: map[string]any{}}
	if len(sections) == 0 {
		return result
	}
	e.loadFunctions(script)

	outputSection := findOutputSection(sections, kind)
	outputNames, generated := e.outputNames(sections, outputSection)

	// Collection pass first: the frame stage needs the full shift set
	// before any real image is computed.
	e.collectSections(sections)
	result.Shifts = e.Shifts()

	clear(e.memo)
	for _, section := range sections {
		for _, assignment := range section.Body {
			e.runAssignment(assignment, generated, result)
		}
	}

	for _, name := range outputNames {
		if v, ok := e.env.Get(name); ok && v != nil {
			result.Outputs[name] = v
			result.OutputOrder = append(result.OutputOrder, name)
		}
	}
	return result
}

// ExecuteBatch runs the batch sections once per item. Each iteration sees
// the shared environment plus its item's variables; outputs merge across
// iterations into lists when the batch has more than one item.
func (e *Evaluator) ExecuteBatch(script *ast.Script, items []map[string]any) *Result {
	merged := &Result{Outputs: map[string]any{}}
	shifts := map[float64]bool{}
	perName := map[string][]any{}
	for _, item := range items {
		saved := e.env
		e.env = saved.Child()
		for name, v := range item {
			e.env.Set(name, v)
		}
		iter := e.Execute(script, ast.Batch)
		e.env = saved

		merged.Invalid = append(merged.Invalid, iter.Invalid...)
		for _, s := range iter.Shifts {
			shifts[s] = true
		}
		for _, name := range iter.OutputOrder {
			if _, seen := perName[name]; !seen {
				merged.OutputOrder = append(merged.OutputOrder, name)
			}
			perName[name] = append(perName[name], iter.Outputs[name])
		}
	}
	for name, values := range perName {
		if len(items) == 1 {
			merged.Outputs[name] = values[0]
		} else {
			merged.Outputs[name] = values
		}
	}
	merged.Shifts = sortedShifts(shifts)
	return merged
}

// CollectShifts visits every assignment in every section (standard and
// batch) plus every reachable function body, recording the pixel shifts the
// script needs, without computing any image. Errors during collection are
// swallowed; under-collection would silently lose images at real
// evaluation time.
func (e *Evaluator) CollectShifts(script *ast.Script) []float64 {
	e.loadFunctions(script)
	e.collectSections(script.Sections())
	return e.Shifts()
}

// Shifts returns the sorted set of shifts recorded so far.
func (e *Evaluator) Shifts() []float64 {
	return sortedShifts(e.shifts)
}

func sortedShifts(set map[float64]bool) []float64 {
	out := make([]float64, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Float64s(out)
	return out
}

func (e *Evaluator) loadFunctions(script *ast.Script) {
	for _, def := range script.FunctionDefs() {
		e.functions[def.Name] = def
	}
}

// collectSections evaluates everything in shift-collecting mode against a
// scratch scope, so placeholder values never leak into real results.
func (e *Evaluator) collectSections(sections []*ast.Section) {
	savedEnv, savedMemo := e.env, e.memo
	e.env = savedEnv.Child()
	e.memo = map[uint64]any{}
	e.collecting = true
	defer func() {
		e.collecting = false
		e.env = savedEnv
		e.memo = savedMemo
	}()
	for _, section := range sections {
		for _, assignment := range section.Body {
			if assignment.Expr == nil {
				continue
			}
			v, err := e.evalExpr(assignment.Expr, e.env)
			if err != nil {
				continue
			}
			if assignment.Variable != "" {
				e.env.Set(assignment.Variable, v)
			}
		}
	}
}

// runAssignment evaluates one statement, recording a failure instead of
// aborting the run.
func (e *Evaluator) runAssignment(assignment *ast.Assignment, generated map[*ast.Assignment]string, result *Result) {
	if assignment.Expr == nil {
		result.Invalid = append(result.Invalid, InvalidExpression{
			Expression: assignment.String(),
			Line:       assignment.Pos.Line,
			Err:        fmt.Errorf("statement did not parse"),
		})
		return
	}
	v, err := e.evalExpr(assignment.Expr, e.env)
	if err != nil {
		result.Invalid = append(result.Invalid, InvalidExpression{
			Expression: assignment.Expr.String(),
			Line:       assignment.Pos.Line,
			Err:        err,
		})
		return
	}
	name := assignment.Variable
	if name == "" {
		name = generated[assignment]
	}
	if name != "" {
		e.env.Set(name, v)
		e.logger.Debug("assigned", "variable", name, "value", formatValue(v))
	}
}

// findOutputSection picks the section whose assignments become outputs: the
// one named "outputs", else the first anonymous one, else for batch runs
// the section named "batch".
func findOutputSection(sections []*ast.Section, kind ast.SectionKind) *ast.Section {
	for _, s := range sections {
		if s.Name() == OutputsSectionName {
			return s
		}
	}
	for _, s := range sections {
		if s.Name() == "" {
			return s
		}
	}
	if kind == ast.Batch {
		for _, s := range sections {
			if s.Name() == ast.BatchSectionName {
				return s
			}
		}
	}
	return nil
}

// outputNames lists the output variables in declaration order. Anonymous
// assignments in the output section get generated names; the mapping is
// kept aside, the AST itself stays untouched.
func (e *Evaluator) outputNames(sections []*ast.Section, outputSection *ast.Section) ([]string, map[*ast.Assignment]string) {
	generated := map[*ast.Assignment]string{}
	var names []string
	seen := map[string]bool{}
	if outputSection == nil {
		return names, generated
	}
	cpt := 0
	for _, assignment := range outputSection.Body {
		name := assignment.Variable
		if name == "" {
			name = fmt.Sprintf("imagemath_%d_%d", e.runIndex, cpt)
			cpt++
			generated[assignment] = name
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, generated
}

// --- Expression evaluation ---

func (e *Evaluator) evalExpr(expr ast.Expression, env *Environment) (any, error) {
	switch n := expr.(type) {
	case *ast.NumericalLiteral:
		return n.Value, nil
	case *ast.StringLiteral:
		return n.Value, nil
	case *ast.GroupedExpression:
		return e.evalExpr(n.Inner, env)
	case *ast.VariableExpression:
		if v, ok := env.Get(n.Name); ok {
			return v, nil
		}
		return nil, unresolved(UnresolvedVariable, n.Name, env.Names())
	case *ast.UnaryExpression:
		v, err := e.evalExpr(n.Operand, env)
		if err != nil {
			return nil, err
		}
		if n.Op == ast.OpSub {
			return negate(v)
		}
		return v, nil
	case *ast.BinaryExpression:
		left, err := e.evalExpr(n.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := e.evalExpr(n.Right, env)
		if err != nil {
			return nil, err
		}
		return applyBinary(n.Op, left, right)
	case *ast.FunctionCall:
		return e.callFunction(n, env)
	}
	return nil, fmt.Errorf("unexpected expression %T", expr)
}

func negate(v any) (any, error) {
	if n, ok := asNumber(v); ok {
		return -n, nil
	}
	if img, ok := asImage(v); ok {
		return image.MulScalar(img, -1), nil
	}
	return nil, fmt.Errorf("cannot negate %s", formatValue(v))
}

// callFunction resolves a call: builtin first, then user function, then an
// unresolved function error naming the close matches.
func (e *Evaluator) callFunction(call *ast.FunctionCall, env *Environment) (any, error) {
	if builtin, ok := e.registry.Lookup(call.Name); ok {
		return e.callBuiltin(builtin, call, env)
	}
	if def, ok := e.functions[call.Name]; ok {
		return e.callUserFunction(def, call, env)
	}
	candidates := e.registry.Names()
	for name := range e.functions {
		candidates = append(candidates, name)
	}
	return nil, unresolved(UnresolvedFunction, call.Name, candidates)
}

func (e *Evaluator) callBuiltin(builtin *Builtin, call *ast.FunctionCall, env *Environment) (any, error) {
	memoKey := xxh3.HashString(call.String())
	if cached, ok := e.memo[memoKey]; ok {
		return copyForReuse(cached), nil
	}
	args, err := e.builtinArgs(builtin, call, env)
	if err == nil {
		err = builtin.ValidateNamed(args)
	}
	var result any
	if err == nil {
		result, err = e.invokeBuiltin(builtin, args, env)
	}
	if err != nil {
		if e.collecting {
			// Collection only needs the tree to stay walkable.
			return image.Empty(), nil
		}
		return nil, err
	}
	e.memo[memoKey] = result
	return result, nil
}

// invokeBuiltin runs the implementation, broadcasting over a list supplied
// for the conventional img parameter.
func (e *Evaluator) invokeBuiltin(builtin *Builtin, args map[string]any, env *Environment) (any, error) {
	ctx := &CallContext{Evaluator: e, Function: builtin.Name, Env: env}
	if len(builtin.Params) > 0 && builtin.Params[0].Name == "img" {
		if list, ok := asList(args["img"]); ok {
			out := make([]any, len(list))
			for i, item := range list {
				itemArgs := make(map[string]any, len(args))
				for k, v := range args {
					itemArgs[k] = v
				}
				itemArgs["img"] = item
				v, err := builtin.Impl(ctx, itemArgs)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}
	}
	return builtin.Impl(ctx, args)
}

// builtinArgs evaluates the call's arguments and maps them onto the
// contract: named arguments bind by name, positional ones fill the
// remaining parameters in declaration order.
func (e *Evaluator) builtinArgs(builtin *Builtin, call *ast.FunctionCall, env *Environment) (map[string]any, error) {
	var positional []any
	named := map[string]any{}
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
	if len(named) == 0 {
		return builtin.MapPositional(positional)
	}
	if builtin.Spread {
		named["list"] = positional
		return named, nil
	}
	i := 0
	for _, p := range builtin.Params {
		if _, ok := named[p.Name]; ok {
			continue
		}
		if i < len(positional) {
			named[p.Name] = positional[i]
			i++
		}
	}
	if i < len(positional) {
		return nil, &ValidationError{Function: builtin.Name, Reason: "too many positional arguments"}
	}
	return named, nil
}

// imageAtShift records the shift and returns the corresponding input image.
// During collection, and when no supplier is wired, the image is an empty
// placeholder that arithmetic propagates without computing pixels.
func (e *Evaluator) imageAtShift(shift float64) (*image.Image, error) {
	e.shifts[shift] = true
	if e.collecting || e.supplier == nil {
		return image.Empty(), nil
	}
	if img, ok := e.images[shift]; ok {
		return img, nil
	}
	img, err := e.supplier(shift)
	if err != nil {
		return nil, err
	}
	e.images[shift] = img
	return img, nil
}

// foreignCall routes a guest script through the persistent bridge context
// of this run. Collection skips guest execution entirely.
func (e *Evaluator) foreignCall(source string, env *Environment) (any, error) {
	if e.collecting {
		return nil, nil
	}
	ctx := e.contexts.GetOrCreate(e.runID)
	return ctx.Execute(source, env.Snapshot())
}

// copyForReuse guards memoized images from in-place modification by later
// statements.
func copyForReuse(v any) any {
	switch t := v.(type) {
	case *image.Image:
		return t.Copy()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyForReuse(item)
		}
		return out
	default:
		return v
	}
}
