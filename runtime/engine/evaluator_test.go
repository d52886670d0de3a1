package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/core/image"
	"github.com/imagemath-lang/imagemath/runtime/parser"
)

func parseScript(t *testing.T, source string) *ast.Script {
	t.Helper()
	script, errs := parser.Parse(source)
	require.Empty(t, errs, "script should parse cleanly")
	return script
}

// shiftSupplier returns a 2x2 image whose pixels all carry the shift value
// offset by 1000, so tests can tell which shift produced an image.
func shiftSupplier(shift float64) (*image.Image, error) {
	img := image.New(2, 2)
	for i := range img.Data {
		img.Data[i] = float32(1000 + shift)
	}
	return img, nil
}

func TestExecuteNumericScript(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
a = 2 + 3 * 4
b = (2 + 3) * 4
[outputs]
sum = a + b
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, []string{"sum"}, result.OutputOrder)
	assert.Equal(t, 34.0, result.Outputs["sum"])
}

func TestSectionsShareEnvironment(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[prep]
base = 10
[process]
doubled = base * 2
[outputs]
final = doubled + 1
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 21.0, result.Outputs["final"])
}

func TestStringConcatenation(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
label = "shift " + 1.5
combined = "a" + "b"
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, "shift 1.50", result.Outputs["label"])
	assert.Equal(t, "ab", result.Outputs["combined"])
}

func TestListArithmetic(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
joined = list(1, 2) + list(3)
removed = list(1, 2, 3) - list(2)
scaled = list(2, 3) * list(10, 10)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, result.Outputs["joined"])
	assert.Equal(t, []any{1.0, 3.0}, result.Outputs["removed"])
	assert.Equal(t, []any{20.0, 30.0}, result.Outputs["scaled"])
}

func TestImageArithmetic(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
sum = img(1) + img(2)
scaled = img(0) * 2
flipped = 3000 - img(0)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)

	sum, ok := result.Outputs["sum"].(*image.Image)
	require.True(t, ok)
	assert.InDelta(t, 2003.0, float64(sum.At(0, 0)), 1e-6)

	scaled := result.Outputs["scaled"].(*image.Image)
	assert.InDelta(t, 2000.0, float64(scaled.At(1, 1)), 1e-6)

	flipped := result.Outputs["flipped"].(*image.Image)
	assert.InDelta(t, 2000.0, float64(flipped.At(0, 1)), 1e-6)
}

func TestAnonymousOutputsGetGeneratedNames(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
named = 1
2 + 3
4 * 5
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	require.Len(t, result.OutputOrder, 3)
	assert.Equal(t, "named", result.OutputOrder[0])
	assert.Equal(t, 5.0, result.Outputs[result.OutputOrder[1]])
	assert.Equal(t, 20.0, result.Outputs[result.OutputOrder[2]])
	assert.Regexp(t, `^imagemath_\d+_0$`, result.OutputOrder[1])
	assert.Regexp(t, `^imagemath_\d+_1$`, result.OutputOrder[2])
}

func TestFirstAnonymousSectionIsOutputFallback(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, "answer = 42\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 42.0, result.Outputs["answer"])
}

func TestUnknownFunctionReported(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, "[outputs]\na = continum()\n")
	result := e.Execute(script, ast.Single)
	require.Len(t, result.Invalid, 1)

	var unres *UnresolvedError
	require.True(t, errors.As(result.Invalid[0].Err, &unres))
	assert.Equal(t, UnresolvedFunction, unres.Kind)
	assert.Contains(t, unres.Suggestions, "continuum")
}

func TestUnresolvedVariableSuggestion(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
doppler_shift = 7
[outputs]
a = doppler_shif + 1
`)
	result := e.Execute(script, ast.Single)
	require.Len(t, result.Invalid, 1)

	var unres *UnresolvedError
	require.True(t, errors.As(result.Invalid[0].Err, &unres))
	assert.Equal(t, UnresolvedVariable, unres.Kind)
	assert.Contains(t, unres.Suggestions, "doppler_shift")
}

func TestStatementFailureDoesNotStopRun(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
bad = missing_var * 2
good = 7
`)
	result := e.Execute(script, ast.Single)
	require.Len(t, result.Invalid, 1)
	assert.Equal(t, 7.0, result.Outputs["good"])
	_, hasBad := result.Outputs["bad"]
	assert.False(t, hasBad)
}

func TestUserFunctionResultVariable(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[fun:double x]
scrap = 999
result = x * 2

[outputs]
a = double(21)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 42.0, result.Outputs["a"])
	// Function locals never leak into script scope.
	_, leaked := e.GetVariable("scrap")
	assert.False(t, leaked)
}

func TestUserFunctionLastValueFallback(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[fun:addone x]
y = x + 1

[outputs]
a = addone(4)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 5.0, result.Outputs["a"])
}

func TestUserFunctionSeesScriptScope(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
factor = 10

[fun:scale x]
result = x * factor

[outputs]
a = scale(3)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 30.0, result.Outputs["a"])
}

func TestUserFunctionListBroadcast(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[fun:double x]
result = x * 2

[outputs]
a = double(list(1, 2, 3))
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, []any{2.0, 4.0, 6.0}, result.Outputs["a"])
}

func TestUserFunctionStrictArity(t *testing.T) {
	source := `
[fun:double x]
result = x * 2

[outputs]
a = double(1, 2)
`
	e := NewEvaluator()
	defer e.Dispose()
	result := e.Execute(parseScript(t, source), ast.Single)
	require.Len(t, result.Invalid, 1)
	assert.Contains(t, result.Invalid[0].Err.Error(), "expects 1")

	lenient := NewEvaluator(WithLenientArity())
	defer lenient.Dispose()
	result = lenient.Execute(parseScript(t, source), ast.Single)
	assert.Empty(t, result.Invalid)
	assert.Equal(t, 2.0, result.Outputs["a"])
}

func TestNamedArguments(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, "[outputs]\na = img(ps: 5)\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	img := result.Outputs["a"].(*image.Image)
	assert.InDelta(t, 1005.0, float64(img.At(0, 0)), 1e-6)
}

func TestBuiltinValidation(t *testing.T) {
	builtin := &Builtin{
		Name: "crop",
		Params: []Param{
			req("img", "image"),
			req("left"), req("top"), req("width"), req("height"),
		},
	}

	t.Run("missing required", func(t *testing.T) {
		err := builtin.ValidateNamed(map[string]any{"img": 1, "left": 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required arguments: height, top, width")
	})

	t.Run("unknown argument", func(t *testing.T) {
		err := builtin.ValidateNamed(map[string]any{
			"img": 1, "left": 2, "top": 3, "width": 4, "height": 5, "depth": 6,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown arguments: depth")
	})

	t.Run("arity message lists contract", func(t *testing.T) {
		_, err := builtin.MapPositional([]any{1, 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crop")
		assert.Contains(t, err.Error(), "left")
	})

	t.Run("optional params bracketed", func(t *testing.T) {
		stretch := &Builtin{
			Name:   "linear_stretch",
			Params: []Param{req("img"), opt("lo"), opt("hi")},
		}
		_, err := stretch.MapPositional([]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "[lo]")
	})

	t.Run("spread accepts anything", func(t *testing.T) {
		spread := &Builtin{Name: "list", Spread: true}
		named, err := spread.MapPositional([]any{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, []any{1, 2, 3}, named["list"])
	})
}

func TestShiftCollection(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	e.PutVariable("doppler_shift", 7.0)
	script := parseScript(t, `
[outputs]
red = img(-doppler_shift)
blue = img(doppler_shift)
ref = continuum()
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, []float64{-7, 0, 7}, result.Shifts)

	red := result.Outputs["red"].(*image.Image)
	assert.InDelta(t, 993.0, float64(red.At(0, 0)), 1e-6)
}

func TestCollectShiftsVisitsFunctionsAndBatch(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	e.PutVariable("shift", 3.0)
	script := parseScript(t, `
[fun:pair s]
result = img(s) + img(-s)

[prep]
a = pair(shift)
[[batch]]
b = img(12)
`)
	shifts := e.CollectShifts(script)
	assert.Equal(t, []float64{-3, 3, 12}, shifts)
}

func TestCollectShiftsSwallowsErrors(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
a = img(undefined_shift)
b = img(5)
`)
	shifts := e.CollectShifts(script)
	// The broken statement contributes nothing; the rest still collects.
	assert.Equal(t, []float64{5}, shifts)
}

func TestRangeBuiltin(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, "[outputs]\nimgs = range(-1, 1)\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, []float64{-1, 0, 1}, result.Shifts)

	list, ok := result.Outputs["imgs"].([]any)
	require.True(t, ok)
	require.Len(t, list, 3)
	first := list[0].(*image.Image)
	assert.InDelta(t, 999.0, float64(first.At(0, 0)), 1e-6)
}

func TestFoldBuiltinsOnNumbers(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
a = avg(1, 2, 3)
b = min(5, 2, 9)
c = max(5, 2, 9)
d = median(3, 1, 2)
e = avg(list(2, 4), 6)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 2.0, result.Outputs["a"])
	assert.Equal(t, 2.0, result.Outputs["b"])
	assert.Equal(t, 9.0, result.Outputs["c"])
	assert.Equal(t, 2.0, result.Outputs["d"])
	assert.Equal(t, 4.0, result.Outputs["e"])
}

func TestGetAtBuiltin(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
items = list(10, 20, 30)
[outputs]
a = get_at(items, 1)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 20.0, result.Outputs["a"])

	bad := parseScript(t, "[outputs]\na = get_at(list(1), 5)\n")
	result = e.Execute(bad, ast.Single)
	require.Len(t, result.Invalid, 1)
}

func TestImgBroadcastOverList(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, "[outputs]\na = invert(list(img(0), img(1)))\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	list, ok := result.Outputs["a"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestClaheParameterValidation(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, "[outputs]\na = clahe(img(0), 4, 32, 1.1)\n")
	result := e.Execute(script, ast.Single)
	require.Len(t, result.Invalid, 1)

	var verr *ValidationError
	require.True(t, errors.As(result.Invalid[0].Err, &verr))
	assert.Equal(t, "clahe", verr.Function)
	assert.Equal(t, "bins", verr.Argument)
}

func TestExecuteBatch(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[[batch]]
doubled = value * 2
`)
	result := e.ExecuteBatch(script, []map[string]any{
		{"value": 1.0},
		{"value": 2.0},
		{"value": 3.0},
	})
	require.Empty(t, result.Invalid)
	assert.Equal(t, []string{"doubled"}, result.OutputOrder)
	assert.Equal(t, []any{2.0, 4.0, 6.0}, result.Outputs["doubled"])
}

func TestExecuteBatchSingleItem(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, "[[batch]]\ndoubled = value * 2\n")
	result := e.ExecuteBatch(script, []map[string]any{{"value": 5.0}})
	require.Empty(t, result.Invalid)
	assert.Equal(t, 10.0, result.Outputs["doubled"])
}

func TestExecuteSkipsBatchSections(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
a = 1
[[batch]]
b = missing * 2
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 1.0, result.Outputs["a"])
	_, hasB := result.Outputs["b"]
	assert.False(t, hasB)
}

func TestForeignExpression(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
[outputs]
a = expr("2 + 3")
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 5.0, result.Outputs["a"])
}

func TestForeignExpressionSeesHostVariables(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	script := parseScript(t, `
base = 20
[outputs]
a = expr("base + 2")
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 22.0, result.Outputs["a"])
}

func TestUnaryMinus(t *testing.T) {
	e := NewEvaluator(WithImageSupplier(shiftSupplier))
	defer e.Dispose()
	script := parseScript(t, `
x = 5
[outputs]
a = -x
b = -img(0)
`)
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, -5.0, result.Outputs["a"])
	img := result.Outputs["b"].(*image.Image)
	assert.InDelta(t, -1000.0, float64(img.At(0, 0)), 1e-6)
}

func TestPutVariableSeedsParameters(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	e.PutVariable("gamma", 2.5)
	script := parseScript(t, "[outputs]\na = gamma * 2\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 5.0, result.Outputs["a"])
}

func TestRegisterCustomBuiltin(t *testing.T) {
	e := NewEvaluator()
	defer e.Dispose()
	e.Registry().Register(&Builtin{
		Name:   "triple",
		Params: []Param{req("x")},
		Impl: func(ctx *CallContext, args map[string]any) (any, error) {
			v, ok := asNumber(args["x"])
			if !ok {
				return nil, fmt.Errorf("not a number")
			}
			return v * 3, nil
		},
	})
	script := parseScript(t, "[outputs]\na = triple(7)\n")
	result := e.Execute(script, ast.Single)
	require.Empty(t, result.Invalid)
	assert.Equal(t, 21.0, result.Outputs["a"])
}
