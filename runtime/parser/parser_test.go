package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/imagemath-lang/imagemath/core/ast"
)

func parseNoErrors(t *testing.T, source string) *ast.Script {
	t.Helper()
	script, errs := Parse(source)
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", ErrorList(errs))
	}
	return script
}

func firstExpr(t *testing.T, source string) ast.Expression {
	t.Helper()
	script := parseNoErrors(t, source)
	sections := script.Sections()
	if len(sections) == 0 || len(sections[0].Body) == 0 {
		t.Fatalf("no statement parsed from %q", source)
	}
	return sections[0].Body[0].Expr
}

func TestOperatorPrecedence(t *testing.T) {
	t.Run("multiplication binds tighter", func(t *testing.T) {
		expr := firstExpr(t, "x = 1 + 2 * 3")
		add, ok := expr.(*ast.BinaryExpression)
		if !ok || add.Op != ast.OpAdd {
			t.Fatalf("root = %T (%v), want addition", expr, expr)
		}
		if _, ok := add.Left.(*ast.NumericalLiteral); !ok {
			t.Errorf("left = %T, want literal", add.Left)
		}
		mul, ok := add.Right.(*ast.BinaryExpression)
		if !ok || mul.Op != ast.OpMul {
			t.Fatalf("right = %T, want multiplication", add.Right)
		}
	})

	t.Run("parentheses override", func(t *testing.T) {
		expr := firstExpr(t, "x = (1 + 2) * 3")
		mul, ok := expr.(*ast.BinaryExpression)
		if !ok || mul.Op != ast.OpMul {
			t.Fatalf("root = %T (%v), want multiplication", expr, expr)
		}
		group, ok := mul.Left.(*ast.GroupedExpression)
		if !ok {
			t.Fatalf("left = %T, want grouped expression", mul.Left)
		}
		add, ok := group.Inner.(*ast.BinaryExpression)
		if !ok || add.Op != ast.OpAdd {
			t.Fatalf("inner = %T, want addition", group.Inner)
		}
	})

	t.Run("left associative subtraction", func(t *testing.T) {
		expr := firstExpr(t, "x = 10 - 4 - 3")
		if got := expr.String(); got != "10 - 4 - 3" {
			t.Errorf("String() = %q", got)
		}
		outer, ok := expr.(*ast.BinaryExpression)
		if !ok || outer.Op != ast.OpSub {
			t.Fatalf("root = %T, want subtraction", expr)
		}
		if _, ok := outer.Left.(*ast.BinaryExpression); !ok {
			t.Errorf("left = %T, want nested subtraction", outer.Left)
		}
	})
}

func TestPrinterRoundTrip(t *testing.T) {
	sources := []string{
		"1 + 2 * 3",
		"(1 + 2) * 3",
		"img(5)",
		"img(ps: -7)",
		`concat("a", "b")`,
		"avg(img(1), img(2), x)",
		"-shift",
		"a * (b + continuum()) / 2",
	}
	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			first := firstExpr(t, "x = "+source)
			again := firstExpr(t, "x = "+first.String())
			if diff := cmp.Diff(first.String(), again.String()); diff != "" {
				t.Errorf("round trip mismatch (-first +again):\n%s", diff)
			}
		})
	}
}

func TestSectionHeaders(t *testing.T) {
	script := parseNoErrors(t, `
[prep]
a = img(0)
[[batch]]
b = a * 2
[outputs]
c = b
`)
	sections := script.Sections()
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}
	if sections[0].Name() != "prep" || sections[0].Header.Major {
		t.Errorf("section 0 = %q major=%v", sections[0].Name(), sections[0].Header.Major)
	}
	if sections[1].Name() != "batch" || !sections[1].Header.Major {
		t.Errorf("section 1 = %q major=%v", sections[1].Name(), sections[1].Header.Major)
	}
	batch := script.FindSections(ast.Batch)
	if len(batch) != 2 {
		t.Errorf("batch sections = %d, want 2", len(batch))
	}
}

func TestAnonymousLeadingSection(t *testing.T) {
	script := parseNoErrors(t, "a = 1\nb = a + 1")
	sections := script.Sections()
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Header != nil {
		t.Errorf("leading section should be anonymous")
	}
	if len(sections[0].Body) != 2 {
		t.Errorf("got %d assignments, want 2", len(sections[0].Body))
	}
}

func TestNamedAndPositionalArguments(t *testing.T) {
	expr := firstExpr(t, "x = crop(myimg, left: 0; top: 0, 100, 100)")
	call, ok := expr.(*ast.FunctionCall)
	if !ok {
		t.Fatalf("expr = %T, want call", expr)
	}
	var names []string
	for _, arg := range call.Args {
		names = append(names, arg.Name)
	}
	want := []string{"", "left", "top", "", ""}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("argument names mismatch (-want +got):\n%s", diff)
	}
}

func TestFunctionDef(t *testing.T) {
	script := parseNoErrors(t, `
[fun:enhance img strength]
tmp = img * strength
result = clahe(tmp, 8, 64, 1.2)

[outputs]
out = enhance(img(0), 1.5)
`)
	defs := script.FunctionDefs()
	if len(defs) != 1 {
		t.Fatalf("got %d function defs, want 1", len(defs))
	}
	def := defs[0]
	if def.Name != "enhance" {
		t.Errorf("name = %q", def.Name)
	}
	if diff := cmp.Diff([]string{"img", "strength"}, def.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if len(def.Body) != 2 {
		t.Errorf("body = %d assignments, want 2", len(def.Body))
	}
	if def.Body[1].Variable != "result" {
		t.Errorf("second assignment variable = %q", def.Body[1].Variable)
	}
}

func TestMetaAndParameterBlocks(t *testing.T) {
	script := parseNoErrors(t, `
meta {
    title { en: "Doppler"; fr: "Doppler FR" }
    author: "someone"
    requires: "2.5.0"
    outputs {
        doppler { title = "Doppler Image" }
    }
}

doppler_shift {
    type: number
    default: 5
    min: 0
    max: 10
}

[outputs]
doppler = img(doppler_shift)
`)
	blocks := script.MetaBlocks()
	if len(blocks) != 1 {
		t.Fatalf("got %d meta blocks, want 1", len(blocks))
	}
	title := blocks[0].Object.Property("title")
	if title == nil || title.Object == nil {
		t.Fatal("title property with nested object expected")
	}
	if v, ok := title.Object.StringProperty("en"); !ok || v != "Doppler" {
		t.Errorf("title.en = %q, %v", v, ok)
	}
	if v, ok := blocks[0].Object.StringProperty("requires"); !ok || v != "2.5.0" {
		t.Errorf("requires = %q, %v", v, ok)
	}

	defs := script.ParameterDefs()
	if len(defs) != 1 {
		t.Fatalf("got %d parameter defs, want 1", len(defs))
	}
	if defs[0].Name != "doppler_shift" {
		t.Errorf("parameter name = %q", defs[0].Name)
	}
	if v, ok := defs[0].Object.NumberProperty("default"); !ok || v != 5 {
		t.Errorf("default = %v, %v", v, ok)
	}
}

func TestDeclarationsOnlyBeforeSections(t *testing.T) {
	script, errs := Parse(`
gamma {
    type: number
    default: 1
}

[process]
misplaced {
    type: number
}
a = gamma * 2
`)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), ErrorList(errs))
	}
	if errs[0].Context != "declaration" {
		t.Errorf("error context = %q", errs[0].Context)
	}

	// Only the preamble declaration survives; the section still parses.
	defs := script.ParameterDefs()
	if len(defs) != 1 || defs[0].Name != "gamma" {
		t.Fatalf("parameter defs = %+v, want only gamma", defs)
	}
	sections := script.Sections()
	if len(sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(sections))
	}
	if len(sections[0].Body) != 1 {
		t.Errorf("section body = %d statements, want 1", len(sections[0].Body))
	}
}

func TestFaultTolerance(t *testing.T) {
	script, errs := Parse("a = * 2\nb = 2\nc = b + 1")
	if len(errs) == 0 {
		t.Fatal("expected parse errors")
	}
	sections := script.Sections()
	if len(sections) == 0 {
		t.Fatal("no section parsed")
	}
	var goodVars []string
	for _, a := range sections[0].Body {
		if a.Expr != nil {
			goodVars = append(goodVars, a.Variable)
		}
	}
	// Statements after the broken one still parse.
	if diff := cmp.Diff([]string{"b", "c"}, goodVars); diff != "" {
		t.Errorf("recovered statements mismatch (-want +got):\n%s", diff)
	}
	if errs[0].Position.Line != 1 {
		t.Errorf("error line = %d, want 1", errs[0].Position.Line)
	}
}

func TestParseErrorRendering(t *testing.T) {
	source := "a = * 2"
	_, errs := Parse(source)
	if len(errs) == 0 {
		t.Fatal("expected parse errors")
	}
	msg := errs[0].Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	snippet := errs[0].Snippet(source)
	if snippet == "" {
		t.Fatal("empty snippet")
	}
}

func TestUnresolvedIncludePreserved(t *testing.T) {
	script, _ := ParseAndInlineIncludes(`
[include "does_not_exist"]
[outputs]
a = img(0)
`, WithIncludeDir(t.TempDir()))
	includes := script.Includes()
	if len(includes) != 1 {
		t.Fatalf("got %d includes, want the unresolved one preserved", len(includes))
	}
	if !includes[0].Unresolved {
		t.Error("include should be marked unresolved")
	}
	if len(script.Sections()) != 1 {
		t.Errorf("sections = %d, want 1", len(script.Sections()))
	}
}

func TestIncludeResolutionAndInlining(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "functions.math")
	if err := os.WriteFile(lib, []byte("[fun:double img]\nresult = img * 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The .math extension is appended when the bare path does not exist.
	script, errs := ParseAndInlineIncludes(`
[include "functions"]
[outputs]
a = double(img(0))
`, WithIncludeDir(dir))
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", ErrorList(errs))
	}
	if len(script.Includes()) != 0 {
		t.Error("resolved include should be spliced away")
	}
	defs := script.FunctionDefs()
	if len(defs) != 1 || defs[0].Name != "double" {
		t.Fatalf("included function not inlined: %+v", defs)
	}
}

func TestIncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.math")
	b := filepath.Join(dir, "b.math")
	if err := os.WriteFile(a, []byte("[include \"b\"]\nx = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("[include \"a\"]\ny = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	script, errs := Parse("[include \"a\"]\nz = 3\n", WithIncludeDir(dir))
	foundCycle := false
	for _, e := range errs {
		if strings.Contains(e.Message, "include cycle") {
			foundCycle = true
		}
	}
	if !foundCycle {
		t.Error("expected a cycle error")
	}
	// Inlining still terminates and keeps the non-cyclic content.
	flat := InlineIncludes(script)
	if flat == nil {
		t.Fatal("inlining returned nil")
	}
}

func TestStringValueRoundTrip(t *testing.T) {
	values := []string{
		"plain",
		"tab\tseparated",
		`back\slash`,
		`quo"te`,
		"mix\t\\\"",
	}
	for _, value := range values {
		lit := &ast.StringLiteral{Value: value}
		expr := firstExpr(t, "x = "+lit.String())
		got, ok := expr.(*ast.StringLiteral)
		if !ok {
			t.Fatalf("printed %q reparsed as %T", lit.String(), expr)
		}
		// Printing and reparsing must preserve the value exactly, raw
		// control characters included.
		if got.Value != value {
			t.Errorf("round trip changed value: %q -> %q", value, got.Value)
		}
	}
}

func TestStringUnquoting(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`x = "plain"`, "plain"},
		{`x = 'single'`, "single"},
		{`x = "a\\b"`, `a\b`},
		{`x = "say \"hi\""`, `say "hi"`},
		{"x = \"\"\"raw \\n text\"\"\"", `raw \n text`},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			expr := firstExpr(t, tt.source)
			lit, ok := expr.(*ast.StringLiteral)
			if !ok {
				t.Fatalf("expr = %T, want string literal", expr)
			}
			if lit.Value != tt.want {
				t.Errorf("value = %q, want %q", lit.Value, tt.want)
			}
		})
	}
}
