package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Node represents any node in the AST.
type Node interface {
	String() string
	Position() Position
}

// Position represents source location information.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // Byte offset in source
}

// Script is the root of the AST for a single .math file. Nodes holds the
// document-ordered children: includes, function definitions, meta blocks and
// parameter declarations first, then sections. Order is significant: later
// assignments to the same variable win, and batch classification depends on
// section order.
type Script struct {
	Nodes []Node
	Pos   Position
}

func (s *Script) String() string {
	parts := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, "\n")
}

func (s *Script) Position() Position { return s.Pos }

// Includes returns the include nodes in document order.
func (s *Script) Includes() []*IncludeDef {
	var defs []*IncludeDef
	for _, n := range s.Nodes {
		if inc, ok := n.(*IncludeDef); ok {
			defs = append(defs, inc)
		}
	}
	return defs
}

// FunctionDefs returns the user function definitions in document order.
func (s *Script) FunctionDefs() []*FunctionDef {
	var defs []*FunctionDef
	for _, n := range s.Nodes {
		if def, ok := n.(*FunctionDef); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// MetaBlocks returns the meta declarations in document order.
func (s *Script) MetaBlocks() []*MetaBlock {
	var blocks []*MetaBlock
	for _, n := range s.Nodes {
		if b, ok := n.(*MetaBlock); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// ParameterDefs returns the top-level parameter declarations in document order.
func (s *Script) ParameterDefs() []*ParameterDef {
	var defs []*ParameterDef
	for _, n := range s.Nodes {
		if d, ok := n.(*ParameterDef); ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// Sections returns all sections in document order.
func (s *Script) Sections() []*Section {
	var sections []*Section
	for _, n := range s.Nodes {
		if sec, ok := n.(*Section); ok {
			sections = append(sections, sec)
		}
	}
	return sections
}

// SectionKind classifies sections by execution mode.
type SectionKind int

const (
	// Single sections execute exactly once per script run.
	Single SectionKind = iota
	// Batch sections execute once per batch item.
	Batch
)

func (k SectionKind) String() string {
	if k == Batch {
		return "batch"
	}
	return "single"
}

// BatchSectionName is the major header identifier that switches every
// following section into batch mode.
const BatchSectionName = "batch"

// FindSections returns the sections of the requested kind. The split is
// sticky: the first section whose header is major with the identifier
// "batch" and every section after it are batch, everything before is single.
// The classification is a derived view computed in one linear pass; section
// identity is never mutated.
func (s *Script) FindSections(kind SectionKind) []*Section {
	var out []*Section
	inBatch := false
	for _, sec := range s.Sections() {
		if sec.Header != nil && sec.Header.Major && sec.Header.Name == BatchSectionName {
			inBatch = true
		}
		if (kind == Batch) == inBatch {
			out = append(out, sec)
		}
	}
	return out
}

// Section is a named or anonymous block of assignments, executed in document
// order.
type Section struct {
	Header *SectionHeader // nil for the leading anonymous section
	Body   []*Assignment
	Pos    Position
}

func (s *Section) String() string {
	var sb strings.Builder
	if s.Header != nil {
		sb.WriteString(s.Header.String())
		sb.WriteByte('\n')
	}
	for _, a := range s.Body {
		sb.WriteString(a.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (s *Section) Position() Position { return s.Pos }

// Name returns the section name, or "" if the section is anonymous.
func (s *Section) Name() string {
	if s.Header == nil {
		return ""
	}
	return s.Header.Name
}

// SectionHeader is a [name] or [[name]] header. Major headers (double
// brackets) mark mode transitions.
type SectionHeader struct {
	Name  string
	Major bool
	Pos   Position
}

func (h *SectionHeader) String() string {
	if h.Major {
		return "[[" + h.Name + "]]"
	}
	return "[" + h.Name + "]"
}

func (h *SectionHeader) Position() Position { return h.Pos }

// Assignment binds an expression to an optional variable name. Anonymous
// assignments (bare expression statements) have an empty Variable. A nil
// Expr marks a statement that failed to parse but was recovered from.
type Assignment struct {
	Variable string
	Expr     Expression
	Pos      Position
}

func (a *Assignment) String() string {
	expr := "<error>"
	if a.Expr != nil {
		expr = a.Expr.String()
	}
	if a.Variable == "" {
		return expr
	}
	return a.Variable + " = " + expr
}

func (a *Assignment) Position() Position { return a.Pos }

// IsAnonymous reports whether the assignment has no target variable.
func (a *Assignment) IsAnonymous() bool { return a.Variable == "" }

// Expression represents any evaluable expression.
type Expression interface {
	Node
	isExpression()
}

// BinaryOp identifies a binary arithmetic operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return "?"
	}
}

// BinaryExpression is a left-associative binary operation.
type BinaryExpression struct {
	Op          BinaryOp
	Left, Right Expression
	Pos         Position
}

func (b *BinaryExpression) String() string {
	return b.Left.String() + " " + b.Op.String() + " " + b.Right.String()
}

func (b *BinaryExpression) Position() Position { return b.Pos }
func (b *BinaryExpression) isExpression()      {}

// UnaryExpression is a prefixed + or - expression.
type UnaryExpression struct {
	Op      BinaryOp // OpAdd or OpSub
	Operand Expression
	Pos     Position
}

func (u *UnaryExpression) String() string {
	return u.Op.String() + u.Operand.String()
}

func (u *UnaryExpression) Position() Position { return u.Pos }
func (u *UnaryExpression) isExpression()      {}

// VariableExpression references a variable by name.
type VariableExpression struct {
	Name string
	Pos  Position
}

func (v *VariableExpression) String() string    { return v.Name }
func (v *VariableExpression) Position() Position { return v.Pos }
func (v *VariableExpression) isExpression()      {}

// FunctionCall invokes a builtin or user-defined function. Arguments may mix
// positional and named forms freely.
type FunctionCall struct {
	Name string
	Args []Argument
	Pos  Position
}

func (f *FunctionCall) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

func (f *FunctionCall) Position() Position { return f.Pos }
func (f *FunctionCall) isExpression()      {}

// Argument is a positional or named (identifier: expression) call argument.
type Argument struct {
	Name  string // empty for positional arguments
	Value Expression
}

func (a Argument) String() string {
	if a.Name == "" {
		return a.Value.String()
	}
	return a.Name + ": " + a.Value.String()
}

// StringLiteral is a quoted string. Value holds the unquoted content.
type StringLiteral struct {
	Value string
	Pos   Position
}

// String quotes the value with the DSL's escape set: only backslash and the
// quote character are escaped, everything else (tabs included) passes
// through raw, matching what the lexer admits and the parser unquotes.
func (s *StringLiteral) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s.Value); i++ {
		c := s.Value[i]
		if c == '\\' || c == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

func (s *StringLiteral) Position() Position { return s.Pos }
func (s *StringLiteral) isExpression()      {}

// NumericalLiteral is a numeric literal. All numbers evaluate to float64.
type NumericalLiteral struct {
	Value float64
	Pos   Position
}

func (n *NumericalLiteral) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *NumericalLiteral) Position() Position { return n.Pos }
func (n *NumericalLiteral) isExpression()      {}

// GroupedExpression is a parenthesized expression.
type GroupedExpression struct {
	Inner Expression
	Pos   Position
}

func (g *GroupedExpression) String() string    { return "(" + g.Inner.String() + ")" }
func (g *GroupedExpression) Position() Position { return g.Pos }
func (g *GroupedExpression) isExpression()      {}

// FunctionDef is a [fun:name arg...] block with a body of assignments.
// Parameters bind by position at call time, each call getting a fresh local
// scope.
type FunctionDef struct {
	Name   string
	Params []string
	Body   []*Assignment
	Pos    Position
}

func (f *FunctionDef) String() string {
	var sb strings.Builder
	sb.WriteString("[fun:" + f.Name)
	for _, p := range f.Params {
		sb.WriteString(" " + p)
	}
	sb.WriteString("]\n")
	for _, a := range f.Body {
		sb.WriteString(a.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *FunctionDef) Position() Position { return f.Pos }

// IncludeDef is an [include "path"] directive. Resolution populates
// Substitutes with the included script's nodes; failure leaves Unresolved
// set, in which case inlining preserves the node unexpanded.
type IncludeDef struct {
	Path        string
	Unresolved  bool
	Substitutes []Node
	Pos         Position
}

func (i *IncludeDef) String() string {
	return fmt.Sprintf("[include %q]", i.Path)
}

func (i *IncludeDef) Position() Position { return i.Pos }

// IncludedNodes returns the nodes this include expands to. It is only
// meaningful after resolution.
func (i *IncludeDef) IncludedNodes() []Node { return i.Substitutes }

// MetaBlock is the declarative meta { ... } surface. It is never executed.
type MetaBlock struct {
	Object *ParameterObject
	Pos    Position
}

func (m *MetaBlock) String() string    { return "meta " + m.Object.String() }
func (m *MetaBlock) Position() Position { return m.Pos }

// ParameterDef is a top-level name { ... } parameter declaration.
type ParameterDef struct {
	Name   string
	Object *ParameterObject
	Pos    Position
}

func (p *ParameterDef) String() string    { return p.Name + " " + p.Object.String() }
func (p *ParameterDef) Position() Position { return p.Pos }

// ParameterObject is a brace-delimited property list.
type ParameterObject struct {
	Properties []*ParameterProperty
	Pos        Position
}

func (o *ParameterObject) String() string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, p := range o.Properties {
		sb.WriteString("  " + p.String() + "\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (o *ParameterObject) Position() Position { return o.Pos }

// Property returns the named property, or nil.
func (o *ParameterObject) Property(name string) *ParameterProperty {
	for _, p := range o.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// StringProperty returns the string rendering of a scalar property value.
func (o *ParameterObject) StringProperty(name string) (string, bool) {
	p := o.Property(name)
	if p == nil || p.Value == nil {
		return "", false
	}
	switch v := p.Value.(type) {
	case *StringLiteral:
		return v.Value, true
	case *NumericalLiteral:
		return v.String(), true
	case *VariableExpression:
		return v.Name, true
	default:
		return v.String(), true
	}
}

// NumberProperty returns a numeric property value, honoring unary minus.
func (o *ParameterObject) NumberProperty(name string) (float64, bool) {
	p := o.Property(name)
	if p == nil || p.Value == nil {
		return 0, false
	}
	switch v := p.Value.(type) {
	case *NumericalLiteral:
		return v.Value, true
	case *UnaryExpression:
		if lit, ok := v.Operand.(*NumericalLiteral); ok {
			if v.Op == OpSub {
				return -lit.Value, true
			}
			return lit.Value, true
		}
	}
	return 0, false
}

// ParameterProperty is a single name: value (or name { ... }) entry inside a
// ParameterObject. Exactly one of Value and Object is set.
type ParameterProperty struct {
	Name   string
	Value  Expression
	Object *ParameterObject
	Pos    Position
}

func (p *ParameterProperty) String() string {
	if p.Object != nil {
		return p.Name + " " + p.Object.String()
	}
	if p.Value == nil {
		return p.Name
	}
	return p.Name + ": " + p.Value.String()
}

func (p *ParameterProperty) Position() Position { return p.Pos }
