package parser

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/imagemath-lang/imagemath/core/ast"
	"github.com/imagemath-lang/imagemath/runtime/lexer"
)

// Parser implements a fault-tolerant recursive descent parser for the
// ImageMath language. It trusts the lexer to have handled whitespace and
// tokenization, focusing purely on assembling the AST. Local syntax errors
// are collected and recovered from so that best-effort analyses (syntax
// highlighting, parameter extraction) work on partially typed input.
type Parser struct {
	source string
	tokens []lexer.Token
	pos    int

	errors []ParseError

	includeDir string
	logger     *slog.Logger

	// currentSection receives assignments until the next header closes it
	currentSection *ast.Section
}

// Option configures a Parser.
type Option func(*Parser)

// WithIncludeDir sets the directory against which include paths resolve.
func WithIncludeDir(dir string) Option {
	return func(p *Parser) { p.includeDir = dir }
}

// New creates a parser for the given source text.
func New(source string, opts ...Option) *Parser {
	logLevel := slog.LevelInfo
	if os.Getenv("IMAGEMATH_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))

	raw := lexer.NewLexer([]byte(source)).GetTokens()
	tokens := make([]lexer.Token, 0, len(raw))
	for _, tok := range raw {
		if tok.Type == lexer.COMMENT {
			continue
		}
		tokens = append(tokens, tok)
	}

	p := &Parser{
		source: source,
		tokens: tokens,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses the source into a Script and resolves its includes against
// the include directory. The returned script is always non-nil; the error
// slice holds every recovered syntax error in source order.
func Parse(source string, opts ...Option) (*ast.Script, []ParseError) {
	p := New(source, opts...)
	return p.Parse()
}

// ParseAndInlineIncludes parses, resolves and inlines includes, returning a
// flat script. Unresolved includes are preserved unexpanded.
func ParseAndInlineIncludes(source string, opts ...Option) (*ast.Script, []ParseError) {
	p := New(source, opts...)
	script, errs := p.Parse()
	return InlineIncludes(script), errs
}

// Parse runs the parser. See the package function of the same name.
func (p *Parser) Parse() (*ast.Script, []ParseError) {
	script := p.parseScript()
	p.resolveIncludes(script, map[string]bool{})
	return script, p.errors
}

// --- Main parsing logic ---

// parseScript is the top-level entry point.
// Script = { IncludeDef | FunctionDef | MetaBlock | ParameterDef | Section }
func (p *Parser) parseScript() *ast.Script {
	script := &ast.Script{}
	p.currentSection = nil

	for !p.isAtEnd() {
		tok := p.current()
		switch tok.Type {
		case lexer.LBRACKET:
			p.parseBracketed(script)
		case lexer.IDENTIFIER:
			if p.peek().Type == lexer.LBRACE {
				// Declarations belong to the preamble. Inside a section
				// the block is still consumed so the rest recovers, but
				// it is reported and dropped.
				if p.currentSection != nil {
					p.addError(ParseError{
						Position: tok.Position,
						Message:  fmt.Sprintf("declaration '%s' must appear before the first section", tok.String()),
						Context:  "declaration",
						Got:      tok.Type,
					})
					if tok.String() == "meta" {
						p.parseMetaBlock()
					} else {
						p.parseParameterDef()
					}
					continue
				}
				if tok.String() == "meta" {
					if block := p.parseMetaBlock(); block != nil {
						script.Nodes = append(script.Nodes, block)
					}
				} else if def := p.parseParameterDef(); def != nil {
					script.Nodes = append(script.Nodes, def)
				}
				continue
			}
			p.parseStatement(script)
		case lexer.NUMBER, lexer.STRING, lexer.LPAREN, lexer.MINUS, lexer.PLUS:
			p.parseStatement(script)
		case lexer.SEMICOLON:
			// Stray statement separators are tolerated
			p.advance()
		case lexer.ILLEGAL:
			p.addError(ParseError{
				Position: tok.Position,
				Message:  p.illegalMessage(tok),
				Context:  "top level",
				Got:      tok.Type,
			})
			p.advance()
		default:
			p.addError(ParseError{
				Position: tok.Position,
				Message:  fmt.Sprintf("unexpected token %s at top level", tok.Type),
				Context:  "top level",
				Got:      tok.Type,
			})
			p.advance()
		}
	}
	return script
}

func (p *Parser) illegalMessage(tok lexer.Token) string {
	if tok.Err != "" {
		return tok.Err
	}
	return fmt.Sprintf("unexpected character %q", tok.String())
}

// parseBracketed handles every '['-introduced construct: include directives,
// function definitions and section headers.
func (p *Parser) parseBracketed(script *ast.Script) {
	switch p.peek().Type {
	case lexer.INCLUDE:
		if inc := p.parseIncludeDef(); inc != nil {
			script.Nodes = append(script.Nodes, inc)
		}
	case lexer.FUN:
		if def := p.parseFunctionDef(); def != nil {
			script.Nodes = append(script.Nodes, def)
		}
	default:
		if header := p.parseSectionHeader(); header != nil {
			section := &ast.Section{Header: header, Pos: header.Pos}
			script.Nodes = append(script.Nodes, section)
			p.currentSection = section
		}
	}
}

// parseStatement parses one assignment (or bare expression) into the current
// section, opening an anonymous section if none is active.
func (p *Parser) parseStatement(script *ast.Script) {
	if p.currentSection == nil {
		section := &ast.Section{Pos: astPos(p.current().Position)}
		script.Nodes = append(script.Nodes, section)
		p.currentSection = section
	}
	assignment := p.parseAssignment()
	p.currentSection.Body = append(p.currentSection.Body, assignment)
}

// parseAssignment parses `variable = expression` or a bare expression.
// On expression failure the assignment is kept with a nil expression and the
// parser synchronizes to the next statement boundary.
func (p *Parser) parseAssignment() *ast.Assignment {
	pos := astPos(p.current().Position)
	variable := ""
	if p.current().Type == lexer.IDENTIFIER && p.peek().Type == lexer.EQUALS {
		variable = p.current().String()
		p.advance() // identifier
		p.advance() // '='
	}
	expr := p.parseExpression()
	if expr == nil {
		p.synchronize()
	}
	return &ast.Assignment{Variable: variable, Expr: expr, Pos: pos}
}

// synchronize skips tokens until a plausible statement boundary: the next
// section-ish bracket, a fresh `name =`, or end of input.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		switch p.current().Type {
		case lexer.LBRACKET, lexer.SEMICOLON:
			return
		case lexer.IDENTIFIER:
			if p.peek().Type == lexer.EQUALS || p.peek().Type == lexer.LBRACE {
				return
			}
		}
		p.advance()
	}
}

// parseSectionHeader parses `[name]`, `[[name]]` or `[]`.
func (p *Parser) parseSectionHeader() *ast.SectionHeader {
	pos := astPos(p.current().Position)
	p.expect(lexer.LBRACKET, "section header")
	header := &ast.SectionHeader{Pos: pos}
	if p.current().Type == lexer.LBRACKET {
		header.Major = true
		p.advance()
	}
	if p.current().Type == lexer.IDENTIFIER {
		header.Name = p.current().String()
		p.advance()
	}
	p.expect(lexer.RBRACKET, "section header")
	if header.Major {
		p.expect(lexer.RBRACKET, "section header")
	}
	return header
}

// parseIncludeDef parses `[include "path"]`.
func (p *Parser) parseIncludeDef() *ast.IncludeDef {
	pos := astPos(p.current().Position)
	p.expect(lexer.LBRACKET, "include directive")
	p.expect(lexer.INCLUDE, "include directive")
	tok := p.current()
	if tok.Type != lexer.STRING {
		p.addError(ParseError{
			Position:    tok.Position,
			Message:     "include path must be a string literal",
			Context:     "include directive",
			Got:         tok.Type,
			Suggestions: []string{`[include "functions"]`},
		})
		p.synchronize()
		return nil
	}
	path := unquote(tok.String())
	p.advance()
	p.expect(lexer.RBRACKET, "include directive")
	return &ast.IncludeDef{Path: path, Pos: pos}
}

// parseFunctionDef parses `[fun:name arg...]` followed by the body
// assignments. The body extends to the next bracketed construct.
func (p *Parser) parseFunctionDef() *ast.FunctionDef {
	pos := astPos(p.current().Position)
	p.expect(lexer.LBRACKET, "function definition")
	p.expect(lexer.FUN, "function definition")
	p.expect(lexer.COLON, "function definition")
	tok := p.current()
	if tok.Type != lexer.IDENTIFIER {
		p.addError(ParseError{
			Position:    tok.Position,
			Message:     "function definition requires a name",
			Context:     "function definition",
			Got:         tok.Type,
			Suggestions: []string{"[fun:double img]"},
		})
		p.synchronize()
		return nil
	}
	def := &ast.FunctionDef{Name: tok.String(), Pos: pos}
	p.advance()
	for p.current().Type == lexer.IDENTIFIER {
		def.Params = append(def.Params, p.current().String())
		p.advance()
	}
	p.expect(lexer.RBRACKET, "function definition")
	for !p.isAtEnd() && p.current().Type != lexer.LBRACKET {
		if p.current().Type == lexer.SEMICOLON {
			p.advance()
			continue
		}
		if p.current().Type == lexer.IDENTIFIER && p.peek().Type == lexer.LBRACE {
			// Parameter block: function body is over
			break
		}
		def.Body = append(def.Body, p.parseAssignment())
	}
	return def
}

// parseMetaBlock parses `meta { ... }`.
func (p *Parser) parseMetaBlock() *ast.MetaBlock {
	pos := astPos(p.current().Position)
	p.advance() // 'meta'
	obj := p.parseParameterObject()
	if obj == nil {
		return nil
	}
	return &ast.MetaBlock{Object: obj, Pos: pos}
}

// parseParameterDef parses a top-level `name { ... }` declaration.
func (p *Parser) parseParameterDef() *ast.ParameterDef {
	pos := astPos(p.current().Position)
	name := p.current().String()
	p.advance()
	obj := p.parseParameterObject()
	if obj == nil {
		return nil
	}
	return &ast.ParameterDef{Name: name, Object: obj, Pos: pos}
}

// parseParameterObject parses `{ name: value; nested { ... } ... }`.
// Property separators (';') are optional, and both ':' and '=' are accepted
// between a property name and its value.
func (p *Parser) parseParameterObject() *ast.ParameterObject {
	pos := astPos(p.current().Position)
	if !p.expect(lexer.LBRACE, "parameter block") {
		return nil
	}
	obj := &ast.ParameterObject{Pos: pos}
	for !p.isAtEnd() && p.current().Type != lexer.RBRACE {
		if p.current().Type == lexer.SEMICOLON {
			p.advance()
			continue
		}
		tok := p.current()
		if tok.Type != lexer.IDENTIFIER {
			p.addError(ParseError{
				Position: tok.Position,
				Message:  fmt.Sprintf("expected property name, got %s", tok.Type),
				Context:  "parameter block",
				Got:      tok.Type,
			})
			p.advance()
			continue
		}
		prop := &ast.ParameterProperty{Name: tok.String(), Pos: astPos(tok.Position)}
		p.advance()
		switch p.current().Type {
		case lexer.LBRACE:
			prop.Object = p.parseParameterObject()
		case lexer.COLON, lexer.EQUALS:
			p.advance()
			if p.current().Type == lexer.LBRACE {
				prop.Object = p.parseParameterObject()
			} else {
				prop.Value = p.parseExpression()
				if prop.Value == nil {
					p.synchronizeObject()
				}
			}
		default:
			p.addError(ParseError{
				Position:    p.current().Position,
				Message:     fmt.Sprintf("expected ':' or '{' after property %q", prop.Name),
				Context:     "parameter block",
				Got:         p.current().Type,
				Suggestions: []string{prop.Name + ": value"},
			})
			p.synchronizeObject()
		}
		obj.Properties = append(obj.Properties, prop)
	}
	p.expect(lexer.RBRACE, "parameter block")
	return obj
}

// synchronizeObject skips to the next property boundary inside an object.
func (p *Parser) synchronizeObject() {
	for !p.isAtEnd() {
		switch p.current().Type {
		case lexer.SEMICOLON, lexer.RBRACE:
			return
		case lexer.IDENTIFIER:
			if t := p.peek().Type; t == lexer.COLON || t == lexer.EQUALS || t == lexer.LBRACE {
				return
			}
		}
		p.advance()
	}
}

// --- Expressions ---

// parseExpression parses an expression with conventional precedence.
// Expression = Additive
func (p *Parser) parseExpression() ast.Expression {
	return p.parseAdditive()
}

// Additive = Multiplicative { ('+' | '-') Multiplicative }
func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	if left == nil {
		return nil
	}
	for {
		var op ast.BinaryOp
		switch p.current().Type {
		case lexer.PLUS:
			op = ast.OpAdd
		case lexer.MINUS:
			op = ast.OpSub
		default:
			return left
		}
		pos := astPos(p.current().Position)
		p.advance()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpression{Op: op, Left: left, Right: right, Pos: pos}
	}
}

// Multiplicative = Unary { ('*' | '/') Unary }
func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parseUnary()
	if left == nil {
		return nil
	}
	for {
		var op ast.BinaryOp
		switch p.current().Type {
		case lexer.STAR:
			op = ast.OpMul
		case lexer.SLASH:
			op = ast.OpDiv
		default:
			return left
		}
		pos := astPos(p.current().Position)
		p.advance()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = &ast.BinaryExpression{Op: op, Left: left, Right: right, Pos: pos}
	}
}

// Unary = [ '+' | '-' ] Primary
func (p *Parser) parseUnary() ast.Expression {
	tok := p.current()
	if tok.Type == lexer.MINUS || tok.Type == lexer.PLUS {
		op := ast.OpAdd
		if tok.Type == lexer.MINUS {
			op = ast.OpSub
		}
		p.advance()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpression{Op: op, Operand: operand, Pos: astPos(tok.Position)}
	}
	return p.parsePrimary()
}

// Primary = FunctionCall | StringLiteral | NumericalLiteral | Variable
//         | '(' Expression ')'
func (p *Parser) parsePrimary() ast.Expression {
	tok := p.current()
	switch tok.Type {
	case lexer.IDENTIFIER:
		if p.peek().Type == lexer.LPAREN {
			return p.parseFunctionCall()
		}
		p.advance()
		return &ast.VariableExpression{Name: tok.String(), Pos: astPos(tok.Position)}
	case lexer.NUMBER:
		p.advance()
		value, err := strconv.ParseFloat(strings.ReplaceAll(tok.String(), "_", ""), 64)
		if err != nil {
			p.addError(ParseError{
				Position: tok.Position,
				Message:  fmt.Sprintf("invalid number literal %q", tok.String()),
				Context:  "expression",
				Got:      tok.Type,
			})
			return nil
		}
		return &ast.NumericalLiteral{Value: value, Pos: astPos(tok.Position)}
	case lexer.STRING:
		p.advance()
		return &ast.StringLiteral{Value: unquote(tok.String()), Pos: astPos(tok.Position)}
	case lexer.LPAREN:
		p.advance()
		inner := p.parseExpression()
		if inner == nil {
			return nil
		}
		p.expect(lexer.RPAREN, "grouped expression")
		return &ast.GroupedExpression{Inner: inner, Pos: astPos(tok.Position)}
	default:
		p.addError(ParseError{
			Position: tok.Position,
			Message:  fmt.Sprintf("expected expression, got %s", tok.Type),
			Context:  "expression",
			Got:      tok.Type,
		})
		return nil
	}
}

// parseFunctionCall parses `name(arg, ...)`. Arguments separate with ','
// or ';' and may mix positional and named (`identifier: expression`) forms.
func (p *Parser) parseFunctionCall() ast.Expression {
	tok := p.current()
	call := &ast.FunctionCall{Name: tok.String(), Pos: astPos(tok.Position)}
	p.advance() // name
	p.advance() // '('
	for !p.isAtEnd() && p.current().Type != lexer.RPAREN {
		arg := ast.Argument{}
		if p.current().Type == lexer.IDENTIFIER && p.peek().Type == lexer.COLON {
			arg.Name = p.current().String()
			p.advance() // identifier
			p.advance() // ':'
		}
		arg.Value = p.parseExpression()
		if arg.Value == nil {
			p.synchronizeCall()
		} else {
			call.Args = append(call.Args, arg)
		}
		if t := p.current().Type; t == lexer.COMMA || t == lexer.SEMICOLON {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN, "function call arguments")
	return call
}

// synchronizeCall skips to the next argument separator or the closing paren.
func (p *Parser) synchronizeCall() {
	depth := 0
	for !p.isAtEnd() {
		switch p.current().Type {
		case lexer.LPAREN:
			depth++
		case lexer.RPAREN:
			if depth == 0 {
				return
			}
			depth--
		case lexer.COMMA, lexer.SEMICOLON:
			if depth == 0 {
				return
			}
		}
		p.advance()
	}
}

// --- Token helpers ---

func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *Parser) isAtEnd() bool {
	return p.current().Type == lexer.EOF
}

// expect consumes a token of the given type, recording an error if the
// current token does not match. Returns whether the token matched.
func (p *Parser) expect(tokType lexer.TokenType, context string) bool {
	tok := p.current()
	if tok.Type != tokType {
		p.addError(ParseError{
			Position: tok.Position,
			Message:  fmt.Sprintf("expected %s, got %s", tokType, tok.Type),
			Context:  context,
			Got:      tok.Type,
		})
		return false
	}
	p.advance()
	return true
}

func (p *Parser) addError(err ParseError) {
	p.logger.Debug("parse error", "line", err.Position.Line, "column", err.Position.Column, "message", err.Message)
	p.errors = append(p.errors, err)
}

func astPos(p lexer.Position) ast.Position {
	return ast.Position(p)
}

// unquote strips string delimiters and processes the escape sequences the
// lexer admits. Triple-quoted strings are raw apart from their delimiters.
func unquote(text string) string {
	if len(text) >= 6 {
		for _, q := range []string{`"""`, "'''"} {
			if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) {
				return text[3 : len(text)-3]
			}
		}
	}
	if len(text) < 2 {
		return text
	}
	quote := text[0]
	body := text[1 : len(text)-1]
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) && (body[i+1] == '\\' || body[i+1] == quote) {
			i++
		}
		sb.WriteByte(body[i])
	}
	return sb.String()
}
