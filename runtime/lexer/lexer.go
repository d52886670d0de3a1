package lexer

import (
	"unicode"
	"unicode/utf8"
)

// charClass lookup tables for the ASCII fast path.
var (
	isWhitespace [128]bool
	isDigit      [128]bool
	isIdentStart [128]bool
	isIdentPart  [128]bool
)

func init() {
	for _, ch := range []byte{' ', '\t', '\r', '\n'} {
		isWhitespace[ch] = true
	}
	for ch := byte('0'); ch <= '9'; ch++ {
		isDigit[ch] = true
		isIdentPart[ch] = true
	}
	for ch := byte('a'); ch <= 'z'; ch++ {
		isIdentStart[ch] = true
		isIdentPart[ch] = true
	}
	for ch := byte('A'); ch <= 'Z'; ch++ {
		isIdentStart[ch] = true
		isIdentPart[ch] = true
	}
	isIdentStart['_'] = true
	isIdentPart['_'] = true
}

// Lexer converts ImageMath script text into a token stream. It is a pure
// function of its input: no shared state survives between Init calls, so
// independent instances are safe to use concurrently.
type Lexer struct {
	input    []byte
	position int
	line     int
	column   int
}

// NewLexer creates a lexer for the given input.
func NewLexer(input []byte) *Lexer {
	l := &Lexer{}
	l.Init(input)
	return l
}

// Init resets the lexer with new input.
func (l *Lexer) Init(input []byte) {
	l.input = input
	l.position = 0
	l.line = 1
	l.column = 1
}

// GetTokens lexes the whole input, returning a finite token slice terminated
// by an EOF token. Comments are included in the stream; parsers filter them.
func (l *Lexer) GetTokens() []Token {
	tokens := make([]Token, 0, len(l.input)/4+8)
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.position >= len(l.input) {
		return Token{Type: EOF, Position: l.pos()}
	}

	start := l.pos()
	ch := l.input[l.position]

	// Identifier or keyword
	if ch < 128 && isIdentStart[ch] {
		return l.lexIdentifier(start)
	}
	if ch >= 128 {
		r, _ := utf8.DecodeRune(l.input[l.position:])
		if unicode.IsLetter(r) {
			return l.lexIdentifier(start)
		}
	}

	// Number (integer, float, leading-dot float)
	if ch < 128 && isDigit[ch] {
		return l.lexNumber(start)
	}
	if ch == '.' && l.position+1 < len(l.input) && l.input[l.position+1] < 128 && isDigit[l.input[l.position+1]] {
		return l.lexNumber(start)
	}

	// Strings
	if ch == '"' || ch == '\'' {
		return l.lexString(start, ch)
	}

	// Comments
	if ch == '#' {
		return l.lexLineComment(start, 1)
	}
	if ch == '/' && l.position+1 < len(l.input) {
		switch l.input[l.position+1] {
		case '/':
			return l.lexLineComment(start, 2)
		case '*':
			return l.lexBlockComment(start)
		}
	}

	if tokType, ok := SingleCharTokens[ch]; ok {
		l.advanceChar()
		return Token{Type: tokType, Text: l.input[start.Offset : start.Offset+1], Position: start}
	}
	if ch == '/' {
		l.advanceChar()
		return Token{Type: SLASH, Text: l.input[start.Offset : start.Offset+1], Position: start}
	}

	// Unrecognized character
	l.advanceChar()
	return Token{Type: ILLEGAL, Text: l.input[start.Offset:l.position], Position: start}
}

func (l *Lexer) pos() Position {
	return Position{Line: l.line, Column: l.column, Offset: l.position}
}

func (l *Lexer) skipWhitespace() {
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isWhitespace[ch] {
			return
		}
		l.advanceChar()
	}
}

func (l *Lexer) currentChar() byte {
	if l.position >= len(l.input) {
		return 0
	}
	return l.input[l.position]
}

// advanceChar moves to the next character, handling Unicode for position
// tracking only.
func (l *Lexer) advanceChar() {
	if l.position >= len(l.input) {
		return
	}
	ch := l.input[l.position]
	if ch < 128 {
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.position++
		return
	}
	_, size := utf8.DecodeRune(l.input[l.position:])
	if size <= 0 {
		size = 1
	}
	l.position += size
	l.column++
}

func (l *Lexer) lexIdentifier(start Position) Token {
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch < 128 {
			if !isIdentPart[ch] {
				break
			}
			l.advanceChar()
			continue
		}
		r, _ := utf8.DecodeRune(l.input[l.position:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.advanceChar()
	}
	text := l.input[start.Offset:l.position]
	tokType := IDENTIFIER
	if kw, ok := Keywords[string(text)]; ok {
		tokType = kw
	}
	return Token{Type: tokType, Text: text, Position: start}
}

// lexNumber tokenizes integer and float literals. Underscores may separate
// digit groups; a leading dot is accepted (.5).
func (l *Lexer) lexNumber(start Position) Token {
	if l.currentChar() == '.' {
		l.advanceChar()
		l.readDigits()
	} else {
		l.readDigits()
		if l.currentChar() == '.' {
			l.advanceChar()
			l.readDigits()
		}
	}
	return Token{Type: NUMBER, Text: l.input[start.Offset:l.position], Position: start}
}

func (l *Lexer) readDigits() {
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || (!isDigit[ch] && ch != '_') {
			return
		}
		l.advanceChar()
	}
}

// lexString tokenizes single, double and triple-quoted strings. The token
// text includes the delimiters; unquoting happens in the parser. Triple-quoted
// strings are raw and may span lines; single and double quoted strings
// support \\ and an escaped quote, and an unescaped newline leaves them
// unterminated.
func (l *Lexer) lexString(start Position, quote byte) Token {
	if l.position+2 < len(l.input) && l.input[l.position+1] == quote && l.input[l.position+2] == quote {
		return l.lexTripleString(start, quote)
	}
	l.advanceChar() // opening quote
	for l.position < len(l.input) {
		ch := l.currentChar()
		if ch == quote {
			l.advanceChar()
			return Token{Type: STRING, Text: l.input[start.Offset:l.position], Position: start}
		}
		if ch == '\\' && l.position+1 < len(l.input) {
			next := l.input[l.position+1]
			if next == '\\' || next == quote {
				l.advanceChar()
			}
			l.advanceChar()
			continue
		}
		if ch == '\n' {
			break
		}
		l.advanceChar()
	}
	return Token{
		Type:     ILLEGAL,
		Text:     l.input[start.Offset:l.position],
		Position: start,
		Err:      "unterminated string literal",
	}
}

func (l *Lexer) lexTripleString(start Position, quote byte) Token {
	l.advanceChar()
	l.advanceChar()
	l.advanceChar()
	for l.position < len(l.input) {
		if l.currentChar() == quote && l.position+2 < len(l.input) &&
			l.input[l.position+1] == quote && l.input[l.position+2] == quote {
			l.advanceChar()
			l.advanceChar()
			l.advanceChar()
			return Token{Type: STRING, Text: l.input[start.Offset:l.position], Position: start}
		}
		l.advanceChar()
	}
	return Token{
		Type:     ILLEGAL,
		Text:     l.input[start.Offset:l.position],
		Position: start,
		Err:      "unterminated string literal",
	}
}

func (l *Lexer) lexLineComment(start Position, markerLen int) Token {
	for i := 0; i < markerLen; i++ {
		l.advanceChar()
	}
	for l.position < len(l.input) && l.currentChar() != '\n' {
		l.advanceChar()
	}
	return Token{Type: COMMENT, Text: l.input[start.Offset:l.position], Position: start}
}

func (l *Lexer) lexBlockComment(start Position) Token {
	l.advanceChar() // '/'
	l.advanceChar() // '*'
	for l.position < len(l.input) {
		if l.currentChar() == '*' && l.position+1 < len(l.input) && l.input[l.position+1] == '/' {
			l.advanceChar()
			l.advanceChar()
			return Token{Type: COMMENT, Text: l.input[start.Offset:l.position], Position: start}
		}
		l.advanceChar()
	}
	return Token{
		Type:     ILLEGAL,
		Text:     l.input[start.Offset:l.position],
		Position: start,
		Err:      "unterminated block comment",
	}
}
