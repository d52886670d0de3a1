package lexer

// TokenType identifies the lexical class of a token.
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals and identifiers
	IDENTIFIER // variable and function names
	NUMBER     // 123, 3.14, .5, 1_000
	STRING     // "text", 'text', """raw"""

	// Keywords
	FUN     // fun
	INCLUDE // include

	// Arithmetic operators
	PLUS  // +
	MINUS // -
	STAR  // *
	SLASH // /

	// Assignment
	EQUALS // =

	// Delimiters
	LBRACKET  // [
	RBRACKET  // ]
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	COMMA     // ,
	SEMICOLON // ;
	COLON     // :

	// Comments
	COMMENT // // ..., # ..., /* ... */
)

// String returns a readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case ILLEGAL:
		return "ILLEGAL"
	case IDENTIFIER:
		return "IDENTIFIER"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case FUN:
		return "FUN"
	case INCLUDE:
		return "INCLUDE"
	case PLUS:
		return "PLUS"
	case MINUS:
		return "MINUS"
	case STAR:
		return "STAR"
	case SLASH:
		return "SLASH"
	case EQUALS:
		return "EQUALS"
	case LBRACKET:
		return "LBRACKET"
	case RBRACKET:
		return "RBRACKET"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	case COMMA:
		return "COMMA"
	case SEMICOLON:
		return "SEMICOLON"
	case COLON:
		return "COLON"
	case COMMENT:
		return "COMMENT"
	default:
		return "UNKNOWN"
	}
}

// Position represents a position in the source code.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// Token represents a lexical token. Text slices the original input, so
// tokens are valid only as long as the source buffer is.
type Token struct {
	Type     TokenType
	Text     []byte
	Position Position
	// Err carries the diagnostic for ILLEGAL tokens produced by malformed
	// input, such as an unterminated string.
	Err string
}

// String returns the token text.
func (t Token) String() string {
	return string(t.Text)
}

// Keywords maps reserved identifiers to their token types.
var Keywords = map[string]TokenType{
	"fun":     FUN,
	"include": INCLUDE,
}

// SingleCharTokens maps single-character punctuation to token types.
var SingleCharTokens = map[byte]TokenType{
	'+': PLUS,
	'-': MINUS,
	'*': STAR,
	'=': EQUALS,
	'[': LBRACKET,
	']': RBRACKET,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	',': COMMA,
	';': SEMICOLON,
	':': COLON,
}
