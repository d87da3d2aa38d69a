package lexer

import "fmt"

// TokenType represents lexical tokens of a seeed script
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota

	// Keywords
	LET // let
	FOR // for
	IN  // in

	// Literals and content
	IDENTIFIER // variable and function names
	STRING     // "text" or 'text' (Text excludes quotes)
	HEREDOC    // <<<TAG ... TAG>>> (Text is the verbatim body)
	VARIABLE   // $name (Text excludes the sigil)

	// Punctuation
	EQUALS    // =
	COMMA     // ,
	SEMICOLON // ;
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	LSQUARE   // [
	RSQUARE   // ]

	// Remote blocks
	REMOTE_DELIM // a line holding only '+'
	REMOTE_LINE  // a '|' line (Text is everything after the '|')
)

// Token represents a lexical token
type Token struct {
	Type     TokenType
	Text     string
	Position Position
	// Tag is the heredoc delimiter; empty for every other token type.
	Tag string
}

// Position represents a position in the source code
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

// String returns the token text (for testing and debugging)
func (t Token) String() string {
	return t.Text
}

// Describe renders the token for "found ..." parse diagnostics.
func (t Token) Describe() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case IDENTIFIER:
		return fmt.Sprintf("identifier %q", t.Text)
	case STRING:
		return fmt.Sprintf("string %q", t.Text)
	case VARIABLE:
		return fmt.Sprintf("variable $%s", t.Text)
	case HEREDOC:
		return fmt.Sprintf("heredoc <<<%s", t.Tag)
	case REMOTE_LINE:
		return "remote line '|'"
	case REMOTE_DELIM:
		return "remote block delimiter '+'"
	case LET, FOR, IN:
		return fmt.Sprintf("keyword '%s'", t.Text)
	default:
		return fmt.Sprintf("'%s'", t.Text)
	}
}

// String returns a string representation of the token type
func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case LET:
		return "LET"
	case FOR:
		return "FOR"
	case IN:
		return "IN"
	case IDENTIFIER:
		return "IDENTIFIER"
	case STRING:
		return "STRING"
	case HEREDOC:
		return "HEREDOC"
	case VARIABLE:
		return "VARIABLE"
	case EQUALS:
		return "EQUALS"
	case COMMA:
		return "COMMA"
	case SEMICOLON:
		return "SEMICOLON"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	case LSQUARE:
		return "LSQUARE"
	case RSQUARE:
		return "RSQUARE"
	case REMOTE_DELIM:
		return "REMOTE_DELIM"
	case REMOTE_LINE:
		return "REMOTE_LINE"
	default:
		return "UNKNOWN"
	}
}

// Keywords maps string literals to their corresponding token types
var Keywords = map[string]TokenType{
	"let": LET,
	"for": FOR,
	"in":  IN,
}

// SingleCharTokens maps single characters to their token types
var SingleCharTokens = map[byte]TokenType{
	'=': EQUALS,
	',': COMMA,
	';': SEMICOLON,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LSQUARE,
	']': RSQUARE,
}
