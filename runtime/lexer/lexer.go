package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/seeed-sh/seeed/core/errors"
)

// ASCII character lookup tables for fast classification
var (
	isWhitespace [128]bool // Space, tab, carriage return, form feed
	isIdentStart [128]bool // a-z, A-Z, _
	isIdentPart  [128]bool // Ident start or 0-9
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f'
		isIdentStart[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isIdentPart[i] = isIdentStart[i] || ('0' <= ch && ch <= '9')
	}
}

// LexerOpt configures a Lexer
type LexerOpt func(*Lexer)

// WithLogger routes lexer diagnostics to logger (debug level only).
func WithLogger(logger zerolog.Logger) LexerOpt {
	return func(l *Lexer) {
		l.logger = logger
	}
}

// Lexer turns script text into tokens. The language is line oriented:
// remote block delimiters and '|' lines are recognised per line, heredocs
// consume whole lines, and everything else is scanned character by character.
type Lexer struct {
	lines  []string
	tokens []Token
	logger zerolog.Logger
}

// NewLexer creates a lexer with the given options
func NewLexer(opts ...LexerOpt) *Lexer {
	l := &Lexer{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tokenize is a convenience wrapper around NewLexer().Tokenize.
func Tokenize(source []byte) ([]Token, error) {
	return NewLexer().Tokenize(source)
}

// Tokenize lexes the whole source. The returned slice always ends with EOF.
// The first lexical problem aborts tokenization with a KindLex error.
func (l *Lexer) Tokenize(source []byte) ([]Token, error) {
	text := strings.TrimPrefix(string(source), "\ufeff")
	l.lines = strings.Split(text, "\n")
	l.tokens = make([]Token, 0, len(l.lines)*4)

	for i := 0; i < len(l.lines); i++ {
		raw := strings.TrimSuffix(l.lines[i], "\r")
		trimmed := strings.TrimSpace(raw)
		line := i + 1

		switch {
		case trimmed == "":
			continue
		case trimmed == "+":
			l.emit(REMOTE_DELIM, "+", line, strings.IndexByte(raw, '+')+1)
			end, err := l.remoteBlock(i+1, line)
			if err != nil {
				return nil, err
			}
			i = end
		case trimmed[0] == '|':
			l.emitRemoteLine(raw, line)
		default:
			end, err := l.scanLine(i, raw, 0)
			if err != nil {
				return nil, err
			}
			i = end
		}
	}

	l.emit(EOF, "", len(l.lines), 1)

	l.logger.Debug().
		Int("lines", len(l.lines)).
		Int("tokens", len(l.tokens)).
		Msg("lexed script")

	return l.tokens, nil
}

func (l *Lexer) emit(typ TokenType, text string, line, column int) {
	l.tokens = append(l.tokens, Token{
		Type:     typ,
		Text:     text,
		Position: Position{Line: line, Column: column},
	})
}

func (l *Lexer) emitRemoteLine(raw string, line int) {
	bar := strings.IndexByte(raw, '|')
	l.emit(REMOTE_LINE, raw[bar+1:], line, bar+1)
}

// remoteBlock lexes the interior of a '+' block starting at line index start.
// It returns the index of the closing '+' line.
func (l *Lexer) remoteBlock(start, openLine int) (int, error) {
	for j := start; j < len(l.lines); j++ {
		raw := strings.TrimSuffix(l.lines[j], "\r")
		trimmed := strings.TrimSpace(raw)
		line := j + 1

		switch {
		case trimmed == "":
			continue
		case trimmed == "+":
			l.emit(REMOTE_DELIM, "+", line, strings.IndexByte(raw, '+')+1)
			return j, nil
		case trimmed[0] == '|':
			l.emitRemoteLine(raw, line)
		default:
			return 0, errors.NewLexError(line,
				fmt.Sprintf("remote block line must start with '|' (or close the block with '+'), found %q", trimmed))
		}
	}
	return 0, errors.NewLexError(openLine, "remote block is never closed with a '+' line")
}

// scanLine tokenizes raw (the text of line index idx) from byte offset pos.
// It returns the index of the last line consumed, which differs from idx
// when a heredoc swallowed following lines.
func (l *Lexer) scanLine(idx int, raw string, pos int) (int, error) {
	line := idx + 1

	for pos < len(raw) {
		ch := raw[pos]
		col := pos + 1

		switch {
		case ch < 128 && isWhitespace[ch]:
			pos++

		case ch == '#':
			return idx, nil

		case ch == '"' || ch == '\'':
			end := strings.IndexByte(raw[pos+1:], ch)
			if end < 0 {
				return 0, errors.NewLexError(line, "unterminated string literal").At(col)
			}
			l.emit(STRING, raw[pos+1:pos+1+end], line, col)
			pos += end + 2

		case strings.HasPrefix(raw[pos:], "<<<"):
			return l.heredoc(idx, raw, pos)

		case ch == '$':
			name := scanIdent(raw, pos+1)
			if name == "" {
				return 0, errors.NewLexError(line, "expected a variable name after '$'").At(col)
			}
			l.emit(VARIABLE, name, line, col)
			pos += 1 + len(name)

		case ch < 128 && isIdentStart[ch]:
			word := scanIdent(raw, pos)
			typ := IDENTIFIER
			if kw, ok := Keywords[word]; ok {
				typ = kw
			}
			l.emit(typ, word, line, col)
			pos += len(word)

		default:
			if typ, ok := SingleCharTokens[ch]; ok {
				l.emit(typ, string(ch), line, col)
				pos++
				continue
			}
			r, _ := utf8.DecodeRuneInString(raw[pos:])
			return 0, errors.NewLexError(line, fmt.Sprintf("unexpected character %q", r)).At(col)
		}
	}
	return idx, nil
}

// heredoc consumes <<<TAG at raw[pos:] and every following line up to the one
// that is exactly TAG>>> (surrounding whitespace allowed). It returns the
// index of the closing line; lexing resumes on the line after it.
func (l *Lexer) heredoc(idx int, raw string, pos int) (int, error) {
	line := idx + 1
	tagStart := pos + 3
	tag := scanIdent(raw, tagStart)
	if tag == "" {
		return 0, errors.NewLexError(line, "expected a heredoc tag after '<<<'").At(pos + 1)
	}

	if rest := strings.TrimSpace(raw[tagStart+len(tag):]); rest != "" && !strings.HasPrefix(rest, "#") {
		return 0, errors.NewLexError(line, fmt.Sprintf("unexpected text %q after heredoc tag %s", rest, tag))
	}

	closeTag := tag + ">>>"
	var body strings.Builder
	for j := idx + 1; j < len(l.lines); j++ {
		if strings.TrimSpace(l.lines[j]) == closeTag {
			l.tokens = append(l.tokens, Token{
				Type:     HEREDOC,
				Text:     body.String(),
				Tag:      tag,
				Position: Position{Line: line, Column: pos + 1},
			})
			return j, nil
		}
		// Interior lines are kept byte for byte, including any '\r'.
		body.WriteString(l.lines[j])
		body.WriteByte('\n')
	}

	return 0, errors.NewLexError(line, fmt.Sprintf("heredoc <<<%s is never closed with %s", tag, closeTag))
}

func scanIdent(s string, start int) string {
	if start >= len(s) || s[start] >= 128 || !isIdentStart[s[start]] {
		return ""
	}
	end := start + 1
	for end < len(s) && s[end] < 128 && isIdentPart[s[end]] {
		end++
	}
	return s[start:end]
}
