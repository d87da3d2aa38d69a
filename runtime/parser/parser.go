package parser

import (
	"github.com/rs/zerolog"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/runtime/lexer"
)

// ParserOpt configures a parse
type ParserOpt func(*parser)

// WithLogger routes parser diagnostics to logger (debug level only).
func WithLogger(logger zerolog.Logger) ParserOpt {
	return func(p *parser) {
		p.logger = logger
	}
}

// Parse lexes and parses source into a program.
// The first lexical or syntactic problem is returned; there is no recovery.
func Parse(source []byte, opts ...ParserOpt) (*ast.Program, error) {
	p := newParser(nil, opts)
	tokens, err := lexer.NewLexer(lexer.WithLogger(p.logger)).Tokenize(source)
	if err != nil {
		return nil, err
	}
	p.tokens = tokens
	return p.program()
}

// ParseString is a convenience wrapper for tests
func ParseString(input string, opts ...ParserOpt) (*ast.Program, error) {
	return Parse([]byte(input), opts...)
}

// ParseTokens parses pre-lexed tokens. The slice must end with EOF.
func ParseTokens(tokens []lexer.Token, opts ...ParserOpt) (*ast.Program, error) {
	invariant.Precondition(len(tokens) > 0 && tokens[len(tokens)-1].Type == lexer.EOF,
		"token stream must end with EOF")
	return newParser(tokens, opts).program()
}

type parser struct {
	tokens []lexer.Token
	pos    int
	logger zerolog.Logger
}

func newParser(tokens []lexer.Token, opts []ParserOpt) *parser {
	p := &parser{tokens: tokens, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// program parses Statement* EOF
func (p *parser) program() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.at(lexer.EOF) {
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}

	p.logger.Debug().
		Int("statements", len(prog.Statements)).
		Msg("parsed script")

	return prog, nil
}

// statement parses one statement and an optional trailing ';'
func (p *parser) statement() (ast.Statement, error) {
	var (
		stmt ast.Statement
		err  error
	)

	switch p.current().Type {
	case lexer.LET:
		stmt, err = p.letStmt()
	case lexer.FOR:
		stmt, err = p.forStmt()
	case lexer.REMOTE_DELIM:
		stmt, err = p.remoteBlock()
	case lexer.REMOTE_LINE:
		tok := p.advance()
		stmt = &ast.RemoteBlock{
			Lines: []ast.RemoteLine{remoteLine(tok)},
			Pos:   position(tok),
		}
	case lexer.IDENTIFIER:
		if p.peek().Type != lexer.LPAREN {
			name := p.current().Text
			p.advance()
			return nil, p.errorExpected("'(' to call " + name)
		}
		var call *ast.FunctionCall
		call, err = p.call()
		if err == nil {
			stmt = &ast.ExpressionStatement{Call: call}
		}
	default:
		return nil, p.errorExpected("a statement")
	}
	if err != nil {
		return nil, err
	}

	if p.at(lexer.SEMICOLON) {
		p.advance()
	}
	return stmt, nil
}

// letStmt parses 'let' IDENT '=' Expr
func (p *parser) letStmt() (*ast.LetStatement, error) {
	letTok := p.advance()

	name, err := p.expect(lexer.IDENTIFIER, "a variable name after 'let'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.EQUALS, "'=' after 'let "+name.Text+"'"); err != nil {
		return nil, err
	}

	value, err := p.expression()
	if err != nil {
		return nil, err
	}

	return &ast.LetStatement{Name: name.Text, Value: value, Pos: position(letTok)}, nil
}

// forStmt parses 'for' IDENT 'in' Expr '{' Statement* '}'
func (p *parser) forStmt() (*ast.ForLoop, error) {
	forTok := p.advance()

	name, err := p.expect(lexer.IDENTIFIER, "a loop variable after 'for'")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.IN, "'in' after 'for "+name.Text+"'"); err != nil {
		return nil, err
	}

	iterable, err := p.expression()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.LBRACE, "'{' to start the loop body"); err != nil {
		return nil, err
	}

	var body []ast.Statement
	for !p.at(lexer.RBRACE) {
		if p.at(lexer.EOF) {
			return nil, p.errorExpected("'}' to close the loop body")
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	p.advance()

	return &ast.ForLoop{Var: name.Text, Iterable: iterable, Body: body, Pos: position(forTok)}, nil
}

// remoteBlock parses REMOTE_DELIM REMOTE_LINE* REMOTE_DELIM
func (p *parser) remoteBlock() (*ast.RemoteBlock, error) {
	open := p.advance()
	block := &ast.RemoteBlock{Pos: position(open)}

	for p.at(lexer.REMOTE_LINE) {
		block.Lines = append(block.Lines, remoteLine(p.advance()))
	}

	if _, err := p.expect(lexer.REMOTE_DELIM, "'+' to close the remote block"); err != nil {
		return nil, err
	}
	return block, nil
}

// call parses IDENT '(' [Expr (',' Expr)*] ')'
func (p *parser) call() (*ast.FunctionCall, error) {
	name := p.advance()
	p.advance() // (

	call := &ast.FunctionCall{Name: name.Text, Pos: position(name)}
	if p.at(lexer.RPAREN) {
		p.advance()
		return call, nil
	}

	for {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		if p.at(lexer.COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expect(lexer.RPAREN, "',' or ')' in the arguments of "+name.Text); err != nil {
			return nil, err
		}
		return call, nil
	}
}

// expression parses STRING | HEREDOC | ArrayLit | VARIABLE | IDENT | Call
func (p *parser) expression() (ast.Expression, error) {
	tok := p.current()

	switch tok.Type {
	case lexer.STRING:
		p.advance()
		return &ast.StringLiteral{Value: tok.Text, Pos: position(tok)}, nil
	case lexer.HEREDOC:
		p.advance()
		return &ast.Heredoc{Tag: tok.Tag, Body: tok.Text, Pos: position(tok)}, nil
	case lexer.VARIABLE:
		p.advance()
		return &ast.VariableRef{Name: tok.Text, Pos: position(tok)}, nil
	case lexer.LSQUARE:
		return p.arrayLiteral()
	case lexer.IDENTIFIER:
		if p.peek().Type == lexer.LPAREN {
			return p.call()
		}
		p.advance()
		return &ast.VariableRef{Name: tok.Text, Bare: true, Pos: position(tok)}, nil
	default:
		return nil, p.errorExpected("an expression")
	}
}

// arrayLiteral parses '[' [STRING (',' STRING)*] ']'
func (p *parser) arrayLiteral() (*ast.ArrayLiteral, error) {
	open := p.advance()
	arr := &ast.ArrayLiteral{Pos: position(open)}

	if p.at(lexer.RSQUARE) {
		p.advance()
		return arr, nil
	}

	for {
		elem, err := p.expect(lexer.STRING, "a string literal in the array")
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, &ast.StringLiteral{Value: elem.Text, Pos: position(elem)})

		if p.at(lexer.COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expect(lexer.RSQUARE, "',' or ']' in the array"); err != nil {
			return nil, err
		}
		return arr, nil
	}
}

// at checks if current token is of given type
func (p *parser) at(typ lexer.TokenType) bool {
	return p.current().Type == typ
}

// current returns the current token
func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

// peek returns the token after the current one
func (p *parser) peek() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+1]
}

// advance consumes the current token and returns it
func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes a token of the given type or reports what was found instead
func (p *parser) expect(typ lexer.TokenType, expected string) (lexer.Token, error) {
	if !p.at(typ) {
		return lexer.Token{}, p.errorExpected(expected)
	}
	return p.advance(), nil
}

func (p *parser) errorExpected(expected string) error {
	tok := p.current()
	return errors.NewParseError(tok.Position.Line, expected, tok.Describe()).At(tok.Position.Column)
}

func position(tok lexer.Token) ast.Position {
	return ast.Position{Line: tok.Position.Line, Column: tok.Position.Column}
}

func remoteLine(tok lexer.Token) ast.RemoteLine {
	return ast.RemoteLine{Text: tok.Text, Pos: position(tok)}
}
