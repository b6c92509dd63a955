package sql

type Token struct {
	Type  TokenType
	Value string
}

type TokenType int

const (
	// Text is any run of query text between placeholders.
	Text TokenType = iota
	// Named is a ":name" placeholder.
	Named
	// Positional is a "?" placeholder.
	Positional
	// Cast is the "::" type cast operator. It is never a placeholder.
	Cast
	EOF
)

func (tokenType TokenType) String() string {
	switch tokenType {
	case Text:
		return "Text"
	case Named:
		return "Named"
	case Positional:
		return "Positional"
	case Cast:
		return "Cast"
	case EOF:
		return "EOF"
	default:
		return "Unknown"
	}
}

func (token Token) String() string {
	switch token.Type {
	case Text:
		return "Text(" + token.Value + ")"
	case Named:
		return "Named(" + token.Value + ")"
	default:
		return token.Type.String()
	}
}

// IsPlaceholder reports whether the token stands in for a bound value.
func (token Token) IsPlaceholder() bool {
	return token.Type == Named || token.Type == Positional
}

// Lexer splits a query into placeholder and text tokens. It does not
// understand quoting: a colon followed by identifier characters inside a
// string literal is lexed as a named placeholder, exactly like the
// textual colon count the bind-by-name resolution has always relied on.
type Lexer struct {
	sql          string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(sql string) *Lexer {
	lexer := &Lexer{sql: sql}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	if lexer.readPosition >= len(lexer.sql) {
		lexer.ch = 0
	} else {
		lexer.ch = lexer.sql[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

func (lexer *Lexer) peekChar() byte {
	if lexer.readPosition >= len(lexer.sql) {
		return 0
	}
	return lexer.sql[lexer.readPosition]
}

func (lexer *Lexer) atEnd() bool {
	return lexer.position >= len(lexer.sql)
}

func (lexer *Lexer) NextToken() Token {
	if lexer.atEnd() {
		return Token{Type: EOF}
	}

	switch lexer.ch {
	case '?':
		lexer.readChar()
		return Token{Type: Positional, Value: "?"}
	case ':':
		next := lexer.peekChar()
		if next == ':' {
			lexer.readChar()
			lexer.readChar()
			return Token{Type: Cast, Value: "::"}
		}
		if isIdentifierChar(next) {
			position := lexer.position
			lexer.readChar() // skip ':'
			lexer.readIdentifier()
			return Token{Type: Named, Value: lexer.sql[position:lexer.position]}
		}
		lexer.readChar()
		return Token{Type: Text, Value: ":"}
	default:
		return Token{Type: Text, Value: lexer.readText()}
	}
}

func (lexer *Lexer) readIdentifier() string {
	position := lexer.position
	for !lexer.atEnd() && isIdentifierChar(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readText() string {
	position := lexer.position
	for !lexer.atEnd() && lexer.ch != '?' && lexer.ch != ':' {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func isIdentifierChar(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_' || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// tokenize returns every token of sql, without the trailing EOF.
func tokenize(sql string) []Token {
	lexer := NewLexer(sql)

	var tokens []Token

	for {
		token := lexer.NextToken()
		if token.Type == EOF {
			return tokens
		}
		tokens = append(tokens, token)
	}
}

// CountParams returns the number of placeholders in query.
func CountParams(query string) int {
	count := 0
	for _, token := range tokenize(query) {
		if token.IsPlaceholder() {
			count++
		}
	}
	return count
}

// Ordinal resolves a placeholder name to its 1-based ordinal: one more
// than the number of placeholders before the first occurrence of the
// name. The leading colon is optional. It returns 0 when the name does
// not occur.
func Ordinal(query string, name string) int {
	if name == "" {
		return 0
	}
	if name[0] != ':' {
		name = ":" + name
	}
	count := 0
	for _, token := range tokenize(query) {
		if !token.IsPlaceholder() {
			continue
		}
		count++
		if token.Type == Named && token.Value == name {
			return count
		}
	}
	return 0
}

// Names returns the named placeholders of query in order of appearance.
// Positional placeholders are reported as "?".
func Names(query string) []string {
	var names []string
	for _, token := range tokenize(query) {
		if token.IsPlaceholder() {
			names = append(names, token.Value)
		}
	}
	return names
}
