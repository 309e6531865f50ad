package script

import "strings"

// TokenKind classifies one lexer token.
type TokenKind int

const (
	TokenPair TokenKind = iota
	TokenOpen
	TokenClose
)

func (k TokenKind) String() string {
	switch k {
	case TokenPair:
		return "pair"
	case TokenOpen:
		return "open"
	case TokenClose:
		return "close"
	default:
		return "unknown"
	}
}

// Token is one key/value pair or group boundary from a script line.
//
// For TokenOpen, Key holds the key that preceded the brace (for example
// "create_objs"), or "" when the brace stood alone.
type Token struct {
	Kind  TokenKind
	Key   string
	Value string
	// HasValue is false for a bare word that never reached a ':' separator.
	HasValue bool
	// Pos is the byte offset where the token ended.
	Pos int
}

// Diagnostic is a non-fatal lexer or parser observation about a line.
type Diagnostic struct {
	Pos    int
	Key    string
	Reason string
}

func (d Diagnostic) String() string {
	if d.Key == "" {
		return d.Reason
	}
	return d.Reason + ": " + d.Key
}

const (
	reasonUnterminatedQuote = "unterminated quote"
	reasonDanglingKey       = "key without value"
	reasonUnrecognizedKey   = "unrecognized key"
	reasonUnbalancedClose   = "unbalanced '}'"
	reasonUnclosedGroup     = "unclosed '{'"
	reasonOrphanValue       = "value without param"
	reasonOrphanParam       = "param without value"
	reasonUnknownGroup      = "unrecognized group"
)

// Lexed is the token stream for one line plus any diagnostics.
type Lexed struct {
	Tokens      []Token
	Diagnostics []Diagnostic
}

type lexer struct {
	out Lexed

	key      strings.Builder
	value    strings.Builder
	inValue  bool
	pending  bool
	quoting  bool
	escaping bool
}

// Lex tokenizes one script line.
//
// Spaces, ':' and braces are structural only outside double quotes. Inside
// quotes a backslash makes the following character literal. End of line
// flushes the pending pair exactly like a space. An unterminated quote keeps
// the rest of the line as quoted content and records a diagnostic.
func Lex(line string) Lexed {
	line = strings.TrimRight(line, "\r\n")
	lx := &lexer{}
	for i := 0; i < len(line); i++ {
		c := line[i]
		if lx.escaping {
			lx.write(c)
			lx.escaping = false
			continue
		}
		if lx.quoting {
			switch c {
			case '\\':
				lx.escaping = true
				lx.pending = true
			case '"':
				lx.quoting = false
			default:
				lx.write(c)
			}
			continue
		}
		switch c {
		case '"':
			lx.quoting = true
			lx.pending = true
		case ' ':
			lx.flush(i)
		case ':':
			if lx.inValue {
				lx.write(c)
				continue
			}
			lx.inValue = true
			lx.pending = true
		case '{':
			lx.open(i)
		case '}':
			lx.flush(i)
			lx.out.Tokens = append(lx.out.Tokens, Token{Kind: TokenClose, Pos: i})
		default:
			lx.write(c)
		}
	}
	if lx.quoting {
		lx.out.Diagnostics = append(lx.out.Diagnostics, Diagnostic{Pos: len(line), Key: lx.key.String(), Reason: reasonUnterminatedQuote})
	}
	lx.flush(len(line))
	return lx.out
}

func (lx *lexer) write(c byte) {
	lx.pending = true
	if lx.inValue {
		lx.value.WriteByte(c)
		return
	}
	lx.key.WriteByte(c)
}

func (lx *lexer) reset() {
	lx.key.Reset()
	lx.value.Reset()
	lx.inValue = false
	lx.pending = false
}

// flush emits the pending pair, if any.
func (lx *lexer) flush(pos int) {
	if !lx.pending {
		lx.reset()
		return
	}
	if !lx.inValue {
		if k := lx.key.String(); k != "" {
			lx.out.Diagnostics = append(lx.out.Diagnostics, Diagnostic{Pos: pos, Key: k, Reason: reasonDanglingKey})
		}
		lx.reset()
		return
	}
	lx.out.Tokens = append(lx.out.Tokens, Token{
		Kind:     TokenPair,
		Key:      lx.key.String(),
		Value:    lx.value.String(),
		HasValue: true,
		Pos:      pos,
	})
	lx.reset()
}

// open emits a group-open marker. A pending "key:" with no value names the
// group; a pending complete pair is flushed first and the group is anonymous.
func (lx *lexer) open(pos int) {
	name := ""
	if lx.pending && lx.inValue && lx.value.Len() == 0 {
		name = lx.key.String()
		lx.reset()
	} else if lx.pending && !lx.inValue {
		name = lx.key.String()
		lx.reset()
	} else {
		lx.flush(pos)
	}
	lx.out.Tokens = append(lx.out.Tokens, Token{Kind: TokenOpen, Key: name, Pos: pos})
}
