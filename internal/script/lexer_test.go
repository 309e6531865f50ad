package script

import (
	"testing"

	"github.com/danmuck/uspctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairs(toks []Token) [][2]string {
	out := make([][2]string, 0, len(toks))
	for _, tok := range toks {
		if tok.Kind == TokenPair {
			out = append(out, [2]string{tok.Key, tok.Value})
		}
	}
	return out
}

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tok.Kind)
	}
	return out
}

func TestLexEmptyLine(t *testing.T) {
	testlog.Start(t)

	for _, line := range []string{"", "\n", "\r\n", "   "} {
		lexed := Lex(line)
		assert.Empty(t, lexed.Tokens, "line %q", line)
		assert.Empty(t, lexed.Diagnostics, "line %q", line)
	}
}

func TestLexPairsSpaceAndEndOfLineFlushIdentically(t *testing.T) {
	testlog.Start(t)

	spaced := Lex("msg_type:Get param_paths:Device. ")
	eol := Lex("msg_type:Get param_paths:Device.\n")

	want := [][2]string{{"msg_type", "Get"}, {"param_paths", "Device."}}
	assert.Equal(t, want, pairs(spaced.Tokens))
	assert.Equal(t, want, pairs(eol.Tokens))
}

func TestLexQuotedValueKeepsStructuralCharacters(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`value:"a b:{c}" next:x`)
	assert.Equal(t, [][2]string{{"value", "a b:{c}"}, {"next", "x"}}, pairs(lexed.Tokens))
}

func TestLexEscapeInsideQuotes(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`param_paths:"Device.\"X\".Value"`)
	require.Len(t, lexed.Tokens, 1)
	assert.Equal(t, `Device."X".Value`, lexed.Tokens[0].Value)

	lexed = Lex(`v:"back\\slash"`)
	require.Len(t, lexed.Tokens, 1)
	assert.Equal(t, `back\slash`, lexed.Tokens[0].Value)
}

func TestLexBackslashOutsideQuotesIsLiteral(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`v:a\b`)
	require.Len(t, lexed.Tokens, 1)
	assert.Equal(t, `a\b`, lexed.Tokens[0].Value)
}

func TestLexSecondColonIsLiteral(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`value:http://example.com:8080/x`)
	assert.Equal(t, [][2]string{{"value", "http://example.com:8080/x"}}, pairs(lexed.Tokens))
}

func TestLexEmptyValueKept(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`command_key: value:""`)
	assert.Equal(t, [][2]string{{"command_key", ""}, {"value", ""}}, pairs(lexed.Tokens))
	for _, tok := range lexed.Tokens {
		assert.True(t, tok.HasValue)
	}
}

func TestLexDanglingKeyDroppedOnSpaceAndEndOfLine(t *testing.T) {
	testlog.Start(t)

	for _, line := range []string{"a:1 stray b:2", "a:1 b:2 stray"} {
		lexed := Lex(line)
		assert.Equal(t, [][2]string{{"a", "1"}, {"b", "2"}}, pairs(lexed.Tokens), line)
		require.Len(t, lexed.Diagnostics, 1, line)
		assert.Equal(t, "stray", lexed.Diagnostics[0].Key)
		assert.Equal(t, reasonDanglingKey, lexed.Diagnostics[0].Reason)
	}
}

func TestLexUnterminatedQuoteIsPermissive(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`param_paths:"Device.Open path`)
	require.Len(t, lexed.Tokens, 1)
	assert.Equal(t, "Device.Open path", lexed.Tokens[0].Value)
	require.Len(t, lexed.Diagnostics, 1)
	assert.Equal(t, reasonUnterminatedQuote, lexed.Diagnostics[0].Reason)
}

func TestLexGroups(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`create_objs:{obj_path:"Device.X." param:"Enable" value:"true"}`)
	assert.Equal(t, []TokenKind{TokenOpen, TokenPair, TokenPair, TokenPair, TokenClose}, kinds(lexed.Tokens))
	assert.Equal(t, "create_objs", lexed.Tokens[0].Key)
	assert.Equal(t, [][2]string{{"obj_path", "Device.X."}, {"param", "Enable"}, {"value", "true"}}, pairs(lexed.Tokens))
}

func TestLexNestedGroupsWithoutSpaces(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`update_objs:{obj_path:A param_settings:{param:P value:V}}`)
	assert.Equal(t,
		[]TokenKind{TokenOpen, TokenPair, TokenOpen, TokenPair, TokenPair, TokenClose, TokenClose},
		kinds(lexed.Tokens),
	)
	assert.Equal(t, "update_objs", lexed.Tokens[0].Key)
	assert.Equal(t, "param_settings", lexed.Tokens[2].Key)
}

func TestLexBraceAfterCompletePairIsAnonymous(t *testing.T) {
	testlog.Start(t)

	lexed := Lex(`a:b{c:d}`)
	assert.Equal(t, []TokenKind{TokenPair, TokenOpen, TokenPair, TokenClose}, kinds(lexed.Tokens))
	assert.Equal(t, "", lexed.Tokens[1].Key)
}
