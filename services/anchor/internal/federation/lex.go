package federation

import (
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

const (
	whitespaceToken = iota
	lineCommentToken
	blockCommentToken
	literalToken
	chainToken
	anyToken
)

var whitespaceMatcher = parsly.NewToken(whitespaceToken, "Whitespace", matcher.NewWhiteSpace())
var lineCommentMatcher = parsly.NewToken(lineCommentToken, "LineComment", &lineCommentMatch{})
var blockCommentMatcher = parsly.NewToken(blockCommentToken, "BlockComment", matcher.NewSeqBlock("/*", "*/"))
var literalMatcher = parsly.NewToken(literalToken, "Literal", &literalMatch{})
var chainMatcher = parsly.NewToken(chainToken, "IdentifierChain", &chainMatch{})
var anyMatcher = parsly.NewToken(anyToken, "Any", &anyMatch{})

// lexeme is one token of query text with its byte span.
type lexeme struct {
	code  int
	start int
	end   int
	text  string
}

// segment is one part of a dotted identifier chain. Start and End are
// relative to the chain.
type segment struct {
	Name   string
	Quoted bool
	Start  int
	End    int
}

func (l lexeme) isByte(b byte) bool {
	return l.code == anyToken && len(l.text) == 1 && l.text[0] == b
}

// keyword returns the upper-cased word for a bare single identifier.
func (l lexeme) keyword() string {
	if l.code != chainToken || strings.ContainsAny(l.text, ".\"`") {
		return ""
	}
	return strings.ToUpper(l.text)
}

// tokenize splits query into lexemes. Concatenating every lexeme's text
// reproduces the input exactly.
func tokenize(query string) []lexeme {
	cursor := parsly.NewCursor("", []byte(query), 0)
	var out []lexeme
	for cursor.Pos < cursor.InputSize {
		start := cursor.Pos
		matched := cursor.MatchAny(whitespaceMatcher, lineCommentMatcher, blockCommentMatcher,
			literalMatcher, chainMatcher, anyMatcher)
		if matched.Code == parsly.EOF || matched.Code == parsly.Invalid || cursor.Pos <= start {
			// nothing matched; keep the remainder opaque
			out = append(out, lexeme{code: blockCommentToken, start: start, end: len(query), text: query[start:]})
			break
		}
		out = append(out, lexeme{code: matched.Code, start: start, end: cursor.Pos, text: query[start:cursor.Pos]})
	}
	return out
}

type anyMatch struct{}

func (a *anyMatch) Match(cursor *parsly.Cursor) int {
	if cursor.Pos < cursor.InputSize {
		return 1
	}
	return 0
}

type lineCommentMatch struct{}

func (m *lineCommentMatch) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	if pos+1 >= cursor.InputSize || input[pos] != '-' || input[pos+1] != '-' {
		return 0
	}
	end := pos + 2
	for end < cursor.InputSize && input[end] != '\n' {
		end++
	}
	return end - pos
}

// literalMatch matches a single-quoted string with '' escapes. An
// unterminated literal runs to the end of input.
type literalMatch struct{}

func (m *literalMatch) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	if pos >= cursor.InputSize || input[pos] != '\'' {
		return 0
	}
	end := pos + 1
	for end < cursor.InputSize {
		if input[end] == '\'' {
			if end+1 < cursor.InputSize && input[end+1] == '\'' {
				end += 2
				continue
			}
			return end + 1 - pos
		}
		end++
	}
	return end - pos
}

// chainMatch matches one or more identifier segments joined by dots, where a
// segment is a bare identifier or a "double" or `backtick` quoted one.
type chainMatch struct{}

func (m *chainMatch) Match(cursor *parsly.Cursor) int {
	input := cursor.Input[:cursor.InputSize]
	size := matchSegment(input, cursor.Pos)
	if size == 0 {
		return 0
	}
	end := cursor.Pos + size
	for end < len(input) && input[end] == '.' {
		next := matchSegment(input, end+1)
		if next == 0 {
			break
		}
		end += 1 + next
	}
	return end - cursor.Pos
}

func matchSegment(input []byte, pos int) int {
	if pos >= len(input) {
		return 0
	}
	b := input[pos]
	if b == '"' || b == '`' {
		end := pos + 1
		for end < len(input) {
			if input[end] == b {
				if end+1 < len(input) && input[end+1] == b {
					end += 2
					continue
				}
				return end + 1 - pos
			}
			end++
		}
		return 0
	}
	if !isIdentifierStart(b) {
		return 0
	}
	end := pos + 1
	for end < len(input) && isIdentifierPart(input[end]) {
		end++
	}
	return end - pos
}

func isIdentifierStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_' || b >= 0x80
}

func isIdentifierPart(b byte) bool {
	return isIdentifierStart(b) || (b >= '0' && b <= '9') || b == '$'
}

// splitChain breaks a matched chain into its segments, unquoting quoted
// ones. It returns nil when text is not a well-formed chain.
func splitChain(text string) []segment {
	input := []byte(text)
	var segments []segment
	pos := 0
	for {
		size := matchSegment(input, pos)
		if size == 0 {
			return nil
		}
		raw := text[pos : pos+size]
		seg := segment{Name: raw, Start: pos, End: pos + size}
		if q := raw[0]; q == '"' || q == '`' {
			seg.Quoted = true
			seg.Name = strings.ReplaceAll(raw[1:len(raw)-1], string([]byte{q, q}), string(q))
		}
		segments = append(segments, seg)
		pos += size
		if pos == len(text) {
			return segments
		}
		if text[pos] != '.' {
			return nil
		}
		pos++
	}
}
