// Package grammar provides the tokenizing and group-matching primitives shared
// by the product decoders and the notice extractor.
package grammar

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/skybrief/skybrief/internal/wx"
)

var (
	fractionGlyph = regexp.MustCompile(`\d?[¼½¾⅛⅜⅝⅞]`)
	fractions     = map[string]string{
		"¼": "1/4", "½": "1/2", "¾": "3/4",
		"⅛": "1/8", "⅜": "3/8", "⅝": "5/8", "⅞": "7/8",
	}
)

// expandFractions rewrites vulgar fraction glyphs as n/d. A glyph after a
// digit starts a new token so 1¼SM reads as 1 1/4SM; any other prefix such
// as the M of M¼SM stays attached.
func expandFractions(s string) string {
	return fractionGlyph.ReplaceAllStringFunc(s, func(m string) string {
		_, size := utf8.DecodeLastRuneInString(m)
		whole, glyph := m[:len(m)-size], m[len(m)-size:]
		if whole == "" {
			return fractions[glyph]
		}
		return whole + " " + fractions[glyph]
	})
}

// Tokenize splits coded text on whitespace after normalising vulgar fractions
// and dropping the end-of-message marker.
func Tokenize(raw string) []string {
	text := expandFractions(strings.TrimSpace(raw))
	text = strings.TrimSuffix(text, "=")
	fields := strings.Fields(text)
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimSuffix(f, "=")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Cursor walks a token slice.
type Cursor struct {
	tokens []string
	pos    int
}

// NewCursor returns a cursor positioned at the first token.
func NewCursor(tokens []string) *Cursor {
	return &Cursor{tokens: tokens}
}

// Done reports whether every token has been consumed.
func (c *Cursor) Done() bool { return c.pos >= len(c.tokens) }

// Peek returns the current token or "" at the end.
func (c *Cursor) Peek() string { return c.PeekN(0) }

// PeekN returns the token n positions ahead of the current one.
func (c *Cursor) PeekN(n int) string {
	if c.pos+n >= len(c.tokens) {
		return ""
	}
	return c.tokens[c.pos+n]
}

// Next consumes and returns the current token.
func (c *Cursor) Next() string {
	tok := c.Peek()
	if !c.Done() {
		c.pos++
	}
	return tok
}

// Skip consumes n tokens.
func (c *Cursor) Skip(n int) {
	c.pos = min(c.pos+n, len(c.tokens))
}

// Rest consumes and returns all remaining tokens.
func (c *Cursor) Rest() []string {
	rest := c.tokens[c.pos:]
	c.pos = len(c.tokens)
	return rest
}

// Pos returns the index of the current token.
func (c *Cursor) Pos() int { return c.pos }

// Group is one element of a product grammar.
type Group[R any] struct {
	Name string
	// Match reports whether the group starts at the cursor.
	Match func(c *Cursor) bool
	// Apply consumes the group's tokens and stores the decoded value on the
	// record. A returned error marks the group malformed.
	Apply  func(rec R, c *Cursor) error
	Repeat bool
}

// Token returns a matcher that tests the current token against re.
func Token(re *regexp.Regexp) func(c *Cursor) bool {
	return func(c *Cursor) bool { return re.MatchString(c.Peek()) }
}

// Literal returns a matcher for one of the given literal tokens.
func Literal(words ...string) func(c *Cursor) bool {
	return func(c *Cursor) bool {
		tok := c.Peek()
		for _, w := range words {
			if tok == w {
				return true
			}
		}
		return false
	}
}

// Run matches groups in order against the cursor until the tokens run out or
// stop reports true for the current token. A token that fits no remaining
// group is recorded as ungrammatical remainder and skipped; matching resumes
// with the same expected group.
func Run[R any](rec R, c *Cursor, groups []Group[R], stop func(tok string) bool) []wx.GroupIssue {
	var issues []wx.GroupIssue
	next := 0
	for !c.Done() {
		tok := c.Peek()
		if stop != nil && stop(tok) {
			break
		}

		matched := -1
		for i := next; i < len(groups); i++ {
			if groups[i].Match(c) {
				matched = i
				break
			}
		}
		if matched < 0 {
			issues = append(issues, Mismatch(expected(groups, next), tok))
			c.Next()
			continue
		}

		g := groups[matched]
		start := c.Pos()
		if err := g.Apply(rec, c); err != nil {
			issues = append(issues, wx.GroupIssue{Group: g.Name, Token: tok, Err: err})
		}
		if c.Pos() == start {
			c.Next()
		}
		if g.Repeat {
			next = matched
		} else {
			next = matched + 1
		}
	}
	return issues
}

func expected[R any](groups []Group[R], next int) string {
	if next < len(groups) {
		return groups[next].Name
	}
	return "trailing"
}

// Mismatch builds an issue for a token that fits no expected group.
func Mismatch(group, token string) wx.GroupIssue {
	return wx.GroupIssue{Group: group, Token: token, Err: wx.ErrGrammarMismatch}
}

// Invalid builds a validation error for a well-shaped group with bad values.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", wx.ErrValidation, fmt.Sprintf(format, args...))
}
