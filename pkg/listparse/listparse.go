// Package listparse parses list-of-strings literals such as ["a", 'b'].
//
// It accepts exactly one bracketed list whose items are single- or
// double-quoted strings. Nothing is evaluated or coerced.
package listparse

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ReasonNotList is the Reason of every ParseError.
const ReasonNotList = "not a list"

// ParseError reports why a raw value was rejected.
type ParseError struct {
	Reason string
	Detail string
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d", e.Reason, e.Detail, e.Offset)
}

// Parse decodes raw into its string items. An empty list yields an empty,
// non-nil slice.
func Parse(raw string) ([]string, error) {
	p := &parser{src: raw}
	return p.parse()
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(format string, args ...interface{}) error {
	return &ParseError{Reason: ReasonNotList, Detail: fmt.Sprintf(format, args...), Offset: p.pos}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) parse() ([]string, error) {
	p.skipSpace()
	c, ok := p.peek()
	if !ok {
		return nil, p.fail("empty value")
	}
	if c != '[' {
		return nil, p.fail("expected '[', found %q", c)
	}
	p.pos++

	items := []string{}
	for {
		p.skipSpace()
		c, ok = p.peek()
		if !ok {
			return nil, p.fail("unterminated list")
		}
		if c == ']' {
			p.pos++
			break
		}

		item, err := p.parseString()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		p.skipSpace()
		c, ok = p.peek()
		if !ok {
			return nil, p.fail("unterminated list")
		}
		switch c {
		case ',':
			p.pos++
			// A trailing comma is allowed; the loop head accepts the ']'.
		case ']':
			p.pos++
			p.skipSpace()
			return items, p.expectEnd()
		default:
			return nil, p.fail("expected ',' or ']', found %q", c)
		}
	}

	p.skipSpace()
	return items, p.expectEnd()
}

func (p *parser) expectEnd() error {
	if p.pos != len(p.src) {
		return p.fail("unexpected trailing content %q", p.src[p.pos:])
	}
	return nil
}

func (p *parser) parseString() (string, error) {
	quote := p.src[p.pos]
	if quote != '"' && quote != '\'' {
		return "", p.fail("expected quoted string, found %q", quote)
	}
	p.pos++

	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.fail("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n' || c == '\r':
			return "", p.fail("line break inside string")
		case c == '\\':
			if err := p.parseEscape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *parser) parseEscape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.fail("unterminated escape")
	}
	c := p.src[p.pos]
	switch c {
	case '\\', '\'', '"', '/':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'u':
		p.pos++
		r, err := p.parseHex4()
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) {
			if !strings.HasPrefix(p.src[p.pos:], `\u`) {
				return p.fail("unpaired surrogate in \\u escape")
			}
			p.pos += 2
			low, err := p.parseHex4()
			if err != nil {
				return err
			}
			r = utf16.DecodeRune(r, low)
			if r == utf8.RuneError {
				return p.fail("invalid surrogate pair in \\u escape")
			}
		}
		b.WriteRune(r)
		return nil
	default:
		return p.fail("unknown escape \\%c", c)
	}
	p.pos++
	return nil
}

// parseHex4 reads four hex digits and leaves pos after them.
func (p *parser) parseHex4() (rune, error) {
	if p.pos+4 > len(p.src) {
		return 0, p.fail("short \\u escape")
	}
	var r rune
	for i := 0; i < 4; i++ {
		c := p.src[p.pos+i]
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, p.fail("invalid hex digit %q in \\u escape", c)
		}
		r = r<<4 | rune(v)
	}
	p.pos += 4
	return r, nil
}
