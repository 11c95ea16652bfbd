package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The staging CSVs embed whole data structures in single cells: the category
// column holds nested lists ("[['Clothing', ['Men']]]"), the related column a
// dict of relation type to key lists, and the helpful column a two-element
// vote list. These are Python repr() literals, not JSON (single quotes,
// True/False/None), so they need their own small recursive-descent parser.
// No evaluation happens; unparsable input falls back to the raw string.

// Pair is one key/value entry of a parsed dict literal. Entries keep source
// order so callers iterate deterministically.
type Pair struct {
	Key   string
	Value any
}

// Dict is a parsed dict literal in source order.
type Dict []Pair

// Decode parses s as a literal and returns the typed value. On any parse
// error the raw string is returned unchanged; Decode never fails.
func Decode(s string) any {
	v, err := ParseLiteral(s)
	if err != nil {
		return s
	}
	return v
}

// ParseLiteral parses a Python-style literal: strings ('...' or "..."),
// integers, floats, lists, tuples, dicts, True, False and None. Lists and
// tuples decode to []any, dicts to Dict, None to nil.
func ParseLiteral(s string) (any, error) {
	p := &litParser{src: s}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("literal: trailing data at offset %d", p.pos)
	}
	return v, nil
}

type litParser struct {
	src string
	pos int
}

func (p *litParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *litParser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *litParser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("literal: unexpected end of input")
	}
	switch {
	case c == '[':
		return p.seq('[', ']')
	case c == '(':
		return p.seq('(', ')')
	case c == '{':
		return p.dict()
	case c == '\'' || c == '"':
		return p.quoted(c)
	case c == '-' || c == '+' || c >= '0' && c <= '9' || c == '.':
		return p.number()
	default:
		return p.word()
	}
}

// seq parses a list or tuple into []any.
func (p *litParser) seq(open, close byte) (any, error) {
	p.pos++ // consume open
	out := []any{}
	for {
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("literal: unterminated %q", string(open))
		}
		if c == close {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if c, ok = p.peek(); ok && c == ',' {
			p.pos++
		}
	}
}

func (p *litParser) dict() (any, error) {
	p.pos++ // consume '{'
	out := Dict{}
	for {
		p.skipSpace()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("literal: unterminated dict")
		}
		if c == '}' {
			p.pos++
			return out, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		key, isStr := k.(string)
		if !isStr {
			key = fmt.Sprint(k)
		}
		p.skipSpace()
		if c, ok = p.peek(); !ok || c != ':' {
			return nil, fmt.Errorf("literal: expected ':' in dict at offset %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: key, Value: v})
		p.skipSpace()
		if c, ok = p.peek(); ok && c == ',' {
			p.pos++
		}
	}
}

func (p *litParser) quoted(quote byte) (any, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, fmt.Errorf("literal: dangling escape")
			}
			p.pos++
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				// \' \" \\ and anything unrecognized pass through verbatim.
				b.WriteByte(e)
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return nil, fmt.Errorf("literal: unterminated string")
}

func (p *litParser) number() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' || c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		break
	}
	tok := p.src[start:p.pos]
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("literal: bad number %q", tok)
	}
	return f, nil
}

func (p *litParser) word() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && (unicode.IsLetter(rune(p.src[p.pos])) || p.src[p.pos] == '_') {
		p.pos++
	}
	switch tok := p.src[start:p.pos]; tok {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	default:
		return nil, fmt.Errorf("literal: unknown token %q at offset %d", tok, start)
	}
}
