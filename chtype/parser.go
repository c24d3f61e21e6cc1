package chtype

import (
	"strconv"
	"strings"
)

// tokenKind enumerates the lexical classes the parser consumes.
type tokenKind int

const (
	tokIdent tokenKind = iota
	tokLParen
	tokRParen
	tokComma
	tokInt
	tokString
	tokEq
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  int64
}

// lexer tokenizes a server type string such as
// "Array(Nullable(Decimal(9,3)))" or "Enum8('a' = 1, 'b' = 2)".
type lexer struct {
	src []rune
	pos int
}

func newLexer(s string) *lexer {
	return &lexer{src: []rune(s)}
}

func (l *lexer) peekRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) skipSpace() {
	for {
		r, ok := l.peekRune()
		if !ok || (r != ' ' && r != '\t' && r != '\n') {
			return
		}
		l.pos++
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	r, ok := l.peekRune()
	if !ok {
		return token{kind: tokEOF}, nil
	}
	switch {
	case r == '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case r == ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case r == ',':
		l.pos++
		return token{kind: tokComma}, nil
	case r == '=':
		l.pos++
		return token{kind: tokEq}, nil
	case r == '\'':
		return l.lexString()
	case r == '-' || (r >= '0' && r <= '9'):
		return l.lexNumber()
	case isIdentStart(r):
		return l.lexIdent()
	default:
		return token{}, &SchemaError{Kind: MalformedType, Message: "unexpected character " + strconv.QuoteRune(r)}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for {
		r, ok := l.peekRune()
		if !ok || !isIdentCont(r) {
			break
		}
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if r, _ := l.peekRune(); r == '-' {
		l.pos++
	}
	for {
		r, ok := l.peekRune()
		if !ok || r < '0' || r > '9' {
			break
		}
		l.pos++
	}
	text := string(l.src[start:l.pos])
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, &SchemaError{Kind: MalformedType, Message: "invalid integer literal " + text}
	}
	return token{kind: tokInt, text: text, num: n}, nil
}

func (l *lexer) lexString() (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		r, ok := l.peekRune()
		if !ok {
			return token{}, &SchemaError{Kind: MalformedType, Message: "unterminated string literal"}
		}
		if r == '\'' {
			l.pos++
			// Doubled quote is an escaped quote, matching CH's SQL string quoting.
			if next, ok := l.peekRune(); ok && next == '\'' {
				sb.WriteRune('\'')
				l.pos++
				continue
			}
			break
		}
		if r == '\\' {
			l.pos++
			if esc, ok := l.peekRune(); ok {
				sb.WriteRune(esc)
				l.pos++
				continue
			}
			continue
		}
		sb.WriteRune(r)
		l.pos++
	}
	return token{kind: tokString, text: sb.String()}, nil
}

// Parser is a recursive-descent parser over a server type string, per
// spec.md §4.1. It has no external dependencies beyond the registry table.
type Parser struct {
	lex  *lexer
	cur  token
	full string
}

// Parse parses a single type expression such as "Array(Nullable(Int32))".
// The returned Descriptor's Name is left empty; callers building a column
// list set it separately.
func Parse(typeSQL string) (*Descriptor, error) {
	p := &Parser{lex: newLexer(typeSQL), full: typeSQL}
	if err := p.advance(); err != nil {
		return nil, err
	}
	d, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, &SchemaError{Kind: MalformedType, TypeSQL: typeSQL, Message: "trailing input after type expression"}
	}
	return d, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *Parser) expect(k tokenKind) error {
	if p.cur.kind != k {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "unexpected token in type expression"}
	}
	return p.advance()
}

func (p *Parser) parseType() (*Descriptor, error) {
	if p.cur.kind != tokIdent {
		return nil, &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "expected type name"}
	}
	name := p.cur.text
	entry, ok := baseTypes[name]
	if !ok {
		return nil, &SchemaError{Kind: UnknownType, TypeSQL: p.full, Message: "unknown type " + name}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	d := &Descriptor{Category: entry.category, WidthBits: entry.widthBits, Unsigned: entry.unsigned, RawTypeSQL: name}

	hasArgs := p.cur.kind == tokLParen
	if entry.takesArgs && !hasArgs {
		return nil, &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: name + " requires arguments"}
	}
	if !hasArgs {
		return d, nil
	}

	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}

	var err error
	switch entry.category {
	case CategoryDecimal:
		err = p.parseDecimalArgs(d, name)
	case CategoryFixedString:
		err = p.parseFixedStringArgs(d)
	case CategoryDateTime:
		err = p.parseDateTimeArgs(d, name)
	case CategoryEnum:
		err = p.parseEnumArgs(d)
	case CategoryArray:
		err = p.parseSingleChildArgs(d)
	case CategoryNullable:
		err = p.parseNullableArgs(d)
	case CategoryLowCardinality:
		err = p.parseLowCardinalityArgs(d)
	case CategoryTuple, CategoryNested:
		err = p.parseMultiChildArgs(d)
	case CategoryMap:
		err = p.parseMapArgs(d)
	case CategoryAggregateBitmap:
		err = p.parseAggregateArgs(d, false)
	case CategorySimpleAggregate:
		err = p.parseAggregateArgs(d, true)
	default:
		err = &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: name + " does not take arguments"}
	}
	if err != nil {
		return nil, err
	}
	return d, p.expect(tokRParen)
}

func (p *Parser) parseDecimalArgs(d *Descriptor, name string) error {
	switch name {
	case "Decimal":
		p1, err := p.parseIntLiteral()
		if err != nil {
			return err
		}
		if err := p.expect(tokComma); err != nil {
			return err
		}
		s1, err := p.parseIntLiteral()
		if err != nil {
			return err
		}
		d.Precision, d.Scale = int(p1), int(s1)
		d.WidthBits = decimalWidthForPrecision(d.Precision)
	default:
		// Decimal32/64/128/256(scale) — width is already fixed by the name.
		s, err := p.parseIntLiteral()
		if err != nil {
			return err
		}
		d.Scale = int(s)
		d.Precision = decimalPrecisionForWidth(d.WidthBits)
	}
	if d.Scale < 0 || d.Scale > 76 {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "decimal scale out of range"}
	}
	return nil
}

// decimalWidthForPrecision rounds a decimal precision up to the smallest
// supported wire width, per spec.md §4.2: "⌈p·log2(10)⌉ rounded up to
// {32,64,128,256} bits".
func decimalWidthForPrecision(precision int) int {
	switch {
	case precision <= 9:
		return 32
	case precision <= 18:
		return 64
	case precision <= 38:
		return 128
	default:
		return 256
	}
}

func decimalPrecisionForWidth(width int) int {
	switch width {
	case 32:
		return 9
	case 64:
		return 18
	case 128:
		return 38
	default:
		return 76
	}
}

func (p *Parser) parseFixedStringArgs(d *Descriptor) error {
	n, err := p.parseIntLiteral()
	if err != nil {
		return err
	}
	if n <= 0 {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "FixedString length must be positive"}
	}
	d.FixedLen = int(n)
	return nil
}

func (p *Parser) parseDateTimeArgs(d *Descriptor, name string) error {
	if name == "DateTime64" {
		s, err := p.parseIntLiteral()
		if err != nil {
			return err
		}
		if s < 0 || s > 9 {
			return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "datetime64 scale out of range"}
		}
		d.Scale = int(s)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return err
			}
			tz, err := p.parseStringLiteral()
			if err != nil {
				return err
			}
			d.Timezone = tz
		}
		return nil
	}
	// DateTime(tz) — optional single timezone argument.
	tz, err := p.parseStringLiteral()
	if err != nil {
		return err
	}
	d.Timezone = tz
	return nil
}

func (p *Parser) parseEnumArgs(d *Descriptor) error {
	for {
		name, err := p.parseStringLiteral()
		if err != nil {
			return err
		}
		if err := p.expect(tokEq); err != nil {
			return err
		}
		val, err := p.parseIntLiteral()
		if err != nil {
			return err
		}
		d.Enum = append(d.Enum, EnumMember{Name: name, Value: val})
		if p.cur.kind != tokComma {
			return nil
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
}

func (p *Parser) parseSingleChildArgs(d *Descriptor) error {
	child, err := p.parseType()
	if err != nil {
		return err
	}
	d.Children = []*Descriptor{child}
	return nil
}

func (p *Parser) parseNullableArgs(d *Descriptor) error {
	child, err := p.parseType()
	if err != nil {
		return err
	}
	if nullableForbidden(child.Category) {
		return &SchemaError{Kind: IllegalNullable, TypeSQL: p.full, Message: "Nullable may not wrap " + child.Category.String()}
	}
	child.Nullable = true
	d.Children = []*Descriptor{child}
	d.Nullable = true
	return nil
}

func (p *Parser) parseLowCardinalityArgs(d *Descriptor) error {
	child, err := p.parseType()
	if err != nil {
		return err
	}
	inner := child
	if inner.Category == CategoryNullable {
		inner = inner.Elem()
	}
	if !lowCardinalityAllowed(inner.Category) {
		return &SchemaError{Kind: IllegalLowCardinality, TypeSQL: p.full, Message: "LowCardinality may not wrap " + inner.Category.String()}
	}
	d.Children = []*Descriptor{child}
	return nil
}

func (p *Parser) parseMultiChildArgs(d *Descriptor) error {
	for {
		// Tuple/Nested elements may be named ("Nested(a UInt64, b String)").
		var childName string
		if p.cur.kind == tokIdent {
			save := *p.lex
			savedCur := p.cur
			name := p.cur.text
			if err := p.advance(); err != nil {
				return err
			}
			if _, ok := baseTypes[p.cur.text]; p.cur.kind == tokIdent && ok {
				childName = name
			} else {
				*p.lex = save
				p.cur = savedCur
			}
		}
		child, err := p.parseType()
		if err != nil {
			return err
		}
		child.Name = childName
		d.Children = append(d.Children, child)
		if p.cur.kind != tokComma {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	if len(d.Children) == 0 {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "composite type requires at least one child"}
	}
	return nil
}

func (p *Parser) parseMapArgs(d *Descriptor) error {
	key, err := p.parseType()
	if err != nil {
		return err
	}
	if err := p.expect(tokComma); err != nil {
		return err
	}
	val, err := p.parseType()
	if err != nil {
		return err
	}
	d.Children = []*Descriptor{key, val}
	return nil
}

// parseAggregateArgs parses "func, T..." for AggregateFunction and
// "func, T" for SimpleAggregateFunction. The function name is metadata
// only in both cases. AggregateFunction's wire payload is an opaque
// length-prefixed blob per spec.md §4.2 ("aggregate-bitmap"), so its
// argument types are scanned past and discarded. SimpleAggregateFunction
// is instead decoded identically to its single wrapped type T, per
// SPEC_FULL.md's Type Registry section — storeElem keeps T as d.Elem()
// so the rowbinary codec can dispatch straight to T's own encoder/decoder.
func (p *Parser) parseAggregateArgs(d *Descriptor, storeElem bool) error {
	if p.cur.kind != tokIdent {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "expected aggregate function name"}
	}
	d.RawTypeSQL = d.RawTypeSQL + "(" + p.cur.text
	if err := p.advance(); err != nil {
		return err
	}
	for p.cur.kind == tokComma {
		if err := p.advance(); err != nil {
			return err
		}
		child, err := p.parseType()
		if err != nil {
			return err
		}
		if storeElem {
			d.Children = append(d.Children, child)
		}
	}
	if storeElem && len(d.Children) != 1 {
		return &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "SimpleAggregateFunction requires exactly one inner type"}
	}
	return nil
}

func (p *Parser) parseIntLiteral() (int64, error) {
	if p.cur.kind != tokInt {
		return 0, &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "expected integer literal"}
	}
	n := p.cur.num
	return n, p.advance()
}

func (p *Parser) parseStringLiteral() (string, error) {
	if p.cur.kind != tokString {
		return "", &SchemaError{Kind: MalformedType, TypeSQL: p.full, Message: "expected quoted string literal"}
	}
	s := p.cur.text
	return s, p.advance()
}
