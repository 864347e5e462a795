package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"
)

// Content stream operands.
type (
	Name   string
	String []byte
	Array  []Object
	Dict   map[string]Object
)

// Object is one of float64, bool, nil, Name, String, Array or Dict.
type Object interface{}

// Op is one operator with its operands. Start and End delimit the bytes of the
// whole operation (first operand through operator) in the source stream so
// untouched operations can be copied verbatim.
type Op struct {
	Operator string
	Operands []Object
	Start    int
	End      int
	Inline   *InlineImage
}

// InlineImage holds the BI ... ID ... EI payload.
type InlineImage struct {
	Dict Dict
	Data []byte
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

type lexer struct {
	src []byte
	pos int
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokObject
	tokKeyword
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
)

type token struct {
	kind  tokKind
	obj   Object
	kw    string
	start int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, start: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '[':
		l.pos++
		return token{kind: tokArrayOpen, start: start}, nil
	case c == ']':
		l.pos++
		return token{kind: tokArrayClose, start: start}, nil
	case c == '<' && l.peek(1) == '<':
		l.pos += 2
		return token{kind: tokDictOpen, start: start}, nil
	case c == '>' && l.peek(1) == '>':
		l.pos += 2
		return token{kind: tokDictClose, start: start}, nil
	case c == '<':
		s, err := l.hexString()
		return token{kind: tokObject, obj: s, start: start}, err
	case c == '(':
		s, err := l.literalString()
		return token{kind: tokObject, obj: s, start: start}, err
	case c == '/':
		return token{kind: tokObject, obj: l.name(), start: start}, nil
	case c == '{' || c == '}':
		// PostScript procedure braces only occur in Type 4 functions; treat as keywords.
		l.pos++
		return token{kind: tokKeyword, kw: string(c), start: start}, nil
	case c == ')' || c == '>':
		return token{}, fmt.Errorf("unexpected %q at offset %d", c, start)
	}

	for l.pos < len(l.src) && !isWhite(l.src[l.pos]) && !isDelim(l.src[l.pos]) {
		l.pos++
	}
	word := string(l.src[start:l.pos])

	if n, ok := parseNumber(word); ok {
		return token{kind: tokObject, obj: n, start: start}, nil
	}
	switch word {
	case "true":
		return token{kind: tokObject, obj: true, start: start}, nil
	case "false":
		return token{kind: tokObject, obj: false, start: start}, nil
	case "null":
		return token{kind: tokObject, obj: nil, start: start}, nil
	}
	return token{kind: tokKeyword, kw: word, start: start}, nil
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func parseNumber(word string) (float64, bool) {
	if word == "" {
		return 0, false
	}
	c := word[0]
	if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != '.' {
		return 0, false
	}
	// Some producers emit "--5" or "5-"; be lenient about doubled signs.
	for len(word) > 1 && (word[0] == '-' || word[0] == '+') && (word[1] == '-' || word[1] == '+') {
		word = word[1:]
	}
	f, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (l *lexer) name() Name {
	l.pos++ // '/'
	var buf bytes.Buffer
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWhite(c) || isDelim(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.src) {
			if v, err := strconv.ParseUint(string(l.src[l.pos+1:l.pos+3]), 16, 8); err == nil {
				buf.WriteByte(byte(v))
				l.pos += 3
				continue
			}
		}
		buf.WriteByte(c)
		l.pos++
	}
	return Name(buf.String())
}

func (l *lexer) hexString() (String, error) {
	l.pos++ // '<'
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return String(out), nil
		}
		if isWhite(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return nil, fmt.Errorf("invalid hex digit %q at offset %d", c, l.pos-1)
		}
		if half {
			out = append(out, hi<<4|v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return nil, fmt.Errorf("unterminated hex string")
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (l *lexer) literalString() (String, error) {
	l.pos++ // '('
	depth := 1
	var out []byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, c)
		case '\r':
			// A bare CR or CRLF inside a string is a single newline.
			if l.pos < len(l.src) && l.src[l.pos] == '\n' {
				l.pos++
			}
			out = append(out, '\n')
		case '\\':
			if l.pos >= len(l.src) {
				return nil, fmt.Errorf("unterminated string escape")
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.src) && l.src[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
						v = v*8 + int(l.src[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return nil, fmt.Errorf("unterminated string")
}

// object reads a complete operand starting with tok.
func (l *lexer) object(tok token) (Object, error) {
	switch tok.kind {
	case tokObject:
		return tok.obj, nil
	case tokArrayOpen:
		arr := Array{}
		for {
			t, err := l.next()
			if err != nil {
				return nil, err
			}
			switch t.kind {
			case tokArrayClose:
				return arr, nil
			case tokEOF:
				return nil, fmt.Errorf("unterminated array")
			case tokKeyword:
				// Keywords inside arrays are not valid operands; keep them as names
				// so odd producers do not abort the parse.
				arr = append(arr, Name(t.kw))
				continue
			}
			o, err := l.object(t)
			if err != nil {
				return nil, err
			}
			arr = append(arr, o)
		}
	case tokDictOpen:
		d := Dict{}
		for {
			t, err := l.next()
			if err != nil {
				return nil, err
			}
			if t.kind == tokDictClose {
				return d, nil
			}
			if t.kind == tokEOF {
				return nil, fmt.Errorf("unterminated dictionary")
			}
			key, ok := t.obj.(Name)
			if t.kind != tokObject || !ok {
				return nil, fmt.Errorf("dictionary key is not a name at offset %d", t.start)
			}
			vt, err := l.next()
			if err != nil {
				return nil, err
			}
			if vt.kind == tokKeyword {
				d[string(key)] = Name(vt.kw)
				continue
			}
			v, err := l.object(vt)
			if err != nil {
				return nil, err
			}
			d[string(key)] = v
		}
	}
	return nil, fmt.Errorf("unexpected token at offset %d", tok.start)
}

// ParseContent splits a content stream into operations.
func ParseContent(src []byte) ([]Op, error) {
	l := &lexer{src: src}
	var ops []Op
	var operands []Object
	opStart := -1

	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEOF {
			break
		}
		if opStart < 0 {
			opStart = tok.start
		}

		if tok.kind == tokKeyword {
			op := Op{Operator: tok.kw, Operands: operands, Start: opStart, End: l.pos}
			if tok.kw == "BI" {
				img, err := l.inlineImage()
				if err != nil {
					return nil, err
				}
				op.Inline = img
				op.End = l.pos
			}
			ops = append(ops, op)
			operands = nil
			opStart = -1
			continue
		}

		obj, err := l.object(tok)
		if err != nil {
			return nil, err
		}
		operands = append(operands, obj)
	}
	return ops, nil
}

// inlineImage parses the dictionary after BI and the data up to EI.
func (l *lexer) inlineImage() (*InlineImage, error) {
	d := Dict{}
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unterminated inline image")
		}
		if t.kind == tokKeyword && t.kw == "ID" {
			break
		}
		key, ok := t.obj.(Name)
		if t.kind != tokObject || !ok {
			return nil, fmt.Errorf("inline image key is not a name at offset %d", t.start)
		}
		vt, err := l.next()
		if err != nil {
			return nil, err
		}
		if vt.kind == tokKeyword {
			d[string(key)] = Name(vt.kw)
			continue
		}
		v, err := l.object(vt)
		if err != nil {
			return nil, err
		}
		d[string(key)] = v
	}

	// exactly one white-space byte separates ID from the data
	if l.pos < len(l.src) && isWhite(l.src[l.pos]) {
		l.pos++
	}
	dataStart := l.pos

	if n := inlineDataLength(d); n > 0 && dataStart+n <= len(l.src) {
		end := dataStart + n
		rest := end
		for rest < len(l.src) && isWhite(l.src[rest]) {
			rest++
		}
		if bytes.HasPrefix(l.src[rest:], []byte("EI")) && (rest+2 == len(l.src) || isWhite(l.src[rest+2]) || isDelim(l.src[rest+2])) {
			l.pos = rest + 2
			return &InlineImage{Dict: d, Data: l.src[dataStart:end]}, nil
		}
	}

	for i := dataStart; i+2 <= len(l.src); i++ {
		if l.src[i] != 'E' || l.src[i+1] != 'I' {
			continue
		}
		if i > dataStart && !isWhite(l.src[i-1]) {
			continue
		}
		if i+2 < len(l.src) && !isWhite(l.src[i+2]) && !isDelim(l.src[i+2]) {
			continue
		}
		end := i
		if end > dataStart && isWhite(l.src[end-1]) {
			end--
		}
		l.pos = i + 2
		return &InlineImage{Dict: d, Data: l.src[dataStart:end]}, nil
	}
	return nil, fmt.Errorf("inline image without EI")
}

// inlineDataLength is the byte length of unfiltered inline image data, 0 when
// it cannot be computed.
func inlineDataLength(d Dict) int {
	if _, filtered := lookup(d, "F", "Filter"); filtered {
		return 0
	}
	w, _ := lookup(d, "W", "Width")
	h, _ := lookup(d, "H", "Height")
	width, ok1 := w.(float64)
	height, ok2 := h.(float64)
	if !ok1 || !ok2 || width <= 0 || height <= 0 {
		return 0
	}

	bpc := 1.0
	comps := 1
	if m, ok := lookup(d, "IM", "ImageMask"); !ok || m != true {
		if b, ok := lookup(d, "BPC", "BitsPerComponent"); ok {
			if v, ok := b.(float64); ok {
				bpc = v
			}
		}
		if cs, ok := lookup(d, "CS", "ColorSpace"); ok {
			switch cs {
			case Name("RGB"), Name("DeviceRGB"):
				comps = 3
			case Name("CMYK"), Name("DeviceCMYK"):
				comps = 4
			}
		}
	}
	rowBytes := (int(width)*comps*int(bpc) + 7) / 8
	return rowBytes * int(height)
}

func lookup(d Dict, keys ...string) (Object, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			return v, true
		}
	}
	return nil, false
}
