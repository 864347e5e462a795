package pdfdoc

import (
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	defaultAscent  = 0.8
	defaultDescent = -0.2
)

// charCode is one character code consumed from a string operand.
type charCode struct {
	raw  []byte
	code int
}

type codeRange struct {
	lo, hi []byte
}

func (r codeRange) matches(b []byte) bool {
	if len(b) != len(r.lo) {
		return false
	}
	for i := range b {
		if b[i] < r.lo[i] || b[i] > r.hi[i] {
			return false
		}
	}
	return true
}

type cidRange struct {
	lo, hi int
	n      int // code length
	cid    int
}

// Font holds what is needed to measure and decode text shown with it.
type Font struct {
	Subtype  string
	BaseFont string

	composite bool
	codespace []codeRange
	cidRanges []cidRange

	widths       map[int]float64 // glyph space, keyed by code or CID
	defaultWidth float64
	scale        float64 // glyph space to text space

	toUnicode map[string]string
	encoding  [256]rune

	ascent, descent float64
	core            string
}

// fallbackFont measures unknown fonts so their glyphs still get boxes.
func fallbackFont() *Font {
	f := &Font{Subtype: "Type1", scale: 0.001, defaultWidth: 500, ascent: defaultAscent, descent: defaultDescent}
	f.setBaseEncoding("")
	return f
}

func loadFont(x xref, d types.Dict) *Font {
	if d == nil {
		return fallbackFont()
	}
	f := &Font{
		Subtype:  x.name(d["Subtype"]),
		BaseFont: x.name(d["BaseFont"]),
		scale:    0.001,
		ascent:   defaultAscent,
		descent:  defaultDescent,
	}

	if f.Subtype == "Type0" {
		f.loadComposite(x, d)
	} else {
		f.loadSimple(x, d)
	}

	if tu := d["ToUnicode"]; tu != nil {
		if data, err := x.content(tu); err == nil {
			f.toUnicode = parseToUnicode(data)
		}
	}
	return f
}

func stripSubset(name string) string {
	if len(name) > 7 && name[6] == '+' && strings.ToUpper(name[:6]) == name[:6] {
		return name[7:]
	}
	return name
}

func (f *Font) loadSimple(x xref, d types.Dict) {
	f.widths = map[int]float64{}
	if first, ok := x.number(d["FirstChar"]); ok {
		for i, w := range x.array(d["Widths"]) {
			if v, ok := x.number(w); ok {
				f.widths[int(first)+i] = v
			}
		}
	}

	desc := x.subdict(d, "FontDescriptor")
	if mw, ok := x.number(desc["MissingWidth"]); ok {
		f.defaultWidth = mw
	}
	f.metricsFrom(x, desc)

	if f.Subtype == "Type3" {
		if m := x.numbers(d["FontMatrix"]); len(m) == 6 {
			f.scale = m[0]
			if bbox, ok := x.rect(d["FontBBox"]); ok && m[3] != 0 && bbox.Height() > 0 {
				f.ascent = bbox.URY * m[3]
				f.descent = bbox.LLY * m[3]
				if f.ascent < f.descent {
					f.ascent, f.descent = f.descent, f.ascent
				}
			}
		}
	}

	base := stripSubset(f.BaseFont)
	if len(f.widths) == 0 && font.IsCoreFont(base) {
		f.core = base
	}

	enc := d["Encoding"]
	switch v := x.deref(enc).(type) {
	case types.Name:
		f.setBaseEncoding(string(v))
	case types.Dict:
		f.setBaseEncoding(x.name(v["BaseEncoding"]))
		f.applyDifferences(x, x.array(v["Differences"]))
	default:
		f.setBaseEncoding("")
	}
}

func (f *Font) metricsFrom(x xref, desc types.Dict) {
	if desc == nil {
		return
	}
	if a, ok := x.number(desc["Ascent"]); ok && a > 0 {
		f.ascent = a / 1000
	}
	if dsc, ok := x.number(desc["Descent"]); ok && dsc != 0 {
		if dsc > 0 {
			dsc = -dsc
		}
		f.descent = dsc / 1000
	}
}

func (f *Font) setBaseEncoding(name string) {
	cm := charmap.Windows1252
	if name == "MacRomanEncoding" {
		cm = charmap.Macintosh
	}
	for i := 0; i < 256; i++ {
		f.encoding[i] = cm.DecodeByte(byte(i))
	}
}

func (f *Font) applyDifferences(x xref, diffs types.Array) {
	code := 0
	for _, o := range diffs {
		if n, ok := x.number(o); ok {
			code = int(n)
			continue
		}
		if name := x.name(o); name != "" {
			if code >= 0 && code < 256 {
				if r, ok := glyphRune(name); ok {
					f.encoding[code] = r
				}
			}
			code++
		}
	}
}

func (f *Font) loadComposite(x xref, d types.Dict) {
	f.composite = true
	f.defaultWidth = 1000
	f.widths = map[int]float64{}

	// Identity-H, Identity-V and predefined CMaps are read as two byte codes.
	f.codespace = []codeRange{{lo: []byte{0, 0}, hi: []byte{0xff, 0xff}}}
	if _, ok := x.deref(d["Encoding"]).(types.StreamDict); ok {
		if data, err := x.content(d["Encoding"]); err == nil {
			if spaces, cids := parseEncodingCMap(data); len(spaces) > 0 {
				f.codespace, f.cidRanges = spaces, cids
			}
		}
	}

	desc := x.array(d["DescendantFonts"])
	if len(desc) == 0 {
		return
	}
	cf := x.dict(desc[0])
	if dw, ok := x.number(cf["DW"]); ok {
		f.defaultWidth = dw
	}
	f.metricsFrom(x, x.subdict(cf, "FontDescriptor"))

	w := x.array(cf["W"])
	for i := 0; i < len(w); {
		first, ok := x.number(w[i])
		if !ok || i+1 >= len(w) {
			break
		}
		if arr := x.array(w[i+1]); arr != nil {
			for j, e := range arr {
				if v, ok := x.number(e); ok {
					f.widths[int(first)+j] = v
				}
			}
			i += 2
			continue
		}
		last, ok1 := x.number(w[i+1])
		if i+2 >= len(w) {
			break
		}
		width, ok2 := x.number(w[i+2])
		if !ok1 || !ok2 {
			break
		}
		for c := int(first); c <= int(last) && c-int(first) < 65536; c++ {
			f.widths[c] = width
		}
		i += 3
	}
}

// Codes splits a string operand into character codes.
func (f *Font) Codes(s []byte) []charCode {
	out := make([]charCode, 0, len(s))
	if !f.composite {
		for i := range s {
			out = append(out, charCode{raw: s[i : i+1], code: int(s[i])})
		}
		return out
	}

	for i := 0; i < len(s); {
		n := 0
		for l := 1; l <= 4 && i+l <= len(s); l++ {
			for _, r := range f.codespace {
				if r.matches(s[i : i+l]) {
					n = l
					break
				}
			}
			if n > 0 {
				break
			}
		}
		if n == 0 {
			n = 1
		}
		raw := s[i : i+n]
		out = append(out, charCode{raw: raw, code: bytesToInt(raw)})
		i += n
	}
	return out
}

func bytesToInt(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

func (f *Font) cid(c charCode) int {
	for _, r := range f.cidRanges {
		if r.n == len(c.raw) && c.code >= r.lo && c.code <= r.hi {
			return r.cid + c.code - r.lo
		}
	}
	return c.code
}

// Width is the horizontal advance of c in text space for a font size of one.
func (f *Font) Width(c charCode) float64 {
	key := c.code
	if f.composite {
		key = f.cid(c)
	}
	if w, ok := f.widths[key]; ok {
		return w * f.scale
	}
	if f.core != "" {
		if r := f.encoding[c.code&0xff]; r != 0 {
			return float64(font.CharWidth(f.core, r)) * f.scale
		}
	}
	return f.defaultWidth * f.scale
}

// Unicode returns the text c stands for, possibly empty.
func (f *Font) Unicode(c charCode) string {
	if s, ok := f.toUnicode[string(c.raw)]; ok {
		return s
	}
	if f.composite {
		return ""
	}
	r := f.encoding[c.code]
	if r == 0 || r == 0xfffd {
		return ""
	}
	return string(r)
}

func utf16BE(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	s, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

// parseToUnicode reads bfchar and bfrange sections of a ToUnicode CMap.
func parseToUnicode(data []byte) map[string]string {
	ops, err := ParseContent(data)
	out := map[string]string{}
	if err != nil {
		return out
	}
	for _, op := range ops {
		switch op.Operator {
		case "endbfchar":
			for i := 0; i+1 < len(op.Operands); i += 2 {
				src, ok1 := op.Operands[i].(String)
				dst, ok2 := op.Operands[i+1].(String)
				if ok1 && ok2 {
					out[string(src)] = utf16BE(dst)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(op.Operands); i += 3 {
				lo, ok1 := op.Operands[i].(String)
				hi, ok2 := op.Operands[i+1].(String)
				if !ok1 || !ok2 || len(lo) != len(hi) || len(lo) == 0 {
					continue
				}
				start, end := bytesToInt(lo), bytesToInt(hi)
				if end < start || end-start > 0xffff {
					continue
				}
				switch dst := op.Operands[i+2].(type) {
				case String:
					base := []rune(utf16BE(dst))
					if len(base) == 0 {
						continue
					}
					for c := start; c <= end; c++ {
						r := append([]rune{}, base...)
						r[len(r)-1] += rune(c - start)
						out[string(intToBytes(c, len(lo)))] = string(r)
					}
				case Array:
					for j, e := range dst {
						if s, ok := e.(String); ok && start+j <= end {
							out[string(intToBytes(start+j, len(lo)))] = utf16BE(s)
						}
					}
				}
			}
		}
	}
	return out
}

// parseEncodingCMap reads codespace and CID ranges of an embedded CMap.
func parseEncodingCMap(data []byte) ([]codeRange, []cidRange) {
	ops, err := ParseContent(data)
	if err != nil {
		return nil, nil
	}
	var spaces []codeRange
	var cids []cidRange
	for _, op := range ops {
		switch op.Operator {
		case "endcodespacerange":
			for i := 0; i+1 < len(op.Operands); i += 2 {
				lo, ok1 := op.Operands[i].(String)
				hi, ok2 := op.Operands[i+1].(String)
				if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 {
					spaces = append(spaces, codeRange{lo: []byte(lo), hi: []byte(hi)})
				}
			}
		case "endcidrange":
			for i := 0; i+2 < len(op.Operands); i += 3 {
				lo, ok1 := op.Operands[i].(String)
				hi, ok2 := op.Operands[i+1].(String)
				cid, ok3 := op.Operands[i+2].(float64)
				if ok1 && ok2 && ok3 {
					cids = append(cids, cidRange{lo: bytesToInt(lo), hi: bytesToInt(hi), n: len(lo), cid: int(cid)})
				}
			}
		case "endcidchar":
			for i := 0; i+1 < len(op.Operands); i += 2 {
				c, ok1 := op.Operands[i].(String)
				cid, ok2 := op.Operands[i+1].(float64)
				if ok1 && ok2 {
					v := bytesToInt(c)
					cids = append(cids, cidRange{lo: v, hi: v, n: len(c), cid: int(cid)})
				}
			}
		}
	}
	return spaces, cids
}

func intToBytes(v, n int) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(', "parenright": ')',
	"asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4', "five": '5', "six": '6',
	"seven": '7', "eight": '8', "nine": '9', "colon": ':', "semicolon": ';', "less": '<',
	"equal": '=', "greater": '>', "question": '?', "at": '@', "bracketleft": '[',
	"backslash": '\\', "bracketright": ']', "asciicircum": '^', "underscore": '_',
	"grave": '`', "braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“', "quotedblright": '”',
	"endash": '–', "emdash": '—', "bullet": '•', "Euro": '€',
	"fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ', "ffi": 'ﬃ', "ffl": 'ﬄ',
	"sterling": '£', "yen": '¥', "section": '§', "copyright": '©',
	"registered": '®', "degree": '°', "minus": '−', "nbspace": ' ',
}

// glyphRune maps an Adobe glyph name to a rune.
func glyphRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 && (name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}
