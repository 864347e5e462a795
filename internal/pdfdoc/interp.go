package pdfdoc

import (
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Glyph is one shown character code with its box in user space.
type Glyph struct {
	Code charCode
	Text string
	Box  Rect
	// Adv is the text space displacement applied after the glyph.
	Adv float64
	// Elem is the index of the TJ array element that produced the glyph.
	Elem int
	// Size is the font size scaled to user space.
	Size  float64
	Space bool
}

type gstate struct {
	ctm       Matrix
	tc        float64
	tw        float64
	th        float64
	tl        float64
	tfs       float64
	rise      float64
	font      *Font
	lineWidth float64
	// clip bounds the clipping path in user space.
	clip Rect
}

// resources resolves names used by a content stream.
type resources struct {
	x     xref
	dict  types.Dict
	fonts map[string]*Font
}

func newResources(x xref, d types.Dict) *resources {
	return &resources{x: x, dict: d, fonts: map[string]*Font{}}
}

func (r *resources) font(name string) *Font {
	if f, ok := r.fonts[name]; ok {
		return f
	}
	var fd types.Dict
	if fonts := r.x.subdict(r.dict, "Font"); fonts != nil {
		fd = r.x.dict(fonts[name])
	}
	f := loadFont(r.x, fd)
	r.fonts[name] = f
	return f
}

// xobject returns the stream reference and subtype of a named XObject.
func (r *resources) xobject(name string) (types.Object, string) {
	xo := r.x.subdict(r.dict, "XObject")
	if xo == nil {
		return nil, ""
	}
	ref, ok := xo[name]
	if !ok {
		return nil, ""
	}
	d := r.x.dict(ref)
	if d == nil {
		return nil, ""
	}
	return ref, r.x.name(d["Subtype"])
}

// handler receives what the interpreter sees. Indices refer to the op slice.
type handler interface {
	text(i int, glyphs []Glyph, st *gstate)
	paint(first, last int, box Rect, st *gstate)
	xobject(i int, name string, st *gstate)
	inlineImage(i int, st *gstate)
	// shading is called for sh, which fills box, the current clip.
	shading(i int, box Rect, st *gstate)
}

type interpreter struct {
	res   *resources
	h     handler
	st    gstate
	stack []gstate

	tm, tlm Matrix

	path      Rect
	pathStart int
	clipping  bool
}

func interpret(ops []Op, res *resources, ctm Matrix, h handler) {
	in := &interpreter{
		res:       res,
		h:         h,
		st:        gstate{ctm: ctm, th: 1, lineWidth: 1, font: fallbackFont(), clip: unbounded()},
		tm:        Identity,
		tlm:       Identity,
		path:      EmptyRect(),
		pathStart: -1,
	}
	for i := range ops {
		in.step(i, &ops[i])
	}
}

func num(operands []Object, i int) float64 {
	if i < len(operands) {
		if v, ok := operands[i].(float64); ok {
			return v
		}
	}
	return 0
}

// last returns the n trailing operands, tolerating extra leading ones.
func last(operands []Object, n int) []Object {
	if len(operands) < n {
		return make([]Object, n)
	}
	return operands[len(operands)-n:]
}

func (in *interpreter) step(i int, op *Op) {
	args := op.Operands
	switch op.Operator {
	case "q":
		in.stack = append(in.stack, in.st)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.st = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if m, ok := matrixFrom(args); ok {
			in.st.ctm = m.Mul(in.st.ctm)
		}
	case "w":
		a := last(args, 1)
		in.st.lineWidth = num(a, 0)

	case "BT":
		in.tm, in.tlm = Identity, Identity
	case "ET":
	case "Tc":
		in.st.tc = num(last(args, 1), 0)
	case "Tw":
		in.st.tw = num(last(args, 1), 0)
	case "Tz":
		in.st.th = num(last(args, 1), 0) / 100
	case "TL":
		in.st.tl = num(last(args, 1), 0)
	case "Ts":
		in.st.rise = num(last(args, 1), 0)
	case "Tf":
		a := last(args, 2)
		if n, ok := a[0].(Name); ok {
			in.st.font = in.res.font(string(n))
		}
		in.st.tfs = num(a, 1)
	case "Td":
		a := last(args, 2)
		in.moveLine(num(a, 0), num(a, 1))
	case "TD":
		a := last(args, 2)
		in.st.tl = -num(a, 1)
		in.moveLine(num(a, 0), num(a, 1))
	case "Tm":
		if m, ok := matrixFrom(args); ok {
			in.tm, in.tlm = m, m
		}
	case "T*":
		in.moveLine(0, -in.st.tl)

	case "Tj":
		if s, ok := lastString(args); ok {
			in.h.text(i, in.show([]Object{s}), &in.st)
		}
	case "TJ":
		if arr, ok := lastArray(args); ok {
			in.h.text(i, in.show(arr), &in.st)
		}
	case "'":
		in.moveLine(0, -in.st.tl)
		if s, ok := lastString(args); ok {
			in.h.text(i, in.show([]Object{s}), &in.st)
		}
	case "\"":
		a := last(args, 3)
		in.st.tw = num(a, 0)
		in.st.tc = num(a, 1)
		in.moveLine(0, -in.st.tl)
		if s, ok := a[2].(String); ok {
			in.h.text(i, in.show([]Object{s}), &in.st)
		}

	case "m", "l":
		a := last(args, 2)
		in.addPoints(i, num(a, 0), num(a, 1))
	case "c":
		a := last(args, 6)
		in.addPoints(i, num(a, 0), num(a, 1), num(a, 2), num(a, 3), num(a, 4), num(a, 5))
	case "v", "y":
		a := last(args, 4)
		in.addPoints(i, num(a, 0), num(a, 1), num(a, 2), num(a, 3))
	case "re":
		a := last(args, 4)
		x, y, w, h := num(a, 0), num(a, 1), num(a, 2), num(a, 3)
		in.addPoints(i, x, y, x+w, y, x, y+h, x+w, y+h)
	case "h":
		if in.pathStart < 0 {
			in.pathStart = i
		}
	case "W", "W*":
		if in.pathStart < 0 {
			in.pathStart = i
		}
		in.clipping = true
	case "S", "s", "B", "B*", "b", "b*":
		box := in.path
		if !box.Empty() {
			grow := in.st.lineWidth * in.st.ctm.scale() / 2
			box = Rect{box.LLX - grow, box.LLY - grow, box.URX + grow, box.URY + grow}
		}
		in.endPath(i, box)
	case "f", "F", "f*":
		in.endPath(i, in.path)
	case "n":
		in.applyClip()
		in.path = EmptyRect()
		in.pathStart = -1
	case "sh":
		if !in.st.clip.Empty() {
			in.h.shading(i, in.st.clip, &in.st)
		}

	case "Do":
		if n, ok := lastName(args); ok {
			in.h.xobject(i, string(n), &in.st)
		}
	case "BI":
		in.h.inlineImage(i, &in.st)
	}
}

func (in *interpreter) endPath(i int, box Rect) {
	first := in.pathStart
	if first < 0 {
		first = i
	}
	if !box.Empty() {
		in.h.paint(first, i, box, &in.st)
	}
	in.applyClip()
	in.path = EmptyRect()
	in.pathStart = -1
}

// applyClip narrows the clip to the path just ended when W or W* preceded
// the painting operator.
func (in *interpreter) applyClip() {
	if !in.clipping {
		return
	}
	in.clipping = false
	in.st.clip = in.st.clip.Intersect(in.path)
}

func unbounded() Rect {
	return Rect{math.Inf(-1), math.Inf(-1), math.Inf(1), math.Inf(1)}
}

func (in *interpreter) addPoints(i int, coords ...float64) {
	if in.pathStart < 0 {
		in.pathStart = i
	}
	for j := 0; j+1 < len(coords); j += 2 {
		x, y := in.st.ctm.Apply(coords[j], coords[j+1])
		in.path = in.path.AddPoint(x, y)
	}
}

func (in *interpreter) moveLine(tx, ty float64) {
	in.tlm = Matrix{1, 0, 0, 1, tx, ty}.Mul(in.tlm)
	in.tm = in.tlm
}

// show lays out the elements of a text showing operator and advances Tm.
func (in *interpreter) show(elems []Object) []Glyph {
	st := &in.st
	f := st.font
	var glyphs []Glyph
	for ei, e := range elems {
		switch v := e.(type) {
		case float64:
			tx := -v / 1000 * st.tfs * st.th
			in.tm = Matrix{1, 0, 0, 1, tx, 0}.Mul(in.tm)
		case String:
			for _, c := range f.Codes(v) {
				w0 := f.Width(c)
				isSpace := len(c.raw) == 1 && c.code == 32
				tx := w0*st.tfs + st.tc
				if isSpace {
					tx += st.tw
				}
				tx *= st.th

				trm := in.tm.Mul(st.ctm)
				local := Rect{0, st.rise + f.descent*st.tfs, w0 * st.tfs * st.th, st.rise + f.ascent*st.tfs}
				box := trm.TransformRect(local.Normalize())

				glyphs = append(glyphs, Glyph{
					Code:  c,
					Text:  f.Unicode(c),
					Box:   box,
					Adv:   tx,
					Elem:  ei,
					Size:  math.Abs(st.tfs) * trm.scale(),
					Space: isSpace,
				})
				in.tm = Matrix{1, 0, 0, 1, tx, 0}.Mul(in.tm)
			}
		}
	}
	return glyphs
}

func lastString(args []Object) (String, bool) {
	if len(args) == 0 {
		return nil, false
	}
	s, ok := args[len(args)-1].(String)
	return s, ok
}

func lastArray(args []Object) (Array, bool) {
	if len(args) == 0 {
		return nil, false
	}
	a, ok := args[len(args)-1].(Array)
	return a, ok
}

func lastName(args []Object) (Name, bool) {
	if len(args) == 0 {
		return "", false
	}
	n, ok := args[len(args)-1].(Name)
	return n, ok
}
