package pdfdoc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// textCoverage is the share of a glyph box a text match must cover.
const textCoverage = 0.5

// streamRedactor rewrites one content stream, recording replacements per op.
type streamRedactor struct {
	x     xref
	marks *markSet
	res   *resources
	src   []byte
	ops   []Op
	depth int

	edits map[int]string
	added map[string]types.Object
	// replaced collects the object numbers of XObjects whose painting was
	// rewritten or removed. It is shared with nested forms.
	replaced map[int]bool
	err      error
}

func newStreamRedactor(x xref, marks *markSet, res *resources, src []byte, ops []Op, depth int, replaced map[int]bool) *streamRedactor {
	return &streamRedactor{
		x:        x,
		marks:    marks,
		res:      res,
		src:      src,
		ops:      ops,
		depth:    depth,
		edits:    map[int]string{},
		added:    map[string]types.Object{},
		replaced: replaced,
	}
}

func (r *streamRedactor) replace(i int, ref types.Object, with string) {
	r.edits[i] = with
	if ir, ok := ref.(types.IndirectRef); ok {
		r.replaced[ir.ObjectNumber.Value()] = true
	}
}

func (r *streamRedactor) run(ctm Matrix) error {
	interpret(r.ops, r.res, ctm, r)
	return r.err
}

func (r *streamRedactor) changed() bool {
	return len(r.edits) > 0
}

// output is the source with edited ops substituted and everything else
// copied byte for byte.
func (r *streamRedactor) output() []byte {
	var buf bytes.Buffer
	buf.Grow(len(r.src))
	prev := 0
	for i, op := range r.ops {
		rep, ok := r.edits[i]
		if !ok {
			continue
		}
		buf.Write(r.src[prev:op.Start])
		buf.WriteByte(' ')
		buf.WriteString(rep)
		buf.WriteByte(' ')
		prev = op.End
	}
	buf.Write(r.src[prev:])
	return buf.Bytes()
}

// resourceDict is a private copy of the stream resources carrying any new
// XObjects.
func (r *streamRedactor) resourceDict() types.Dict {
	d := copyDict(r.res.dict)
	xo := copyDict(r.x.subdict(r.res.dict, "XObject"))
	for k, v := range r.added {
		xo[k] = v
	}
	d["XObject"] = xo
	return d
}

func (r *streamRedactor) addXObject(ref *types.IndirectRef) string {
	existing := r.x.subdict(r.res.dict, "XObject")
	for n := len(r.added) + 1; ; n++ {
		name := "RdX" + strconv.Itoa(n)
		if _, taken := existing[name]; taken {
			continue
		}
		if _, taken := r.added[name]; taken {
			continue
		}
		r.added[name] = *ref
		return name
	}
}

func (r *streamRedactor) text(i int, glyphs []Glyph, st *gstate) {
	remove := make([]bool, len(glyphs))
	hit := false
	for k, g := range glyphs {
		if r.marks.hit(g.Box) {
			remove[k] = true
			hit = true
		}
	}
	if !hit {
		return
	}

	op := &r.ops[i]
	var elems []Object
	var prefix string
	switch op.Operator {
	case "TJ":
		elems, _ = lastArray(op.Operands)
	case "Tj":
		s, _ := lastString(op.Operands)
		elems = []Object{s}
	case "'":
		s, _ := lastString(op.Operands)
		elems = []Object{s}
		prefix = "T* "
	case "\"":
		a := last(op.Operands, 3)
		elems = []Object{a[2]}
		prefix = formatNumber(num(a, 0)) + " Tw " + formatNumber(num(a, 1)) + " Tc T* "
	}
	r.edits[i] = prefix + rebuildTJ(elems, glyphs, remove, st.tfs*st.th) + " TJ"
}

// rebuildTJ re-emits a text showing operation without the removed glyphs.
// Each removed glyph becomes a positioning adjustment of the same advance.
func rebuildTJ(elems []Object, glyphs []Glyph, remove []bool, scale float64) string {
	var b strings.Builder
	b.WriteByte('[')
	var pending []byte
	adj := 0.0

	flushString := func() {
		if len(pending) > 0 {
			b.WriteByte('<')
			b.WriteString(hex.EncodeToString(pending))
			b.WriteByte('>')
			pending = nil
		}
	}
	flushAdjust := func() {
		if adj != 0 {
			flushString()
			b.WriteByte(' ')
			b.WriteString(formatNumber(adj))
			b.WriteByte(' ')
			adj = 0
		}
	}

	gi := 0
	for ei, e := range elems {
		switch v := e.(type) {
		case float64:
			adj += v
		case String:
			for gi < len(glyphs) && glyphs[gi].Elem == ei {
				if remove[gi] {
					if scale != 0 {
						adj -= glyphs[gi].Adv / scale * 1000
					}
				} else {
					flushAdjust()
					pending = append(pending, glyphs[gi].Code.raw...)
				}
				gi++
			}
		}
	}
	flushAdjust()
	flushString()
	b.WriteByte(']')
	return b.String()
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func (r *streamRedactor) paint(_, lastOp int, box Rect, _ *gstate) {
	if r.marks.anyOverlap(box) {
		r.edits[lastOp] = "n"
	}
}

func (r *streamRedactor) shading(i int, box Rect, _ *gstate) {
	if r.marks.anyOverlap(box) {
		r.edits[i] = ""
	}
}

func (r *streamRedactor) inlineImage(i int, st *gstate) {
	if r.marks.anyOverlap(st.ctm.TransformRect(Rect{0, 0, 1, 1})) {
		r.edits[i] = ""
	}
}

func (r *streamRedactor) xobject(i int, name string, st *gstate) {
	if r.err != nil {
		return
	}
	ref, subtype := r.res.xobject(name)
	switch subtype {
	case "Image":
		rects := r.marks.overlapping(st.ctm.TransformRect(Rect{0, 0, 1, 1}))
		if len(rects) == 0 {
			return
		}
		ir, ok, err := redactImage(r.x, ref, st.ctm, rects)
		if err != nil {
			r.err = err
			return
		}
		if !ok {
			r.replace(i, ref, "")
			return
		}
		r.replace(i, ref, "/"+r.addXObject(ir)+" Do")

	case "Form":
		r.redactForm(i, ref, st)
	}
}

func (r *streamRedactor) redactForm(i int, ref types.Object, st *gstate) {
	f, err := loadForm(r.res, ref)
	if err != nil {
		r.replace(i, ref, "")
		return
	}
	ctm := f.matrix.Mul(st.ctm)
	if !f.bbox.Empty() && !r.marks.anyOverlap(ctm.TransformRect(f.bbox)) {
		return
	}
	if r.depth+1 >= maxFormDepth {
		r.replace(i, ref, "")
		return
	}

	sub := newStreamRedactor(r.x, r.marks, f.res, f.src, f.ops, r.depth+1, r.replaced)
	if err := sub.run(ctm); err != nil {
		r.err = err
		return
	}
	if !sub.changed() {
		return
	}

	extra := copyDict(f.dict)
	if len(sub.added) > 0 {
		extra["Resources"] = sub.resourceDict()
	}
	ir, err := r.x.newStream(sub.output(), extra)
	if err != nil {
		r.err = err
		return
	}
	r.replace(i, ref, "/"+r.addXObject(ir)+" Do")
}

// Redact destroys the content covered by changes. Pages outside the
// document are skipped, as are area boxes that fall entirely off the page.
func (d *Document) Redact(ctx context.Context, changes []domain.RedactionChange) error {
	marks := map[int][]Mark{}
	pages := map[int]*Page{}
	layouts := map[int]struct {
		glyphs []Glyph
		l      *layout
	}{}

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Page < 0 || c.Page >= d.PageCount() {
			continue
		}
		p, ok := pages[c.Page]
		if !ok {
			var err error
			if p, err = d.Page(c.Page); err != nil {
				return err
			}
			pages[c.Page] = p
		}

		switch c.Kind {
		case domain.KindArea:
			x0, y0, x1, y1, ok := domain.ClipUnit(c)
			if !ok {
				continue
			}
			marks[c.Page] = append(marks[c.Page], Mark{Rect: p.UnitToUser(x0, y0, x1-x0, y1-y0)})

		case domain.KindText:
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			lay, ok := layouts[c.Page]
			if !ok {
				glyphs, err := d.Glyphs(c.Page)
				if err != nil {
					return err
				}
				lay.glyphs, lay.l = glyphs, buildLayout(glyphs)
				layouts[c.Page] = lay
			}
			for _, rect := range lay.l.find(lay.glyphs, c.Text) {
				marks[c.Page] = append(marks[c.Page], Mark{Rect: rect, MinCoverage: textCoverage})
			}
		}
	}

	replaced := map[int]bool{}
	order := make([]int, 0, len(marks))
	for page := range marks {
		order = append(order, page)
	}
	sort.Ints(order)

	for _, page := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.redactPage(pages[page], marks[page], replaced); err != nil {
			return fmt.Errorf("failed to redact page %d: %w", page, err)
		}
	}
	if err := d.dropUnusedXObjects(replaced); err != nil {
		return fmt.Errorf("failed to drop replaced objects: %w", err)
	}
	return nil
}

func (d *Document) redactPage(p *Page, marks []Mark, replaced map[int]bool) error {
	src, err := d.content(p)
	if err != nil {
		return err
	}
	ops, err := ParseContent(src)
	if err != nil {
		return fmt.Errorf("failed to parse content: %w", err)
	}

	set := newMarkSet(marks)
	r := newStreamRedactor(d.x, set, newResources(d.x, p.res), src, ops, 0, replaced)
	if err := r.run(Identity); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("q\n")
	buf.Write(r.output())
	buf.WriteString("\nQ\n")
	writeOverlay(&buf, marks)

	ref, err := d.x.newStream(buf.Bytes(), nil)
	if err != nil {
		return err
	}
	p.dict["Contents"] = *ref
	if len(r.added) > 0 {
		p.dict["Resources"] = r.resourceDict()
	}
	// the thumbnail still shows what was removed
	delete(p.dict, "Thumb")

	d.redactAnnotations(p, set)
	return nil
}

func writeOverlay(buf *bytes.Buffer, marks []Mark) {
	buf.WriteString("q 0 g\n")
	for _, m := range marks {
		r := m.Rect
		fmt.Fprintf(buf, "%s %s %s %s re f\n",
			formatNumber(r.LLX), formatNumber(r.LLY), formatNumber(r.Width()), formatNumber(r.Height()))
	}
	buf.WriteString("Q\n")
}

// redactAnnotations drops annotations whose rectangle meets a mark. Form
// field values behind removed widgets are cleared as well.
func (d *Document) redactAnnotations(p *Page, set *markSet) {
	annots := d.x.array(p.dict["Annots"])
	if len(annots) == 0 {
		return
	}
	kept := types.Array{}
	for _, a := range annots {
		ad := d.x.dict(a)
		rect, ok := d.x.rect(ad["Rect"])
		if ad == nil || !ok || !set.anyOverlap(rect) {
			kept = append(kept, a)
			continue
		}
		if d.x.name(ad["Subtype"]) == "Widget" {
			delete(ad, "V")
			delete(ad, "AP")
			if parent := d.x.dict(ad["Parent"]); parent != nil {
				delete(parent, "V")
			}
		}
	}
	if len(kept) == len(annots) {
		return
	}
	if len(kept) == 0 {
		delete(p.dict, "Annots")
		return
	}
	p.dict["Annots"] = kept
}
