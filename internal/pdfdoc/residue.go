package pdfdoc

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const maxPageTreeDepth = 64

// xobjectUse records which XObjects a content stream paints, following
// forms, and the resource dictionaries it reaches on the way.
type xobjectUse struct {
	res   *resources
	depth int
	drawn map[int]bool
	dicts *[]types.Dict
}

func (u *xobjectUse) text(int, []Glyph, *gstate)    {}
func (u *xobjectUse) paint(int, int, Rect, *gstate) {}
func (u *xobjectUse) inlineImage(int, *gstate)      {}
func (u *xobjectUse) shading(int, Rect, *gstate)    {}

func (u *xobjectUse) xobject(_ int, name string, st *gstate) {
	ref, subtype := u.res.xobject(name)
	if ref == nil {
		return
	}
	if ir, ok := ref.(types.IndirectRef); ok {
		u.drawn[ir.ObjectNumber.Value()] = true
	}
	if subtype != "Form" || u.depth+1 >= maxFormDepth {
		return
	}
	f, err := loadForm(u.res, ref)
	if err != nil {
		return
	}
	if f.ownRes {
		*u.dicts = append(*u.dicts, f.res.dict)
	}
	sub := &xobjectUse{res: f.res, depth: u.depth + 1, drawn: u.drawn, dicts: u.dicts}
	interpret(f.ops, f.res, f.matrix.Mul(st.ctm), sub)
}

// dropUnusedXObjects removes entries naming any of objs from the resource
// dictionaries pages reach, unless some page still paints that object. A
// replaced image or form is otherwise written out intact, since the writer
// keeps every object a dictionary refers to.
func (d *Document) dropUnusedXObjects(objs map[int]bool) error {
	if len(objs) == 0 {
		return nil
	}

	drawn := map[int]bool{}
	var dicts []types.Dict
	for i := 0; i < d.PageCount(); i++ {
		p, err := d.Page(i)
		if err != nil {
			return err
		}
		if rd := d.x.dict(p.dict["Resources"]); rd != nil {
			dicts = append(dicts, rd)
		}
		dicts = append(dicts, d.inheritedResources(p.dict)...)

		src, err := d.content(p)
		if err != nil {
			return err
		}
		ops, err := ParseContent(src)
		if err != nil {
			// unknown use, keep everything the page can name
			for _, v := range d.x.subdict(p.res, "XObject") {
				if ir, ok := v.(types.IndirectRef); ok {
					drawn[ir.ObjectNumber.Value()] = true
				}
			}
			continue
		}
		res := newResources(d.x, p.res)
		interpret(ops, res, Identity, &xobjectUse{res: res, drawn: drawn, dicts: &dicts})
	}

	for _, rd := range dicts {
		xo := d.x.subdict(rd, "XObject")
		for name, v := range xo {
			ir, ok := v.(types.IndirectRef)
			if !ok {
				continue
			}
			n := ir.ObjectNumber.Value()
			if objs[n] && !drawn[n] {
				delete(xo, name)
			}
		}
	}
	return nil
}

// inheritedResources returns the resource dictionaries of the page tree
// nodes above a page.
func (d *Document) inheritedResources(page types.Dict) []types.Dict {
	var out []types.Dict
	node := d.x.dict(page["Parent"])
	for depth := 0; node != nil && depth < maxPageTreeDepth; depth++ {
		if rd := d.x.dict(node["Resources"]); rd != nil {
			out = append(out, rd)
		}
		node = d.x.dict(node["Parent"])
	}
	return out
}
