package pdfdoc

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var ErrPageRange = errors.New("page out of range")

// Document is a PDF loaded for inspection or redaction.
type Document struct {
	ctx *model.Context
	x   xref
}

var disableConfigDir sync.Once

func newConfiguration() *model.Configuration {
	// keep pdfcpu from creating a config directory under $HOME
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open reads the PDF at path.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a PDF from rs.
func Read(rs io.ReadSeeker) (*Document, error) {
	ctx, err := api.ReadContext(rs, newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate pdf: %w", err)
	}
	return &Document{ctx: ctx, x: xref{ctx: ctx}}, nil
}

func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Write serializes the document, dropping unreachable objects.
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// Page is one page with its inherited attributes resolved.
type Page struct {
	Index  int
	Crop   Rect
	Rotate int

	dict types.Dict
	res  types.Dict
}

// Page returns the zero based page index.
func (d *Document) Page(index int) (*Page, error) {
	if index < 0 || index >= d.PageCount() {
		return nil, fmt.Errorf("%w: %d", ErrPageRange, index)
	}
	pd, _, attrs, err := d.ctx.PageDict(index+1, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %d: %w", index, err)
	}
	if pd == nil {
		return nil, fmt.Errorf("%w: %d", ErrPageRange, index)
	}

	p := &Page{Index: index, dict: pd}

	media, ok := d.x.rect(pd["MediaBox"])
	if !ok && attrs != nil && attrs.MediaBox != nil {
		media = Rect{attrs.MediaBox.LL.X, attrs.MediaBox.LL.Y, attrs.MediaBox.UR.X, attrs.MediaBox.UR.Y}.Normalize()
		ok = true
	}
	if !ok {
		media = Rect{0, 0, 612, 792}
	}
	crop, ok := d.x.rect(pd["CropBox"])
	if !ok && attrs != nil && attrs.CropBox != nil {
		crop = Rect{attrs.CropBox.LL.X, attrs.CropBox.LL.Y, attrs.CropBox.UR.X, attrs.CropBox.UR.Y}.Normalize()
		ok = true
	}
	if !ok || crop.Intersect(media).Empty() {
		crop = media
	} else {
		crop = crop.Intersect(media)
	}
	p.Crop = crop

	rot := 0
	if r, ok := d.x.number(pd["Rotate"]); ok {
		rot = int(r)
	} else if attrs != nil {
		rot = attrs.Rotate
	}
	p.Rotate = normalizeRotation(rot)

	if rd := d.x.dict(pd["Resources"]); rd != nil {
		p.res = rd
	} else if attrs != nil && attrs.Resources != nil {
		p.res = attrs.Resources
	} else {
		p.res = types.Dict{}
	}
	return p, nil
}

func normalizeRotation(r int) int {
	r = ((r % 360) + 360) % 360
	return int(math.Round(float64(r)/90)) * 90 % 360
}

// content concatenates the page content streams.
func (d *Document) content(p *Page) ([]byte, error) {
	obj := p.dict["Contents"]
	if obj == nil {
		return nil, nil
	}
	var parts []types.Object
	if arr := d.x.array(obj); arr != nil {
		parts = arr
	} else {
		parts = []types.Object{obj}
	}

	var out []byte
	for _, part := range parts {
		data, err := d.x.content(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d content: %w", p.Index, err)
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}

// Size is the displayed page size in points, rotation applied.
func (p *Page) Size() (float64, float64) {
	w, h := p.Crop.Width(), p.Crop.Height()
	if p.Rotate == 90 || p.Rotate == 270 {
		return h, w
	}
	return w, h
}

// UnitToUser maps a rectangle given in fractions of the displayed page, with
// the origin at the top left, to default user space.
func (p *Page) UnitToUser(x, y, w, h float64) Rect {
	x0, y0 := p.unitPoint(x, y)
	x1, y1 := p.unitPoint(x+w, y+h)
	return Rect{x0, y0, x1, y1}.Normalize()
}

func (p *Page) unitPoint(ux, uy float64) (float64, float64) {
	W, H := p.Crop.Width(), p.Crop.Height()
	dw, dh := p.Size()
	dx, dy := ux*dw, uy*dh

	var px, py float64 // offsets from the crop box top left, unrotated
	switch p.Rotate {
	case 90:
		px, py = dy, H-dx
	case 180:
		px, py = W-dx, H-dy
	case 270:
		px, py = W-dy, dx
	default:
		px, py = dx, dy
	}
	return p.Crop.LLX + px, p.Crop.URY - py
}

// Glyphs returns the glyphs shown on a page in content order.
func (d *Document) Glyphs(index int) ([]Glyph, error) {
	p, err := d.Page(index)
	if err != nil {
		return nil, err
	}
	src, err := d.content(p)
	if err != nil {
		return nil, err
	}
	ops, err := ParseContent(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %d content: %w", index, err)
	}
	var glyphs []Glyph
	res := newResources(d.x, p.res)
	interpret(ops, res, Identity, &textCollector{res: res, glyphs: &glyphs})
	return glyphs, nil
}

// PageText extracts the text of a page in content order.
func (d *Document) PageText(index int) (string, error) {
	glyphs, err := d.Glyphs(index)
	if err != nil {
		return "", err
	}
	return buildLayout(glyphs).String(), nil
}

// Search finds every exact occurrence of needle on a page. Whitespace runs
// compare equal to a single space. One rectangle is returned per line of
// each occurrence.
func (d *Document) Search(index int, needle string) ([]Rect, error) {
	glyphs, err := d.Glyphs(index)
	if err != nil {
		return nil, err
	}
	return buildLayout(glyphs).find(glyphs, needle), nil
}
