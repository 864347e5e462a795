package pdfdoc

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
)

// imageSamples is a decoded sample buffer for an image XObject.
type imageSamples struct {
	data   []byte
	width  int
	height int
	comps  int
	bpc    int
	// converted is set when the samples were re-expressed in a device color
	// space, so ColorSpace and Decode must be rewritten.
	converted string
}

func (s *imageSamples) rowBytes() int {
	return (s.width*s.comps*s.bpc + 7) / 8
}

func colorComponents(x xref, cs types.Object) int {
	switch v := x.deref(cs).(type) {
	case types.Name:
		switch v {
		case "DeviceGray", "CalGray", "G":
			return 1
		case "DeviceRGB", "CalRGB", "RGB":
			return 3
		case "DeviceCMYK", "CMYK":
			return 4
		}
	case types.Array:
		if len(v) == 0 {
			return 0
		}
		switch x.name(v[0]) {
		case "Indexed", "I", "Separation", "CalGray":
			return 1
		case "CalRGB", "Lab":
			return 3
		case "DeviceN":
			if len(v) > 1 {
				return len(x.array(v[1]))
			}
		case "ICCBased":
			if len(v) > 1 {
				if n, ok := x.number(x.dict(v[1])["N"]); ok {
					return int(n)
				}
			}
		}
	}
	return 0
}

// decodeImage returns the raw samples of an image stream, or false when the
// encoding is not one this package can rewrite. defaultComps applies when the
// stream names no color space, as for soft masks.
func decodeImage(x xref, sd *types.StreamDict, defaultComps int) (*imageSamples, bool) {
	d := sd.Dict
	w, ok1 := x.number(d["Width"])
	h, ok2 := x.number(d["Height"])
	if !ok1 || !ok2 || w <= 0 || h <= 0 {
		return nil, false
	}
	s := &imageSamples{width: int(w), height: int(h)}

	if x.boolean(d["ImageMask"]) {
		s.comps, s.bpc = 1, 1
	} else {
		s.comps = colorComponents(x, d["ColorSpace"])
		if d["ColorSpace"] == nil {
			s.comps = defaultComps
		}
		bpc, ok := x.number(d["BitsPerComponent"])
		if !ok {
			bpc = 8
		}
		s.bpc = int(bpc)
	}

	var names []string
	for _, f := range sd.FilterPipeline {
		names = append(names, f.Name)
	}
	for _, n := range names {
		switch n {
		case filter.JPX, filter.JBIG2, filter.CCITTFax:
			return nil, false
		}
	}

	if len(names) > 0 && names[len(names)-1] == filter.DCT {
		if len(names) != 1 {
			return nil, false
		}
		return decodeJPEG(sd.Raw)
	}

	if s.comps <= 0 {
		return nil, false
	}
	switch s.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, false
	}
	if err := sd.Decode(); err != nil {
		return nil, false
	}
	need := s.rowBytes() * s.height
	if len(sd.Content) < need {
		return nil, false
	}
	s.data = append([]byte(nil), sd.Content[:need]...)
	return s, true
}

func decodeJPEG(raw []byte) (*imageSamples, bool) {
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, false
	}
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok {
		s := &imageSamples{width: b.Dx(), height: b.Dy(), comps: 1, bpc: 8, converted: "DeviceGray"}
		s.data = make([]byte, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := (y - b.Min.Y) * g.Stride
			s.data = append(s.data, g.Pix[off:off+b.Dx()]...)
		}
		return s, true
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	s := &imageSamples{width: b.Dx(), height: b.Dy(), comps: 3, bpc: 8, converted: "DeviceRGB"}
	s.data = make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		s.data = append(s.data, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	return s, true
}

// pixelRegion maps a user space rectangle onto the sample grid of an image
// painted with ctm. The region is empty when nothing is covered.
func pixelRegion(inv Matrix, r Rect, width, height int) image.Rectangle {
	u := inv.TransformRect(r).Intersect(Rect{0, 0, 1, 1})
	if u.Empty() || u.Area() == 0 {
		return image.Rectangle{}
	}
	x0 := int(math.Floor(u.LLX * float64(width)))
	x1 := int(math.Ceil(u.URX * float64(width)))
	y0 := int(math.Floor((1 - u.URY) * float64(height)))
	y1 := int(math.Ceil((1 - u.LLY) * float64(height)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}

// fill sets every sample in the region to all zero or all one bits.
func (s *imageSamples) fill(region image.Rectangle, ones bool) {
	rb := s.rowBytes()
	for y := region.Min.Y; y < region.Max.Y; y++ {
		row := s.data[y*rb : (y+1)*rb]
		if s.bpc == 8 {
			v := byte(0)
			if ones {
				v = 0xff
			}
			for i := region.Min.X * s.comps; i < region.Max.X*s.comps; i++ {
				row[i] = v
			}
			continue
		}
		first := region.Min.X * s.comps * s.bpc
		lastBit := region.Max.X * s.comps * s.bpc
		for bit := first; bit < lastBit; bit++ {
			mask := byte(0x80) >> uint(bit%8)
			if ones {
				row[bit/8] |= mask
			} else {
				row[bit/8] &^= mask
			}
		}
	}
}

// maskFillOnes reports whether hidden stencil samples are ones, which holds
// for the default Decode array.
func maskFillOnes(x xref, d types.Dict) bool {
	dec := x.numbers(d["Decode"])
	return !(len(dec) == 2 && dec[0] == 1 && dec[1] == 0)
}

// redactImage returns a copy of the image XObject ref with the samples under
// rects cleared. ok is false when the image cannot be rewritten and must be
// dropped instead.
func redactImage(x xref, ref types.Object, ctm Matrix, rects []Rect) (*types.IndirectRef, bool, error) {
	inv, ok := ctm.Invert()
	if !ok {
		return nil, false, nil
	}
	sd, err := x.stream(ref)
	if err != nil {
		return nil, false, nil
	}
	samples, ok := decodeImage(x, sd, 0)
	if !ok {
		return nil, false, nil
	}

	stencil := x.boolean(sd.Dict["ImageMask"])
	ones := stencil && maskFillOnes(x, sd.Dict)
	for _, r := range rects {
		samples.fill(pixelRegion(inv, r, samples.width, samples.height), ones)
	}

	extra := copyDict(sd.Dict)
	extra["Width"] = types.Integer(samples.width)
	extra["Height"] = types.Integer(samples.height)
	if !stencil {
		extra["BitsPerComponent"] = types.Integer(samples.bpc)
	}
	if samples.converted != "" {
		extra["ColorSpace"] = types.Name(samples.converted)
		delete(extra, "Decode")
	}

	for _, key := range []string{"SMask", "Mask"} {
		m, present := sd.Dict[key]
		if !present {
			continue
		}
		if _, isArray := x.deref(m).(types.Array); isArray {
			continue // color key masking carries no shape
		}
		mref, ok, err := redactMask(x, m, inv, rects, key == "Mask")
		if err != nil {
			return nil, false, err
		}
		if ok {
			extra[key] = *mref
		} else {
			delete(extra, key)
		}
	}

	ir, err := x.newStream(samples.data, extra)
	if err != nil {
		return nil, false, err
	}
	return ir, true, nil
}

// redactMask clears a soft mask (to transparent) or hides a stencil mask
// under rects.
func redactMask(x xref, ref types.Object, inv Matrix, rects []Rect, stencil bool) (*types.IndirectRef, bool, error) {
	sd, err := x.stream(ref)
	if err != nil {
		return nil, false, nil
	}
	samples, ok := decodeImage(x, sd, 1)
	if !ok {
		return nil, false, nil
	}
	ones := stencil && maskFillOnes(x, sd.Dict)
	for _, r := range rects {
		samples.fill(pixelRegion(inv, r, samples.width, samples.height), ones)
	}
	extra := copyDict(sd.Dict)
	if !stencil {
		if samples.converted != "" {
			samples.data = grayFromRGB(samples)
			delete(extra, "Decode")
		}
		extra["ColorSpace"] = types.Name("DeviceGray")
		extra["BitsPerComponent"] = types.Integer(samples.bpc)
	}
	ir, err := x.newStream(samples.data, extra)
	if err != nil {
		return nil, false, err
	}
	return ir, true, nil
}

func grayFromRGB(s *imageSamples) []byte {
	if s.comps != 3 {
		return s.data
	}
	out := make([]byte, 0, len(s.data)/3)
	for i := 0; i+2 < len(s.data); i += 3 {
		out = append(out, byte((int(s.data[i])*299+int(s.data[i+1])*587+int(s.data[i+2])*114)/1000))
	}
	s.comps = 1
	return out
}
