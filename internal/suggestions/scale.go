package suggestions

import (
	"image"

	"golang.org/x/image/draw"
)

// fitWithin scales img down so its longer side is at most max pixels. It
// returns the scaled image and the factor applied (1 when unchanged).
func fitWithin(img image.Image, max int) (image.Image, float64) {
	b := img.Bounds()
	long := b.Dx()
	if b.Dy() > long {
		long = b.Dy()
	}
	if max <= 0 || long <= max {
		return img, 1
	}

	factor := float64(max) / float64(long)
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(b.Dx())
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
