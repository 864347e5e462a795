package pdfdoc

import "math"

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Mul returns m followed by n.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Invert returns the inverse and false when m is singular.
func (m Matrix) Invert() (Matrix, bool) {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 || math.IsNaN(det) {
		return Matrix{}, false
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, true
}

// TransformRect maps r through m and returns the axis-aligned bounds.
func (m Matrix) TransformRect(r Rect) Rect {
	out := EmptyRect()
	for _, p := range [4][2]float64{{r.LLX, r.LLY}, {r.URX, r.LLY}, {r.LLX, r.URY}, {r.URX, r.URY}} {
		x, y := m.Apply(p[0], p[1])
		out = out.AddPoint(x, y)
	}
	return out
}

// scale is the geometric mean of the axis scale factors.
func (m Matrix) scale() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

func matrixFrom(operands []Object) (Matrix, bool) {
	if len(operands) < 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i := 0; i < 6; i++ {
		v, ok := operands[len(operands)-6+i].(float64)
		if !ok {
			return Matrix{}, false
		}
		m[i] = v
	}
	return m, true
}

// Rect is an axis-aligned rectangle in PDF user space.
type Rect struct {
	LLX, LLY, URX, URY float64
}

// EmptyRect is the identity for Union and AddPoint.
func EmptyRect() Rect {
	return Rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
}

func (r Rect) Empty() bool {
	return !(r.LLX <= r.URX && r.LLY <= r.URY)
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

func (r Rect) Normalize() Rect {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

func (r Rect) AddPoint(x, y float64) Rect {
	return Rect{math.Min(r.LLX, x), math.Min(r.LLY, y), math.Max(r.URX, x), math.Max(r.URY, y)}
}

func (r Rect) Union(o Rect) Rect {
	if o.Empty() {
		return r
	}
	if r.Empty() {
		return o
	}
	return Rect{math.Min(r.LLX, o.LLX), math.Min(r.LLY, o.LLY), math.Max(r.URX, o.URX), math.Max(r.URY, o.URY)}
}

func (r Rect) Intersect(o Rect) Rect {
	return Rect{math.Max(r.LLX, o.LLX), math.Max(r.LLY, o.LLY), math.Min(r.URX, o.URX), math.Min(r.URY, o.URY)}
}

// Touches reports whether the closed rectangles share at least one point.
func (r Rect) Touches(o Rect) bool {
	return !r.Empty() && !o.Empty() &&
		r.LLX <= o.URX && o.LLX <= r.URX && r.LLY <= o.URY && o.LLY <= r.URY
}

func (r Rect) Inset(d float64) Rect {
	return Rect{r.LLX + d, r.LLY + d, r.URX - d, r.URY - d}
}

// Coverage is the fraction of r covered by o. Degenerate rectangles count as
// fully covered when they touch o.
func (r Rect) Coverage(o Rect) float64 {
	if r.Empty() || o.Empty() {
		return 0
	}
	a := r.Area()
	if a == 0 {
		if r.Touches(o) {
			return 1
		}
		return 0
	}
	return r.Intersect(o).Area() / a
}
