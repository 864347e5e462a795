package pdfdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrix(t *testing.T) {
	t.Run("mul applies left operand first", func(t *testing.T) {
		scale := Matrix{2, 0, 0, 2, 0, 0}
		move := Matrix{1, 0, 0, 1, 10, 5}
		x, y := scale.Mul(move).Apply(1, 1)
		assert.Equal(t, 12.0, x)
		assert.Equal(t, 7.0, y)
	})

	t.Run("invert round trips", func(t *testing.T) {
		m := Matrix{0, 2, -3, 0, 7, 11}
		inv, ok := m.Invert()
		assert.True(t, ok)
		x, y := inv.Apply(m.Apply(4, 5))
		assert.InDelta(t, 4, x, 1e-9)
		assert.InDelta(t, 5, y, 1e-9)

		_, ok = Matrix{1, 2, 2, 4, 0, 0}.Invert()
		assert.False(t, ok)
	})

	t.Run("transform rect bounds rotated corners", func(t *testing.T) {
		rot := Matrix{0, 1, -1, 0, 0, 0}
		r := rot.TransformRect(Rect{0, 0, 10, 20})
		assert.Equal(t, Rect{-20, 0, 0, 10}, r)
	})
}

func TestRect(t *testing.T) {
	a := Rect{0, 0, 10, 10}
	assert.Equal(t, 100.0, a.Area())
	assert.Equal(t, 0.25, a.Coverage(Rect{5, 5, 20, 20}))
	assert.Equal(t, 0.0, a.Coverage(Rect{10, 0, 20, 10}))
	assert.True(t, a.Touches(Rect{10, 0, 20, 10}))

	line := Rect{0, 5, 10, 5}
	assert.Equal(t, 1.0, line.Coverage(a))
	assert.True(t, EmptyRect().Empty())
	assert.Equal(t, a, EmptyRect().Union(a))
}

func TestMarkSet(t *testing.T) {
	var marks []Mark
	for i := 0; i < 40; i++ {
		x := float64(i * 10)
		marks = append(marks, Mark{Rect: Rect{x, 0, x + 5, 5}})
	}
	marks = append(marks, Mark{Rect: Rect{0, 100, 20, 110}, MinCoverage: 0.5})
	set := newMarkSet(marks)

	assert.True(t, set.hit(Rect{101, 1, 102, 2}))
	assert.False(t, set.hit(Rect{106, 1, 108, 2}))
	assert.Len(t, set.overlapping(Rect{0, 0, 400, 5}), 40)

	// text marks need half of the glyph box
	assert.True(t, set.hit(Rect{15, 100, 21, 110}))
	assert.False(t, set.hit(Rect{18, 100, 26, 110}))
	assert.True(t, set.anyOverlap(Rect{18, 100, 26, 110}))
}

func TestMarkIndexDepthIsBounded(t *testing.T) {
	var marks []Mark
	for i := 0; i < 100; i++ {
		marks = append(marks, Mark{Rect: Rect{1, 1, 2, 2}})
	}
	set := newMarkSet(marks)
	assert.Len(t, set.index.query(Rect{0, 0, 3, 3}), 100)
}
