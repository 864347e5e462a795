package pdfdoc

import (
	"math"
	"strings"
	"unicode"
)

const maxFormDepth = 8

// textCollector gathers glyphs in content order, descending into forms.
type textCollector struct {
	res    *resources
	depth  int
	glyphs *[]Glyph
}

func (c *textCollector) text(_ int, glyphs []Glyph, _ *gstate) {
	*c.glyphs = append(*c.glyphs, glyphs...)
}

func (c *textCollector) paint(int, int, Rect, *gstate) {}
func (c *textCollector) inlineImage(int, *gstate)      {}
func (c *textCollector) shading(int, Rect, *gstate)    {}

func (c *textCollector) xobject(_ int, name string, st *gstate) {
	if c.depth >= maxFormDepth {
		return
	}
	ref, subtype := c.res.xobject(name)
	if subtype != "Form" {
		return
	}
	form, err := loadForm(c.res, ref)
	if err != nil {
		return
	}
	interpret(form.ops, form.res, form.matrix.Mul(st.ctm), &textCollector{res: form.res, depth: c.depth + 1, glyphs: c.glyphs})
}

// layout is the reading-order text of a run of glyphs.
type layout struct {
	runes []rune
	owner []int // glyph index per rune, -1 for synthesized separators
	line  []int // line number per glyph
}

func sameLine(a, b Glyph) bool {
	ha, hb := a.Box.Height(), b.Box.Height()
	tol := 0.5 * math.Max(ha, hb)
	ca := (a.Box.LLY + a.Box.URY) / 2
	cb := (b.Box.LLY + b.Box.URY) / 2
	if math.Abs(ca-cb) > tol {
		return false
	}
	return b.Box.LLX >= a.Box.LLX-math.Max(a.Size, 1)
}

func buildLayout(glyphs []Glyph) *layout {
	l := &layout{line: make([]int, len(glyphs))}
	lineNo := 0
	prev := -1

	push := func(r rune, owner int) {
		if unicode.IsSpace(r) {
			if n := len(l.runes); n == 0 || l.runes[n-1] == ' ' || l.runes[n-1] == '\n' {
				return
			}
			r = ' '
		}
		l.runes = append(l.runes, r)
		l.owner = append(l.owner, owner)
	}

	for i, g := range glyphs {
		if g.Text == "" && !g.Space {
			l.line[i] = lineNo
			continue
		}
		if prev >= 0 {
			p := glyphs[prev]
			if !sameLine(p, g) {
				lineNo++
				if n := len(l.runes); n > 0 && l.runes[n-1] == ' ' {
					l.runes[n-1] = '\n'
					l.owner[n-1] = -1
				} else if n > 0 {
					l.runes = append(l.runes, '\n')
					l.owner = append(l.owner, -1)
				}
			} else if gap := g.Box.LLX - p.Box.URX; gap > 0.25*math.Max(g.Size, 1) && !p.Space && !g.Space {
				push(' ', -1)
			}
		}
		l.line[i] = lineNo
		text := g.Text
		if g.Space && text == "" {
			text = " "
		}
		for _, r := range text {
			push(r, i)
		}
		prev = i
	}
	return l
}

func (l *layout) String() string {
	return strings.TrimSpace(string(l.runes))
}

func normalizeNeedle(s string) []rune {
	return []rune(strings.Join(strings.Fields(s), " "))
}

// find returns, for every exact occurrence of needle, one rectangle per text
// line the occurrence spans.
func (l *layout) find(glyphs []Glyph, needle string) []Rect {
	n := normalizeNeedle(needle)
	if len(n) == 0 {
		return nil
	}
	hay := make([]rune, len(l.runes))
	for i, r := range l.runes {
		if r == '\n' {
			r = ' '
		}
		hay[i] = r
	}

	var out []Rect
	for start := 0; start+len(n) <= len(hay); start++ {
		if !runesEqual(hay[start:start+len(n)], n) {
			continue
		}
		var (
			cur     = EmptyRect()
			curLine = -1
			seen    = map[int]bool{}
		)
		for _, gi := range l.owner[start : start+len(n)] {
			if gi < 0 || seen[gi] {
				continue
			}
			seen[gi] = true
			if l.line[gi] != curLine && !cur.Empty() {
				out = append(out, cur)
				cur = EmptyRect()
			}
			curLine = l.line[gi]
			cur = cur.Union(glyphs[gi].Box)
		}
		if !cur.Empty() {
			out = append(out, cur)
		}
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
