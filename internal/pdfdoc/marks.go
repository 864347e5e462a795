package pdfdoc

const (
	markNodeCapacity = 8
	markMaxDepth     = 8
)

// Mark is a redaction rectangle in default user space.
type Mark struct {
	Rect Rect
	// MinCoverage is the fraction of a glyph box that must fall inside Rect
	// for the glyph to be removed. Zero means any overlap.
	MinCoverage float64
}

func (m Mark) removes(box Rect) bool {
	if m.MinCoverage <= 0 {
		return overlaps(box, m.Rect)
	}
	return box.Coverage(m.Rect) >= m.MinCoverage
}

// overlaps reports a positive-area intersection, or contact for degenerate boxes.
func overlaps(box, r Rect) bool {
	if box.Area() == 0 {
		return box.Touches(r)
	}
	return box.Intersect(r).Area() > 0
}

// markIndex is a quadtree over marks.
type markIndex struct {
	bounds Rect
	depth  int
	items  []indexedMark
	nodes  []*markIndex
}

type indexedMark struct {
	rect Rect
	idx  int
}

func newMarkIndex(bounds Rect, depth int) *markIndex {
	return &markIndex{bounds: bounds, depth: depth, items: make([]indexedMark, 0, markNodeCapacity)}
}

func buildMarkIndex(marks []Mark) *markIndex {
	bounds := EmptyRect()
	for _, m := range marks {
		bounds = bounds.Union(m.Rect)
	}
	idx := newMarkIndex(bounds, 0)
	for i, m := range marks {
		idx.insert(m.Rect, i)
	}
	return idx
}

func (q *markIndex) insert(r Rect, i int) {
	if q.nodes != nil {
		for _, n := range q.nodes {
			if contains(n.bounds, r) {
				n.insert(r, i)
				return
			}
		}
		q.items = append(q.items, indexedMark{r, i})
		return
	}

	if len(q.items) < markNodeCapacity || q.depth >= markMaxDepth {
		q.items = append(q.items, indexedMark{r, i})
		return
	}

	q.subdivide()
	old := q.items
	q.items = make([]indexedMark, 0, markNodeCapacity)
	for _, it := range old {
		q.insert(it.rect, it.idx)
	}
	q.insert(r, i)
}

func (q *markIndex) subdivide() {
	xMid := (q.bounds.LLX + q.bounds.URX) / 2
	yMid := (q.bounds.LLY + q.bounds.URY) / 2
	d := q.depth + 1
	q.nodes = []*markIndex{
		newMarkIndex(Rect{q.bounds.LLX, yMid, xMid, q.bounds.URY}, d),
		newMarkIndex(Rect{xMid, yMid, q.bounds.URX, q.bounds.URY}, d),
		newMarkIndex(Rect{q.bounds.LLX, q.bounds.LLY, xMid, yMid}, d),
		newMarkIndex(Rect{xMid, q.bounds.LLY, q.bounds.URX, yMid}, d),
	}
}

// query returns the indices of marks whose rectangles touch r.
func (q *markIndex) query(r Rect) []int {
	if q == nil || !q.bounds.Touches(r) {
		return nil
	}
	var found []int
	for _, it := range q.items {
		if it.rect.Touches(r) {
			found = append(found, it.idx)
		}
	}
	for _, n := range q.nodes {
		found = append(found, n.query(r)...)
	}
	return found
}

func contains(outer, inner Rect) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}

// markSet answers removal questions for one page.
type markSet struct {
	marks []Mark
	index *markIndex
}

func newMarkSet(marks []Mark) *markSet {
	return &markSet{marks: marks, index: buildMarkIndex(marks)}
}

// hit reports whether any mark removes a glyph with the given box.
func (s *markSet) hit(box Rect) bool {
	for _, i := range s.index.query(box) {
		if s.marks[i].removes(box) {
			return true
		}
	}
	return false
}

// anyOverlap reports whether any mark overlaps box regardless of coverage rules.
func (s *markSet) anyOverlap(box Rect) bool {
	for _, i := range s.index.query(box) {
		if overlaps(box, s.marks[i].Rect) {
			return true
		}
	}
	return false
}

// overlapping returns the mark rectangles that overlap box.
func (s *markSet) overlapping(box Rect) []Rect {
	var out []Rect
	for _, i := range s.index.query(box) {
		if overlaps(box, s.marks[i].Rect) {
			out = append(out, s.marks[i].Rect)
		}
	}
	return out
}
