package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// form is a parsed form XObject.
type form struct {
	dict   types.Dict
	src    []byte
	ops    []Op
	res    *resources
	ownRes bool
	matrix Matrix
	bbox   Rect
}

func loadForm(parent *resources, ref types.Object) (*form, error) {
	x := parent.x
	sd, err := x.stream(ref)
	if err != nil {
		return nil, err
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode form: %w", err)
	}
	ops, err := ParseContent(sd.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	f := &form{dict: sd.Dict, src: sd.Content, ops: ops, matrix: Identity}
	if m := x.numbers(sd.Dict["Matrix"]); len(m) == 6 {
		copy(f.matrix[:], m)
	}
	if b, ok := x.rect(sd.Dict["BBox"]); ok {
		f.bbox = b
	} else {
		f.bbox = EmptyRect()
	}
	if rd := x.dict(sd.Dict["Resources"]); rd != nil {
		f.res = newResources(x, rd)
		f.ownRes = true
	} else {
		f.res = parent
	}
	return f, nil
}
