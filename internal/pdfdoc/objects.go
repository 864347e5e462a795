package pdfdoc

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// xref wraps the pdfcpu cross reference table with lenient accessors.
type xref struct {
	ctx *model.Context
}

func (x xref) deref(o types.Object) types.Object {
	if o == nil {
		return nil
	}
	v, err := x.ctx.Dereference(o)
	if err != nil {
		return nil
	}
	return v
}

func (x xref) dict(o types.Object) types.Dict {
	switch v := x.deref(o).(type) {
	case types.Dict:
		return v
	case types.StreamDict:
		return v.Dict
	}
	return nil
}

func (x xref) array(o types.Object) types.Array {
	a, _ := x.deref(o).(types.Array)
	return a
}

func (x xref) number(o types.Object) (float64, bool) {
	switch v := x.deref(o).(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func (x xref) name(o types.Object) string {
	n, _ := x.deref(o).(types.Name)
	return string(n)
}

func (x xref) numbers(o types.Object) []float64 {
	a := x.array(o)
	out := make([]float64, 0, len(a))
	for _, e := range a {
		v, ok := x.number(e)
		if !ok {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func (x xref) rect(o types.Object) (Rect, bool) {
	n := x.numbers(o)
	if len(n) != 4 {
		return Rect{}, false
	}
	return Rect{n[0], n[1], n[2], n[3]}.Normalize(), true
}

func (x xref) boolean(o types.Object) bool {
	b, _ := x.deref(o).(types.Boolean)
	return bool(b)
}

// stream resolves o to a stream dictionary.
func (x xref) stream(o types.Object) (*types.StreamDict, error) {
	sd, _, err := x.ctx.DereferenceStreamDict(o)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, fmt.Errorf("object is not a stream")
	}
	return sd, nil
}

// content returns the decoded bytes of the stream o.
func (x xref) content(o types.Object) ([]byte, error) {
	sd, err := x.stream(o)
	if err != nil {
		return nil, err
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}
	return sd.Content, nil
}

// subdict returns the dictionary entry key of d, resolved.
func (x xref) subdict(d types.Dict, key string) types.Dict {
	if d == nil {
		return nil
	}
	return x.dict(d[key])
}

// newStream stores content as a new Flate encoded stream object carrying the
// entries of extra, and returns its reference.
func (x xref) newStream(content []byte, extra types.Dict) (*types.IndirectRef, error) {
	sd, err := x.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}
	for k, v := range extra {
		switch k {
		case "Length", "Filter", "DecodeParms", "DL":
			continue
		}
		sd.Dict[k] = v
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode stream: %w", err)
	}
	ir, err := x.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, fmt.Errorf("failed to add stream object: %w", err)
	}
	return ir, nil
}

// copyDict makes a shallow copy of d so a page can own its resources.
func copyDict(d types.Dict) types.Dict {
	out := types.Dict{}
	for k, v := range d {
		out[k] = v
	}
	return out
}
