package pdfdoc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"
)

type pageSpec struct {
	mediaBox string
	rotate   int
	content  string
	xobjects string // entries of the XObject resource dict
	annots   string
}

// buildPDF writes a single page document and returns its path. extra objects
// are added before the page so they can be referenced as 6 0 R onwards.
func buildPDF(t *testing.T, spec pageSpec, extra ...func(b *pdfBuilder)) string {
	t.Helper()
	b := &pdfBuilder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	page := b.add("")
	font := b.add(monoFont())
	content := b.stream("", []byte(spec.content))
	for _, fn := range extra {
		fn(b)
	}

	if spec.mediaBox == "" {
		spec.mediaBox = "[0 0 200 100]"
	}
	res := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
	if spec.xobjects != "" {
		res += " /XObject << " + spec.xobjects + " >>"
	}
	dict := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox %s /Resources << %s >> /Contents %d 0 R",
		spec.mediaBox, res, content)
	if spec.rotate != 0 {
		dict += fmt.Sprintf(" /Rotate %d", spec.rotate)
	}
	if spec.annots != "" {
		dict += " /Annots [" + spec.annots + "]"
	}
	b.set(page, dict+" >>")

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, b.bytes(1), 0o644))
	return path
}

// treeSpec describes a document whose pages share one page tree node.
type treeSpec struct {
	pages    []pageSpec
	xobjects string // XObject entries inherited from the page tree node
}

// buildTree writes a multi-page document and returns its path. The font is
// 3 0 R and extra objects are numbered from 4 0 R. Pages without xobjects
// inherit their resources when spec.xobjects is set.
func buildTree(t *testing.T, spec treeSpec, extra ...func(b *pdfBuilder)) string {
	t.Helper()
	b := &pdfBuilder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("")
	font := b.add(monoFont())
	for _, fn := range extra {
		fn(b)
	}

	fonts := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
	kids := make([]string, 0, len(spec.pages))
	for _, ps := range spec.pages {
		if ps.mediaBox == "" {
			ps.mediaBox = "[0 0 200 100]"
		}
		content := b.stream("", []byte(ps.content))
		dict := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox %s /Contents %d 0 R", ps.mediaBox, content)
		switch {
		case ps.xobjects != "":
			dict += " /Resources << " + fonts + " /XObject << " + ps.xobjects + " >> >>"
		case spec.xobjects == "":
			dict += " /Resources << " + fonts + " >>"
		}
		kids = append(kids, fmt.Sprintf("%d 0 R", b.add(dict+" >>")))
	}

	pages := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", strings.Join(kids, " "), len(kids))
	if spec.xobjects != "" {
		pages += " /Resources << " + fonts + " /XObject << " + spec.xobjects + " >> >>"
	}
	b.set(2, pages+" >>")

	path := filepath.Join(t.TempDir(), "tree.pdf")
	require.NoError(t, os.WriteFile(path, b.bytes(1), 0o644))
	return path
}

func openPDF(t *testing.T, path string) *Document {
	t.Helper()
	doc, err := Open(path)
	require.NoError(t, err)
	return doc
}

// reopen writes doc and parses the result again.
func reopen(t *testing.T, doc *Document) *Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, doc.Write(&buf))
	out, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return out
}

func pageOps(t *testing.T, doc *Document, index int) []Op {
	t.Helper()
	p, err := doc.Page(index)
	require.NoError(t, err)
	src, err := doc.content(p)
	require.NoError(t, err)
	ops, err := ParseContent(src)
	require.NoError(t, err)
	return ops
}

func glyphByText(glyphs []Glyph, text string) (Glyph, bool) {
	for _, g := range glyphs {
		if g.Text == text {
			return g, true
		}
	}
	return Glyph{}, false
}

// streams returns the decoded content of every stream stored in doc.
func streams(doc *Document) [][]byte {
	var out [][]byte
	for n, e := range doc.ctx.Table {
		if n == 0 || e == nil || e.Free || e.Object == nil {
			continue
		}
		if _, ok := e.Object.(types.StreamDict); !ok {
			continue
		}
		// cross reference and object streams may not decode on their own
		if data, err := doc.x.content(e.Object); err == nil {
			out = append(out, data)
		}
	}
	return out
}
