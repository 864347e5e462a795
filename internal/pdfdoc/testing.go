package pdfdoc

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
)

// pdfBuilder assembles small uncompressed PDFs for tests.
type pdfBuilder struct {
	objs []string
}

func (b *pdfBuilder) add(obj string) int {
	b.objs = append(b.objs, obj)
	return len(b.objs)
}

func (b *pdfBuilder) set(num int, obj string) {
	b.objs[num-1] = obj
}

func (b *pdfBuilder) stream(dict string, data []byte) int {
	return b.add(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (b *pdfBuilder) bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objs))
	for i, o := range b.objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xrefAt := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objs)+1, root, xrefAt)
	return buf.Bytes()
}

// monoFont is a Helvetica dictionary whose printable glyphs are all 500 units wide.
func monoFont() string {
	widths := strings.TrimSpace(strings.Repeat("500 ", 95))
	return "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [" +
		widths + "] /Encoding /WinAnsiEncoding >>"
}

// WriteTestPDF writes a document with one 200x100 page per content stream
// to path. Every page can set text with /F1.
func WriteTestPDF(t testing.TB, path string, contents ...string) {
	t.Helper()
	b := &pdfBuilder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("")
	font := b.add(monoFont())

	kids := make([]string, 0, len(contents))
	for _, c := range contents {
		stream := b.stream("", []byte(c))
		page := b.add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			font, stream))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	b.set(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))

	if err := os.WriteFile(path, b.bytes(1), 0o644); err != nil {
		t.Fatalf("write test pdf: %v", err)
	}
}
