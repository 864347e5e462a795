package pdfdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent(t *testing.T) {
	t.Run("operators with operands and spans", func(t *testing.T) {
		src := []byte("q 1 0 0 1 10 20 cm\nBT /F1 12 Tf (Hi) Tj ET Q")
		ops, err := ParseContent(src)
		require.NoError(t, err)

		var names []string
		for _, op := range ops {
			names = append(names, op.Operator)
		}
		assert.Equal(t, []string{"q", "cm", "BT", "Tf", "Tj", "ET", "Q"}, names)

		cm := ops[1]
		assert.Equal(t, "1 0 0 1 10 20 cm", string(src[cm.Start:cm.End]))
		assert.Equal(t, []Object{1.0, 0.0, 0.0, 1.0, 10.0, 20.0}, cm.Operands)

		tf := ops[3]
		assert.Equal(t, Name("F1"), tf.Operands[0])
		assert.Equal(t, String("Hi"), ops[4].Operands[0])
	})

	t.Run("string escapes and nesting", func(t *testing.T) {
		ops, err := ParseContent([]byte(`(a\(b\) (c) \101\n\\) Tj`))
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, String("a(b) (c) A\n\\"), ops[0].Operands[0])
	})

	t.Run("hex strings, names and arrays", func(t *testing.T) {
		ops, err := ParseContent([]byte("[<48 65> -120 <6c6>] TJ /A#20B Do"))
		require.NoError(t, err)
		require.Len(t, ops, 2)
		arr := ops[0].Operands[0].(Array)
		assert.Equal(t, String("He"), arr[0])
		assert.Equal(t, -120.0, arr[1])
		assert.Equal(t, String{0x6c, 0x60}, arr[2])
		assert.Equal(t, Name("A B"), ops[1].Operands[0])
	})

	t.Run("comments are skipped", func(t *testing.T) {
		ops, err := ParseContent([]byte("% header\nq % save\nQ"))
		require.NoError(t, err)
		require.Len(t, ops, 2)
	})

	t.Run("dictionary operands", func(t *testing.T) {
		ops, err := ParseContent([]byte("/OC << /Type /OCG /On true >> BDC EMC"))
		require.NoError(t, err)
		require.Len(t, ops, 2)
		d := ops[0].Operands[1].(Dict)
		assert.Equal(t, Name("OCG"), d["Type"])
		assert.Equal(t, true, d["On"])
	})

	t.Run("inline image with computed length", func(t *testing.T) {
		src := []byte("q BI /W 2 /H 1 /CS /G /BPC 8 ID EI EI Q")
		ops, err := ParseContent(src)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		bi := ops[1]
		assert.Equal(t, "BI", bi.Operator)
		require.NotNil(t, bi.Inline)
		assert.Equal(t, []byte("EI"), bi.Inline.Data)
		assert.Equal(t, "Q", ops[2].Operator)
	})

	t.Run("inline image with filter scans for EI", func(t *testing.T) {
		src := []byte("BI /W 4 /H 4 /F /AHx ID 00ff00ff> EI Q")
		ops, err := ParseContent(src)
		require.NoError(t, err)
		require.Len(t, ops, 2)
		assert.Equal(t, []byte("00ff00ff>"), ops[0].Inline.Data)
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := ParseContent([]byte("(unterminated Tj"))
		assert.Error(t, err)
		_, err = ParseContent([]byte("<zz> Tj"))
		assert.Error(t, err)
	})
}

func TestParseNumber(t *testing.T) {
	for in, want := range map[string]float64{"12": 12, "-3.5": -3.5, ".5": 0.5, "+4": 4, "--2": -2} {
		got, ok := parseNumber(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseNumber("Tj")
	assert.False(t, ok)
}
