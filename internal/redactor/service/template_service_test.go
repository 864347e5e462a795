package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	_, err := d.templates.Create(ctx, "  ", "", "", []domain.RedactionChange{text(0, "x")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = d.templates.Create(ctx, "name", "", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	id, err := d.templates.Create(ctx, "name", "acme", "invoice", []domain.RedactionChange{text(0, "x")})
	require.NoError(t, err)

	versions, err := d.templates.ListVersions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, versions, "creation does not write history")
}

func TestTemplateService_UpdateVersions(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	id, err := d.templates.Create(ctx, "tmpl", "", "", []domain.RedactionChange{area(0, 0, 0)})
	require.NoError(t, err)

	for k := 1; k <= 4; k++ {
		boxes := []domain.RedactionChange{area(k, 0.1, 0.1)}
		v, err := d.templates.Update(ctx, id, boxes)
		require.NoError(t, err)
		assert.Equal(t, k, v)

		live, err := d.templates.LoadBoxes(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, boxes, live)
	}

	versions, err := d.templates.ListVersions(ctx, id)
	require.NoError(t, err)
	got := []int{}
	for _, v := range versions {
		got = append(got, v.Version)
	}
	assert.Equal(t, []int{4, 3, 2, 1}, got)

	_, err = d.templates.Update(ctx, "missing", []domain.RedactionChange{area(0, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = d.templates.Update(ctx, id, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = d.templates.ListVersions(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateService_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	id, err := d.templates.Create(ctx, "tmpl", "", "", []domain.RedactionChange{area(0, 0, 0)})
	require.NoError(t, err)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := d.templates.Update(ctx, id, []domain.RedactionChange{area(i, 0, 0)})
			done <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	versions, err := d.templates.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 8)
	assert.Equal(t, 8, versions[0].Version)
	assert.Equal(t, 1, versions[7].Version)
}

func TestTemplateService_DuplicateAndRename(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	id, err := d.templates.Create(ctx, "orig", "acme", "invoice", []domain.RedactionChange{text(0, "a")})
	require.NoError(t, err)
	_, err = d.templates.Update(ctx, id, []domain.RedactionChange{text(0, "b")})
	require.NoError(t, err)
	_, err = d.templates.Update(ctx, id, []domain.RedactionChange{text(0, "c")})
	require.NoError(t, err)

	dupID, err := d.templates.Duplicate(ctx, id, "")
	require.NoError(t, err)
	assert.NotEqual(t, id, dupID)

	dup, err := d.templates.Get(ctx, dupID)
	require.NoError(t, err)
	assert.Equal(t, "orig (copy)", dup.Name)
	assert.Equal(t, "acme", dup.Company)
	assert.Equal(t, []domain.RedactionChange{text(0, "c")}, dup.Boxes)

	versions, err := d.templates.ListVersions(ctx, dupID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)

	_, err = d.templates.Update(ctx, dupID, []domain.RedactionChange{text(0, "dup only")})
	require.NoError(t, err)
	orig, err := d.templates.LoadBoxes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.RedactionChange{text(0, "c")}, orig)

	require.NoError(t, d.templates.Rename(ctx, id, "renamed"))
	renamed, err := d.templates.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)
	versions, err = d.templates.ListVersions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, versions, 2, "rename does not bump the version")

	assert.ErrorIs(t, d.templates.Rename(ctx, id, ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, d.templates.Rename(ctx, "missing", "x"), domain.ErrNotFound)
	_, err = d.templates.Duplicate(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateService_ExportImport(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	boxes := []domain.RedactionChange{area(0, 0.2, 0.3), text(1, "ACC-001")}
	id, err := d.templates.Create(ctx, "export me", "acme", "statement", boxes)
	require.NoError(t, err)

	exp, err := d.templates.Export(ctx, id)
	require.NoError(t, err)
	blob, err := json.Marshal(exp)
	require.NoError(t, err)

	newID, err := d.templates.Import(ctx, blob)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	imported, err := d.templates.Get(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "export me", imported.Name)
	assert.Equal(t, "statement", imported.DocType)
	assert.Equal(t, boxes, imported.Boxes)

	versions, err := d.templates.ListVersions(ctx, newID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	t.Run("schema rejections", func(t *testing.T) {
		bad := map[string]string{
			"not json":        `{`,
			"missing name":    `{"boxes":[{"page":0,"type":"text","text":"a"}]}`,
			"blank name":      `{"name":"   ","boxes":[{"page":0,"type":"text","text":"a"}]}`,
			"empty boxes":     `{"name":"x","boxes":[]}`,
			"bad type":        `{"name":"x","boxes":[{"page":0,"type":"circle"}]}`,
			"negative page":   `{"name":"x","boxes":[{"page":-1,"type":"text"}]}`,
			"fractional page": `{"name":"x","boxes":[{"page":1.5,"type":"text"}]}`,
			"zero area":       `{"name":"x","boxes":[{"page":0,"type":"area","x":0,"y":0,"width":0,"height":0}]}`,
		}
		for name, blob := range bad {
			_, err := d.templates.Import(ctx, []byte(blob))
			assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
		}
	})
}

func TestTemplateService_Apply(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	boxes := []domain.RedactionChange{area(0, 0.1, 0.1), area(2, 0.3, 0.3)}
	id, err := d.templates.Create(ctx, "t", "", "", boxes)
	require.NoError(t, err)

	n, err := d.templates.Apply(ctx, "doc.pdf", id, domain.ApplyAll, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	staged, err := d.staging.Load(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, boxes, staged)

	target := 5
	_, err = d.templates.Apply(ctx, "other.pdf", id, domain.ApplyPage, &target)
	require.NoError(t, err)
	staged, err = d.staging.Load(ctx, "other.pdf")
	require.NoError(t, err)
	require.Len(t, staged, 2)
	for _, c := range staged {
		assert.Equal(t, 5, c.Page)
	}

	live, err := d.templates.LoadBoxes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, boxes, live, "apply does not mutate the template")

	_, err = d.templates.Apply(ctx, "doc.pdf", id, domain.ApplyPage, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = d.templates.Apply(ctx, "doc.pdf", id, "sideways", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = d.templates.Apply(ctx, "doc.pdf", "missing", domain.ApplyAll, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateService_AutoDetect(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	res := d.templates.AutoDetect(ctx, "inv.pdf")
	assert.Equal(t, domain.DetectResult{Company: "Amazon", DocType: "invoice"}, res)

	res = d.templates.AutoDetect(ctx, "bol.pdf")
	assert.Equal(t, domain.DetectResult{Company: "FedEx", DocType: "bill of lading"}, res)

	assert.Equal(t, domain.DetectResult{}, d.templates.AutoDetect(ctx, "unreadable.pdf"))
}
