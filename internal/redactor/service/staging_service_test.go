package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingService(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	t.Run("stage then load keeps order", func(t *testing.T) {
		require.NoError(t, d.staging.Stage(ctx, "a.pdf", []domain.RedactionChange{area(0, 0.1, 0.1), text(0, "x")}))
		require.NoError(t, d.staging.Stage(ctx, "a.pdf", []domain.RedactionChange{area(1, 0.5, 0.5)}))

		got, err := d.staging.Load(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, []domain.RedactionChange{area(0, 0.1, 0.1), text(0, "x"), area(1, 0.5, 0.5)}, got)
	})

	t.Run("invalid change stages nothing", func(t *testing.T) {
		err := d.staging.Stage(ctx, "a.pdf", []domain.RedactionChange{
			area(2, 0, 0),
			{Page: 0, Kind: domain.KindArea, Width: 0, Height: 0.2},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		got, err := d.staging.Load(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("undo removes last", func(t *testing.T) {
		require.NoError(t, d.staging.UndoLast(ctx, "a.pdf"))
		got, err := d.staging.Load(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, []domain.RedactionChange{area(0, 0.1, 0.1), text(0, "x")}, got)
	})

	t.Run("clear then undo on empty", func(t *testing.T) {
		require.NoError(t, d.staging.Clear(ctx, "a.pdf"))
		require.NoError(t, d.staging.UndoLast(ctx, "a.pdf"))
		got, err := d.staging.Load(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing filename", func(t *testing.T) {
		assert.ErrorIs(t, d.staging.Stage(ctx, "", []domain.RedactionChange{text(0, "x")}), domain.ErrInvalidInput)
	})
}

func TestStagingService_ConcurrentDocuments(t *testing.T) {
	ctx := context.Background()
	d := newTestDeps(t)

	var wg sync.WaitGroup
	for doc := 0; doc < 4; doc++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(doc, i int) {
				defer wg.Done()
				assert.NoError(t, d.staging.Stage(ctx, fmt.Sprintf("doc%d.pdf", doc), []domain.RedactionChange{text(i, "t")}))
			}(doc, i)
		}
	}
	wg.Wait()

	for doc := 0; doc < 4; doc++ {
		got, err := d.staging.Load(ctx, fmt.Sprintf("doc%d.pdf", doc))
		require.NoError(t, err)
		assert.Len(t, got, 10)
	}
}
