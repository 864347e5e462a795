package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/docdesk/redactor-backend/internal/redactor/domain"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
	"github.com/docdesk/redactor-backend/internal/storage/sqlstore"
	"github.com/stretchr/testify/require"
)

type testDeps struct {
	db        *sql.DB
	docLocks  *KeyedMutex
	staging   *StagingService
	templates *TemplateService
	workspace *WorkspaceService
	history   *HistoryService
}

type fakeText map[string]string

func (f fakeText) PageText(_ context.Context, path string, page int) (string, error) {
	text, ok := f[path]
	if !ok || page != 0 {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	db := sqlstore.OpenTestDB(t)
	locks := NewKeyedMutex()

	stagingRepo := repository.NewStagingRepository(db)
	staging := NewStagingService(stagingRepo, locks)

	templates, err := NewTemplateService(db, repository.NewTemplateRepository(db), staging,
		fakeText{
			"inv.pdf": "TAX INVOICE\nSold by Amazon Seller Services",
			"bol.pdf": "FEDEX FREIGHT\nStraight Bill of Lading",
		}, []string{"Amazon", "FedEx"})
	require.NoError(t, err)

	return &testDeps{
		db:        db,
		docLocks:  locks,
		staging:   staging,
		templates: templates,
		workspace: NewWorkspaceService(db, repository.NewWorkspaceRepository(db), stagingRepo, locks),
		history:   NewHistoryService(repository.NewHistoryRepository(db)),
	}
}

func area(page int, x, y float64) domain.RedactionChange {
	return domain.RedactionChange{Page: page, Kind: domain.KindArea, X: x, Y: y, Width: 0.1, Height: 0.1}
}

func text(page int, s string) domain.RedactionChange {
	return domain.RedactionChange{Page: page, Kind: domain.KindText, Text: s}
}

func testNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}
