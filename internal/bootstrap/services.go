package bootstrap

import (
	"database/sql"
	"fmt"
	"runtime"

	"github.com/docdesk/redactor-backend/config"
	"github.com/docdesk/redactor-backend/internal/pdfdoc"
	redactorhttp "github.com/docdesk/redactor-backend/internal/redactor/http"
	"github.com/docdesk/redactor-backend/internal/redactor/repository"
	"github.com/docdesk/redactor-backend/internal/redactor/service"
	"github.com/docdesk/redactor-backend/internal/render"
	"github.com/docdesk/redactor-backend/internal/suggestions"
	"github.com/redis/go-redis/v9"
)

// Components is everything the API process wires together.
type Components struct {
	Renderer *render.Renderer
	Services redactorhttp.Services
}

// BuildServices wires repositories, engines and services. rdb may be nil.
func BuildServices(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*Components, error) {
	renderer := render.NewRenderer(cfg.Storage.TempDir, runtime.NumCPU())

	var cache suggestions.Cache
	if rdb != nil {
		cache = repository.NewSuggestionCache(rdb, cfg.Redis.SuggestionTTL)
	}
	models := suggestions.NewLazyProvider(suggestions.NewLoader(
		cfg.Models.ServerURL, cfg.Models.Timeout, cfg.Models.DetectorInputSize, cfg.Models.PatternNER,
	), cfg.Models.Timeout, suggestions.DefaultRetryBackoff)
	extractor := suggestions.NewEngine(renderer, models, suggestions.NewTesseract(cfg.OCR.Language), cache, suggestions.Config{
		OCRDPI: cfg.OCR.DPI,
	})

	docLocks := service.NewKeyedMutex()
	stagingRepo := repository.NewStagingRepository(db)
	history := service.NewHistoryService(repository.NewHistoryRepository(db))

	staging := service.NewStagingService(stagingRepo, docLocks)
	workspace := service.NewWorkspaceService(db, repository.NewWorkspaceRepository(db), stagingRepo, docLocks)

	templates, err := service.NewTemplateService(db, repository.NewTemplateRepository(db), staging, renderer, cfg.Models.KnownCompanies)
	if err != nil {
		return nil, fmt.Errorf("template service: %w", err)
	}

	return &Components{
		Renderer: renderer,
		Services: redactorhttp.Services{
			Documents: service.NewDocumentService(renderer, extractor, workspace,
				cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.MaxUploadBytes),
			Staging:   staging,
			Templates: templates,
			Workspace: workspace,
			History:   history,
			Commit: service.NewCommitService(db, stagingRepo, history, pdfdoc.NewEngine(), docLocks,
				cfg.Storage.UploadDir, cfg.Storage.OutputDir),
		},
	}, nil
}
