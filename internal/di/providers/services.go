package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/mapping"
	"github.com/parishrecords/ocrmapper/internal/service"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// ProvideTemplates provides the document template registry.
func ProvideTemplates(i do.Injector) (*domain.TemplateRegistry, error) {
	return domain.NewTemplateRegistry(), nil
}

// ProvideTemplateService provides the template service with every stored
// custom template registered.
func ProvideTemplateService(i do.Injector) (*service.TemplateService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*domain.TemplateRegistry](i)
	validator := do.MustInvoke[*validation.Validator](i)

	svc := service.NewTemplateService(registry, storeHandle.Async, validator, log.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	n, err := svc.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load custom templates: %w", err)
	}
	log.Info("Templates loaded", "custom", n, "total", len(registry.Types()))

	return svc, nil
}

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideSuggestRegistry provides the per-organization engine registry.
func ProvideSuggestRegistry(i do.Injector) (*suggest.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return suggest.NewRegistry(storeHandle.Async, suggest.Options{
		HistoryCap:       cfg.Suggest.HistoryCap,
		PruneEvery:       cfg.Suggest.PruneEvery,
		SimilarityWindow: cfg.Suggest.SimilarityWindow,
		MaxSuggestions:   cfg.Suggest.MaxSuggestions,
		Logger:           log.Logger,
	}), nil
}

// ProvideSuggestionService provides the suggestion service and indexes
// every organization already in the store.
func ProvideSuggestionService(i do.Injector) (*service.SuggestionService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*suggest.Registry](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)

	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	svc := service.NewSuggestionService(registry, storeHandle.Async, indexHandle.HistoryIndex, validator, log.Logger)
	svc.SetEventEmitter(sseHandle.Manager)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Warm(ctx); err != nil {
		// Suggestions still work; only history search starts incomplete.
		log.WithError(err).Warn("Failed to index stored mapping history")
	}

	docCount, _ := indexHandle.DocumentCount()
	log.Info("History index ready", "documents", docCount)

	return svc, nil
}

// sweepInterval is how often idle sessions are checked for expiry.
const sweepInterval = time.Minute

// SessionServiceHandle wraps the session service with its sweeper.
type SessionServiceHandle struct {
	*service.SessionService
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SessionServiceHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideSessionService provides the correction session service and
// starts sweeping idle sessions.
func ProvideSessionService(i do.Injector) (*SessionServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	templates := do.MustInvoke[*service.TemplateService](i)
	suggestions := do.MustInvoke[*service.SuggestionService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	svc := service.NewSessionService(
		templates.Registry(),
		mapping.NewKVSuggestionStore(storeHandle.Async),
		suggestions,
		validator,
		service.SessionOptions{
			UndoDepth: cfg.Session.UndoDepth,
			TTL:       cfg.Session.TTL,
			Debug:     cfg.App.Environment == "development",
		},
		log.Logger,
	)

	svc.SetEventEmitter(sseHandle.Manager)

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Session.TTL > 0 {
		go svc.RunSweeper(ctx, sweepInterval)
	}

	log.Info("Session service started",
		"undo_depth", cfg.Session.UndoDepth,
		"ttl", cfg.Session.TTL,
	)

	return &SessionServiceHandle{SessionService: svc, cancel: cancel}, nil
}
