// Package di provides dependency injection configuration for the OCR mapper server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/di/providers"
	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/service"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Persistence, search and events
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Domain
	do.Provide(injector, providers.ProvideTemplates)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideSuggestRegistry)

	// Business services
	do.Provide(injector, providers.ProvideTemplateService)
	do.Provide(injector, providers.ProvideSuggestionService)
	do.Provide(injector, providers.ProvideSessionService)

	// Workers
	do.Provide(injector, providers.ProvideImportWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*domain.TemplateRegistry](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*suggest.Registry](injector)

	// Business services
	_ = do.MustInvoke[*service.TemplateService](injector)
	_ = do.MustInvoke[*service.SuggestionService](injector)
	_ = do.MustInvoke[*providers.SessionServiceHandle](injector)

	// Workers
	_ = do.MustInvoke[*providers.ImportWatcherHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
