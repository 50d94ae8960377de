package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/service"
	"github.com/parishrecords/ocrmapper/internal/watcher"
)

// ImportWatcherHandle wraps the history import watcher with shutdown capability.
// Watcher is nil when no import directory is configured.
type ImportWatcherHandle struct {
	Watcher *watcher.Watcher
	cancel  context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImportWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideImportWatcher watches the import directory for exported mapping
// history and loads each document it finds.
func ProvideImportWatcher(i do.Injector) (*ImportWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	suggestions := do.MustInvoke[*service.SuggestionService](i)

	if cfg.Import.WatchDir == "" {
		log.Info("History import directory not configured")
		return &ImportWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Logger, watcher.Options{
		IgnoreHidden: true,
		SettleDelay:  cfg.Import.SettleDelay,
	})
	if err != nil {
		return nil, err
	}

	importer := watcher.NewImporter(cfg.Import.WatchDir, w, suggestions, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := importer.Run(ctx); err != nil {
			log.WithError(err).WithField("dir", cfg.Import.WatchDir).Error("History import watcher stopped")
		}
	}()

	return &ImportWatcherHandle{Watcher: w, cancel: cancel}, nil
}
