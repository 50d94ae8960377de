package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/store/sqlite"
)

// StoreHandle wraps the write-behind store with shutdown capability.
type StoreHandle struct {
	*store.Async
}

// Shutdown implements do.Shutdownable. Queued writes are drained before
// the backend closes.
func (h *StoreHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Flush(ctx); err != nil && !errors.Is(err, store.ErrClosed) {
		return err
	}
	return h.Close()
}

// ProvideStore opens the configured backend and puts the write-behind
// queue in front of it.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	backend, err := OpenBackend(cfg.Storage, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Suggestion store initialized",
		"backend", cfg.Storage.Backend,
		"path", cfg.Storage.DataPath,
	)

	return &StoreHandle{Async: store.NewAsync(backend, 0, log.Logger)}, nil
}

// OpenBackend opens the key-value backend named by cfg.
func OpenBackend(cfg config.StorageConfig, log *slog.Logger) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.Open(filepath.Join(cfg.DataPath, SQLiteFile), log)
	case config.BackendBadger, "":
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return store.OpenBadger(filepath.Join(cfg.DataPath, BadgerDir), log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Locations of the on-disk backends under the data path.
const (
	BadgerDir  = "badger"
	SQLiteFile = "ocrmapper.db"
)
