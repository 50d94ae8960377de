package providers

import (
	"github.com/samber/do/v2"

	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/search"
)

// SearchIndexHandle wraps the history index with shutdown capability.
type SearchIndexHandle struct {
	*search.HistoryIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve index over stored mapping history.
// It starts empty; the suggestion service fills it on warm-up.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewHistoryIndex(search.Options{Logger: log.Logger})
	if err != nil {
		return nil, err
	}

	return &SearchIndexHandle{HistoryIndex: index}, nil
}
