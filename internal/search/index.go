package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/logger"
)

// HistoryIndex is an in-memory Bleve index of mapping history. It is
// rebuilt from the suggestion store on start, so nothing is written to
// disk.
//
// Thread safety: All public methods are safe for concurrent use.
type HistoryIndex struct {
	index  bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex // Serializes ReplaceOrg against searches
}

// Options configures the index.
type Options struct {
	Logger *slog.Logger // Logger for operations (uses discard if nil)
}

const batchSize = 500

// NewHistoryIndex creates an empty in-memory index.
func NewHistoryIndex(opts Options) (*HistoryIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &HistoryIndex{index: index, logger: logger.OrDiscard(opts.Logger)}, nil
}

// Close releases the index.
func (s *HistoryIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexEntries adds or replaces history entries, in chunks of 500.
func (s *HistoryIndex) IndexEntries(entries []domain.HistoryEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(entries)
}

func (s *HistoryIndex) indexLocked(entries []domain.HistoryEntry) error {
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))
		batch := s.index.NewBatch()
		for _, h := range entries[i:end] {
			doc := FromHistory(h)
			if err := batch.Index(docID(doc.OrgID, doc.ID), doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// ReplaceOrg drops every document of org and indexes entries in their
// place. Used after a history import or prune.
func (s *HistoryIndex) ReplaceOrg(ctx context.Context, org string, entries []domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.orgDocIDs(ctx, org)
	if err != nil {
		return err
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("delete org documents: %w", err)
	}
	if err := s.indexLocked(entries); err != nil {
		return err
	}
	s.logger.Debug("reindexed organization history", "org", org, "removed", len(ids), "indexed", len(entries))
	return nil
}

func (s *HistoryIndex) orgDocIDs(ctx context.Context, org string) ([]string, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(orgFilter(org), int(count), 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list org documents: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocumentCount returns the number of indexed entries.
func (s *HistoryIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}
