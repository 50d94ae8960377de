package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/util"
)

// Suffixes appended to a processed document.
const (
	SuffixImported = ".imported"
	SuffixFailed   = ".failed"
)

// HistoryImporter loads an exported mapping history into an organization.
type HistoryImporter interface {
	Import(ctx context.Context, org string, data []byte) error
}

// Importer applies mapping history documents dropped into a directory.
// Each document names its organization in "organizationId"; a document
// without one belongs to the organization its file is named after. A processed
// file is renamed with SuffixImported or SuffixFailed so it is never read
// twice.
type Importer struct {
	dir      string
	watcher  *Watcher
	importer HistoryImporter
	logger   *slog.Logger
}

// NewImporter creates an importer over dir.
func NewImporter(dir string, w *Watcher, importer HistoryImporter, logger *slog.Logger) *Importer {
	return &Importer{dir: dir, watcher: w, importer: importer, logger: logger}
}

// Run imports documents already present in the directory, then every
// document that settles in it, until ctx is done.
func (im *Importer) Run(ctx context.Context) error {
	if err := im.watcher.Watch(im.dir); err != nil {
		return err
	}
	go im.watcher.Start(ctx) //nolint:errcheck // Start only returns nil

	if err := im.ImportExisting(ctx); err != nil {
		im.logger.Warn("failed to scan import directory", "dir", im.dir, "error", err)
	}

	im.logger.Info("watching import directory", "dir", im.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-im.watcher.Events():
			if ev.Type == EventSettled {
				im.Process(ctx, ev.Path)
			}
		case err := <-im.watcher.Errors():
			im.logger.Warn("import directory watch error", "error", err)
		}
	}
}

// ImportExisting processes every matching file already in the directory,
// in name order.
func (im *Importer) ImportExisting(ctx context.Context) error {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return err
	}
	var paths []string
	for _, e := range entries {
		path := filepath.Join(im.dir, e.Name())
		if e.IsDir() || im.watcher.opts.shouldIgnore(path) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, p := range paths {
		im.Process(ctx, p)
	}
	return nil
}

// Process imports one document and renames it by outcome. It reports
// whether the import succeeded.
func (im *Importer) Process(ctx context.Context, path string) bool {
	org, err := im.importFile(ctx, path)
	suffix := SuffixImported
	if err != nil {
		suffix = SuffixFailed
		im.logger.Warn("mapping history import failed", "path", path, "org", org, "error", err)
	} else {
		im.logger.Info("mapping history imported", "path", path, "org", org)
	}

	if rerr := os.Rename(path, path+suffix); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		im.logger.Error("failed to rename processed import", "path", path, "error", rerr)
	}
	return err == nil
}

func (im *Importer) importFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	var head struct {
		OrganizationID string `json:"organizationId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	org := head.OrganizationID
	if org == "" {
		base := filepath.Base(path)
		org = util.OrgSlug(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if org == "" {
		return "", errors.New("document has no organizationId")
	}
	return org, im.importer.Import(ctx, org, data)
}
