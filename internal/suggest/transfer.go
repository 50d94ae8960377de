package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/id"
)

// ExportDocument is the portable form of an organization's learning data.
type ExportDocument struct {
	History        []domain.HistoryEntry `json:"history"`
	Rules          []domain.Rule         `json:"rules"`
	Exported       time.Time             `json:"exported"`
	OrganizationID string                `json:"organizationId"`
}

// Export serializes the history and rules as an indented JSON document.
func (e *Engine) Export() ([]byte, error) {
	e.mu.RLock()
	doc := ExportDocument{
		History:        append([]domain.HistoryEntry{}, e.history...),
		Rules:          e.rulesLocked(),
		Exported:       e.opts.Now().UTC(),
		OrganizationID: e.org,
	}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}

// importDocument defers decoding so a missing or non-array section can be
// told apart from an empty one.
type importDocument struct {
	History json.RawMessage `json:"history"`
	Rules   json.RawMessage `json:"rules"`
}

// Import replaces the history and rules from an exported document. A
// history array replaces the history with its entries for this
// organization; a rules array replaces the rules. Sections that are absent
// or not arrays are left alone. Malformed input, including a document that
// is not a JSON object and rules whose patterns do not compile, returns
// false and changes nothing.
func (e *Engine) Import(ctx context.Context, data []byte) bool {
	history, rules, err := e.decodeImport(data)
	if err != nil {
		e.logger.Warn("failed to import mapping history", "error", err)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if history != nil {
		e.history = history
		e.saveHistory(ctx)
		e.saveStats(ctx)
	}
	if rules != nil {
		e.rules = rules
		e.saveRules(ctx)
	}
	e.logger.Info("imported mapping history",
		"history", len(e.history), "rules", len(e.rules))
	return true
}

func (e *Engine) decodeImport(data []byte) ([]domain.HistoryEntry, []compiledRule, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return nil, nil, errors.New("document is not a JSON object")
	}
	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode document: %w", err)
	}

	var history []domain.HistoryEntry
	if isArray(doc.History) {
		var all []domain.HistoryEntry
		if err := json.Unmarshal(doc.History, &all); err != nil {
			return nil, nil, fmt.Errorf("decode history: %w", err)
		}
		history = []domain.HistoryEntry{}
		for _, h := range all {
			if h.OrgID == e.org {
				history = append(history, h)
			}
		}
	}

	var rules []compiledRule
	if isArray(doc.Rules) {
		var raw []domain.Rule
		if err := json.Unmarshal(doc.Rules, &raw); err != nil {
			return nil, nil, fmt.Errorf("decode rules: %w", err)
		}
		for i := range raw {
			if raw[i].ID == "" {
				raw[i].ID = e.opts.NewID(id.PrefixRule)
			}
		}
		compiled, err := compileRules(raw)
		if err != nil {
			return nil, nil, err
		}
		rules = compiled
	}
	return history, rules, nil
}

func isArray(raw json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
}
