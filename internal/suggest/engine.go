// Package suggest ranks candidate fields for a piece of OCR text and learns
// from confirmed mappings.
//
// Three sources feed a ranking: exact matches in the mapping history,
// shape rules (built-in and learned), and fuzzy matches against recent
// history. Each organization has its own Engine; its history, rules and
// counters are persisted through a store.KV and reloaded on start.
package suggest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/id"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/normalize"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// Source tags where a suggestion came from.
type Source string

// Suggestion sources.
const (
	SourceHistory    Source = "history"
	SourcePattern    Source = "pattern"
	SourceSimilarity Source = "similarity"
)

// Scoring constants.
const (
	minHistoryMatches   = 2
	historyBase         = 0.6
	historyStep         = 0.1
	historyMax          = 0.95
	similarityThreshold = 0.7
	similarityWeight    = 0.6
	newRuleWeight       = 0.8
	pruneMinUsage       = 2
	pruneMinSuccess     = 0.4
)

// Suggestion is one ranked field proposal.
type Suggestion struct {
	FieldName  domain.Field `json:"fieldName"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason"`
	Source     Source       `json:"source"`
}

// Mapping is a confirmed text-to-field assignment to learn from.
type Mapping struct {
	Text              string
	Field             domain.Field
	Confidence        float64
	WasManuallyEdited bool
	CorrectedText     string
}

// Options tunes an Engine. Zero values take the defaults.
type Options struct {
	HistoryCap       int // default 1000
	PruneEvery       int // default 50
	SimilarityWindow int // default 50
	MaxSuggestions   int // default 3
	Logger           *slog.Logger
	Now              func() time.Time
	NewID            func(prefix string) string
}

func (o Options) withDefaults() Options {
	if o.HistoryCap <= 0 {
		o.HistoryCap = 1000
	}
	if o.PruneEvery <= 0 {
		o.PruneEvery = 50
	}
	if o.SimilarityWindow <= 0 {
		o.SimilarityWindow = 50
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = 3
	}
	o.Logger = logger.OrDiscard(o.Logger)
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = id.MustGenerate
	}
	return o
}

type compiledRule struct {
	domain.Rule
	match Predicate
}

// Engine is the suggestion engine of one organization. It is safe for
// concurrent use.
type Engine struct {
	kv     store.KV
	org    string
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	history  []domain.HistoryEntry
	rules    []compiledRule
	recorded int // lifetime count of recorded mappings, drives pruning
}

// counters is the persisted stats document: the aggregates plus the
// pruning counter.
type counters struct {
	Stats
	Recorded int `json:"recorded"`
}

// New loads the engine for org from kv. Missing or unreadable data is
// replaced with an empty history and the default rules; New never fails.
func New(ctx context.Context, kv store.KV, org string, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		kv:     kv,
		org:    org,
		opts:   opts,
		logger: opts.Logger.With("org", org),
	}
	e.load(ctx)
	return e
}

// Org returns the organization the engine learns for.
func (e *Engine) Org() string { return e.org }

func (e *Engine) load(ctx context.Context) {
	var history []domain.HistoryEntry
	if err := store.GetJSON(ctx, e.kv, store.SuggestKey(e.org, store.SuffixHistory), &history); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("resetting unreadable mapping history", "error", err)
		}
		history = nil
	}
	e.history = history

	var rules []domain.Rule
	err := store.GetJSON(ctx, e.kv, store.SuggestKey(e.org, store.SuffixRules), &rules)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("resetting unreadable suggestion rules", "error", err)
	}
	compiled, cerr := compileRules(rules)
	if cerr != nil {
		e.logger.Warn("resetting suggestion rules with invalid patterns", "error", cerr)
		compiled = nil
	}
	if err != nil || cerr != nil || len(compiled) == 0 {
		compiled, _ = compileRules(DefaultRules(e.opts.Now().UTC()))
		e.rules = compiled
		e.saveRules(ctx)
	} else {
		e.rules = compiled
	}

	var c counters
	if err := store.GetJSON(ctx, e.kv, store.SuggestKey(e.org, store.SuffixStats), &c); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("resetting unreadable mapping stats", "error", err)
		}
		c.Recorded = len(e.history)
	}
	e.recorded = c.Recorded

	e.logger.Debug("suggestion engine loaded",
		"history", len(e.history), "rules", len(e.rules), "recorded", e.recorded)
}

func compileRules(rules []domain.Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !validation.IsFieldName(string(r.FieldName)) {
			return nil, fmt.Errorf("rule %s: invalid field name %q", r.ID, r.FieldName)
		}
		match, err := Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		out = append(out, compiledRule{Rule: r, match: match})
	}
	return out, nil
}

// Suggestions ranks the candidate fields for text. At most MaxSuggestions
// results are returned, highest confidence first, one per field.
func (e *Engine) Suggestions(text string, fields []domain.Field) []Suggestion {
	if normalize.Text(text) == "" || len(fields) == 0 {
		return nil
	}
	candidates := make(map[domain.Field]bool, len(fields))
	for _, f := range fields {
		candidates[f] = true
	}

	e.mu.RLock()
	all := e.historical(text, candidates)
	all = append(all, e.patterns(text, candidates)...)
	all = append(all, e.similar(text, candidates)...)
	e.mu.RUnlock()

	return rank(all, e.opts.MaxSuggestions)
}

func (e *Engine) historical(text string, candidates map[domain.Field]bool) []Suggestion {
	key := normalize.Fold(text)
	counts := map[domain.Field]int{}
	var order []domain.Field
	for _, h := range e.history {
		if !candidates[h.FieldName] || normalize.Fold(h.OCRText) != key {
			continue
		}
		if counts[h.FieldName] == 0 {
			order = append(order, h.FieldName)
		}
		counts[h.FieldName]++
	}

	var out []Suggestion
	for _, f := range order {
		n := counts[f]
		if n < minHistoryMatches {
			continue
		}
		out = append(out, Suggestion{
			FieldName:  f,
			Confidence: math.Min(historyMax, historyBase+historyStep*float64(n)),
			Reason:     fmt.Sprintf("Previously mapped %d times", n),
			Source:     SourceHistory,
		})
	}
	return out
}

func (e *Engine) patterns(text string, candidates map[domain.Field]bool) []Suggestion {
	var out []Suggestion
	for _, r := range e.rules {
		if !candidates[r.FieldName] || !r.match(text) {
			continue
		}
		out = append(out, Suggestion{
			FieldName:  r.FieldName,
			Confidence: math.Min(r.Confidence, r.SuccessRate),
			Reason: fmt.Sprintf("Matches pattern (%d uses, %d%% success)",
				r.UsageCount, int(math.Round(r.SuccessRate*100))),
			Source: SourcePattern,
		})
	}
	return out
}

func (e *Engine) similar(text string, candidates map[domain.Field]bool) []Suggestion {
	var recent []domain.HistoryEntry
	for _, h := range e.history {
		if candidates[h.FieldName] {
			recent = append(recent, h)
		}
	}
	if len(recent) > e.opts.SimilarityWindow {
		recent = recent[len(recent)-e.opts.SimilarityWindow:]
	}

	query := normalize.Fold(text)
	var out []Suggestion
	for _, h := range recent {
		sim := Similarity(query, normalize.Fold(h.OCRText))
		if sim <= similarityThreshold {
			continue
		}
		out = append(out, Suggestion{
			FieldName:  h.FieldName,
			Confidence: sim * similarityWeight,
			Reason:     fmt.Sprintf("Similar to %q (%d%% match)", h.OCRText, int(math.Round(sim*100))),
			Source:     SourceSimilarity,
		})
	}
	return out
}

// rank keeps the most confident suggestion per field, earliest winning
// ties, and returns the top n by confidence.
func rank(all []Suggestion, n int) []Suggestion {
	best := map[domain.Field]int{}
	var out []Suggestion
	for _, s := range all {
		i, seen := best[s.FieldName]
		if !seen {
			best[s.FieldName] = len(out)
			out = append(out, s)
			continue
		}
		if s.Confidence > out[i].Confidence {
			out[i] = s
		}
	}
	slices.SortStableFunc(out, func(a, b Suggestion) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RecordMapping appends m to the history, reinforces or creates the shape
// rules it is evidence for, and prunes every PruneEvery-th call. Mappings
// with empty text or an invalid field name are ignored.
func (e *Engine) RecordMapping(ctx context.Context, m Mapping) {
	text := normalize.Text(m.Text)
	if text == "" || !validation.IsFieldName(string(m.Field)) {
		return
	}
	conf := clamp01(m.Confidence)
	now := e.opts.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := domain.HistoryEntry{
		ID:                e.opts.NewID(id.PrefixMapping),
		OCRText:           text,
		FieldName:         m.Field,
		Confidence:        conf,
		Timestamp:         now,
		OrgID:             e.org,
		WasManuallyEdited: m.WasManuallyEdited,
	}
	if m.WasManuallyEdited {
		entry.CorrectedText = normalize.Text(m.CorrectedText)
	}
	e.history = append(e.history, entry)

	for _, p := range derivePatterns(text, m.Field) {
		e.learn(p, m.Field, conf, now)
	}

	e.recorded++
	if e.recorded%e.opts.PruneEvery == 0 {
		e.prune()
	}

	e.saveHistory(ctx)
	e.saveRules(ctx)
	e.saveStats(ctx)
}

func (e *Engine) learn(p domain.Pattern, f domain.Field, conf float64, now time.Time) {
	key := p.Key()
	for i := range e.rules {
		r := &e.rules[i]
		if r.FieldName != f || r.Pattern.Key() != key {
			continue
		}
		r.UsageCount++
		n := float64(r.UsageCount)
		r.SuccessRate = (r.SuccessRate*(n-1) + conf) / n
		r.Updated = now
		return
	}

	match, err := Compile(p)
	if err != nil {
		// derivePatterns only yields built-in shapes.
		e.logger.Error("derived pattern does not compile", "pattern", key, "error", err)
		return
	}
	e.rules = append(e.rules, compiledRule{
		Rule: domain.Rule{
			ID:          e.opts.NewID(id.PrefixRule),
			Pattern:     p,
			FieldName:   f,
			Confidence:  conf * newRuleWeight,
			UsageCount:  1,
			SuccessRate: conf,
			Created:     now,
			Updated:     now,
		},
		match: match,
	})
}

// prune drops weak rules, built-in or learned, and caps the history to the
// newest entries. An organization left without rules is reseeded with the
// defaults on its next load.
func (e *Engine) prune() {
	before := len(e.rules)
	e.rules = slices.DeleteFunc(e.rules, func(r compiledRule) bool {
		return r.UsageCount < pruneMinUsage || r.SuccessRate < pruneMinSuccess
	})

	trimmed := 0
	if len(e.history) > e.opts.HistoryCap {
		slices.SortStableFunc(e.history, func(a, b domain.HistoryEntry) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		trimmed = len(e.history) - e.opts.HistoryCap
		e.history = slices.Clone(e.history[trimmed:])
	}

	e.logger.Info("pruned suggestion data",
		"rules_removed", before-len(e.rules), "history_removed", trimmed)
}

func (e *Engine) saveHistory(ctx context.Context) {
	e.save(ctx, store.SuffixHistory, e.history)
}

func (e *Engine) saveRules(ctx context.Context) {
	e.save(ctx, store.SuffixRules, e.rulesLocked())
}

func (e *Engine) saveStats(ctx context.Context) {
	e.save(ctx, store.SuffixStats, counters{Stats: computeStats(e.history), Recorded: e.recorded})
}

// save writes one document. Failures only cost cross-session learning, so
// they are logged and the in-memory state stays authoritative.
func (e *Engine) save(ctx context.Context, suffix string, v any) {
	key := store.SuggestKey(e.org, suffix)
	if err := store.SetJSON(ctx, e.kv, key, v); err != nil {
		e.logger.Warn("failed to persist suggestion data", "key", key, "error", err)
	}
}

func (e *Engine) rulesLocked() []domain.Rule {
	out := make([]domain.Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

// History returns a copy of the mapping history, oldest first.
func (e *Engine) History() []domain.HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.history)
}

// Rules returns a copy of the current rule set.
func (e *Engine) Rules() []domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rulesLocked()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
