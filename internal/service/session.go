package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/parishrecords/ocrmapper/internal/domain"
	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/id"
	"github.com/parishrecords/ocrmapper/internal/mapping"
	"github.com/parishrecords/ocrmapper/internal/segment"
	"github.com/parishrecords/ocrmapper/internal/sse"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// SessionOptions configures correction sessions.
type SessionOptions struct {
	UndoDepth int           // Snapshots kept per session; 0 disables undo
	TTL       time.Duration // Idle time before a session is swept
	Debug     bool          // Verify state invariants after every change
	Now       func() time.Time
	NewID     func() string
}

// CreateSessionRequest starts a correction session.
type CreateSessionRequest struct {
	Org          string              `json:"org" validate:"required,org_id"`
	DocumentType domain.DocumentType `json:"documentType" validate:"required"`
	Lines        []domain.OcrLine    `json:"lines" validate:"dive"`
	AutoSplit    bool                `json:"autoSplit"`
}

// Session is a snapshot of one correction session.
type Session struct {
	ID           string
	Org          string
	DocumentType domain.DocumentType
	State        mapping.State
	Locked       []string
	UndoDepth    int
	Split        *segment.Report
	Created      time.Time
	Updated      time.Time
	Submitted    *time.Time
}

// session is the live, mutable side of a Session.
type session struct {
	mu        sync.Mutex
	id        string
	org       string
	docType   domain.DocumentType
	manager   *mapping.Manager
	state     mapping.State
	undo      []mapping.State
	locked    map[string]bool
	split     *segment.Report
	created   time.Time
	updated   time.Time
	submitted *time.Time
}

func (s *session) snapshot() *Session {
	locked := make([]string, 0, len(s.locked))
	for rid := range s.locked {
		locked = append(locked, rid)
	}
	slices.Sort(locked)
	return &Session{
		ID:           s.id,
		Org:          s.org,
		DocumentType: s.docType,
		State:        s.state,
		Locked:       locked,
		UndoDepth:    len(s.undo),
		Split:        s.split,
		Created:      s.created,
		Updated:      s.updated,
		Submitted:    s.submitted,
	}
}

// SessionService holds in-memory correction sessions. Each session owns a
// pure mapping.State; every change replaces it and keeps the previous value
// for undo.
type SessionService struct {
	templates   *domain.TemplateRegistry
	fieldStore  mapping.FieldSuggestionStore
	suggestions *SuggestionService
	validator   *validation.Validator
	events      EventEmitter
	opts        SessionOptions
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionService creates a new session service.
func NewSessionService(
	templates *domain.TemplateRegistry,
	fieldStore mapping.FieldSuggestionStore,
	suggestions *SuggestionService,
	validator *validation.Validator,
	opts SessionOptions,
	logger *slog.Logger,
) *SessionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = id.Session
	}
	return &SessionService{
		templates:   templates,
		fieldStore:  fieldStore,
		suggestions: suggestions,
		validator:   validator,
		events:      noopEmitter{},
		opts:        opts,
		logger:      logger,
		sessions:    make(map[string]*session),
	}
}

// SetEventEmitter sets where submissions are announced.
func (s *SessionService) SetEventEmitter(e EventEmitter) {
	s.events = e
}

// Create starts a session over the given lines. With AutoSplit the lines are
// segmented into records and pre-mapped.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	tmpl, ok := s.templates.Lookup(req.DocumentType)
	if !ok {
		return nil, domainerrors.Validationf("unknown document type %q", req.DocumentType)
	}

	m := mapping.NewManager(mapping.Options{
		Template:    tmpl,
		Org:         req.Org,
		Suggestions: s.fieldStore,
		Logger:      s.logger,
	})
	lines := domain.NewLineStore(req.Lines)
	state := m.CreateInitialState(ctx, lines)

	var report *segment.Report
	if req.AutoSplit {
		segments := segment.NewSplitter(tmpl, segment.DefaultMinLines).SplitIntoRecords(lines)
		var r segment.Report
		state, r = segment.AutoSplit(m, state, segments)
		report = &r
	}

	now := s.opts.Now()
	sess := &session{
		id:      s.opts.NewID(),
		org:     req.Org,
		docType: req.DocumentType,
		manager: m,
		state:   state,
		locked:  map[string]bool{},
		split:   report,
		created: now,
		updated: now,
	}
	s.verify(sess)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("correction session created",
		"session", sess.id, "org", req.Org, "document_type", req.DocumentType,
		"lines", lines.Len(), "records", state.Len())
	return sess.snapshot(), nil
}

func (s *SessionService) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domainerrors.NotFoundf("session %s not found", sessionID)
	}
	return sess, nil
}

// Get returns a session snapshot.
func (s *SessionService) Get(sessionID string) (*Session, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// Delete discards a session.
func (s *SessionService) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domainerrors.NotFoundf("session %s not found", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}

// apply runs op against the session's state under its lock and records the
// previous state for undo. A no-op leaves the undo stack alone.
func (s *SessionService) apply(sessionID string, op func(*session) (mapping.State, error)) (*Session, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, err := op(sess)
	if err != nil {
		return nil, err
	}
	if !next.Changed(sess.state) {
		return sess.snapshot(), nil
	}
	if s.opts.UndoDepth > 0 {
		sess.undo = append(sess.undo, sess.state)
		if len(sess.undo) > s.opts.UndoDepth {
			sess.undo = slices.Delete(sess.undo, 0, len(sess.undo)-s.opts.UndoDepth)
		}
	}
	sess.state = next
	sess.updated = s.opts.Now()
	s.verify(sess)
	return sess.snapshot(), nil
}

// verify checks the state invariants in debug mode.
func (s *SessionService) verify(sess *session) {
	if !s.opts.Debug {
		return
	}
	if err := mapping.CheckInvariants(sess.state); err != nil {
		s.logger.Error("mapping state invariant violated", "session", sess.id, "error", err)
	}
}

// checkUnlocked rejects changes to a locked record.
func checkUnlocked(sess *session, recordID string) error {
	if sess.locked[recordID] {
		return domainerrors.RecordLockedf("record %s is locked", recordID)
	}
	return nil
}

// AddRecord appends an empty record.
func (s *SessionService) AddRecord(sessionID string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		return sess.manager.AddRecord(sess.state), nil
	})
}

// RemoveRecord deletes a record and frees its lines.
func (s *SessionService) RemoveRecord(sessionID, recordID string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		if err := checkUnlocked(sess, recordID); err != nil {
			return mapping.State{}, err
		}
		return sess.manager.RemoveRecord(sess.state, recordID), nil
	})
}

// MapLine assigns an OCR line to a record field. A line held by a locked
// record cannot be taken.
func (s *SessionService) MapLine(sessionID, recordID, field string, line int) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		if err := checkUnlocked(sess, recordID); err != nil {
			return mapping.State{}, err
		}
		if owner, _, ok := sess.state.Owner(line); ok && owner != recordID {
			if err := checkUnlocked(sess, owner); err != nil {
				return mapping.State{}, err
			}
		}
		return sess.manager.MapLineToField(sess.state, recordID, domain.Field(field), line), nil
	})
}

// ClearField empties a record field.
func (s *SessionService) ClearField(sessionID, recordID, field string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		if err := checkUnlocked(sess, recordID); err != nil {
			return mapping.State{}, err
		}
		return sess.manager.ClearFieldMapping(sess.state, recordID, domain.Field(field)), nil
	})
}

// UpdateValue overwrites a field value by hand.
func (s *SessionService) UpdateValue(sessionID, recordID, field, value string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		if err := checkUnlocked(sess, recordID); err != nil {
			return mapping.State{}, err
		}
		return sess.manager.UpdateFieldValue(sess.state, recordID, domain.Field(field), value), nil
	})
}

// Reset clears every unlocked record's fields.
func (s *SessionService) Reset(sessionID string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		if len(sess.locked) == 0 {
			return sess.manager.ResetMappings(sess.state), nil
		}
		next := sess.state
		tmpl := next.Template()
		for _, rid := range next.RecordIDs() {
			if sess.locked[rid] {
				continue
			}
			for _, f := range tmpl.Names() {
				next = sess.manager.ClearFieldMapping(next, rid, f)
			}
		}
		return next, nil
	})
}

// SaveSuggestion adds an autocomplete value for a field.
func (s *SessionService) SaveSuggestion(ctx context.Context, sessionID, field, value string) (*Session, error) {
	return s.apply(sessionID, func(sess *session) (mapping.State, error) {
		return sess.manager.SaveSuggestion(ctx, sess.state, domain.Field(field), value), nil
	})
}

// Undo restores the state before the last change. Lock changes are not
// undone.
func (s *SessionService) Undo(sessionID string) (*Session, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if len(sess.undo) == 0 {
		return nil, domainerrors.Conflictf("nothing to undo")
	}
	sess.state = sess.undo[len(sess.undo)-1]
	sess.undo = sess.undo[:len(sess.undo)-1]
	sess.updated = s.opts.Now()
	return sess.snapshot(), nil
}

// Lock freezes a record against further changes.
func (s *SessionService) Lock(sessionID, recordID string) (*Session, error) {
	return s.setLock(sessionID, recordID, true)
}

// Unlock releases a locked record.
func (s *SessionService) Unlock(sessionID, recordID string) (*Session, error) {
	return s.setLock(sessionID, recordID, false)
}

func (s *SessionService) setLock(sessionID, recordID string, locked bool) (*Session, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, ok := sess.state.Record(recordID); !ok {
		return nil, domainerrors.NotFoundf("record %s not found", recordID)
	}
	if locked {
		sess.locked[recordID] = true
	} else {
		delete(sess.locked, recordID)
	}
	sess.updated = s.opts.Now()
	return sess.snapshot(), nil
}

// Validation reports per-record validation keyed by record id.
func (s *SessionService) Validation(sessionID string) (map[string]mapping.Validation, error) {
	snap, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]mapping.Validation, snap.State.Len())
	for _, r := range snap.State.Records() {
		out[r.ID] = mapping.ValidateRecord(r)
	}
	return out, nil
}

// Submit exports the session for ingestion and feeds every OCR-backed field
// to the organization's suggestion engine.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (*mapping.Submission, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.submitted != nil {
		sess.mu.Unlock()
		return nil, domainerrors.Conflictf("session %s already submitted", sessionID)
	}
	state := sess.state
	now := s.opts.Now()
	prevUpdated := sess.updated
	sess.submitted = &now
	sess.updated = now
	sess.mu.Unlock()

	sub := mapping.Export(state, now)
	learned := confirmedMappings(state)
	if s.suggestions != nil && len(learned) > 0 {
		if err := s.suggestions.Learn(ctx, sess.org, learned); err != nil {
			sess.mu.Lock()
			sess.submitted = nil
			sess.updated = prevUpdated
			sess.mu.Unlock()
			return nil, err
		}
	}

	s.events.Emit(sse.NewSessionSubmittedEvent(sess.org, sessionID, string(sess.docType), state.Len()))
	s.logger.Info("correction session submitted",
		"session", sessionID, "org", sess.org, "records", state.Len(), "learned", len(learned))
	return &sub, nil
}

// confirmedMappings lists the fields filled from an OCR line, each paired
// with the line's original text.
func confirmedMappings(state mapping.State) []suggest.Mapping {
	var out []suggest.Mapping
	lines := state.Lines()
	fields := state.Template().Names()
	for _, r := range state.Records() {
		for _, f := range fields {
			fm := r.Get(f)
			if !fm.Filled() || !fm.IsOCR() {
				continue
			}
			line, ok := lines.At(fm.SourceLine)
			if !ok {
				continue
			}
			m := suggest.Mapping{
				Text:              line.Text,
				Field:             f,
				Confidence:        fm.Confidence,
				WasManuallyEdited: fm.IsEdited,
			}
			if fm.IsEdited {
				m.CorrectedText = fm.Value
			}
			out = append(out, m)
		}
	}
	return out
}

// Sweep removes sessions idle longer than the TTL and returns how many.
func (s *SessionService) Sweep() int {
	if s.opts.TTL <= 0 {
		return 0
	}
	cutoff := s.opts.Now().Add(-s.opts.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sid, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.updated.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, sid)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept idle correction sessions", "removed", removed)
	}
	return removed
}

// RunSweeper sweeps on every tick until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
