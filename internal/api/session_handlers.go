package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/mapping"
	"github.com/parishrecords/ocrmapper/internal/segment"
	"github.com/parishrecords/ocrmapper/internal/service"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create session",
		Description:   "Starts a correction session over OCR lines, optionally splitting them into records",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session",
		Description: "Returns the current mapping state of a session",
		Tags:        []string{"Sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteSession",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sessions/{id}",
		Summary:       "Delete session",
		Description:   "Discards a session without submitting it",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/reset",
		Summary:     "Reset mappings",
		Description: "Clears every field of every unlocked record",
		Tags:        []string{"Sessions"},
	}, s.handleReset)

	huma.Register(s.api, huma.Operation{
		OperationID: "undoSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/undo",
		Summary:     "Undo",
		Description: "Restores the state before the last change",
		Tags:        []string{"Sessions"},
	}, s.handleUndo)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAvailableLines",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/available-lines",
		Summary:     "Available lines",
		Description: "Returns the OCR lines not mapped to any field",
		Tags:        []string{"Sessions"},
	}, s.handleAvailableLines)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSessionSummary",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/summary",
		Summary:     "Session summary",
		Description: "Returns record counts and overall progress",
		Tags:        []string{"Sessions"},
	}, s.handleSummary)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSessionValidation",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/validation",
		Summary:     "Validate records",
		Description: "Returns required-field validation per record",
		Tags:        []string{"Sessions"},
	}, s.handleValidation)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveFieldSuggestion",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/suggestions",
		Summary:     "Save autocomplete value",
		Description: "Adds a value to a field's autocomplete list for the organization",
		Tags:        []string{"Sessions"},
	}, s.handleSaveSuggestion)

	huma.Register(s.api, huma.Operation{
		OperationID: "submitSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/submit",
		Summary:     "Submit session",
		Description: "Exports the records for ingestion and learns from the confirmed mappings. A session can be submitted once.",
		Tags:        []string{"Sessions"},
	}, s.handleSubmit)
}

// === DTOs ===

// OcrLineBody is one recognized line in a create request. Lines are indexed
// by their position in the request.
type OcrLineBody struct {
	Text       string  `json:"text" doc:"Recognized text"`
	Confidence float64 `json:"confidence,omitempty" doc:"Recognition confidence in [0,1]"`
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Org          string        `json:"org" doc:"Organization id"`
	DocumentType string        `json:"documentType" doc:"Template name, e.g. funeral, baptism or marriage"`
	Lines        []OcrLineBody `json:"lines,omitempty" doc:"OCR lines in reading order"`
	AutoSplit    bool          `json:"autoSplit,omitempty" doc:"Split the lines into records and pre-map fields"`
}

// CreateSessionInput wraps the create session request for Huma.
type CreateSessionInput struct {
	Body CreateSessionRequest
}

// SessionInput addresses a session.
type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// RecordResponse is one record with every template field present; unset
// fields are null.
type RecordResponse struct {
	ID           string                          `json:"id" doc:"Record ID"`
	Fields       map[string]*domain.FieldMapping `json:"fields" doc:"Field mappings keyed by field name"`
	Completeness int                             `json:"completeness" doc:"Percentage of fields filled"`
	Locked       bool                            `json:"locked" doc:"Whether the record rejects changes"`
}

// SessionResponse contains session data in API responses.
type SessionResponse struct {
	ID               string              `json:"id" doc:"Session ID"`
	Org              string              `json:"org" doc:"Organization id"`
	DocumentType     string              `json:"documentType" doc:"Template name"`
	Records          []RecordResponse    `json:"records" doc:"Records in order"`
	Lines            []domain.OcrLine    `json:"lines" doc:"OCR lines"`
	UsedLines        []int               `json:"usedLines" doc:"Indices of lines backing a field"`
	FieldSuggestions map[string][]string `json:"fieldSuggestions" doc:"Autocomplete values per field"`
	UndoDepth        int                 `json:"undoDepth" doc:"Changes that can be undone"`
	Split            *segment.Report     `json:"split,omitempty" doc:"Outcome of automatic splitting"`
	CreatedAt        time.Time           `json:"createdAt" doc:"Creation time"`
	UpdatedAt        time.Time           `json:"updatedAt" doc:"Last change"`
	SubmittedAt      *time.Time          `json:"submittedAt,omitempty" doc:"Submission time"`
}

// SessionOutput wraps the session response for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// AvailableLinesOutput lists unmapped lines.
type AvailableLinesOutput struct {
	Body struct {
		Lines []domain.OcrLine `json:"lines" doc:"Unmapped lines in order"`
	}
}

// SummaryOutput wraps a session summary.
type SummaryOutput struct {
	Body mapping.Summary
}

// ValidationOutput wraps per-record validation.
type ValidationOutput struct {
	Body struct {
		Records map[string]mapping.Validation `json:"records" doc:"Validation keyed by record ID"`
	}
}

// SaveSuggestionRequest is the request body for saving an autocomplete value.
type SaveSuggestionRequest struct {
	Field string `json:"field" doc:"Field name"`
	Value string `json:"value" doc:"Value to remember"`
}

// SaveSuggestionInput wraps the save suggestion request for Huma.
type SaveSuggestionInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body SaveSuggestionRequest
}

// SubmitOutput wraps the submission payload.
type SubmitOutput struct {
	Body mapping.Submission
}

func toSessionResponse(sess *service.Session) SessionResponse {
	state := sess.State
	tmpl := state.Template()

	locked := make(map[string]bool, len(sess.Locked))
	for _, rid := range sess.Locked {
		locked[rid] = true
	}

	records := make([]RecordResponse, 0, state.Len())
	for _, r := range state.Records() {
		fields := make(map[string]*domain.FieldMapping, tmpl.Len())
		for _, f := range tmpl.Names() {
			fields[string(f)] = r.Get(f)
		}
		records = append(records, RecordResponse{
			ID:           r.ID,
			Fields:       fields,
			Completeness: mapping.RecordCompleteness(r),
			Locked:       locked[r.ID],
		})
	}

	suggestions := make(map[string][]string)
	for f, values := range state.FieldSuggestions() {
		suggestions[string(f)] = values
	}

	used := state.UsedLines()
	if used == nil {
		used = []int{}
	}

	return SessionResponse{
		ID:               sess.ID,
		Org:              sess.Org,
		DocumentType:     string(sess.DocumentType),
		Records:          records,
		Lines:            state.Lines().All(),
		UsedLines:        used,
		FieldSuggestions: suggestions,
		UndoDepth:        sess.UndoDepth,
		Split:            sess.Split,
		CreatedAt:        sess.Created,
		UpdatedAt:        sess.Updated,
		SubmittedAt:      sess.Submitted,
	}
}

func sessionOutput(sess *service.Session, err error) (*SessionOutput, error) {
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: toSessionResponse(sess)}, nil
}

// === Handlers ===

func (s *Server) handleCreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	lines := make([]domain.OcrLine, len(input.Body.Lines))
	for i, l := range input.Body.Lines {
		lines[i] = domain.OcrLine{Index: i, Text: l.Text, Confidence: l.Confidence}
	}
	return sessionOutput(s.services.Sessions.Create(ctx, service.CreateSessionRequest{
		Org:          input.Body.Org,
		DocumentType: domain.DocumentType(input.Body.DocumentType),
		Lines:        lines,
		AutoSplit:    input.Body.AutoSplit,
	}))
}

func (s *Server) handleGetSession(_ context.Context, input *SessionInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.Get(input.ID))
}

func (s *Server) handleDeleteSession(_ context.Context, input *SessionInput) (*struct{}, error) {
	if err := s.services.Sessions.Delete(input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleReset(_ context.Context, input *SessionInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.Reset(input.ID))
}

func (s *Server) handleUndo(_ context.Context, input *SessionInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.Undo(input.ID))
}

func (s *Server) handleAvailableLines(_ context.Context, input *SessionInput) (*AvailableLinesOutput, error) {
	sess, err := s.services.Sessions.Get(input.ID)
	if err != nil {
		return nil, err
	}
	out := &AvailableLinesOutput{}
	out.Body.Lines = mapping.AvailableLines(sess.State)
	return out, nil
}

func (s *Server) handleSummary(_ context.Context, input *SessionInput) (*SummaryOutput, error) {
	sess, err := s.services.Sessions.Get(input.ID)
	if err != nil {
		return nil, err
	}
	return &SummaryOutput{Body: mapping.Summarize(sess.State)}, nil
}

func (s *Server) handleValidation(_ context.Context, input *SessionInput) (*ValidationOutput, error) {
	v, err := s.services.Sessions.Validation(input.ID)
	if err != nil {
		return nil, err
	}
	out := &ValidationOutput{}
	out.Body.Records = v
	return out, nil
}

func (s *Server) handleSaveSuggestion(ctx context.Context, input *SaveSuggestionInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.SaveSuggestion(ctx, input.ID, input.Body.Field, input.Body.Value))
}

func (s *Server) handleSubmit(ctx context.Context, input *SessionInput) (*SubmitOutput, error) {
	sub, err := s.services.Sessions.Submit(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitOutput{Body: *sub}, nil
}
