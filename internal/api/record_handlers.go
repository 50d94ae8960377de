package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerRecordRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "addRecord",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/records",
		Summary:       "Add record",
		Description:   "Appends an empty record",
		Tags:          []string{"Records"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeRecord",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/records/{recordID}",
		Summary:     "Remove record",
		Description: "Deletes a record and frees the lines it held",
		Tags:        []string{"Records"},
	}, s.handleRemoveRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "mapLineToField",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/records/{recordID}/fields/{field}/line",
		Summary:     "Map line to field",
		Description: "Assigns an OCR line to a field, taking it away from any field that held it",
		Tags:        []string{"Records"},
	}, s.handleMapLine)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateFieldValue",
		Method:      http.MethodPut,
		Path:        "/api/v1/sessions/{id}/records/{recordID}/fields/{field}/value",
		Summary:     "Update field value",
		Description: "Overwrites a field value by hand and marks it edited",
		Tags:        []string{"Records"},
	}, s.handleUpdateValue)

	huma.Register(s.api, huma.Operation{
		OperationID: "clearField",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/records/{recordID}/fields/{field}",
		Summary:     "Clear field",
		Description: "Empties a field and frees its line",
		Tags:        []string{"Records"},
	}, s.handleClearField)

	huma.Register(s.api, huma.Operation{
		OperationID: "lockRecord",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/records/{recordID}/lock",
		Summary:     "Lock record",
		Description: "Freezes a record against further changes",
		Tags:        []string{"Records"},
	}, s.handleLockRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "unlockRecord",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/records/{recordID}/lock",
		Summary:     "Unlock record",
		Description: "Releases a locked record",
		Tags:        []string{"Records"},
	}, s.handleUnlockRecord)
}

// === DTOs ===

// RecordInput addresses a record.
type RecordInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordID" doc:"Record ID"`
}

// FieldInput addresses a record field.
type FieldInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordID" doc:"Record ID"`
	Field    string `path:"field" doc:"Field name"`
}

// MapLineRequest is the request body for mapping a line.
type MapLineRequest struct {
	Line int `json:"line" doc:"Index of the OCR line"`
}

// MapLineInput wraps the map line request for Huma.
type MapLineInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordID" doc:"Record ID"`
	Field    string `path:"field" doc:"Field name"`
	Body     MapLineRequest
}

// UpdateValueRequest is the request body for editing a value.
type UpdateValueRequest struct {
	Value string `json:"value" doc:"New value"`
}

// UpdateValueInput wraps the update value request for Huma.
type UpdateValueInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordID" doc:"Record ID"`
	Field    string `path:"field" doc:"Field name"`
	Body     UpdateValueRequest
}

// === Handlers ===
//
// References to unknown records, fields or lines leave the state unchanged;
// only unknown sessions and locked records are errors.

func (s *Server) handleAddRecord(_ context.Context, input *SessionInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.AddRecord(input.ID))
}

func (s *Server) handleRemoveRecord(_ context.Context, input *RecordInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.RemoveRecord(input.ID, input.RecordID))
}

func (s *Server) handleMapLine(_ context.Context, input *MapLineInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.MapLine(input.ID, input.RecordID, input.Field, input.Body.Line))
}

func (s *Server) handleUpdateValue(_ context.Context, input *UpdateValueInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.UpdateValue(input.ID, input.RecordID, input.Field, input.Body.Value))
}

func (s *Server) handleClearField(_ context.Context, input *FieldInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.ClearField(input.ID, input.RecordID, input.Field))
}

func (s *Server) handleLockRecord(_ context.Context, input *RecordInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.Lock(input.ID, input.RecordID))
}

func (s *Server) handleUnlockRecord(_ context.Context, input *RecordInput) (*SessionOutput, error) {
	return sessionOutput(s.services.Sessions.Unlock(input.ID, input.RecordID))
}
