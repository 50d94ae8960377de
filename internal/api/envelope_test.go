package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{"success response", "200", map[string]string{"key": "value"}},
		{"created response", "201", map[string]string{"id": "123"}},
		{"plain error", "500", errors.New("internal error")},
		{"coded error", "409", &APIError{Code: "RECORD_LOCKED", Message: "record r1 is locked"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			raw, err := json.Marshal(result)
			require.NoError(t, err)
			var envelope map[string]any
			require.NoError(t, json.Unmarshal(raw, &envelope))

			assert.Equal(t, float64(EnvelopeVersion), envelope["v"])
		})
	}
}

func TestEnvelopeTransformer_SuccessResponse(t *testing.T) {
	data := map[string]string{"org": "st-nicholas"}

	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok, "Expected APIEnvelope type")
	assert.True(t, envelope.Success)
	assert.Equal(t, data, envelope.Data)
	assert.Empty(t, envelope.Error)
}

func TestEnvelopeTransformer_ErrorWithDetails(t *testing.T) {
	apiErr := &APIError{
		Code:    "VALIDATION",
		Message: "validation failed",
		Details: map[string]string{"org": "is required"},
	}

	result, err := EnvelopeTransformer(nil, "400", apiErr)
	require.NoError(t, err)

	envelope, ok := result.(APIErrorEnvelope)
	require.True(t, ok, "Expected APIErrorEnvelope type")
	assert.False(t, envelope.Success)
	assert.Equal(t, "VALIDATION", envelope.Code)
	assert.Equal(t, "validation failed", envelope.Error)
	assert.Equal(t, map[string]string{"org": "is required"}, envelope.Details)
}

func TestEnvelopeTransformer_AlreadyWrapped(t *testing.T) {
	in := APIEnvelope{Version: EnvelopeVersion, Success: true, Data: 1}

	result, err := EnvelopeTransformer(nil, "200", in)
	require.NoError(t, err)
	assert.Equal(t, in, result)
}

func TestRegisterErrorHandler(t *testing.T) {
	RegisterErrorHandler()

	tests := []struct {
		name       string
		status     int
		errs       []error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "domain error wins",
			status:     http.StatusInternalServerError,
			errs:       []error{domainerrors.RecordLockedf("record %s is locked", "r1")},
			wantStatus: http.StatusConflict,
			wantCode:   "RECORD_LOCKED",
		},
		{
			name:       "import failure",
			status:     http.StatusInternalServerError,
			errs:       []error{domainerrors.ImportFailed("bad document")},
			wantStatus: http.StatusBadRequest,
			wantCode:   "IMPORT_FAILED",
		},
		{
			name:       "request validation",
			status:     http.StatusUnprocessableEntity,
			errs:       []error{&huma.ErrorDetail{Message: "expected required property text to be present"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION",
		},
		{
			name:       "plain status",
			status:     http.StatusNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := huma.NewError(tt.status, "message", tt.errs...)
			assert.Equal(t, tt.wantStatus, got.GetStatus())

			apiErr, ok := got.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}
