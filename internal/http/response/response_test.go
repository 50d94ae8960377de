package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/logger"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, map[string]string{"status": "healthy"}, logger.Discard())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, float64(Version), body["v"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"status": "healthy"}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter)
		wantCode int
		wantErr  string
	}{
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no route", nil) }, http.StatusNotFound, "NOT_FOUND"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w, nil) }, http.StatusMethodNotAllowed, "VALIDATION"},
		{"rate limited", func(w http.ResponseWriter) { TooManyRequests(w, "slow down", nil) }, http.StatusTooManyRequests, "RATE_LIMITED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantErr, body["code"])
		})
	}
}

func TestHandleError(t *testing.T) {
	t.Run("domain error keeps code and details", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := domainerrors.ValidationWithDetails("validation failed", map[string]string{"org": "is required"})
		HandleError(w, err, logger.Discard())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "VALIDATION", body["code"])
		assert.Equal(t, "validation failed", body["error"])
		assert.Equal(t, map[string]any{"org": "is required"}, body["details"])
	})

	t.Run("wrapped domain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := errors.Join(errors.New("context"), domainerrors.RecordLockedf("record r1 is locked"))
		HandleError(w, err, logger.Discard())
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleError(w, errors.New("disk on fire"), logger.Discard())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal server error", body["error"])
	})
}
