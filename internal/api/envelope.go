package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/parishrecords/ocrmapper/internal/http/response"
)

// EnvelopeVersion is the response envelope format version.
const EnvelopeVersion = response.Version

// APIEnvelope wraps successful operation bodies.
type APIEnvelope = response.Envelope //nolint:revive // matches APIError

// APIErrorEnvelope wraps coded errors.
type APIErrorEnvelope = response.ErrorEnvelope //nolint:revive // matches APIError

// EnvelopeTransformer wraps every huma response body in the shared envelope
// so operation responses and router fallbacks look alike.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case APIEnvelope, APIErrorEnvelope:
		return body, nil
	case *APIError:
		return APIErrorEnvelope{
			Version: EnvelopeVersion,
			Code:    body.Code,
			Error:   body.Message,
			Details: body.Details,
		}, nil
	case error:
		return APIEnvelope{Version: EnvelopeVersion, Error: body.Error()}, nil
	default:
		return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
	}
}
