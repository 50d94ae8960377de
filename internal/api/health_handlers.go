package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parishrecords/ocrmapper/internal/store"
)

// healthProbeKey is read, never written, to check the store answers.
const healthProbeKey = "health:probe"

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"store":    s.checkStore(ctx),
		"search":   s.checkSearchIndex(),
		"sessions": s.checkSessions(),
	}

	overall := "healthy"
	for _, c := range components {
		switch {
		case c.Status == "unhealthy":
			overall = "unhealthy"
		case c.Status == "degraded" && overall == "healthy":
			overall = "degraded"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkStore verifies the key-value store answers reads.
func (s *Server) checkStore(ctx context.Context) ComponentHealth {
	if s.services.KV == nil {
		return ComponentHealth{Status: "degraded", Message: "store not configured"}
	}

	start := time.Now()
	_, err := s.services.KV.Get(ctx, healthProbeKey)
	latency := time.Since(start)

	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "store read failed",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

// checkSearchIndex verifies the history index is reachable. History search
// is optional, so a missing index only degrades the service.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Index == nil {
		return ComponentHealth{Status: "degraded", Message: "history search disabled"}
	}

	start := time.Now()
	count, err := s.services.Index.DocumentCount()
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "search index unreachable",
		}
	}
	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
		Message: strconv.FormatUint(count, 10) + " indexed mappings",
	}
}

func (s *Server) checkSessions() ComponentHealth {
	if s.services.Sessions == nil {
		return ComponentHealth{Status: "unhealthy", Message: "session service not configured"}
	}
	switch n := s.services.Sessions.Count(); n {
	case 1:
		return ComponentHealth{Status: "healthy", Message: "1 open session"}
	default:
		return ComponentHealth{Status: "healthy", Message: strconv.Itoa(n) + " open sessions"}
	}
}
