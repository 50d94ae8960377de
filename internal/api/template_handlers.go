package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/service"
)

func (s *Server) registerTemplateRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTemplates",
		Method:      http.MethodGet,
		Path:        "/api/v1/templates",
		Summary:     "List templates",
		Description: "Returns the built-in and custom document templates",
		Tags:        []string{"Templates"},
	}, s.handleListTemplates)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTemplate",
		Method:      http.MethodGet,
		Path:        "/api/v1/templates/{type}",
		Summary:     "Get template",
		Description: "Returns the fields of one document type",
		Tags:        []string{"Templates"},
	}, s.handleGetTemplate)

	huma.Register(s.api, huma.Operation{
		OperationID:   "registerTemplate",
		Method:        http.MethodPost,
		Path:          "/api/v1/templates",
		Summary:       "Register template",
		Description:   "Adds or replaces a custom document template. Built-in types cannot be replaced.",
		Tags:          []string{"Templates"},
		DefaultStatus: http.StatusCreated,
	}, s.handleRegisterTemplate)
}

// === DTOs ===

// TemplateFieldBody describes one field of a custom template.
type TemplateFieldBody struct {
	Name         string `json:"name" doc:"snake_case field name, never id"`
	Label        string `json:"label,omitempty" doc:"Display label, derived from the name when empty"`
	Kind         string `json:"kind,omitempty" doc:"date, name, age, clergy, location or text (default)"`
	Required     bool   `json:"required,omitempty" doc:"Whether a record needs this field to be valid"`
	Autocomplete bool   `json:"autocomplete,omitempty" doc:"Whether the field keeps autocomplete values"`
}

// RegisterTemplateRequest is the request body for registering a template.
type RegisterTemplateRequest struct {
	DocumentType string              `json:"documentType" doc:"snake_case document type"`
	Fields       []TemplateFieldBody `json:"fields" doc:"Fields in record order"`
}

// RegisterTemplateInput wraps the register template request for Huma.
type RegisterTemplateInput struct {
	Body RegisterTemplateRequest
}

// TemplateInput addresses a template.
type TemplateInput struct {
	Type string `path:"type" doc:"Document type"`
}

// TemplateResponse describes a document template.
type TemplateResponse struct {
	DocumentType string            `json:"documentType" doc:"Document type"`
	BuiltIn      bool              `json:"builtIn" doc:"Whether the template ships with the server"`
	Fields       []domain.FieldDef `json:"fields" doc:"Fields in record order"`
}

// TemplateOutput wraps a template response for Huma.
type TemplateOutput struct {
	Body TemplateResponse
}

// TemplateListOutput wraps the template list for Huma.
type TemplateListOutput struct {
	Body struct {
		Templates []TemplateResponse `json:"templates" doc:"Templates ordered by document type"`
	}
}

func toTemplateResponse(t *domain.Template) TemplateResponse {
	_, builtin := domain.BuiltinTemplate(t.Type)
	return TemplateResponse{DocumentType: string(t.Type), BuiltIn: builtin, Fields: t.Fields()}
}

// === Handlers ===

func (s *Server) handleListTemplates(_ context.Context, _ *struct{}) (*TemplateListOutput, error) {
	out := &TemplateListOutput{}
	out.Body.Templates = []TemplateResponse{}
	for _, t := range s.services.Templates.List() {
		out.Body.Templates = append(out.Body.Templates, toTemplateResponse(t))
	}
	return out, nil
}

func (s *Server) handleGetTemplate(_ context.Context, input *TemplateInput) (*TemplateOutput, error) {
	t, err := s.services.Templates.Get(input.Type)
	if err != nil {
		return nil, err
	}
	return &TemplateOutput{Body: toTemplateResponse(t)}, nil
}

func (s *Server) handleRegisterTemplate(ctx context.Context, input *RegisterTemplateInput) (*TemplateOutput, error) {
	defs := make([]domain.FieldDef, len(input.Body.Fields))
	for i, f := range input.Body.Fields {
		defs[i] = domain.FieldDef{
			Name:         domain.Field(f.Name),
			Label:        f.Label,
			Kind:         domain.FieldKind(f.Kind),
			Required:     f.Required,
			Autocomplete: f.Autocomplete,
		}
	}
	t, err := s.services.Templates.Register(ctx, service.RegisterTemplateRequest{
		DocumentType: domain.DocumentType(input.Body.DocumentType),
		Fields:       defs,
	})
	if err != nil {
		return nil, err
	}
	return &TemplateOutput{Body: toTemplateResponse(t)}, nil
}
