package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/domain"
	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

// RegisterTemplateRequest describes a custom document template.
type RegisterTemplateRequest struct {
	DocumentType domain.DocumentType `json:"documentType" validate:"required,field_name"`
	Fields       []domain.FieldDef   `json:"fields" validate:"required,min=1"`
}

// storedTemplate is the persisted form of a custom template.
type storedTemplate struct {
	DocumentType domain.DocumentType `json:"documentType"`
	Fields       []domain.FieldDef   `json:"fields"`
}

// TemplateService manages the document templates sessions are created
// from. Custom templates are persisted and restored by Load.
type TemplateService struct {
	registry  *domain.TemplateRegistry
	kv        store.KV
	validator *validation.Validator
	logger    *slog.Logger
}

// NewTemplateService creates a new template service.
func NewTemplateService(registry *domain.TemplateRegistry, kv store.KV, validator *validation.Validator, logger *slog.Logger) *TemplateService {
	return &TemplateService{registry: registry, kv: kv, validator: validator, logger: logger}
}

// Registry returns the registry sessions resolve document types against.
func (s *TemplateService) Registry() *domain.TemplateRegistry { return s.registry }

// Load registers every stored custom template and returns how many were
// restored. Unreadable or invalid entries are logged and skipped.
func (s *TemplateService) Load(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, store.PrefixTemplate)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, key := range keys {
		var doc storedTemplate
		if err := store.GetJSON(ctx, s.kv, key, &doc); err != nil {
			s.logger.Warn("skipping unreadable template", "key", key, "error", err)
			continue
		}
		t, err := domain.NewTemplate(doc.DocumentType, doc.Fields)
		if err == nil {
			err = s.registry.Register(t)
		}
		if err != nil {
			s.logger.Warn("skipping invalid template", "key", key, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Register validates and stores a custom template, replacing an earlier
// one of the same type. Built-in types cannot be replaced.
func (s *TemplateService) Register(ctx context.Context, req RegisterTemplateRequest) (*domain.Template, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, builtin := domain.BuiltinTemplate(req.DocumentType); builtin {
		return nil, domainerrors.Conflictf("template %s is built in", req.DocumentType)
	}
	t, err := domain.NewTemplate(req.DocumentType, req.Fields)
	if err != nil {
		return nil, err
	}

	doc := storedTemplate{DocumentType: t.Type, Fields: t.Fields()}
	if err := store.SetJSON(ctx, s.kv, store.TemplateKey(string(t.Type)), doc); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodePersistence, "failed to store template %s", t.Type)
	}
	if err := s.registry.Register(t); err != nil {
		return nil, err
	}

	s.logger.Info("custom template registered", "document_type", t.Type, "fields", t.Len())
	return t, nil
}

// Get returns the template for docType.
func (s *TemplateService) Get(docType string) (*domain.Template, error) {
	t, ok := s.registry.Lookup(domain.DocumentType(strings.TrimSpace(docType)))
	if !ok {
		return nil, domainerrors.NotFoundf("unknown document type %q", docType)
	}
	return t, nil
}

// List returns every registered template ordered by document type.
func (s *TemplateService) List() []*domain.Template {
	types := s.registry.Types()
	out := make([]*domain.Template, 0, len(types))
	for _, dt := range types {
		if t, ok := s.registry.Lookup(dt); ok {
			out = append(out, t)
		}
	}
	return out
}
