package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/domain"
	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/validation"
)

func confirmationRequest() RegisterTemplateRequest {
	return RegisterTemplateRequest{
		DocumentType: "confirmation",
		Fields: []domain.FieldDef{
			{Name: "candidate_name", Kind: domain.KindName, Required: true},
			{Name: "confirmation_date", Kind: domain.KindDate, Required: true},
			{Name: "sponsor_name", Kind: domain.KindName},
		},
	}
}

func newTemplateService(kv store.KV) *TemplateService {
	return NewTemplateService(domain.NewTemplateRegistry(), kv, validation.New(), logger.Discard())
}

func TestTemplateService_Register(t *testing.T) {
	ctx := context.Background()
	svc := newTemplateService(store.NewMemory())

	tmpl, err := svc.Register(ctx, confirmationRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentType("confirmation"), tmpl.Type)
	assert.Equal(t, 3, tmpl.Len())

	got, err := svc.Get("confirmation")
	require.NoError(t, err)
	assert.Same(t, tmpl, got)
	assert.Len(t, svc.List(), 4)

	_, err = svc.Get("census")
	requireCode(t, err, domainerrors.CodeNotFound)
}

func TestTemplateService_RegisterErrors(t *testing.T) {
	svc := newTemplateService(store.NewMemory())

	tests := []struct {
		name   string
		mutate func(*RegisterTemplateRequest)
		code   domainerrors.Code
	}{
		{"built-in type", func(r *RegisterTemplateRequest) { r.DocumentType = domain.Funeral }, domainerrors.CodeConflict},
		{"missing type", func(r *RegisterTemplateRequest) { r.DocumentType = "" }, domainerrors.CodeValidation},
		{"bad type", func(r *RegisterTemplateRequest) { r.DocumentType = "First Communion" }, domainerrors.CodeValidation},
		{"no fields", func(r *RegisterTemplateRequest) { r.Fields = []domain.FieldDef{} }, domainerrors.CodeValidation},
		{"reserved field", func(r *RegisterTemplateRequest) { r.Fields[0].Name = "id" }, domainerrors.CodeValidation},
		{"duplicate field", func(r *RegisterTemplateRequest) { r.Fields[1].Name = "candidate_name" }, domainerrors.CodeValidation},
		{"unknown kind", func(r *RegisterTemplateRequest) { r.Fields[0].Kind = "color" }, domainerrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := confirmationRequest()
			tt.mutate(&req)
			_, err := svc.Register(context.Background(), req)
			requireCode(t, err, tt.code)
		})
	}
	assert.Len(t, svc.List(), 3)
}

func TestTemplateService_LoadRestoresStoredTemplates(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	_, err := newTemplateService(kv).Register(ctx, confirmationRequest())
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, store.TemplateKey("broken"), []byte("not json")))
	require.NoError(t, kv.Set(ctx, store.TemplateKey("funeral"), []byte(`{"documentType":"funeral","fields":[{"name":"name"}]}`)))

	restarted := newTemplateService(kv)
	n, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tmpl, err := restarted.Get("confirmation")
	require.NoError(t, err)
	def, ok := tmpl.Def("candidate_name")
	require.True(t, ok)
	assert.Equal(t, "Candidate Name", def.Label)

	funeral, err := restarted.Get("funeral")
	require.NoError(t, err)
	assert.Equal(t, 6, funeral.Len(), "built-in templates are never replaced from storage")
}

func TestCreate_CustomTemplate(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	templates := newTemplateService(kv)
	_, err := templates.Register(ctx, confirmationRequest())
	require.NoError(t, err)

	sessions := NewSessionService(templates.Registry(), nil, nil, validation.New(), SessionOptions{}, logger.Discard())
	sess, err := sessions.Create(ctx, CreateSessionRequest{
		Org:          "st-nicholas",
		DocumentType: "confirmation",
		Lines:        []domain.OcrLine{{Index: 0, Text: "Anna Kowalska", Confidence: 0.9}},
	})
	require.NoError(t, err)

	r1 := sess.State.RecordIDs()[0]
	sess, err = sessions.MapLine(sess.ID, r1, "candidate_name", 0)
	require.NoError(t, err)
	rec, _ := sess.State.Record(r1)
	assert.Equal(t, "Anna Kowalska", rec.Get("candidate_name").Value)
}
