package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
)

// Field names one field of a record. Valid fields are only obtained from a
// Template, which never contains "id".
type Field string

// FieldKind is the expected shape of a field's value.
type FieldKind string

// Field kinds.
const (
	KindDate     FieldKind = "date"
	KindName     FieldKind = "name"
	KindAge      FieldKind = "age"
	KindClergy   FieldKind = "clergy"
	KindLocation FieldKind = "location"
	KindText     FieldKind = "text"
)

// DocumentType identifies a record template.
type DocumentType string

// Built-in document types.
const (
	Funeral  DocumentType = "funeral"
	Baptism  DocumentType = "baptism"
	Marriage DocumentType = "marriage"
)

// FieldDef describes one field of a template.
type FieldDef struct {
	Name         Field     `json:"name"`
	Label        string    `json:"label"`
	Kind         FieldKind `json:"kind"`
	Required     bool      `json:"required"`
	Autocomplete bool      `json:"autocomplete"`
}

// Template is the fixed, ordered field schema of one document type.
// Templates are immutable once built and safe to share.
type Template struct {
	Type   DocumentType
	fields []FieldDef
	index  map[Field]int
}

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// reservedField can never be a template field; records carry their id separately.
const reservedField = "id"

var validKinds = map[FieldKind]bool{
	KindDate: true, KindName: true, KindAge: true,
	KindClergy: true, KindLocation: true, KindText: true,
}

// NewTemplate validates defs and builds a template. Field names must be
// unique snake_case and not "id"; an empty kind defaults to text.
func NewTemplate(docType DocumentType, defs []FieldDef) (*Template, error) {
	if strings.TrimSpace(string(docType)) == "" {
		return nil, domainerrors.Validation("template type is required")
	}
	if len(defs) == 0 {
		return nil, domainerrors.Validationf("template %s has no fields", docType)
	}

	t := &Template{Type: docType, fields: make([]FieldDef, len(defs)), index: make(map[Field]int, len(defs))}
	for i, d := range defs {
		name := string(d.Name)
		if name == reservedField || !fieldNamePattern.MatchString(name) {
			return nil, domainerrors.Validationf("invalid field name %q", name)
		}
		if _, dup := t.index[d.Name]; dup {
			return nil, domainerrors.Validationf("duplicate field %q", name)
		}
		if d.Kind == "" {
			d.Kind = KindText
		}
		if !validKinds[d.Kind] {
			return nil, domainerrors.Validationf("field %q has unknown kind %q", name, d.Kind)
		}
		if d.Label == "" {
			d.Label = labelFor(d.Name)
		}
		t.fields[i] = d
		t.index[d.Name] = i
	}
	return t, nil
}

func mustTemplate(docType DocumentType, defs []FieldDef) *Template {
	t, err := NewTemplate(docType, defs)
	if err != nil {
		panic(fmt.Sprintf("built-in template %s: %v", docType, err))
	}
	return t
}

// Fields returns a copy of the field definitions in template order.
func (t *Template) Fields() []FieldDef {
	out := make([]FieldDef, len(t.fields))
	copy(out, t.fields)
	return out
}

// Names returns the field names in template order.
func (t *Template) Names() []Field {
	out := make([]Field, len(t.fields))
	for i, d := range t.fields {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of fields.
func (t *Template) Len() int { return len(t.fields) }

// Has reports whether f belongs to the template.
func (t *Template) Has(f Field) bool {
	_, ok := t.index[f]
	return ok
}

// Def returns the definition of f.
func (t *Template) Def(f Field) (FieldDef, bool) {
	i, ok := t.index[f]
	if !ok {
		return FieldDef{}, false
	}
	return t.fields[i], true
}

// ParseField resolves a raw name to a field of this template.
func (t *Template) ParseField(name string) (Field, bool) {
	f := Field(name)
	return f, t.Has(f)
}

// Required returns the required fields in template order.
func (t *Template) Required() []FieldDef {
	var out []FieldDef
	for _, d := range t.fields {
		if d.Required {
			out = append(out, d)
		}
	}
	return out
}

// OfKind returns the fields of kind k in template order.
func (t *Template) OfKind(k FieldKind) []Field {
	var out []Field
	for _, d := range t.fields {
		if d.Kind == k {
			out = append(out, d.Name)
		}
	}
	return out
}

func labelFor(f Field) string {
	parts := strings.Split(string(f), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// The funeral template is the six-column death-log row.
var funeralTemplate = mustTemplate(Funeral, []FieldDef{
	{Name: "death_date", Label: "Date of Death", Kind: KindDate, Required: true},
	{Name: "burial_date", Label: "Date of Burial", Kind: KindDate},
	{Name: "name", Label: "Name", Kind: KindName, Required: true},
	{Name: "age", Label: "Age", Kind: KindAge},
	{Name: "priest_officiated", Label: "Priest Officiated", Kind: KindClergy, Autocomplete: true},
	{Name: "burial_location", Label: "Burial Location", Kind: KindLocation, Autocomplete: true},
})

var baptismTemplate = mustTemplate(Baptism, []FieldDef{
	{Name: "child_name", Label: "Child Name", Kind: KindName, Required: true},
	{Name: "baptism_date", Label: "Baptism Date", Kind: KindDate, Required: true},
	{Name: "birth_date", Label: "Birth Date", Kind: KindDate},
	{Name: "father_name", Label: "Father Name", Kind: KindName},
	{Name: "mother_name", Label: "Mother Name", Kind: KindName},
	{Name: "godfather_name", Label: "Godfather Name", Kind: KindName},
	{Name: "godmother_name", Label: "Godmother Name", Kind: KindName},
	{Name: "priest_name", Label: "Priest", Kind: KindClergy, Autocomplete: true},
	{Name: "church_location", Label: "Church Location", Kind: KindLocation, Autocomplete: true},
	{Name: "notes", Label: "Notes", Kind: KindText},
})

var marriageTemplate = mustTemplate(Marriage, []FieldDef{
	{Name: "groom_name", Label: "Groom Name", Kind: KindName, Required: true},
	{Name: "bride_name", Label: "Bride Name", Kind: KindName, Required: true},
	{Name: "marriage_date", Label: "Marriage Date", Kind: KindDate, Required: true},
	{Name: "groom_age", Label: "Groom Age", Kind: KindAge},
	{Name: "bride_age", Label: "Bride Age", Kind: KindAge},
	{Name: "witness_1", Label: "Witness 1", Kind: KindName},
	{Name: "witness_2", Label: "Witness 2", Kind: KindName},
	{Name: "priest_name", Label: "Priest", Kind: KindClergy, Autocomplete: true},
	{Name: "church_location", Label: "Church Location", Kind: KindLocation, Autocomplete: true},
	{Name: "notes", Label: "Notes", Kind: KindText},
})

// TemplateRegistry resolves document types to templates. It starts with the
// built-in funeral, baptism and marriage templates.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[DocumentType]*Template
}

// NewTemplateRegistry returns a registry holding the built-in templates.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: map[DocumentType]*Template{
		Funeral:  funeralTemplate,
		Baptism:  baptismTemplate,
		Marriage: marriageTemplate,
	}}
}

// Lookup returns the template for docType.
func (r *TemplateRegistry) Lookup(docType DocumentType) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[docType]
	return t, ok
}

// Register adds or replaces a custom template. Built-in types cannot be replaced.
func (r *TemplateRegistry) Register(t *Template) error {
	if t == nil {
		return domainerrors.Validation("template is required")
	}
	switch t.Type {
	case Funeral, Baptism, Marriage:
		return domainerrors.Conflictf("template %s is built in", t.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Type] = t
	return nil
}

// Types lists registered document types, sorted.
func (r *TemplateRegistry) Types() []DocumentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DocumentType, 0, len(r.templates))
	for k := range r.templates {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BuiltinTemplate returns one of the three built-in templates.
func BuiltinTemplate(docType DocumentType) (*Template, bool) {
	switch docType {
	case Funeral:
		return funeralTemplate, true
	case Baptism:
		return baptismTemplate, true
	case Marriage:
		return marriageTemplate, true
	}
	return nil, false
}
