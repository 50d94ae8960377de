package domain

import (
	"sort"
	"strings"
	"time"
)

// HistoryEntry is one accepted or edited field mapping, kept for learning.
type HistoryEntry struct {
	ID                string    `json:"id"`
	OCRText           string    `json:"ocrText"`
	FieldName         Field     `json:"fieldName"`
	Confidence        float64   `json:"confidence"`
	Timestamp         time.Time `json:"timestamp"`
	OrgID             string    `json:"organizationId"`
	WasManuallyEdited bool      `json:"wasManuallyEdited"`
	CorrectedText     string    `json:"correctedText,omitempty"`
}

// PatternKind selects how a Pattern is evaluated.
type PatternKind string

// Pattern kinds.
const (
	PatternRegex        PatternKind = "regex"
	PatternDateShape    PatternKind = "date_shape"
	PatternAgeShape     PatternKind = "age_shape"
	PatternNameShape    PatternKind = "name_shape"
	PatternClergyPrefix PatternKind = "clergy_prefix"
)

// Date shape styles, the "style" param of a date_shape pattern.
const (
	DateStyleSlash     = "slash"
	DateStyleDash      = "dash"
	DateStyleMonthName = "month_name"
)

// Pattern is a serializable text predicate. A regex pattern carries
// "source" and optional "flags" ("i" for case-insensitive); the shape kinds
// take their parameters from Params.
type Pattern struct {
	Kind   PatternKind       `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// RegexPattern builds a regex pattern descriptor.
func RegexPattern(source, flags string) Pattern {
	p := Pattern{Kind: PatternRegex, Params: map[string]string{"source": source}}
	if flags != "" {
		p.Params["flags"] = flags
	}
	return p
}

// ShapePattern builds a shape pattern descriptor with optional key/value params.
func ShapePattern(kind PatternKind, kv ...string) Pattern {
	p := Pattern{Kind: kind}
	if len(kv) > 1 {
		p.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			p.Params[kv[i]] = kv[i+1]
		}
	}
	return p
}

// Key is the canonical identity of the pattern: kind plus sorted params.
func (p Pattern) Key() string {
	var b strings.Builder
	b.WriteString(string(p.Kind))
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Params[k])
	}
	return b.String()
}

// Rule associates a pattern with a field and tracks how well it performs.
type Rule struct {
	ID          string    `json:"id"`
	Pattern     Pattern   `json:"pattern"`
	FieldName   Field     `json:"fieldName"`
	Confidence  float64   `json:"confidence"`
	UsageCount  int       `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

// Same reports whether r and o describe the same pattern for the same field.
func (r Rule) Same(o Rule) bool {
	return r.FieldName == o.FieldName && r.Pattern.Key() == o.Pattern.Key()
}
