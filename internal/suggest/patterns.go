package suggest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/normalize"
)

// Predicate reports whether a piece of OCR text matches a pattern.
type Predicate func(text string) bool

var (
	reSlashDate = regexp.MustCompile(`\d{1,2}/\d{1,2}/?\d{0,4}`)
	reDashDate  = regexp.MustCompile(`\d{1,2}-\d{1,2}-?\d{0,4}`)
	reMonthDate = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s*\d{4}`)
	reAge       = regexp.MustCompile(`^\d{1,3}$`)
	reName      = regexp.MustCompile(`^\p{Lu}\p{Ll}+(\s+\p{Lu}\p{Ll}+)+$`)
	reClergy    = regexp.MustCompile(`^(Fr\.|Father|Rev\.|Reverend)\s+`)
)

var dateStyles = map[string]*regexp.Regexp{
	domain.DateStyleSlash:     reSlashDate,
	domain.DateStyleDash:      reDashDate,
	domain.DateStyleMonthName: reMonthDate,
}

// Compile turns a pattern descriptor into an executable predicate. Input
// text is normalized before matching.
func Compile(p domain.Pattern) (Predicate, error) {
	var re *regexp.Regexp
	switch p.Kind {
	case domain.PatternRegex:
		src := p.Params["source"]
		if src == "" {
			return nil, fmt.Errorf("regex pattern without source")
		}
		prefix, err := regexFlags(p.Params["flags"])
		if err != nil {
			return nil, err
		}
		re, err = regexp.Compile(prefix + src)
		if err != nil {
			return nil, fmt.Errorf("compile regex pattern: %w", err)
		}
	case domain.PatternDateShape:
		var ok bool
		re, ok = dateStyles[p.Params["style"]]
		if !ok {
			return nil, fmt.Errorf("unknown date style %q", p.Params["style"])
		}
	case domain.PatternAgeShape:
		re = reAge
	case domain.PatternNameShape:
		re = reName
	case domain.PatternClergyPrefix:
		re = reClergy
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", p.Kind)
	}
	return func(text string) bool {
		return re.MatchString(normalize.Text(text))
	}, nil
}

// regexFlags maps stored regex flags to an inline RE2 flag group. Flags
// that only affect iteration in other dialects (g, u, y) are ignored.
func regexFlags(flags string) (string, error) {
	var inline []byte
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline = append(inline, byte(f))
		case 'g', 'u', 'y':
		default:
			return "", fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	if len(inline) == 0 {
		return "", nil
	}
	return "(?" + string(inline) + ")", nil
}

// fieldHas reports whether the snake_case field name contains word as one
// of its parts. "marriage_date" has "date" but not "age".
func fieldHas(f domain.Field, word string) bool {
	for part := range strings.SplitSeq(string(f), "_") {
		if part == word {
			return true
		}
	}
	return false
}

// derivePatterns returns the shape patterns a confirmed mapping of text to
// field is evidence for.
func derivePatterns(text string, f domain.Field) []domain.Pattern {
	text = normalize.Text(text)
	var out []domain.Pattern
	if fieldHas(f, "date") {
		for _, style := range []string{domain.DateStyleSlash, domain.DateStyleDash, domain.DateStyleMonthName} {
			if dateStyles[style].MatchString(text) {
				out = append(out, domain.ShapePattern(domain.PatternDateShape, "style", style))
			}
		}
	}
	if fieldHas(f, "age") && reAge.MatchString(text) {
		out = append(out, domain.ShapePattern(domain.PatternAgeShape))
	}
	if fieldHas(f, "name") && reName.MatchString(text) {
		out = append(out, domain.ShapePattern(domain.PatternNameShape))
	}
	if fieldHas(f, "priest") && reClergy.MatchString(text) {
		out = append(out, domain.ShapePattern(domain.PatternClergyPrefix))
	}
	return out
}

// DefaultRuleIDPrefix marks the built-in rules.
const DefaultRuleIDPrefix = "default-"

var idSafe = strings.NewReplacer("|", ".", "=", ".")

type seed struct {
	pattern    domain.Pattern
	fields     []domain.Field
	confidence float64
}

var defaultSeeds = []seed{
	{
		pattern:    domain.ShapePattern(domain.PatternDateShape, "style", domain.DateStyleSlash),
		fields:     []domain.Field{"death_date", "burial_date", "baptism_date", "birth_date", "marriage_date"},
		confidence: 0.8,
	},
	{
		pattern:    domain.ShapePattern(domain.PatternDateShape, "style", domain.DateStyleMonthName),
		fields:     []domain.Field{"death_date", "burial_date", "baptism_date", "birth_date", "marriage_date"},
		confidence: 0.75,
	},
	{
		pattern:    domain.ShapePattern(domain.PatternClergyPrefix),
		fields:     []domain.Field{"priest_officiated", "priest_name"},
		confidence: 0.9,
	},
	{
		pattern:    domain.ShapePattern(domain.PatternAgeShape),
		fields:     []domain.Field{"age", "groom_age", "bride_age"},
		confidence: 0.7,
	},
	{
		pattern: domain.ShapePattern(domain.PatternNameShape),
		fields: []domain.Field{
			"name", "child_name", "father_name", "mother_name",
			"godfather_name", "godmother_name", "groom_name", "bride_name",
		},
		confidence: 0.6,
	},
}

// DefaultRules returns the built-in rule set used to seed an organization
// with no stored rules.
func DefaultRules(now time.Time) []domain.Rule {
	var rules []domain.Rule
	for _, s := range defaultSeeds {
		for _, f := range s.fields {
			rules = append(rules, domain.Rule{
				ID:          DefaultRuleIDPrefix + idSafe.Replace(s.pattern.Key()) + "-" + string(f),
				Pattern:     s.pattern,
				FieldName:   f,
				Confidence:  s.confidence,
				UsageCount:  1,
				SuccessRate: s.confidence,
				Created:     now,
				Updated:     now,
			})
		}
	}
	return rules
}
