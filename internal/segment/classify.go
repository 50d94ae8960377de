// Package segment splits a page of OCR lines into per-record segments and
// proposes which lines fill which fields.
//
// Boundaries come from explicit markers first: blank lines, separator rules
// and record numbers. Without markers a segment is only cut when the current
// group already covers every required field kind and the next line repeats
// the kind the group started with. Anything less certain stays together;
// an over-long record is easy to split by hand, a wrong merge is not.
package segment

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/normalize"
)

var (
	reNumericDate = regexp.MustCompile(`\b\d{1,2}[/.\-]\d{1,2}[/.\-](\d{4}|\d{2})\b`)
	reISODate     = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`)
	reMonthDate   = regexp.MustCompile(`(?i)\b(\d{1,2}\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2}(st|nd|rd|th)?,?\s+)?\d{4}\b`)
	reYear        = regexp.MustCompile(`^(1[6-9]|20)\d{2}$`)

	reBareAge  = regexp.MustCompile(`^\d{1,3}$`)
	reAgeWords = regexp.MustCompile(`(?i)^(age[d]?[:\s]*)?\d{1,3}\s*(y(ea)?rs?\.?|y\.?o\.?)(\s+old)?$`)
	reInfant   = regexp.MustCompile(`(?i)\b\d{1,2}\s*(months?|mos?\.?|weeks?|days?)\b`)

	reClergy = regexp.MustCompile(`(?i)^(fr\.?|father|rev\.?|reverend|v\.\s*rev\.?|very\s+rev\.?|archpriest|protopresbyter|protodeacon|deacon|hieromonk|archimandrite|bishop|metropolitan|igumen)\s+\S`)

	reLocation = regexp.MustCompile(`\b(cemetery|cem|church|cathedral|chapel|monastery|parish|memorial|gardens?|mausoleum|columbarium|crematory|crematorium|lot|section|plot|grave)\b`)

	reNameWord = regexp.MustCompile(`^[\p{Lu}][\p{L}'’\-.]*$`)
)

// Shape scores how well one line fits each field kind, each in [0,1].
type Shape struct {
	scores map[domain.FieldKind]float64
}

// Score returns the fit of the line to kind k.
func (s Shape) Score(k domain.FieldKind) float64 {
	return s.scores[k]
}

// Best returns the kind the line fits best. Ties resolve in the order
// clergy, date, age, location, name, text.
func (s Shape) Best() (domain.FieldKind, float64) {
	best, score := domain.KindText, s.scores[domain.KindText]
	for _, k := range kindOrder {
		if s.scores[k] > score {
			best, score = k, s.scores[k]
		}
	}
	return best, score
}

var kindOrder = []domain.FieldKind{
	domain.KindClergy, domain.KindDate, domain.KindAge,
	domain.KindLocation, domain.KindName, domain.KindText,
}

// Classify scores text against every field kind.
func Classify(text string) Shape {
	s := Shape{scores: map[domain.FieldKind]float64{}}
	t := normalize.Text(text)
	if t == "" {
		return s
	}
	s.scores[domain.KindText] = 0.1

	digits := fixDigits(t)
	s.scores[domain.KindDate] = dateScore(digits)
	s.scores[domain.KindAge] = ageScore(digits)

	if reClergy.MatchString(t) {
		s.scores[domain.KindClergy] = 1
	}
	if reLocation.MatchString(strings.ToLower(normalize.Key(t))) {
		s.scores[domain.KindLocation] = 0.9
	}

	name := nameScore(t)
	switch {
	case s.scores[domain.KindClergy] > 0:
		name = min(name, 0.4)
	case s.scores[domain.KindLocation] > 0:
		name = 0
	}
	s.scores[domain.KindName] = name
	return s
}

func dateScore(t string) float64 {
	switch {
	case reNumericDate.MatchString(t), reISODate.MatchString(t):
		return 1
	case reMonthDate.MatchString(t):
		return 0.95
	case reYear.MatchString(t):
		return 0.5
	}
	return 0
}

func ageScore(t string) float64 {
	switch {
	case reBareAge.MatchString(t):
		n, _ := strconv.Atoi(t)
		if n <= 120 {
			return 0.9
		}
	case reAgeWords.MatchString(t):
		return 0.85
	case reInfant.MatchString(t) && !reNumericDate.MatchString(t):
		return 0.6
	}
	return 0
}

// nameScore favors two to five capitalized words without digits.
func nameScore(t string) float64 {
	if strings.IndexFunc(t, unicode.IsDigit) >= 0 {
		return 0
	}
	words := strings.Fields(strings.Trim(t, ",;:"))
	if len(words) == 0 || len(words) > 5 {
		return 0
	}
	for _, w := range words {
		if !reNameWord.MatchString(strings.Trim(w, ",")) {
			return 0
		}
	}
	if len(words) == 1 {
		return 0.3
	}
	return 0.8
}

// fixDigits repairs letters OCR commonly confuses with digits inside tokens
// that are already mostly numeric, e.g. "O4/l2/2024".
func fixDigits(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		n := 0
		for _, r := range w {
			if r >= '0' && r <= '9' {
				n++
			}
		}
		if n < 2 {
			continue
		}
		words[i] = strings.Map(func(r rune) rune {
			switch r {
			case 'O', 'o':
				return '0'
			case 'l', 'I', '|':
				return '1'
			}
			return r
		}, w)
	}
	return strings.Join(words, " ")
}
