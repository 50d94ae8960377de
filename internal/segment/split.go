package segment

import (
	"regexp"
	"strings"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

var (
	reSeparator = regexp.MustCompile(`^\s*([-_=*~.•·]\s*){3,}$`)
	reMarker    = regexp.MustCompile(`(?i)^\s*(no\.?|nr\.?|#|№|record|entry)\s*(\d+)\s*[.:)\-]?\s*`)
)

// DefaultMinLines is the smallest group a content cue may close.
const DefaultMinLines = 3

// RecordSegment is the set of line indices believed to form one record.
type RecordSegment struct {
	Lines []int `json:"lines"`
}

// Splitter partitions line stores for one template.
type Splitter struct {
	template *domain.Template
	minLines int
}

// NewSplitter creates a splitter. minLines <= 0 uses DefaultMinLines.
func NewSplitter(t *domain.Template, minLines int) *Splitter {
	if minLines <= 0 {
		minLines = DefaultMinLines
	}
	return &Splitter{template: t, minLines: minLines}
}

type boundary int

const (
	noBoundary boundary = iota
	skipLine            // blank, separator or bare record number: ends a segment, not part of one
	startLine           // record number followed by content: starts a segment
)

func classifyBoundary(text string) boundary {
	if strings.TrimSpace(text) == "" || reSeparator.MatchString(text) {
		return skipLine
	}
	if loc := reMarker.FindStringIndex(text); loc != nil {
		if strings.TrimSpace(text[loc[1]:]) == "" {
			return skipLine
		}
		return startLine
	}
	return noBoundary
}

// SplitIntoRecords groups lines into record segments. Marker lines are not
// part of any segment. The result is never empty: input without any
// content yields one segment holding every line.
func (s *Splitter) SplitIntoRecords(lines domain.LineStore) []RecordSegment {
	var (
		hard [][]int
		cur  []int
	)
	flush := func() {
		if len(cur) > 0 {
			hard = append(hard, cur)
			cur = nil
		}
	}

	shapes := make([]Shape, lines.Len())
	for _, l := range lines.All() {
		switch classifyBoundary(l.Text) {
		case skipLine:
			flush()
			continue
		case startLine:
			flush()
			shapes[l.Index] = Classify(reMarker.ReplaceAllString(l.Text, ""))
		default:
			shapes[l.Index] = Classify(l.Text)
		}
		cur = append(cur, l.Index)
	}
	flush()

	var out []RecordSegment
	for _, group := range hard {
		for _, part := range s.splitByCycle(group, shapes) {
			out = append(out, RecordSegment{Lines: part})
		}
	}

	if len(out) == 0 {
		all := make([]int, lines.Len())
		for i := range all {
			all[i] = i
		}
		return []RecordSegment{{Lines: all}}
	}
	return out
}

// splitByCycle cuts group before a line that repeats the group's opening
// kind, but only once the group is complete: at least minLines long, covering
// the kind of every required field, and already holding as many lines of the
// opening kind as the template has fields of that kind.
func (s *Splitter) splitByCycle(group []int, shapes []Shape) [][]int {
	if s.template == nil {
		return [][]int{group}
	}

	var (
		out      [][]int
		cur      []int
		first    domain.FieldKind
		seen     map[domain.FieldKind]int
		capacity = kindCapacity(s.template)
		required = requiredKinds(s.template)
	)
	reset := func() {
		cur = nil
		first = ""
		seen = map[domain.FieldKind]int{}
	}
	reset()

	for _, idx := range group {
		kind, score := shapes[idx].Best()
		classified := kind != domain.KindText && score >= minShapeScore

		if classified && first != "" && kind == first &&
			len(cur) >= s.minLines && seen[first] >= capacity[first] && covers(seen, required) {
			out = append(out, cur)
			reset()
		}

		cur = append(cur, idx)
		if classified {
			if first == "" {
				first = kind
			}
			seen[kind]++
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func kindCapacity(t *domain.Template) map[domain.FieldKind]int {
	out := map[domain.FieldKind]int{}
	for _, d := range t.Fields() {
		out[d.Kind]++
	}
	return out
}

func requiredKinds(t *domain.Template) []domain.FieldKind {
	var out []domain.FieldKind
	seen := map[domain.FieldKind]bool{}
	for _, d := range t.Required() {
		if d.Kind != domain.KindText && !seen[d.Kind] {
			seen[d.Kind] = true
			out = append(out, d.Kind)
		}
	}
	return out
}

func covers(seen map[domain.FieldKind]int, kinds []domain.FieldKind) bool {
	for _, k := range kinds {
		if seen[k] == 0 {
			return false
		}
	}
	return true
}
