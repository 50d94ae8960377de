package segment

import (
	"sort"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

// minShapeScore is the lowest kind score that makes a line a candidate.
const minShapeScore = 0.5

// SuggestFieldMappings ranks candidate lines of seg for every field of t,
// best first. A line qualifies for a field when it scores at least
// minShapeScore for the field's kind; text fields take lines that fit no
// other kind. The k-th field of a kind prefers the k-th line whose best kind
// it is, so the first date in a row goes to the first date field. Remaining
// candidates follow by score, then by position.
func SuggestFieldMappings(t *domain.Template, lines domain.LineStore, seg RecordSegment) map[domain.Field][]int {
	type scored struct {
		index int
		shape Shape
		best  domain.FieldKind
	}

	candidates := make([]scored, 0, len(seg.Lines))
	byKind := map[domain.FieldKind][]int{}
	for _, idx := range seg.Lines {
		l, ok := lines.At(idx)
		if !ok {
			continue
		}
		text := l.Text
		if classifyBoundary(text) == startLine {
			text = reMarker.ReplaceAllString(text, "")
		}
		sh := Classify(text)
		best, score := sh.Best()
		if best != domain.KindText && score < minShapeScore {
			best = domain.KindText
		}
		candidates = append(candidates, scored{index: idx, shape: sh, best: best})
		byKind[best] = append(byKind[best], idx)
	}

	out := map[domain.Field][]int{}
	ordinal := map[domain.FieldKind]int{}
	for _, def := range t.Fields() {
		k := def.Kind
		rank := ordinal[k]
		ordinal[k]++

		preferred := -1
		if rank < len(byKind[k]) {
			preferred = byKind[k][rank]
		}

		var pool []scored
		for _, c := range candidates {
			if c.index == preferred {
				continue
			}
			if k == domain.KindText {
				if c.best == domain.KindText && c.shape.Score(domain.KindText) > 0 {
					pool = append(pool, c)
				}
				continue
			}
			if c.shape.Score(k) >= minShapeScore {
				pool = append(pool, c)
			}
		}
		sort.SliceStable(pool, func(i, j int) bool {
			si, sj := pool[i].shape.Score(k), pool[j].shape.Score(k)
			if si != sj {
				return si > sj
			}
			return pool[i].index < pool[j].index
		})

		var ranked []int
		if preferred >= 0 {
			ranked = append(ranked, preferred)
		}
		for _, c := range pool {
			ranked = append(ranked, c.index)
		}
		out[def.Name] = ranked
	}
	return out
}
