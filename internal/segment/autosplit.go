package segment

import (
	"github.com/parishrecords/ocrmapper/internal/mapping"
)

// Report summarizes an AutoSplit.
type Report struct {
	Segments int `json:"segments"`
	Applied  int `json:"applied"`
}

// AutoSplit replaces the records of s with one record per segment and fills
// each record's fields with the best candidate line not already taken.
// Segments are computed by the caller so they can be reviewed first.
func AutoSplit(m *mapping.Manager, s mapping.State, segments []RecordSegment) (mapping.State, Report) {
	next := s
	for _, rid := range s.RecordIDs() {
		next = m.RemoveRecord(next, rid)
	}

	n := max(len(segments), 1)
	for range n {
		next = m.AddRecord(next)
	}

	report := Report{Segments: n}
	ids := next.RecordIDs()
	tmpl := next.Template()
	for i, seg := range segments {
		ranked := SuggestFieldMappings(tmpl, next.Lines(), seg)
		for _, f := range tmpl.Names() {
			for _, line := range ranked[f] {
				if next.IsUsed(line) {
					continue
				}
				next = m.MapLineToField(next, ids[i], f, line)
				report.Applied++
				break
			}
		}
	}
	return next, report
}
