package mapping

import (
	"fmt"

	domainerrors "github.com/parishrecords/ocrmapper/internal/errors"
)

// CheckInvariants verifies that the used set matches the OCR-backed fields
// exactly, that no line backs two fields, that every source line exists and
// that record ids are unique.
func CheckInvariants(s State) error {
	owners := map[int]string{}
	ids := map[string]bool{}

	for _, r := range s.records {
		if ids[r.ID] {
			return domainerrors.Internal(fmt.Sprintf("duplicate record id %s", r.ID))
		}
		ids[r.ID] = true

		for f, m := range r.Fields {
			if m == nil || !m.IsOCR() {
				continue
			}
			where := fmt.Sprintf("%s.%s", r.ID, f)
			if prev, taken := owners[m.SourceLine]; taken {
				return domainerrors.Internal(fmt.Sprintf("line %d backs both %s and %s", m.SourceLine, prev, where))
			}
			if _, ok := s.lines.At(m.SourceLine); !ok {
				return domainerrors.Internal(fmt.Sprintf("%s references missing line %d", where, m.SourceLine))
			}
			if !s.IsUsed(m.SourceLine) {
				return domainerrors.Internal(fmt.Sprintf("line %d backs %s but is not marked used", m.SourceLine, where))
			}
			owners[m.SourceLine] = where
		}
	}

	for line := range s.used {
		if _, ok := owners[line]; !ok {
			return domainerrors.Internal(fmt.Sprintf("line %d is marked used but backs no field", line))
		}
	}
	return nil
}
