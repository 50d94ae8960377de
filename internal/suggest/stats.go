package suggest

import "github.com/parishrecords/ocrmapper/internal/domain"

// Stats aggregates an organization's mapping history.
type Stats struct {
	TotalMappings  int                  `json:"totalMappings"`
	ManualEdits    int                  `json:"manualEdits"`
	EditRate       float64              `json:"editRate"` // percent of mappings edited by hand
	FieldFrequency map[domain.Field]int `json:"fieldFrequency"`
	AvgConfidence  float64              `json:"avgConfidence"`
}

// Stats returns aggregates over the current history.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return computeStats(e.history)
}

func computeStats(history []domain.HistoryEntry) Stats {
	s := Stats{
		TotalMappings:  len(history),
		FieldFrequency: map[domain.Field]int{},
	}
	if len(history) == 0 {
		return s
	}
	var sum float64
	for _, h := range history {
		if h.WasManuallyEdited {
			s.ManualEdits++
		}
		s.FieldFrequency[h.FieldName]++
		sum += h.Confidence
	}
	s.EditRate = float64(s.ManualEdits) / float64(s.TotalMappings) * 100
	s.AvgConfidence = sum / float64(s.TotalMappings)
	return s
}
