package mapping

import (
	"fmt"
	"math"

	"github.com/parishrecords/ocrmapper/internal/domain"
)

// Validation is the outcome of ValidateRecord.
type Validation struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidateRecord checks that every required field holds a non-blank value.
// One error is reported per missing field.
func ValidateRecord(r domain.Record) Validation {
	v := Validation{IsValid: true, Errors: []string{}}
	if r.Template == nil {
		return v
	}
	for _, d := range r.Template.Required() {
		if !r.Get(d.Name).Filled() {
			v.IsValid = false
			v.Errors = append(v.Errors, fmt.Sprintf("%s is required", d.Label))
		}
	}
	return v
}

// RecordCompleteness returns the rounded percentage of template fields with
// a non-blank value.
func RecordCompleteness(r domain.Record) int {
	if r.Template == nil || r.Template.Len() == 0 {
		return 0
	}
	filled := 0
	for _, f := range r.Template.Names() {
		if r.Get(f).Filled() {
			filled++
		}
	}
	return int(math.Round(float64(filled) * 100 / float64(r.Template.Len())))
}

// CompletedThreshold is the completeness a valid record needs to count as done.
const CompletedThreshold = 50

// Summary aggregates a session's progress.
type Summary struct {
	TotalRecords     int `json:"totalRecords"`
	ValidRecords     int `json:"validRecords"`
	CompletedRecords int `json:"completedRecords"`
	Progress         int `json:"progress"`
	UsedLines        int `json:"usedLines"`
	TotalLines       int `json:"totalLines"`
}

// Summarize reports the mean completeness and record counts of s. A record
// is completed when it is valid and at least CompletedThreshold percent full.
func Summarize(s State) Summary {
	sum := Summary{TotalRecords: len(s.records), UsedLines: len(s.used), TotalLines: s.lines.Len()}
	if len(s.records) == 0 {
		return sum
	}

	total := 0
	for _, r := range s.records {
		c := RecordCompleteness(r)
		total += c
		if ValidateRecord(r).IsValid {
			sum.ValidRecords++
			if c >= CompletedThreshold {
				sum.CompletedRecords++
			}
		}
	}
	sum.Progress = int(math.Round(float64(total) / float64(len(s.records))))
	return sum
}
