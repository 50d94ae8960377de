package segment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/mapping"
)

func funeral(t *testing.T) *domain.Template {
	t.Helper()
	tmpl, ok := domain.BuiltinTemplate(domain.Funeral)
	require.True(t, ok)
	return tmpl
}

// deathLog is two complete rows of a funeral register without separators.
func deathLog() domain.LineStore {
	return domain.LinesFromText(
		"12/01/1950", "12/04/1950", "John Smith", "82", "Fr. Nicholas Petrov", "Holy Cross Cemetery",
		"03/15/1951", "03/18/1951", "Mary Jones", "74", "Rev. Peter Kowalski", "St. Mary Cemetery",
	)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want domain.FieldKind
	}{
		{"04/12/2024", domain.KindDate},
		{"O4/l2/2024", domain.KindDate},
		{"1950-03-04", domain.KindDate},
		{"March 3, 1950", domain.KindDate},
		{"3 March 1950", domain.KindDate},
		{"1950", domain.KindDate},
		{"82", domain.KindAge},
		{"82 years", domain.KindAge},
		{"Aged 7 yrs", domain.KindAge},
		{"6 months", domain.KindAge},
		{"Fr. John Kowalski", domain.KindClergy},
		{"Father Nicholas", domain.KindClergy},
		{"V. Rev. Alexander Schmemann", domain.KindClergy},
		{"Holy Cross Cemetery", domain.KindLocation},
		{"Section 12, Lot 4", domain.KindLocation},
		{"John Smith", domain.KindName},
		{"JOHN SMITH", domain.KindName},
		{"Ιωάννης Παπαδόπουλος", domain.KindName},
		{"Smith", domain.KindName},
		{"illegible smudge", domain.KindText},
		{"", domain.KindText},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _ := Classify(tt.text).Best()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ClergyIsNotAName(t *testing.T) {
	sh := Classify("Fr. John Kowalski")
	assert.Less(t, sh.Score(domain.KindName), minShapeScore)
	assert.Equal(t, 0.0, Classify("999").Score(domain.KindAge))
}

func TestSplitIntoRecords(t *testing.T) {
	tests := []struct {
		name  string
		lines domain.LineStore
		want  [][]int
	}{
		{
			name:  "single record",
			lines: domain.LinesFromText("John Smith", "04/12/2024"),
			want:  [][]int{{0, 1}},
		},
		{
			name:  "blank line boundary",
			lines: domain.LinesFromText("John Smith", "04/12/2024", "  ", "Mary Jones", "05/01/2024"),
			want:  [][]int{{0, 1}, {3, 4}},
		},
		{
			name:  "separator and bare record numbers",
			lines: domain.LinesFromText("No. 1", "John Smith", "04/12/2024", "-----", "#2", "Mary Jones", "05/01/2024"),
			want:  [][]int{{1, 2}, {5, 6}},
		},
		{
			name:  "record number with content starts a segment",
			lines: domain.LinesFromText("No. 1 John Smith", "04/12/2024", "No. 2 Mary Jones", "05/01/2024"),
			want:  [][]int{{0, 1}, {2, 3}},
		},
		{
			name:  "repeating complete rows",
			lines: deathLog(),
			want:  [][]int{{0, 1, 2, 3, 4, 5}, {6, 7, 8, 9, 10, 11}},
		},
		{
			name:  "rows missing a burial date stay together",
			lines: domain.LinesFromText("12/01/1950", "John Smith", "82", "03/15/1951", "Mary Jones", "74"),
			want:  [][]int{{0, 1, 2, 3, 4, 5}},
		},
		{
			name:  "only blank lines",
			lines: domain.LinesFromText("", " "),
			want:  [][]int{{0, 1}},
		},
		{
			name:  "empty",
			lines: domain.LineStore{},
			want:  [][]int{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := NewSplitter(funeral(t), 0).SplitIntoRecords(tt.lines)
			got := make([][]int, len(segs))
			for i, s := range segs {
				got[i] = s.Lines
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitIntoRecords_NilTemplateUsesMarkersOnly(t *testing.T) {
	segs := NewSplitter(nil, 0).SplitIntoRecords(deathLog())
	require.Len(t, segs, 1)
	assert.Len(t, segs[0].Lines, 12)
}

func TestSuggestFieldMappings_Funeral(t *testing.T) {
	got := SuggestFieldMappings(funeral(t), deathLog(), RecordSegment{Lines: []int{0, 1, 2, 3, 4, 5}})

	assert.Equal(t, map[domain.Field][]int{
		"death_date":        {0, 1},
		"burial_date":       {1, 0},
		"name":              {2},
		"age":               {3},
		"priest_officiated": {4},
		"burial_location":   {5},
	}, got)
}

func TestSuggestFieldMappings_PositionalNames(t *testing.T) {
	tmpl, _ := domain.BuiltinTemplate(domain.Marriage)
	lines := domain.LinesFromText("Peter Ivanov", "Anna Petrova", "06/20/1965", "smudged remark")

	got := SuggestFieldMappings(tmpl, lines, RecordSegment{Lines: []int{0, 1, 2, 3, 99}})

	assert.Equal(t, []int{0, 1}, got["groom_name"])
	assert.Equal(t, []int{1, 0}, got["bride_name"])
	assert.Equal(t, []int{0, 1}, got["witness_1"])
	assert.Equal(t, []int{2}, got["marriage_date"])
	assert.Equal(t, []int{3}, got["notes"])
	assert.Empty(t, got["groom_age"])
}

func TestAutoSplit(t *testing.T) {
	tmpl := funeral(t)
	n := 0
	m := mapping.NewManager(mapping.Options{Template: tmpl, NewID: func() string { n++; return fmt.Sprintf("r%d", n) }})
	s := m.CreateInitialState(context.Background(), deathLog())
	s = m.UpdateFieldValue(s, "r1", "name", "stale")

	segs := NewSplitter(tmpl, 0).SplitIntoRecords(s.Lines())
	s, report := AutoSplit(m, s, segs)

	assert.Equal(t, Report{Segments: 2, Applied: 12}, report)
	assert.Equal(t, []string{"r2", "r3"}, s.RecordIDs())
	require.NoError(t, mapping.CheckInvariants(s))
	assert.Empty(t, mapping.AvailableLines(s))

	second, _ := s.Record("r3")
	assert.Equal(t, "03/15/1951", second.Get("death_date").Value)
	assert.Equal(t, "03/18/1951", second.Get("burial_date").Value)
	assert.Equal(t, "Mary Jones", second.Get("name").Value)
	assert.Equal(t, "Rev. Peter Kowalski", second.Get("priest_officiated").Value)
	assert.Equal(t, 100, mapping.RecordCompleteness(second))
}

func TestAutoSplit_NoSegmentsKeepsOneRecord(t *testing.T) {
	m := mapping.NewManager(mapping.Options{})
	s := m.CreateInitialState(context.Background(), domain.LinesFromText("x"))

	s, report := AutoSplit(m, s, nil)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, Report{Segments: 1}, report)
}
