package mapping

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/store"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("r%d", n)
	}
}

func newTestManager(t *testing.T, suggestions FieldSuggestionStore) *Manager {
	t.Helper()
	return NewManager(Options{Org: "st-nicholas", Suggestions: suggestions, NewID: sequentialIDs()})
}

func scenarioLines() domain.LineStore {
	return domain.NewLineStore([]domain.OcrLine{
		{Index: 0, Text: "John Smith", Confidence: 0.95},
		{Index: 1, Text: "04/12/2024", Confidence: 0.9},
	})
}

func TestCreateInitialState(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())

	require.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"r1"}, s.RecordIDs())
	assert.Empty(t, s.UsedLines())
	assert.Len(t, AvailableLines(s), 2)
	assert.Contains(t, s.Suggestions("priest_officiated"), "Fr.")
	require.NoError(t, CheckInvariants(s))
}

func TestMapLineToField_TwoLines(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())

	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r1", "death_date", 1)

	r1, ok := s.Record("r1")
	require.True(t, ok)
	assert.Equal(t, "John Smith", r1.Get("name").Value)
	assert.Equal(t, 0.95, r1.Get("name").Confidence)
	assert.False(t, r1.Get("name").IsEdited)
	assert.Equal(t, "04/12/2024", r1.Get("death_date").Value)
	assert.Equal(t, []int{0, 1}, s.UsedLines())
	assert.Empty(t, AvailableLines(s))
	require.NoError(t, CheckInvariants(s))
}

func TestMapLineToField_ReassignAcrossRecords(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())
	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r1", "death_date", 1)
	s = m.AddRecord(s)

	s = m.MapLineToField(s, "r2", "name", 0)

	r1, _ := s.Record("r1")
	r2, _ := s.Record("r2")
	assert.Nil(t, r1.Get("name"))
	assert.Equal(t, "John Smith", r2.Get("name").Value)
	assert.Equal(t, []int{0, 1}, s.UsedLines())

	rid, field, ok := s.Owner(0)
	require.True(t, ok)
	assert.Equal(t, "r2", rid)
	assert.Equal(t, domain.Field("name"), field)
	require.NoError(t, CheckInvariants(s))
}

func TestMapLineToField_ReplacingReleasesOldLine(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), domain.LinesFromText("a", "b"))

	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r1", "name", 1)

	assert.Equal(t, []int{1}, s.UsedLines())
	assert.Equal(t, []domain.OcrLine{{Index: 0, Text: "a", Confidence: 1}}, AvailableLines(s))
}

func TestMapLineToField_MoveWithinRecord(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), domain.LinesFromText("12/01/1950", "12/03/1950"))

	s = m.MapLineToField(s, "r1", "death_date", 0)
	s = m.MapLineToField(s, "r1", "burial_date", 0)

	r1, _ := s.Record("r1")
	assert.Nil(t, r1.Get("death_date"))
	assert.Equal(t, 0, r1.Get("burial_date").SourceLine)
	require.NoError(t, CheckInvariants(s))
}

func TestMapLineToField_InvalidReferencesAreNoOps(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())

	tests := []struct {
		name   string
		record string
		field  domain.Field
		line   int
	}{
		{"line past end", "r1", "name", 2},
		{"negative line", "r1", "name", -1},
		{"unknown record", "nope", "name", 0},
		{"reserved id", "r1", "id", 0},
		{"field of another template", "r1", "groom_name", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MapLineToField(s, tt.record, tt.field, tt.line)
			assert.Equal(t, s, got)
		})
	}
}

func TestChanged(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())

	assert.False(t, m.MapLineToField(s, "zz", "name", 0).Changed(s))
	assert.False(t, m.MapLineToField(s, "r1", "name", 99).Changed(s))
	assert.False(t, m.ClearFieldMapping(s, "r1", "name").Changed(s))
	assert.True(t, m.MapLineToField(s, "r1", "name", 0).Changed(s))
	assert.True(t, m.AddRecord(s).Changed(s))
}

func TestOperations_DoNotMutateInput(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	s0 := m.CreateInitialState(ctx, scenarioLines())
	s1 := m.MapLineToField(s0, "r1", "name", 0)
	s2 := m.UpdateFieldValue(s1, "r1", "name", "John Smyth")
	s3 := m.AddRecord(s2)
	s4 := m.MapLineToField(s3, "r2", "name", 0)
	_ = m.RemoveRecord(s4, "r2")
	_ = m.ResetMappings(s4)

	assert.Empty(t, s0.UsedLines())
	r, _ := s0.Record("r1")
	assert.Nil(t, r.Get("name"))

	r, _ = s1.Record("r1")
	assert.Equal(t, "John Smith", r.Get("name").Value)
	assert.False(t, r.Get("name").IsEdited)

	assert.Equal(t, 1, s2.Len())
	assert.Equal(t, 2, s4.Len())

	r, _ = s3.Record("r1")
	assert.Equal(t, "John Smyth", r.Get("name").Value)
	assert.Equal(t, []int{0}, s3.UsedLines())
}

func TestRecordAccessorsReturnCopies(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.MapLineToField(m.CreateInitialState(context.Background(), scenarioLines()), "r1", "name", 0)

	r, _ := s.Record("r1")
	r.Get("name").Value = "tampered"
	delete(r.Fields, "name")
	s.Records()[0].Fields["age"] = &domain.FieldMapping{Value: "9"}

	again, _ := s.Record("r1")
	assert.Equal(t, "John Smith", again.Get("name").Value)
	assert.Nil(t, again.Get("age"))
}

func TestRemoveRecord_ReleasesOnlyItsLines(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), domain.LinesFromText("a", "b", "c", "d"))
	s = m.AddRecord(s)
	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r1", "age", 1)
	s = m.UpdateFieldValue(s, "r1", "burial_location", "Holy Cross Cemetery")
	s = m.MapLineToField(s, "r2", "name", 2)

	s = m.RemoveRecord(s, "r1")

	assert.Equal(t, []string{"r2"}, s.RecordIDs())
	assert.Equal(t, []int{2}, s.UsedLines())
	require.NoError(t, CheckInvariants(s))

	assert.Equal(t, s, m.RemoveRecord(s, "r1"), "unknown id is a no-op")
}

func TestClearFieldMapping(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())
	s = m.MapLineToField(s, "r1", "name", 0)

	cleared := m.ClearFieldMapping(s, "r1", "name")
	r, _ := cleared.Record("r1")
	assert.Nil(t, r.Get("name"))
	assert.Empty(t, cleared.UsedLines())

	assert.Equal(t, cleared, m.ClearFieldMapping(cleared, "r1", "name"), "clearing an empty field is a no-op")
	assert.Equal(t, cleared, m.ClearFieldMapping(cleared, "missing", "name"))
}

func TestClearFieldMapping_ManualValueReleasesNothing(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())
	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.UpdateFieldValue(s, "r1", "age", "82")

	s = m.ClearFieldMapping(s, "r1", "age")
	assert.Equal(t, []int{0}, s.UsedLines())
}

func TestUpdateFieldValue(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())

	t.Run("keeps source of OCR value", func(t *testing.T) {
		got := m.UpdateFieldValue(m.MapLineToField(s, "r1", "name", 0), "r1", "name", "John Smyth")
		r, _ := got.Record("r1")
		fm := r.Get("name")
		assert.Equal(t, "John Smyth", fm.Value)
		assert.Equal(t, 0, fm.SourceLine)
		assert.Equal(t, 0.95, fm.Confidence)
		assert.True(t, fm.IsEdited)
		assert.Equal(t, []int{0}, got.UsedLines())
	})

	t.Run("manual value", func(t *testing.T) {
		got := m.UpdateFieldValue(s, "r1", "age", "82")
		r, _ := got.Record("r1")
		fm := r.Get("age")
		assert.Equal(t, domain.ManualLine, fm.SourceLine)
		assert.Equal(t, 1.0, fm.Confidence)
		assert.True(t, fm.IsEdited)
		assert.Empty(t, got.UsedLines())
	})

	t.Run("invalid references", func(t *testing.T) {
		assert.Equal(t, s, m.UpdateFieldValue(s, "r1", "id", "x"))
		assert.Equal(t, s, m.UpdateFieldValue(s, "zz", "age", "x"))
	})
}

func TestResetMappings(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())
	s = m.AddRecord(s)
	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r2", "death_date", 1)

	s = m.ResetMappings(s)
	assert.Equal(t, []string{"r1", "r2"}, s.RecordIDs())
	assert.Empty(t, s.UsedLines())
	for _, r := range s.Records() {
		assert.Empty(t, r.Fields)
	}
}

// Random sequences of operations must keep the invariants.
func TestInvariants_RandomOperations(t *testing.T) {
	m := newTestManager(t, nil)
	fields := m.Template().Names()
	rng := rand.New(rand.NewPCG(42, 7))

	for run := range 20 {
		s := m.CreateInitialState(context.Background(), domain.LinesFromText("a", "b", "c", "d", "e", "f", "g"))
		for step := range 200 {
			ids := s.RecordIDs()
			pickID := func() string {
				if len(ids) == 0 || rng.IntN(10) == 0 {
					return "ghost"
				}
				return ids[rng.IntN(len(ids))]
			}
			field := fields[rng.IntN(len(fields))]

			before := s
			var held []int
			switch rng.IntN(6) {
			case 0:
				s = m.AddRecord(s)
			case 1:
				rid := pickID()
				if r, ok := s.Record(rid); ok {
					held = r.SourceLines()
				}
				s = m.RemoveRecord(s, rid)
				for _, l := range held {
					assert.False(t, s.IsUsed(l), "run %d step %d: removed record's line %d still used", run, step, l)
				}
				assert.Equal(t, len(before.UsedLines())-len(held), len(s.UsedLines()))
			case 2, 3:
				s = m.MapLineToField(s, pickID(), field, rng.IntN(9)-1)
			case 4:
				s = m.ClearFieldMapping(s, pickID(), field)
			case 5:
				s = m.UpdateFieldValue(s, pickID(), field, "typed")
			}
			require.NoError(t, CheckInvariants(s), "run %d step %d", run, step)
			require.NoError(t, CheckInvariants(before), "run %d step %d: input changed", run, step)
		}
	}
}

type memorySuggestionStore struct {
	data    map[string]map[domain.Field][]string
	saveErr error
	loadErr error
	saves   int
}

func (s *memorySuggestionStore) Load(_ context.Context, org string) (map[domain.Field][]string, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.data[org], nil
}

func (s *memorySuggestionStore) Save(_ context.Context, org string, v map[domain.Field][]string) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.data == nil {
		s.data = map[string]map[domain.Field][]string{}
	}
	s.data[org] = v
	return nil
}

func TestSaveSuggestion(t *testing.T) {
	ctx := context.Background()
	persisted := &memorySuggestionStore{}
	m := newTestManager(t, persisted)
	s := m.CreateInitialState(ctx, scenarioLines())

	s = m.SaveSuggestion(ctx, s, "burial_location", "  Holy Cross Cemetery ")
	assert.Equal(t, []string{"Holy Cross Cemetery"}, s.Suggestions("burial_location"))
	assert.Equal(t, 1, persisted.saves)

	same := m.SaveSuggestion(ctx, s, "burial_location", "Holy Cross Cemetery")
	assert.Equal(t, s, same)
	assert.Equal(t, s, m.SaveSuggestion(ctx, s, "burial_location", "   "))
	assert.Equal(t, s, m.SaveSuggestion(ctx, s, "id", "x"))
	assert.Equal(t, 1, persisted.saves)

	for i := range 25 {
		s = m.SaveSuggestion(ctx, s, "burial_location", fmt.Sprintf("Cemetery %d", i))
	}
	list := s.Suggestions("burial_location")
	require.Len(t, list, SuggestionCap)
	assert.Equal(t, "Cemetery 24", list[len(list)-1])
	assert.Equal(t, "Cemetery 5", list[0])
	assert.Equal(t, list, persisted.data["st-nicholas"]["burial_location"])
}

func TestSaveSuggestion_PersistFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, &memorySuggestionStore{saveErr: errors.New("quota exceeded")})
	s := m.CreateInitialState(ctx, scenarioLines())

	s = m.SaveSuggestion(ctx, s, "burial_location", "St. Tikhon's")
	assert.Equal(t, []string{"St. Tikhon's"}, s.Suggestions("burial_location"))
}

func TestCreateInitialState_LoadsStoredSuggestions(t *testing.T) {
	ctx := context.Background()

	t.Run("stored", func(t *testing.T) {
		persisted := &memorySuggestionStore{data: map[string]map[domain.Field][]string{
			"st-nicholas": {"priest_officiated": {"Fr. Peter", "Fr. Peter", ""}},
		}}
		s := newTestManager(t, persisted).CreateInitialState(ctx, scenarioLines())
		assert.Equal(t, []string{"Fr. Peter"}, s.Suggestions("priest_officiated"))
	})

	t.Run("corrupt falls back to defaults", func(t *testing.T) {
		s := newTestManager(t, &memorySuggestionStore{loadErr: errors.New("bad json")}).CreateInitialState(ctx, scenarioLines())
		assert.Equal(t, clergyHonorifics, s.Suggestions("priest_officiated"))
	})

	t.Run("kv store round trip", func(t *testing.T) {
		kv := store.NewMemory()
		m := newTestManager(t, NewKVSuggestionStore(kv))
		s := m.SaveSuggestion(ctx, m.CreateInitialState(ctx, scenarioLines()), "burial_location", "Holy Trinity")

		reloaded := newTestManager(t, NewKVSuggestionStore(kv)).CreateInitialState(ctx, scenarioLines())
		assert.Equal(t, s.Suggestions("burial_location"), reloaded.Suggestions("burial_location"))

		require.NoError(t, kv.Set(ctx, store.FieldSuggestKey("st-nicholas"), []byte("{broken")))
		fallback := newTestManager(t, NewKVSuggestionStore(kv)).CreateInitialState(ctx, scenarioLines())
		assert.Equal(t, clergyHonorifics, fallback.Suggestions("priest_officiated"))
	})
}

func TestExport(t *testing.T) {
	m := newTestManager(t, nil)
	s := m.CreateInitialState(context.Background(), scenarioLines())
	s = m.MapLineToField(s, "r1", "name", 0)
	s = m.MapLineToField(s, "r1", "death_date", 1)
	s = m.UpdateFieldValue(s, "r1", "age", " 82 ")
	s = m.AddRecord(s)

	at := time.Date(2024, 12, 4, 10, 30, 0, 0, time.UTC)
	sub := Export(s, at)

	require.Len(t, sub.Records, 2)
	r := sub.Records[0]
	assert.Equal(t, "John Smith", r.Value("name"))
	assert.Equal(t, "82", r.Value("age"))
	assert.Equal(t, "", r.Value("burial_date"))
	assert.NotContains(t, r, "id")
	assert.NotContains(t, r, "burial_date_metadata")

	meta, ok := r.Metadata("age")
	require.True(t, ok)
	assert.Equal(t, FieldMetadata{SourceLine: -1, Confidence: 1, IsEdited: true}, meta)

	meta, ok = r.Metadata("death_date")
	require.True(t, ok)
	assert.Equal(t, FieldMetadata{SourceLine: 1, Confidence: 0.9}, meta)

	assert.Len(t, sub.Records[1], 6)
	assert.Equal(t, scenarioLines().All(), sub.OcrLines)
	assert.Equal(t, Metadata{TotalRecords: 2, UsedLines: []int{0, 1}, Timestamp: "2024-12-04T10:30:00Z"}, sub.MappingMetadata)
}
