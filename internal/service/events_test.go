package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/sse"
	"github.com/parishrecords/ocrmapper/internal/suggest"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestEvents_SubmitAndImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := &recordingEmitter{}
	env.sessions.SetEventEmitter(rec)
	env.suggestions.SetEventEmitter(rec)

	sess, err := env.sessions.Create(ctx, scenarioRequest())
	require.NoError(t, err)
	r1 := sess.State.RecordIDs()[0]
	_, err = env.sessions.MapLine(sess.ID, r1, "name", 0)
	require.NoError(t, err)
	_, err = env.sessions.Submit(ctx, sess.ID)
	require.NoError(t, err)

	data, err := env.suggestions.Export(ctx, "st-nicholas")
	require.NoError(t, err)
	require.NoError(t, env.suggestions.Import(ctx, "holy-trinity", data))

	assert.Equal(t, []sse.EventType{
		sse.EventHistoryRecorded,
		sse.EventSessionSubmitted,
		sse.EventHistoryImported,
	}, rec.types())

	recorded := rec.events[0]
	assert.Equal(t, "st-nicholas", recorded.Org)
	data0, ok := recorded.Data.(sse.HistoryEventData)
	require.True(t, ok)
	assert.Equal(t, 1, data0.Mappings)
	assert.Equal(t, 1, data0.Stats.TotalMappings)

	submitted, ok := rec.events[1].Data.(sse.SessionSubmittedEventData)
	require.True(t, ok)
	assert.Equal(t, sess.ID, submitted.SessionID)
	assert.Equal(t, "funeral", submitted.DocumentType)
	assert.Equal(t, 1, submitted.Records)

	assert.Equal(t, "holy-trinity", rec.events[2].Org)
}

func TestEvents_RejectedImportIsSilent(t *testing.T) {
	env := newTestEnv(t)
	rec := &recordingEmitter{}
	env.suggestions.SetEventEmitter(rec)

	err := env.suggestions.Import(context.Background(), "st-nicholas", []byte(`{"history": 1}`))
	require.Error(t, err)
	err = env.suggestions.Learn(context.Background(), "BAD ORG", []suggest.Mapping{{Text: "x", Field: "name"}})
	require.Error(t, err)
	assert.Empty(t, rec.types())
}
