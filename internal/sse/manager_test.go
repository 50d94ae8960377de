package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishrecords/ocrmapper/internal/logger"
	"github.com/parishrecords/ocrmapper/internal/suggest"
)

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown(context.Background())
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestManager_FiltersByOrganization(t *testing.T) {
	m := startManager(t)

	nicholas, err := m.Connect("st-nicholas")
	require.NoError(t, err)
	trinity, err := m.Connect("holy-trinity")
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewHistoryRecordedEvent("st-nicholas", 2, suggest.Stats{TotalMappings: 2}))
	m.Emit(NewHistoryImportedEvent("holy-trinity", suggest.Stats{TotalMappings: 5}))

	ev := receive(t, nicholas)
	assert.Equal(t, EventHistoryRecorded, ev.Type)
	assert.Equal(t, "st-nicholas", ev.Org)

	ev = receive(t, trinity)
	assert.Equal(t, EventHistoryImported, ev.Type)

	select {
	case ev := <-nicholas.EventChan:
		t.Fatalf("unexpected event for other organization: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_HeartbeatReachesEveryone(t *testing.T) {
	m := startManager(t)
	a, err := m.Connect("st-nicholas")
	require.NoError(t, err)
	b, err := m.Connect("holy-trinity")
	require.NoError(t, err)

	m.Emit(NewHeartbeatEvent())
	assert.Equal(t, EventHeartbeat, receive(t, a).Type)
	assert.Equal(t, EventHeartbeat, receive(t, b).Type)
}

func TestManager_Disconnect(t *testing.T) {
	m := startManager(t)
	c, err := m.Connect("st-nicholas")
	require.NoError(t, err)

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, 0, m.ClientCount())

	_, open := <-c.Done
	assert.False(t, open)
}

func TestManager_ShutdownDropsLateEvents(t *testing.T) {
	m := NewManager(logger.Discard())
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "Shutdown is idempotent")

	assert.NotPanics(t, func() {
		m.Emit(NewSessionSubmittedEvent("st-nicholas", "ses-1", "funeral", 1))
	})
}
