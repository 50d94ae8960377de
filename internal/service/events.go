package service

import "github.com/parishrecords/ocrmapper/internal/sse"

// EventEmitter delivers learning events to live clients.
type EventEmitter interface {
	Emit(event sse.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(sse.Event) {}
