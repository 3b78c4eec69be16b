package game

import (
	"log"
	"sync"

	"github.com/zulandar/atlas/internal/transcript"
)

// EventType identifies the kind of change an Event reports.
type EventType string

const (
	EventEntry EventType = "entry"
	EventPhase EventType = "phase"
	EventReset EventType = "reset"
)

// Event is a single state change, delivered to subscribers in commit order.
// Entry is set only for EventEntry.
type Event struct {
	Type  EventType         `json:"type"`
	Entry *transcript.Entry `json:"entry,omitempty"`
	Phase Phase             `json:"phase"`
	Busy  bool              `json:"busy"`
	Round string            `json:"round"`
}

const subscriberBuffer = 64

// Subscribe registers a listener for state changes. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// emit delivers ev to every subscriber without blocking. Caller holds e.mu.
func (e *Engine) emit(ev Event) {
	ev.Phase = e.phase
	ev.Busy = e.busy
	ev.Round = e.round
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("game: subscriber %d full, dropped %s event", id, ev.Type)
		}
	}
}

// append adds an entry to the log and announces it. Caller holds e.mu.
func (e *Engine) append(entries ...transcript.Entry) {
	for _, entry := range entries {
		stored := e.log.Append(entry)
		e.emit(Event{Type: EventEntry, Entry: &stored})
	}
}

// setPhase moves to p and announces it. Caller holds e.mu.
func (e *Engine) setPhase(p Phase, busy bool) {
	e.phase = p
	e.busy = busy
	e.emit(Event{Type: EventPhase})
}
