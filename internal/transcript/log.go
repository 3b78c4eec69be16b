package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is the append-only conversation log. Readers may call All, Len and
// Last concurrently with a single writer.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	nextSeq int
	newID   func() string
	now     func() time.Time
}

// LogOpts holds optional overrides for a Log.
type LogOpts struct {
	NewID func() string    // defaults to uuid.NewString
	Now   func() time.Time // defaults to time.Now
}

// NewLog creates an empty Log.
func NewLog(opts LogOpts) *Log {
	l := &Log{newID: opts.NewID, now: opts.Now, nextSeq: 1}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Append assigns a fresh ID, sequence number and timestamp to e, appends it
// at the tail and returns the stored copy.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = l.newID()
	e.Seq = l.nextSeq
	e.CreatedAt = l.now()
	l.nextSeq++
	l.entries = append(l.entries, e)
	return e
}

// All returns a copy of every entry in insertion order.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry. Returns the zero value and false if
// the log is empty.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Since returns the entries whose sequence number is greater than seq.
func (l *Log) Since(seq int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the log and restarts sequence numbering. It is the only
// removal operation and exists for starting a new game.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.nextSeq = 1
}
