// Package mirror echoes the game's conversation to chat platforms (Slack,
// Discord). Mirroring is best-effort: failures are logged and never reach
// the game.
package mirror

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/atlas/internal/game"
)

// DefaultPostTimeout bounds a single Post call.
const DefaultPostTimeout = 15 * time.Second

// Poster is implemented by each chat platform.
type Poster interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Post delivers msg. When msg.ThreadID is empty the message starts a new
	// thread and Post returns that thread's ID (or "" if the platform could
	// not create one); otherwise it replies in msg.ThreadID.
	Post(ctx context.Context, msg Message) (threadID string, err error)

	// Close releases the platform connection.
	Close() error
}

// Message is one mirrored transcript entry.
type Message struct {
	ThreadID   string // reply target; empty starts a thread
	ThreadName string // name used when a platform creates a thread
	Text       string // plain text, also the fallback when cards are shown
	Cards      []Card
}

// Card is a structured payload rendered as a Slack attachment or Discord embed.
type Card struct {
	Title  string
	Body   string
	Color  string // hex, e.g. "#36a64f"
	Fields []Field
}

// Field is a key-value pair displayed in a card.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Source is the engine surface the mirror needs.
type Source interface {
	Subscribe() (<-chan game.Event, func())
}

// Mirror forwards engine entries to every configured Poster, one thread per
// round.
type Mirror struct {
	source  Source
	posters []Poster
	timeout time.Duration

	threads map[string]string // key: "poster:round"
}

// Opts holds parameters for creating a Mirror.
type Opts struct {
	Source      Source
	Posters     []Poster
	PostTimeout time.Duration // defaults to DefaultPostTimeout
}

// New creates a Mirror.
func New(opts Opts) (*Mirror, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("mirror: source is required")
	}
	if len(opts.Posters) == 0 {
		return nil, fmt.Errorf("mirror: at least one poster is required")
	}
	timeout := opts.PostTimeout
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	return &Mirror{
		source:  opts.Source,
		posters: opts.Posters,
		timeout: timeout,
		threads: make(map[string]string),
	}, nil
}

// Run forwards events until ctx is cancelled or the subscription closes.
// Posters are closed on return.
func (m *Mirror) Run(ctx context.Context) {
	events, unsubscribe := m.source.Subscribe()
	defer unsubscribe()
	defer m.closePosters()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *Mirror) handle(ctx context.Context, ev game.Event) {
	switch ev.Type {
	case game.EventReset:
		clear(m.threads)
		return
	case game.EventEntry:
	default:
		return
	}
	if ev.Entry == nil {
		return
	}
	msg, ok := Format(*ev.Entry)
	if !ok {
		return
	}
	msg.ThreadName = threadName(ev.Round)

	for _, p := range m.posters {
		key := p.Name() + ":" + ev.Round
		msg.ThreadID = m.threads[key]

		postCtx, cancel := context.WithTimeout(ctx, m.timeout)
		threadID, err := p.Post(postCtx, msg)
		cancel()
		if err != nil {
			log.Printf("mirror: %s: post entry %d: %v", p.Name(), ev.Entry.Seq, err)
			continue
		}
		if msg.ThreadID == "" && threadID != "" {
			m.threads[key] = threadID
		}
	}
}

func (m *Mirror) closePosters() {
	for _, p := range m.posters {
		if err := p.Close(); err != nil {
			log.Printf("mirror: %s: close: %v", p.Name(), err)
		}
	}
}

func threadName(round string) string {
	if len(round) > 8 {
		round = round[:8]
	}
	return "Atlas round " + round
}
