// Package transcript holds the game's conversation log: an append-only,
// ordered sequence of host and user entries. Insertion order is display
// order.
package transcript

import (
	"encoding/json"
	"time"

	"github.com/zulandar/atlas/internal/gateway"
)

// Role identifies who an entry is attributed to.
type Role string

const (
	RoleHost Role = "host"
	RoleUser Role = "user"
)

// Kind tags how an entry should be rendered.
type Kind string

const (
	KindText              Kind = "text"
	KindImage             Kind = "image"
	KindGuess             Kind = "guess"
	KindResult            Kind = "result"
	KindFlightDestination Kind = "flight_destination"
)

// Payload is the typed content attached to an entry. The set of
// implementations is closed: GuessPayload, RevealPayload and FlightPayload.
// A nil Payload means the entry carries none.
type Payload interface {
	kind() Kind
}

// GuessPayload carries the host's first guess for an uploaded photo.
type GuessPayload struct{ *gateway.GuessAnalysis }

// RevealPayload carries the verdict after the user reveals the location.
type RevealPayload struct{ *gateway.RevealResult }

// FlightPayload carries the destination found at a set of coordinates.
type FlightPayload struct{ *gateway.FlightDestination }

func (GuessPayload) kind() Kind  { return KindGuess }
func (RevealPayload) kind() Kind { return KindResult }
func (FlightPayload) kind() Kind { return KindFlightDestination }

// Entry is one unit of the displayed conversation. Entries are values; the
// log hands out copies, so a stored entry cannot be changed after Append.
type Entry struct {
	ID        string
	Seq       int
	Role      Role
	Kind      Kind
	Text      string
	Payload   Payload
	CreatedAt time.Time
}

// HostText is a plain host speech bubble.
func HostText(text string) Entry {
	return Entry{Role: RoleHost, Kind: KindText, Text: text}
}

// UserText is a plain user speech bubble.
func UserText(text string) Entry {
	return Entry{Role: RoleUser, Kind: KindText, Text: text}
}

// UserImage marks where the uploaded photo appears in the conversation. The
// image itself is the round's session artifact.
func UserImage() Entry {
	return Entry{Role: RoleUser, Kind: KindImage}
}

// HostGuess attaches a guess analysis.
func HostGuess(g *gateway.GuessAnalysis) Entry {
	return withPayload(RoleHost, GuessPayload{g})
}

// HostReveal attaches a reveal verdict.
func HostReveal(r *gateway.RevealResult) Entry {
	return withPayload(RoleHost, RevealPayload{r})
}

// HostFlight attaches a flight destination.
func HostFlight(d *gateway.FlightDestination) Entry {
	return withPayload(RoleHost, FlightPayload{d})
}

func withPayload(role Role, p Payload) Entry {
	return Entry{Role: role, Kind: p.kind(), Payload: p}
}

// Guess returns the guess payload, if the entry has one.
func (e Entry) Guess() (*gateway.GuessAnalysis, bool) {
	p, ok := e.Payload.(GuessPayload)
	if !ok {
		return nil, false
	}
	return p.GuessAnalysis, true
}

// Reveal returns the reveal payload, if the entry has one.
func (e Entry) Reveal() (*gateway.RevealResult, bool) {
	p, ok := e.Payload.(RevealPayload)
	if !ok {
		return nil, false
	}
	return p.RevealResult, true
}

// Flight returns the flight destination payload, if the entry has one.
func (e Entry) Flight() (*gateway.FlightDestination, bool) {
	p, ok := e.Payload.(FlightPayload)
	if !ok {
		return nil, false
	}
	return p.FlightDestination, true
}

type entryJSON struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON encodes the payload under "data", dispatched by kind.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:        e.ID,
		Seq:       e.Seq,
		Role:      e.Role,
		Kind:      e.Kind,
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
	}
	switch p := e.Payload.(type) {
	case GuessPayload:
		out.Data = p.GuessAnalysis
	case RevealPayload:
		out.Data = p.RevealResult
	case FlightPayload:
		out.Data = p.FlightDestination
	}
	return json.Marshal(out)
}
