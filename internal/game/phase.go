package game

import (
	"errors"
	"fmt"
)

// Phase is the game's current mode. Exactly one is active at a time and it
// decides which operations are accepted.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAnalyzing      Phase = "analyzing"
	PhaseAwaitingReveal Phase = "awaiting_reveal"
	PhaseRevealing      Phase = "revealing"
	PhaseRevealed       Phase = "revealed"
	PhaseFlying         Phase = "flying"
	PhaseArrived        Phase = "arrived"
	PhaseFailed         Phase = "failed"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{
	PhaseIdle, PhaseAnalyzing, PhaseAwaitingReveal, PhaseRevealing,
	PhaseRevealed, PhaseFlying, PhaseArrived, PhaseFailed,
}

// op names a user-initiated operation that is gated by phase. Reset and
// draft edits are accepted everywhere and are not listed.
type op string

const (
	opImage  op = "submit_image"
	opReveal op = "submit_reveal"
	opFlight op = "submit_flight"
)

var accepted = map[Phase][]op{
	PhaseIdle:           {opImage, opFlight},
	PhaseAwaitingReveal: {opReveal},
	PhaseFailed:         {opImage, opReveal},
}

func (p Phase) accepts(o op) bool {
	for _, a := range accepted[p] {
		if a == o {
			return true
		}
	}
	return false
}

// Busy reports whether p is one of the phases in which a model call is
// normally outstanding.
func (p Phase) Busy() bool {
	switch p {
	case PhaseAnalyzing, PhaseRevealing, PhaseFlying:
		return true
	}
	return false
}

// ErrRejected is wrapped by every precondition failure. A rejected operation
// changes nothing.
var ErrRejected = errors.New("game: operation rejected")

var (
	ErrWrongPhase = fmt.Errorf("%w: not accepted in current phase", ErrRejected)
	ErrEmptyInput = fmt.Errorf("%w: input is empty", ErrRejected)
	ErrNoArtifact = fmt.Errorf("%w: no image uploaded", ErrRejected)
	ErrNoImage    = fmt.Errorf("%w: image has no data", ErrRejected)
)
