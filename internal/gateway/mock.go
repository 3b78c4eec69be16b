package gateway

import (
	"context"
	"errors"
	"sync"
)

// Mock implements Gateway for testing. Each capability returns the
// configured result or error. A non-nil Gate makes calls block until a value
// is received on it (or the context ends), which lets tests observe the
// in-flight state.
type Mock struct {
	mu sync.Mutex

	Guess       *GuessAnalysis
	GuessErr    error
	Reveal      *RevealResult
	RevealErr   error
	Destination *FlightDestination
	ResolveErr  error

	Gate chan struct{}

	calls      []string
	lastReveal string
	lastLat    string
	lastLng    string
}

// NewMock returns a Mock that succeeds with canned results.
func NewMock() *Mock {
	return &Mock{
		Guess: &GuessAnalysis{
			Possibilities:   []Possibility{{Country: "Japan", Confidence: 80}, {Country: "South Korea", Confidence: 35}},
			Clues:           []string{"kanji signage", "left-hand traffic"},
			FinalGuess:      "Tokyo, Japan",
			HostCommentary:  "Neon and vending machines everywhere!",
			ConfidenceScore: 80,
		},
		Reveal: &RevealResult{
			IsCorrect:    true,
			LocationName: "Shibuya, Tokyo, Japan",
			HostReaction: "Nailed it!",
			FunFacts:     []string{"Busiest crossing in the world"},
		},
		Destination: &FlightDestination{
			LocationName:      "Null Island",
			City:              "Gulf of Guinea",
			Country:           "International Waters",
			Description:       "A weather buoy where the equator meets the prime meridian.",
			PilotAnnouncement: "Welcome to the middle of nowhere!",
		},
	}
}

// ErrMockFailure is a convenient error for failure-path tests.
var ErrMockFailure = errors.New("mock inference failure")

func (m *Mock) wait(ctx context.Context) error {
	m.mu.Lock()
	gate := m.Gate
	m.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mock) note(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
}

// AnalyzeImage implements Gateway.
func (m *Mock) AnalyzeImage(ctx context.Context, img Image) (*GuessAnalysis, error) {
	m.note(OpAnalyze)
	if err := m.wait(ctx); err != nil {
		return nil, &InferenceError{Op: OpAnalyze, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GuessErr != nil {
		return nil, &InferenceError{Op: OpAnalyze, Err: m.GuessErr}
	}
	g := *m.Guess
	return &g, nil
}

// EvaluateReveal implements Gateway.
func (m *Mock) EvaluateReveal(ctx context.Context, img Image, locationText string) (*RevealResult, error) {
	m.note(OpReveal)
	if err := m.wait(ctx); err != nil {
		return nil, &InferenceError{Op: OpReveal, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReveal = locationText
	if m.RevealErr != nil {
		return nil, &InferenceError{Op: OpReveal, Err: m.RevealErr}
	}
	r := *m.Reveal
	return &r, nil
}

// ResolveCoordinates implements Gateway.
func (m *Mock) ResolveCoordinates(ctx context.Context, latText, lngText string) (*FlightDestination, error) {
	m.note(OpResolve)
	if err := m.wait(ctx); err != nil {
		return nil, &InferenceError{Op: OpResolve, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLat, m.lastLng = latText, lngText
	if m.ResolveErr != nil {
		return nil, &InferenceError{Op: OpResolve, Err: m.ResolveErr}
	}
	d := *m.Destination
	return &d, nil
}

// --- Test helpers ---

// Calls returns a copy of the operations invoked so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastReveal returns the location text of the most recent EvaluateReveal.
func (m *Mock) LastReveal() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReveal
}

// LastCoordinates returns the arguments of the most recent ResolveCoordinates.
func (m *Mock) LastCoordinates() (lat, lng string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLat, m.lastLng
}

// SetGuessErr changes the analysis failure under the lock.
func (m *Mock) SetGuessErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GuessErr = err
}
