// Package game is the geo-guessing state machine. It owns the current phase,
// the uploaded photo, the conversation log and the input drafts, and drives
// the inference gateway in response to user actions.
package game

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zulandar/atlas/internal/coords"
	"github.com/zulandar/atlas/internal/gateway"
	"github.com/zulandar/atlas/internal/telemetry"
	"github.com/zulandar/atlas/internal/transcript"
)

// Host lines appended around each model call.
const (
	msgNewDestination = "Ooh! A new destination! Let me get my map... 🗺️"
	msgPromptReveal   = "Am I close? Tell me where in the world this actually is!"
	msgTurbulence     = "Turbulence! 🌪️ I'm having trouble seeing that clearly. Mind trying another photo?"
	msgCompass        = "My compass is spinning! Can you say that again?"
	msgTakeoff        = "Copy that! Coordinates received. Fasten your seatbelts, we are taking off! 🛫"
	msgMayday         = "Mayday! 📡 I can't locate a landing strip at those coordinates. Are we in the middle of the ocean?"
)

const (
	// DefaultPromptDelay is the pause between showing a guess and asking the
	// user to reveal the answer.
	DefaultPromptDelay = time.Second

	// DefaultCallTimeout bounds a single gateway call.
	DefaultCallTimeout = 2 * time.Minute
)

// Artifact is the photo uploaded for the current round. It is replaced
// wholesale, never mutated.
type Artifact struct {
	ID       string
	Filename string
	Image    gateway.Image
}

// ArtifactMeta describes the artifact without its bytes.
type ArtifactMeta struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// Drafts holds the text the user is currently composing.
type Drafts struct {
	Reveal      string `json:"reveal"`
	Coordinates string `json:"coordinates"`
}

// State is a consistent snapshot of the engine.
type State struct {
	Phase    Phase              `json:"phase"`
	Busy     bool               `json:"busy"`
	Round    string             `json:"round"`
	Artifact *ArtifactMeta      `json:"artifact,omitempty"`
	Entries  []transcript.Entry `json:"entries"`
	Drafts   Drafts             `json:"drafts"`
}

// Engine serializes every state change under one mutex. Gateway calls run in
// their own goroutines and are tagged with the generation active when they
// were issued; a result whose generation has since moved on is discarded.
type Engine struct {
	gw          gateway.Gateway
	log         *transcript.Log
	promptDelay time.Duration
	callTimeout time.Duration
	base        context.Context
	tracer      trace.Tracer
	newID       func() string

	mu       sync.Mutex
	phase    Phase
	busy     bool
	artifact *Artifact
	drafts   Drafts
	gen      uint64
	round    string
	subs     map[int]chan Event
	nextSub  int

	wg sync.WaitGroup
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Gateway     gateway.Gateway
	Log         *transcript.Log // defaults to an empty log
	PromptDelay time.Duration   // 0 means DefaultPromptDelay; negative disables the pause
	CallTimeout time.Duration   // 0 means DefaultCallTimeout
	Context     context.Context // base context for gateway calls; defaults to Background
	Tracer      trace.Tracer    // defaults to the global "game" tracer
	NewID       func() string   // round and artifact IDs; defaults to uuid.NewString
}

// New creates an Engine in the idle phase.
func New(opts Opts) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("game: gateway is required")
	}
	e := &Engine{
		gw:          opts.Gateway,
		log:         opts.Log,
		promptDelay: opts.PromptDelay,
		callTimeout: opts.CallTimeout,
		base:        opts.Context,
		tracer:      opts.Tracer,
		newID:       opts.NewID,
		phase:       PhaseIdle,
		subs:        make(map[int]chan Event),
	}
	if e.log == nil {
		e.log = transcript.NewLog(transcript.LogOpts{})
	}
	if e.promptDelay == 0 {
		e.promptDelay = DefaultPromptDelay
	} else if e.promptDelay < 0 {
		e.promptDelay = 0
	}
	if e.callTimeout <= 0 {
		e.callTimeout = DefaultCallTimeout
	}
	if e.base == nil {
		e.base = context.Background()
	}
	if e.tracer == nil {
		e.tracer = telemetry.Tracer("game")
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	e.round = e.newID()
	return e, nil
}

// Log returns the engine's conversation log.
func (e *Engine) Log() *transcript.Log {
	return e.log
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		Phase:   e.phase,
		Busy:    e.busy,
		Round:   e.round,
		Entries: e.log.All(),
		Drafts:  e.drafts,
	}
	if a := e.artifact; a != nil {
		s.Artifact = &ArtifactMeta{
			ID:       a.ID,
			Filename: a.Filename,
			MIMEType: a.Image.MIMEType,
			Size:     len(a.Image.Data),
		}
	}
	return s
}

// Artifact returns the current photo, if one has been uploaded.
func (e *Engine) Artifact() (Artifact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.artifact == nil {
		return Artifact{}, false
	}
	return *e.artifact, true
}

// SetDrafts replaces both input drafts. Accepted in every phase.
func (e *Engine) SetDrafts(d Drafts) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drafts = d
}

// Reset starts a new game: it clears the log, the artifact and the drafts,
// returns to idle and starts a new round. Any call still outstanding will
// settle into a stale generation and be discarded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advance()
	e.log.Clear()
	e.artifact = nil
	e.drafts = Drafts{}
	e.phase = PhaseIdle
	e.busy = false
	e.emit(Event{Type: EventReset})
}

// Wait blocks until every outstanding gateway call has settled and its
// outcome has been committed or discarded.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// advance starts a new generation and round. Caller holds e.mu.
func (e *Engine) advance() {
	e.gen++
	e.round = e.newID()
}

// SubmitImage starts a round from an uploaded photo. Accepted in idle and
// failed. The returned channel closes once the outcome has been committed
// (including the reveal prompt) or discarded.
func (e *Engine) SubmitImage(a Artifact) (<-chan struct{}, error) {
	if a.Image.Empty() {
		return nil, ErrNoImage
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.phase.accepts(opImage) {
		return nil, fmt.Errorf("game: submit image in %s: %w", e.phase, ErrWrongPhase)
	}

	e.advance()
	if a.ID == "" {
		a.ID = e.newID()
	}
	stored := a
	e.artifact = &stored
	e.append(transcript.HostText(msgNewDestination), transcript.UserImage())
	e.setPhase(PhaseAnalyzing, true)

	done := make(chan struct{})
	gen, round, img := e.gen, e.round, a.Image
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		e.runAnalysis(gen, round, img)
	}()
	return done, nil
}

func (e *Engine) runAnalysis(gen uint64, round string, img gateway.Image) {
	ctx, span, cancel := e.startCall(gateway.OpAnalyze, round)
	defer cancel()
	defer span.End()

	guess, err := e.gw.AnalyzeImage(ctx, img)

	e.mu.Lock()
	if !e.current(gen, span) {
		e.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("game: analyze image (round %s): %v", round, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.append(transcript.HostText(msgTurbulence))
		e.setPhase(PhaseFailed, false)
		e.mu.Unlock()
		return
	}
	if c := strings.TrimSpace(guess.HostCommentary); c != "" {
		e.append(transcript.HostText(c))
	}
	e.append(transcript.HostGuess(guess))
	e.setPhase(PhaseAnalyzing, false)
	e.mu.Unlock()

	if e.promptDelay > 0 {
		t := time.NewTimer(e.promptDelay)
		select {
		case <-t.C:
		case <-e.base.Done():
			t.Stop()
			return
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen, span) || e.phase != PhaseAnalyzing {
		return
	}
	e.append(transcript.HostText(msgPromptReveal))
	e.setPhase(PhaseAwaitingReveal, false)
}

// SubmitReveal sends the user's stated location for judgement. Accepted in
// awaiting_reveal, and in failed when a photo is present. The text is logged
// as typed; it is rejected only when blank.
func (e *Engine) SubmitReveal(text string) (<-chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.phase.accepts(opReveal) {
		return nil, fmt.Errorf("game: submit reveal in %s: %w", e.phase, ErrWrongPhase)
	}
	if e.artifact == nil {
		return nil, ErrNoArtifact
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	e.append(transcript.UserText(text))
	e.drafts.Reveal = ""
	e.setPhase(PhaseRevealing, true)

	done := make(chan struct{})
	gen, round, img := e.gen, e.round, e.artifact.Image
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		e.runReveal(gen, round, img, text)
	}()
	return done, nil
}

func (e *Engine) runReveal(gen uint64, round string, img gateway.Image, text string) {
	ctx, span, cancel := e.startCall(gateway.OpReveal, round)
	defer cancel()
	defer span.End()

	result, err := e.gw.EvaluateReveal(ctx, img, text)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen, span) {
		return
	}
	if err != nil {
		log.Printf("game: evaluate reveal (round %s): %v", round, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.append(transcript.HostText(msgCompass))
		e.setPhase(PhaseAwaitingReveal, false)
		return
	}
	span.SetAttributes(attribute.Bool("reveal.correct", result.IsCorrect))
	if r := strings.TrimSpace(result.HostReaction); r != "" {
		e.append(transcript.HostText(r))
	}
	e.append(transcript.HostReveal(result))
	e.setPhase(PhaseRevealed, false)
}

// SubmitFlight flies the host to the place named by text, which is usually a
// coordinate pair but may be anything the model can resolve. Accepted in
// idle only.
func (e *Engine) SubmitFlight(text string) (<-chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.phase.accepts(opFlight) {
		return nil, fmt.Errorf("game: submit flight in %s: %w", e.phase, ErrWrongPhase)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	q := coords.Resolve(text)
	e.advance()
	e.artifact = nil
	e.append(
		transcript.UserText("Flying to "+q.Cleaned+" ✈️"),
		transcript.HostText(msgTakeoff),
	)
	e.drafts.Coordinates = ""
	e.setPhase(PhaseFlying, true)

	done := make(chan struct{})
	gen, round := e.gen, e.round
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		e.runFlight(gen, round, q)
	}()
	return done, nil
}

func (e *Engine) runFlight(gen uint64, round string, q coords.Query) {
	ctx, span, cancel := e.startCall(gateway.OpResolve, round)
	defer cancel()
	defer span.End()
	span.SetAttributes(attribute.String("flight.lat", q.Lat), attribute.String("flight.lng", q.Lng))
	if c, err := coords.ParseCoordinate(q.Lat, q.Lng); err == nil {
		span.SetAttributes(attribute.Bool("flight.in_range", c.InRange()))
	}

	dest, err := e.gw.ResolveCoordinates(ctx, q.Lat, q.Lng)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen, span) {
		return
	}
	if err != nil {
		log.Printf("game: resolve coordinates %q (round %s): %v", q.Cleaned, round, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.append(transcript.HostText(msgMayday))
		e.setPhase(PhaseIdle, false)
		return
	}
	span.SetAttributes(attribute.Bool("flight.image", dest.Image != nil))
	if p := strings.TrimSpace(dest.PilotAnnouncement); p != "" {
		e.append(transcript.HostText(p))
	}
	e.append(transcript.HostFlight(dest))
	e.setPhase(PhaseArrived, false)
}

// startCall derives the context for one gateway call from the base context:
// tagged with the round, bounded by the call timeout and traced.
func (e *Engine) startCall(op, round string) (context.Context, trace.Span, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(gateway.WithRound(e.base, round), e.callTimeout)
	ctx, span := e.tracer.Start(ctx, "game."+op, trace.WithAttributes(
		attribute.String("game.round", round),
	))
	return ctx, span, cancel
}

// current reports whether gen is still the active generation, noting the
// discard on the span when it is not. Caller holds e.mu.
func (e *Engine) current(gen uint64, span trace.Span) bool {
	if gen == e.gen {
		return true
	}
	log.Printf("game: discarding stale result from generation %d (now %d)", gen, e.gen)
	span.AddEvent("stale result discarded", trace.WithAttributes(
		attribute.Int64("game.generation", int64(gen)),
	))
	return false
}
