// Package gateway defines the inference service contract the game depends on,
// and a Gemini-backed implementation of it.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/atlas/internal/coords"
)

// Gateway is the inference service boundary. Each method blocks until the
// model settles and returns a typed result or an *InferenceError.
type Gateway interface {
	// AnalyzeImage produces a ranked first guess for where a photo was taken.
	AnalyzeImage(ctx context.Context, img Image) (*GuessAnalysis, error)

	// EvaluateReveal judges the user's stated location against the photo.
	EvaluateReveal(ctx context.Context, img Image, locationText string) (*RevealResult, error)

	// ResolveCoordinates identifies what lies at the given coordinate text.
	// Destination image synthesis is best-effort; its failure never fails
	// the call.
	ResolveCoordinates(ctx context.Context, latText, lngText string) (*FlightDestination, error)
}

// Image is an opaque encoded image plus its MIME type.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// DataURL renders the image as a data: URL suitable for inline display.
func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Empty reports whether the image carries no bytes.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Possibility is one ranked country candidate with an independent confidence
// percentage. Confidences across candidates need not sum to 100.
type Possibility struct {
	Country    string  `json:"country"`
	Confidence float64 `json:"confidence"`
}

// GuessAnalysis is the host's first guess for an uploaded photo.
type GuessAnalysis struct {
	Possibilities   []Possibility      `json:"possibilities"`
	Clues           []string           `json:"clues"`
	FinalGuess      string             `json:"finalGuess"`
	HostCommentary  string             `json:"hostCommentary"`
	ConfidenceScore float64            `json:"confidenceScore"`
	Coordinates     *coords.Coordinate `json:"coordinates,omitempty"`
}

// RevealResult is the host's verdict after the user reveals the location.
type RevealResult struct {
	IsCorrect    bool     `json:"isCorrect"`
	LocationName string   `json:"locationName"`
	HostReaction string   `json:"hostReaction"`
	FunFacts     []string `json:"funFacts"`
	LearningNote string   `json:"learningNote,omitempty"`
}

// FlightDestination describes what the host found at a set of coordinates.
type FlightDestination struct {
	LocationName      string `json:"locationName"`
	City              string `json:"city"`
	Country           string `json:"country"`
	Description       string `json:"description"`
	PilotAnnouncement string `json:"pilotAnnouncement"`
	Image             *Image `json:"-"`
	ImageURL          string `json:"imageUrl,omitempty"`
}

// Place joins the non-empty name, city and country parts.
func (d *FlightDestination) Place() string {
	var parts []string
	for _, p := range []string{d.LocationName, d.City, d.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Operation names used for errors, traces and the call log.
const (
	OpAnalyze    = "analyze_image"
	OpReveal     = "evaluate_reveal"
	OpResolve    = "resolve_coordinates"
	OpSynthesize = "synthesize_image"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("no response from model")

	// ErrImageSynthesis marks a failed best-effort destination image. It is
	// logged and swallowed, never returned from ResolveCoordinates.
	ErrImageSynthesis = errors.New("image synthesis failed")
)

// InferenceError reports a failed gateway call: transport failure, an API
// error, or structured output that could not be decoded.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// IsInferenceError reports whether err is (or wraps) an *InferenceError.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// Call describes one settled request to the model, for the call log.
type Call struct {
	Operation        string
	Model            string
	Latency          time.Duration
	Err              error
	ImageSynthesized bool
}

// Recorder receives a Call for every settled model request. Implementations
// must not block for long; recording failures are the recorder's concern.
type Recorder interface {
	Record(ctx context.Context, call Call)
}
