package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/zulandar/atlas/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Defaults for ClientOpts.
const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultModel      = "gemini-3-pro-preview"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultMaxRetries = 3
	DefaultRPS        = 2.0
)

// Client implements Gateway against the Gemini generateContent REST API.
type Client struct {
	apiKey        string
	baseURL       string
	model         string
	imageModel    string
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxRetries    uint
	retryInterval time.Duration
	images        bool
	recorder      Recorder
	tracer        trace.Tracer
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	APIKey            string
	BaseURL           string        // defaults to DefaultBaseURL
	Model             string        // defaults to DefaultModel
	ImageModel        string        // defaults to DefaultImageModel
	HTTPClient        *http.Client  // defaults to a client with a 2 minute timeout
	RequestsPerSecond float64       // defaults to DefaultRPS
	MaxRetries        int           // defaults to DefaultMaxRetries; negative disables retries
	RetryInterval     time.Duration // initial backoff interval; defaults to 500ms
	DisableImages     bool          // skip destination image synthesis
	Recorder          Recorder      // optional
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gateway: api key is required")
	}
	c := &Client{
		apiKey:        opts.APIKey,
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		model:         opts.Model,
		imageModel:    opts.ImageModel,
		httpClient:    opts.HTTPClient,
		images:        !opts.DisableImages,
		recorder:      opts.Recorder,
		retryInterval: opts.RetryInterval,
		tracer:        telemetry.Tracer("gateway"),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.imageModel == "" {
		c.imageModel = DefaultImageModel
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 500 * time.Millisecond
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRPS
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	switch {
	case opts.MaxRetries < 0:
		c.maxRetries = 0
	case opts.MaxRetries == 0:
		c.maxRetries = DefaultMaxRetries
	default:
		c.maxRetries = uint(opts.MaxRetries)
	}
	return c, nil
}

// AnalyzeImage implements Gateway.
func (c *Client) AnalyzeImage(ctx context.Context, img Image) (*GuessAnalysis, error) {
	req := generateRequest{
		SystemInstruction: ptr(textContent("", systemInstruction)),
		Contents: []content{{
			Role:  "user",
			Parts: []part{imagePart(img), {Text: analyzePrompt}},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   guessSchema,
			Temperature:      ptr(analyzeTemperature),
		},
	}

	var out GuessAnalysis
	if err := c.structured(ctx, OpAnalyze, req, &out, func() error { return validateGuess(&out) }); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateReveal implements Gateway.
func (c *Client) EvaluateReveal(ctx context.Context, img Image, locationText string) (*RevealResult, error) {
	req := generateRequest{
		SystemInstruction: ptr(textContent("", systemInstruction)),
		Contents: []content{{
			Role:  "user",
			Parts: []part{imagePart(img), {Text: revealPrompt(locationText)}},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   revealSchema,
			Temperature:      ptr(revealTemperature),
		},
	}

	var out RevealResult
	if err := c.structured(ctx, OpReveal, req, &out, func() error { return validateReveal(&out) }); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveCoordinates implements Gateway. The destination image is attached
// only when synthesis succeeds.
func (c *Client) ResolveCoordinates(ctx context.Context, latText, lngText string) (*FlightDestination, error) {
	req := generateRequest{
		SystemInstruction: ptr(textContent("", systemInstruction)),
		Contents:          []content{textContent("user", flightPrompt(latText, lngText))},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   flightSchema,
			Temperature:      ptr(flightTemperature),
		},
	}

	var out FlightDestination
	if err := c.structured(ctx, OpResolve, req, &out, func() error { return validateDestination(&out) }); err != nil {
		return nil, err
	}

	if !c.images {
		return &out, nil
	}
	if img, ok := c.Synthesize(ctx, &out); ok {
		out.Image = img
		out.ImageURL = img.DataURL()
	}
	return &out, nil
}

// Synthesize generates a travel photo of the destination. The boolean is
// false when no image could be produced; the failure is logged, not returned.
func (c *Client) Synthesize(ctx context.Context, d *FlightDestination) (*Image, bool) {
	req := generateRequest{
		Contents: []content{textContent("user", destinationImagePrompt(d))},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: destinationAspectRatio},
		},
	}

	ctx, span := c.tracer.Start(ctx, "gateway."+OpSynthesize,
		trace.WithAttributes(attribute.String("gateway.model", c.imageModel)))
	defer span.End()

	start := time.Now()
	img, err := c.firstImage(ctx, req)
	c.record(ctx, Call{
		Operation:        OpSynthesize,
		Model:            c.imageModel,
		Latency:          time.Since(start),
		Err:              err,
		ImageSynthesized: err == nil,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		log.Printf("gateway: %v: %v (continuing without image)", ErrImageSynthesis, err)
		return nil, false
	}
	return img, true
}

func (c *Client) firstImage(ctx context.Context, req generateRequest) (*Image, error) {
	resp, err := c.generate(ctx, c.imageModel, req)
	if err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				mime := p.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &Image{MIMEType: mime, Data: p.InlineData.Data}, nil
			}
		}
	}
	return nil, errors.New("response contained no image part")
}

// structured runs one JSON-schema call, decodes the text into out and
// validates it. Every failure is returned as an *InferenceError.
func (c *Client) structured(ctx context.Context, op string, req generateRequest, out any, validate func() error) error {
	ctx, span := c.tracer.Start(ctx, "gateway."+op,
		trace.WithAttributes(attribute.String("gateway.model", c.model)))
	defer span.End()

	start := time.Now()
	err := c.structuredOnce(ctx, req, out, validate)
	c.record(ctx, Call{Operation: op, Model: c.model, Latency: time.Since(start), Err: err})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		log.Printf("gateway: %s failed: %v", op, err)
		return &InferenceError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) structuredOnce(ctx context.Context, req generateRequest, out any, validate func() error) error {
	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp.text(), out); err != nil {
		return err
	}
	if validate != nil {
		return validate()
	}
	return nil
}

// generate posts a generateContent request, waiting on the rate limiter and
// retrying transient failures with exponential backoff.
func (c *Client) generate(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval

	return backoff.Retry[*generateResponse](ctx, func() (*generateResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return c.post(ctx, url, body)
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(c.maxRetries+1))
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*generateResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out generateResponse
	jsonErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API returned status %d: %.300s", resp.StatusCode, string(respBody))
		if jsonErr == nil && out.Error != nil {
			apiErr = fmt.Errorf("API error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
		}
		if retryable(resp.StatusCode) {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}
	if jsonErr != nil {
		return nil, backoff.Permanent(fmt.Errorf("parsing response: %w", jsonErr))
	}
	if out.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("API error (%s): %s", out.Error.Status, out.Error.Message))
	}
	return &out, nil
}

// retryable reports whether an HTTP status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) record(ctx context.Context, call Call) {
	if c.recorder != nil {
		c.recorder.Record(ctx, call)
	}
}

func ptr[T any](v T) *T { return &v }

// --- wire types for the generateContent endpoint ---

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"` // base64 on the wire
}

type generationConfig struct {
	ResponseMIMEType   string       `json:"responseMimeType,omitempty"`
	ResponseSchema     schema       `json:"responseSchema,omitempty"`
	Temperature        *float64     `json:"temperature,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
	Error      *apiError   `json:"error,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// text concatenates the text parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func textContent(role, text string) content {
	return content{Role: role, Parts: []part{{Text: text}}}
}

func imagePart(img Image) part {
	return part{InlineData: &inlineData{MIMEType: img.MIMEType, Data: img.Data}}
}
