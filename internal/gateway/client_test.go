package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// textResponse wraps model text in a generateContent response body.
func textResponse(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(generateResponse{
		Candidates: []candidate{{Content: content{Parts: []part{{Text: text}}}}},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return body
}

func imageResponse(t *testing.T, data []byte) []byte {
	t.Helper()
	body, err := json.Marshal(generateResponse{
		Candidates: []candidate{{Content: content{Parts: []part{
			{Text: "here is your photo"},
			{InlineData: &inlineData{MIMEType: "image/png", Data: data}},
		}}}},
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return body
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls []Call
	round []string
}

func (r *recordingRecorder) Record(ctx context.Context, call Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	r.round = append(r.round, RoundFrom(ctx))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, rec Recorder) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientOpts{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		RetryInterval:     time.Millisecond,
		Recorder:          rec,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientOpts{})
	if err == nil || !strings.Contains(err.Error(), "api key is required") {
		t.Fatalf("err = %v, want api key error", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientOpts{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != DefaultModel || c.imageModel != DefaultImageModel {
		t.Errorf("models = %q / %q", c.model, c.imageModel)
	}
	if c.maxRetries != DefaultMaxRetries {
		t.Errorf("maxRetries = %d", c.maxRetries)
	}
	if !c.images {
		t.Error("images should be enabled by default")
	}

	c, _ = NewClient(ClientOpts{APIKey: "k", MaxRetries: -1})
	if c.maxRetries != 0 {
		t.Errorf("negative MaxRetries should disable retries, got %d", c.maxRetries)
	}
}

func TestAnalyzeImage_Success(t *testing.T) {
	var gotReq generateRequest
	var gotKey, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotReq)
		w.Write(textResponse(t, `{"possibilities":[{"country":"Iran","confidence":70}],"clues":["turquoise domes"],"finalGuess":"Isfahan, Iran","hostCommentary":"Those tiles!","confidenceScore":70,"coordinates":{"lat":32.65,"lng":51.67}}`))
	}, nil)

	g, err := c.AnalyzeImage(context.Background(), Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}})
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if g.FinalGuess != "Isfahan, Iran" {
		t.Errorf("FinalGuess = %q", g.FinalGuess)
	}
	if g.Coordinates == nil || g.Coordinates.Lat != 32.65 {
		t.Errorf("Coordinates = %+v", g.Coordinates)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotPath != "/v1beta/models/"+DefaultModel+":generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.SystemInstruction == nil || !strings.Contains(gotReq.SystemInstruction.Parts[0].Text, "Captain Atlas") {
		t.Error("system instruction missing persona")
	}
	if len(gotReq.Contents) != 1 || len(gotReq.Contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v", gotReq.Contents)
	}
	if gotReq.Contents[0].Parts[0].InlineData == nil || gotReq.Contents[0].Parts[0].InlineData.MIMEType != "image/jpeg" {
		t.Error("first part should be the inline image")
	}
	if gotReq.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("responseMimeType = %q", gotReq.GenerationConfig.ResponseMIMEType)
	}
	if gotReq.GenerationConfig.Temperature == nil || *gotReq.GenerationConfig.Temperature != analyzeTemperature {
		t.Error("temperature not set to analyze temperature")
	}
}

func TestEvaluateReveal_IncludesUserLocation(t *testing.T) {
	var prompt string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Contents[0].Parts[1].Text
		w.Write(textResponse(t, `{"isCorrect":true,"locationName":"Tokyo","hostReaction":"Banzai!","funFacts":["37M people"]}`))
	}, nil)

	res, err := c.EvaluateReveal(context.Background(), Image{MIMEType: "image/png", Data: []byte("x")}, "Tokyo, Japan")
	if err != nil {
		t.Fatalf("EvaluateReveal: %v", err)
	}
	if !res.IsCorrect {
		t.Error("IsCorrect = false")
	}
	if !strings.Contains(prompt, `"Tokyo, Japan"`) {
		t.Errorf("prompt does not quote the user location: %s", prompt)
	}
}

func TestResolveCoordinates_WithImage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, DefaultImageModel) {
			w.Write(imageResponse(t, []byte("PNGDATA")))
			return
		}
		w.Write(textResponse(t, `{"locationName":"Eiffel Tower","city":"Paris","country":"France","description":"Iron lady.","pilotAnnouncement":"Bonjour!"}`))
	}, nil)

	d, err := c.ResolveCoordinates(context.Background(), "48.8584", "2.2945")
	if err != nil {
		t.Fatalf("ResolveCoordinates: %v", err)
	}
	if d.Image == nil || string(d.Image.Data) != "PNGDATA" {
		t.Fatalf("Image = %+v", d.Image)
	}
	if !strings.HasPrefix(d.ImageURL, "data:image/png;base64,") {
		t.Errorf("ImageURL = %q", d.ImageURL)
	}
}

func TestResolveCoordinates_SynthesisFailureSwallowed(t *testing.T) {
	rec := &recordingRecorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, DefaultImageModel) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"blocked","status":"INVALID_ARGUMENT"}}`))
			return
		}
		w.Write(textResponse(t, `{"locationName":"Null Island","city":"","country":"Atlantic","description":"Buoy.","pilotAnnouncement":"Splash!"}`))
	}, rec)

	d, err := c.ResolveCoordinates(WithRound(context.Background(), "r1"), "0", "0")
	if err != nil {
		t.Fatalf("ResolveCoordinates: %v", err)
	}
	if d.Image != nil || d.ImageURL != "" {
		t.Error("expected destination without image")
	}
	if d.LocationName != "Null Island" {
		t.Errorf("LocationName = %q", d.LocationName)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(rec.calls))
	}
	if rec.calls[0].Operation != OpResolve || rec.calls[0].Err != nil {
		t.Errorf("first call = %+v", rec.calls[0])
	}
	if rec.calls[1].Operation != OpSynthesize || rec.calls[1].Err == nil || rec.calls[1].ImageSynthesized {
		t.Errorf("second call = %+v", rec.calls[1])
	}
	if rec.round[0] != "r1" {
		t.Errorf("round = %q, want r1", rec.round[0])
	}
}

func TestResolveCoordinates_ImagesDisabled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(textResponse(t, `{"locationName":"Uluru","city":"","country":"Australia","description":"Red rock.","pilotAnnouncement":"G'day!"}`))
	}))
	defer srv.Close()
	c, _ := NewClient(ClientOpts{APIKey: "k", BaseURL: srv.URL, DisableImages: true, RequestsPerSecond: 1000})

	if _, err := c.ResolveCoordinates(context.Background(), "-25.34", "131.03"); err != nil {
		t.Fatalf("ResolveCoordinates: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 (no synthesis call)", hits.Load())
	}
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		w.Write(textResponse(t, `{"isCorrect":false,"locationName":"Oslo","hostReaction":"Whoa","funFacts":[]}`))
	}, nil)

	res, err := c.EvaluateReveal(context.Background(), Image{MIMEType: "image/png", Data: []byte("x")}, "Oslo")
	if err != nil {
		t.Fatalf("EvaluateReveal: %v", err)
	}
	if res.LocationName != "Oslo" {
		t.Errorf("LocationName = %q", res.LocationName)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestGenerate_PermanentFailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	rec := &recordingRecorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"bad key","status":"PERMISSION_DENIED"}}`))
	}, rec)

	_, err := c.AnalyzeImage(context.Background(), Image{MIMEType: "image/png", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error")
	}
	var ie *InferenceError
	if !errors.As(err, &ie) || ie.Op != OpAnalyze {
		t.Fatalf("err = %v, want *InferenceError for analyze", err)
	}
	if !strings.Contains(err.Error(), "PERMISSION_DENIED") {
		t.Errorf("error should carry API status: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
	if len(rec.calls) != 1 || rec.calls[0].Err == nil {
		t.Errorf("recorded calls = %+v", rec.calls)
	}
}

func TestStructured_MalformedOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(textResponse(t, "I think it's somewhere sunny"))
	}, nil)

	_, err := c.AnalyzeImage(context.Background(), Image{MIMEType: "image/png", Data: []byte("x")})
	if !IsInferenceError(err) {
		t.Fatalf("err = %v, want InferenceError", err)
	}
}

func TestStructured_EmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}, nil)

	_, err := c.ResolveCoordinates(context.Background(), "1", "2")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ResolveCoordinates(ctx, "1", "2")
	if !IsInferenceError(err) {
		t.Fatalf("err = %v, want InferenceError", err)
	}
}
