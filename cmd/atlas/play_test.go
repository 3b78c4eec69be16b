package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/atlas/internal/gateway"
	"github.com/zulandar/atlas/internal/transcript"
)

const playConfig = "game:\n  prompt_delay: 1ms\ndatabase:\n  driver: none\n"

func TestPlayCmd_Flight(t *testing.T) {
	mock := gateway.NewMock()
	stubGateway(t, mock)
	cfgPath := writeConfig(t, playConfig)

	in := "fly (48.8584, 2.2945)\nstate\nbogus\nquit\nfly 1, 2\n"
	out, err := runCmd(t, in, "play", "-c", cfgPath)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	for _, want := range []string{
		"🙋 You: Flying to 48.8584, 2.2945 ✈️",
		"Fasten your seatbelts",
		"✈️ Arrived: Null Island, Gulf of Guinea, International Waters",
		"Phase:   arrived",
		`Unknown command "bogus"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Flying to 1, 2") {
		t.Error("input after quit was processed")
	}
	if lat, lng := mock.LastCoordinates(); lat != "48.8584" || lng != "2.2945" {
		t.Errorf("resolved (%q, %q)", lat, lng)
	}
	if strings.Contains(out, "] > ") {
		t.Error("prompt shown for non-terminal input")
	}
}

func TestPlayCmd_PhotoAndReveal(t *testing.T) {
	stubGateway(t, gateway.NewMock())
	cfgPath := writeConfig(t, playConfig)
	photo := filepath.Join(t.TempDir(), "street.png")
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	if err := os.WriteFile(photo, png, 0o644); err != nil {
		t.Fatalf("write photo: %v", err)
	}

	in := "photo " + photo + "\nreveal Shibuya\n"
	out, err := runCmd(t, in, "play", "-c", cfgPath)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	for _, want := range []string{
		"🙋 You: 📷 [photo]",
		"My guess is Tokyo, Japan (80% sure)",
		"• kanji signage",
		"Am I close?",
		"🙋 You: Shibuya",
		"✅ Correct: Shibuya, Tokyo, Japan",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlayCmd_Rejections(t *testing.T) {
	stubGateway(t, gateway.NewMock())
	cfgPath := writeConfig(t, playConfig)
	notImage := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(notImage, []byte("not a photo at all"), 0o644)

	in := strings.Join([]string{
		"reveal Paris",
		"fly",
		"photo",
		"photo " + notImage,
		"photo /nonexistent/photo.png",
		"reset",
	}, "\n")
	out, err := runCmd(t, in, "play", "-c", cfgPath)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if n := strings.Count(out, "✋"); n != 5 {
		t.Errorf("rejections = %d, want 5:\n%s", n, out)
	}
	if !strings.Contains(out, "is not an image") {
		t.Errorf("missing not-an-image rejection:\n%s", out)
	}
	if !strings.Contains(out, "🔄 New game.") {
		t.Errorf("missing reset:\n%s", out)
	}
}

func TestPlayCmd_GatewayError(t *testing.T) {
	cfgPath := writeConfig(t, playConfig)
	t.Setenv("GEMINI_API_KEY", "")
	_, err := runCmd(t, "", "play", "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err = %v, want missing key error", err)
	}
}

func TestWriteEntry(t *testing.T) {
	var b strings.Builder
	writeEntry(&b, transcript.HostReveal(&gateway.RevealResult{
		LocationName: "Osaka",
		FunFacts:     []string{"kitchen of Japan"},
		LearningNote: "Look at the escalator side",
	}))
	out := b.String()
	for _, want := range []string{"🧭 Atlas: ❌ Not quite: Osaka", "• kitchen of Japan", "💡 Look at the escalator side"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
