package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/atlas/internal/gateway"
)

func newTestLog() *Log {
	n := 0
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewLog(LogOpts{
		NewID: func() string { n++; return fmt.Sprintf("e%d", n) },
		Now:   func() time.Time { return fixed },
	})
}

func TestAppend_AssignsIDAndSequence(t *testing.T) {
	l := newTestLog()
	a := l.Append(HostText("hello"))
	b := l.Append(UserImage())

	if a.ID != "e1" || b.ID != "e2" {
		t.Errorf("IDs = %q, %q", a.ID, b.ID)
	}
	if a.Seq != 1 || b.Seq != 2 {
		t.Errorf("Seq = %d, %d", a.Seq, b.Seq)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestAppend_DefaultIDsAreUnique(t *testing.T) {
	l := NewLog(LogOpts{})
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		e := l.Append(HostText("x"))
		if seen[e.ID] {
			t.Fatalf("duplicate ID %q", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestAll_ReturnsCopyInOrder(t *testing.T) {
	l := newTestLog()
	l.Append(HostText("one"))
	l.Append(UserText("two"))
	l.Append(HostText("three"))

	all := l.All()
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	for i, want := range []string{"one", "two", "three"} {
		if all[i].Text != want {
			t.Errorf("all[%d].Text = %q, want %q", i, all[i].Text, want)
		}
	}

	all[0].Text = "mutated"
	if got := l.All()[0].Text; got != "one" {
		t.Errorf("stored entry changed through copy: %q", got)
	}
}

func TestLast(t *testing.T) {
	l := newTestLog()
	if _, ok := l.Last(); ok {
		t.Error("Last on empty log returned ok")
	}
	l.Append(HostText("a"))
	l.Append(UserText("b"))
	last, ok := l.Last()
	if !ok || last.Text != "b" || last.Role != RoleUser {
		t.Errorf("Last = %+v, %v", last, ok)
	}
}

func TestSince(t *testing.T) {
	l := newTestLog()
	l.Append(HostText("a"))
	l.Append(HostText("b"))
	l.Append(HostText("c"))
	got := l.Since(1)
	if len(got) != 2 || got[0].Text != "b" {
		t.Errorf("Since(1) = %+v", got)
	}
	if len(l.Since(3)) != 0 {
		t.Error("Since(3) should be empty")
	}
}

func TestClear_RestartsSequence(t *testing.T) {
	l := newTestLog()
	l.Append(HostText("a"))
	l.Append(HostText("b"))
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len after Clear = %d", l.Len())
	}
	e := l.Append(HostText("c"))
	if e.Seq != 1 {
		t.Errorf("Seq after Clear = %d, want 1", e.Seq)
	}
}

func TestConstructors_KindsAndRoles(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		role Role
		kind Kind
	}{
		{"host text", HostText("hi"), RoleHost, KindText},
		{"user text", UserText("hi"), RoleUser, KindText},
		{"user image", UserImage(), RoleUser, KindImage},
		{"guess", HostGuess(&gateway.GuessAnalysis{}), RoleHost, KindGuess},
		{"reveal", HostReveal(&gateway.RevealResult{}), RoleHost, KindResult},
		{"flight", HostFlight(&gateway.FlightDestination{}), RoleHost, KindFlightDestination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.e.Role != tt.role {
				t.Errorf("Role = %q, want %q", tt.e.Role, tt.role)
			}
			if tt.e.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.e.Kind, tt.kind)
			}
		})
	}
}

func TestPayloadAccessors(t *testing.T) {
	e := HostReveal(&gateway.RevealResult{IsCorrect: true, LocationName: "Tokyo"})
	r, ok := e.Reveal()
	if !ok || !r.IsCorrect {
		t.Fatalf("Reveal() = %+v, %v", r, ok)
	}
	if _, ok := e.Guess(); ok {
		t.Error("Guess() ok on reveal entry")
	}
	if _, ok := e.Flight(); ok {
		t.Error("Flight() ok on reveal entry")
	}
	if _, ok := HostText("x").Reveal(); ok {
		t.Error("Reveal() ok on text entry")
	}
}

func TestMarshalJSON(t *testing.T) {
	l := newTestLog()
	e := l.Append(HostFlight(&gateway.FlightDestination{LocationName: "Machu Picchu", Country: "Peru"}))

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["kind"] != "flight_destination" || got["role"] != "host" || got["id"] != "e1" {
		t.Errorf("envelope = %v", got)
	}
	payload, ok := got["data"].(map[string]any)
	if !ok || payload["locationName"] != "Machu Picchu" {
		t.Errorf("data = %v", got["data"])
	}
	if _, ok := got["text"]; ok {
		t.Error("empty text should be omitted")
	}

	text, _ := json.Marshal(l.Append(UserText("hi")))
	if strings.Contains(string(text), `"data"`) {
		t.Errorf("text entry should not carry data: %s", text)
	}
}

func TestConcurrentReadersDuringAppend(t *testing.T) {
	l := NewLog(LogOpts{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.All()
				_, _ = l.Last()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		l.Append(HostText("x"))
	}
	wg.Wait()
	if l.Len() != 100 {
		t.Errorf("Len = %d, want 100", l.Len())
	}
}
