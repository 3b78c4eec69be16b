package mirror

import (
	"fmt"
	"strings"

	"github.com/zulandar/atlas/internal/transcript"
)

// Card colors.
const (
	colorInfo    = "#439FE0"
	colorSuccess = "#36a64f"
	colorWarning = "#daa038"
	colorFlight  = "#7b61ff"
)

// Format renders a transcript entry for chat. Returns false for entries that
// have nothing to show.
func Format(e transcript.Entry) (Message, bool) {
	speaker := "🧭 *Captain Atlas*"
	if e.Role == transcript.RoleUser {
		speaker = "🙋 *Traveler*"
	}

	switch e.Kind {
	case transcript.KindText:
		if strings.TrimSpace(e.Text) == "" {
			return Message{}, false
		}
		return Message{Text: speaker + ": " + e.Text}, true

	case transcript.KindImage:
		return Message{Text: speaker + " uploaded a photo 📷"}, true

	case transcript.KindGuess:
		g, ok := e.Guess()
		if !ok || g == nil {
			return Message{}, false
		}
		card := Card{
			Title: "First guess: " + g.FinalGuess,
			Body:  g.HostCommentary,
			Color: colorInfo,
		}
		for _, p := range g.Possibilities {
			card.Fields = append(card.Fields, Field{Name: p.Country, Value: fmt.Sprintf("%.0f%%", p.Confidence), Short: true})
		}
		if len(g.Clues) > 0 {
			card.Fields = append(card.Fields, Field{Name: "Clues", Value: bullets(g.Clues)})
		}
		if g.Coordinates != nil {
			card.Fields = append(card.Fields, Field{Name: "Coordinates", Value: g.Coordinates.String(), Short: true})
		}
		return Message{Text: speaker + " guessed " + g.FinalGuess, Cards: []Card{card}}, true

	case transcript.KindResult:
		r, ok := e.Reveal()
		if !ok || r == nil {
			return Message{}, false
		}
		card := Card{Title: "❌ Not quite: " + r.LocationName, Color: colorWarning}
		if r.IsCorrect {
			card = Card{Title: "✅ Correct: " + r.LocationName, Color: colorSuccess}
		}
		card.Body = r.HostReaction
		if len(r.FunFacts) > 0 {
			card.Fields = append(card.Fields, Field{Name: "Fun facts", Value: bullets(r.FunFacts)})
		}
		if r.LearningNote != "" {
			card.Fields = append(card.Fields, Field{Name: "Learning note", Value: r.LearningNote})
		}
		return Message{Text: card.Title, Cards: []Card{card}}, true

	case transcript.KindFlightDestination:
		d, ok := e.Flight()
		if !ok || d == nil {
			return Message{}, false
		}
		card := Card{
			Title: "✈️ Arrived: " + d.Place(),
			Body:  d.Description,
			Color: colorFlight,
		}
		if d.City != "" {
			card.Fields = append(card.Fields, Field{Name: "City", Value: d.City, Short: true})
		}
		if d.Country != "" {
			card.Fields = append(card.Fields, Field{Name: "Country", Value: d.Country, Short: true})
		}
		return Message{Text: card.Title, Cards: []Card{card}}, true
	}
	return Message{}, false
}

func bullets(items []string) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(it)
	}
	return b.String()
}
