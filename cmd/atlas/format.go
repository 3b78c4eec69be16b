package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zulandar/atlas/internal/transcript"
)

// speaker returns the display name for an entry's role.
func speaker(r transcript.Role) string {
	if r == transcript.RoleUser {
		return "🙋 You"
	}
	return "🧭 Atlas"
}

// writeEntry renders one conversation entry for the terminal.
func writeEntry(w io.Writer, e transcript.Entry) {
	switch e.Kind {
	case transcript.KindText:
		fmt.Fprintf(w, "%s: %s\n", speaker(e.Role), e.Text)
	case transcript.KindImage:
		fmt.Fprintf(w, "%s: 📷 [photo]\n", speaker(e.Role))
	case transcript.KindGuess:
		g, ok := e.Guess()
		if !ok {
			return
		}
		fmt.Fprintf(w, "%s: My guess is %s (%.0f%% sure)\n", speaker(e.Role), g.FinalGuess, g.ConfidenceScore)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, p := range g.Possibilities {
			fmt.Fprintf(tw, "    %s\t%.0f%%\n", p.Country, p.Confidence)
		}
		tw.Flush()
		for _, c := range g.Clues {
			fmt.Fprintf(w, "    • %s\n", c)
		}
		if g.Coordinates != nil {
			fmt.Fprintf(w, "    📍 %s\n", g.Coordinates)
		}
	case transcript.KindResult:
		r, ok := e.Reveal()
		if !ok {
			return
		}
		mark := "❌ Not quite"
		if r.IsCorrect {
			mark = "✅ Correct"
		}
		fmt.Fprintf(w, "%s: %s: %s\n", speaker(e.Role), mark, r.LocationName)
		for _, f := range r.FunFacts {
			fmt.Fprintf(w, "    • %s\n", f)
		}
		if r.LearningNote != "" {
			fmt.Fprintf(w, "    💡 %s\n", r.LearningNote)
		}
	case transcript.KindFlightDestination:
		d, ok := e.Flight()
		if !ok {
			return
		}
		fmt.Fprintf(w, "%s: ✈️ Arrived: %s\n", speaker(e.Role), d.Place())
		if d.Description != "" {
			fmt.Fprintf(w, "    %s\n", d.Description)
		}
		if d.ImageURL != "" || d.Image != nil {
			fmt.Fprintln(w, "    🖼️ postcard attached")
		}
	}
}
