package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON unmarshals model output into v. Models occasionally wrap JSON in
// prose or code fences, so it tries in order: the whole text, the span from
// the first "{" to the last "}", then the contents of a fenced code block.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), v); err == nil {
				return nil
			}
		}
	}

	for _, fence := range []string{"```json", "```"} {
		idx := strings.Index(text, fence)
		if idx < 0 {
			continue
		}
		after := text[idx+len(fence):]
		if end := strings.Index(after, "```"); end >= 0 {
			if err := json.Unmarshal([]byte(strings.TrimSpace(after[:end])), v); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("malformed structured output: %.200s", text)
}

// validateGuess rejects analyses that decoded but carry no guess.
func validateGuess(g *GuessAnalysis) error {
	if strings.TrimSpace(g.FinalGuess) == "" {
		return fmt.Errorf("malformed structured output: missing finalGuess")
	}
	return nil
}

func validateReveal(r *RevealResult) error {
	if strings.TrimSpace(r.LocationName) == "" {
		return fmt.Errorf("malformed structured output: missing locationName")
	}
	return nil
}

func validateDestination(d *FlightDestination) error {
	if strings.TrimSpace(d.LocationName) == "" && strings.TrimSpace(d.Country) == "" {
		return fmt.Errorf("malformed structured output: missing locationName and country")
	}
	return nil
}
