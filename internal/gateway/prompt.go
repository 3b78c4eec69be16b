package gateway

import "fmt"

// systemInstruction sets the host persona for every text call.
const systemInstruction = `You are "Captain Atlas", a worldly, adventurous, and confident geography game host and pilot.
Your goal is to guess where in the world a photo was taken, OR describe a location based on coordinates.
Your personality is energetic, encouraging, and full of wanderlust.

Style Guide:
- Use travel-themed emojis naturally 🌍 ✈️ 📸 🗺️
- Be dramatic and enthusiastic about the world's beauty.
- Keep ALL descriptions and commentary SHORT, PUNCHY, and CONCISE.
- If you are right, celebrate your expertise!
- If you are wrong, be genuinely fascinated by the new discovery and explain what tricked you.`

const analyzePrompt = `STEP 1 - FIRST GUESS:
Look at this image.
1. List 3 possible countries with confidence % for each.
2. List visual clues (VERY SHORT).
3. Make your final guess.
4. Estimate the specific latitude and longitude coordinates of this location.
5. Provide a short, punchy commentary.

Output strictly in JSON format matching the schema.`

func revealPrompt(userLocation string) string {
	return fmt.Sprintf(`STEP 3 - AFTER USER REVEALS:
The user says this place is: %q.

1. Evaluate: Does this location match the visual evidence in the image?
2. React: (Short and fun)
3. Provide:
   - The canonical name of the location.
   - 2-3 short fun facts.
   - A concise learning note.

Output strictly in JSON format matching the schema.`, userLocation)
}

func flightPrompt(lat, lng string) string {
	return fmt.Sprintf(`FLIGHT MODE INITIATED:
We are flying to coordinates: %s, %s.

1. Identify exactly what is at this location.
2. Write a VERY short description (max 15 words).
3. Write a short pilot announcement.

Output strictly in JSON format matching the schema.`, lat, lng)
}

func destinationImagePrompt(d *FlightDestination) string {
	return fmt.Sprintf("A stunning, realistic, high-quality travel photograph of %s, %s, %s. "+
		"The image should look like a professional National Geographic shot.",
		d.LocationName, d.City, d.Country)
}

// Per-call sampling temperatures.
const (
	analyzeTemperature = 0.7
	revealTemperature  = 0.8
	flightTemperature  = 0.7
)

// destinationAspectRatio is the aspect ratio requested for synthesized images.
const destinationAspectRatio = "4:3"

// schema is a Gemini response schema node.
type schema map[string]any

func str(desc string) schema {
	s := schema{"type": "STRING"}
	if desc != "" {
		s["description"] = desc
	}
	return s
}

func num(desc string) schema {
	s := schema{"type": "NUMBER"}
	if desc != "" {
		s["description"] = desc
	}
	return s
}

func strArray(desc string) schema {
	return schema{"type": "ARRAY", "items": schema{"type": "STRING"}, "description": desc}
}

var guessSchema = schema{
	"type": "OBJECT",
	"properties": schema{
		"possibilities": schema{
			"type": "ARRAY",
			"items": schema{
				"type": "OBJECT",
				"properties": schema{
					"country":    str(""),
					"confidence": num("Percentage as a number 0-100"),
				},
				"required": []string{"country", "confidence"},
			},
		},
		"clues":           strArray("Short visual clues (max 3-4 words each)"),
		"finalGuess":      str(""),
		"hostCommentary":  str("Very short, concise analysis (max 20 words)"),
		"confidenceScore": num(""),
		"coordinates": schema{
			"type": "OBJECT",
			"properties": schema{
				"lat": num(""),
				"lng": num(""),
			},
			"required":    []string{"lat", "lng"},
			"description": "Estimated latitude and longitude of the final guess location.",
		},
	},
	"required": []string{"possibilities", "clues", "finalGuess", "hostCommentary", "confidenceScore", "coordinates"},
}

var revealSchema = schema{
	"type": "OBJECT",
	"properties": schema{
		"isCorrect": schema{
			"type":        "BOOLEAN",
			"description": "True if the user's location matches your visual analysis/final guess.",
		},
		"locationName": str(""),
		"hostReaction": str("Short reaction"),
		"funFacts":     strArray("Short fun facts"),
		"learningNote": str("Concise learning note"),
	},
	"required": []string{"isCorrect", "locationName", "hostReaction", "funFacts"},
}

var flightSchema = schema{
	"type": "OBJECT",
	"properties": schema{
		"locationName":      str("The specific name of the place/landmark"),
		"city":              str(""),
		"country":           str(""),
		"description":       str("A very short, engaging description (max 15 words)."),
		"pilotAnnouncement": str("Short arrival announcement."),
	},
	"required": []string{"locationName", "city", "country", "description", "pilotAnnouncement"},
}
