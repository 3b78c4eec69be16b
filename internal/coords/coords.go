// Package coords turns free-form coordinate text into latitude/longitude
// components. Parsing is permissive: separators are normalized but input is
// never rejected, since numeric interpretation happens downstream.
package coords

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// InRange reports whether the coordinate lies within ±90 latitude and ±180
// longitude. Callers use it for display hints only.
func (c Coordinate) InRange() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// String formats the coordinate as "lat, lng" with four decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lng)
}

// Pair holds the raw text components produced by Split.
type Pair struct {
	Lat     string
	Lng     string
	Cleaned string // input with parentheses removed and whitespace trimmed
}

// Query is what gets sent to coordinate resolution: either the split
// components, or the whole cleaned string as Lat with an empty Lng.
type Query struct {
	Lat     string `json:"lat"`
	Lng     string `json:"lng"`
	Cleaned string `json:"cleaned"`
	Split   bool   `json:"split"`
}

// Clean removes every parenthesis character and trims surrounding whitespace.
func Clean(raw string) string {
	s := strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return -1
		}
		return r
	}, raw)
	return strings.TrimSpace(s)
}

// Split separates cleaned input into two components. A comma wins over
// whitespace; only the first comma splits. When neither separator is present
// the second return value is false and Pair carries only Cleaned.
func Split(raw string) (Pair, bool) {
	s := Clean(raw)
	p := Pair{Cleaned: s}

	if i := strings.IndexByte(s, ','); i >= 0 {
		p.Lat = strings.TrimSpace(s[:i])
		p.Lng = strings.TrimSpace(s[i+1:])
		return p, true
	}

	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		fields := strings.Fields(s)
		p.Lat = fields[0]
		if len(fields) > 1 {
			p.Lng = fields[1]
		}
		return p, true
	}

	return p, false
}

// Resolve applies the fallback policy on top of Split: an empty first
// component is replaced by the whole cleaned string.
func Resolve(raw string) Query {
	p, ok := Split(raw)
	q := Query{Lat: p.Lat, Lng: p.Lng, Cleaned: p.Cleaned, Split: ok}
	if q.Lat == "" {
		q.Lat = p.Cleaned
	}
	return q
}

// ParseCoordinate interprets both components as decimal degrees.
func ParseCoordinate(lat, lng string) (Coordinate, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coords: latitude %q: %w", lat, err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("coords: longitude %q: %w", lng, err)
	}
	return Coordinate{Lat: la, Lng: ln}, nil
}
