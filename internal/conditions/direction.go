package conditions

import (
	"math"
	"strconv"
	"strings"
)

// compassPoints are the eight directions a reading may carry, clockwise from north.
var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// secondaryPoints folds the sixteen-point refinements onto their intercardinal neighbour.
var secondaryPoints = map[string]string{
	"NNE": "NE", "ENE": "NE",
	"ESE": "SE", "SSE": "SE",
	"SSW": "SW", "WSW": "SW",
	"WNW": "NW", "NNW": "NW",
}

// prefixOrder is the order tokens are matched by prefix when nothing else fits.
// Two-letter points come first so "NE..." is not swallowed by "N".
var prefixOrder = [8]string{"NE", "NW", "SE", "SW", "N", "E", "S", "W"}

// NormalizeDirection maps a raw direction token to one of the eight compass points.
// Numeric tokens are read as degrees, wrapped into [0, 360) and rounded to the
// nearest 45°. Unknown tokens default to "N".
func NormalizeDirection(raw string) string {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return "N"
	}

	for _, p := range compassPoints {
		if token == p {
			return p
		}
	}
	if p, ok := secondaryPoints[token]; ok {
		return p
	}
	if deg, err := strconv.ParseFloat(token, 64); err == nil && !math.IsNaN(deg) && !math.IsInf(deg, 0) {
		return DirectionFromDegrees(deg)
	}
	for _, p := range prefixOrder {
		if strings.HasPrefix(token, p) {
			return p
		}
	}
	return "N"
}

// DirectionFromDegrees converts a bearing in degrees to the nearest compass point.
func DirectionFromDegrees(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := RoundHalfUp(deg/45) % len(compassPoints)
	return compassPoints[idx]
}
