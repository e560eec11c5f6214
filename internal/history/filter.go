package history

import (
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-console/internal/models"
)

// Filter returns the entries whose conditions (case-insensitive), latitude, longitude
// or source contains term. An empty term returns entries unchanged. Filter never
// touches the network or the window.
func Filter(entries []models.HistoryEntry, term string) []models.HistoryEntry {
	if term == "" {
		return entries
	}
	needle := strings.ToLower(term)
	out := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if matches(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e models.HistoryEntry, needle string) bool {
	return strings.Contains(strings.ToLower(e.Conditions), needle) ||
		strings.Contains(formatCoordinate(e.Lat), needle) ||
		strings.Contains(formatCoordinate(e.Lon), needle) ||
		strings.Contains(string(e.Source), needle)
}

// formatCoordinate renders v the way the browser stringifies numbers: shortest decimal form
// (1 -> "1", 24.7136 -> "24.7136"), exponent form below 1e-6 or from 1e21 ("5e-7"), and
// negative zero as "0".
func formatCoordinate(v float64) string {
	if v == 0 {
		return "0"
	}
	if abs := math.Abs(v); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(v, 'e', -1, 64), "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}
