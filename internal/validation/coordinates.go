package validation

import (
	"math"
	"strconv"
	"strings"
)

// Inclusive coordinate bounds in degrees.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// InvalidCoordinatesMessage is shown instead of issuing a request when the form is invalid.
const InvalidCoordinatesMessage = "Please enter a valid latitude (-90 to 90) and longitude (-180 to 180)."

// Coordinates is a parsed, range-checked latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Result classifies a pair of raw text inputs. It carries no memory of prior inputs.
type Result struct {
	LatValid bool
	LonValid bool
	lat      float64
	lon      float64
}

// FormValid reports whether both fields are valid.
func (r Result) FormValid() bool {
	return r.LatValid && r.LonValid
}

// Coordinates returns the parsed pair when the form is valid.
func (r Result) Coordinates() (Coordinates, bool) {
	if !r.FormValid() {
		return Coordinates{}, false
	}
	return Coordinates{Lat: r.lat, Lon: r.lon}, true
}

// ValidateCoordinates parses both inputs and checks their ranges. Parse failures
// are reported as invalid fields, never as errors.
func ValidateCoordinates(lat, lon string) Result {
	latV, latOK := parseInRange(lat, MinLatitude, MaxLatitude)
	lonV, lonOK := parseInRange(lon, MinLongitude, MaxLongitude)
	return Result{LatValid: latOK, LonValid: lonOK, lat: latV, lon: lonV}
}

// IsLatValid reports whether s parses as a latitude in [-90, 90].
func IsLatValid(s string) bool {
	_, ok := parseInRange(s, MinLatitude, MaxLatitude)
	return ok
}

// IsLonValid reports whether s parses as a longitude in [-180, 180].
func IsLonValid(s string) bool {
	_, ok := parseInRange(s, MinLongitude, MaxLongitude)
	return ok
}

func parseInRange(s string, lo, hi float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < lo || v > hi {
		return 0, false
	}
	return v, true
}
