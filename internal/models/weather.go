package models

// Source identifies where the backend obtained a weather reading.
type Source string

const (
	SourceOpenWeatherMap Source = "openweathermap"
	SourceCache          Source = "cache"
)

// WeatherPayload is the backend answer to one coordinate query.
type WeatherPayload struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Conditions    string  `json:"conditions"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection string  `json:"windDirection"`
	Source        Source  `json:"source"`
}

// HistoryEntry is one logged query as recorded by the backend. Entries are
// read-only snapshots; the console only ever replaces the whole list.
type HistoryEntry struct {
	ID            string  `json:"_id"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Conditions    string  `json:"conditions"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection string  `json:"windDirection"`
	Source        Source  `json:"source"`
	RequestedAt   string  `json:"requestedAt"`
}

// HistoryCount is the count-mode response of the history resource.
type HistoryCount struct {
	Total int `json:"total"`
}
