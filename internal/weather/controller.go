package weather

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-console/internal/client"
	"github.com/kjstillabower/weather-console/internal/models"
	"github.com/kjstillabower/weather-console/internal/orchestrator"
	"github.com/kjstillabower/weather-console/internal/validation"
)

// FallbackMessage is shown when a failed weather call carries no backend message.
const FallbackMessage = "Failed to fetch weather."

// Fetcher is the slice of the backend the weather view needs.
type Fetcher interface {
	GetWeather(ctx context.Context, coords validation.Coordinates) (models.WeatherPayload, error)
}

// Snapshot is what the weather view displays.
type Snapshot struct {
	Lat       string                 `json:"lat"`
	Lon       string                 `json:"lon"`
	LatValid  bool                   `json:"latValid"`
	LonValid  bool                   `json:"lonValid"`
	FormValid bool                   `json:"formValid"`
	Status    string                 `json:"status"`
	Loading   bool                   `json:"loading"`
	Error     string                 `json:"error,omitempty"`
	Weather   *models.WeatherPayload `json:"weather,omitempty"`
}

// Controller owns the weather view: two raw text inputs and one request.
// A failed or rejected submission leaves no weather result visible.
type Controller struct {
	fetcher Fetcher
	req     *orchestrator.Request[models.WeatherPayload]
	logger  *zap.Logger

	mu  sync.Mutex
	lat string
	lon string
}

// NewController returns an idle weather view with empty inputs.
func NewController(fetcher Fetcher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher: fetcher,
		logger:  logger,
		req: orchestrator.New[models.WeatherPayload](orchestrator.Options{
			Name:            "weather",
			FallbackMessage: FallbackMessage,
			Message:         client.MessageFrom,
			Policy:          orchestrator.ClearOnSubmit,
			Logger:          logger,
		}),
	}
}

// SetInput records the raw text of both fields. Validity is recomputed on read.
func (c *Controller) SetInput(lat, lon string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lat = lat
	c.lon = lon
}

// Validate classifies the current inputs.
func (c *Controller) Validate() validation.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return validation.ValidateCoordinates(c.lat, c.lon)
}

// Submit validates the inputs and, if valid, fetches the weather for them. An invalid
// form produces the fixed validation message and no backend call. Returns
// orchestrator.ErrInFlight while a previous submission is loading.
func (c *Controller) Submit(ctx context.Context) (Snapshot, error) {
	return c.submit(ctx, nil)
}

// SubmitInput sets both inputs and submits them. A submission refused with
// orchestrator.ErrInFlight leaves the inputs of the call in flight untouched.
func (c *Controller) SubmitInput(ctx context.Context, lat, lon string) (Snapshot, error) {
	return c.submit(ctx, func() { c.SetInput(lat, lon) })
}

func (c *Controller) submit(ctx context.Context, setInput func()) (Snapshot, error) {
	_, err := c.req.Attempt(ctx, func() (func(context.Context) (models.WeatherPayload, error), string) {
		if setInput != nil {
			setInput()
		}
		result := c.Validate()
		coords, ok := result.Coordinates()
		if !ok {
			c.logger.Debug("weather submission rejected",
				zap.Bool("lat_valid", result.LatValid), zap.Bool("lon_valid", result.LonValid))
			return nil, validation.InvalidCoordinatesMessage
		}
		return func(ctx context.Context) (models.WeatherPayload, error) {
			return c.fetcher.GetWeather(ctx, coords)
		}, ""
	})
	return c.Snapshot(), err
}

// Reset returns the view to Idle and drops any result. Inputs are kept.
func (c *Controller) Reset() (Snapshot, error) {
	err := c.req.Reset()
	return c.Snapshot(), err
}

// Loading reports whether a submission is in flight.
func (c *Controller) Loading() bool {
	return c.req.Loading()
}

// Snapshot returns the current view state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	lat, lon := c.lat, c.lon
	c.mu.Unlock()

	v := validation.ValidateCoordinates(lat, lon)
	st := c.req.State()
	snap := Snapshot{
		Lat:       lat,
		Lon:       lon,
		LatValid:  v.LatValid,
		LonValid:  v.LonValid,
		FormValid: v.FormValid(),
		Status:    st.Status().String(),
		Loading:   c.req.Loading(),
		Error:     st.Message(),
	}
	if payload, ok := st.Data(); ok {
		snap.Weather = &payload
	}
	return snap
}
