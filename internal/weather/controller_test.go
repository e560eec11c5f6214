package weather

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-console/internal/client"
	"github.com/kjstillabower/weather-console/internal/models"
	"github.com/kjstillabower/weather-console/internal/orchestrator"
	"github.com/kjstillabower/weather-console/internal/validation"
)

type stubFetcher struct {
	calls   atomic.Int32
	payload models.WeatherPayload
	err     error
	gotLat  float64
	gotLon  float64
	block   chan struct{}
	started chan struct{}
}

func (s *stubFetcher) GetWeather(ctx context.Context, coords validation.Coordinates) (models.WeatherPayload, error) {
	s.calls.Add(1)
	s.gotLat, s.gotLon = coords.Lat, coords.Lon
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
	}
	return s.payload, s.err
}

var riyadh = models.WeatherPayload{
	Temperature:   30,
	Humidity:      20,
	Conditions:    "clear",
	WindSpeed:     3,
	WindDirection: "NE",
	Source:        models.SourceCache,
}

func TestController_InitialSnapshot(t *testing.T) {
	c := NewController(&stubFetcher{}, nil)
	snap := c.Snapshot()
	require.Equal(t, "idle", snap.Status)
	require.False(t, snap.FormValid)
	require.Nil(t, snap.Weather)
	require.Empty(t, snap.Error)
}

func TestController_SubmitSuccess(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)
	c.SetInput("24.7136", "46.6753")

	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "success", snap.Status)
	require.NotNil(t, snap.Weather)
	require.Equal(t, riyadh, *snap.Weather)
	require.Equal(t, models.SourceCache, snap.Weather.Source)
	require.Empty(t, snap.Error)
	require.Equal(t, 24.7136, f.gotLat)
	require.Equal(t, 46.6753, f.gotLon)
}

func TestController_InvalidSubmitNeverCallsBackend(t *testing.T) {
	tests := []struct {
		name, lat, lon string
	}{
		{"latitude out of range", "200", "10"},
		{"longitude out of range", "10", "-181"},
		{"empty", "", ""},
		{"non numeric", "north", "east"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFetcher{payload: riyadh}
			c := NewController(f, nil)
			c.SetInput(tt.lat, tt.lon)

			snap, err := c.Submit(context.Background())
			require.NoError(t, err)
			require.Equal(t, int32(0), f.calls.Load())
			require.Equal(t, "error", snap.Status)
			require.Equal(t, validation.InvalidCoordinatesMessage, snap.Error)
			require.False(t, snap.FormValid)
			require.Nil(t, snap.Weather)
		})
	}
}

// TestController_InvalidSubmitClearsPriorResult covers a valid submission followed by an invalid one.
func TestController_InvalidSubmitClearsPriorResult(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)
	c.SetInput("1", "2")
	_, _ = c.Submit(context.Background())

	c.SetInput("200", "2")
	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap.Weather)
	require.Equal(t, int32(1), f.calls.Load())
}

func TestController_FailedFetchClearsResult(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)
	c.SetInput("1", "2")
	_, _ = c.Submit(context.Background())

	f.err = &client.APIError{Endpoint: client.EndpointWeather, StatusCode: 401, Message: "Unauthorized: invalid token"}
	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "error", snap.Status)
	require.Equal(t, "Unauthorized: invalid token", snap.Error)
	require.Nil(t, snap.Weather)
}

func TestController_FailedFetchFallbackMessage(t *testing.T) {
	f := &stubFetcher{err: errors.New("dial tcp: connection refused")}
	c := NewController(f, nil)
	c.SetInput("1", "2")

	snap, _ := c.Submit(context.Background())
	require.Equal(t, FallbackMessage, snap.Error)
}

// TestController_SubmitWhileLoadingIsRefused covers the disabled submit control.
func TestController_SubmitWhileLoadingIsRefused(t *testing.T) {
	f := &stubFetcher{payload: riyadh, block: make(chan struct{}), started: make(chan struct{})}
	c := NewController(f, nil)
	c.SetInput("1", "2")

	done := make(chan Snapshot)
	go func() {
		snap, _ := c.Submit(context.Background())
		done <- snap
	}()
	<-f.started

	require.True(t, c.Loading())
	snap, err := c.Submit(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrInFlight)
	require.True(t, snap.Loading)
	require.Nil(t, snap.Weather)

	// An invalid form is refused the same way while loading.
	c.SetInput("999", "2")
	_, err = c.Submit(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrInFlight)

	close(f.block)
	final := <-done
	require.Equal(t, "success", final.Status)
	require.Equal(t, int32(1), f.calls.Load())
	require.False(t, c.Loading())
}

func TestController_ValidityTracksInput(t *testing.T) {
	c := NewController(&stubFetcher{}, nil)
	c.SetInput("45", "")
	v := c.Validate()
	require.True(t, v.LatValid)
	require.False(t, v.LonValid)
	require.False(t, v.FormValid())

	c.SetInput("45", "90")
	require.True(t, c.Validate().FormValid())
	require.True(t, c.Snapshot().FormValid)
}

// TestController_PriorResultHiddenWhileResubmitting covers a successful result followed by a
// second valid submission: nothing is shown until the new outcome lands.
func TestController_PriorResultHiddenWhileResubmitting(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)
	c.SetInput("24.7136", "46.6753")
	snap, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Weather)

	f.block = make(chan struct{})
	f.started = make(chan struct{})
	done := make(chan Snapshot)
	go func() {
		snap, _ := c.Submit(context.Background())
		done <- snap
	}()
	<-f.started

	mid := c.Snapshot()
	require.Equal(t, "loading", mid.Status)
	require.True(t, mid.Loading)
	require.Nil(t, mid.Weather)
	require.Empty(t, mid.Error)

	close(f.block)
	final := <-done
	require.Equal(t, "success", final.Status)
	require.NotNil(t, final.Weather)
}

// TestController_SubmitInputRefusedKeepsInputs verifies a refused submission never overwrites
// the inputs of the call in flight.
func TestController_SubmitInputRefusedKeepsInputs(t *testing.T) {
	f := &stubFetcher{payload: riyadh, block: make(chan struct{}), started: make(chan struct{})}
	c := NewController(f, nil)

	done := make(chan struct{})
	go func() {
		_, _ = c.SubmitInput(context.Background(), "24.7136", "46.6753")
		close(done)
	}()
	<-f.started

	snap, err := c.SubmitInput(context.Background(), "1", "2")
	require.ErrorIs(t, err, orchestrator.ErrInFlight)
	require.Equal(t, "24.7136", snap.Lat)
	require.Equal(t, "46.6753", snap.Lon)

	close(f.block)
	<-done
	require.Equal(t, 24.7136, f.gotLat)
	require.Equal(t, "24.7136", c.Snapshot().Lat)
}

func TestController_SubmitInputSetsInputs(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)

	snap, err := c.SubmitInput(context.Background(), "200", "2")
	require.NoError(t, err)
	require.Equal(t, "200", snap.Lat)
	require.Equal(t, "error", snap.Status)
	require.Equal(t, int32(0), f.calls.Load())
}

func TestController_Reset(t *testing.T) {
	f := &stubFetcher{payload: riyadh}
	c := NewController(f, nil)
	_, _ = c.SubmitInput(context.Background(), "1", "2")

	snap, err := c.Reset()
	require.NoError(t, err)
	require.Equal(t, "idle", snap.Status)
	require.Nil(t, snap.Weather)
	require.Equal(t, "1", snap.Lat)
}
