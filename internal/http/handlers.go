package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-console/internal/client"
	"github.com/kjstillabower/weather-console/internal/history"
	"github.com/kjstillabower/weather-console/internal/lifecycle"
	"github.com/kjstillabower/weather-console/internal/observability"
	"github.com/kjstillabower/weather-console/internal/orchestrator"
	"github.com/kjstillabower/weather-console/internal/traffic"
	"github.com/kjstillabower/weather-console/internal/weather"
)

// maxBodyBytes bounds console request bodies. Inputs are two short strings or two integers.
const maxBodyBytes = 16 << 10

var bodyValidator = validator.New()

// WeatherView is the weather controller surface the handlers drive.
type WeatherView interface {
	SetInput(lat, lon string)
	Submit(ctx context.Context) (weather.Snapshot, error)
	SubmitInput(ctx context.Context, lat, lon string) (weather.Snapshot, error)
	Reset() (weather.Snapshot, error)
	Loading() bool
	Snapshot() weather.Snapshot
}

// HistoryView is the history controller surface the handlers drive.
type HistoryView interface {
	SetWindow(limit, skip int)
	SetSearch(term string)
	FetchEntries(ctx context.Context) (history.Snapshot, error)
	FetchCount(ctx context.Context) (history.Snapshot, error)
	Loading() bool
	Snapshot() history.Snapshot
}

// HealthConfig holds optional dependency checks for the health handler.
type HealthConfig struct {
	// CredentialsPing, when set, is called to check credential store reachability.
	// Used when the backend is memcached.
	CredentialsPing func() error
	// BackendWindow and BackendErrorPct classify recent backend calls. The backend check is
	// informational: views surface backend failures, so the console itself stays healthy.
	BackendWindow   time.Duration
	BackendErrorPct int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherView
	history          HistoryView
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weatherView WeatherView, historyView HistoryView, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weatherView,
		history:      historyView,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type weatherInputBody struct {
	Lat *string `json:"lat" validate:"required"`
	Lon *string `json:"lon" validate:"required"`
}

type windowBody struct {
	Limit *int `json:"limit" validate:"required"`
	Skip  *int `json:"skip" validate:"required"`
}

type searchBody struct {
	Search *string `json:"search" validate:"required"`
}

// GetWeatherView handles GET /views/weather.
func (h *Handler) GetWeatherView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.weather.Snapshot())
}

// PutWeatherInput handles PUT /views/weather/input. Each call is a keystroke: the raw text
// of both fields is replaced and validity recomputed. The weather state is untouched.
func (h *Handler) PutWeatherInput(w http.ResponseWriter, r *http.Request) {
	var body weatherInputBody
	if !decodeBody(w, r, &body) {
		return
	}
	h.weather.SetInput(*body.Lat, *body.Lon)
	writeJSON(w, http.StatusOK, h.weather.Snapshot())
}

// PostWeatherSubmit handles POST /views/weather/submit. An optional body sets the inputs,
// applied only once the submission is admitted. The response carries the resolved state;
// an invalid form resolves to the Error state with 200.
func (h *Handler) PostWeatherSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.weather.Loading(), "weather") {
		return
	}
	var body weatherInputBody
	present, ok := decodeOptionalBody(w, r, &body)
	if !ok {
		return
	}

	var snap weather.Snapshot
	var err error
	if present {
		snap, err = h.weather.SubmitInput(r.Context(), *body.Lat, *body.Lon)
	} else {
		snap, err = h.weather.Submit(r.Context())
	}
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	observability.LoggerFrom(r.Context(), h.logger).Debug("weather submitted",
		zap.String("status", snap.Status))
	writeJSON(w, http.StatusOK, snap)
}

// PostWeatherReset handles POST /views/weather/reset: the view returns to Idle with no result.
func (h *Handler) PostWeatherReset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.weather.Reset()
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetHistoryView handles GET /views/history. A search query parameter filters the displayed
// list for this response only; PUT /views/history/search changes the stored term.
func (h *Handler) GetHistoryView(w http.ResponseWriter, r *http.Request) {
	snap := h.history.Snapshot()
	if q := r.URL.Query(); q.Has("search") {
		snap.Search = q.Get("search")
		snap.Displayed = history.Filter(snap.Entries, snap.Search)
	}
	writeJSON(w, http.StatusOK, snap)
}

// PutHistoryWindow handles PUT /views/history/window. Values are taken as given.
func (h *Handler) PutHistoryWindow(w http.ResponseWriter, r *http.Request) {
	var body windowBody
	if !decodeBody(w, r, &body) {
		return
	}
	h.history.SetWindow(*body.Limit, *body.Skip)
	writeJSON(w, http.StatusOK, h.history.Snapshot())
}

// PutHistorySearch handles PUT /views/history/search. No backend call is made.
func (h *Handler) PutHistorySearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if !decodeBody(w, r, &body) {
		return
	}
	h.history.SetSearch(*body.Search)
	writeJSON(w, http.StatusOK, h.history.Snapshot())
}

// PostHistoryFetch handles POST /views/history/fetch with the current window.
func (h *Handler) PostHistoryFetch(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.history.Loading(), "history") {
		return
	}
	snap, err := h.history.FetchEntries(r.Context())
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PostHistoryCount handles POST /views/history/count.
func (h *Handler) PostHistoryCount(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, h.history.Loading(), "history") {
		return
	}
	snap, err := h.history.FetchCount(r.Context())
	if err != nil {
		h.writeViewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// admit refuses a submission before any body is read when the console is draining or the
// view already has a call in flight. A request passing here can still lose the race for the
// gate inside the controller, which answers it with orchestrator.ErrInFlight.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, loading bool, view string) bool {
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Console is shutting down")
		return false
	}
	if loading {
		observability.LoggerFrom(r.Context(), h.logger).Debug("submission refused while loading",
			zap.String("view", view))
		writeError(w, r, http.StatusConflict, "REQUEST_IN_FLIGHT", "A request for this view is already in flight")
		return false
	}
	return true
}

// writeViewError maps controller errors to responses. Backend failures never reach here:
// they resolve into the view's Error state.
func (h *Handler) writeViewError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, orchestrator.ErrInFlight) {
		writeError(w, r, http.StatusConflict, "REQUEST_IN_FLIGHT", "A request for this view is already in flight")
		return
	}
	observability.LoggerFrom(r.Context(), h.logger).Error("view operation failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unexpected console error")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{}
	if h.healthConfig != nil && h.healthConfig.CredentialsPing != nil {
		if h.healthConfig.CredentialsPing() == nil {
			checks["credentials"] = "healthy"
		} else {
			checks["credentials"] = "unhealthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.BackendWindow > 0 && h.healthConfig.BackendErrorPct > 0 {
		window, pct := h.healthConfig.BackendWindow, h.healthConfig.BackendErrorPct
		errs, total := traffic.BackendErrorRate(window)
		checks["backend"] = classifyBackend(errs, total, pct)
		for _, endpoint := range []string{client.EndpointWeather, client.EndpointHistory, client.EndpointCount} {
			errs, total := traffic.BackendEndpointErrorRate(endpoint, window)
			checks["backend."+endpoint] = classifyBackend(errs, total, pct)
		}
	}
	resp := map[string]interface{}{
		"status":  result.status,
		"service": "weather-console",
		"version": "dev",
		"checks":  checks,
		"views": map[string]bool{
			"weatherLoading": h.weather.Loading(),
			"historyLoading": h.history.Loading(),
			"historyMounted": lifecycle.IsMounted(),
		},
		"uptime":    lifecycle.Uptime(time.Now()).Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus reports shutting-down while draining, healthy otherwise. Backend
// failures are view outcomes and never make the console unhealthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// classifyBackend reports "degraded" when errs reaches thresholdPct of total, "unknown" when
// no calls were made, "healthy" otherwise.
func classifyBackend(errs, total, thresholdPct int) string {
	if total == 0 {
		return "unknown"
	}
	if errs*100 >= thresholdPct*total {
		return "degraded"
	}
	return "healthy"
}

// NotFound writes the standard error envelope for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No such console endpoint")
}

// MethodNotAllowed writes the standard error envelope for a known path with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed for this endpoint")
}

// decodeBody decodes a required JSON body and validates it. Writes 400 INVALID_BODY and
// returns false on any failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	present, ok := decodeOptionalBody(w, r, dst)
	if ok && !present {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body is required")
		return false
	}
	return ok
}

// decodeOptionalBody is decodeBody for endpoints whose body may be absent. present reports
// whether a body was supplied.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}) (present, ok bool) {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return false, true
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, true
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", bodyErrorMessage(err))
		return false, false
	}
	if err := bodyValidator.Struct(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", bodyErrorMessage(err))
		return false, false
	}
	return true, true
}

func bodyErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s is %s", verrs[0].Field(), verrs[0].Tag())
	}
	return "request body must be valid JSON: " + err.Error()
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
