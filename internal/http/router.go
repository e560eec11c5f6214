package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-console/internal/observability"
)

// RouterConfig carries the middleware settings for the /views routes.
type RouterConfig struct {
	Logger *zap.Logger
	// Limiter guards /views; nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter mounts health, metrics and the view endpoints.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	// mux skips router middleware for unmatched requests; these still get a request id.
	router.NotFoundHandler = CorrelationIDMiddleware(logger)(http.HandlerFunc(NotFound))
	router.MethodNotAllowedHandler = CorrelationIDMiddleware(logger)(http.HandlerFunc(MethodNotAllowed))
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// View routes sit on the root router so a wrong method on a known path gets 405.
	views := func(hf http.HandlerFunc) http.Handler {
		var handler http.Handler = hf
		if cfg.RequestTimeout > 0 {
			handler = TimeoutMiddleware(cfg.RequestTimeout)(handler)
		}
		return RateLimitMiddleware(cfg.Limiter)(handler)
	}
	router.Handle("/views/weather", views(h.GetWeatherView)).Methods(http.MethodGet)
	router.Handle("/views/weather/input", views(h.PutWeatherInput)).Methods(http.MethodPut)
	router.Handle("/views/weather/submit", views(h.PostWeatherSubmit)).Methods(http.MethodPost)
	router.Handle("/views/weather/reset", views(h.PostWeatherReset)).Methods(http.MethodPost)
	router.Handle("/views/history", views(h.GetHistoryView)).Methods(http.MethodGet)
	router.Handle("/views/history/window", views(h.PutHistoryWindow)).Methods(http.MethodPut)
	router.Handle("/views/history/search", views(h.PutHistorySearch)).Methods(http.MethodPut)
	router.Handle("/views/history/fetch", views(h.PostHistoryFetch)).Methods(http.MethodPost)
	router.Handle("/views/history/count", views(h.PostHistoryCount)).Methods(http.MethodPost)

	return router
}
