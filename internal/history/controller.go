package history

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-console/internal/client"
	"github.com/kjstillabower/weather-console/internal/models"
	"github.com/kjstillabower/weather-console/internal/orchestrator"
)

// Default window used on mount.
const (
	DefaultLimit = 10
	DefaultSkip  = 0
)

// Fallback messages when a failed call carries no backend message.
const (
	EntriesFallbackMessage = "Failed to fetch history."
	CountFallbackMessage   = "Failed to fetch count."
)

// Source is the slice of the backend the history view needs.
type Source interface {
	ListHistory(ctx context.Context, limit, skip int) ([]models.HistoryEntry, error)
	CountHistory(ctx context.Context) (int, error)
}

// Window is the requested page. Values are free-form: nothing is clamped client-side.
type Window struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// Snapshot is what the history view displays. Displayed is always
// Filter(Entries, Search). Total comes from a separate query and is never
// reconciled with len(Entries).
type Snapshot struct {
	Window        Window                `json:"window"`
	Search        string                `json:"search"`
	Loading       bool                  `json:"loading"`
	EntriesStatus string                `json:"entriesStatus"`
	EntriesError  string                `json:"entriesError,omitempty"`
	CountStatus   string                `json:"countStatus"`
	CountError    string                `json:"countError,omitempty"`
	Total         *int                  `json:"total"`
	Entries       []models.HistoryEntry `json:"entries"`
	Displayed     []models.HistoryEntry `json:"displayed"`
}

// Controller owns the history view. Entries and count are independent requests that
// share one loading gate, so a fetch and a count never overlap. A failed call keeps
// the previously loaded list and total visible.
type Controller struct {
	source  Source
	logger  *zap.Logger
	entries *orchestrator.Request[[]models.HistoryEntry]
	count   *orchestrator.Request[int]

	mu      sync.Mutex
	window  Window
	search  string
	mounted bool
}

// NewController returns a history view with the default window and no data.
func NewController(source Source, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := orchestrator.NewGate()
	return &Controller{
		source: source,
		logger: logger,
		window: Window{Limit: DefaultLimit, Skip: DefaultSkip},
		entries: orchestrator.New[[]models.HistoryEntry](orchestrator.Options{
			Name:            "history_entries",
			FallbackMessage: EntriesFallbackMessage,
			Message:         client.MessageFrom,
			Policy:          orchestrator.RetainOnFailure,
			Gate:            gate,
			Logger:          logger,
		}),
		count: orchestrator.New[int](orchestrator.Options{
			Name:            "history_count",
			FallbackMessage: CountFallbackMessage,
			Message:         client.MessageFrom,
			Policy:          orchestrator.RetainOnFailure,
			Gate:            gate,
			Logger:          logger,
		}),
	}
}

// Mount performs the initial entries fetch with the current window. Only the first
// call fetches; later calls return the current snapshot. The count is not fetched.
func (c *Controller) Mount(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return c.Snapshot(), nil
	}
	c.mounted = true
	c.mu.Unlock()

	c.logger.Debug("history view mounted")
	return c.FetchEntries(ctx)
}

// SetWindow replaces the pagination parameters without fetching.
func (c *Controller) SetWindow(limit, skip int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = Window{Limit: limit, Skip: skip}
}

// SetSearch replaces the search term. It never triggers a fetch.
func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search = term
}

// FetchEntries loads the current window, most recent first. Returns
// orchestrator.ErrInFlight while a fetch or count is loading.
func (c *Controller) FetchEntries(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	w := c.window
	c.mu.Unlock()

	_, err := c.entries.Do(ctx, func(ctx context.Context) ([]models.HistoryEntry, error) {
		return c.source.ListHistory(ctx, w.Limit, w.Skip)
	})
	return c.Snapshot(), err
}

// FetchCount loads the collection total. Entries are left untouched.
func (c *Controller) FetchCount(ctx context.Context) (Snapshot, error) {
	_, err := c.count.Do(ctx, c.source.CountHistory)
	return c.Snapshot(), err
}

// Loading reports whether a fetch or count is in flight.
func (c *Controller) Loading() bool {
	return c.entries.Loading()
}

// Snapshot returns the current view state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	w, term := c.window, c.search
	c.mu.Unlock()

	entries, _ := c.entries.Latest()
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	entriesState := c.entries.State()
	countState := c.count.State()

	snap := Snapshot{
		Window:        w,
		Search:        term,
		Loading:       c.entries.Loading(),
		EntriesStatus: entriesState.Status().String(),
		EntriesError:  entriesState.Message(),
		CountStatus:   countState.Status().String(),
		CountError:    countState.Message(),
		Entries:       entries,
		Displayed:     Filter(entries, term),
	}
	if total, ok := c.count.Latest(); ok {
		snap.Total = &total
	}
	return snap
}
