// Package popup drives a single export: resolve the active tab, check it
// shows the template gallery, run the extractor inside it and hand the
// records to the exporter.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/monitoring"
	"github.com/aluiziolira/go-scrape-templates/notify"
	"github.com/aluiziolira/go-scrape-templates/parser"
	"github.com/aluiziolira/go-scrape-templates/scraper"
)

// ErrBusy is returned when an export is requested while one is running.
var ErrBusy = errors.New("export already in progress")

// Session resolves the active tab and runs the extractor in it.
type Session interface {
	ActiveTab(ctx context.Context) (models.Tab, error)
	Inject(ctx context.Context, tab models.Tab) ([]models.InjectionResult, error)
}

// Exporter turns a result set into a delivered file.
type Exporter interface {
	Export(ctx context.Context, set models.ResultSet) (*models.ExportResult, error)
}

// Environment describes the active tab as seen before an export.
type Environment struct {
	Tab         models.Tab `json:"tab"`
	Eligible    bool       `json:"eligible"`
	NavigateURL string     `json:"navigate_url,omitempty"`
}

// Controller coordinates exports. At most one export runs at a time.
type Controller struct {
	session     Session
	exporter    Exporter
	notifier    notify.Notifier
	prefix      string
	navigateURL string
	metrics     *monitoring.Metrics
	logger      *slog.Logger
	now         func() time.Time

	busy atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithEligiblePrefix sets the URL fragment a tab must contain to be
// exported from.
func WithEligiblePrefix(prefix string) Option {
	return func(c *Controller) {
		c.prefix = prefix
	}
}

// WithMetrics records export outcomes on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for export logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides the clock used for timings.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController builds a controller exporting from session through exporter.
func NewController(session Session, exporter Exporter, notifier notify.Notifier, opts ...Option) *Controller {
	c := &Controller{
		session:     session,
		exporter:    exporter,
		notifier:    notifier,
		prefix:      config.GalleryURL,
		navigateURL: config.GalleryURL,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Eligible reports whether rawURL belongs to the template gallery.
func Eligible(rawURL, prefix string) bool {
	return strings.Contains(rawURL, prefix)
}

// NavigateURL is the page offered to users on an ineligible tab.
func (c *Controller) NavigateURL() string {
	return c.navigateURL
}

// CheckEnvironment resolves the active tab and reports whether it can be
// exported from.
func (c *Controller) CheckEnvironment(ctx context.Context) (Environment, error) {
	tab, err := c.session.ActiveTab(ctx)
	if err != nil {
		return Environment{}, fmt.Errorf("resolve active tab: %w", err)
	}
	env := Environment{Tab: tab, Eligible: Eligible(tab.URL, c.prefix)}
	if !env.Eligible {
		env.NavigateURL = c.navigateURL
	}
	return env, nil
}

// Export runs one export with the controller's exporter and notifier.
func (c *Controller) Export(ctx context.Context) (*models.ExportResult, error) {
	return c.ExportWith(ctx, c.exporter, c.notifier)
}

// ExportWith runs one export delivering through exporter and notifier.
// An ineligible tab and an empty page are reported through the result
// status, not as errors.
func (c *Controller) ExportWith(ctx context.Context, exporter Exporter, notifier notify.Notifier) (*models.ExportResult, error) {
	if !c.busy.CompareAndSwap(false, true) {
		notifier.Warning(notify.MsgBusy)
		c.metrics.IncExport("busy")
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	id := uuid.NewString()
	logger := c.logger.With(slog.String("export_id", id))
	started := c.now()

	done := notifier.Loading(notify.MsgLoading)
	defer done()

	result, err := c.run(ctx, logger, exporter, notifier)
	if err != nil {
		label := scraper.ErrorTypeLabel(err)
		logger.Error("export failed",
			slog.String("category", label),
			slog.Any("error", err),
		)
		c.metrics.IncError(label)
		c.metrics.IncExport("failed")
		notifier.Error(notify.MsgFetchFailed)
		return nil, err
	}

	result.ID = id
	result.StartedAt = started
	result.Duration = c.now().Sub(started)
	c.metrics.IncExport(string(result.Status))

	logger.Info("export finished",
		slog.String("status", string(result.Status)),
		slog.Int("records", result.Count),
		slog.String("location", result.Location),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (c *Controller) run(ctx context.Context, logger *slog.Logger, exporter Exporter, notifier notify.Notifier) (*models.ExportResult, error) {
	tab, err := c.session.ActiveTab(ctx)
	if err != nil {
		return nil, scraper.ErrInjection{Err: fmt.Errorf("resolve active tab: %w", err)}
	}
	logger = logger.With(slog.String("tab_url", tab.URL))

	if !Eligible(tab.URL, c.prefix) {
		logger.Warn("active tab is not the template gallery")
		notifier.Warning(notify.Ineligible(c.navigateURL))
		return &models.ExportResult{Status: models.StatusIneligible, Tab: tab}, nil
	}

	start := c.now()
	results, err := c.session.Inject(ctx, tab)
	c.metrics.ObserveInjection(c.now().Sub(start))
	if err != nil {
		return nil, scraper.ErrInjection{Err: err}
	}

	set, err := firstResult(results)
	if err != nil {
		return nil, scraper.ErrInjection{Err: scraper.ErrDecode{Err: err}}
	}
	logger.Debug("records extracted",
		slog.Int("frames", len(results)),
		slog.Int("records", len(set)),
	)
	for _, issue := range parser.ValidateResultSet(set) {
		logger.Warn("record schema mismatch", slog.String("issue", issue.String()))
	}

	result, err := exporter.Export(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}
	result.Tab = tab
	return result, nil
}

// firstResult decodes the main frame's result. No result at all is the
// same as an empty page.
func firstResult(results []models.InjectionResult) (models.ResultSet, error) {
	if len(results) == 0 {
		return nil, nil
	}
	return models.DecodeRecords(results[0].Result)
}
