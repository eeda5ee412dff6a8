package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/monitoring"
	"github.com/aluiziolira/go-scrape-templates/notify"
)

// Exporter serializes a result set to CSV and hands it to a Downloader.
type Exporter struct {
	downloader Downloader
	notifier   notify.Notifier
	metrics    *monitoring.Metrics
	now        func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the clock used for file names and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// WithMetrics records exported records on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// NewExporter builds an exporter delivering files through d and notices
// through n.
func NewExporter(d Downloader, n notify.Notifier, opts ...Option) *Exporter {
	e := &Exporter{
		downloader: d,
		notifier:   n,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes set as a CSV download. An empty set only produces the
// no-data warning and an empty-status result.
func (e *Exporter) Export(ctx context.Context, set models.ResultSet) (*models.ExportResult, error) {
	started := e.now()
	result := &models.ExportResult{StartedAt: started}

	if len(set) == 0 {
		e.notifier.Warning(notify.MsgNoData)
		result.Status = models.StatusEmpty
		result.Duration = e.now().Sub(started)
		return result, nil
	}

	file := File{
		Name: Filename(started),
		MIME: MIMEType,
		Body: EncodeCSV(set),
	}
	location, err := e.downloader.Download(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", file.Name, err)
	}

	result.Status = models.StatusExported
	result.Filename = file.Name
	result.Location = location
	result.Count = len(set)
	result.Bytes = len(file.Body)
	result.Duration = e.now().Sub(started)

	e.metrics.ObserveRecords(set)
	e.notifier.Success(notify.Exported(len(set)))
	return result, nil
}
