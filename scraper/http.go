package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/parser"
)

// mainFrame is the frame id reported for sessions without real frames.
const mainFrame = "main"

// HTTPSession fetches the target page over HTTP and runs the extractor on
// the served document. Pages that render their cards client-side need a
// BrowserSession instead.
type HTTPSession struct {
	cfg       *config.Config
	transport http.RoundTripper
}

// NewHTTPSession builds an HTTP session for cfg.TargetURL.
func NewHTTPSession(cfg *config.Config) (*HTTPSession, error) {
	parsed, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("target url must include a host")
	}

	return &HTTPSession{
		cfg:       cfg,
		transport: newTransport(cfg.Timeout),
	}, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// ActiveTab reports the configured target as the only tab.
func (s *HTTPSession) ActiveTab(context.Context) (models.Tab, error) {
	return models.Tab{ID: mainFrame, URL: s.cfg.TargetURL}, nil
}

// Inject fetches tab.URL and extracts its cards. The result is absent when
// the response carries no HTML document.
func (s *HTTPSession) Inject(ctx context.Context, tab models.Tab) ([]models.InjectionResult, error) {
	collector := colly.NewCollector(colly.UserAgent(s.cfg.UserAgent))
	collector.SetRequestTimeout(s.cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(contextTransport{ctx: ctx, base: s.transport})

	var (
		results  []models.InjectionResult
		fetchErr error
		encErr   error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	collector.OnResponse(func(r *colly.Response) {
		attrs := []any{
			slog.Int("status", r.StatusCode),
			slog.String("url", r.Request.URL.String()),
		}
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))
		}
		slog.Debug("page fetched", attrs...)
	})

	collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = classifyError(err, statusCode)
	})

	collector.OnHTML("html", func(e *colly.HTMLElement) {
		records := parser.Extract(e.DOM)
		raw, err := json.Marshal(records)
		if err != nil {
			encErr = fmt.Errorf("encode records: %w", err)
			return
		}
		results = append(results, models.InjectionResult{FrameID: mainFrame, Result: raw})
	})

	if err := collector.Visit(tab.URL); err != nil && fetchErr == nil {
		fetchErr = classifyError(err, 0)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", tab.URL, fetchErr)
	}
	if encErr != nil {
		return nil, encErr
	}
	return results, nil
}

// contextTransport binds every request to ctx so cancelling the caller
// aborts the fetch.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
