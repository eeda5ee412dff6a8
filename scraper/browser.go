package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/parser"
)

// BrowserSession runs the extractor inside a Chrome tab it launches over
// the DevTools protocol. The tab is opened on the target page once and
// reused for every export.
type BrowserSession struct {
	cfg *config.Config

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	startErr  error

	navMu     sync.Mutex
	navigated bool
	navigate  func(ctx context.Context) error
}

// NewBrowserSession prepares a headless (unless configured otherwise)
// browser. It is started on first use.
func NewBrowserSession(cfg *config.Config) *BrowserSession {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if bin := chromeBinary(cfg.ChromePath); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), slog.String("component", "chromedp"))
		}),
	)

	s := &BrowserSession{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}
	s.navigate = s.openTarget
	return s
}

// ActiveTab opens the target page on first use and reports the tab.
func (s *BrowserSession) ActiveTab(ctx context.Context) (models.Tab, error) {
	if err := s.start(); err != nil {
		return models.Tab{}, err
	}

	runCtx, cancel := s.bounded(ctx, s.browserCtx)
	defer cancel()

	if err := s.navigateOnce(runCtx); err != nil {
		return models.Tab{}, fmt.Errorf("open %s: %w", s.cfg.TargetURL, classifyError(err, 0))
	}

	var location, title string
	if err := chromedp.Run(runCtx, chromedp.Location(&location), chromedp.Title(&title)); err != nil {
		return models.Tab{}, fmt.Errorf("read tab: %w", classifyError(err, 0))
	}
	return models.Tab{ID: string(ownTarget(s.browserCtx)), URL: location, Title: title}, nil
}

// Inject evaluates the extractor script in the tab and returns its raw
// JSON result. The evaluation is bounded by the configured timeout and
// aborted when ctx is cancelled.
func (s *BrowserSession) Inject(ctx context.Context, tab models.Tab) ([]models.InjectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.start(); err != nil {
		return nil, err
	}

	runCtx, cancel := s.bounded(ctx, s.browserCtx)
	defer cancel()

	var raw []byte
	if err := chromedp.Run(runCtx, chromedp.Evaluate(parser.Script, &raw)); err != nil {
		return nil, fmt.Errorf("evaluate extractor in %s: %w", tab.URL, classifyError(err, 0))
	}
	return []models.InjectionResult{{FrameID: tab.ID, Result: raw}}, nil
}

// Close shuts the launched browser down.
func (s *BrowserSession) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

// start allocates the browser on the long-lived browser context. A timeout
// on the first run would tear the whole browser down when it fires.
func (s *BrowserSession) start() error {
	s.startOnce.Do(func() {
		if err := chromedp.Run(s.browserCtx); err != nil {
			s.startErr = fmt.Errorf("start browser: %w", classifyError(err, 0))
		}
	})
	return s.startErr
}

// navigateOnce loads the target page the first time it succeeds. Callers
// wait while a navigation is in flight, so an extraction never runs
// against a page that is being reloaded.
func (s *BrowserSession) navigateOnce(ctx context.Context) error {
	s.navMu.Lock()
	defer s.navMu.Unlock()
	if s.navigated {
		return nil
	}
	if err := s.navigate(ctx); err != nil {
		return err
	}
	s.navigated = true
	return nil
}

func (s *BrowserSession) openTarget(ctx context.Context) error {
	return chromedp.Run(ctx,
		chromedp.Navigate(s.cfg.TargetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.RenderWait),
	)
}

func (s *BrowserSession) bounded(ctx, parent context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func ownTarget(ctx context.Context) target.ID {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return ""
	}
	return c.Target.TargetID
}

func chromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	return findChromeBinary()
}

// findChromeBinary locates a Chrome or Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
