package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/parser"
)

// detachTimeout bounds the detach sent after an injection, which runs even
// when the caller's context is already done.
const detachTimeout = time.Second

// AttachSession runs the extractor in a tab of a browser the user started
// with --remote-debugging-port. The tab is only read: it is never
// navigated or closed, and no tab is opened. Each injection attaches to
// the tab, evaluates the extractor and detaches again.
type AttachSession struct {
	cfg  *config.Config
	dial func(ctx context.Context) (chromedp.Transport, error)

	mu       sync.Mutex
	client   *devtoolsClient
	sessions map[target.SessionID]target.ID
}

// NewAttachSession prepares a session for the browser at cfg.RemoteURL.
// The connection is opened on first use.
func NewAttachSession(cfg *config.Config) *AttachSession {
	return &AttachSession{
		cfg: cfg,
		dial: func(ctx context.Context) (chromedp.Transport, error) {
			wsURL, err := browserWebSocketURL(ctx, cfg.RemoteURL)
			if err != nil {
				return nil, err
			}
			conn, err := chromedp.DialContext(ctx, wsURL)
			if err != nil {
				return nil, ErrConnection{Err: err}
			}
			return conn, nil
		},
		sessions: make(map[target.SessionID]target.ID),
	}
}

// ActiveTab picks the first open page whose URL contains the eligible
// prefix, else the first open page.
func (s *AttachSession) ActiveTab(ctx context.Context) (models.Tab, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	client, err := s.connect(runCtx)
	if err != nil {
		return models.Tab{}, err
	}
	infos, err := target.GetTargets().Do(cdp.WithExecutor(runCtx, client))
	if err != nil {
		return models.Tab{}, fmt.Errorf("list targets: %w", classifyError(err, 0))
	}
	info, ok := pickTab(infos, s.cfg.EligiblePrefix)
	if !ok {
		return models.Tab{}, ErrNoTab
	}
	return models.Tab{ID: string(info.TargetID), URL: info.URL, Title: info.Title}, nil
}

// Inject evaluates the extractor in tab and returns its raw JSON result.
func (s *AttachSession) Inject(ctx context.Context, tab models.Tab) ([]models.InjectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tab.ID == "" {
		return nil, ErrNoTab
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	client, err := s.connect(runCtx)
	if err != nil {
		return nil, err
	}

	id := target.ID(tab.ID)
	sessionID, err := target.AttachToTarget(id).WithFlatten(true).Do(cdp.WithExecutor(runCtx, client))
	if err != nil {
		return nil, fmt.Errorf("attach to %s: %w", tab.URL, classifyError(err, 0))
	}
	s.track(sessionID, id)
	defer s.detach(client, sessionID)

	obj, exception, err := runtime.Evaluate(parser.Script).
		WithReturnByValue(true).
		Do(cdp.WithExecutor(runCtx, client.session(sessionID)))
	if err != nil {
		return nil, fmt.Errorf("evaluate extractor in %s: %w", tab.URL, classifyError(err, 0))
	}
	if exception != nil {
		return nil, fmt.Errorf("evaluate extractor in %s: %w", tab.URL, exception)
	}

	var raw json.RawMessage
	if obj != nil {
		raw = json.RawMessage(obj.Value)
	}
	return []models.InjectionResult{{FrameID: tab.ID, Result: raw}}, nil
}

// Close detaches from any tab still attached and drops the connection.
// The user's browser and its tabs stay open.
func (s *AttachSession) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	pending := make([]target.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		pending = append(pending, id)
	}
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	for _, id := range pending {
		s.detach(client, id)
	}
	return client.Close()
}

func (s *AttachSession) connect(ctx context.Context) (*devtoolsClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.alive() {
		return s.client, nil
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", s.cfg.RemoteURL, err)
	}
	s.client = newDevtoolsClient(conn)
	s.sessions = make(map[target.SessionID]target.ID)
	return s.client, nil
}

func (s *AttachSession) track(sessionID target.SessionID, id target.ID) {
	s.mu.Lock()
	s.sessions[sessionID] = id
	s.mu.Unlock()
}

// detach leaves the target session. It never closes the target.
func (s *AttachSession) detach(client *devtoolsClient, sessionID target.SessionID) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	if err := target.DetachFromTarget().WithSessionID(sessionID).Do(cdp.WithExecutor(ctx, client)); err != nil {
		slog.Debug("detach from tab failed",
			slog.String("session_id", string(sessionID)),
			slog.Any("error", err),
		)
	}
}

// pickTab returns the first page target whose URL contains prefix, or the
// first page target when none does.
func pickTab(infos []*target.Info, prefix string) (*target.Info, bool) {
	var fallback *target.Info
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		if prefix != "" && strings.Contains(info.URL, prefix) {
			return info, true
		}
		if fallback == nil {
			fallback = info
		}
	}
	return fallback, fallback != nil
}
