package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/chromedp/cdproto/target"
	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-templates/config"
	"github.com/aluiziolira/go-scrape-templates/models"
)

const galleryFixture = "testdata/gallery.html"

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorTypeLabelThroughWrappers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "injection timeout", err: ErrInjection{Err: ErrTimeout{Err: context.DeadlineExceeded}}, expected: "timeout"},
		{name: "no tab", err: ErrInjection{Err: fmt.Errorf("resolve: %w", ErrNoTab)}, expected: "no_tab"},
		{name: "decode", err: ErrInjection{Err: ErrDecode{Err: errors.New("bad json")}}, expected: "decode"},
		{name: "plain injection", err: ErrInjection{Err: errors.New("exception")}, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(tt.err); got != tt.expected {
				t.Fatalf("ErrorTypeLabel(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}

	var injection ErrInjection
	if !errors.As(fmt.Errorf("export: %w", ErrInjection{Err: ErrNoTab}), &injection) {
		t.Fatalf("expected ErrInjection to be found through wrapping")
	}
}

func htmlResponder(t *testing.T, status int, path string) httpmock.Responder {
	t.Helper()
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(status, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		resp.Request = req
		return resp, nil
	}
}

func newMockedHTTPSession(t *testing.T, status int) *HTTPSession {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeHTTP
	cfg.TargetURL = "http://example.test/template"

	s, err := NewHTTPSession(cfg)
	if err != nil {
		t.Fatalf("new http session: %v", err)
	}

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.TargetURL, htmlResponder(t, status, galleryFixture))
	s.transport = transport
	return s
}

func TestHTTPSessionInject(t *testing.T) {
	s := newMockedHTTPSession(t, http.StatusOK)
	ctx := context.Background()

	tab, err := s.ActiveTab(ctx)
	if err != nil {
		t.Fatalf("active tab: %v", err)
	}
	if tab.URL != "http://example.test/template" {
		t.Fatalf("tab url=%q", tab.URL)
	}

	results, err := s.Inject(ctx, tab)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d, want 1", len(results))
	}

	set, err := models.DecodeRecords(results[0].Result)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("records=%d, want 2", len(set))
	}
	if got := set[0].Value(models.KeyTitle); got != "旅行规划助手" {
		t.Fatalf("first title=%q", got)
	}
	if got := set[1].Value(models.KeyAuthor); got != "" {
		t.Fatalf("second author=%q, want empty", got)
	}
	if got := set[1].Value(models.KeyPrice); got != "¥9.90" {
		t.Fatalf("second price=%q", got)
	}
}

func TestHTTPSessionStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			s := newMockedHTTPSession(t, tt.status)
			tab, _ := s.ActiveTab(context.Background())

			_, err := s.Inject(context.Background(), tab)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := ErrorTypeLabel(err); got != tt.expected {
				t.Fatalf("label=%q, want %q (err=%v)", got, tt.expected, err)
			}
		})
	}
}

func TestFileSession(t *testing.T) {
	s := NewFileSession(galleryFixture, config.GalleryURL)
	ctx := context.Background()

	tab, err := s.ActiveTab(ctx)
	if err != nil {
		t.Fatalf("active tab: %v", err)
	}
	if tab.URL != config.GalleryURL || tab.Title != "模板商店 - 扣子" {
		t.Fatalf("unexpected tab: %+v", tab)
	}

	results, err := s.Inject(ctx, tab)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	set, err := models.DecodeRecords(results[0].Result)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("records=%d, want 2", len(set))
	}
	if got := set[0].Value(models.KeyDesc); got != `Plans a trip, books "hotels", and more.` {
		t.Fatalf("desc=%q", got)
	}
}

func TestFileSessionMissingFile(t *testing.T) {
	s := NewFileSession(filepath.Join(t.TempDir(), "missing.html"), config.GalleryURL)
	_, err := s.ActiveTab(context.Background())
	if got := ErrorTypeLabel(err); got != "not_found" {
		t.Fatalf("label=%q, want not_found (err=%v)", got, err)
	}
}

func TestPickTab(t *testing.T) {
	gallery := &target.Info{TargetID: "B", Type: "page", URL: "https://www.coze.cn/template?lang=zh"}
	other := &target.Info{TargetID: "A", Type: "page", URL: "https://example.test/"}
	worker := &target.Info{TargetID: "W", Type: "service_worker", URL: "https://www.coze.cn/template/sw.js"}

	tests := []struct {
		name   string
		infos  []*target.Info
		wantID target.ID
		wantOK bool
	}{
		{name: "prefers eligible page", infos: []*target.Info{worker, other, gallery}, wantID: "B", wantOK: true},
		{name: "falls back to first page", infos: []*target.Info{worker, other}, wantID: "A", wantOK: true},
		{name: "skips non-page targets", infos: []*target.Info{worker, nil}, wantOK: false},
		{name: "empty", infos: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickTab(tt.infos, config.GalleryURL)
			if ok != tt.wantOK {
				t.Fatalf("ok=%v, want %v", ok, tt.wantOK)
			}
			if ok && got.TargetID != tt.wantID {
				t.Fatalf("picked %s, want %s", got.TargetID, tt.wantID)
			}
		})
	}
}
