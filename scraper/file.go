package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-templates/models"
	"github.com/aluiziolira/go-scrape-templates/parser"
)

// FileSession extracts from a saved copy of the gallery page.
type FileSession struct {
	path    string
	pageURL string
}

// NewFileSession reads the page from path and reports it as pageURL.
func NewFileSession(path, pageURL string) *FileSession {
	return &FileSession{path: path, pageURL: pageURL}
}

func (s *FileSession) ActiveTab(context.Context) (models.Tab, error) {
	doc, err := s.load()
	if err != nil {
		return models.Tab{}, err
	}
	return models.Tab{
		ID:    mainFrame,
		URL:   s.pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}, nil
}

func (s *FileSession) Inject(ctx context.Context, _ models.Tab) ([]models.InjectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(parser.Extract(doc.Selection))
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return []models.InjectionResult{{FrameID: mainFrame, Result: raw}}, nil
}

func (s *FileSession) load() (*goquery.Document, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound{Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", s.path, err)
	}
	return doc, nil
}
