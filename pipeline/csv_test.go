package pipeline

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-templates/models"
)

const templateHeader = `"bgImg","appType","title","author","desc","price","copyCount"`

func scenarioSet() models.ResultSet {
	return models.FromTemplates([]models.TemplateRecord{{
		BgImg:     "http://x/1.png",
		AppType:   "Agent",
		Title:     "T1",
		Author:    "A,1",
		Desc:      `He said "hi"`,
		Price:     "Free",
		CopyCount: "12",
	}})
}

func TestEncodeCSVScenario(t *testing.T) {
	got := string(EncodeCSV(scenarioSet()))
	want := BOM + templateHeader + "\n" +
		`"http://x/1.png","Agent","T1","A,1","He said ""hi""","Free","12"`
	if got != want {
		t.Fatalf("EncodeCSV:\n%q\nwant:\n%q", got, want)
	}
}

func TestEncodeCSVEmpty(t *testing.T) {
	if got := EncodeCSV(nil); got != nil {
		t.Fatalf("EncodeCSV(nil)=%q, want nil", got)
	}
	if got := EncodeCSV(models.ResultSet{}); got != nil {
		t.Fatalf("EncodeCSV(empty)=%q, want nil", got)
	}
}

func TestEncodeCSVRoundTrip(t *testing.T) {
	templates := []models.TemplateRecord{
		{BgImg: "https://cdn.example.test/a.png", AppType: "Agent", Title: "Plain", Author: "x", Desc: "d", Price: "Free", CopyCount: "1"},
		{Title: `Quotes "inside" and, commas`, Desc: "line one\nline two"},
		{Title: "中文标题", Author: "作者", Price: "¥9.90", CopyCount: "1.2K"},
		{},
	}
	out := EncodeCSV(models.FromTemplates(templates))

	if !bytes.HasPrefix(out, []byte(BOM)) {
		t.Fatalf("missing BOM prefix")
	}
	if bytes.HasSuffix(out, []byte("\n")) {
		t.Fatalf("unexpected trailing newline")
	}

	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(out, []byte(BOM)))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != len(templates)+1 {
		t.Fatalf("rows=%d, want %d", len(rows), len(templates)+1)
	}
	if strings.Join(rows[0], ",") != strings.Join(models.TemplateKeys, ",") {
		t.Fatalf("header=%v", rows[0])
	}
	for i, tpl := range templates {
		rec := tpl.Record()
		for j, key := range models.TemplateKeys {
			if rows[i+1][j] != rec.Value(key) {
				t.Fatalf("row %d %s=%q, want %q", i, key, rows[i+1][j], rec.Value(key))
			}
		}
	}
}

func TestEncodeCSVIdempotent(t *testing.T) {
	set := scenarioSet()
	first := EncodeCSV(set)
	second := EncodeCSV(set)
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding differs between runs")
	}
}

func TestEncodeCSVFirstRecordDefinesColumns(t *testing.T) {
	set := models.ResultSet{
		models.Record{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}},
		models.Record{{Key: "b", Value: "3"}, {Key: "c", Value: "4"}},
	}

	got := string(EncodeCSV(set))
	want := BOM + `"a","b"` + "\n" + `"1","2"` + "\n" + `"","3"`
	if got != want {
		t.Fatalf("EncodeCSV:\n%q\nwant:\n%q", got, want)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{
			name:     "utc date",
			now:      time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC),
			expected: "coze_templates_2024-03-07.csv",
		},
		{
			name:     "local time converts to utc",
			now:      time.Date(2024, 3, 8, 1, 30, 0, 0, time.FixedZone("CST", 8*60*60)),
			expected: "coze_templates_2024-03-07.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filename(tt.now); got != tt.expected {
				t.Fatalf("Filename()=%q, want %q", got, tt.expected)
			}
		})
	}
}
