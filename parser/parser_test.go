package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-templates/models"
)

const galleryHTML = `<html><head><title>模板商店</title></head><body><main>
<article>
  <div class="semi-image"><img class="semi-image-img" src="https://cdn.example.test/1.png"></div>
  <div class="semi-tag"><span> Agent </span></div>
  <span class="semi-typography semi-typography-ellipsis-single-line">  Travel Planner </span>
  <div class="semi-space"><span class="semi-typography"><span>张三</span></span></div>
  <p class="semi-typography-ellipsis-multiple-line">Plans trips.<br>Books "hotels", too.</p>
  <div class="flex justify-between"><div>Free</div><div><span>1.2K</span><span>copies</span></div></div>
</article>
<article>
  <div class="semi-tag"><span>Workflow</span></div>
  <span class="semi-typography-ellipsis-single-line">Second</span>
  <div class="semi-image"><img class="semi-image-img"></div>
</article>
<article>
  <span class="semi-typography-ellipsis-single-line">Third<span style="display: none">hidden</span></span>
  <div class="semi-typography-ellipsis-multiple-line"><div>Line one</div><div>  Line   two </div><script>var x = 1;</script></div>
  <div class="justify-between"><div>¥9.90</div><div><span>42</span></div></div>
</article>
</main></body></html>`

func mustDocument(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestExtractGallery(t *testing.T) {
	doc := mustDocument(t, galleryHTML)

	records := Extract(doc.Selection)
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}

	want := []models.TemplateRecord{
		{
			BgImg:     "https://cdn.example.test/1.png",
			AppType:   "Agent",
			Title:     "Travel Planner",
			Author:    "张三",
			Desc:      "Plans trips.\nBooks \"hotels\", too.",
			Price:     "Free",
			CopyCount: "1.2K",
		},
		{
			AppType: "Workflow",
			Title:   "Second",
		},
		{
			Title:     "Third",
			Desc:      "Line one\nLine two",
			Price:     "¥9.90",
			CopyCount: "42",
		},
	}

	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestExtractKeepsDocumentOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	titles := []string{"c", "a", "b", "e", "d"}
	for _, title := range titles {
		b.WriteString(`<article><span class="semi-typography-ellipsis-single-line">` + title + `</span></article>`)
	}
	b.WriteString("</body></html>")

	records := Extract(mustDocument(t, b.String()).Selection)
	if len(records) != len(titles) {
		t.Fatalf("records=%d, want %d", len(records), len(titles))
	}
	for i, title := range titles {
		if records[i].Title != title {
			t.Fatalf("record %d title=%q, want %q", i, records[i].Title, title)
		}
	}
}

func TestExtractWithoutCards(t *testing.T) {
	records := Extract(mustDocument(t, "<html><body><div>nothing here</div></body></html>").Selection)
	if records == nil || len(records) != 0 {
		t.Fatalf("records=%v, want empty non-nil slice", records)
	}

	if got := Extract(nil); got == nil || len(got) != 0 {
		t.Fatalf("Extract(nil)=%v, want empty non-nil slice", got)
	}
}

func TestExtractDoesNotMutateDocument(t *testing.T) {
	doc := mustDocument(t, galleryHTML)
	before, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		t.Fatalf("render before: %v", err)
	}

	Extract(doc.Selection)

	after, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		t.Fatalf("render after: %v", err)
	}
	if before != after {
		t.Fatalf("document changed during extraction")
	}
}

func TestAttrOf(t *testing.T) {
	card := mustDocument(t, `<article><img class="semi-image-img" src="a.png" alt=""><img class="semi-image-img" src="b.png"></article>`).Find("article")

	tests := []struct {
		name     string
		selector string
		attr     string
		expected string
	}{
		{name: "first match wins", selector: BgImgSelector, attr: "src", expected: "a.png"},
		{name: "empty attribute", selector: BgImgSelector, attr: "alt", expected: ""},
		{name: "missing attribute", selector: BgImgSelector, attr: "data-src", expected: ""},
		{name: "missing element", selector: ".nope", attr: "src", expected: ""},
		{name: "invalid selector", selector: "div[", attr: "src", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attrOf(card, tt.selector, tt.attr); got != tt.expected {
				t.Fatalf("attrOf(%q, %q) = %q, want %q", tt.selector, tt.attr, got, tt.expected)
			}
		})
	}
}

func TestVisibleText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{name: "trims", html: "  hello  ", expected: "hello"},
		{name: "collapses whitespace", html: "a \n\t  b", expected: "a b"},
		{name: "inline elements join", html: "a<b>b</b><i> c</i>", expected: "ab c"},
		{name: "br breaks line", html: "one<br>two<br/>three", expected: "one\ntwo\nthree"},
		{name: "blocks break line", html: "<p>one</p><p>two</p>", expected: "one\ntwo"},
		{name: "skips script and style", html: "a<script>x()</script><style>.a{}</style>b", expected: "ab"},
		{name: "skips hidden attribute", html: "a<span hidden>secret</span>", expected: "a"},
		{name: "skips display none", html: "a<span style=\"DISPLAY : none\">secret</span>", expected: "a"},
		{name: "skips visibility hidden", html: "a<span style=\"visibility:hidden\">secret</span>", expected: "a"},
		{name: "keeps non-latin text", html: "<span> 复制 12 次 </span>", expected: "复制 12 次"},
		{name: "trims non-breaking space", html: "&nbsp;Free&nbsp;", expected: "Free"},
		{name: "empty", html: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, `<div id="target">`+tt.html+`</div>`)
			if got := visibleText(doc.Find("#target")); got != tt.expected {
				t.Fatalf("visibleText(%q) = %q, want %q", tt.html, got, tt.expected)
			}
		})
	}
}

func TestCompileCachesMatchers(t *testing.T) {
	first := compile(TitleSelector)
	second := compile(TitleSelector)
	if first == nil || second == nil {
		t.Fatalf("expected compiled matchers")
	}
	if !matchers.Contains(TitleSelector) {
		t.Fatalf("expected %q in matcher cache", TitleSelector)
	}
	if _, ok := compile("div[").(matchNone); !ok {
		t.Fatalf("invalid selector should compile to matchNone")
	}
}
