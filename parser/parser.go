// Package parser extracts template records from the rendered gallery DOM.
//
// Extract is a pure function of the DOM root it is given: it reads nothing
// outside its arguments and never mutates the document. Script is the same
// extractor as a self-contained JavaScript expression for evaluation inside
// a browser tab.
package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-templates/models"
)

// Selectors are bound to the gallery markup. They target presentational
// class names and will need updating when the page layout changes.
const (
	CardSelector      = "article"
	BgImgSelector     = ".semi-image-img"
	BgImgAttr         = "src"
	AppTypeSelector   = ".semi-tag span"
	TitleSelector     = ".semi-typography-ellipsis-single-line"
	AuthorSelector    = ".semi-space .semi-typography span"
	DescSelector      = ".semi-typography-ellipsis-multiple-line"
	PriceSelector     = ".justify-between > div:first-child"
	CopyCountSelector = ".justify-between > div:last-child span:first-child"
)

// Extract returns one record per card under root, in document order.
func Extract(root *goquery.Selection) []models.TemplateRecord {
	if root == nil {
		return []models.TemplateRecord{}
	}

	cards := root.FindMatcher(compile(CardSelector))
	records := make([]models.TemplateRecord, 0, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		records = append(records, extractCard(card))
	})
	return records
}

func extractCard(card *goquery.Selection) models.TemplateRecord {
	return models.TemplateRecord{
		BgImg:     attrOf(card, BgImgSelector, BgImgAttr),
		AppType:   textOf(card, AppTypeSelector),
		Title:     textOf(card, TitleSelector),
		Author:    textOf(card, AuthorSelector),
		Desc:      textOf(card, DescSelector),
		Price:     textOf(card, PriceSelector),
		CopyCount: textOf(card, CopyCountSelector),
	}
}

// textOf returns the trimmed visible text of the first descendant matching
// selector, or "" when nothing matches.
func textOf(card *goquery.Selection, selector string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	el := card.FindMatcher(compile(selector)).First()
	if el.Length() == 0 {
		return ""
	}
	return visibleText(el)
}

// attrOf returns the named attribute of the first descendant matching
// selector. Missing element and missing attribute both yield "".
func attrOf(card *goquery.Selection, selector, name string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = ""
		}
	}()

	el := card.FindMatcher(compile(selector)).First()
	if el.Length() == 0 {
		return ""
	}
	value, _ = el.Attr(name)
	return value
}
