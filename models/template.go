// Package models defines data structures for the template exporter.
package models

import (
	"encoding/json"
	"time"
)

// Field keys of a scraped template card, in export column order.
const (
	KeyBgImg     = "bgImg"
	KeyAppType   = "appType"
	KeyTitle     = "title"
	KeyAuthor    = "author"
	KeyDesc      = "desc"
	KeyPrice     = "price"
	KeyCopyCount = "copyCount"
)

// TemplateKeys lists the template record keys in declaration order.
var TemplateKeys = []string{KeyBgImg, KeyAppType, KeyTitle, KeyAuthor, KeyDesc, KeyPrice, KeyCopyCount}

// TemplateRecord represents one card scraped from the template gallery.
// Missing source elements leave the field empty.
type TemplateRecord struct {
	BgImg     string `csv:"bgImg" json:"bgImg"`
	AppType   string `csv:"appType" json:"appType"`
	Title     string `csv:"title" json:"title"`
	Author    string `csv:"author" json:"author"`
	Desc      string `csv:"desc" json:"desc"`
	Price     string `csv:"price" json:"price"`
	CopyCount string `csv:"copyCount" json:"copyCount"`
}

// Record converts the template into an ordered record.
func (t TemplateRecord) Record() Record {
	return Record{
		{Key: KeyBgImg, Value: t.BgImg},
		{Key: KeyAppType, Value: t.AppType},
		{Key: KeyTitle, Value: t.Title},
		{Key: KeyAuthor, Value: t.Author},
		{Key: KeyDesc, Value: t.Desc},
		{Key: KeyPrice, Value: t.Price},
		{Key: KeyCopyCount, Value: t.CopyCount},
	}
}

// Tab describes the browser tab an extraction runs in.
type Tab struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// InjectionResult is the value one frame returned across the injection boundary.
type InjectionResult struct {
	FrameID string
	Result  json.RawMessage
}

// ExportStatus reports how an export invocation ended.
type ExportStatus string

const (
	StatusExported   ExportStatus = "exported"
	StatusEmpty      ExportStatus = "empty"
	StatusIneligible ExportStatus = "ineligible"
)

// ExportResult holds the outcome of a single export invocation.
type ExportResult struct {
	ID        string        `json:"id"`
	Status    ExportStatus  `json:"status"`
	Tab       Tab           `json:"tab"`
	Filename  string        `json:"filename,omitempty"`
	Location  string        `json:"location,omitempty"`
	Count     int           `json:"count"`
	Bytes     int           `json:"bytes"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
