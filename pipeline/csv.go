// Package pipeline turns extracted result sets into downloaded CSV files.
package pipeline

import (
	"bytes"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-templates/models"
)

const (
	// BOM marks the export as UTF-8 for spreadsheet applications.
	BOM = "\ufeff"
	// MIMEType is the media type of an export.
	MIMEType = "text/csv;charset=utf-8"

	filenamePrefix = "coze_templates_"
	filenameLayout = "2006-01-02"
)

// Filename returns the export file name for the UTC calendar date of now.
func Filename(now time.Time) string {
	return filenamePrefix + now.UTC().Format(filenameLayout) + ".csv"
}

// Header returns the export columns: the keys of the first record, in
// order. Keys that only later records carry are not exported.
func Header(set models.ResultSet) []string {
	if len(set) == 0 {
		return nil
	}
	return set[0].Keys()
}

// EncodeCSV renders set as a BOM-prefixed CSV document. Every cell,
// header included, is wrapped in double quotes with embedded quotes
// doubled. Rows are separated by "\n" with no trailing newline. An empty
// set encodes to nil.
func EncodeCSV(set models.ResultSet) []byte {
	if len(set) == 0 {
		return nil
	}

	header := Header(set)
	var buf bytes.Buffer
	buf.WriteString(BOM)
	writeRow(&buf, header)

	row := make([]string, len(header))
	for _, rec := range set {
		for i, key := range header {
			row[i] = rec.Value(key)
		}
		buf.WriteByte('\n')
		writeRow(&buf, row)
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		buf.WriteByte('"')
	}
}
