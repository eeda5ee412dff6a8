package parser

import _ "embed"

// Script is the extractor as a JavaScript expression. It closes over
// nothing but the page's document and evaluates to an array of plain
// objects keyed like models.TemplateRecord.
//
//go:embed extract.js
var Script string
