package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-templates/models"
)

// SchemaIssue describes a record whose keys differ from the template schema.
type SchemaIssue struct {
	Index   int
	Missing []string
	Extra   []string
}

func (i SchemaIssue) String() string {
	var parts []string
	if len(i.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(i.Missing, ","))
	}
	if len(i.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(i.Extra, ","))
	}
	return fmt.Sprintf("record %d: %s", i.Index, strings.Join(parts, "; "))
}

// ValidateResultSet reports every record that does not match the template
// schema. Records are not modified.
func ValidateResultSet(set models.ResultSet) []SchemaIssue {
	var issues []SchemaIssue
	for i, r := range set {
		missing, extra := diffKeys(r)
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		issues = append(issues, SchemaIssue{Index: i, Missing: missing, Extra: extra})
	}
	return issues
}

func diffKeys(r models.Record) (missing, extra []string) {
	for _, key := range models.TemplateKeys {
		if _, ok := r.Get(key); !ok {
			missing = append(missing, key)
		}
	}
	for _, key := range r.Keys() {
		if !isTemplateKey(key) {
			extra = append(extra, key)
		}
	}
	return missing, extra
}

func isTemplateKey(key string) bool {
	for _, k := range models.TemplateKeys {
		if k == key {
			return true
		}
	}
	return false
}
