package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-templates/models"
)

func TestValidateResultSet(t *testing.T) {
	set := models.ResultSet{
		models.TemplateRecord{Title: "ok"}.Record(),
		models.Record{{Key: models.KeyTitle, Value: "partial"}, {Key: "rank", Value: "2"}},
		models.TemplateRecord{Title: "also ok"}.Record(),
	}

	issues := ValidateResultSet(set)
	if len(issues) != 1 {
		t.Fatalf("issues=%d, want 1", len(issues))
	}
	issue := issues[0]
	if issue.Index != 1 {
		t.Fatalf("issue index=%d, want 1", issue.Index)
	}
	if len(issue.Missing) != len(models.TemplateKeys)-1 {
		t.Fatalf("missing=%v", issue.Missing)
	}
	if len(issue.Extra) != 1 || issue.Extra[0] != "rank" {
		t.Fatalf("extra=%v, want [rank]", issue.Extra)
	}
	if got := issue.String(); got == "" {
		t.Fatalf("expected issue description")
	}

	if got := ValidateResultSet(models.FromTemplates(nil)); len(got) != 0 {
		t.Fatalf("empty set issues=%v", got)
	}
}
