package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildGlobalCorrectionPrompt(t *testing.T) {
	prompt := BuildGlobalCorrectionPrompt(CorrectionContext{
		Intent:           "python jobs in Pune",
		PreviousSQL:      "SELECT titel FROM jobs;",
		Source:           "GLOBAL_SCHEMA",
		GlobalAttributes: []string{"job_id", "title", "location"},
		GlobalTables:     []string{"jobs"},
		Errors:           []string{`Column "titel" does not exist in any referenced table`},
	})

	assert.Contains(t, prompt, "# Global Query Correction")
	assert.Contains(t, prompt, "## User Question\n\npython jobs in Pune")
	assert.Contains(t, prompt, "Tables: jobs\n")
	assert.Contains(t, prompt, "Columns: job_id, title, location\n")
	assert.Contains(t, prompt, "```sql\nSELECT titel FROM jobs;\n```")
	assert.Contains(t, prompt, `- Column "titel" does not exist in any referenced table`)
	assert.Contains(t, prompt, `{"corrected_sql": "<the corrected query>"}`)
	assert.NotContains(t, prompt, "Local Schema")
}

func TestBuildGlobalCorrectionPrompt_NoIntent(t *testing.T) {
	prompt := BuildGlobalCorrectionPrompt(CorrectionContext{PreviousSQL: "SELECT 1;"})

	assert.NotContains(t, prompt, "User Question")
	assert.Contains(t, prompt, "- (none reported)")
}

func TestBuildTranslationCorrectionPrompt(t *testing.T) {
	prompt := BuildTranslationCorrectionPrompt(CorrectionContext{
		GlobalQuery:      "SELECT title FROM jobs;",
		PreviousSQL:      `SELECT title FROM job_listings;`,
		Source:           "Naukri_source",
		Dialect:          "postgres",
		GlobalAttributes: []string{"title"},
		LocalSchema: map[string][]string{
			"job_listings": {"Job Title", "location"},
			"companies":    {"name"},
		},
		Errors: []string{`Column "title" does not exist in any referenced table`},
	})

	assert.Contains(t, prompt, `source "Naukri_source" (postgres)`)
	assert.Contains(t, prompt, "## Global Query\n\n```sql\nSELECT title FROM jobs;\n```")
	assert.Contains(t, prompt, "Global columns: title")
	assert.Contains(t, prompt, "- Write the query in the postgres dialect")

	// Tables are listed in sorted order.
	companies := strings.Index(prompt, `"companies": ["name"]`)
	listings := strings.Index(prompt, `"job_listings": ["Job Title","location"]`)
	assert.Greater(t, companies, 0)
	assert.Greater(t, listings, companies)
}

func TestLocalSchemaJSON(t *testing.T) {
	assert.Equal(t, "{}", localSchemaJSON(nil))
	assert.Equal(t, "{\n  \"jobs\": [\"title\"]\n}", localSchemaJSON(map[string][]string{"jobs": {"title"}}))
}

func TestCorrectionPromptsAreDeterministic(t *testing.T) {
	c := CorrectionContext{
		PreviousSQL: "SELECT a FROM t;",
		LocalSchema: map[string][]string{"b": {"x"}, "a": {"y"}, "c": {"z"}},
	}
	first := BuildTranslationCorrectionPrompt(c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, BuildTranslationCorrectionPrompt(c))
	}
}
