// Package prompts builds the language-model prompts used by query correction.
package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CorrectionSystemMessage frames every correction exchange.
const CorrectionSystemMessage = "You are a SQL repair assistant for a federated query engine. " +
	"You receive a SQL query that failed validation together with the schema it must run against. " +
	"Return only a JSON object of the form {\"corrected_sql\": \"<query>\"}. " +
	"Do not add commentary, and do not change what the query asks for."

// CorrectionContext is everything a correction prompt shows the model.
type CorrectionContext struct {
	// Intent is the resolved natural-language question, when known.
	Intent string
	// GlobalQuery is the accepted global query a source query was rewritten from.
	GlobalQuery string
	// PreviousSQL is the query that failed validation.
	PreviousSQL string
	// Source is the scope name; GLOBAL_SCHEMA for the global query.
	Source string
	// Dialect is the SQL dialect the corrected query must be written in.
	Dialect string
	// GlobalAttributes lists the global schema attributes in declaration order.
	GlobalAttributes []string
	// GlobalTables lists the logical table names the global query may use.
	GlobalTables []string
	// LocalSchema maps physical tables to their columns. Nil for the global query.
	LocalSchema map[string][]string
	// Errors are the validator messages for PreviousSQL.
	Errors []string
}

// BuildGlobalCorrectionPrompt asks for a fix of the global query against the
// mediated schema.
func BuildGlobalCorrectionPrompt(c CorrectionContext) string {
	var b strings.Builder

	b.WriteString("# Global Query Correction\n\n")
	b.WriteString("The query below is written against the global schema of a job-postings federation and failed validation.\n\n")

	if c.Intent != "" {
		fmt.Fprintf(&b, "## User Question\n\n%s\n\n", c.Intent)
	}

	b.WriteString("## Global Schema\n\n")
	fmt.Fprintf(&b, "Tables: %s\n", strings.Join(c.GlobalTables, ", "))
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(c.GlobalAttributes, ", "))

	writeQueryAndErrors(&b, c)

	b.WriteString("## Rules\n\n")
	b.WriteString("- Use only the tables and columns listed above.\n")
	b.WriteString("- Write standard SQL; the query is rewritten per source afterwards.\n")
	b.WriteString("- Keep the filters, ordering and limit of the original query unless an error names them.\n\n")

	writeResponseFormat(&b)
	return b.String()
}

// BuildTranslationCorrectionPrompt asks for a fix of one source's rewritten
// query against that source's local schema and dialect.
func BuildTranslationCorrectionPrompt(c CorrectionContext) string {
	var b strings.Builder

	b.WriteString("# Source Query Correction\n\n")
	fmt.Fprintf(&b, "The query below was translated for source %q (%s) and failed validation against that source's schema.\n\n",
		c.Source, c.Dialect)

	if c.GlobalQuery != "" {
		fmt.Fprintf(&b, "## Global Query\n\n```sql\n%s\n```\n\n", c.GlobalQuery)
	}
	if len(c.GlobalAttributes) > 0 {
		fmt.Fprintf(&b, "Global columns: %s\n\n", strings.Join(c.GlobalAttributes, ", "))
	}

	b.WriteString("## Local Schema\n\n```json\n")
	b.WriteString(localSchemaJSON(c.LocalSchema))
	b.WriteString("\n```\n\n")

	writeQueryAndErrors(&b, c)

	b.WriteString("## Rules\n\n")
	fmt.Fprintf(&b, "- Write the query in the %s dialect, quoting identifiers the way %s requires.\n", c.Dialect, c.Dialect)
	b.WriteString("- Reference only tables and columns from the local schema.\n")
	b.WriteString("- If the source has no column for a global attribute, drop that reference instead of inventing one.\n\n")

	writeResponseFormat(&b)
	return b.String()
}

func writeQueryAndErrors(b *strings.Builder, c CorrectionContext) {
	fmt.Fprintf(b, "## Failed Query\n\n```sql\n%s\n```\n\n", c.PreviousSQL)

	b.WriteString("## Validation Errors\n\n")
	if len(c.Errors) == 0 {
		b.WriteString("- (none reported)\n")
	}
	for _, e := range c.Errors {
		fmt.Fprintf(b, "- %s\n", e)
	}
	b.WriteString("\n")
}

func writeResponseFormat(b *strings.Builder) {
	b.WriteString("## Response Format\n\n")
	b.WriteString("```json\n{\"corrected_sql\": \"<the corrected query>\"}\n```\n")
}

// localSchemaJSON renders the schema with sorted table keys so prompts are stable.
func localSchemaJSON(schema map[string][]string) string {
	tables := make([]string, 0, len(schema))
	for t := range schema {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var b strings.Builder
	b.WriteString("{")
	for i, t := range tables {
		if i > 0 {
			b.WriteString(",")
		}
		key, _ := json.Marshal(t)
		cols, _ := json.Marshal(schema[t])
		fmt.Fprintf(&b, "\n  %s: %s", key, cols)
	}
	if len(tables) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}
