package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/schema"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	global := models.GlobalSchema{Attributes: []models.GlobalAttribute{
		{Name: "job_id", Type: "TEXT"},
		{Name: "title", Type: "TEXT"},
		{Name: "company_name", Type: "TEXT"},
		{Name: "description", Type: "TEXT"},
		{Name: "skills", Type: "TEXT"},
		{Name: "location", Type: "TEXT"},
		{Name: "work_type", Type: "TEXT"},
		{Name: "salary_range", Type: "TEXT"},
		{Name: "job_posting_date", Type: "DATETIME"},
	}}
	sources := []*models.SourceDescriptor{
		{
			Name:          "Linkedin_source",
			Dialect:       models.DialectMySQL,
			PhysicalTable: "jobs",
			AttributeMap: map[string]string{
				"job_id":           "job_id",
				"title":            "title",
				"company_name":     "company_name",
				"description":      "description",
				"skills":           "skills_desc",
				"location":         "location",
				"work_type":        "formatted_work_type",
				"salary_range":     "normalized_salary",
				"job_posting_date": "listed_time",
			},
		},
		{
			Name:          "Naukri_source",
			Dialect:       models.DialectPostgres,
			PhysicalTable: "job_listings",
			AttributeMap: map[string]string{
				"job_id":           "Job Id",
				"title":            "Job Title",
				"company_name":     "Company",
				"skills":           "skills",
				"location":         "location",
				"work_type":        "",
				"salary_range":     "Salary Range",
				"job_posting_date": "Job Posting Date",
			},
		},
	}

	r, err := schema.New(global, sources, []string{"jobs"})
	require.NoError(t, err)
	return r
}

func newTestIntegrator(t *testing.T, expander knowledge.Expander, synonyms knowledge.SynonymChecker) *Integrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	return NewIntegrator(testRegistry(t), expander, synonyms, cfg, zap.NewNop())
}

// record builds a standardized-looking record for matching and fusion tests.
func record(source string, values map[string]any) models.GlobalRecord {
	rec := models.NewGlobalRecord(source)
	for k, v := range values {
		rec.Values[k] = v
	}
	return rec
}
