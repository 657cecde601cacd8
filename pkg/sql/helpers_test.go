package sql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/schema"
)

// testRegistry builds a registry with one source per dialect family.
func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	global := models.GlobalSchema{Attributes: []models.GlobalAttribute{
		{Name: "job_id", Type: "TEXT"},
		{Name: "title", Type: "TEXT"},
		{Name: "company_name", Type: "TEXT"},
		{Name: "description", Type: "TEXT"},
		{Name: "skills", Type: "TEXT"},
		{Name: "location", Type: "TEXT"},
		{Name: "country", Type: "TEXT"},
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
				"country":          "",
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
				"description":      "Job Description",
				"skills":           "skills",
				"location":         "location",
				"country":          "Country",
				"salary_range":     "Salary Range",
				"job_posting_date": "Job Posting Date",
			},
		},
		{
			Name:          "Indeed_source",
			Dialect:       models.DialectSQLServer,
			PhysicalTable: "JobPostings",
			AttributeMap: map[string]string{
				"title":            "Job Title",
				"company_name":     "Company Name",
				"location":         "City",
				"job_posting_date": "PostedOn",
			},
		},
	}

	r, err := schema.New(global, sources, []string{"jobs"})
	require.NoError(t, err)
	return r
}

func testSource(t *testing.T, r *schema.Registry, name string) *models.SourceDescriptor {
	t.Helper()
	src, err := r.Source(name)
	require.NoError(t, err)
	return src
}
