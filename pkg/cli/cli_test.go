package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegistry = `global_tables: [jobs]

global_schema:
  - {name: title, type: TEXT}
  - {name: company_name, type: TEXT}
  - {name: location, type: TEXT}
  - {name: skills, type: TEXT}

sources:
  - name: Linkedin_source
    dialect: mysql
    type: sqlite
    table: jobs
    connection:
      path: %q
    attributes:
      title: title
      company_name: company_name
      location: location
      skills: skills_desc

  - name: Naukri_source
    dialect: postgres
    type: sqlite
    table: job_listings
    connection:
      path: %q
    attributes:
      title: Job Title
      company_name: Company
      location: location
      skills: Key Skills

  - name: Indeed_source
    dialect: sqlserver
    table: JobPostings
    attributes:
      title: Job Title
      company_name: Company
      location: City
`

const testOntology = `{
  "graph_neighbors": {"Data Scientist": ["Python", "SQL", "Machine Learning"]},
  "synonyms": {"ML": "Machine Learning"}
}`

// testEnv writes sqlite sources, a registry, an ontology and a config file
// into a temp dir and returns the config path.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	linkedin := seedDB(t, filepath.Join(dir, "linkedin.db"),
		`CREATE TABLE jobs (title TEXT, company_name TEXT, location TEXT, skills_desc TEXT)`,
		`INSERT INTO jobs VALUES ('Data Scientist', 'TechCo Pvt Ltd', 'Pune', 'python, sql')`,
		`INSERT INTO jobs VALUES ('Backend Engineer', 'Zoho', 'Chennai', 'go')`,
	)
	// Naukri is missing the mapped "Key Skills" column.
	naukri := seedDB(t, filepath.Join(dir, "naukri.db"),
		`CREATE TABLE job_listings ("Job Title" TEXT, "Company" TEXT, location TEXT)`,
		`INSERT INTO job_listings VALUES ('Data Scientist', 'Techco', 'Pune')`,
	)

	registryPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(fmt.Sprintf(testRegistry, linkedin, naukri)), 0o600))

	ontologyPath := filepath.Join(dir, "ontology.json")
	require.NoError(t, os.WriteFile(ontologyPath, []byte(testOntology), 0o600))

	configPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`env: test
log_level: error
registry_path: %q
ontology_path: %q
federation:
  max_retries: 1
  execution_timeout: 5s
  max_concurrency: 2
  default_limit: 10
  global_tables: jobs
`, registryPath, ontologyPath)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))

	return configPath
}

func seedDB(t *testing.T, path string, statements ...string) string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand("test")
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		GlobalStatus    string            `json:"global_status"`
		PerSourceStatus map[string]string `json:"per_source_status"`
		RankedRecords   []map[string]any  `json:"ranked_records"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "sources")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_MissingConfig(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "sources")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeConfig)
}

func TestQueryCommand_JSON(t *testing.T) {
	configPath := testEnv(t)

	out, err := execute(t, "--config", configPath, "--format", "json",
		"query", "SELECT title, company_name, location FROM jobs WHERE location = 'Pune'",
		"--intent", "data scientist")
	require.NoError(t, err)

	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "VALID", resp.Data.GlobalStatus)
	assert.Equal(t, map[string]string{
		"Linkedin_source": "ok",
		"Naukri_source":   "ok",
		"Indeed_source":   "no_query",
	}, resp.Data.PerSourceStatus)

	require.Len(t, resp.Data.RankedRecords, 1)
	rec := resp.Data.RankedRecords[0]
	assert.Equal(t, "Data Scientist", rec["title"])
	assert.Equal(t, []any{"Linkedin_source", "Naukri_source"}, rec["_source"])
}

func TestQueryCommand_Text(t *testing.T) {
	configPath := testEnv(t)

	out, err := execute(t, "--config", configPath,
		"query", "SELECT title, company_name, location FROM jobs WHERE location = 'Pune'")
	require.NoError(t, err)
	assert.Contains(t, out, "global query VALID")
	assert.Contains(t, out, "Indeed_source")
	assert.Contains(t, out, "no_query")
	assert.Contains(t, out, "Results (1):")
	assert.Contains(t, out, "Data Scientist")
}

func TestQueryCommand_GlobalExhausted(t *testing.T) {
	configPath := testEnv(t)

	out, err := execute(t, "--config", configPath, "--format", "json",
		"query", "SELECT salary FROM jobs")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeExhausted, resp.Error.Code)
	assert.Equal(t, "EXHAUSTED", resp.Data.GlobalStatus)
	for source, status := range resp.Data.PerSourceStatus {
		assert.Equal(t, "no_query", status, source)
	}
	assert.Empty(t, resp.Data.RankedRecords)
}

func TestRewriteCommand(t *testing.T) {
	configPath := testEnv(t)

	t.Run("all sources", func(t *testing.T) {
		out, err := execute(t, "--config", configPath,
			"rewrite", "SELECT title, location FROM jobs WHERE location = 'Pune'")
		require.NoError(t, err)
		assert.Contains(t, out, "Linkedin_source (mysql):\n  select title, location from jobs where location = 'Pune'")
		assert.Contains(t, out, `select "Job Title", location from job_listings where location = 'Pune'`)
		assert.Contains(t, out, "select [Job Title], City from JobPostings where City = 'Pune'")
	})

	t.Run("one source as json", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "--format", "json",
			"rewrite", "--source", "Naukri_source", "SELECT title FROM jobs")
		require.NoError(t, err)

		var resp struct {
			Data []RewriteResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, `select "Job Title" from job_listings`, resp.Data[0].SQL)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := execute(t, "--config", configPath, "rewrite", "--source", "Nope", "SELECT title FROM jobs")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("unparseable query", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "rewrite", "SELECT FROM WHERE")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, ErrCodeInvalidQuery)
	})
}

func TestValidateCommand(t *testing.T) {
	configPath := testEnv(t)

	tests := []struct {
		name      string
		args      []string
		wantValid bool
		wantError string
	}{
		{
			name:      "valid global query",
			args:      []string{"validate", "SELECT title FROM jobs;"},
			wantValid: true,
		},
		{
			name:      "unknown global attribute",
			args:      []string{"validate", "SELECT salary FROM jobs;"},
			wantError: `Column "salary" does not exist in any referenced table`,
		},
		{
			name:      "valid source query",
			args:      []string{"validate", "--source", "Naukri_source", `SELECT "Job Title" FROM job_listings;`},
			wantValid: true,
		},
		{
			name:      "global name against a source",
			args:      []string{"validate", "--source", "Naukri_source", "SELECT title FROM job_listings;"},
			wantError: `Column "title" does not exist in any referenced table`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", configPath, "--format", "json"}, tt.args...)
			out, err := execute(t, args...)

			var resp struct {
				Data ValidationResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, tt.wantValid, resp.Data.Valid)

			if tt.wantValid {
				require.NoError(t, err)
				assert.Equal(t, "SELECT", string(resp.Data.StatementType))
				return
			}
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, resp.Data.Errors, tt.wantError)
		})
	}
}

func TestValidateCommand_ReportsInjection(t *testing.T) {
	configPath := testEnv(t)

	out, err := execute(t, "--config", configPath,
		"validate", "SELECT title FROM jobs WHERE location = 'x'' OR ''1''=''1';")
	require.NoError(t, err)
	assert.Contains(t, out, "injection: literal #1")
}

func TestSourcesCommand(t *testing.T) {
	configPath := testEnv(t)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "--format", "json", "sources")
		require.NoError(t, err)

		var resp struct {
			Data []SourceInfo `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data, 3)
		assert.Equal(t, "Linkedin_source", resp.Data[0].Name)
		assert.Equal(t, "sqlite", resp.Data[0].Type)
		assert.Equal(t, "sqlserver", resp.Data[2].Type)
		assert.Equal(t, []string{"skills"}, resp.Data[2].Unmapped)
		assert.Nil(t, resp.Data[0].Check)
	})

	t.Run("check", func(t *testing.T) {
		out, err := execute(t, "--config", configPath, "--format", "json", "sources", "--check")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp struct {
			Data []SourceInfo `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data, 3)

		assert.Equal(t, CheckOK, resp.Data[0].Check.Status)
		assert.Equal(t, CheckMissingColumns, resp.Data[1].Check.Status)
		assert.Equal(t, map[string][]string{"job_listings": {"Key Skills"}}, resp.Data[1].Check.Missing)
		assert.Equal(t, CheckSkipped, resp.Data[2].Check.Status)
	})
}

func TestHintsCommand(t *testing.T) {
	configPath := testEnv(t)

	out, err := execute(t, "--config", configPath, "--format", "json", "hints", "data", "scientist", "jobs")
	require.NoError(t, err)

	var resp struct {
		Data HintsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "data scientist jobs", resp.Data.Question)
	assert.Equal(t, []string{"data", "scientist"}, resp.Data.Keywords)
}
