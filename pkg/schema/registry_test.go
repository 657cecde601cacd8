package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-federation/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load("testdata/registry.yaml", nil)
	require.NoError(t, err)
	return r
}

func TestLoad_TestdataRegistry(t *testing.T) {
	r := loadTestRegistry(t)

	assert.Len(t, r.Global().Attributes, 14)
	assert.Equal(t, []string{"jobs"}, r.GlobalTables())

	sources := r.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "Linkedin_source", sources[0].Name, "declaration order is kept")
	assert.Equal(t, models.DialectMySQL, sources[0].Dialect)
	assert.Equal(t, 3*time.Second, sources[0].Timeout)
	assert.Equal(t, "Naukri_source", sources[1].Name)
	assert.Equal(t, models.DialectPostgres, sources[1].Dialect)
	assert.Equal(t, "job_listings", sources[1].PhysicalTable)

	_, ok := sources[0].LocalColumn("qualifications")
	assert.False(t, ok, "yaml null means not carried")
}

func TestRegistry_Source(t *testing.T) {
	r := loadTestRegistry(t)

	src, err := r.Source("naukri_source")
	require.NoError(t, err)
	assert.Equal(t, "Naukri_source", src.Name)

	_, err = r.Source("Indeed_source")
	assert.ErrorIs(t, err, apperrors.ErrUnknownSource)
}

func TestRegistry_IsGlobalTable(t *testing.T) {
	r := loadTestRegistry(t)

	assert.True(t, r.IsGlobalTable("jobs"))
	assert.True(t, r.IsGlobalTable("JOBS"))
	assert.True(t, r.IsGlobalTable("job"))
	assert.False(t, r.IsGlobalTable("job_listings"))
	assert.False(t, r.IsGlobalTable(""))
}

func TestRegistry_LocalSchema(t *testing.T) {
	r := loadTestRegistry(t)

	src, err := r.Source("Naukri_source")
	require.NoError(t, err)

	local := r.LocalSchema(src)
	require.Contains(t, local, "job_listings")
	cols := local["job_listings"]
	assert.Equal(t, "Job Id", cols[0], "columns follow global attribute order")
	assert.Contains(t, cols, "Salary Range")
	assert.NotContains(t, cols, "currency")
	assert.Len(t, cols, 13)
}

func TestRegistry_LocalSchema_QualifiedMapping(t *testing.T) {
	global := models.GlobalSchema{Attributes: []models.GlobalAttribute{
		{Name: "title"}, {Name: "company_name"}, {Name: "location"},
	}}
	src := &models.SourceDescriptor{
		Name:          "Indeed_source",
		Dialect:       "mysql",
		PhysicalTable: "postings",
		AttributeMap: map[string]string{
			"title":        "title",
			"company_name": "companies.name",
			"location":     "",
		},
	}
	r, err := New(global, []*models.SourceDescriptor{src}, []string{"jobs"})
	require.NoError(t, err)

	s, err := r.Source("Indeed_source")
	require.NoError(t, err)
	local := r.LocalSchema(s)
	assert.Equal(t, models.LocalSchema{
		"postings":  {"title"},
		"companies": {"name"},
	}, local)
}

func TestRegistry_GlobalValidationSchema(t *testing.T) {
	r := loadTestRegistry(t)

	gs := r.GlobalValidationSchema()
	assert.Equal(t, r.Global().Names(), gs["jobs"])
	assert.Equal(t, r.Global().Names(), gs["job"])
}

func TestNew_Invariants(t *testing.T) {
	global := models.GlobalSchema{Attributes: []models.GlobalAttribute{{Name: "title"}, {Name: "location"}}}
	good := func() *models.SourceDescriptor {
		return &models.SourceDescriptor{
			Name: "a", Dialect: "postgres", PhysicalTable: "t",
			AttributeMap: map[string]string{"title": "title"},
		}
	}

	tests := []struct {
		name    string
		global  models.GlobalSchema
		sources func() []*models.SourceDescriptor
		tables  []string
	}{
		{
			name:    "duplicate global attribute",
			global:  models.GlobalSchema{Attributes: []models.GlobalAttribute{{Name: "title"}, {Name: "Title"}}},
			sources: func() []*models.SourceDescriptor { return nil },
			tables:  []string{"jobs"},
		},
		{
			name:    "empty global schema",
			sources: func() []*models.SourceDescriptor { return nil },
			tables:  []string{"jobs"},
		},
		{
			name:   "unknown mapped attribute",
			global: global,
			sources: func() []*models.SourceDescriptor {
				s := good()
				s.AttributeMap["salary"] = "pay"
				return []*models.SourceDescriptor{s}
			},
			tables: []string{"jobs"},
		},
		{
			name:    "duplicate source name",
			global:  global,
			sources: func() []*models.SourceDescriptor { return []*models.SourceDescriptor{good(), good()} },
			tables:  []string{"jobs"},
		},
		{
			name:   "bad dialect",
			global: global,
			sources: func() []*models.SourceDescriptor {
				s := good()
				s.Dialect = "oracle"
				return []*models.SourceDescriptor{s}
			},
			tables: []string{"jobs"},
		},
		{
			name:   "missing table",
			global: global,
			sources: func() []*models.SourceDescriptor {
				s := good()
				s.PhysicalTable = ""
				return []*models.SourceDescriptor{s}
			},
			tables: []string{"jobs"},
		},
		{
			name:    "no global tables",
			global:  global,
			sources: func() []*models.SourceDescriptor { return []*models.SourceDescriptor{good()} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.global, tt.sources(), tt.tables)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidSchema)
		})
	}
}

func TestNew_NormalizesDialectAliases(t *testing.T) {
	global := models.GlobalSchema{Attributes: []models.GlobalAttribute{{Name: "title"}}}
	src := &models.SourceDescriptor{Name: "a", Dialect: "PostgreSQL", PhysicalTable: "t"}

	r, err := New(global, []*models.SourceDescriptor{src}, []string{"Jobs"})
	require.NoError(t, err)

	s, err := r.Source("a")
	require.NoError(t, err)
	assert.Equal(t, models.DialectPostgres, s.Dialect)
	assert.Equal(t, models.Dialect("PostgreSQL"), src.Dialect, "input descriptor is not mutated")
	assert.True(t, r.IsGlobalTable("jobs"))
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("sources: [unterminated"), []string{"jobs"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSchema)
}
