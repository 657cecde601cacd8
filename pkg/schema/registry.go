// Package schema holds the global (mediated) schema and the per-source
// Global-As-View mappings the federation rewrites against.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-federation/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// fileFormat is the on-disk layout of a registry file.
type fileFormat struct {
	GlobalTables []string                   `yaml:"global_tables"`
	GlobalSchema []models.GlobalAttribute   `yaml:"global_schema"`
	Sources      []*models.SourceDescriptor `yaml:"sources"`
}

// Registry is the read-only schema registry. It is safe for concurrent use
// once constructed because nothing mutates it afterwards.
type Registry struct {
	global       models.GlobalSchema
	sources      []*models.SourceDescriptor
	byName       map[string]*models.SourceDescriptor
	globalTables []string
}

// Load reads a registry YAML file. globalTables adds to any global_tables
// named in the file.
func Load(path string, globalTables []string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	return Parse(data, globalTables)
}

// Parse decodes registry YAML and validates it.
func Parse(data []byte, globalTables []string) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse registry: %v", apperrors.ErrInvalidSchema, err)
	}
	tables := append(append([]string{}, f.GlobalTables...), globalTables...)
	return New(models.GlobalSchema{Attributes: f.GlobalSchema}, f.Sources, tables)
}

// New builds a registry from already-decoded values, enforcing:
//   - global attribute names are unique (case-insensitive);
//   - source names are unique and every source has a dialect and a table;
//   - every attribute_map key is a global attribute.
func New(global models.GlobalSchema, sources []*models.SourceDescriptor, globalTables []string) (*Registry, error) {
	if len(global.Attributes) == 0 {
		return nil, fmt.Errorf("%w: global schema has no attributes", apperrors.ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(global.Attributes))
	for _, a := range global.Attributes {
		key := strings.ToLower(strings.TrimSpace(a.Name))
		if key == "" {
			return nil, fmt.Errorf("%w: global attribute with empty name", apperrors.ErrInvalidSchema)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate global attribute %q", apperrors.ErrInvalidSchema, a.Name)
		}
		seen[key] = true
	}

	r := &Registry{
		global:       global,
		sources:      make([]*models.SourceDescriptor, 0, len(sources)),
		byName:       make(map[string]*models.SourceDescriptor, len(sources)),
		globalTables: dedupeFold(globalTables),
	}
	if len(r.globalTables) == 0 {
		return nil, fmt.Errorf("%w: no global table names configured", apperrors.ErrInvalidSchema)
	}

	for i, src := range sources {
		if src == nil || strings.TrimSpace(src.Name) == "" {
			return nil, fmt.Errorf("%w: source #%d has no name", apperrors.ErrInvalidSchema, i+1)
		}
		if _, dup := r.byName[strings.ToLower(src.Name)]; dup {
			return nil, fmt.Errorf("%w: duplicate source %q", apperrors.ErrInvalidSchema, src.Name)
		}
		dialect, err := models.ParseDialect(string(src.Dialect))
		if err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", apperrors.ErrInvalidSchema, src.Name, err)
		}
		if strings.TrimSpace(src.PhysicalTable) == "" {
			return nil, fmt.Errorf("%w: source %q has no table", apperrors.ErrInvalidSchema, src.Name)
		}
		for attr := range src.AttributeMap {
			if !seen[strings.ToLower(attr)] {
				return nil, fmt.Errorf("%w: source %q maps unknown global attribute %q",
					apperrors.ErrInvalidSchema, src.Name, attr)
			}
		}

		cp := *src
		cp.Dialect = dialect
		cp.AttributeMap = make(map[string]string, len(src.AttributeMap))
		for k, v := range src.AttributeMap {
			cp.AttributeMap[k] = strings.TrimSpace(v)
		}
		r.sources = append(r.sources, &cp)
		r.byName[strings.ToLower(cp.Name)] = &cp
	}

	return r, nil
}

// Global returns the global schema.
func (r *Registry) Global() models.GlobalSchema {
	return r.global
}

// GlobalTables returns the configured global logical table names.
func (r *Registry) GlobalTables() []string {
	return append([]string(nil), r.globalTables...)
}

// Sources returns the sources in declaration order. The descriptors are
// shared and must not be modified.
func (r *Registry) Sources() []*models.SourceDescriptor {
	return append([]*models.SourceDescriptor(nil), r.sources...)
}

// Source looks a source up by case-insensitive name.
func (r *Registry) Source(name string) (*models.SourceDescriptor, error) {
	if src, ok := r.byName[strings.ToLower(name)]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownSource, name)
}

// IsGlobalTable reports whether name refers to the global logical table.
// Singular and plural forms of each configured name are accepted.
func (r *Registry) IsGlobalTable(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, t := range r.globalTables {
		if name == t || name == inflection.Singular(t) || name == inflection.Plural(t) {
			return true
		}
	}
	return false
}

// LocalSchema derives the tables and columns a source exposes from the
// non-null values of its attribute map. Columns are listed in global
// attribute order; a value "t.c" contributes column c to table t.
func (r *Registry) LocalSchema(src *models.SourceDescriptor) models.LocalSchema {
	schema := make(models.LocalSchema)
	seen := make(map[string]bool)

	for _, attr := range r.global.Attributes {
		mapped, ok := src.LocalColumn(attr.Name)
		if !ok {
			continue
		}
		table, column := models.SplitQualified(mapped)
		if table == "" {
			table = src.PhysicalTable
		}
		key := strings.ToLower(table) + "\x00" + strings.ToLower(column)
		if seen[key] {
			continue
		}
		seen[key] = true
		schema[table] = append(schema[table], column)
	}
	return schema
}

// GlobalValidationSchema maps every accepted global table name, including its
// singular and plural forms, to all global attributes. The global query is
// validated against it.
func (r *Registry) GlobalValidationSchema() models.LocalSchema {
	schema := make(models.LocalSchema, len(r.globalTables)*3)
	for _, t := range r.globalTables {
		for _, name := range []string{t, inflection.Singular(t), inflection.Plural(t)} {
			schema[name] = r.global.Names()
		}
	}
	return schema
}

func dedupeFold(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
