package models

import (
	"fmt"
	"strings"
	"time"
)

// GlobalSchemaSource is the scope name used when validating the global query.
const GlobalSchemaSource = "GLOBAL_SCHEMA"

// Dialect identifies the SQL dialect family of a source.
type Dialect string

const (
	DialectMySQL     Dialect = "mysql"
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"

	// GlobalDialect is the grammar global queries are parsed and validated
	// with. It matches the rewriter's input grammar.
	GlobalDialect = DialectMySQL
)

// ParseDialect normalizes a dialect name, accepting common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlserver", "mssql", "tsql":
		return DialectSQLServer, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", s)
	}
}

// IsValid returns true for the supported dialect families.
func (d Dialect) IsValid() bool {
	switch d {
	case DialectMySQL, DialectPostgres, DialectSQLServer:
		return true
	}
	return false
}

// DefaultConnectorType returns the connector type used when a source does not name one.
func (d Dialect) DefaultConnectorType() string {
	return string(d)
}

// GlobalAttribute is one attribute of the global (mediated) schema.
type GlobalAttribute struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// GlobalSchema is the ordered, immutable set of global attributes.
type GlobalSchema struct {
	Attributes []GlobalAttribute `yaml:"attributes" json:"attributes"`
}

// Names returns the attribute names in declaration order.
func (g GlobalSchema) Names() []string {
	names := make([]string, len(g.Attributes))
	for i, a := range g.Attributes {
		names[i] = a.Name
	}
	return names
}

// Lookup finds an attribute by case-insensitive name.
func (g GlobalSchema) Lookup(name string) (GlobalAttribute, bool) {
	for _, a := range g.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return GlobalAttribute{}, false
}

// Has reports whether name is a global attribute.
func (g GlobalSchema) Has(name string) bool {
	_, ok := g.Lookup(name)
	return ok
}

// SourceDescriptor describes one local source and its GAV mapping.
// AttributeMap keys are global attribute names; an empty value means the
// source does not carry the attribute. A value of the form "table.column"
// refers to a column of another physical table.
type SourceDescriptor struct {
	Name          string            `yaml:"name" json:"name"`
	Dialect       Dialect           `yaml:"dialect" json:"dialect"`
	PhysicalTable string            `yaml:"table" json:"table"`
	AttributeMap  map[string]string `yaml:"attributes" json:"attributes"`

	// Connector settings, used only by the datasource layer.
	Type       string         `yaml:"type" json:"type,omitempty"`
	Connection map[string]any `yaml:"connection" json:"-"`
	Timeout    time.Duration  `yaml:"timeout" json:"timeout,omitempty"`
}

// ConnectorType returns the datasource adapter type for this source.
func (s *SourceDescriptor) ConnectorType() string {
	if s.Type != "" {
		return s.Type
	}
	return s.Dialect.DefaultConnectorType()
}

// LocalColumn returns the mapped local column for a global attribute.
// The lookup is case-insensitive; unmapped or null attributes return false.
func (s *SourceDescriptor) LocalColumn(attr string) (string, bool) {
	if v, ok := s.AttributeMap[attr]; ok {
		return v, v != ""
	}
	for k, v := range s.AttributeMap {
		if strings.EqualFold(k, attr) {
			return v, v != ""
		}
	}
	return "", false
}

// SplitQualified splits a mapped value of the form "table.column".
// Unqualified values return an empty table.
func SplitQualified(mapped string) (table, column string) {
	if i := strings.LastIndexByte(mapped, '.'); i > 0 && i < len(mapped)-1 {
		return mapped[:i], mapped[i+1:]
	}
	return "", mapped
}

// LocalSchema maps physical table names to the columns a source exposes.
type LocalSchema map[string][]string

// Empty reports whether the schema carries no tables.
func (s LocalSchema) Empty() bool {
	return len(s) == 0
}
