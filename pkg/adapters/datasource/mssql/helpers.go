package mssql

import (
	"strings"
)

// quoteName quotes an identifier the way QUOTENAME() does: square
// brackets, with ] escaped as ]].
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// columnTypes folds SQL Server column types onto the type names used in the
// registry's global schema, so introspected columns compare against declared types.
var columnTypes = map[string]string{
	"TINYINT":          "INTEGER",
	"SMALLINT":         "INTEGER",
	"INT":              "INTEGER",
	"BIGINT":           "INTEGER",
	"BIT":              "BOOLEAN",
	"DECIMAL":          "NUMERIC",
	"NUMERIC":          "NUMERIC",
	"MONEY":            "NUMERIC",
	"SMALLMONEY":       "NUMERIC",
	"FLOAT":            "REAL",
	"REAL":             "REAL",
	"CHAR":             "TEXT",
	"NCHAR":            "TEXT",
	"VARCHAR":          "TEXT",
	"NVARCHAR":         "TEXT",
	"TEXT":             "TEXT",
	"NTEXT":            "TEXT",
	"XML":              "TEXT",
	"UNIQUEIDENTIFIER": "TEXT",
	"DATE":             "DATE",
	"DATETIME":         "DATETIME",
	"DATETIME2":        "DATETIME",
	"SMALLDATETIME":    "DATETIME",
	"DATETIMEOFFSET":   "DATETIME",
}

// columnType maps a driver type name to its registry type. Unknown types
// pass through upper-cased.
func columnType(sqlServerType string) string {
	upper := strings.ToUpper(sqlServerType)
	if t, ok := columnTypes[upper]; ok {
		return t
	}
	return upper
}
