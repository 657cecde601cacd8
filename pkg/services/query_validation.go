package services

import (
	"regexp"
	"strings"
)

// SQLStatementType represents the type of SQL statement.
type SQLStatementType string

const (
	SQLTypeSelect  SQLStatementType = "SELECT"
	SQLTypeInsert  SQLStatementType = "INSERT"
	SQLTypeUpdate  SQLStatementType = "UPDATE"
	SQLTypeDelete  SQLStatementType = "DELETE"
	SQLTypeDDL     SQLStatementType = "DDL"     // CREATE, ALTER, DROP, TRUNCATE
	SQLTypeUnknown SQLStatementType = "UNKNOWN" // Unrecognized or blocked statement types
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations.
// Example: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// leadingCommentPattern matches SQL comments before the first keyword.
var leadingCommentPattern = regexp.MustCompile(`^(\s*(--[^\n]*\n|/\*.*?\*/))*\s*`)

// DetectSQLType determines the type of SQL statement based on the first
// keyword, ignoring leading comments.
func DetectSQLType(sql string) SQLStatementType {
	normalized := strings.ToUpper(leadingCommentPattern.ReplaceAllString(sql, ""))

	switch {
	case hasKeyword(normalized, "SELECT"):
		return SQLTypeSelect

	case hasKeyword(normalized, "WITH"):
		if containsModifyingCTE(sql) {
			return SQLTypeUnknown
		}
		return SQLTypeSelect

	case hasKeyword(normalized, "INSERT"):
		return SQLTypeInsert

	case hasKeyword(normalized, "UPDATE"):
		return SQLTypeUpdate

	case hasKeyword(normalized, "DELETE"):
		return SQLTypeDelete

	case hasKeyword(normalized, "CREATE"),
		hasKeyword(normalized, "ALTER"),
		hasKeyword(normalized, "DROP"),
		hasKeyword(normalized, "TRUNCATE"):
		return SQLTypeDDL

	default:
		return SQLTypeUnknown
	}
}

// hasKeyword reports whether s starts with keyword as a whole word.
func hasKeyword(s, keyword string) bool {
	if !strings.HasPrefix(s, keyword) {
		return false
	}
	if len(s) == len(keyword) {
		return true
	}
	next := s[len(keyword)]
	return !(next == '_' || (next >= 'A' && next <= 'Z') || (next >= '0' && next <= '9'))
}

// containsModifyingCTE checks if a WITH clause contains data-modifying operations.
func containsModifyingCTE(sql string) bool {
	return modifyingCTEPattern.MatchString(sql)
}

// IsModifyingStatement returns true if the SQL statement type can modify data.
func IsModifyingStatement(sqlType SQLStatementType) bool {
	switch sqlType {
	case SQLTypeInsert, SQLTypeUpdate, SQLTypeDelete:
		return true
	default:
		return false
	}
}

// IsQueryStatement reports whether sqlType is one the validator understands.
// Correction output of any other type is rejected.
func IsQueryStatement(sqlType SQLStatementType) bool {
	return sqlType == SQLTypeSelect || IsModifyingStatement(sqlType)
}

// SQLTypeError represents an error related to SQL statement type validation.
type SQLTypeError struct {
	Type    SQLStatementType
	Message string
}

func (e *SQLTypeError) Error() string {
	return e.Message
}

// ValidateReadOnly returns an error unless sql is a SELECT. Federated
// execution never sends data-modifying statements to a source, even when
// they pass validation.
func ValidateReadOnly(sql string) (SQLStatementType, error) {
	sqlType := DetectSQLType(sql)

	switch {
	case sqlType == SQLTypeSelect:
		return sqlType, nil
	case sqlType == SQLTypeDDL:
		return sqlType, &SQLTypeError{
			Type:    sqlType,
			Message: "DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed",
		}
	case IsModifyingStatement(sqlType):
		return sqlType, &SQLTypeError{
			Type:    sqlType,
			Message: "statement modifies data; federated queries are read-only",
		}
	default:
		return sqlType, &SQLTypeError{
			Type:    sqlType,
			Message: "unrecognized SQL statement type; only SELECT is executed",
		}
	}
}
