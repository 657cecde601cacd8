// Package sql rewrites global-schema queries for individual sources and
// validates candidate queries against a source's local schema.
package sql

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// NormalizeResult contains the normalized SQL and any normalization error.
type NormalizeResult struct {
	NormalizedSQL string
	// Terminated is true when the input ended with a statement terminator.
	Terminated bool
	Error      error
}

// Normalize trims the query, strips the trailing semicolon and rejects
// multiple statements.
//
// The order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Check for multiple statements (any remaining semicolons outside string literals)
func Normalize(sqlQuery string) NormalizeResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return NormalizeResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	terminated := len(normalized) != len(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return NormalizeResult{Error: ErrMultipleStatements}
	}

	return NormalizeResult{NormalizedSQL: normalized, Terminated: terminated}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals and quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	found := false
	scanOutsideQuotes(sqlQuery, func(_ int, c rune) bool {
		if c == ';' {
			found = true
			return false
		}
		return true
	})
	return found
}

// scanOutsideQuotes calls fn for every rune that is not inside a single-quoted,
// double-quoted, backticked or bracketed section. fn returns false to stop.
// Both backslash escapes and doubled quotes are handled.
func scanOutsideQuotes(sqlQuery string, fn func(i int, c rune) bool) {
	var quote rune
	prev := rune(0)

	for i, c := range sqlQuery {
		if quote != 0 {
			// A doubled quote exits and immediately re-enters, which keeps us inside.
			if c == quote && prev != '\\' {
				quote = 0
			}
			prev = c
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '[':
			quote = ']'
		default:
			if !fn(i, c) {
				return
			}
		}
		prev = c
	}
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}

	return sqlQuery
}

var (
	mssqlTopPattern = regexp.MustCompile(`(?i)^(\s*select\s+(?:distinct\s+)?)top\s*\(?\s*(\d+)\s*\)?\s+`)
	mssqlFetchPattern = regexp.MustCompile(
		`(?i)(\s+order\s+by\s+\(\s*select\s+null\s*\))?\s+offset\s+(\d+)\s+rows?\s+fetch\s+(?:next|first)\s+(\d+)\s+rows?\s+only\s*$`)
)

// toParserSyntax converts dialect-specific syntax into the MySQL-compatible
// form the parser accepts: Postgres "ident" and SQL Server [ident] become
// backticked identifiers, and SQL Server TOP / OFFSET-FETCH become LIMIT.
func toParserSyntax(query string, dialect models.Dialect) string {
	switch dialect {
	case models.DialectPostgres:
		return requoteIdentifiers(query, '"', '"')
	case models.DialectSQLServer:
		query = requoteIdentifiers(query, '[', ']')
		if m := mssqlFetchPattern.FindStringSubmatch(query); m != nil {
			query = query[:len(query)-len(m[0])] + " limit " + m[2] + ", " + m[3]
		}
		if m := mssqlTopPattern.FindStringSubmatch(query); m != nil {
			query = m[1] + query[len(m[0]):] + " limit " + m[2]
		}
		return query
	default:
		return query
	}
}

// requoteIdentifiers rewrites open...close quoted identifiers as backticked
// identifiers. Postgres and SQL Server string literals escape quotes only by
// doubling them, so a backslash inside a literal is a plain character and is
// doubled for the MySQL-grammar parser.
func requoteIdentifiers(query string, open, close rune) string {
	var b strings.Builder
	b.Grow(len(query))

	runes := []rune(query)
	inString := false
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inString:
			switch c {
			case '\\':
				b.WriteString(`\\`)
			case '\'':
				b.WriteRune(c)
				inString = false
			default:
				b.WriteRune(c)
			}
		case c == '\'':
			inString = true
			b.WriteRune(c)
		case c == open:
			b.WriteByte('`')
			for i++; i < len(runes); i++ {
				if runes[i] == close {
					if i+1 < len(runes) && runes[i+1] == close {
						b.WriteRune(close)
						i++
						continue
					}
					break
				}
				if runes[i] == '`' {
					b.WriteByte('`')
				}
				b.WriteRune(runes[i])
			}
			b.WriteByte('`')
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
