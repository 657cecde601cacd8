package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/xwb1989/sqlparser"
)

// InjectionCheckResult contains the result of an injection check on a string literal.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Label       string // Where the literal was found, e.g. "literal #2"
	Value       string // The literal that was checked
}

// CheckLiteralForInjection uses libinjection to detect SQL injection
// patterns in a string value. Returns nil if none is detected.
//
// Example:
//
//	result := CheckLiteralForInjection("literal #1", "Bangalore")
//	// result == nil
//
//	result := CheckLiteralForInjection("literal #1", "x' OR '1'='1")
//	// result.IsSQLi == true
func CheckLiteralForInjection(label, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Label:       label,
		Value:       value,
	}
}

// ScreenLiterals checks every string literal of a parsed statement.
// Corrected queries come back from an external service, so their literals
// are not trusted even though they parsed.
func ScreenLiterals(stmt sqlparser.SQLNode) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	n := 0
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		v, ok := node.(*sqlparser.SQLVal)
		if !ok || v.Type != sqlparser.StrVal {
			return true, nil
		}
		n++
		if r := CheckLiteralForInjection(fmt.Sprintf("literal #%d", n), string(v.Val)); r != nil {
			results = append(results, r)
		}
		return true, nil
	}, stmt)
	return results
}
