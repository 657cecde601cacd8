package sql

import (
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

var (
	// pgBareIdentifier matches identifiers Postgres accepts unquoted without case folding.
	pgBareIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	// bareIdentifier matches identifiers MySQL and SQL Server accept unquoted.
	bareIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	// pgDateFormat translates MySQL DATE_FORMAT tokens into TO_CHAR patterns.
	pgDateFormat = strings.NewReplacer(
		"%Y", "YYYY",
		"%y", "YY",
		"%m", "MM",
		"%d", "DD",
		"%H", "HH24",
		"%i", "MI",
		"%s", "SS",
	)
)

// parserQuotes reports whether the parser itself would quote name, which
// happens for reserved words and names starting with a digit.
func parserQuotes(name string) bool {
	return strings.HasPrefix(sqlparser.String(sqlparser.NewColIdent(name)), "`")
}

// QuoteIdentifier renders an identifier with the quoting convention of dialect.
// MySQL backticks and SQL Server brackets identifiers with characters outside
// [A-Za-z0-9_]; Postgres double-quotes anything that is not a bare lowercase
// identifier. Reserved words are quoted in every dialect.
func QuoteIdentifier(name string, dialect models.Dialect) string {
	switch dialect {
	case models.DialectPostgres:
		if pgBareIdentifier.MatchString(name) && !parserQuotes(name) {
			return name
		}
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	case models.DialectSQLServer:
		if bareIdentifier.MatchString(name) && !parserQuotes(name) {
			return name
		}
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		if bareIdentifier.MatchString(name) && !parserQuotes(name) {
			return name
		}
		return sqlparser.Backtick(name)
	}
}

// quoteString renders a string literal with standard '' escaping.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Render formats a statement for dialect.
func Render(node sqlparser.SQLNode, dialect models.Dialect) string {
	p := &printer{dialect: dialect}
	buf := sqlparser.NewTrackedBuffer(p.format)
	buf.Myprintf("%v", node)
	return buf.String()
}

// printer is a sqlparser.NodeFormatter that applies dialect rules. Nodes it
// does not handle fall back to the parser's own MySQL formatting, which
// recurses through the printer for their children.
type printer struct {
	dialect models.Dialect
}

func (p *printer) format(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode) {
	switch n := node.(type) {
	case sqlparser.ColIdent:
		if !n.IsEmpty() {
			buf.WriteString(QuoteIdentifier(n.String(), p.dialect))
		}
		return
	case sqlparser.TableIdent:
		if !n.IsEmpty() {
			buf.WriteString(QuoteIdentifier(n.String(), p.dialect))
		}
		return
	case *sqlparser.SQLVal:
		if n != nil && n.Type == sqlparser.StrVal && p.dialect != models.DialectMySQL {
			buf.WriteString(quoteString(string(n.Val)))
			return
		}
	case *sqlparser.Select:
		if n != nil && p.dialect != models.DialectMySQL {
			p.formatSelect(buf, n)
			return
		}
	case *sqlparser.Limit:
		if n != nil && p.dialect != models.DialectMySQL {
			p.formatLimit(buf, n)
			return
		}
	case *sqlparser.FuncExpr:
		if n != nil && p.formatFunc(buf, n) {
			return
		}
	case *sqlparser.GroupConcatExpr:
		if n != nil && p.dialect != models.DialectMySQL {
			p.formatStringAgg(buf, n)
			return
		}
	}
	node.Format(buf)
}

// formatSelect drops MySQL-only modifiers and the implicit "from dual".
// SQL Server gets TOP for plain limits and OFFSET/FETCH for offsets.
func (p *printer) formatSelect(buf *sqlparser.TrackedBuffer, n *sqlparser.Select) {
	buf.Myprintf("select %v%s", n.Comments, n.Distinct)
	if p.dialect == models.DialectSQLServer && n.Limit != nil && n.Limit.Offset == nil {
		buf.Myprintf("top (%v) ", n.Limit.Rowcount)
	}
	buf.Myprintf("%v", n.SelectExprs)
	if !isDual(n.From) {
		buf.Myprintf(" from %v", n.From)
	}
	buf.Myprintf("%v%v%v%v", n.Where, n.GroupBy, n.Having, n.OrderBy)

	if n.Limit == nil {
		return
	}
	if p.dialect == models.DialectSQLServer {
		if n.Limit.Offset != nil {
			if len(n.OrderBy) == 0 {
				buf.WriteString(" order by (select null)")
			}
			buf.Myprintf(" offset %v rows fetch next %v rows only", n.Limit.Offset, n.Limit.Rowcount)
		}
		return
	}
	buf.Myprintf("%v", n.Limit)
}

func (p *printer) formatLimit(buf *sqlparser.TrackedBuffer, n *sqlparser.Limit) {
	if p.dialect == models.DialectSQLServer {
		if n.Offset != nil {
			buf.Myprintf(" offset %v rows", n.Offset)
		} else {
			buf.WriteString(" offset 0 rows")
		}
		buf.Myprintf(" fetch next %v rows only", n.Rowcount)
		return
	}
	buf.Myprintf(" limit %v", n.Rowcount)
	if n.Offset != nil {
		buf.Myprintf(" offset %v", n.Offset)
	}
}

// formatFunc translates MySQL functions without a direct equivalent.
// It returns false when the default formatting applies.
func (p *printer) formatFunc(buf *sqlparser.TrackedBuffer, n *sqlparser.FuncExpr) bool {
	if !n.Qualifier.IsEmpty() || p.dialect == models.DialectMySQL {
		return false
	}
	args := funcArgs(n)

	switch p.dialect {
	case models.DialectPostgres:
		switch n.Name.Lowered() {
		case "ifnull":
			p.call(buf, "coalesce", n)
		case "now", "current_timestamp":
			buf.WriteString("current_timestamp")
		case "curdate", "current_date":
			buf.WriteString("current_date")
		case "rand":
			buf.WriteString("random()")
		case "if":
			if len(args) != 3 {
				return false
			}
			buf.Myprintf("case when %v then %v else %v end", args[0], args[1], args[2])
		case "date_format", "str_to_date":
			fmtVal, ok := stringArg(args, 1)
			if !ok {
				return false
			}
			name := "to_char"
			if n.Name.Lowered() == "str_to_date" {
				name = "to_date"
			}
			buf.Myprintf("%s(%v, %s)", name, args[0], quoteString(pgDateFormat.Replace(fmtVal)))
		default:
			return false
		}
	case models.DialectSQLServer:
		switch n.Name.Lowered() {
		case "ifnull":
			p.call(buf, "isnull", n)
		case "now":
			buf.WriteString("getdate()")
		case "current_timestamp":
			buf.WriteString("current_timestamp")
		case "curdate", "current_date":
			buf.WriteString("cast(getdate() as date)")
		case "length", "char_length":
			p.call(buf, "len", n)
		case "if":
			if len(args) != 3 {
				return false
			}
			buf.Myprintf("iif(%v, %v, %v)", args[0], args[1], args[2])
		default:
			return false
		}
	default:
		return false
	}
	return true
}

func (p *printer) call(buf *sqlparser.TrackedBuffer, name string, n *sqlparser.FuncExpr) {
	distinct := ""
	if n.Distinct {
		distinct = "distinct "
	}
	buf.Myprintf("%s(%s%v)", name, distinct, n.Exprs)
}

// formatStringAgg renders GROUP_CONCAT as STRING_AGG.
func (p *printer) formatStringAgg(buf *sqlparser.TrackedBuffer, n *sqlparser.GroupConcatExpr) {
	sep := ","
	if n.Separator != "" {
		sep = strings.TrimSuffix(strings.TrimPrefix(n.Separator, " separator '"), "'")
	}

	buf.WriteString("string_agg(")
	if p.dialect == models.DialectPostgres {
		buf.WriteString(n.Distinct)
	}
	if len(n.Exprs) == 1 {
		buf.Myprintf("%v", n.Exprs)
	} else {
		buf.Myprintf("concat(%v)", n.Exprs)
	}
	buf.WriteString(", " + quoteString(sep))

	if p.dialect == models.DialectPostgres {
		buf.Myprintf("%v)", n.OrderBy)
		return
	}
	buf.WriteByte(')')
	if len(n.OrderBy) > 0 {
		buf.WriteString(" within group (order by ")
		for i, o := range n.OrderBy {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.Myprintf("%v", o)
		}
		buf.WriteByte(')')
	}
}

// funcArgs returns the argument expressions of a function call, or nil when
// any argument is not a plain expression (e.g. a star).
func funcArgs(n *sqlparser.FuncExpr) []sqlparser.Expr {
	args := make([]sqlparser.Expr, 0, len(n.Exprs))
	for _, e := range n.Exprs {
		ae, ok := e.(*sqlparser.AliasedExpr)
		if !ok {
			return nil
		}
		args = append(args, ae.Expr)
	}
	return args
}

func stringArg(args []sqlparser.Expr, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	v, ok := args[i].(*sqlparser.SQLVal)
	if !ok || v.Type != sqlparser.StrVal {
		return "", false
	}
	return string(v.Val), true
}

// isDual reports whether from is the implicit table of a FROM-less SELECT.
func isDual(from sqlparser.TableExprs) bool {
	if len(from) != 1 {
		return false
	}
	ate, ok := from[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return false
	}
	tn, ok := ate.Expr.(sqlparser.TableName)
	return ok && tn.Qualifier.IsEmpty() && tn.Name.String() == "dual"
}
