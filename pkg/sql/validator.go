package sql

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// Validation messages. Semantic messages name the offending identifier.
const (
	msgEmptyQuery        = "Query is empty"
	msgSelectMissingFrom = "SELECT statement missing FROM clause"
	msgUpdateNoTarget    = "UPDATE statement missing target table"
	msgDeleteMissingFrom = "DELETE statement missing FROM clause"
	msgInsertEmptyValues = "INSERT has empty VALUES list"
	msgUnsupported       = "Only SELECT, INSERT, UPDATE and DELETE statements are supported"

	warnUpdateNoWhere    = "UPDATE without WHERE clause will modify all rows"
	warnDeleteNoWhere    = "DELETE without WHERE clause will remove all rows"
	warnSelectStar       = "SELECT * may have performance implications in production"
	warnMissingSemicolon = "Query does not end with semicolon (optional but recommended)"
)

// Report is a verdict plus the literals flagged by injection screening.
type Report struct {
	Verdict    models.ValidationVerdict
	Injections []*InjectionCheckResult
}

// Validate checks query structurally and, when schema is non-empty,
// semantically against it. It is a pure function of its inputs.
func Validate(query string, dialect models.Dialect, schema models.LocalSchema) models.ValidationVerdict {
	return Check(query, dialect, schema).Verdict
}

// Check is Validate with the injection screening details kept.
func Check(query string, dialect models.Dialect, schema models.LocalSchema) Report {
	verdict := models.ValidationVerdict{Errors: []string{}, Warnings: []string{}}
	invalid := func(msg string) Report {
		verdict.Errors = append(verdict.Errors, msg)
		return Report{Verdict: verdict}
	}

	norm := Normalize(query)
	if norm.Error != nil {
		return invalid(norm.Error.Error())
	}
	if norm.NormalizedSQL == "" {
		return invalid(msgEmptyQuery)
	}

	stmt, err := sqlparser.Parse(toParserSyntax(norm.NormalizedSQL, dialect))
	if err != nil {
		return invalid("Parse error: " + err.Error())
	}

	injections := ScreenLiterals(stmt)
	verdict.Warnings = warnings(stmt, norm.Terminated, injections)

	if errs := structuralErrors(stmt); len(errs) > 0 {
		verdict.Errors = errs
		return Report{Verdict: verdict, Injections: injections}
	}

	if !schema.Empty() {
		verdict.Errors = newSemanticCheck(schema).run(stmt)
	}
	verdict.Valid = len(verdict.Errors) == 0
	return Report{Verdict: verdict, Injections: injections}
}

// messages is an ordered set of strings.
type messages struct {
	list []string
	seen map[string]bool
}

func (m *messages) add(msg string) {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if !m.seen[msg] {
		m.seen[msg] = true
		m.list = append(m.list, msg)
	}
}

func structuralErrors(stmt sqlparser.Statement) []string {
	var errs messages

	switch s := stmt.(type) {
	case sqlparser.SelectStatement:
	case *sqlparser.Insert:
		if vals, ok := s.Rows.(sqlparser.Values); ok {
			if len(vals) == 0 {
				errs.add(msgInsertEmptyValues)
			}
			for _, tuple := range vals {
				if len(tuple) == 0 {
					errs.add(msgInsertEmptyValues)
				}
			}
		}
	case *sqlparser.Update:
		if !hasNamedTable(s.TableExprs) {
			errs.add(msgUpdateNoTarget)
		}
	case *sqlparser.Delete:
		if len(s.TableExprs) == 0 {
			errs.add(msgDeleteMissingFrom)
		}
	default:
		errs.add(msgUnsupported)
		return errs.list
	}

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if sel, ok := node.(*sqlparser.Select); ok && (len(sel.From) == 0 || isDual(sel.From)) {
			errs.add(msgSelectMissingFrom)
		}
		return true, nil
	}, stmt)

	return errs.list
}

func hasNamedTable(exprs sqlparser.TableExprs) bool {
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if ate, ok := node.(*sqlparser.AliasedTableExpr); ok {
			if tn, ok := ate.Expr.(sqlparser.TableName); ok && !tn.IsEmpty() {
				found = true
				return false, nil
			}
		}
		return true, nil
	}, exprs)
	return found
}

func warnings(stmt sqlparser.Statement, terminated bool, injections []*InjectionCheckResult) []string {
	var warns messages

	switch s := stmt.(type) {
	case *sqlparser.Update:
		if s.Where == nil {
			warns.add(warnUpdateNoWhere)
		}
	case *sqlparser.Delete:
		if s.Where == nil {
			warns.add(warnDeleteNoWhere)
		}
	}

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if sel, ok := node.(*sqlparser.Select); ok {
			for _, e := range sel.SelectExprs {
				if _, star := e.(*sqlparser.StarExpr); star {
					warns.add(warnSelectStar)
				}
			}
		}
		return true, nil
	}, stmt)

	if !terminated {
		warns.add(warnMissingSemicolon)
	}
	for _, inj := range injections {
		warns.add(fmt.Sprintf("Possible SQL injection in %s (fingerprint %s)", inj.Label, inj.Fingerprint))
	}

	if warns.list == nil {
		return []string{}
	}
	return warns.list
}

// semanticCheck resolves table and column references of one statement
// against a schema. Names compare case-insensitively.
type semanticCheck struct {
	// tables maps lower-cased table name to its display name and columns.
	tables map[string]schemaTable

	referenced []string          // lower-cased tables in reference order
	display    map[string]string // lower-cased name -> name as written
	errs       messages
}

type schemaTable struct {
	name    string
	columns map[string]bool
}

// scope holds the names one SELECT (or UPDATE/DELETE) can see. Nested
// subqueries chain to the scope they appear in.
type scope struct {
	parent  *scope
	tables  []string             // lower-cased base tables in FROM order
	aliases map[string]string    // lower-cased alias or table -> lower-cased table
	derived map[string]outputSet // lower-cased derived table alias -> its columns
	order   []string             // derived aliases in FROM order
}

func newScope(parent *scope) *scope {
	return &scope{
		parent:  parent,
		aliases: make(map[string]string),
		derived: make(map[string]outputSet),
	}
}

// outputSet is the column names a derived table exposes. A star in its
// select list exposes anything.
type outputSet struct {
	names map[string]bool
	any   bool
}

func (o outputSet) has(name string) bool {
	return o.any || o.names[name]
}

func newSemanticCheck(schema models.LocalSchema) *semanticCheck {
	c := &semanticCheck{
		tables:  make(map[string]schemaTable, len(schema)),
		display: make(map[string]string),
	}
	for table, cols := range schema {
		st := schemaTable{name: table, columns: make(map[string]bool, len(cols))}
		for _, col := range cols {
			st.columns[strings.ToLower(col)] = true
		}
		c.tables[strings.ToLower(table)] = st
	}
	return c
}

func (c *semanticCheck) run(stmt sqlparser.Statement) []string {
	c.collectTables(stmt)

	for _, table := range c.referenced {
		if _, ok := c.tables[table]; !ok {
			c.errs.add(fmt.Sprintf("Table %q does not exist in schema", c.display[table]))
		}
	}

	switch s := stmt.(type) {
	case sqlparser.SelectStatement:
		c.checkSelectStatement(s, nil)
	case *sqlparser.Insert:
		c.checkInsert(s)
	case *sqlparser.Update:
		sc := newScope(nil)
		c.addFrom(sc, s.TableExprs)
		for _, ue := range s.Exprs {
			c.checkColumn(ue.Name, sc, nil)
			c.checkExpr(ue.Expr, sc, nil)
		}
		c.checkWhere(s.Where, sc, nil)
		c.checkOrderBy(s.OrderBy, sc, nil)
	case *sqlparser.Delete:
		sc := newScope(nil)
		c.addFrom(sc, s.TableExprs)
		c.checkWhere(s.Where, sc, nil)
		c.checkOrderBy(s.OrderBy, sc, nil)
	}

	return c.errs.list
}

func (c *semanticCheck) reference(name string) string {
	key := strings.ToLower(name)
	if _, seen := c.display[key]; !seen {
		c.display[key] = name
		c.referenced = append(c.referenced, key)
	}
	return key
}

// collectTables records every base table the statement names.
func (c *semanticCheck) collectTables(stmt sqlparser.Statement) {
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := n.Expr.(sqlparser.TableName); ok {
				c.reference(tn.Name.String())
			}
		case *sqlparser.Insert:
			c.reference(n.Table.Name.String())
		}
		return true, nil
	}, stmt)
}

func (c *semanticCheck) checkSelectStatement(stmt sqlparser.SelectStatement, parent *scope) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		c.checkSelect(s, parent)
	case *sqlparser.Union:
		c.checkSelectStatement(s.Left, parent)
		c.checkSelectStatement(s.Right, parent)
	case *sqlparser.ParenSelect:
		c.checkSelectStatement(s.Select, parent)
	}
}

// checkSelect checks one SELECT. Select-list aliases are visible only to
// GROUP BY, HAVING and ORDER BY.
func (c *semanticCheck) checkSelect(sel *sqlparser.Select, parent *scope) {
	sc := newScope(parent)
	c.addFrom(sc, sel.From)

	aliases := make(map[string]bool)
	for _, e := range sel.SelectExprs {
		if ae, ok := e.(*sqlparser.AliasedExpr); ok {
			c.checkExpr(ae.Expr, sc, nil)
			if !ae.As.IsEmpty() {
				aliases[ae.As.Lowered()] = true
			}
		}
	}

	c.checkWhere(sel.Where, sc, nil)
	for _, expr := range sel.GroupBy {
		c.checkExpr(expr, sc, aliases)
	}
	c.checkWhere(sel.Having, sc, aliases)
	c.checkOrderBy(sel.OrderBy, sc, aliases)
}

// addFrom registers the FROM clause in sc. Derived tables are checked in
// the enclosing scope and expose only their output columns.
func (c *semanticCheck) addFrom(sc *scope, exprs sqlparser.TableExprs) {
	for _, expr := range exprs {
		c.addTableExpr(sc, expr)
	}
}

func (c *semanticCheck) addTableExpr(sc *scope, expr sqlparser.TableExpr) {
	switch te := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		switch e := te.Expr.(type) {
		case sqlparser.TableName:
			key := strings.ToLower(e.Name.String())
			sc.tables = append(sc.tables, key)
			sc.aliases[key] = key
			if !te.As.IsEmpty() {
				sc.aliases[strings.ToLower(te.As.String())] = key
			}
		case *sqlparser.Subquery:
			c.checkSelectStatement(e.Select, sc.parent)
			alias := strings.ToLower(te.As.String())
			sc.derived[alias] = outputsOf(e.Select)
			sc.order = append(sc.order, alias)
		}
	case *sqlparser.JoinTableExpr:
		c.addTableExpr(sc, te.LeftExpr)
		c.addTableExpr(sc, te.RightExpr)
		c.checkExpr(te.Condition.On, sc, nil)
	case *sqlparser.ParenTableExpr:
		c.addFrom(sc, te.Exprs)
	}
}

func outputsOf(stmt sqlparser.SelectStatement) outputSet {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		out := outputSet{names: make(map[string]bool)}
		for _, e := range s.SelectExprs {
			switch se := e.(type) {
			case *sqlparser.StarExpr:
				out.any = true
			case *sqlparser.AliasedExpr:
				if !se.As.IsEmpty() {
					out.names[se.As.Lowered()] = true
				} else if col, ok := se.Expr.(*sqlparser.ColName); ok {
					out.names[col.Name.Lowered()] = true
				}
			}
		}
		return out
	case *sqlparser.Union:
		return outputsOf(s.Left)
	case *sqlparser.ParenSelect:
		return outputsOf(s.Select)
	}
	return outputSet{}
}

func (c *semanticCheck) checkWhere(where *sqlparser.Where, sc *scope, aliases map[string]bool) {
	if where != nil {
		c.checkExpr(where.Expr, sc, aliases)
	}
}

func (c *semanticCheck) checkOrderBy(orderBy sqlparser.OrderBy, sc *scope, aliases map[string]bool) {
	for _, o := range orderBy {
		c.checkExpr(o.Expr, sc, aliases)
	}
}

// checkExpr checks every column of expr; subqueries get their own scope.
func (c *semanticCheck) checkExpr(expr sqlparser.Expr, sc *scope, aliases map[string]bool) {
	if expr == nil {
		return
	}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			c.checkColumn(n, sc, aliases)
			return false, nil
		case *sqlparser.Subquery:
			c.checkSelectStatement(n.Select, sc)
			return false, nil
		}
		return true, nil
	}, expr)
}

func (c *semanticCheck) checkColumn(col *sqlparser.ColName, sc *scope, aliases map[string]bool) {
	name := col.Name.String()
	lowered := col.Name.Lowered()

	if !col.Qualifier.IsEmpty() {
		c.checkQualified(col, sc)
		return
	}

	if aliases[lowered] {
		return
	}
	for s := sc; s != nil; s = s.parent {
		for _, table := range s.tables {
			if st, ok := c.tables[table]; ok && st.columns[lowered] {
				return
			}
		}
		for _, alias := range s.order {
			if s.derived[alias].has(lowered) {
				return
			}
		}
	}
	c.errs.add(fmt.Sprintf("Column %q does not exist in any referenced table", name))
}

func (c *semanticCheck) checkQualified(col *sqlparser.ColName, sc *scope) {
	name := col.Name.String()
	q := strings.ToLower(col.Qualifier.Name.String())

	table := ""
	for s := sc; s != nil && table == ""; s = s.parent {
		if out, ok := s.derived[q]; ok {
			if !out.has(col.Name.Lowered()) {
				c.errs.add(fmt.Sprintf("Column %q does not exist in derived table %q",
					name, col.Qualifier.Name.String()))
			}
			return
		}
		table = s.aliases[q]
	}
	if table == "" {
		if _, inSchema := c.tables[q]; !inSchema {
			c.errs.add(fmt.Sprintf("Table or alias %q for column %q is not referenced in query",
				col.Qualifier.Name.String(), name))
			return
		}
		table = q
	}

	st, ok := c.tables[table]
	if !ok {
		return // reported as a missing table
	}
	if !st.columns[col.Name.Lowered()] {
		c.errs.add(fmt.Sprintf("Column %q does not exist in table %q", name, st.name))
	}
}

func (c *semanticCheck) checkInsert(ins *sqlparser.Insert) {
	key := strings.ToLower(ins.Table.Name.String())
	if st, ok := c.tables[key]; ok {
		for _, col := range ins.Columns {
			if !st.columns[col.Lowered()] {
				c.errs.add(fmt.Sprintf("Column %q does not exist in table %q", col.String(), st.name))
			}
		}
	}

	sc := newScope(nil)
	sc.tables = []string{key}
	sc.aliases[key] = key
	switch rows := ins.Rows.(type) {
	case sqlparser.Values:
		for _, tuple := range rows {
			for _, expr := range tuple {
				c.checkExpr(expr, sc, nil)
			}
		}
	case sqlparser.SelectStatement:
		c.checkSelectStatement(rows, nil)
	}
	for _, ue := range ins.OnDup {
		c.checkColumn(ue.Name, sc, nil)
		c.checkExpr(ue.Expr, sc, nil)
	}
}
