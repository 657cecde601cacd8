package sql

import (
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/ekaya-inc/ekaya-federation/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// TableResolver recognizes the global logical table names a query may use.
type TableResolver interface {
	IsGlobalTable(name string) bool
}

// Rewriter rewrites global-schema queries for one source using its GAV
// mapping and dialect. It holds no per-query state and is safe for
// concurrent use.
type Rewriter struct {
	source *models.SourceDescriptor
	tables TableResolver
}

// NewRewriter creates a rewriter for source.
func NewRewriter(source *models.SourceDescriptor, tables TableResolver) *Rewriter {
	return &Rewriter{source: source, tables: tables}
}

// Rewrite parses globalQuery and returns it rewritten for the source.
// Only a parse failure is an error; attribute names missing from the
// mapping are passed through unchanged.
func (r *Rewriter) Rewrite(globalQuery string) (models.RewrittenQuery, error) {
	norm := Normalize(globalQuery)
	if norm.Error != nil {
		return models.RewrittenQuery{}, apperrors.New(apperrors.KindParse, r.source.Name, norm.Error)
	}
	if norm.NormalizedSQL == "" {
		return models.RewrittenQuery{}, apperrors.Newf(apperrors.KindParse, r.source.Name, "query is empty")
	}

	stmt, err := r.parse(norm.NormalizedSQL)
	if err != nil {
		return models.RewrittenQuery{}, apperrors.New(apperrors.KindParse, r.source.Name, err)
	}

	r.rewrite(stmt)

	rendered := Render(stmt, r.source.Dialect)
	if norm.Terminated {
		rendered += ";"
	}
	return models.RewrittenQuery{
		Source:  r.source.Name,
		Dialect: r.source.Dialect,
		SQL:     rendered,
	}, nil
}

// parse reads query in the global grammar. A query already rendered for the
// source is read in the source's grammar instead: it either parses only
// after the source's quoting is converted, or it names the physical table
// and no global table. Otherwise Postgres identifiers would parse as string
// literals.
func (r *Rewriter) parse(query string) (sqlparser.Statement, error) {
	stmt, err := sqlparser.Parse(query)
	if r.source.Dialect == models.DialectMySQL || (err == nil && !r.targetsSource(stmt)) {
		return stmt, err
	}

	local, localErr := sqlparser.Parse(toParserSyntax(query, r.source.Dialect))
	if localErr != nil {
		return stmt, err
	}
	return local, nil
}

// targetsSource reports whether stmt reads the source's physical table
// rather than the global table.
func (r *Rewriter) targetsSource(stmt sqlparser.Statement) bool {
	global, physical := false, false
	check := func(tn sqlparser.TableName) {
		if tn.IsEmpty() {
			return
		}
		name := tn.Name.String()
		if tn.Qualifier.IsEmpty() && r.tables.IsGlobalTable(name) {
			global = true
		}
		if strings.EqualFold(name, r.source.PhysicalTable) {
			physical = true
		}
	}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := n.Expr.(sqlparser.TableName); ok {
				check(tn)
			}
		case *sqlparser.Insert:
			check(n.Table)
		}
		return true, nil
	}, stmt)
	return physical && !global
}

// rewritePass is the state of one traversal. visited is keyed by node
// pointer so shared subtrees are rewritten exactly once.
type rewritePass struct {
	*Rewriter
	visited map[sqlparser.SQLNode]struct{}
	// aliases holds lower-cased aliases bound to the global table.
	aliases map[string]struct{}
}

func (r *Rewriter) rewrite(stmt sqlparser.Statement) {
	pass := &rewritePass{
		Rewriter: r,
		visited:  make(map[sqlparser.SQLNode]struct{}),
		aliases:  make(map[string]struct{}),
	}
	pass.collectAliases(stmt)
	_ = sqlparser.Walk(pass.visit, stmt)
}

// collectAliases records the aliases given to global table references, so
// columns qualified with them are mapped too.
func (p *rewritePass) collectAliases(stmt sqlparser.Statement) {
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if ate, ok := node.(*sqlparser.AliasedTableExpr); ok && !ate.As.IsEmpty() {
			if tn, ok := ate.Expr.(sqlparser.TableName); ok && p.isGlobal(tn) {
				p.aliases[strings.ToLower(ate.As.String())] = struct{}{}
			}
		}
		return true, nil
	}, stmt)
}

// firstVisit marks a pointer node visited and reports whether it was new.
func (p *rewritePass) firstVisit(node sqlparser.SQLNode) bool {
	if _, seen := p.visited[node]; seen {
		return false
	}
	p.visited[node] = struct{}{}
	return true
}

func (p *rewritePass) visit(node sqlparser.SQLNode) (bool, error) {
	switch n := node.(type) {
	case *sqlparser.AliasedTableExpr:
		if !p.firstVisit(n) {
			return false, nil
		}
		if tn, ok := n.Expr.(sqlparser.TableName); ok {
			n.Expr = p.mapTable(tn)
		}
	case *sqlparser.ColName:
		if !p.firstVisit(n) {
			return false, nil
		}
		p.mapColumn(n)
		// Qualifier is already handled; do not descend.
		return false, nil
	case *sqlparser.StarExpr:
		if !p.firstVisit(n) {
			return false, nil
		}
		n.TableName = p.mapTable(n.TableName)
	case *sqlparser.Insert:
		if !p.firstVisit(n) {
			return false, nil
		}
		if p.isGlobal(n.Table) {
			n.Table = p.mapTable(n.Table)
			for i, col := range n.Columns {
				if mapped, ok := p.source.LocalColumn(col.String()); ok {
					_, column := models.SplitQualified(mapped)
					n.Columns[i] = sqlparser.NewColIdent(column)
				}
			}
		}
	case *sqlparser.Delete:
		if !p.firstVisit(n) {
			return false, nil
		}
		for i, target := range n.Targets {
			n.Targets[i] = p.mapTable(target)
		}
	}
	return true, nil
}

// isGlobal reports whether tn names the global table.
func (p *rewritePass) isGlobal(tn sqlparser.TableName) bool {
	return !tn.IsEmpty() && tn.Qualifier.IsEmpty() && p.tables.IsGlobalTable(tn.Name.String())
}

// mapTable replaces a global table name with the source's physical table.
func (p *rewritePass) mapTable(tn sqlparser.TableName) sqlparser.TableName {
	if !p.isGlobal(tn) {
		return tn
	}
	return sqlparser.TableName{Name: sqlparser.NewTableIdent(p.source.PhysicalTable)}
}

// mapColumn rewrites a column reference that belongs to the global table.
// Columns qualified with another table are left alone.
func (p *rewritePass) mapColumn(col *sqlparser.ColName) {
	if !col.Qualifier.IsEmpty() {
		_, aliased := p.aliases[strings.ToLower(col.Qualifier.Name.String())]
		if !aliased && !p.isGlobal(col.Qualifier) {
			return
		}
		col.Qualifier = p.mapTable(col.Qualifier)
	}

	mapped, ok := p.source.LocalColumn(col.Name.String())
	if !ok {
		return
	}
	table, column := models.SplitQualified(mapped)
	col.Name = sqlparser.NewColIdent(column)
	if table != "" {
		col.Qualifier = sqlparser.TableName{Name: sqlparser.NewTableIdent(table)}
	}
}
