// Package tableset implements the join planner: given a configured set
// of tables linked by shared key columns, it rewrites a user Select
// whose filters span more than one table of the set into a single
// top-level InSubquery filter that performs the necessary left-join
// traversal.
package tableset

import (
	"context"
	"sort"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/rerr"
)

// configRow is one row of the "tableset" configuration table: within a
// named set, "table" joins to its parent on "using" = parent's
// "distinct" column.
type configRow struct {
	Order    int64
	Table    string
	Distinct string
	Using    string
}

// Plan rewrites sel against the named tableset's configuration, loaded
// from d. If sel's filters touch only one table, sel is returned
// unchanged. The configuration table is small and read once per call
// rather than traversed with a literal recursive CTE: the ancestor-chain
// search is instead run in Go over the loaded rows, which is equivalent for the bounded, acyclic
// configurations the planner assumes and avoids duplicating parameter
// placeholders across dialects for a query that is, in the end, just a
// small in-memory graph walk.
func Plan(ctx context.Context, d db.DB, tablesetName string, sel *query.Select) (*query.Select, errors.E) {
	tables := sel.FilteredTables()
	if len(tables) <= 1 {
		return sel, nil
	}

	rows, errE := loadConfig(ctx, d, tablesetName)
	if errE != nil {
		return nil, errE
	}
	byTable := make(map[string]configRow, len(rows))
	byDistinct := make(map[string]configRow, len(rows))
	for _, r := range rows {
		byTable[r.Table] = r
		byDistinct[r.Distinct] = r
	}

	base, ok := byTable[sel.TableName]
	if !ok {
		return nil, rerr.Config(`table "%s" is not part of tableset "%s"`, sel.TableName, tablesetName)
	}

	ancestors := map[string]bool{}
	var frontier []string
	for _, t := range tables {
		if _, ok := byTable[t]; !ok {
			return nil, rerr.Config(`table "%s" is not part of tableset "%s"`, t, tablesetName)
		}
		if !ancestors[t] {
			ancestors[t] = true
			frontier = append(frontier, t)
		}
	}

	for len(frontier) > 0 {
		var next []string
		for _, t := range frontier {
			row := byTable[t]
			parent, ok := byDistinct[row.Using]
			if !ok || ancestors[parent.Table] {
				continue
			}
			ancestors[parent.Table] = true
			next = append(next, parent.Table)
		}
		frontier = next
	}

	// The walk is trimmed to _order BETWEEN the referenced tables' own
	// minimum and maximum: the BFS above can walk
	// past the referenced tables' own span (e.g. up to a grandparent that
	// the query never touched), and that overshoot must be cut before the
	// chain is joined, not just left to sort into the wrong position.
	minOrder, maxOrder := byTable[tables[0]].Order, byTable[tables[0]].Order
	for _, t := range tables[1:] {
		if o := byTable[t].Order; o < minOrder {
			minOrder = o
		} else if o > maxOrder {
			maxOrder = o
		}
	}

	chain := make([]configRow, 0, len(ancestors))
	for t := range ancestors {
		row := byTable[t]
		if row.Order < minOrder || row.Order > maxOrder {
			continue
		}
		chain = append(chain, row)
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Order < chain[j].Order })

	inner := query.NewSelect(chain[0].Table)
	inner.Select(sel.TableName, base.Distinct, "")
	inner.Filters = append(inner.Filters, sel.Filters...)
	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		inner.LeftJoin(prev.Table, prev.Distinct, cur.Table, cur.Using)
	}

	isTail := chain[len(chain)-1].Table == base.Table
	if isTail {
		if len(sel.Order) > 0 {
			inner.Order = append([]query.SortKey(nil), sel.Order...)
		} else {
			inner.Order = []query.SortKey{{Table: base.Table, Column: "_order", Direction: query.Asc}}
		}
		inner.Limit = sel.Limit
	} else {
		inner.Limit = 0
	}

	outer := query.NewSelect(sel.TableName)
	outer.ViewName = sel.ViewName
	outer.Fields = sel.Fields
	outer.Limit = sel.Limit
	outer.Offset = sel.Offset
	outer.Filters = []query.Filter{{
		Kind:     query.InSubquery,
		Table:    sel.TableName,
		Column:   base.Distinct,
		Subquery: inner,
	}}
	if isTail {
		outer.SuppressDefaultOrder = true
	} else {
		outer.Order = sel.Order
	}

	return outer, nil
}

func loadConfig(ctx context.Context, d db.DB, tablesetName string) ([]configRow, errors.E) {
	placeholder := "?"
	if d.Kind() == db.Postgres {
		placeholder = "$1"
	}
	raw, errE := d.Query(ctx, `
		SELECT "_order", "table", "distinct", "using"
		FROM "tableset"
		WHERE "tableset" = `+placeholder+`
		ORDER BY "_order"`, []any{tablesetName})
	if errE != nil {
		return nil, errE
	}
	if len(raw) == 0 {
		return nil, rerr.Missing(`tableset "%s" does not exist`, tablesetName)
	}

	rows := make([]configRow, 0, len(raw))
	for _, r := range raw {
		order, errE := intColumn(r, "_order")
		if errE != nil {
			return nil, errE
		}
		table, errE := stringColumn(r, "table")
		if errE != nil {
			return nil, errE
		}
		distinct, errE := stringColumn(r, "distinct")
		if errE != nil {
			return nil, errE
		}
		using, errE := nullableStringColumn(r, "using")
		if errE != nil {
			return nil, errE
		}
		rows = append(rows, configRow{Order: order, Table: table, Distinct: distinct, Using: using})
	}
	return rows, nil
}

func intColumn(row *db.Row, name string) (int64, errors.E) {
	v, ok := row.Get(name)
	if !ok {
		return 0, rerr.Data(`tableset row is missing "%s"`, name)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, rerr.Data(`tableset."%s" must be an integer, got %T`, name, v)
	}
}

// nullableStringColumn reads a column that may be NULL: the set's root
// table has no parent, so its "using" column is empty.
func nullableStringColumn(row *db.Row, name string) (string, errors.E) {
	v, ok := row.Get(name)
	if !ok {
		return "", rerr.Data(`tableset row is missing "%s"`, name)
	}
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", rerr.Data(`tableset."%s" must be a string, got %T`, name, v)
	}
	return s, nil
}

func stringColumn(row *db.Row, name string) (string, errors.E) {
	v, ok := row.Get(name)
	if !ok {
		return "", rerr.Data(`tableset row is missing "%s"`, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", rerr.Data(`tableset."%s" must be a string, got %T`, name, v)
	}
	return s, nil
}
