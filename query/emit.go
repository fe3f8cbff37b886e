package query

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/rerr"
)

// changeIDColumn is the synthetic projection the emitter injects when a
// filter addresses it: a correlated subquery over the history log
// rather than a real table column.
const changeIDColumn = "_change_id"

// ToSQL renders s as a parameterised query for the given dialect,
// returning the SQL text and its positional parameters in order. Each
// clause is its own line, joined by "\n", matching how the engine this
// DSL was distilled from renders a Select.
func (s *Select) ToSQL(kind db.Kind) (string, []any, errors.E) {
	ph := db.NewPlaceholders(kind)
	lines, params, errE := s.toSQLLines(kind, ph)
	if errE != nil {
		return "", nil, errE
	}
	return strings.Join(lines, "\n"), params, nil
}

// ToSQLCount renders a "SELECT COUNT(1)" form of s sharing its
// FROM/JOIN/WHERE but stripping ORDER BY/LIMIT/OFFSET, including from
// any InSubquery/NotInSubquery filter's inner select.
func (s *Select) ToSQLCount(kind db.Kind) (string, []any, errors.E) {
	clone := s.stripOrdering()
	ph := db.NewPlaceholders(kind)

	target, errE := s.resolveTarget()
	if errE != nil {
		return "", nil, errE
	}

	lines := []string{`SELECT COUNT(1) AS "count"`, `FROM "` + target + `"`}
	joins, errE := clone.buildJoinLines()
	if errE != nil {
		return "", nil, errE
	}
	lines = append(lines, joins...)

	whereLines, params, errE := clone.buildWhereLines(kind, ph)
	if errE != nil {
		return "", nil, errE
	}
	lines = append(lines, whereLines...)

	return strings.Join(lines, "\n"), params, nil
}

// stripOrdering returns a clone of s with ORDER BY/LIMIT/OFFSET removed
// from itself and from any subquery filter's inner select, including
// the implicit default ORDER BY.
func (s *Select) stripOrdering() *Select {
	clone := s.Clone()
	clone.Order = nil
	clone.Limit = 0
	clone.Offset = 0
	clone.SuppressDefaultOrder = true
	for i, f := range clone.Filters {
		if (f.Kind == InSubquery || f.Kind == NotInSubquery) && f.Subquery != nil {
			stripped := f.Subquery.stripOrdering()
			clone.Filters[i].Subquery = stripped
		}
	}
	return clone
}

func (s *Select) resolveTarget() (string, errors.E) {
	target := s.ViewName
	if target == "" {
		target = s.TableName
	}
	if target == "" {
		return "", rerr.Input("select has no table_name")
	}
	if !ValidIdentifier(target) {
		return "", rerr.Input("invalid table name %q", target)
	}
	return target, nil
}

// toSQLLines is the shared implementation behind ToSQL and subquery
// emission; ph is threaded through so a top-level select and every
// nested select it carries draw placeholders from one shared sequence.
func (s *Select) toSQLLines(kind db.Kind, ph *db.Placeholders) ([]string, []any, errors.E) {
	target, errE := s.resolveTarget()
	if errE != nil {
		return nil, nil, errE
	}

	selectLines, changeIDParams, errE := s.buildSelectLines(target, ph)
	if errE != nil {
		return nil, nil, errE
	}

	joinLines, errE := s.buildJoinLines()
	if errE != nil {
		return nil, nil, errE
	}

	whereLines, whereParams, errE := s.buildWhereLines(kind, ph)
	if errE != nil {
		return nil, nil, errE
	}

	lines := append([]string{}, selectLines...)
	lines = append(lines, `FROM "`+target+`"`)
	lines = append(lines, joinLines...)
	lines = append(lines, whereLines...)

	if order := s.buildOrderLine(target); order != "" {
		lines = append(lines, order)
	}
	lines = append(lines, s.buildLimitOffsetLines()...)

	var params []any
	params = append(params, changeIDParams...)
	params = append(params, whereParams...)
	return lines, params, nil
}

// toSQLIndented renders s as a nested select, each line indented two
// spaces, for use inside a subquery filter.
func (s *Select) toSQLIndented(kind db.Kind, ph *db.Placeholders) (string, []any, errors.E) {
	lines, params, errE := s.toSQLLines(kind, ph)
	if errE != nil {
		return "", nil, errE
	}
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n"), params, nil
}

// hasChangeIDFilter reports whether s filters on the synthetic
// _change_id column.
func (s *Select) hasChangeIDFilter() bool {
	for _, f := range s.Filters {
		if f.Column == changeIDColumn {
			return true
		}
	}
	return false
}

// buildSelectLines renders the SELECT list. When s
// filters on _change_id, a correlated subquery over the history log is
// appended to the projection, drawing one placeholder from ph.
func (s *Select) buildSelectLines(target string, ph *db.Placeholders) ([]string, []any, errors.E) {
	var head string
	switch {
	case len(s.Fields) == 0 && len(s.Joins) > 0:
		head = `SELECT "` + target + `".*`
	case len(s.Fields) == 0:
		head = "SELECT *"
	default:
		rendered := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			r, errE := renderField(f)
			if errE != nil {
				return nil, nil, errE
			}
			rendered = append(rendered, r)
		}
		head = "SELECT " + strings.Join(rendered, ", ")
	}

	if !s.hasChangeIDFilter() {
		return []string{head}, nil, nil
	}

	sub := `(SELECT MAX("change_id") FROM "history" WHERE "table" = ` + ph.Next() + ` AND "row" = "` + target + `"."_id") AS "` + changeIDColumn + `"`
	return []string{head + ", " + sub}, []any{s.TableName}, nil
}

func renderField(f Field) (string, errors.E) {
	if f.IsExpression() {
		if f.Expr == "" {
			return "", rerr.Input("expression field has empty sql")
		}
		if f.Alias == "" {
			return "", rerr.Input("expression field requires an alias")
		}
		return f.Expr + ` AS "` + f.Alias + `"`, nil
	}
	if f.Column == "" {
		return "", rerr.Input("field has no column")
	}
	col, errE := qualifiedColumn(f.Table, f.Column)
	if errE != nil {
		return "", errE
	}
	if f.Alias == "" {
		return col, nil
	}
	return col + ` AS "` + f.Alias + `"`, nil
}

// buildJoinLines renders one LEFT JOIN per line.
func (s *Select) buildJoinLines() ([]string, errors.E) {
	lines := make([]string, 0, len(s.Joins))
	for _, j := range s.Joins {
		if !ValidIdentifier(j.LeftTable) || !ValidIdentifier(j.LeftColumn) ||
			!ValidIdentifier(j.RightTable) || !ValidIdentifier(j.RightColumn) {
			return nil, rerr.Input("invalid identifier in join")
		}
		lines = append(lines, `LEFT JOIN "`+j.RightTable+`" ON "`+j.LeftTable+`"."`+j.LeftColumn+`" = "`+j.RightTable+`"."`+j.RightColumn+`"`)
	}
	return lines, nil
}

// buildWhereLines renders one filter per line: "WHERE ..." for the
// first, "  AND ..." for every subsequent one.
func (s *Select) buildWhereLines(kind db.Kind, ph *db.Placeholders) ([]string, []any, errors.E) {
	var lines []string
	var params []any
	i := 0
	for _, f := range s.Filters {
		if f.Column == changeIDColumn {
			// Already surfaced via the correlated subquery projection;
			// it is not a real WHERE-clause predicate.
			continue
		}
		frag, p, errE := f.toSQL(kind, ph)
		if errE != nil {
			return nil, nil, errE
		}
		keyword := "WHERE"
		if i > 0 {
			keyword = "  AND"
		}
		lines = append(lines, keyword+" "+frag)
		params = append(params, p...)
		i++
	}
	return lines, params, nil
}

// buildOrderLine renders ORDER BY: the caller's
// explicit sort keys if any, else "_order ASC" when there are no joins,
// else nothing (undefined ordering across a join). The implicit default
// order references the meta-column "_order" unquoted, the way the
// engine this DSL was distilled from renders it; explicit caller-given
// sort columns are always quoted identifiers.
func (s *Select) buildOrderLine(target string) string {
	if len(s.Order) == 0 {
		if len(s.Joins) == 0 && !s.SuppressDefaultOrder {
			return `ORDER BY "` + target + `"._order ASC`
		}
		return ""
	}
	parts := make([]string, 0, len(s.Order))
	for _, k := range s.Order {
		col, errE := qualifiedColumn(k.Table, k.Column)
		if errE != nil {
			continue
		}
		parts = append(parts, col+" "+strings.ToUpper(k.Direction.String()))
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// buildLimitOffsetLines renders LIMIT/OFFSET, each on its own line and
// only when > 0.
func (s *Select) buildLimitOffsetLines() []string {
	var lines []string
	if s.Limit > 0 {
		lines = append(lines, "LIMIT "+strconv.FormatInt(s.Limit, 10))
	}
	if s.Offset > 0 {
		lines = append(lines, "OFFSET "+strconv.FormatInt(s.Offset, 10))
	}
	return lines
}
