package query

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/rerr"
)

// FilterKind enumerates the filter shapes a Select can carry. Behaviour
// is table-driven off this tag rather than virtual, so adding a kind
// means adding one more case to the switches below rather than a new type.
type FilterKind int

const (
	Like FilterKind = iota
	Equal
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Is
	IsNot
	In
	NotIn
	InSubquery
	NotInSubquery
)

// urlPrefix is the URL-parameter prefix for each non-subquery kind.
var urlPrefix = map[FilterKind]string{
	Like:               "like",
	Equal:              "eq",
	NotEqual:           "not_eq",
	GreaterThan:        "gt",
	GreaterThanOrEqual: "gte",
	LessThan:           "lt",
	LessThanOrEqual:    "lte",
	Is:                 "is",
	IsNot:              "is_not",
	In:                 "in",
	NotIn:              "not_in",
}

// Filter is one WHERE-clause term. Non-subquery kinds carry (Table,
// Column, Value); InSubquery/NotInSubquery carry an owned nested Select
// instead and ignore Value.
type Filter struct {
	Kind     FilterKind
	Table    string
	Column   string
	Value    any
	Subquery *Select
}

// qualifiedColumn renders f's column reference, table-qualified when
// Table is set, validating both identifiers first.
func qualifiedColumn(table, column string) (string, errors.E) {
	if !ValidIdentifier(column) {
		return "", rerr.Input("invalid column name %q", column)
	}
	if table == "" {
		return `"` + column + `"`, nil
	}
	if !ValidIdentifier(table) {
		return "", rerr.Input("invalid table name %q", table)
	}
	return `"` + table + `"."` + column + `"`, nil
}

// toSQL renders f as a parameterised WHERE fragment. kind selects
// dialect-specific operator forms (IS vs IS NOT DISTINCT FROM) and the
// nested select's own dialect when f is a subquery filter.
func (f Filter) toSQL(kind db.Kind, ph *db.Placeholders) (string, []any, errors.E) {
	col, errE := qualifiedColumn(f.Table, f.Column)
	if errE != nil {
		return "", nil, errE
	}

	switch f.Kind {
	case Like:
		pattern, ok := f.Value.(string)
		if !ok {
			return "", nil, rerr.Input("like filter value must be a string")
		}
		return col + " LIKE " + ph.Next(), []any{strings.ReplaceAll(pattern, "*", "%")}, nil

	case Equal:
		return col + " = " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case NotEqual:
		return col + " <> " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case GreaterThan:
		return col + " > " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case GreaterThanOrEqual:
		return col + " >= " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case LessThan:
		return col + " < " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case LessThanOrEqual:
		return col + " <= " + ph.Next(), []any{valueAsString(f.Value)}, nil

	case Is:
		if kind == db.Postgres {
			return col + " IS NOT DISTINCT FROM " + ph.Next(), []any{f.Value}, nil
		}
		return col + " IS " + ph.Next(), []any{f.Value}, nil

	case IsNot:
		if kind == db.Postgres {
			return col + " IS DISTINCT FROM " + ph.Next(), []any{f.Value}, nil
		}
		return col + " IS NOT " + ph.Next(), []any{f.Value}, nil

	case In, NotIn:
		values, errE := sameTypeSlice(f.Value)
		if errE != nil {
			return "", nil, errE
		}
		op := "IN"
		if f.Kind == NotIn {
			op = "NOT IN"
		}
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = ph.Next()
		}
		return col + " " + op + " (" + strings.Join(placeholders, ", ") + ")", values, nil

	case InSubquery, NotInSubquery:
		if f.Subquery == nil {
			return "", nil, rerr.Input("subquery filter has no nested select")
		}
		inner, params, errE := f.Subquery.toSQLIndented(kind, ph)
		if errE != nil {
			return "", nil, errE
		}
		op := "IN"
		if f.Kind == NotInSubquery {
			op = "NOT IN"
		}
		return col + " " + op + " (\n" + inner + "\n)", params, nil

	default:
		return "", nil, rerr.Config("unknown filter kind %d", f.Kind)
	}
}

// valueAsString renders a scalar filter value the way the emitter binds
// it for a comparison operator: every scalar is bound as its string
// rendering (so `eq.5`, parsed as the JSON number 5, still binds the
// parameter "5"), matching the engine's own value rendering rather than
// JSON's type.
func valueAsString(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// sameTypeSlice validates that v is a []any whose elements share one
// JSON type, and returns them unwrapped.
func sameTypeSlice(v any) ([]any, errors.E) {
	values, ok := v.([]any)
	if !ok || len(values) == 0 {
		return nil, rerr.Input("in/not_in filter value must be a non-empty array")
	}
	kindOf := func(x any) string {
		switch x.(type) {
		case string:
			return "string"
		case bool:
			return "bool"
		case nil:
			return "null"
		default:
			return "number"
		}
	}
	want := kindOf(values[0])
	for _, v := range values[1:] {
		if kindOf(v) != want {
			return nil, rerr.Input("in/not_in filter array elements must share one type")
		}
	}
	return values, nil
}
