// Package rtable holds the in-memory value objects shared across the
// core — Table, Column, Row, Cell — plus the helpers that bridge them
// to the db package: discovering a table's columns from the engine's
// catalogue, converting a raw database row into a Row, and preparing a
// brand-new row for an Add change.
package rtable

import (
	"context"
	"strconv"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
)

// NewOrderMultiplier spaces newly assigned _order values apart, leaving
// room for later inserts to land between existing rows without a
// renumbering pass (the "sparse order" of the GLOSSARY).
const NewOrderMultiplier = 1000

// Message is a validation note attached to a Cell by an (external)
// validator: level ("error", "warning", "info"), the rule that fired,
// and human text.
type Message struct {
	Level string `json:"level"`
	Rule  string `json:"rule"`
	Text  string `json:"text"`
}

// Cell is one column's value within a Row: a raw value plus its
// engine-native displayable text and any validation Messages.
type Cell struct {
	Value    any       `json:"value"`
	Text     string    `json:"text"`
	Messages []Message `json:"messages,omitempty"`
}

// NewCell builds a Cell from a raw value, deriving its display text.
func NewCell(value any) *Cell {
	return &Cell{Value: value, Text: RenderText(value)}
}

// RenderText renders a raw cell value the way the engine would print it
// natively: "" for null, "true"/"false" for booleans, and the shortest
// round-tripping decimal form for numbers.
func RenderText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	default:
		return ""
	}
}

// Row is one table row: a stable, never-reused _id, a sparse display
// _order, the change_id that last touched it (0 if unchanged since
// load), and its non-meta cells in column order.
type Row struct {
	ID       int64
	Order    int64
	ChangeID int64
	Cells    *ordered.Map[*Cell]
}

// NewRow creates an empty Row with the given id/order and no cells.
func NewRow(id, order int64) *Row {
	return &Row{ID: id, Order: order, Cells: ordered.New[*Cell]()}
}

// Column describes one column of a Table.
type Column struct {
	Name        string
	Table       string
	Label       string
	Description string
	Datatype    string
	Nulltype    string
	PrimaryKey  bool
	Unique      bool
}

// Table is the metadata the core holds about one user table: its
// columns in catalogue order, its view name for reads, the change_id
// of the most recent change recorded against it, and whether it
// carries the _id/_order meta-columns that make it writable.
type Table struct {
	Name     string
	View     string
	ChangeID int64
	Columns  *ordered.Map[*Column]
	HasMeta  bool
	Editable bool
}

// ViewOrTable returns the identifier reads should target: the view name
// if one is configured, otherwise the table itself.
func (t *Table) ViewOrTable() string {
	if t.View != "" {
		return t.View
	}
	return t.Name
}

// DefaultViewName is the view name a table gets when none is configured.
func DefaultViewName(table string) string {
	return table + "_default_view"
}

// metaColumns are never surfaced in Row.Cells; they become Row.ID/Order.
var metaColumns = map[string]bool{"_id": true, "_order": true}

// IsMeta reports whether name is one of the core's reserved meta-columns.
func IsMeta(name string) bool {
	return metaColumns[name]
}

// NonMetaColumns returns the table's columns with _id/_order excluded,
// in catalogue order.
func (t *Table) NonMetaColumns() []*Column {
	var cols []*Column
	for _, name := range t.Columns.Keys() {
		if IsMeta(name) {
			continue
		}
		c, _ := t.Columns.Get(name)
		cols = append(cols, c)
	}
	return cols
}

// FromDBRow converts a raw database row (as returned by db.DB.Query)
// into a Row, splitting off the _id/_order meta-columns and leaving
// change_id at 0 unless the row carries a "_change_id" projection
// (injected by the SQL emitter for a filter on that synthetic column).
func FromDBRow(tbl *Table, raw *db.Row) (*Row, errors.E) {
	idVal, ok := raw.Get("_id")
	if !ok {
		return nil, rerr.Data(`row is missing "_id"`)
	}
	id, errE := asInt64(idVal)
	if errE != nil {
		return nil, errE
	}

	var order int64
	if orderVal, ok := raw.Get("_order"); ok {
		order, errE = asInt64(orderVal)
		if errE != nil {
			return nil, errE
		}
	}

	row := NewRow(id, order)
	if cid, ok := raw.Get("_change_id"); ok && cid != nil {
		c, errE := asInt64(cid)
		if errE != nil {
			return nil, errE
		}
		row.ChangeID = c
	}

	for _, name := range raw.Keys() {
		if IsMeta(name) || name == "_change_id" {
			continue
		}
		v, _ := raw.Get(name)
		row.Cells.Set(name, NewCell(v))
	}
	return row, nil
}

func asInt64(v any) (int64, errors.E) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, rerr.Data("expected an integer meta-column value, got %T", v)
	}
}

// NextID returns the next _id to assign in table, i.e. max(_id)+1, or 1
// for an empty table. It is a table-local sequence, never reused.
func NextID(ctx context.Context, tx db.Tx, table string) (int64, errors.E) {
	v, errE := tx.QueryValue(ctx, `SELECT COALESCE(MAX("_id"), 0) FROM "`+table+`"`, nil)
	if errE != nil {
		return 0, errE
	}
	max, errE := asInt64(orZero(v))
	if errE != nil {
		return 0, errE
	}
	return max + 1, nil
}

func orZero(v any) any {
	if v == nil {
		return int64(0)
	}
	return v
}

// PrepareNew synthesises an empty Row ready to be filled in for an Add
// change: _id = NextID(table), _order = _id * NewOrderMultiplier. Fails
// with a DataError if the table has no non-meta (user) columns.
func PrepareNew(ctx context.Context, tx db.Tx, tbl *Table) (*Row, errors.E) {
	if len(tbl.NonMetaColumns()) == 0 {
		return nil, rerr.Data(`table "%s" has no user columns`, tbl.Name)
	}
	id, errE := NextID(ctx, tx, tbl.Name)
	if errE != nil {
		return nil, errE
	}
	row := NewRow(id, id*NewOrderMultiplier)
	for _, col := range tbl.NonMetaColumns() {
		row.Cells.Set(col.Name, NewCell(nil))
	}
	return row, nil
}

// AsInsert renders a parameterised INSERT for row into table. Null
// cells are emitted as the literal NULL rather than a bound parameter,
// because some drivers refuse to bind typed nulls; non-null
// cells use placeholders drawn from ph.
func AsInsert(row *Row, table string, ph *db.Placeholders) (string, []any) {
	columns := []string{`"_id"`, `"_order"`}
	values := []string{ph.Next(), ph.Next()}
	params := []any{row.ID, row.Order}

	for _, name := range row.Cells.Keys() {
		cell, _ := row.Cells.Get(name)
		columns = append(columns, `"`+name+`"`)
		if cell.Value == nil {
			values = append(values, "NULL")
			continue
		}
		values = append(values, ph.Next())
		params = append(params, cell.Value)
	}

	sql := `INSERT INTO "` + table + `" (` + joinStrings(columns, ", ") + `) VALUES (` + joinStrings(values, ", ") + `)`
	return sql, params
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
