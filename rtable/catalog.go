package rtable

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/rerr"
)

// LoadTable discovers name's columns from the engine's own catalogue
// (PRAGMA table_info for Sqlite, information_schema.columns for
// Postgres), determines whether it carries the _id/_order meta-columns,
// and reads its current change_id from the change log. name reaches
// here straight from caller-supplied input (a ChangeSet's table, a URL
// path segment), so it is validated as a simple identifier before any
// of it is spliced into catalogue SQL.
func LoadTable(ctx context.Context, d db.DB, name string) (*Table, errors.E) {
	if !query.ValidIdentifier(name) {
		return nil, rerr.Input("invalid table name %q", name)
	}
	var columnNames []string
	var errE errors.E
	switch d.Kind() {
	case db.Postgres:
		columnNames, errE = postgresColumns(ctx, d, name)
	default:
		columnNames, errE = sqliteColumns(ctx, d, name)
	}
	if errE != nil {
		return nil, errE
	}
	if len(columnNames) == 0 {
		return nil, rerr.Missing(`table "%s" does not exist`, name)
	}

	columns := ordered.New[*Column]()
	hasID, hasOrder := false, false
	for _, col := range columnNames {
		if col == "_id" {
			hasID = true
		}
		if col == "_order" {
			hasOrder = true
		}
		columns.Set(col, &Column{Name: col, Table: name})
	}

	tbl := &Table{
		Name:    name,
		View:    DefaultViewName(name),
		Columns: columns,
		HasMeta: hasID && hasOrder,
	}
	// A table without both meta-columns is read-only: the mutation
	// engine has no stable row identity to address. Editable is derived
	// from HasMeta rather than carried as a separate persisted flag,
	// since the service "table" schema does not define one.
	tbl.Editable = tbl.HasMeta

	changeID, errE := currentChangeID(ctx, d, name)
	if errE != nil {
		return nil, errE
	}
	tbl.ChangeID = changeID

	return tbl, nil
}

func sqliteColumns(ctx context.Context, d db.DB, name string) ([]string, errors.E) {
	rows, errE := d.Query(ctx, `PRAGMA table_info("`+name+`")`, nil)
	if errE != nil {
		return nil, errE
	}
	var cols []string
	for _, row := range rows {
		v, ok := row.Get("name")
		if !ok {
			continue
		}
		cols = append(cols, v.(string))
	}
	return cols, nil
}

func postgresColumns(ctx context.Context, d db.DB, name string) ([]string, errors.E) {
	rows, errE := d.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, []any{name})
	if errE != nil {
		return nil, errE
	}
	var cols []string
	for _, row := range rows {
		v, ok := row.Get("column_name")
		if !ok {
			continue
		}
		cols = append(cols, v.(string))
	}
	return cols, nil
}

// currentChangeID returns the largest change_id recorded against table
// in the history log, or 0 if it has never been changed.
func currentChangeID(ctx context.Context, d db.DB, table string) (int64, errors.E) {
	placeholder := "?"
	if d.Kind() == db.Postgres {
		placeholder = "$1"
	}
	v, errE := d.QueryValue(ctx, `SELECT COALESCE(MAX("change_id"), 0) FROM "history" WHERE "table" = `+placeholder, []any{table})
	if errE != nil {
		return 0, errE
	}
	if v == nil {
		return 0, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, rerr.Data("expected an integer change_id, got %T", v)
	}
	return n, nil
}
