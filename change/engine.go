package change

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/internal/usercolor"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/rerr"
	"gitlab.com/rltbl/relatable/rtable"
)

// Engine is the mutation engine: a DB connection plus the one global
// flag ("rltbl.readonly" in the source material) that, when set,
// refuses every write regardless of table or user.
type Engine struct {
	DB       db.DB
	Readonly bool
}

// New creates a mutation engine over d.
func New(d db.DB, readonly bool) *Engine {
	return &Engine{DB: d, Readonly: readonly}
}

// SetValues applies cs atomically: validates readonly/editable/user
// state, applies each Change in order inside one transaction, writes
// one history row per change and one change row for the whole set, and
// returns the assigned change_id. Any failed change aborts the entire
// changeset; no partial state is visible.
func (e *Engine) SetValues(ctx context.Context, cs *ChangeSet) (int64, errors.E) {
	if e.Readonly {
		return 0, rerr.User("rltbl is in readonly mode")
	}

	tbl, errE := rtable.LoadTable(ctx, e.DB, cs.Table)
	if errE != nil {
		return 0, errE
	}
	if !tbl.Editable {
		return 0, rerr.User(`table "%s" is not editable`, cs.Table)
	}

	var changeID int64
	errE = db.Transact(ctx, e.DB, func(ctx context.Context, tx db.Tx) errors.E {
		if errE := ensureUser(ctx, tx, cs.User); errE != nil {
			return errE
		}

		id, errE := nextChangeID(ctx, tx)
		if errE != nil {
			return errE
		}
		changeID = id

		for _, c := range cs.Changes {
			if errE := applyChange(ctx, tx, e.DB.Kind(), tbl, changeID, c); errE != nil {
				return errE
			}
		}

		content, errE := encodeContent(cs)
		if errE != nil {
			return errE
		}
		p := db.List(tx.Kind(), 6)
		_, errE = tx.Query(ctx, `
			INSERT INTO "change" ("change_id", "datetime", "user", "action", "table", "description", "content")
			VALUES (`+p[0]+`, CURRENT_TIMESTAMP, `+p[1]+`, `+p[2]+`, `+p[3]+`, `+p[4]+`, `+p[5]+`)`,
			[]any{changeID, cs.User, cs.Action.String(), cs.Table, cs.Description, content})
		return errE
	})
	if errE != nil {
		return 0, errE
	}
	return changeID, nil
}

// applyChange dispatches one Change to its handler and writes the
// corresponding history row(s).
func applyChange(ctx context.Context, tx db.Tx, kind db.Kind, tbl *rtable.Table, changeID int64, c Change) errors.E {
	switch c.Kind {
	case Update:
		return applyUpdate(ctx, tx, tbl, changeID, c)
	case Add:
		return applyAdd(ctx, tx, kind, tbl, changeID, c)
	case Delete:
		return applyDelete(ctx, tx, tbl, changeID, c)
	case Move:
		return applyMove(ctx, tx, tbl, changeID, c)
	default:
		return rerr.Config("unknown change kind %d", c.Kind)
	}
}

func applyUpdate(ctx context.Context, tx db.Tx, tbl *rtable.Table, changeID int64, c Change) errors.E {
	if !query.ValidIdentifier(c.Column) {
		return rerr.Input("invalid column name %q", c.Column)
	}
	p := db.List(tx.Kind(), 1)
	old, errE := tx.QueryValue(ctx, `SELECT "`+c.Column+`" FROM "`+tbl.Name+`" WHERE "_id" = `+p[0], []any{c.Row})
	if errE != nil {
		return errE
	}
	if !rowExists(ctx, tx, tbl.Name, c.Row) {
		return rerr.Missing(`row %d does not exist in table "%s"`, c.Row, tbl.Name)
	}

	before := ordered.New[any]()
	before.Set(c.Column, old)
	after := ordered.New[any]()
	after.Set(c.Column, c.Value)

	p = db.List(tx.Kind(), 2)
	if _, errE := tx.Query(ctx, `UPDATE "`+tbl.Name+`" SET "`+c.Column+`" = `+p[0]+` WHERE "_id" = `+p[1], []any{c.Value, c.Row}); errE != nil {
		return errE
	}
	return writeHistory(ctx, tx, changeID, tbl.Name, c.Row, before, after)
}

func applyAdd(ctx context.Context, tx db.Tx, kind db.Kind, tbl *rtable.Table, changeID int64, c Change) errors.E {
	order, errE := computeOrder(ctx, tx, tbl.Name, c.AfterID, nil)
	if errE != nil {
		return errE
	}
	id, errE := rtable.NextID(ctx, tx, tbl.Name)
	if errE != nil {
		return errE
	}

	row := rtable.NewRow(id, order)
	for _, col := range tbl.NonMetaColumns() {
		var v any
		if c.Cells != nil {
			v, _ = c.Cells.Get(col.Name)
		}
		row.Cells.Set(col.Name, rtable.NewCell(v))
	}

	ph := db.NewPlaceholders(kind)
	sql, params := rtable.AsInsert(row, tbl.Name, ph)
	if _, errE := tx.Query(ctx, sql, params); errE != nil {
		return errE
	}

	after := ordered.New[any]()
	for _, name := range row.Cells.Keys() {
		cell, _ := row.Cells.Get(name)
		after.Set(name, cell.Value)
	}
	return writeHistory(ctx, tx, changeID, tbl.Name, id, nil, after)
}

func applyDelete(ctx context.Context, tx db.Tx, tbl *rtable.Table, changeID int64, c Change) errors.E {
	p := db.List(tx.Kind(), 1)
	raw, errE := tx.QueryOne(ctx, `SELECT * FROM "`+tbl.Name+`" WHERE "_id" = `+p[0], []any{c.Row})
	if errE != nil {
		return errE
	}
	if raw == nil {
		return rerr.Missing(`row %d does not exist in table "%s"`, c.Row, tbl.Name)
	}

	before := ordered.New[any]()
	for _, name := range raw.Keys() {
		if name == "_id" {
			continue
		}
		v, _ := raw.Get(name)
		// "_order" rides along with the non-meta cells here even though
		// it is a meta column: undoing a delete needs it to reinsert the
		// row back near its original position.
		before.Set(name, v)
	}

	p = db.List(tx.Kind(), 1)
	if _, errE := tx.Query(ctx, `DELETE FROM "`+tbl.Name+`" WHERE "_id" = `+p[0], []any{c.Row}); errE != nil {
		return errE
	}
	return writeHistory(ctx, tx, changeID, tbl.Name, c.Row, before, nil)
}

func applyMove(ctx context.Context, tx db.Tx, tbl *rtable.Table, changeID int64, c Change) errors.E {
	p := db.List(tx.Kind(), 1)
	oldOrderV, errE := tx.QueryValue(ctx, `SELECT "_order" FROM "`+tbl.Name+`" WHERE "_id" = `+p[0], []any{c.Row})
	if errE != nil {
		return errE
	}
	if oldOrderV == nil {
		return rerr.Missing(`row %d does not exist in table "%s"`, c.Row, tbl.Name)
	}
	oldOrder, errE := asInt64(oldOrderV)
	if errE != nil {
		return errE
	}

	newOrder, errE := computeOrder(ctx, tx, tbl.Name, c.AfterID, &c.Row)
	if errE != nil {
		return errE
	}

	p = db.List(tx.Kind(), 2)
	if _, errE := tx.Query(ctx, `UPDATE "`+tbl.Name+`" SET "_order" = `+p[0]+` WHERE "_id" = `+p[1], []any{newOrder, c.Row}); errE != nil {
		return errE
	}

	before := ordered.New[any]()
	before.Set("_order", oldOrder)
	after := ordered.New[any]()
	after.Set("_order", newOrder)
	return writeHistory(ctx, tx, changeID, tbl.Name, c.Row, before, after)
}

func rowExists(ctx context.Context, tx db.Tx, table string, id int64) bool {
	p := db.List(tx.Kind(), 1)
	v, errE := tx.QueryValue(ctx, `SELECT "_id" FROM "`+table+`" WHERE "_id" = `+p[0], []any{id})
	return errE == nil && v != nil
}

func writeHistory(ctx context.Context, tx db.Tx, changeID int64, table string, row int64, before, after *ordered.Map[any]) errors.E {
	beforeJSON, errE := encodeCells(before)
	if errE != nil {
		return errE
	}
	afterJSON, errE := encodeCells(after)
	if errE != nil {
		return errE
	}
	p := db.List(tx.Kind(), 5)
	_, errE = tx.Query(ctx, `
		INSERT INTO "history" ("change_id", "table", "row", "before", "after")
		VALUES (`+p[0]+`, `+p[1]+`, `+p[2]+`, `+p[3]+`, `+p[4]+`)`, []any{changeID, table, row, beforeJSON, afterJSON})
	return errE
}

func nextChangeID(ctx context.Context, tx db.Tx) (int64, errors.E) {
	v, errE := tx.QueryValue(ctx, `SELECT COALESCE(MAX("change_id"), 0) FROM "change"`, nil)
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

// ensureUser creates a user row with a freshly assigned colour on first
// sight; an existing user's last-seen datetime is refreshed.
func ensureUser(ctx context.Context, tx db.Tx, user string) errors.E {
	p := db.List(tx.Kind(), 1)
	v, errE := tx.QueryValue(ctx, `SELECT "name" FROM "user" WHERE "name" = `+p[0], []any{user})
	if errE != nil {
		return errE
	}
	if v != nil {
		p := db.List(tx.Kind(), 1)
		_, errE := tx.Query(ctx, `UPDATE "user" SET "datetime" = CURRENT_TIMESTAMP WHERE "name" = `+p[0], []any{user})
		return errE
	}
	color := usercolor.Assign(user)
	p = db.List(tx.Kind(), 2)
	_, errE = tx.Query(ctx, `
		INSERT INTO "user" ("name", "color", "cursor", "datetime")
		VALUES (`+p[0]+`, `+p[1]+`, NULL, CURRENT_TIMESTAMP)`, []any{user, color})
	return errE
}
