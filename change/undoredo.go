package change

import (
	"context"
	"encoding/json"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
	"gitlab.com/rltbl/relatable/rtable"
)

// stackEntry is one changeset available to undo or redo: the change_id
// it was recorded under, the table it targeted, and its original content.
type stackEntry struct {
	ChangeID int64
	Table    string
	Content  ChangeSet
}

// deriveStacks never carries undo/redo state in process memory; it
// replays the whole change log for user on every call, so the process
// stays stateless and crash-safe. The undo stack is every Do/Redo changeset by user not yet
// undone; the redo stack is every changeset undone but not yet redone.
// A fresh Do clears the redo stack.
func deriveStacks(ctx context.Context, d db.DB, user string) (undo []stackEntry, redo []stackEntry, errE errors.E) {
	p := db.List(d.Kind(), 1)
	rows, errE := d.Query(ctx, `
		SELECT "change_id", "user", "action", "table", "content"
		FROM "change" WHERE "user" = `+p[0]+`
		ORDER BY "change_id" ASC`, []any{user})
	if errE != nil {
		return nil, nil, errE
	}

	for _, row := range rows {
		changeID, errE := columnInt64(row, "change_id")
		if errE != nil {
			return nil, nil, errE
		}
		actionStr, _ := row.Get("action")
		table, _ := row.Get("table")
		contentStr, _ := row.Get("content")

		content, errE := decodeContent(contentStr.(string))
		if errE != nil {
			return nil, nil, errE
		}
		entry := stackEntry{ChangeID: changeID, Table: table.(string), Content: *content}

		switch actionStr {
		case "Do":
			redo = nil
			undo = append(undo, entry)
		case "Redo":
			if len(redo) > 0 {
				redo = redo[:len(redo)-1]
			}
			undo = append(undo, entry)
		case "Undo":
			if len(undo) == 0 {
				continue
			}
			popped := undo[len(undo)-1]
			undo = undo[:len(undo)-1]
			redo = append(redo, popped)
		}
	}
	return undo, redo, nil
}

func columnInt64(row *db.Row, name string) (int64, errors.E) {
	v, ok := row.Get(name)
	if !ok {
		return 0, rerr.Data(`row is missing "%s"`, name)
	}
	return asInt64(v)
}

// Undo inverts the most recent not-yet-undone changeset by user and
// applies the inversion as a new changeset with action=Undo, itself
// recorded in the log (so undo is itself undoable). Returns the new
// change_id.
func (e *Engine) Undo(ctx context.Context, user string) (int64, errors.E) {
	if e.Readonly {
		return 0, rerr.User("rltbl is in readonly mode")
	}
	undo, _, errE := deriveStacks(ctx, e.DB, user)
	if errE != nil {
		return 0, errE
	}
	if len(undo) == 0 {
		return 0, rerr.Missing(`nothing to undo for user "%s"`, user)
	}
	target := undo[len(undo)-1]

	tbl, errE := rtable.LoadTable(ctx, e.DB, target.Table)
	if errE != nil {
		return 0, errE
	}
	history, errE := loadHistoryEntries(ctx, e.DB, target.ChangeID)
	if errE != nil {
		return 0, errE
	}
	if len(history) != len(target.Content.Changes) {
		return 0, rerr.Data(`change %d has %d history rows for %d recorded changes`, target.ChangeID, len(history), len(target.Content.Changes))
	}

	var changeID int64
	errE = db.Transact(ctx, e.DB, func(ctx context.Context, tx db.Tx) errors.E {
		if errE := ensureUser(ctx, tx, user); errE != nil {
			return errE
		}
		id, errE := nextChangeID(ctx, tx)
		if errE != nil {
			return errE
		}
		changeID = id

		inverted := make([]Change, 0, len(target.Content.Changes))
		for i := len(target.Content.Changes) - 1; i >= 0; i-- {
			inv, errE := invertOne(ctx, tx, tbl, target.Content.Changes[i], history[i])
			if errE != nil {
				return errE
			}
			if errE := applyChange(ctx, tx, e.DB.Kind(), tbl, changeID, inv); errE != nil {
				return errE
			}
			inverted = append(inverted, inv)
		}

		cs := &ChangeSet{User: user, Action: Undo, Table: target.Table, Description: target.Content.Description, Changes: inverted}
		content, errE := encodeContent(cs)
		if errE != nil {
			return errE
		}
		p := db.List(tx.Kind(), 6)
		_, errE = tx.Query(ctx, `
			INSERT INTO "change" ("change_id", "datetime", "user", "action", "table", "description", "content")
			VALUES (`+p[0]+`, CURRENT_TIMESTAMP, `+p[1]+`, `+p[2]+`, `+p[3]+`, `+p[4]+`, `+p[5]+`)`,
			[]any{changeID, user, Undo.String(), target.Table, cs.Description, content})
		return errE
	})
	if errE != nil {
		return 0, errE
	}
	return changeID, nil
}

// Redo re-applies the most recently undone changeset by user exactly as
// originally recorded, with action=Redo.
func (e *Engine) Redo(ctx context.Context, user string) (int64, errors.E) {
	if e.Readonly {
		return 0, rerr.User("rltbl is in readonly mode")
	}
	_, redo, errE := deriveStacks(ctx, e.DB, user)
	if errE != nil {
		return 0, errE
	}
	if len(redo) == 0 {
		return 0, rerr.Missing(`nothing to redo for user "%s"`, user)
	}
	target := redo[len(redo)-1]

	tbl, errE := rtable.LoadTable(ctx, e.DB, target.Table)
	if errE != nil {
		return 0, errE
	}

	var changeID int64
	errE = db.Transact(ctx, e.DB, func(ctx context.Context, tx db.Tx) errors.E {
		if errE := ensureUser(ctx, tx, user); errE != nil {
			return errE
		}
		id, errE := nextChangeID(ctx, tx)
		if errE != nil {
			return errE
		}
		changeID = id

		for _, c := range target.Content.Changes {
			if errE := applyChange(ctx, tx, e.DB.Kind(), tbl, changeID, c); errE != nil {
				return errE
			}
		}

		cs := &ChangeSet{User: user, Action: Redo, Table: target.Table, Description: target.Content.Description, Changes: target.Content.Changes}
		content, errE := encodeContent(cs)
		if errE != nil {
			return errE
		}
		p := db.List(tx.Kind(), 6)
		_, errE = tx.Query(ctx, `
			INSERT INTO "change" ("change_id", "datetime", "user", "action", "table", "description", "content")
			VALUES (`+p[0]+`, CURRENT_TIMESTAMP, `+p[1]+`, `+p[2]+`, `+p[3]+`, `+p[4]+`, `+p[5]+`)`,
			[]any{changeID, user, Redo.String(), target.Table, cs.Description, content})
		return errE
	})
	if errE != nil {
		return 0, errE
	}
	return changeID, nil
}

// historyEntry is one row of the history log, decoded for replay.
type historyEntry struct {
	Row    int64
	Before *ordered.Map[any]
	After  *ordered.Map[any]
}

func loadHistoryEntries(ctx context.Context, d db.DB, changeID int64) ([]historyEntry, errors.E) {
	p := db.List(d.Kind(), 1)
	rows, errE := d.Query(ctx, `
		SELECT "history_id", "row", "before", "after" FROM "history"
		WHERE "change_id" = `+p[0]+` ORDER BY "history_id" ASC`, []any{changeID})
	if errE != nil {
		return nil, errE
	}
	entries := make([]historyEntry, 0, len(rows))
	for _, row := range rows {
		rowID, errE := columnInt64(row, "row")
		if errE != nil {
			return nil, errE
		}
		before, errE := decodeCells(row, "before")
		if errE != nil {
			return nil, errE
		}
		after, errE := decodeCells(row, "after")
		if errE != nil {
			return nil, errE
		}
		entries = append(entries, historyEntry{Row: rowID, Before: before, After: after})
	}
	return entries, nil
}

func decodeCells(row *db.Row, column string) (*ordered.Map[any], errors.E) {
	v, ok := row.Get(column)
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, rerr.Data(`history."%s" must be a string`, column)
	}
	cells := ordered.New[any]()
	if err := json.Unmarshal([]byte(s), cells); err != nil {
		return nil, rerr.Data("cannot deserialise cell map: %v", err)
	}
	return cells, nil
}

// invertOne builds the inverse of one original Change using the
// history row recorded for it: Add becomes Delete, Delete becomes Add
// (reinserted near its recorded position), Update swaps in the
// recorded prior value, Move restores the recorded prior order.
func invertOne(ctx context.Context, tx db.Tx, tbl *rtable.Table, orig Change, hist historyEntry) (Change, errors.E) {
	switch orig.Kind {
	case Add:
		return Change{Kind: Delete, Row: hist.Row}, nil

	case Delete:
		orderVal, _ := hist.Before.Get("_order")
		order, errE := asInt64(orderVal)
		if errE != nil {
			return Change{}, errE
		}
		cells := ordered.New[any]()
		for _, k := range hist.Before.Keys() {
			if k == "_order" {
				continue
			}
			v, _ := hist.Before.Get(k)
			cells.Set(k, v)
		}
		afterID, errE := findAfterID(ctx, tx, tbl.Name, order, nil)
		if errE != nil {
			return Change{}, errE
		}
		return Change{Kind: Add, AfterID: afterID, Cells: cells}, nil

	case Update:
		oldVal, _ := hist.Before.Get(orig.Column)
		return Change{Kind: Update, Row: orig.Row, Column: orig.Column, Value: oldVal}, nil

	case Move:
		orderVal, _ := hist.Before.Get("_order")
		order, errE := asInt64(orderVal)
		if errE != nil {
			return Change{}, errE
		}
		afterID, errE := findAfterID(ctx, tx, tbl.Name, order, &orig.Row)
		if errE != nil {
			return Change{}, errE
		}
		return Change{Kind: Move, Row: orig.Row, AfterID: afterID}, nil

	default:
		return Change{}, rerr.Config("unknown change kind %d", orig.Kind)
	}
}

// findAfterID locates the row whose _order is the largest one still
// below order, to reconstruct an AfterID an Add/Move can use to land
// back near a recorded position. Returns nil (meaning "last") if no
// such row exists, which is this scheme's one known gap: it cannot
// express "insert first", so undoing the delete of a table's very
// first row reinserts it at the end instead.
func findAfterID(ctx context.Context, tx db.Tx, table string, order int64, exclude *int64) (*int64, errors.E) {
	kind := tx.Kind()
	sql := `SELECT "_id" FROM "` + table + `" WHERE "_order" < `
	params := []any{order}
	if exclude != nil {
		p := db.List(kind, 2)
		sql += p[0] + ` AND "_id" != ` + p[1]
		params = append(params, *exclude)
	} else {
		p := db.List(kind, 1)
		sql += p[0]
	}
	sql += ` ORDER BY "_order" DESC LIMIT 1`
	v, errE := tx.QueryValue(ctx, sql, params)
	if errE != nil {
		return nil, errE
	}
	if v == nil {
		return nil, nil
	}
	id, errE := asInt64(v)
	if errE != nil {
		return nil, errE
	}
	return &id, nil
}
