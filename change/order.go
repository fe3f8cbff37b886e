package change

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/rerr"
	"gitlab.com/rltbl/relatable/rtable"
)

// computeOrder assigns the _order value a row being added or moved into
// table after afterID should receive, excluding excludeID (the moved
// row's own current order) from neighbour lookups. If the midpoint
// between afterID and its successor can't be represented without
// colliding with either neighbour, it runs one reorder pass over the
// whole table and retries once.
func computeOrder(ctx context.Context, tx db.Tx, table string, afterID *int64, excludeID *int64) (int64, errors.E) {
	order, errE := tryComputeOrder(ctx, tx, table, afterID, excludeID)
	if errE == nil {
		return order, nil
	}
	if !errors.Is(errE, errPrecisionExhausted) {
		return 0, errE
	}
	if errE := reorderTable(ctx, tx, table); errE != nil {
		return 0, errE
	}
	return tryComputeOrder(ctx, tx, table, afterID, excludeID)
}

var errPrecisionExhausted = errors.Base("order precision exhausted")

func tryComputeOrder(ctx context.Context, tx db.Tx, table string, afterID *int64, excludeID *int64) (int64, errors.E) {
	kind := tx.Kind()

	if afterID == nil {
		sql := `SELECT COALESCE(MAX("_order"), 0) FROM "` + table + `" WHERE 1=1`
		var params []any
		if excludeID != nil {
			p := db.List(kind, 1)
			sql += ` AND "_id" != ` + p[0]
			params = []any{*excludeID}
		}
		v, errE := tx.QueryValue(ctx, sql, params)
		if errE != nil {
			return 0, errE
		}
		max, errE := asInt64(v)
		if errE != nil {
			return 0, errE
		}
		return max + rtable.NewOrderMultiplier, nil
	}

	p := db.List(kind, 1)
	afterOrderV, errE := tx.QueryValue(ctx, `SELECT "_order" FROM "`+table+`" WHERE "_id" = `+p[0], []any{*afterID})
	if errE != nil {
		return 0, errE
	}
	if afterOrderV == nil {
		return 0, rerr.Missing(`row %d does not exist in table "%s"`, *afterID, table)
	}
	afterOrder, errE := asInt64(afterOrderV)
	if errE != nil {
		return 0, errE
	}

	sql := `SELECT MIN("_order") FROM "` + table + `" WHERE "_order" > `
	params := []any{afterOrder}
	if excludeID != nil {
		p := db.List(kind, 2)
		sql += p[0] + ` AND "_id" != ` + p[1]
		params = append(params, *excludeID)
	} else {
		p := db.List(kind, 1)
		sql += p[0]
	}
	nextV, errE := tx.QueryValue(ctx, sql, params)
	if errE != nil {
		return 0, errE
	}
	if nextV == nil {
		return afterOrder + rtable.NewOrderMultiplier, nil
	}
	nextOrder, errE := asInt64(nextV)
	if errE != nil {
		return 0, errE
	}

	mid := afterOrder + (nextOrder-afterOrder)/2
	if mid == afterOrder || mid == nextOrder {
		return 0, errors.WithStack(errPrecisionExhausted)
	}
	return mid, nil
}

// reorderTable reassigns every row's _order to rank*NEW_ORDER_MULTIPLIER
// in current _order rank order. Rows are moved through a negative
// staging range first so the pass never collides with an existing
// _order value under a unique constraint.
func reorderTable(ctx context.Context, tx db.Tx, table string) errors.E {
	kind := tx.Kind()
	rows, errE := tx.Query(ctx, `SELECT "_id" FROM "`+table+`" ORDER BY "_order" ASC`, nil)
	if errE != nil {
		return errE
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Get("_id")
		if !ok {
			continue
		}
		id, errE := asInt64(v)
		if errE != nil {
			return errE
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		p := db.List(kind, 2)
		if _, errE := tx.Query(ctx, `UPDATE "`+table+`" SET "_order" = `+p[0]+` WHERE "_id" = `+p[1], []any{int64(-(i + 1)), id}); errE != nil {
			return errE
		}
	}
	for i, id := range ids {
		newOrder := int64(i+1) * rtable.NewOrderMultiplier
		p := db.List(kind, 2)
		if _, errE := tx.Query(ctx, `UPDATE "`+table+`" SET "_order" = `+p[0]+` WHERE "_id" = `+p[1], []any{newOrder, id}); errE != nil {
			return errE
		}
	}
	return nil
}

func asInt64(v any) (int64, errors.E) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, rerr.Data("expected an integer, got %T", v)
	}
}
