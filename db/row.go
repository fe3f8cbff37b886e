package db

import (
	"context"
	"database/sql"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
)

// scanRows drains a *sql.Rows into ordered Row values, normalising driver
// types down to the four JSON-compatible kinds the core works with.
// Blobs are rejected with an InputError.
func scanRows(rows *sql.Rows) ([]*Row, errors.E) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, rerr.Data("reading columns failed: %w", err)
	}

	var result []*Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, rerr.Data("scanning row failed: %w", err)
		}
		row := ordered.New[any]()
		for i, col := range columns {
			v, errE := normalizeValue(values[i])
			if errE != nil {
				return nil, errE
			}
			row.Set(col, v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, rerr.Data("iterating rows failed: %w", err)
	}
	return result, nil
}

// normalizeValue converts a driver-returned value into one of
// nil | bool | int64 | float64 | string, rejecting blobs.
func normalizeValue(v any) (any, errors.E) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case int64:
		return t, nil
	case float64:
		return t, nil
	case string:
		return t, nil
	case []byte:
		return nil, rerr.Input("binary values are not supported in query results")
	default:
		return nil, rerr.Input("unexpected value type %T in query result", v)
	}
}

// queryOne and queryValue are shared by both back-ends' top-level (non-Tx)
// DB implementations, which otherwise only differ in how Query is wired.
func queryOne(ctx context.Context, d DB, query string, params []any) (*Row, errors.E) {
	rows, errE := d.Query(ctx, query, params)
	if errE != nil {
		return nil, errE
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func queryValue(ctx context.Context, d DB, query string, params []any) (any, errors.E) {
	row, errE := queryOne(ctx, d, query, params)
	if errE != nil {
		return nil, errE
	}
	if row == nil || row.Len() == 0 {
		return nil, nil
	}
	v, _ := row.Get(row.Keys()[0])
	return v, nil
}
