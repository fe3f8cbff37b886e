package change

import (
	"context"
	"encoding/json"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/usercolor"
	"gitlab.com/rltbl/relatable/rerr"
)

// SetCursor records user's live UI caret position as an opaque JSON
// blob. Cursor movement is not a user-visible mutation, so this bypasses the change/history
// log entirely and only touches the user row's cursor/datetime columns.
func (e *Engine) SetCursor(ctx context.Context, user string, cursor json.RawMessage) errors.E {
	kind := e.DB.Kind()
	p := db.List(kind, 1)
	v, errE := e.DB.QueryValue(ctx, `SELECT "name" FROM "user" WHERE "name" = `+p[0], []any{user})
	if errE != nil {
		return errE
	}
	if v == nil {
		p := db.List(kind, 3)
		_, errE := e.DB.Query(ctx, `
			INSERT INTO "user" ("name", "color", "cursor", "datetime")
			VALUES (`+p[0]+`, `+p[1]+`, `+p[2]+`, CURRENT_TIMESTAMP)`, []any{user, usercolor.Assign(user), string(cursor)})
		return errE
	}
	p = db.List(kind, 2)
	_, errE = e.DB.Query(ctx, `UPDATE "user" SET "cursor" = `+p[0]+`, "datetime" = CURRENT_TIMESTAMP WHERE "name" = `+p[1], []any{string(cursor), user})
	return errE
}

// GetCursor returns user's last-recorded cursor blob, or nil if the
// user has never set one. A user with no row at all is a MissingError.
func (e *Engine) GetCursor(ctx context.Context, user string) (json.RawMessage, errors.E) {
	p := db.List(e.DB.Kind(), 1)
	row, errE := e.DB.QueryOne(ctx, `SELECT "cursor" FROM "user" WHERE "name" = `+p[0], []any{user})
	if errE != nil {
		return nil, errE
	}
	if row == nil {
		return nil, rerr.Missing(`user "%s" does not exist`, user)
	}
	v, _ := row.Get("cursor")
	s, ok := v.(string)
	if !ok {
		return nil, nil
	}
	return json.RawMessage(s), nil
}
