package relatable

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/change"
	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/fixture"
	"gitlab.com/rltbl/relatable/internal/gitstatus"
	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/internal/prettyprint"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/rerr"
)

// DemoCommand seeds the configured (normally scratch) database with the
// penguin/egg worked example from the fixture package, for manual
// exploration through the CLI or HTTP server.
type DemoCommand struct{}

// Run builds the fixture's schema and seed data against globals.Connection.
func (c *DemoCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	if errE := fixture.Build(ctx, d); errE != nil {
		return errE
	}
	globals.Logger.Info().Str("connection", globals.Connection).Msg("demo database seeded")
	return nil
}

// GetCommand reads rows from one table using the CLI filter syntax
// and prints them to the terminal via internal/prettyprint.
type GetCommand struct {
	Table   string   `arg:""                          help:"Table to read."`
	Filter  []string `                                help:"Filter expression, e.g. \"species = \\\"Adelie\\\"\". May be repeated." name:"filter" placeholder:"EXPR"`
	Order   []string `                                help:"Column to order by, optionally suffixed \".desc\". May be repeated."    name:"order"`
	Limit   int64    `default:"${defaultLimit}"       help:"Maximum rows to print."`
	Offset  int64    `                                help:"Rows to skip before printing."`
	Box     bool     `                                help:"Render with a dashed rule under the header instead of plain aligned columns."`
}

// Run builds a Select from the command's flags, executes it, and
// prints the result.
func (c *GetCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	sel := query.NewSelect(c.Table)
	sel.Limit = c.Limit
	sel.Offset = c.Offset
	for _, expr := range c.Filter {
		f, err := query.ParseCLIFilter(expr)
		if err != nil {
			return errors.WithStack(err)
		}
		sel.Filters = append(sel.Filters, f)
	}
	for _, o := range c.Order {
		col, dir := o, query.Asc
		if rest, ok := strings.CutSuffix(o, ".desc"); ok {
			col, dir = rest, query.Desc
		}
		sel.Order = append(sel.Order, query.SortKey{Column: col, Direction: dir})
	}

	sqlText, params, errE := sel.ToSQL(d.Kind())
	if errE != nil {
		return errE
	}
	rows, errE := d.Query(ctx, sqlText, params)
	if errE != nil {
		return errE
	}

	var err error
	if c.Box {
		err = prettyprint.Box(os.Stdout, rows)
	} else {
		err = prettyprint.TSV(os.Stdout, rows)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// AddCommand adds one row to a table via a single-Change ChangeSet.
type AddCommand struct {
	Table   string   `arg:""                  help:"Table to add a row to."`
	AfterID *int64   `                        help:"Row id to insert after. Omit to append at the end." name:"after"`
	Cell    []string `                        help:"column=value pair, value parsed as JSON or taken as a bare string. May be repeated." name:"cell" placeholder:"COLUMN=VALUE"`
}

// Run constructs and applies an Add change, printing the assigned change_id.
func (c *AddCommand) Run(globals *Globals) errors.E {
	cells, errE := parseCells(c.Cell)
	if errE != nil {
		return errE
	}
	cs := &change.ChangeSet{
		Table:       c.Table,
		Description: fmt.Sprintf("add row to %s", c.Table),
		Changes:     []change.Change{{Kind: change.Add, AfterID: c.AfterID, Cells: cells}},
	}
	return runChangeSet(globals, cs)
}

// DeleteCommand deletes one row by id.
type DeleteCommand struct {
	Table string `arg:"" help:"Table to delete a row from."`
	Row   int64  `arg:"" help:"Row id to delete."`
}

// Run constructs and applies a Delete change.
func (c *DeleteCommand) Run(globals *Globals) errors.E {
	cs := &change.ChangeSet{
		Table:       c.Table,
		Description: fmt.Sprintf("delete row %d from %s", c.Row, c.Table),
		Changes:     []change.Change{{Kind: change.Delete, Row: c.Row}},
	}
	return runChangeSet(globals, cs)
}

// UpdateCommand sets one cell of one row.
type UpdateCommand struct {
	Table  string `arg:"" help:"Table to update."`
	Row    int64  `arg:"" help:"Row id to update."`
	Column string `arg:"" help:"Column to update."`
	Value  string `arg:"" help:"New value, parsed as JSON or taken as a bare string."`
}

// Run constructs and applies an Update change.
func (c *UpdateCommand) Run(globals *Globals) errors.E {
	cs := &change.ChangeSet{
		Table:       c.Table,
		Description: fmt.Sprintf("update %s.%s on row %d", c.Table, c.Column, c.Row),
		Changes:     []change.Change{{Kind: change.Update, Row: c.Row, Column: c.Column, Value: parseCellValue(c.Value)}},
	}
	return runChangeSet(globals, cs)
}

// MoveCommand moves a row to a new position in its table's display order.
type MoveCommand struct {
	Table   string `arg:""  help:"Table to reorder within."`
	Row     int64  `arg:""  help:"Row id to move."`
	AfterID *int64 `        help:"Row id to move after. Omit to move to the end." name:"after"`
}

// Run constructs and applies a Move change.
func (c *MoveCommand) Run(globals *Globals) errors.E {
	cs := &change.ChangeSet{
		Table:       c.Table,
		Description: fmt.Sprintf("move row %d in %s", c.Row, c.Table),
		Changes:     []change.Change{{Kind: change.Move, Row: c.Row, AfterID: c.AfterID}},
	}
	return runChangeSet(globals, cs)
}

// UndoCommand undoes the user's most recent not-yet-undone change.
type UndoCommand struct{}

// Run calls the mutation engine's Undo and prints the new change_id.
func (c *UndoCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	changeID, errE := change.New(d, globals.Readonly).Undo(ctx, globals.ResolveUser())
	if errE != nil {
		return errE
	}
	fmt.Fprintf(os.Stdout, "change_id: %d\n", changeID)
	return nil
}

// RedoCommand redoes the user's most recently undone change.
type RedoCommand struct{}

// Run calls the mutation engine's Redo and prints the new change_id.
func (c *RedoCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	changeID, errE := change.New(d, globals.Readonly).Redo(ctx, globals.ResolveUser())
	if errE != nil {
		return errE
	}
	fmt.Fprintf(os.Stdout, "change_id: %d\n", changeID)
	return nil
}

// HistoryCommand prints the change log recorded against a table.
type HistoryCommand struct {
	Table string `arg:""                    help:"Table to show history for."`
	Limit int64  `default:"${defaultLimit}" help:"Maximum change rows to print."`
}

// Run reads the "change" table filtered to c.Table and prints it.
func (c *HistoryCommand) Run(globals *Globals) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	sel := query.NewSelect("change")
	sel.Limit = c.Limit
	sel.Filters = append(sel.Filters, query.Filter{Kind: query.Equal, Column: "table", Value: c.Table})
	sel.Order = append(sel.Order, query.SortKey{Column: "change_id", Direction: query.Desc})

	sqlText, params, errE := sel.ToSQL(d.Kind())
	if errE != nil {
		return errE
	}
	rows, errE := d.Query(ctx, sqlText, params)
	if errE != nil {
		return errE
	}
	if err := prettyprint.Box(os.Stdout, rows); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// StatusCommand prints the git workspace status of the current directory.
type StatusCommand struct{}

// Run reads and prints the git status via internal/gitstatus.
func (c *StatusCommand) Run(globals *Globals) errors.E {
	dir, err := os.Getwd()
	if err != nil {
		return rerr.IO(err)
	}
	status, errE := gitstatus.Read(dir)
	if errE != nil {
		return errE
	}
	fmt.Fprintf(os.Stdout, "branch: %s\ncommit: %s\ndirty: %v\n", status.Branch, status.Commit, status.Dirty)
	return nil
}

// runChangeSet fills in the acting user and applies cs, printing the
// assigned change_id. Shared by the add/delete/update/move commands.
func runChangeSet(globals *Globals, cs *change.ChangeSet) errors.E {
	ctx := context.Background()
	d, errE := db.Connect(ctx, globals.Connection)
	if errE != nil {
		return errE
	}
	defer func() { _ = d.Close() }()

	cs.User = globals.ResolveUser()
	cs.Action = change.Do

	changeID, errE := change.New(d, globals.Readonly).SetValues(ctx, cs)
	if errE != nil {
		return errE
	}
	fmt.Fprintf(os.Stdout, "change_id: %d\n", changeID)
	return nil
}

// parseCells turns "column=value" CLI flags into a cell map for an Add
// change, parsing each value as JSON and falling back to a bare string,
// matching the URL/CLI filter parsers' own fallback rule.
func parseCells(pairs []string) (*ordered.Map[any], errors.E) {
	cells := ordered.New[any]()
	for _, pair := range pairs {
		column, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, rerr.Config(`cell %q is not of the form column=value`, pair)
		}
		cells.Set(column, parseCellValue(value))
	}
	return cells, nil
}

// parseCellValue parses raw as JSON first so numbers/booleans/null
// come through typed; on parse failure it is taken as a bare string,
// the same fallback the URL and CLI filter parsers use.
func parseCellValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
