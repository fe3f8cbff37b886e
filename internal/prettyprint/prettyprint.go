// Package prettyprint renders query results for a terminal: plain
// column-aligned text, or the same with a dashed rule under the header, used by the CLI's "get"
// command, built on text/tabwriter the way a small CLI tool would.
package prettyprint

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/rtable"
)

// columns returns the union of every row's keys, in first-seen order,
// so a result set with ragged columns still prints a stable header.
func columns(rows []*db.Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for _, k := range row.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func cellText(row *db.Row, col string) string {
	v, ok := row.Get(col)
	if !ok {
		return ""
	}
	return rtable.RenderText(v)
}

// TSV renders rows as a header line plus one line per row, the cells
// aligned into columns by text/tabwriter, which pads them with spaces.
func TSV(w io.Writer, rows []*db.Row) error {
	cols := columns(rows)
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(cols, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		texts := make([]string, len(cols))
		for i, col := range cols {
			texts[i] = cellText(row, col)
		}
		if _, err := fmt.Fprintln(tw, strings.Join(texts, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Box renders rows as a header, a rule of dashes, and one line per row,
// all columns padded to their widest value.
func Box(w io.Writer, rows []*db.Row) error {
	cols := columns(rows)
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)

	header := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, col := range cols {
		header[i] = col
		rule[i] = strings.Repeat("-", len(col))
	}
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(tw, strings.Join(rule, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		texts := make([]string, len(cols))
		for i, col := range cols {
			texts[i] = cellText(row, col)
		}
		if _, err := fmt.Fprintln(tw, strings.Join(texts, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
