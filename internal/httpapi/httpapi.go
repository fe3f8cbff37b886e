// Package httpapi is the thin HTTP router and renderer the core is
// built to be called from. It wires net/http.ServeMux routes onto the
// query, tableset, and change packages and renders the result as HTML,
// JSON, pretty JSON, or a scalar value.json.
package httpapi

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gitlab.com/tozd/go/x"

	"gitlab.com/rltbl/relatable/change"
	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/internal/gitstatus"
	"gitlab.com/rltbl/relatable/query"
	"gitlab.com/rltbl/relatable/rerr"
	"gitlab.com/rltbl/relatable/rtable"
	"gitlab.com/rltbl/relatable/tableset"
)

// Format is a URL path suffix selecting how a read result is rendered.
type Format int

const (
	HTML Format = iota
	JSON
	PrettyJSON
	ValueJSON
)

// splitFormat peels the format suffix off a path segment like
// "penguin.pretty.json", returning the bare table/tableset name and
// the selected Format. An unrecognised suffix is a FormatError.
func splitFormat(segment string) (string, Format, errors.E) {
	switch {
	case strings.HasSuffix(segment, ".pretty.json"):
		return strings.TrimSuffix(segment, ".pretty.json"), PrettyJSON, nil
	case strings.HasSuffix(segment, ".value.json"):
		return strings.TrimSuffix(segment, ".value.json"), ValueJSON, nil
	case strings.HasSuffix(segment, ".json"):
		return strings.TrimSuffix(segment, ".json"), JSON, nil
	case strings.HasSuffix(segment, ".html"):
		return strings.TrimSuffix(segment, ".html"), HTML, nil
	case strings.Contains(segment, "."):
		return "", 0, rerr.Format("unrecognised format suffix in %q", segment)
	default:
		return segment, HTML, nil
	}
}

// tableTemplate is deliberately minimal: one table, no per-column
// templating, just enough to serve the ".html" format branch.
var tableTemplate = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<table border="1">
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range $col := $.Columns}}<td>{{index . $col}}</td>{{end}}</tr>
{{end}}
</table>
`))

// Server holds the dependencies the route handlers need: the database,
// the mutation engine, and the directory gitstatus reads its workspace
// state from.
type Server struct {
	DB         db.DB
	Engine     *change.Engine
	WorkingDir string
}

// NewMux builds the route table: table reads/writes,
// tableset reads, and cursor storage.
func NewMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /table/", s.handleTableGet)
	mux.HandleFunc("POST /table/", s.handleTablePost)
	mux.HandleFunc("GET /tableset/", s.handleTablesetGet)
	mux.HandleFunc("GET /cursor", s.handleCursorGet)
	mux.HandleFunc("POST /cursor", s.handleCursorPost)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

func currentUser(r *http.Request) string {
	if u := r.Header.Get("X-Rltbl-User"); u != "" {
		return u
	}
	if u, _, ok := r.BasicAuth(); ok && u != "" {
		return u
	}
	return "anonymous"
}

// urlParams decodes the raw query string by hand instead of going
// through url.Values: ParseURL's contract is that filters stay
// in the order the caller listed them, and a Go map would shuffle it.
func urlParams(r *http.Request) []query.KeyValue {
	var kvs []query.KeyValue
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		kvs = append(kvs, query.KeyValue{Key: key, Value: value})
	}
	return kvs
}

func (s *Server) handleTableGet(w http.ResponseWriter, r *http.Request) {
	segment := strings.TrimPrefix(r.URL.Path, "/table/")
	name, format, errE := splitFormat(segment)
	if errE != nil {
		writeError(w, errE)
		return
	}
	sel, err := query.ParseURL(name, urlParams(r))
	if err != nil {
		writeError(w, errors.WithStack(err))
		return
	}
	s.renderSelect(r.Context(), w, sel, format)
}

func (s *Server) handleTablesetGet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tableset/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, rerr.Missing("tableset path must be /tableset/<set>/<table>"))
		return
	}
	tablesetName, segment := parts[0], parts[1]
	name, format, errE := splitFormat(segment)
	if errE != nil {
		writeError(w, errE)
		return
	}
	sel, err := query.ParseURL(name, urlParams(r))
	if err != nil {
		writeError(w, errors.WithStack(err))
		return
	}
	planned, errE := tableset.Plan(r.Context(), s.DB, tablesetName, sel)
	if errE != nil {
		writeError(w, errE)
		return
	}
	s.renderSelect(r.Context(), w, planned, format)
}

func (s *Server) renderSelect(ctx context.Context, w http.ResponseWriter, sel *query.Select, format Format) {
	if format == ValueJSON {
		sql, params, errE := sel.ToSQLCount(s.DB.Kind())
		if errE != nil {
			writeError(w, errE)
			return
		}
		v, errE := s.DB.QueryValue(ctx, sql, params)
		if errE != nil {
			writeError(w, errE)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	sql, params, errE := sel.ToSQL(s.DB.Kind())
	if errE != nil {
		writeError(w, errE)
		return
	}
	rows, errE := s.DB.Query(ctx, sql, params)
	if errE != nil {
		writeError(w, errE)
		return
	}

	switch format {
	case PrettyJSON:
		writePrettyJSON(w, rows)
	case HTML:
		writeHTML(w, rows)
	default:
		writeJSON(w, http.StatusOK, rows)
	}
}

func (s *Server) handleTablePost(w http.ResponseWriter, r *http.Request) {
	segment := strings.TrimPrefix(r.URL.Path, "/table/")
	name, _, errE := splitFormat(segment)
	if errE != nil {
		writeError(w, errE)
		return
	}

	var cs change.ChangeSet
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		writeError(w, rerr.Input("invalid changeset body: %v", err))
		return
	}
	cs.Table = name
	if cs.User == "" {
		cs.User = currentUser(r)
	}

	// A changeset whose action is Undo/Redo is a request to replay the
	// user's own history, not a literal batch of changes to record.
	var changeID int64
	switch cs.Action {
	case change.Undo:
		changeID, errE = s.Engine.Undo(r.Context(), cs.User)
	case change.Redo:
		changeID, errE = s.Engine.Redo(r.Context(), cs.User)
	default:
		changeID, errE = s.Engine.SetValues(r.Context(), &cs)
	}
	if errE != nil {
		writeError(w, errE)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"change_id": changeID})
}

func (s *Server) handleCursorGet(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	cursor, errE := s.Engine.GetCursor(r.Context(), user)
	if errE != nil {
		writeError(w, errE)
		return
	}
	writeJSON(w, http.StatusOK, cursor)
}

func (s *Server) handleCursorPost(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var cursor json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&cursor); err != nil {
		writeError(w, rerr.Input("invalid cursor body: %v", err))
		return
	}
	if errE := s.Engine.SetCursor(r.Context(), user, cursor); errE != nil {
		writeError(w, errE)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	dir := s.WorkingDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	status, errE := gitstatus.Read(dir)
	if errE != nil {
		writeError(w, errE)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeJSON encodes v with x.MarshalWithoutEscapeHTML so that cell
// values containing "<", ">", or "&" (e.g. HTML snippets stored in a
// text column) round-trip unescaped, matching how rendered URLs and
// change descriptions are expected to read back.
func writeJSON(w http.ResponseWriter, code int, v any) {
	data, errE := x.MarshalWithoutEscapeHTML(v)
	if errE != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func writePrettyJSON(w http.ResponseWriter, rows []*db.Row) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func writeHTML(w http.ResponseWriter, rows []*db.Row) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var cols []string
	seen := map[string]bool{}
	tableRows := make([]map[string]string, len(rows))
	for i, row := range rows {
		tableRows[i] = map[string]string{}
		for _, c := range row.Keys() {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
			v, _ := row.Get(c)
			tableRows[i][c] = rtable.RenderText(v)
		}
	}
	_ = tableTemplate.Execute(w, map[string]any{"Columns": cols, "Rows": tableRows})
}

// StatusCode maps the core's error taxonomy to an HTTP status:
// MissingError/FormatError -> 404, ConfigError/InputError/DataError ->
// 500, UserError (readonly/permission refusal) -> 403.
func StatusCode(err errors.E) int {
	switch {
	case errors.Is(err, rerr.ErrMissing), errors.Is(err, rerr.ErrFormat):
		return http.StatusNotFound
	case errors.Is(err, rerr.ErrUser):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err errors.E) {
	code := StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
