package query

import (
	"encoding/json"
	"strconv"
	"strings"

	"gitlab.com/rltbl/relatable/rerr"
)

// reservedURLKeys are the query-parameter names treated specially
// rather than as filters.
var reservedURLKeys = map[string]bool{
	"select": true,
	"limit":  true,
	"offset": true,
	"order":  true,
}

// filterPrefixes maps a URL-parameter prefix to the filter kind it
// selects, longest prefix first so "not_eq." isn't shadowed by a
// (nonexistent) "eq." ambiguity; order only matters among prefixes that
// share a leading substring.
var filterPrefixes = []struct {
	prefix string
	kind   FilterKind
}{
	{"not_eq.", NotEqual},
	{"not_in.", NotIn},
	{"like.", Like},
	{"eq.", Equal},
	{"gte.", GreaterThanOrEqual},
	{"gt.", GreaterThan},
	{"lte.", LessThanOrEqual},
	{"lt.", LessThan},
	{"is_not.", IsNot},
	{"is.", Is},
	{"in.", In},
}

// ParseURL builds a Select from a request path and its query parameters.
// path's first segment before a "." names the table; any suffix is a
// format selector the HTTP layer peels off before calling this. params
// must preserve the caller's original parameter order so that multiple
// filters remain applied in a stable sequence.
func ParseURL(path string, params []KeyValue) (*Select, error) {
	table := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		table = path[:i]
	}
	s := NewSelect(table)

	for _, kv := range params {
		key, value := kv.Key, kv.Value
		switch key {
		case "select":
			s.Fields = append(s.Fields, Field{Column: value})
			continue
		case "limit":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, rerr.Config("invalid limit %q", value)
			}
			s.Limit = n
			continue
		case "offset":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, rerr.Config("invalid offset %q", value)
			}
			s.Offset = n
			continue
		case "order":
			for _, part := range strings.Split(value, ",") {
				if part == "" {
					continue
				}
				col, dir := part, Asc
				if strings.HasSuffix(part, ".asc") {
					col = strings.TrimSuffix(part, ".asc")
				} else if strings.HasSuffix(part, ".desc") {
					col = strings.TrimSuffix(part, ".desc")
					dir = Desc
				}
				s.Order = append(s.Order, SortKey{Column: col, Direction: dir})
			}
			continue
		}

		if reservedURLKeys[key] {
			continue
		}

		f, ok := parseFilterKey(key, value)
		if !ok {
			// Invalid prefixes are ignored, never fatal; the core has no logger threaded into this
			// parser, so callers that care should validate keys
			// themselves before calling ParseURL.
			continue
		}
		s.Filters = append(s.Filters, f)
	}

	return s, nil
}

// KeyValue is one URL query parameter, kept as a slice rather than a map
// so ParseURL can honour the caller's original ordering.
type KeyValue struct {
	Key   string
	Value string
}

// parseFilterKey splits a query key into its table-qualified column and
// parses rawValue's prefix into a FilterKind and value. The prefix
// lives on the value side, PostgREST-style (`?sample_number=eq.5`), not
// on the key.
func parseFilterKey(key, rawValue string) (Filter, bool) {
	table, column := splitQualified(key)
	if column == "" {
		return Filter{}, false
	}

	for _, p := range filterPrefixes {
		if !strings.HasPrefix(rawValue, p.prefix) {
			continue
		}
		rest := strings.TrimPrefix(rawValue, p.prefix)
		kind := p.kind

		if kind == Is || kind == IsNot {
			if !strings.EqualFold(rest, "null") {
				return Filter{}, false
			}
			return Filter{Kind: kind, Table: table, Column: column, Value: nil}, true
		}

		if kind == In || kind == NotIn {
			return Filter{Kind: kind, Table: table, Column: column, Value: parseParenList(rest)}, true
		}

		return Filter{Kind: kind, Table: table, Column: column, Value: parseJSONValue(rest)}, true
	}
	return Filter{}, false
}

// splitQualified splits "table.column" into its parts; an unqualified
// key yields table="".
func splitQualified(key string) (string, string) {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// parseParenList parses the "(a,b,c)" form used by in./not_in. values.
func parseParenList(raw string) []any {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	var values []any
	for _, part := range strings.Split(trimmed, ",") {
		values = append(values, parseJSONValue(part))
	}
	return values
}

// parseJSONValue parses raw as JSON first (so "5" -> number, `"5"` ->
// string); on parse failure it falls back to the raw string.
func parseJSONValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
