package query

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"gitlab.com/rltbl/relatable/rerr"
)

// kindToPrefix inverts filterPrefixes for encoding.
var kindToPrefix = map[FilterKind]string{
	Like:               "like.",
	Equal:              "eq.",
	NotEqual:           "not_eq.",
	GreaterThan:        "gt.",
	GreaterThanOrEqual: "gte.",
	LessThan:           "lt.",
	LessThanOrEqual:    "lte.",
	Is:                 "is.",
	IsNot:              "is_not.",
	In:                 "in.",
	NotIn:              "not_in.",
}

// ToParams renders s back into URL query parameters, inverting ParseURL.
// Expression projections, joins, and subquery filters cannot be
// round-tripped and fail with InputError.
func (s *Select) ToParams() ([]KeyValue, error) {
	if len(s.Joins) > 0 {
		return nil, rerr.Input("select with joins cannot be rendered as url parameters")
	}

	var params []KeyValue
	for _, f := range s.Fields {
		if f.IsExpression() {
			return nil, rerr.Input("expression fields cannot be rendered as url parameters")
		}
		params = append(params, KeyValue{Key: "select", Value: f.Column})
	}

	if len(s.Order) > 0 {
		parts := make([]string, 0, len(s.Order))
		for _, k := range s.Order {
			col := k.Column
			if k.Table != "" {
				col = k.Table + "." + col
			}
			parts = append(parts, col+"."+k.Direction.String())
		}
		params = append(params, KeyValue{Key: "order", Value: strings.Join(parts, ",")})
	}

	if s.Limit > 0 {
		params = append(params, KeyValue{Key: "limit", Value: strconv.FormatInt(s.Limit, 10)})
	}
	if s.Offset > 0 {
		params = append(params, KeyValue{Key: "offset", Value: strconv.FormatInt(s.Offset, 10)})
	}

	for _, f := range s.Filters {
		if f.Kind == InSubquery || f.Kind == NotInSubquery {
			return nil, rerr.Input("subquery filters cannot be rendered as url parameters")
		}
		key := f.Column
		if f.Table != "" {
			key = f.Table + "." + f.Column
		}

		encoded, errE := encodeFilterValue(f)
		if errE != nil {
			return nil, errE
		}
		params = append(params, KeyValue{Key: key, Value: kindToPrefix[f.Kind] + encoded})
	}

	return params, nil
}

func encodeFilterValue(f Filter) (string, error) {
	if f.Kind == Is || f.Kind == IsNot {
		return "null", nil
	}
	if f.Kind == In || f.Kind == NotIn {
		values, ok := f.Value.([]any)
		if !ok {
			return "", rerr.Input("in/not_in filter value must be an array")
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, jsonValueToString(v))
		}
		return "(" + strings.Join(parts, ",") + ")", nil
	}
	return jsonValueToString(f.Value), nil
}

// jsonValueToString renders a filter value back to its URL-parameter
// text form: bare for numbers/booleans, quoted JSON for strings (so
// re-parsing with parseJSONValue round-trips).
func jsonValueToString(v any) string {
	switch t := v.(type) {
	case string:
		b, _ := json.Marshal(t)
		return string(b)
	case nil:
		return "null"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// ToURL renders s as a path+query string rooted at base, with format
// appended as the path suffix (e.g. ".json", ".pretty.json").
func (s *Select) ToURL(base, format string) (string, error) {
	params, err := s.ToParams()
	if err != nil {
		return "", err
	}
	path := base + "/" + s.TableName
	if format != "" {
		path += "." + format
	}
	if len(params) == 0 {
		return path, nil
	}
	parts := make([]string, 0, len(params))
	for _, kv := range params {
		parts = append(parts, url.QueryEscape(kv.Key)+"="+url.QueryEscape(kv.Value))
	}
	return path + "?" + strings.Join(parts, "&"), nil
}
