package query

import (
	"encoding/json"
	"regexp"
	"strings"

	"gitlab.com/rltbl/relatable/rerr"
)

// cliOperator pairs a recognised infix operator's regexp (tried in
// order, longest/most-specific first) with the FilterKind it selects.
// The LHS character class is `\w\-.`; "*" rather than "%" is the
// user-facing glob on a Like RHS.
var cliOperators = []struct {
	re   *regexp.Regexp
	kind FilterKind
}{
	{regexp.MustCompile(`(?i)^([\w\-.]+)\s+IS\s+NOT\s+(.+)$`), IsNot},
	{regexp.MustCompile(`(?i)^([\w\-.]+)\s+IS\s+(.+)$`), Is},
	{regexp.MustCompile(`(?i)^([\w\-.]+)\s+NOT\s+IN\s*\((.*)\)$`), NotIn},
	{regexp.MustCompile(`(?i)^([\w\-.]+)\s+IN\s*\((.*)\)$`), In},
	{regexp.MustCompile(`^([\w\-.]+)\s*~=\s*(.+)$`), Like},
	{regexp.MustCompile(`^([\w\-.]+)\s*!=\s*(.+)$`), NotEqual},
	{regexp.MustCompile(`^([\w\-.]+)\s*>=\s*(.+)$`), GreaterThanOrEqual},
	{regexp.MustCompile(`^([\w\-.]+)\s*<=\s*(.+)$`), LessThanOrEqual},
	{regexp.MustCompile(`^([\w\-.]+)\s*=\s*(.+)$`), Equal},
	{regexp.MustCompile(`^([\w\-.]+)\s*>\s*(.+)$`), GreaterThan},
	{regexp.MustCompile(`^([\w\-.]+)\s*<\s*(.+)$`), LessThan},
}

// ParseCLIFilter parses one infix filter expression (e.g. `species =
// "Adelie"`, `individual_id IS NOT NULL`, `clutch IN (1,2)`) into a
// Filter. Unparseable input fails with ConfigError.
func ParseCLIFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range cliOperators {
		m := op.re.FindStringSubmatch(expr)
		if m == nil {
			continue
		}
		table, column := splitQualified(m[1])
		rhs := strings.TrimSpace(m[2])

		if op.kind == In || op.kind == NotIn {
			return Filter{Kind: op.kind, Table: table, Column: column, Value: parseCLIList(rhs)}, nil
		}

		value := parseCLIValue(rhs)
		if op.kind == Is || op.kind == IsNot {
			if s, ok := value.(string); !ok || !strings.EqualFold(s, "null") {
				return Filter{}, rerr.Config("unparseable filter expression %q", expr)
			}
			value = nil
		}
		return Filter{Kind: op.kind, Table: table, Column: column, Value: value}, nil
	}
	return Filter{}, rerr.Config("unparseable filter expression %q", expr)
}

// parseCLIValue parses a filter's right-hand side: a quoted string, an
// array, an object, a number, or the literals true/false/null is parsed
// as JSON; any other bare value, or one that fails to parse, is kept as
// a string.
func parseCLIValue(rhs string) any {
	if strings.HasPrefix(rhs, `"`) || strings.HasPrefix(rhs, "[") ||
		strings.HasPrefix(rhs, "{") || rhs == "true" || rhs == "false" || rhs == "null" ||
		isNumeric(rhs) {
		var v any
		if err := json.Unmarshal([]byte(rhs), &v); err == nil {
			return v
		}
	}
	return rhs
}

func parseCLIList(rhs string) []any {
	var values []any
	for _, part := range strings.Split(rhs, ",") {
		values = append(values, parseCLIValue(strings.TrimSpace(part)))
	}
	return values
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		if (r == '-' || r == '+') && i == 0 {
			continue
		}
		if r == '.' {
			continue
		}
		return false
	}
	return true
}
