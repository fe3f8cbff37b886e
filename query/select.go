// Package query implements the Select DSL: a composable representation
// of read queries, bidirectional conversion to two surface syntaxes (URL
// query parameters and CLI filter expressions), and a dialect-aware SQL
// emitter.
package query

// DefaultLimit is the limit applied when neither a caller nor a prior
// ToURL/ParseURL round-trip specified one.
const DefaultLimit = 100

// Direction is an ORDER BY sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// SortKey is one ORDER BY entry.
type SortKey struct {
	Table     string
	Column    string
	Direction Direction
}

// Field is one projected column, or a raw SQL expression with an alias.
// Exactly one of (Table/Column) or Expr should be set.
type Field struct {
	Table  string
	Column string
	Alias  string
	Expr   string
}

// IsExpression reports whether this field is a raw SQL expression
// rather than a plain column reference. Expression fields cannot be
// round-tripped to a URL.
func (f Field) IsExpression() bool {
	return f.Expr != ""
}

// JoinKind enumerates supported join types. Only LeftJoin exists today.
type JoinKind int

const (
	LeftJoin JoinKind = iota
)

// Join is one join clause, always a left join.
type Join struct {
	Kind        JoinKind
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

// Select is the core's read-query value object: projection, joins,
// filters, ordering, limit/offset, accumulated by a builder, a URL
// parser, or a CLI parser, and consumed by the SQL emitter or the
// tableset planner.
type Select struct {
	TableName string
	ViewName  string
	Fields    []Field
	Joins     []Join
	Filters   []Filter
	Order     []SortKey
	Limit     int64
	Offset    int64

	// SuppressDefaultOrder, when true, keeps the emitter from falling
	// back to "ORDER BY target._order ASC" for a joinless select with
	// no explicit Order. The tableset planner sets this: it needs
	// an outer select whose rows arrive pre-ordered by its inner
	// subquery and must not be silently reordered by the target's own
	// default. ToSQLCount also sets it on the stripped clones it emits.
	SuppressDefaultOrder bool
}

// NewSelect creates a bare Select over table, with the package default limit.
func NewSelect(table string) *Select {
	return &Select{TableName: table, Limit: DefaultLimit}
}

// Clone returns a deep-enough copy of s for the tableset planner and
// emitter to mutate independently of the caller's original. Selects are
// meant to be treated as immutable once built, so this is the
// escape hatch for code that needs to derive a variant.
func (s *Select) Clone() *Select {
	clone := *s
	clone.Fields = append([]Field(nil), s.Fields...)
	clone.Joins = append([]Join(nil), s.Joins...)
	clone.Filters = append([]Filter(nil), s.Filters...)
	clone.Order = append([]SortKey(nil), s.Order...)
	return &clone
}

// Select (query.Select) - the builder methods below are mainly used by
// tests and by the tableset planner, which constructs Selects directly
// rather than parsing them from a surface syntax.

func (s *Select) Select(table, column, alias string) *Select {
	s.Fields = append(s.Fields, Field{Table: table, Column: column, Alias: alias})
	return s
}

func (s *Select) SelectExpr(expr, alias string) *Select {
	s.Fields = append(s.Fields, Field{Expr: expr, Alias: alias})
	return s
}

func (s *Select) LeftJoin(leftTable, leftColumn, rightTable, rightColumn string) *Select {
	s.Joins = append(s.Joins, Join{Kind: LeftJoin, LeftTable: leftTable, LeftColumn: leftColumn, RightTable: rightTable, RightColumn: rightColumn})
	return s
}

func (s *Select) Where(f Filter) *Select {
	s.Filters = append(s.Filters, f)
	return s
}

func (s *Select) OrderBy(table, column string, dir Direction) *Select {
	s.Order = append(s.Order, SortKey{Table: table, Column: column, Direction: dir})
	return s
}

// FilteredTables returns the distinct set of table names referenced by
// s's filters, plus s.TableName itself, in first-seen order. The
// tableset planner uses this to decide whether a query spans more than
// one table of a configured set.
func (s *Select) FilteredTables() []string {
	seen := map[string]bool{}
	var tables []string
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tables = append(tables, t)
	}
	add(s.TableName)
	for _, f := range s.Filters {
		add(f.Table)
	}
	return tables
}
