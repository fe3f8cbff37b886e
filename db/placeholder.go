package db

import "strconv"

// Placeholders is a tiny stateful helper that yields successive SQL
// parameter placeholders in the style the target dialect expects. It is
// threaded through Select.ToSQL so that a top-level select and any
// subquery filters nested inside it share one numbering sequence.
type Placeholders struct {
	kind Kind
	next int
}

// NewPlaceholders creates a generator for the given dialect.
func NewPlaceholders(kind Kind) *Placeholders {
	return &Placeholders{kind: kind, next: 1}
}

// Next returns the next placeholder token ("?" for Sqlite, "$N" for Postgres).
func (p *Placeholders) Next() string {
	switch p.kind {
	case Postgres:
		s := "$" + strconv.Itoa(p.next)
		p.next++
		return s
	default:
		p.next++
		return "?"
	}
}

// List returns n consecutive placeholder tokens, for callers (the
// mutation engine, the catalogue loader) that build a raw SQL string
// outside the Select emitter and just need the right tokens for the
// dialect at hand.
func List(kind Kind, n int) []string {
	ph := NewPlaceholders(kind)
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = ph.Next()
	}
	return tokens
}
