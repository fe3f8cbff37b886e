package query

import "regexp"

// simpleIdentifier is the only shape the emitter will interpolate
// directly into a SQL identifier position.
// Every filter's table and column name is checked against it before
// being spliced into emitted SQL; values are always parameterised
// instead, so this regexp is the core's sole defence against injection
// through identifier positions.
var simpleIdentifier = regexp.MustCompile(`^[\w_]+$`)

// ValidIdentifier reports whether name is safe to interpolate as a SQL
// identifier.
func ValidIdentifier(name string) bool {
	return simpleIdentifier.MatchString(name)
}
