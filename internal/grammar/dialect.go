package grammar

import (
	"fmt"
	"strings"
)

// Dialect names a supported SQL surface syntax.
type Dialect string

const (
	// DialectMySQL reads double quotes as string literals.
	DialectMySQL Dialect = "mysql"

	// DialectSQLite reads double quotes as identifiers when it can.
	DialectSQLite Dialect = "sqlite"
)

// ValidDialects lists the dialects in a stable order.
var ValidDialects = []Dialect{DialectMySQL, DialectSQLite}

// ParseDialect validates a dialect name.
// Returns error if name is not one of: mysql, sqlite.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case DialectMySQL, DialectSQLite:
		return d, nil
	case "":
		return "", fmt.Errorf("dialect is required: must be mysql or sqlite")
	default:
		return "", fmt.Errorf("invalid dialect %q: must be mysql or sqlite", name)
	}
}

// doubleQuotedIsAmbiguous reports whether "x" can be read both ways.
func (d Dialect) doubleQuotedIsAmbiguous() bool {
	return d == DialectSQLite
}
