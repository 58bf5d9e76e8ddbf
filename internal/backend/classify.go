package backend

import (
	"regexp"
	"strings"
)

// execKeywords are the leading keywords of writes, DDL and session
// statements. Without RETURNING these never produce a result set, so they run
// with ExecContext to report an affected-row count.
var execKeywords = map[string]bool{
	"INSERT":    true,
	"UPDATE":    true,
	"DELETE":    true,
	"REPLACE":   true,
	"MERGE":     true,
	"UPSERT":    true,
	"CREATE":    true,
	"ALTER":     true,
	"DROP":      true,
	"TRUNCATE":  true,
	"RENAME":    true,
	"COMMENT":   true,
	"GRANT":     true,
	"REVOKE":    true,
	"SET":       true,
	"USE":       true,
	"BEGIN":     true,
	"START":     true,
	"COMMIT":    true,
	"ROLLBACK":  true,
	"SAVEPOINT": true,
	"RELEASE":   true,
	"LOCK":      true,
	"UNLOCK":    true,
}

var returningPattern = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z_])RETURNING(?:[^a-zA-Z_]|$)`)

// returnsRows reports whether a statement should be run with QueryContext
// rather than ExecContext. Anything not known to be a plain write goes
// through QueryContext, where a statement without a result set comes back
// with no columns. cleaned must already have its string literals and
// comments removed.
func returnsRows(cleaned string) bool {
	keyword := leadingKeyword(cleaned)
	if keyword == "" {
		return false
	}
	if !execKeywords[keyword] {
		return true
	}
	return returningPattern.MatchString(cleaned)
}

// leadingKeyword returns the first word of the statement, upper-cased,
// skipping whitespace and opening parentheses.
func leadingKeyword(cleaned string) string {
	s := strings.TrimLeft(cleaned, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToUpper(s)
}
