package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// ConnectTimeout bounds how long a driver may take to establish the
// per-call connection.
const ConnectTimeout = 10 * time.Second

// Dialect captures the engine-specific pieces the backends and the tool
// dispatcher need. Each supported engine implements this interface.
type Dialect interface {
	// Engine returns the config engine name (e.g. "mysql", "dm8").
	Engine() string

	// DriverName returns the database/sql driver name, or "" for engines
	// reached through the external-process backend.
	DriverName() string

	// DSN builds the driver connection string (a JDBC URL for external
	// engines). The config must already be valid.
	DSN(cfg *config.Connection) (string, error)

	// ListTablesStatement returns the catalog query behind list_tables.
	ListTablesStatement(cfg *config.Connection) string

	// DescribeTableStatement returns the catalog query behind describe_table.
	// The table name is normalized and embedded as a quoted literal.
	DescribeTableStatement(cfg *config.Connection, table string) string

	// NormalizeTableName applies the engine's case convention for catalog
	// lookups.
	NormalizeTableName(name string) string

	// StripStringsAndComments removes literals and comments so statement
	// keywords can be inspected safely.
	StripStringsAndComments(sql string) string
}

// For returns the dialect for an engine name.
func For(engine string) (Dialect, error) {
	switch engine {
	case config.EngineMySQL:
		return &MySQL{}, nil
	case config.EnginePostgres:
		return &Postgres{}, nil
	case config.EngineSQLite:
		return &SQLite{}, nil
	case config.EngineClickHouse:
		return &ClickHouse{}, nil
	case config.EngineDuckDB:
		return &DuckDB{}, nil
	case config.EngineDM8:
		return &DM8{}, nil
	case config.EngineJDBC:
		return &JDBC{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
}

// quoteLiteral renders s as a standard SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteLiteralBackslash is quoteLiteral for engines that treat backslash as an
// escape character inside string literals (MySQL, ClickHouse).
func quoteLiteralBackslash(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return quoteLiteral(s)
}

type lexOptions struct {
	hashComments       bool // # starts a line comment
	backslashEscapes   bool // \ escapes the next byte inside quotes
	doubleQuoteStrings bool // "..." is a string, not an identifier
	dollarQuotes       bool // $tag$...$tag$ strings
	backticks          bool // `ident`
	brackets           bool // [ident]
}

// stripStringsAndComments replaces every string literal with '' (or "") and
// every comment with a single space, keeping quoted identifiers intact.
func stripStringsAndComments(sql string, opts lexOptions) string {
	var result strings.Builder
	i := 0
	n := len(sql)

	skipQuoted := func(quote byte) {
		i++
		for i < n {
			if sql[i] == quote {
				if i+1 < n && sql[i+1] == quote {
					i += 2
					continue
				}
				i++
				return
			}
			if opts.backslashEscapes && sql[i] == '\\' && i+1 < n {
				i += 2
				continue
			}
			i++
		}
	}

	copyDelimited := func(open, close byte) {
		result.WriteByte(open)
		i++
		for i < n && sql[i] != close {
			result.WriteByte(sql[i])
			i++
		}
		if i < n {
			result.WriteByte(close)
			i++
		}
	}

	for i < n {
		c := sql[i]

		if c == '-' && i+1 < n && sql[i+1] == '-' || opts.hashComments && c == '#' {
			for i < n && sql[i] != '\n' {
				i++
			}
			result.WriteByte(' ')
			continue
		}

		if c == '/' && i+1 < n && sql[i+1] == '*' {
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			result.WriteByte(' ')
			continue
		}

		if opts.dollarQuotes && c == '$' {
			if tag, ok := dollarTag(sql[i:]); ok {
				if end := strings.Index(sql[i+len(tag):], tag); end >= 0 {
					i += len(tag) + end + len(tag)
					result.WriteString("''")
					continue
				}
			}
		}

		switch {
		case c == '\'':
			skipQuoted('\'')
			result.WriteString("''")
			continue
		case c == '"' && opts.doubleQuoteStrings:
			skipQuoted('"')
			result.WriteString(`""`)
			continue
		case c == '"':
			result.WriteByte('"')
			i++
			for i < n {
				if sql[i] == '"' {
					if i+1 < n && sql[i+1] == '"' {
						result.WriteString(`""`)
						i += 2
						continue
					}
					result.WriteByte('"')
					i++
					break
				}
				result.WriteByte(sql[i])
				i++
			}
			continue
		case c == '`' && opts.backticks:
			copyDelimited('`', '`')
			continue
		case c == '[' && opts.brackets:
			copyDelimited('[', ']')
			continue
		}

		result.WriteByte(c)
		i++
	}

	return result.String()
}

// dollarTag returns the opening tag ($$ or $name$) at the start of s.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}
