package dialect

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// SQLite implements Dialect for SQLite database files.
type SQLite struct{}

func (d *SQLite) Engine() string     { return config.EngineSQLite }
func (d *SQLite) DriverName() string { return "sqlite" }

func (d *SQLite) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString, nil
	}
	return cfg.Path, nil
}

func (d *SQLite) ListTablesStatement(_ *config.Connection) string {
	// SQLite has no information_schema; there is one database per file.
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (d *SQLite) DescribeTableStatement(_ *config.Connection, table string) string {
	// pragma_table_info matches the table name case-insensitively.
	return fmt.Sprintf(
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(%s) ORDER BY cid`,
		quoteLiteral(d.NormalizeTableName(table)))
}

func (d *SQLite) NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StripStringsAndComments handles backtick and [bracket] identifiers; # is
// not a comment and there is no backslash escaping.
func (d *SQLite) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{backticks: true, brackets: true})
}
