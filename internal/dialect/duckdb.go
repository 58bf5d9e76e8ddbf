package dialect

import (
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// DuckDB implements Dialect for DuckDB database files.
type DuckDB struct{}

func (d *DuckDB) Engine() string     { return config.EngineDuckDB }
func (d *DuckDB) DriverName() string { return "duckdb" }

func (d *DuckDB) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString, nil
	}
	if cfg.Path == ":memory:" {
		return "", nil
	}
	return cfg.Path, nil
}

func (d *DuckDB) ListTablesStatement(_ *config.Connection) string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *DuckDB) DescribeTableStatement(_ *config.Connection, table string) string {
	return fmt.Sprintf(`SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND lower(table_name) = %s
ORDER BY ordinal_position`, quoteLiteral(d.NormalizeTableName(table)))
}

func (d *DuckDB) NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (d *DuckDB) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{dollarQuotes: true})
}
