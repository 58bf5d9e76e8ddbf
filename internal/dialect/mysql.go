package dialect

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// MySQL implements Dialect for MySQL and MariaDB.
type MySQL struct{}

func (d *MySQL) Engine() string     { return config.EngineMySQL }
func (d *MySQL) DriverName() string { return "mysql" }

func (d *MySQL) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		if _, err := mysql.ParseDSN(cfg.ConnectionString); err != nil {
			return "", fmt.Errorf("invalid mysql connection string: %w", err)
		}
		return cfg.ConnectionString, nil
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.Timeout = ConnectTimeout
	return mc.FormatDSN(), nil
}

func (d *MySQL) schemaExpr(cfg *config.Connection) string {
	if cfg.Database == "" {
		return "DATABASE()"
	}
	return quoteLiteralBackslash(cfg.Database)
}

func (d *MySQL) ListTablesStatement(cfg *config.Connection) string {
	return fmt.Sprintf(
		`SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = %s ORDER BY TABLE_NAME`,
		d.schemaExpr(cfg))
}

func (d *MySQL) DescribeTableStatement(cfg *config.Connection, table string) string {
	return fmt.Sprintf(`SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT, EXTRA
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = %s AND LOWER(TABLE_NAME) = %s
ORDER BY ORDINAL_POSITION`,
		d.schemaExpr(cfg), quoteLiteralBackslash(d.NormalizeTableName(table)))
}

// NormalizeTableName lower-cases the name; the catalog lookup compares
// against LOWER(TABLE_NAME) so it works whatever lower_case_table_names is.
func (d *MySQL) NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StripStringsAndComments handles # comments, backtick identifiers, and
// backslash escaping in strings.
func (d *MySQL) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{
		hashComments:       true,
		backslashEscapes:   true,
		doubleQuoteStrings: true,
		backticks:          true,
	})
}
