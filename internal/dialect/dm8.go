package dialect

import (
	"fmt"
	"net"
	"strings"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

const DM8DriverClass = "dm.jdbc.driver.DmDriver"

// DM8 implements Dialect for the DM8 (Dameng) database, which only ships a
// JDBC driver and is therefore served by the external-process backend.
type DM8 struct{}

func (d *DM8) Engine() string     { return config.EngineDM8 }
func (d *DM8) DriverName() string { return "" }

// DSN returns the JDBC URL. Without an explicit connection string it is
// composed as jdbc:dm://host:port?schema=DB&user=U&password=P; the values are
// passed through unencoded because the DM driver does not percent-decode them.
func (d *DM8) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		if !strings.HasPrefix(cfg.ConnectionString, "jdbc:dm:") {
			return "", fmt.Errorf("dm8 connection string must start with jdbc:dm: (got %q)", redactURL(cfg.ConnectionString))
		}
		return cfg.ConnectionString, nil
	}

	var b strings.Builder
	b.WriteString("jdbc:dm://")
	b.WriteString(net.JoinHostPort(cfg.Host, cfg.Port))
	sep := "?"
	add := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteString(sep)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		sep = "&"
	}
	add("schema", cfg.Database)
	add("user", cfg.User)
	add("password", cfg.Password)
	return b.String(), nil
}

func (d *DM8) ListTablesStatement(_ *config.Connection) string {
	return `SELECT TABLE_NAME FROM USER_TABLES ORDER BY TABLE_NAME`
}

func (d *DM8) DescribeTableStatement(_ *config.Connection, table string) string {
	return fmt.Sprintf(`SELECT COLUMN_NAME, DATA_TYPE, DATA_LENGTH, NULLABLE FROM USER_TAB_COLUMNS WHERE TABLE_NAME = %s ORDER BY COLUMN_ID`,
		quoteLiteral(d.NormalizeTableName(table)))
}

// NormalizeTableName upper-cases the name; the DM8 dictionary stores
// unquoted identifiers in upper case.
func (d *DM8) NormalizeTableName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (d *DM8) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{})
}

// JDBC implements Dialect for any engine reachable through a JDBC URL. The
// catalog statements use the Oracle-style USER_* views, which is what the
// JDBC-only engines this targets (DM8, Kingbase in Oracle mode, Oracle) expose.
type JDBC struct {
	DM8
}

func (d *JDBC) Engine() string { return config.EngineJDBC }

func (d *JDBC) DSN(cfg *config.Connection) (string, error) {
	if !strings.HasPrefix(cfg.ConnectionString, "jdbc:") {
		return "", fmt.Errorf("jdbc connection string must start with jdbc: (got %q)", redactURL(cfg.ConnectionString))
	}
	return cfg.ConnectionString, nil
}

// redactURL trims everything after the first '?' so credentials passed as
// query parameters do not end up in error messages.
func redactURL(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i] + "?..."
	}
	return s
}
