package dialect

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// ClickHouse implements Dialect for ClickHouse over the native protocol.
type ClickHouse struct{}

func (d *ClickHouse) Engine() string     { return config.EngineClickHouse }
func (d *ClickHouse) DriverName() string { return "clickhouse" }

func (d *ClickHouse) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString, nil
	}

	q := url.Values{}
	q.Set("dial_timeout", ConnectTimeout.String())
	u := url.URL{
		Scheme:   "clickhouse",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (d *ClickHouse) ListTablesStatement(_ *config.Connection) string {
	return `SELECT name FROM system.tables WHERE database = currentDatabase() ORDER BY name`
}

func (d *ClickHouse) DescribeTableStatement(_ *config.Connection, table string) string {
	return fmt.Sprintf(`SELECT name, type, default_kind, default_expression, comment
FROM system.columns
WHERE database = currentDatabase() AND lower(table) = %s
ORDER BY position`, quoteLiteralBackslash(d.NormalizeTableName(table)))
}

func (d *ClickHouse) NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (d *ClickHouse) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{
		hashComments:     true,
		backslashEscapes: true,
		backticks:        true,
	})
}
