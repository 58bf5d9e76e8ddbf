package dialect

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/shakram02/go-mcp-sql/internal/config"
)

// Postgres implements Dialect for PostgreSQL.
type Postgres struct{}

func (d *Postgres) Engine() string     { return config.EnginePostgres }
func (d *Postgres) DriverName() string { return "postgres" }

func (d *Postgres) DSN(cfg *config.Connection) (string, error) {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString, nil
	}

	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	q.Set("connect_timeout", strconv.Itoa(int(ConnectTimeout.Seconds())))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (d *Postgres) ListTablesStatement(_ *config.Connection) string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
}

func (d *Postgres) DescribeTableStatement(_ *config.Connection, table string) string {
	return fmt.Sprintf(`SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND lower(table_name) = %s
ORDER BY ordinal_position`, pq.QuoteLiteral(d.NormalizeTableName(table)))
}

// NormalizeTableName folds to lower case, as PostgreSQL does for unquoted
// identifiers.
func (d *Postgres) NormalizeTableName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StripStringsAndComments handles $$ dollar-quoted strings and double-quoted
// identifiers; there are no # comments and no backslash escaping by default.
func (d *Postgres) StripStringsAndComments(sql string) string {
	return stripStringsAndComments(sql, lexOptions{dollarQuotes: true})
}
