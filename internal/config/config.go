package config

import (
	"fmt"
	"slices"
	"strings"
)

// Supported engines. The first group is served in-process through a
// database/sql driver; dm8 and jdbc go through a generated Java program.
const (
	EngineMySQL      = "mysql"
	EnginePostgres   = "postgres"
	EngineSQLite     = "sqlite"
	EngineClickHouse = "clickhouse"
	EngineDuckDB     = "duckdb"
	EngineDM8        = "dm8"
	EngineJDBC       = "jdbc"
)

var Engines = []string{
	EngineMySQL,
	EnginePostgres,
	EngineSQLite,
	EngineClickHouse,
	EngineDuckDB,
	EngineDM8,
	EngineJDBC,
}

// Connection describes how to reach one database. It is built once at
// startup and only read afterwards.
type Connection struct {
	Engine string `mapstructure:"engine"`

	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// Path is the database file for sqlite and duckdb.
	Path string `mapstructure:"path"`

	// ConnectionString is a driver DSN or, for the external-process engines,
	// a JDBC URL. When set it wins over the individual fields above.
	ConnectionString string `mapstructure:"connection_string"`

	// External-process settings.
	DriverPath  []string `mapstructure:"driver_path"`
	DriverClass string   `mapstructure:"driver_class"`
	JavacPath   string   `mapstructure:"javac_path"`
	JavaPath    string   `mapstructure:"java_path"`
	ScratchDir  string   `mapstructure:"scratch_dir"`
}

// ValidationError lists every required field that is missing for the
// configured engine.
type ValidationError struct {
	Engine  string
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("database connection not configured: missing required fields for %s: %s",
		e.Engine, strings.Join(e.Missing, ", "))
}

// External reports whether the engine is reached through the
// external-process backend.
func (c *Connection) External() bool {
	return c.Engine == EngineDM8 || c.Engine == EngineJDBC
}

func (c *Connection) Validate() error {
	if c == nil {
		return &ValidationError{Reason: "database connection not configured"}
	}
	if c.Engine == "" {
		return &ValidationError{Missing: []string{"engine"}, Reason: "database connection not configured: engine is required"}
	}
	if !slices.Contains(Engines, c.Engine) {
		return &ValidationError{
			Engine: c.Engine,
			Reason: fmt.Sprintf("unsupported engine %q (expected one of %s)", c.Engine, strings.Join(Engines, ", ")),
		}
	}

	var required map[string]string
	switch c.Engine {
	case EngineMySQL:
		if c.ConnectionString != "" {
			return nil
		}
		// Without a database, statements run unqualified and the catalog
		// tools use the server's current schema.
		required = map[string]string{
			"host":     c.Host,
			"port":     c.Port,
			"user":     c.User,
			"password": c.Password,
		}
	case EnginePostgres:
		if c.ConnectionString != "" {
			return nil
		}
		required = map[string]string{
			"host":     c.Host,
			"port":     c.Port,
			"database": c.Database,
			"user":     c.User,
			"password": c.Password,
		}
	case EngineClickHouse:
		if c.ConnectionString != "" {
			return nil
		}
		required = map[string]string{
			"host": c.Host,
			"port": c.Port,
			"user": c.User,
		}
	case EngineSQLite, EngineDuckDB:
		if c.ConnectionString != "" {
			return nil
		}
		required = map[string]string{"path": c.Path}
	case EngineDM8:
		if c.ConnectionString != "" {
			return nil
		}
		required = map[string]string{
			"host":     c.Host,
			"port":     c.Port,
			"user":     c.User,
			"password": c.Password,
		}
	case EngineJDBC:
		required = map[string]string{"connection_string": c.ConnectionString}
	}

	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &ValidationError{Engine: c.Engine, Missing: missing}
	}
	return nil
}

// Redacted returns a copy safe for logging.
func (c Connection) Redacted() Connection {
	if c.Password != "" {
		c.Password = "****"
	}
	if c.ConnectionString != "" {
		c.ConnectionString = "****"
	}
	return c
}
