package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shakram02/go-mcp-sql/internal/backend"
	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/dialect"
	"github.com/shakram02/go-mcp-sql/internal/metrics"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

const DefaultCallTimeout = 60 * time.Second

// Tool names.
const (
	ToolQuery         = "query"
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
)

// ArgumentError reports a tool call rejected before any statement was built.
type ArgumentError struct {
	Argument string
}

func (e *ArgumentError) Error() string {
	return e.Argument + " is required"
}

type DispatcherConfig struct {
	Logger *slog.Logger

	// Connection may be nil or incomplete; it is validated on every call so
	// the server can start and report the problem through the tools.
	Connection  *config.Connection
	Backend     backend.Backend
	CallTimeout time.Duration
}

func (c *DispatcherConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Backend == nil {
		return errors.New("backend is required")
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return nil
}

// Dispatcher turns tool calls into statements and runs them on the backend.
type Dispatcher struct {
	log     *slog.Logger
	conn    *config.Connection
	backend backend.Backend
	timeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		log:     cfg.Logger,
		conn:    cfg.Connection,
		backend: cfg.Backend,
		timeout: cfg.CallTimeout,
	}, nil
}

// Query runs sql verbatim.
func (d *Dispatcher) Query(ctx context.Context, sql string) (result.Outcome, error) {
	return d.dispatch(ctx, ToolQuery, func(dialect.Dialect) (string, error) {
		if strings.TrimSpace(sql) == "" {
			return "", &ArgumentError{Argument: "sql"}
		}
		return sql, nil
	})
}

// ListTables lists the tables visible in the configured database or schema.
func (d *Dispatcher) ListTables(ctx context.Context) (result.Outcome, error) {
	return d.dispatch(ctx, ToolListTables, func(dl dialect.Dialect) (string, error) {
		return dl.ListTablesStatement(d.conn), nil
	})
}

// DescribeTable lists the columns of one table. The name is matched using
// the engine's case convention.
func (d *Dispatcher) DescribeTable(ctx context.Context, table string) (result.Outcome, error) {
	return d.dispatch(ctx, ToolDescribeTable, func(dl dialect.Dialect) (string, error) {
		if strings.TrimSpace(table) == "" {
			return "", &ArgumentError{Argument: "table_name"}
		}
		return dl.DescribeTableStatement(d.conn, table), nil
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, tool string, build func(dialect.Dialect) (string, error)) (outcome result.Outcome, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			if stage := backend.StageOf(err); stage != "" {
				metrics.BackendFailures.WithLabelValues(string(stage)).Inc()
			}
			d.log.Warn("server: tool call failed", "tool", tool, "error", err, "duration", time.Since(start))
		} else {
			d.log.Debug("server: tool call finished", "tool", tool, "duration", time.Since(start))
		}
		metrics.ToolCalls.WithLabelValues(tool, status).Inc()
		metrics.ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	}()

	if err := d.conn.Validate(); err != nil {
		return nil, &backend.Failure{Stage: backend.StageConfig, Message: err.Error(), Err: err}
	}
	dl, err := dialect.For(d.conn.Engine)
	if err != nil {
		return nil, &backend.Failure{Stage: backend.StageConfig, Message: err.Error(), Err: err}
	}
	statement, err := build(dl)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.backend.Execute(ctx, d.conn, statement)
}

// ErrorText renders a failed call the way tool results report it.
func ErrorText(err error) string {
	return fmt.Sprintf("Error: %v", err)
}
