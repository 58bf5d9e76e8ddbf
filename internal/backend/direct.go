package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/dialect"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

type DirectConfig struct {
	Logger *slog.Logger
}

func (c *DirectConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Direct runs statements in-process through a database/sql driver. Every call
// opens its own handle and closes it before returning; nothing is pooled.
type Direct struct {
	log *slog.Logger
}

func NewDirect(cfg DirectConfig) (*Direct, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Direct{log: cfg.Logger}, nil
}

func (b *Direct) Execute(ctx context.Context, cfg *config.Connection, statement string) (result.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(StageConfig, err)
	}
	d, err := dialect.For(cfg.Engine)
	if err != nil {
		return nil, fail(StageConfig, err)
	}
	if d.DriverName() == "" {
		return nil, fail(StageConfig, fmt.Errorf("engine %s has no in-process driver", cfg.Engine))
	}
	dsn, err := d.DSN(cfg)
	if err != nil {
		return nil, fail(StageConfig, err)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fail(StageConnect, fmt.Errorf("failed to open database: %w", err))
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fail(StageConnect, fmt.Errorf("failed to connect: %w", err))
	}
	defer conn.Close()

	b.log.Debug("backend/direct: executing statement", "engine", cfg.Engine)

	if returnsRows(d.StripStringsAndComments(statement)) {
		return b.query(ctx, conn, statement)
	}
	return b.exec(ctx, conn, statement)
}

func (b *Direct) query(ctx context.Context, conn *sql.Conn, statement string) (result.Outcome, error) {
	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, fail(StageRun, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fail(StageRun, fmt.Errorf("failed to get columns: %w", err))
	}
	if len(columns) == 0 {
		if err := rows.Err(); err != nil {
			return nil, fail(StageRun, err)
		}
		return result.Status{Message: result.ExecutedStatus}, nil
	}

	table := &result.Table{Columns: columns, Rows: [][]result.Cell{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fail(StageRun, fmt.Errorf("failed to scan row: %w", err))
		}
		row := make([]result.Cell, len(columns))
		for i, v := range values {
			row[i] = cellOf(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(StageRun, fmt.Errorf("error iterating rows: %w", err))
	}
	if err := table.Validate(); err != nil {
		return nil, fail(StageRun, err)
	}
	return table, nil
}

func (b *Direct) exec(ctx context.Context, conn *sql.Conn, statement string) (result.Outcome, error) {
	res, err := conn.ExecContext(ctx, statement)
	if err != nil {
		return nil, fail(StageRun, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return result.Status{Message: result.ExecutedStatus}, nil
	}
	return result.RowsAffected{Count: n}, nil
}

// cellOf converts a scanned driver value into its canonical text.
func cellOf(v any) result.Cell {
	switch x := v.(type) {
	case nil:
		return result.Null()
	case []byte:
		return result.Value(string(x))
	case string:
		return result.Value(x)
	case time.Time:
		return result.Value(x.Format(time.RFC3339Nano))
	case float64:
		return result.Value(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return result.Value(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case bool:
		return result.Value(strconv.FormatBool(x))
	case int64:
		return result.Value(strconv.FormatInt(x, 10))
	case fmt.Stringer:
		return result.Value(x.String())
	}

	// Some drivers scan nullable columns as typed pointers.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return result.Null()
		}
		return cellOf(rv.Elem().Interface())
	}
	return result.Value(fmt.Sprint(v))
}
