package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

func newTestDirect(t *testing.T) *Direct {
	t.Helper()
	b, err := NewDirect(DirectConfig{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))})
	require.NoError(t, err)
	return b
}

func newSQLiteConfig(t *testing.T) *config.Connection {
	t.Helper()
	return &config.Connection{Engine: config.EngineSQLite, Path: filepath.Join(t.TempDir(), "test.db")}
}

func seedSQLite(t *testing.T, b *Direct, cfg *config.Connection) {
	t.Helper()
	ctx := t.Context()

	_, err := b.Execute(ctx, cfg, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, score REAL)`)
	require.NoError(t, err)

	out, err := b.Execute(ctx, cfg, `INSERT INTO items (id, name, score) VALUES (1, 'a', 1.5), (2, NULL, 2), (3, 'c', NULL)`)
	require.NoError(t, err)
	require.Equal(t, result.RowsAffected{Count: 3}, out)
}

func TestDirect_NewDirect_RequiresLogger(t *testing.T) {
	t.Parallel()

	_, err := NewDirect(DirectConfig{})
	require.ErrorContains(t, err, "logger is required")
}

func TestDirect_SQLite_Select(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)
	seedSQLite(t, b, cfg)

	out, err := b.Execute(t.Context(), cfg, `SELECT id, name, score FROM items ORDER BY id`)
	require.NoError(t, err)

	table, ok := out.(*result.Table)
	require.True(t, ok, "expected table, got %T", out)
	require.NoError(t, table.Validate())
	require.Equal(t, []string{"id", "name", "score"}, table.Columns)
	require.Equal(t, [][]result.Cell{
		{result.Value("1"), result.Value("a"), result.Value("1.5")},
		{result.Value("2"), result.Null(), result.Value("2")},
		{result.Value("3"), result.Value("c"), result.Null()},
	}, table.Rows)

	require.Equal(t, "id\tname\tscore\n1\ta\t1.5\n2\tNULL\t2\n3\tc\tNULL", result.Text(out))
}

func TestDirect_SQLite_EmptyResult(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)
	seedSQLite(t, b, cfg)

	out, err := b.Execute(t.Context(), cfg, `SELECT id, name FROM items WHERE 1=0`)
	require.NoError(t, err)
	require.Equal(t, &result.Table{Columns: []string{"id", "name"}, Rows: [][]result.Cell{}}, out)
	require.Equal(t, "id\tname", result.Text(out))
}

func TestDirect_SQLite_CellConversion(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)

	out, err := b.Execute(t.Context(), cfg, `SELECT x'6869' AS blob, 100000000.0 AS big, 0.1 AS small, 'it''s' AS quoted`)
	require.NoError(t, err)
	table := out.(*result.Table)
	require.Equal(t, []result.Cell{
		result.Value("hi"),
		result.Value("100000000"),
		result.Value("0.1"),
		result.Value("it's"),
	}, table.Rows[0])
}

func TestDirect_SQLite_UpdateAndDelete(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)
	seedSQLite(t, b, cfg)

	out, err := b.Execute(t.Context(), cfg, `UPDATE items SET score = 0 WHERE score IS NOT NULL`)
	require.NoError(t, err)
	require.Equal(t, result.RowsAffected{Count: 2}, out)

	out, err = b.Execute(t.Context(), cfg, `DELETE FROM items WHERE id = 42`)
	require.NoError(t, err)
	require.Equal(t, result.RowsAffected{Count: 0}, out)

	out, err = b.Execute(t.Context(), cfg, `/* leading */ DELETE FROM items RETURNING id`)
	require.NoError(t, err)
	table := out.(*result.Table)
	require.Len(t, table.Rows, 3)
}

func TestDirect_Failures(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)

	t.Run("config", func(t *testing.T) {
		t.Parallel()
		_, err := b.Execute(t.Context(), &config.Connection{Engine: config.EngineSQLite}, "SELECT 1")
		require.Equal(t, StageConfig, StageOf(err))
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, []string{"path"}, verr.Missing)
	})

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		_, err := b.Execute(t.Context(), nil, "SELECT 1")
		require.Equal(t, StageConfig, StageOf(err))
	})

	t.Run("external engine", func(t *testing.T) {
		t.Parallel()
		_, err := b.Execute(t.Context(), &config.Connection{Engine: config.EngineJDBC, ConnectionString: "jdbc:x:y"}, "SELECT 1")
		require.Equal(t, StageConfig, StageOf(err))
	})

	t.Run("connect", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Connection{Engine: config.EngineSQLite, Path: filepath.Join(t.TempDir(), "missing", "dir", "x.db")}
		_, err := b.Execute(t.Context(), cfg, "SELECT 1")
		require.Equal(t, StageConnect, StageOf(err))
	})

	t.Run("run", func(t *testing.T) {
		t.Parallel()
		_, err := b.Execute(t.Context(), newSQLiteConfig(t), "SELECT * FROM no_such_table")
		require.Equal(t, StageRun, StageOf(err))
		require.Contains(t, err.Error(), "no_such_table")
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := b.Execute(ctx, newSQLiteConfig(t), "SELECT 1")
		require.Equal(t, StageConnect, StageOf(err))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestDirect_SQLite_Concurrent(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)
	seedSQLite(t, b, cfg)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	const n = 16
	results := make([]result.Outcome, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			out, err := b.Execute(gctx, cfg, fmt.Sprintf(`SELECT %d AS call, count(*) AS total FROM items`, i))
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, out := range results {
		table := out.(*result.Table)
		require.Equal(t, []result.Cell{result.Value(fmt.Sprint(i)), result.Value("3")}, table.Rows[0])
	}
}

func TestDirect_SQLite_StatementWithoutResultSet(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := newSQLiteConfig(t)
	seedSQLite(t, b, cfg)

	out, err := b.Execute(t.Context(), cfg, `VACUUM`)
	require.NoError(t, err)
	require.Equal(t, result.Status{Message: result.ExecutedStatus}, out)
}

func TestDirect_DuckDB_Call(t *testing.T) {
	t.Parallel()

	b := newTestDirect(t)
	cfg := &config.Connection{Engine: config.EngineDuckDB, Path: filepath.Join(t.TempDir(), "lake.duckdb")}
	ctx := t.Context()

	_, err := b.Execute(ctx, cfg, `CREATE TABLE items (id INTEGER, name VARCHAR)`)
	require.NoError(t, err)

	out, err := b.Execute(ctx, cfg, `CALL duckdb_tables()`)
	require.NoError(t, err)
	table, ok := out.(*result.Table)
	require.True(t, ok, "expected a table, got %T", out)
	require.NoError(t, table.Validate())

	col := slices.Index(table.Columns, "table_name")
	require.GreaterOrEqual(t, col, 0)
	var names []string
	for _, row := range table.Rows {
		names = append(names, row[col].Value)
	}
	require.Contains(t, names, "items")
}
