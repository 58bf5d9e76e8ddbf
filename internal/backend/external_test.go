package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

type fakeCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []fakeCall
	fn    func(name string, args []string) (string, string, error)
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{name: name, args: slices.Clone(args)})
	f.mu.Unlock()
	if f.fn == nil {
		return "", "", nil
	}
	return f.fn(name, args)
}

func (f *fakeRunner) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

// javaStep returns fn results by tool: javac succeeds, java runs run.
func javaStep(run func(args []string) (string, string, error)) func(string, []string) (string, string, error) {
	return func(name string, args []string) (string, string, error) {
		if name == "javac" {
			return "", "", nil
		}
		return run(args)
	}
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestExternal(t *testing.T, runner CommandRunner) *External {
	t.Helper()
	b, err := NewExternal(ExternalConfig{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Runner: runner,
	})
	require.NoError(t, err)
	return b
}

func newJDBCConfig(t *testing.T) *config.Connection {
	t.Helper()
	return &config.Connection{
		Engine:           config.EngineJDBC,
		ConnectionString: "jdbc:test://db:1234/main",
		DriverPath:       []string{"/opt/jdbc/a.jar", "/opt/jdbc/b.jar"},
		ScratchDir:       t.TempDir(),
	}
}

func requireScratchEmpty(t *testing.T, cfg *config.Connection) {
	t.Helper()
	entries, err := os.ReadDir(cfg.ScratchDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExternal_NewExternal_Validate(t *testing.T) {
	t.Parallel()

	_, err := NewExternal(ExternalConfig{Runner: &fakeRunner{}})
	require.ErrorContains(t, err, "logger is required")

	_, err = NewExternal(ExternalConfig{Logger: slog.Default()})
	require.ErrorContains(t, err, "runner is required")
}

func TestExternal_Table(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: javaStep(func(args []string) (string, string, error) {
		return "ID\tNAME\n1\talice\n2\t\\N\n", "", nil
	})}
	b := newTestExternal(t, runner)
	cfg := newJDBCConfig(t)

	out, err := b.Execute(t.Context(), cfg, "SELECT ID, NAME FROM USERS")
	require.NoError(t, err)
	require.Equal(t, "ID\tNAME\n1\talice\n2\tNULL", result.Text(out))

	calls := runner.Calls()
	require.Len(t, calls, 2)

	sep := string(os.PathListSeparator)
	compile := calls[0]
	require.Equal(t, "javac", compile.name)
	scratch := argAfter(compile.args, "-d")
	require.Equal(t, cfg.ScratchDir, filepath.Dir(scratch))
	require.Equal(t, []string{
		"-encoding", "UTF-8",
		"-cp", "/opt/jdbc/a.jar" + sep + "/opt/jdbc/b.jar",
		"-d", scratch,
		filepath.Join(scratch, "SqlBridgeQuery.java"),
	}, compile.args)

	run := calls[1]
	require.Equal(t, "java", run.name)
	require.Equal(t, []string{
		"-cp", scratch + sep + "/opt/jdbc/a.jar" + sep + "/opt/jdbc/b.jar",
		"SqlBridgeQuery",
		"SELECT ID, NAME FROM USERS",
	}, run.args)

	requireScratchEmpty(t, cfg)
}

func TestExternal_DM8_DriverClassAndURL(t *testing.T) {
	t.Parallel()

	var source string
	runner := &fakeRunner{fn: func(name string, args []string) (string, string, error) {
		if name == "/usr/lib/jvm/bin/javac" {
			src, err := os.ReadFile(args[len(args)-1])
			if err != nil {
				return "", "", err
			}
			source = string(src)
		}
		return "", "", nil
	}}
	b := newTestExternal(t, runner)
	cfg := &config.Connection{
		Engine:     config.EngineDM8,
		Host:       "10.0.0.5",
		Port:       "5236",
		User:       "SYSDBA",
		Password:   `pa"ss`,
		Database:   "SALES",
		JavacPath:  "/usr/lib/jvm/bin/javac",
		JavaPath:   "/usr/lib/jvm/bin/java",
		ScratchDir: t.TempDir(),
	}

	statement := "DELETE FROM SECRET_TABLE WHERE NOTE = 'x'"
	out, err := b.Execute(t.Context(), cfg, statement)
	require.NoError(t, err)
	require.Equal(t, result.Status{Message: "executed"}, out)

	require.Contains(t, source, `"jdbc:dm://10.0.0.5:5236?schema=SALES&user=SYSDBA&password=pa\"ss"`)
	require.NotContains(t, source, "SECRET_TABLE")

	calls := runner.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "/usr/lib/jvm/bin/java", calls[1].name)
	require.Contains(t, calls[1].args, "-Dsqlbridge.driver=dm.jdbc.driver.DmDriver")
	require.NotContains(t, calls[0].args, "-cp")
}

func TestExternal_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stdout string
		want   result.Outcome
	}{
		{"rows affected", "Rows affected: 3\n", result.RowsAffected{Count: 3}},
		{"header only", "A\tB\n", &result.Table{Columns: []string{"A", "B"}, Rows: [][]result.Cell{}}},
		{"no output", "", result.Status{Message: "executed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{fn: javaStep(func([]string) (string, string, error) {
				return tt.stdout, "", nil
			})}
			out, err := newTestExternal(t, runner).Execute(t.Context(), newJDBCConfig(t), "X")
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}
}

func TestExternal_Failures(t *testing.T) {
	t.Parallel()

	t.Run("config spawns nothing", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		b := newTestExternal(t, runner)
		_, err := b.Execute(t.Context(), &config.Connection{Engine: config.EngineDM8, Host: "h"}, "SELECT 1")
		require.Equal(t, StageConfig, StageOf(err))
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, []string{"password", "port", "user"}, verr.Missing)
		require.Empty(t, runner.Calls())
	})

	t.Run("direct engine rejected", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		_, err := newTestExternal(t, runner).Execute(t.Context(), &config.Connection{Engine: config.EngineSQLite, Path: "x.db"}, "SELECT 1")
		require.Equal(t, StageConfig, StageOf(err))
		require.Empty(t, runner.Calls())
	})

	t.Run("compile", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{fn: func(string, []string) (string, string, error) {
			return "", "SqlBridgeQuery.java:3: error: cannot find symbol\n", &exitError{code: 1}
		}}
		cfg := newJDBCConfig(t)
		_, err := newTestExternal(t, runner).Execute(t.Context(), cfg, "SELECT 1")
		var f *Failure
		require.ErrorAs(t, err, &f)
		require.Equal(t, StageCompile, f.Stage)
		require.Equal(t, "SqlBridgeQuery.java:3: error: cannot find symbol", f.Message)
		require.Len(t, runner.Calls(), 1)
		requireScratchEmpty(t, cfg)
	})

	t.Run("run", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{fn: javaStep(func([]string) (string, string, error) {
			return "", "java.sql.SQLException: table not found\n", &exitError{code: 1}
		})}
		cfg := newJDBCConfig(t)
		_, err := newTestExternal(t, runner).Execute(t.Context(), cfg, "SELECT * FROM MISSING")
		require.Equal(t, StageRun, StageOf(err))
		require.Equal(t, "run: java.sql.SQLException: table not found", err.Error())
		requireScratchEmpty(t, cfg)
	})

	t.Run("run without stderr", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{fn: javaStep(func([]string) (string, string, error) {
			return "", "", &exitError{code: 137}
		})}
		_, err := newTestExternal(t, runner).Execute(t.Context(), newJDBCConfig(t), "SELECT 1")
		require.Equal(t, "run: java exited with code 137", err.Error())
	})

	t.Run("parse", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{fn: javaStep(func([]string) (string, string, error) {
			return "A\tB\n1\n", "", nil
		})}
		cfg := newJDBCConfig(t)
		_, err := newTestExternal(t, runner).Execute(t.Context(), cfg, "SELECT 1")
		require.Equal(t, StageParse, StageOf(err))
		requireScratchEmpty(t, cfg)
	})

	t.Run("launch", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{fn: func(string, []string) (string, string, error) {
			return "", "", exec.ErrNotFound
		}}
		_, err := newTestExternal(t, runner).Execute(t.Context(), newJDBCConfig(t), "SELECT 1")
		require.Equal(t, StageConnect, StageOf(err))
		require.ErrorIs(t, err, exec.ErrNotFound)
	})

	t.Run("scratch dir missing", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		cfg := newJDBCConfig(t)
		cfg.ScratchDir = filepath.Join(cfg.ScratchDir, "does", "not", "exist")
		_, err := newTestExternal(t, runner).Execute(t.Context(), cfg, "SELECT 1")
		require.Equal(t, StageCompile, StageOf(err))
		require.Empty(t, runner.Calls())
	})
}

func TestExternal_Concurrent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fn: javaStep(func(args []string) (string, string, error) {
		// Echo the statement back as a one-cell table.
		return "STATEMENT\n" + args[len(args)-1] + "\n", "", nil
	})}
	b := newTestExternal(t, runner)
	cfg := newJDBCConfig(t)

	const n = 12
	results := make([]result.Outcome, n)
	g, ctx := errgroup.WithContext(t.Context())
	for i := range n {
		g.Go(func() error {
			out, err := b.Execute(ctx, cfg, fmt.Sprintf("SELECT %d FROM DUAL", i))
			results[i] = out
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, out := range results {
		require.Equal(t, fmt.Sprintf("STATEMENT\nSELECT %d FROM DUAL", i), result.Text(out))
	}

	scratches := map[string]bool{}
	for _, c := range runner.Calls() {
		if c.name == "javac" {
			scratches[argAfter(c.args, "-d")] = true
		}
	}
	require.Len(t, scratches, n)
	requireScratchEmpty(t, cfg)
}

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExternal_ExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}

	// Scripts are written before the test goes parallel so no concurrent
	// fork can inherit a write descriptor (ETXTBSY).
	bin := t.TempDir()
	okJavac := writeScript(t, bin, "javac-ok", "exit 0")
	badJavac := writeScript(t, bin, "javac-bad", `echo "SqlBridgeQuery.java:1: error: boom" >&2; exit 1`)
	slowJavac := writeScript(t, bin, "javac-slow", "exec sleep 30")
	java := writeScript(t, bin, "java", `printf 'N\tV\n1\t\\N\n'`)
	t.Parallel()

	b := newTestExternal(t, &ExecRunner{WaitDelay: 500 * time.Millisecond})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		cfg := newJDBCConfig(t)
		cfg.JavacPath, cfg.JavaPath = okJavac, java
		out, err := b.Execute(t.Context(), cfg, "SELECT 1")
		require.NoError(t, err)
		require.Equal(t, "N\tV\n1\tNULL", result.Text(out))
		requireScratchEmpty(t, cfg)
	})

	t.Run("compile error carries stderr", func(t *testing.T) {
		t.Parallel()
		cfg := newJDBCConfig(t)
		cfg.JavacPath, cfg.JavaPath = badJavac, java
		_, err := b.Execute(t.Context(), cfg, "SELECT 1")
		require.Equal(t, "compile: SqlBridgeQuery.java:1: error: boom", err.Error())
	})

	t.Run("launch failure", func(t *testing.T) {
		t.Parallel()
		cfg := newJDBCConfig(t)
		cfg.JavacPath = filepath.Join(bin, "no-such-javac")
		_, err := b.Execute(t.Context(), cfg, "SELECT 1")
		require.Equal(t, StageConnect, StageOf(err))
	})

	t.Run("timeout kills subprocess", func(t *testing.T) {
		t.Parallel()
		cfg := newJDBCConfig(t)
		cfg.JavacPath, cfg.JavaPath = slowJavac, java

		ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := b.Execute(ctx, cfg, "SELECT 1")
		require.Less(t, time.Since(start), 10*time.Second)
		require.Equal(t, StageCompile, StageOf(err))
		require.True(t, errors.Is(err, context.DeadlineExceeded))
		requireScratchEmpty(t, cfg)
	})
}

// TestExternal_RealJavac compiles the generated program with a real JDK. With
// no JDBC driver on the classpath the run fails inside DriverManager, which
// still proves the source compiles and the failure is reported as a run
// error.
func TestExternal_RealJavac(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping JDK test in short mode")
	}
	if _, err := exec.LookPath("javac"); err != nil {
		t.Skip("javac not found")
	}
	if _, err := exec.LookPath("java"); err != nil {
		t.Skip("java not found")
	}
	t.Parallel()

	b := newTestExternal(t, &ExecRunner{})
	cfg := &config.Connection{
		Engine:           config.EngineJDBC,
		ConnectionString: "jdbc:nosuchdriver://h/\"quoted\"\n",
		ScratchDir:       t.TempDir(),
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Minute)
	defer cancel()

	_, err := b.Execute(ctx, cfg, "SELECT 1")
	require.Equal(t, StageRun, StageOf(err))
	require.True(t, strings.Contains(err.Error(), "No suitable driver"), err.Error())
	requireScratchEmpty(t, cfg)
}
