package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/dialect"
	"github.com/shakram02/go-mcp-sql/internal/metrics"
	"github.com/shakram02/go-mcp-sql/internal/result"
)

const (
	defaultJavac = "javac"
	defaultJava  = "java"
)

type ExternalConfig struct {
	Logger *slog.Logger
	Runner CommandRunner
}

func (c *ExternalConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Runner == nil {
		return errors.New("runner is required")
	}
	return nil
}

// External serves engines that only ship a JDBC driver. Each call writes a
// small Java program into a fresh scratch directory, compiles it with javac,
// runs it with the statement as its only argument, and parses its stdout.
type External struct {
	log    *slog.Logger
	runner CommandRunner
}

func NewExternal(cfg ExternalConfig) (*External, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &External{log: cfg.Logger, runner: cfg.Runner}, nil
}

func (b *External) Execute(ctx context.Context, cfg *config.Connection, statement string) (result.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(StageConfig, err)
	}
	d, err := dialect.For(cfg.Engine)
	if err != nil {
		return nil, fail(StageConfig, err)
	}
	if !cfg.External() {
		return nil, fail(StageConfig, fmt.Errorf("engine %s is not served by the external backend", cfg.Engine))
	}
	url, err := d.DSN(cfg)
	if err != nil {
		return nil, fail(StageConfig, err)
	}

	src, err := renderJavaSource(url)
	if err != nil {
		return nil, fail(StageCompile, err)
	}

	scratch, err := os.MkdirTemp(cfg.ScratchDir, "sqlbridge-*")
	if err != nil {
		return nil, fail(StageCompile, fmt.Errorf("failed to create scratch directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			b.log.Warn("backend/external: failed to remove scratch directory", "dir", scratch, "error", err)
		}
	}()

	srcPath := filepath.Join(scratch, javaFileName)
	if err := os.WriteFile(srcPath, []byte(src), 0o600); err != nil {
		return nil, fail(StageCompile, fmt.Errorf("failed to write java source: %w", err))
	}

	driverPath := strings.Join(cfg.DriverPath, string(os.PathListSeparator))

	compileArgs := []string{"-encoding", "UTF-8"}
	if driverPath != "" {
		compileArgs = append(compileArgs, "-cp", driverPath)
	}
	compileArgs = append(compileArgs, "-d", scratch, srcPath)

	if _, err := b.run(ctx, StageCompile, orDefault(cfg.JavacPath, defaultJavac), compileArgs); err != nil {
		return nil, err
	}

	classpath := scratch
	if driverPath != "" {
		classpath += string(os.PathListSeparator) + driverPath
	}
	runArgs := []string{"-cp", classpath}
	if class := driverClass(cfg); class != "" {
		runArgs = append(runArgs, "-D"+driverClassProperty+"="+class)
	}
	runArgs = append(runArgs, javaClassName, statement)

	stdout, err := b.run(ctx, StageRun, orDefault(cfg.JavaPath, defaultJava), runArgs)
	if err != nil {
		return nil, err
	}

	outcome, err := ParseTSV(stdout)
	if err != nil {
		return nil, fail(StageParse, err)
	}
	return outcome, nil
}

// run executes one subprocess and maps its failure to stage. A process that
// could not be started at all is a connect failure.
func (b *External) run(ctx context.Context, stage Stage, name string, args []string) (string, error) {
	start := time.Now()
	stdout, stderr, err := b.runner.Run(ctx, name, args)
	metrics.SubprocessDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if err == nil {
		b.log.Debug("backend/external: subprocess finished", "stage", stage, "name", name, "duration", time.Since(start))
		return stdout, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", &Failure{
			Stage:   stage,
			Message: fmt.Sprintf("%s killed: %v", filepath.Base(name), ctxErr),
			Err:     ctxErr,
		}
	}

	var exitErr exitCoder
	if errors.As(err, &exitErr) {
		msg := strings.TrimRight(stderr, "\r\n")
		if msg == "" {
			msg = fmt.Sprintf("%s exited with code %d", filepath.Base(name), exitErr.ExitCode())
		}
		return "", &Failure{Stage: stage, Message: msg, Err: err}
	}

	return "", &Failure{
		Stage:   StageConnect,
		Message: fmt.Sprintf("failed to launch %s: %v", name, err),
		Err:     err,
	}
}

func driverClass(cfg *config.Connection) string {
	if cfg.DriverClass != "" {
		return cfg.DriverClass
	}
	if cfg.Engine == config.EngineDM8 {
		return dialect.DM8DriverClass
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
