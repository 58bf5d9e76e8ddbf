package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shakram02/go-mcp-sql/internal/backend"
	"github.com/shakram02/go-mcp-sql/internal/config"
	"github.com/shakram02/go-mcp-sql/internal/metrics"
	"github.com/shakram02/go-mcp-sql/internal/result"
	"github.com/shakram02/go-mcp-sql/internal/server"
)

type rootOptions struct {
	configFile  string
	envFile     string
	verbose     bool
	callTimeout time.Duration
}

type serveOptions struct {
	listenAddr    string
	metricsAddr   string
	allowedTokens []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serveOpts := &serveOptions{}

	root := &cobra.Command{
		Use:   "mcp-sql",
		Short: "MCP server exposing query, list_tables and describe_table over a SQL database.",
		Long: `mcp-sql serves three MCP tools backed by one configured database.

mysql, postgres, sqlite, clickhouse and duckdb are reached in-process.
dm8 and any other JDBC-only engine (engine "jdbc") are reached by compiling
and running a small Java program per call, which needs javac and java on the
PATH and the JDBC driver jar on --driver-path.

Settings come from flags, MCP_SQL_* environment variables, a .env file, and
mcp-sql.{json,yaml} in the working directory, in that order of precedence.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, serveOpts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "path to a JSON or YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading MCP_SQL_* variables")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose (debug) logging")
	pf.DurationVar(&opts.callTimeout, "call-timeout", server.DefaultCallTimeout, "maximum duration of one tool call")
	addConnectionFlags(pf)

	addServeFlags(root.Flags(), serveOpts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (the default command).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, serveOpts)
		},
	}
	addServeFlags(serveCmd.Flags(), serveOpts)

	var raw bool
	execCmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one statement through the configured backend and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args[0], raw)
		},
	}
	execCmd.Flags().BoolVar(&raw, "raw", false, "print the tool result text instead of a table")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printTools(cmd.OutOrStdout())
			return nil
		},
	}

	root.AddCommand(serveCmd, execCmd, toolsCmd)
	return root
}

func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String("engine", "", "database engine ("+strings.Join(config.Engines, ", ")+")")
	fs.String("host", "", "database host")
	fs.String("port", "", "database port")
	fs.String("user", "", "database user")
	fs.String("password", "", "database password")
	fs.String("database", "", "database (or schema) name")
	fs.String("sslmode", "", "postgres sslmode")
	fs.String("path", "", "database file for sqlite and duckdb")
	fs.String("connection-string", "", "driver DSN or JDBC URL; overrides the individual fields")
	fs.StringSlice("driver-path", nil, "JDBC driver jars or directories for the external backend")
	fs.String("driver-class", "", "JDBC driver class to preload (dm8 defaults to dm.jdbc.driver.DmDriver)")
	fs.String("javac-path", "", "javac binary (default: javac on PATH)")
	fs.String("java-path", "", "java binary (default: java on PATH)")
	fs.String("scratch-dir", "", "parent directory for per-call scratch directories (default: OS temp dir)")
}

func addServeFlags(fs *pflag.FlagSet, opts *serveOptions) {
	fs.StringVar(&opts.listenAddr, "listen-addr", "", "serve streamable HTTP on this address instead of stdio")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "address to listen on for prometheus metrics")
	fs.StringSliceVar(&opts.allowedTokens, "allowed-token", nil, "bearer token accepted in HTTP mode (repeatable)")
}

// newDispatcher loads the connection settings and wires the backend they
// select. An incomplete configuration is logged, not fatal.
func newDispatcher(cmd *cobra.Command, opts *rootOptions, log *slog.Logger) (*server.Dispatcher, error) {
	conn, err := config.Load(config.LoadOptions{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := conn.Validate(); err != nil {
		log.Warn("config: connection is not usable; tool calls will report it", "error", err)
	} else {
		log.Info("config: connection loaded", "engine", conn.Engine, "external", conn.External())
		log.Debug("config: connection settings", "connection", conn.Redacted())
	}

	b, err := backend.New(log, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	d, err := server.NewDispatcher(server.DispatcherConfig{
		Logger:      log,
		Connection:  conn,
		Backend:     b,
		CallTimeout: opts.callTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return d, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions, serveOpts *serveOptions) error {
	log := newLogger(opts.verbose)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := newDispatcher(cmd, opts, log)
	if err != nil {
		return err
	}

	metricsServerErrCh := make(chan error, 1)
	if serveOpts.metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", serveOpts.metricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	srv, err := server.New(server.Config{
		Logger:        log,
		Version:       version,
		Dispatcher:    d,
		ListenAddr:    serveOpts.listenAddr,
		AllowedTokens: serveOpts.allowedTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	return awaitServer(ctx, log, serverErrCh, metricsServerErrCh)
}

// awaitServer blocks until the server stops. After a shutdown signal it still
// waits for Run to return so in-flight calls and the HTTP shutdown complete.
func awaitServer(ctx context.Context, log *slog.Logger, serverErrCh, metricsServerErrCh <-chan error) error {
	select {
	case <-ctx.Done():
		log.Info("server: shutdown requested, waiting for server to stop")
		return <-serverErrCh
	case err := <-serverErrCh:
		return err
	case err := <-metricsServerErrCh:
		return err
	}
}

func runExec(cmd *cobra.Command, opts *rootOptions, sql string, raw bool) error {
	log := newLogger(opts.verbose)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := newDispatcher(cmd, opts, log)
	if err != nil {
		return err
	}

	outcome, err := d.Query(ctx, sql)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	out := cmd.OutOrStdout()
	table, ok := outcome.(*result.Table)
	if raw || !ok {
		fmt.Fprintln(out, result.Text(outcome))
		return nil
	}
	printTable(out, table)
	return nil
}

func printTable(w io.Writer, t *result.Table) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeader(t.Columns)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c.Null {
				cells[i] = result.NullText
			} else {
				cells[i] = c.Value
			}
		}
		tw.Append(cells)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
}

func printTools(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"Tool", "Description"})
	for _, tool := range server.Tools {
		tw.Append([]string{tool.Name, tool.Description})
	}
	tw.Render()
}
