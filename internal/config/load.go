package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "MCP_SQL"

	defaultConfigName = "mcp-sql"
)

// keys lists every connection setting. Each one can come from the config
// file, from MCP_SQL_<KEY> in the environment, or from a --<key> flag with
// underscores replaced by dashes.
var keys = []string{
	"engine",
	"host",
	"port",
	"user",
	"password",
	"database",
	"sslmode",
	"path",
	"connection_string",
	"driver_path",
	"driver_class",
	"javac_path",
	"java_path",
	"scratch_dir",
}

type LoadOptions struct {
	// ConfigFile is an explicit JSON or YAML file. When empty, mcp-sql.{json,yaml}
	// in the working directory is used if present.
	ConfigFile string

	// EnvFile is loaded into the process environment before anything else.
	// Defaults to .env; a missing file is not an error.
	EnvFile string

	// Flags, if set, take precedence over env and file values.
	Flags *pflag.FlagSet
}

// Load resolves the connection settings. It does not validate them: a server
// with an incomplete config still starts and reports the problem on every
// tool call.
func Load(opts LoadOptions) (*Connection, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	v.SetDefault("sslmode", "prefer")

	if opts.Flags != nil {
		for _, key := range keys {
			flag := opts.Flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Connection
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode connection config: %w", err)
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))
	cfg.DriverPath = splitDriverPath(cfg.DriverPath)

	return &cfg, nil
}

// splitDriverPath expands entries given as a single OS path list
// (e.g. MCP_SQL_DRIVER_PATH=/opt/dm/DmJdbcDriver18.jar:/opt/lib).
func splitDriverPath(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, p := range filepath.SplitList(entry) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
