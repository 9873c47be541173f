// Package config loads the process configuration from an optional YAML or
// TOML file, an optional .env file and DATAWISE_* environment variables, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATAWISE_"

type Config struct {
	Engine EngineConfig `yaml:"engine" toml:"engine"`
	Events EventsConfig `yaml:"events" toml:"events"`
	Schema SchemaConfig `yaml:"schema" toml:"schema"`
	Server ServerConfig `yaml:"server" toml:"server"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

type EngineConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// DSN is empty for an in-memory database.
	DSN string `yaml:"dsn" toml:"dsn"`
}

type EventsConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

type SchemaConfig struct {
	// Source is "sample" (first row) or "metadata" (driver scan types).
	Source string `yaml:"source" toml:"source"`
	// ColumnNames is "positional" (col_N) or "engine".
	ColumnNames string `yaml:"column_names" toml:"column_names"`
}

type ServerConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
	// Socket, when set, takes precedence over Listen.
	Socket string `yaml:"socket" toml:"socket"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	// File is empty to log to stderr.
	File string `yaml:"file" toml:"file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Engine: EngineConfig{Driver: engine.DriverDuckDB},
		Events: EventsConfig{Capacity: events.DefaultCapacity},
		Schema: SchemaConfig{Source: "sample", ColumnNames: "positional"},
		Server: ServerConfig{Listen: "127.0.0.1:8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Loader reads configuration from a file path and the environment.
type Loader struct {
	path    string
	envFile string
	lookup  func(string) (string, bool)
}

// NewLoader creates a loader. Either path may be empty.
func NewLoader(path, envFile string) *Loader {
	return &Loader{path: path, envFile: envFile, lookup: os.LookupEnv}
}

// Load applies defaults, the file, the .env file and the environment, then
// validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := decodeFile(l.path, &cfg); err != nil {
			return nil, err
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load env file: %w", err)
			}
			slog.Debug("env file not found", slog.String("path", l.envFile))
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ENGINE_DRIVER":       &cfg.Engine.Driver,
		"ENGINE_DSN":          &cfg.Engine.DSN,
		"SCHEMA_SOURCE":       &cfg.Schema.Source,
		"SCHEMA_COLUMN_NAMES": &cfg.Schema.ColumnNames,
		"SERVER_LISTEN":       &cfg.Server.Listen,
		"SERVER_SOCKET":       &cfg.Server.Socket,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FILE":            &cfg.Log.File,
	}
	for key, dst := range strs {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	if v, ok := l.lookup(EnvPrefix + "EVENTS_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sEVENTS_CAPACITY: %w", EnvPrefix, err)
		}
		cfg.Events.Capacity = n
	}
	return nil
}

// Validate checks every field for a supported value.
func (c *Config) Validate() error {
	switch c.Engine.Driver {
	case engine.DriverDuckDB, engine.DriverSQLite:
	default:
		return fmt.Errorf("engine.driver %q is not supported (want %s)", c.Engine.Driver, strings.Join(engine.Drivers(), "|"))
	}
	if c.Events.Capacity <= 0 {
		return fmt.Errorf("events.capacity must be positive, got %d", c.Events.Capacity)
	}
	if _, err := columnar.ParseInference(c.Schema.Source); err != nil {
		return fmt.Errorf("schema.source: %w", err)
	}
	if _, err := columnar.ParseNaming(c.Schema.ColumnNames); err != nil {
		return fmt.Errorf("schema.column_names: %w", err)
	}
	if c.Server.Listen == "" && c.Server.Socket == "" {
		return errors.New("server.listen or server.socket is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "err":
	default:
		return fmt.Errorf("log.level %q is not supported (want debug|info|warn|error)", c.Log.Level)
	}
	return nil
}

// ColumnarOptions returns the conversion options selected by the schema
// section. Call after Validate.
func (c *Config) ColumnarOptions() columnar.Options {
	naming, _ := columnar.ParseNaming(c.Schema.ColumnNames)
	inference, _ := columnar.ParseInference(c.Schema.Source)
	return columnar.Options{Naming: naming, Inference: inference}
}

// EngineOptions returns the engine connection options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{Driver: c.Engine.Driver, DSN: c.Engine.DSN}
}
