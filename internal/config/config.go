package config

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cinder-go/cinder/internal/errors"
)

const (
	// ConfigFileName is the default name of the configuration file.
	ConfigFileName = "cinder.json"

	// EnvVar names the environment variable holding a config file path.
	EnvVar = "CINDER_CONFIG"

	// DefaultPort is the default server port.
	DefaultPort = 8000

	// DefaultHost is the default server host.
	DefaultHost = "127.0.0.1"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
)

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "30s" or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if err := json.Unmarshal(data, &secs); err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.parse(s)
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "30s" or a number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the cinder server configuration.
type Config struct {
	// Host is the interface to bind.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// LogFormat is text or json.
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`

	// LogFile, when set, receives the logs instead of stdout and is rotated.
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty"`

	// AccessLogging enables one log line per exchange.
	AccessLogging bool `json:"accessLogging,omitempty" yaml:"accessLogging,omitempty"`

	// ResponseTimeout bounds the emission of each response.
	ResponseTimeout Duration `json:"responseTimeout,omitempty" yaml:"responseTimeout,omitempty"`

	// ChunkSize is the size of emitted response body chunks.
	ChunkSize int `json:"chunkSize,omitempty" yaml:"chunkSize,omitempty"`

	// Session contains session configuration.
	Session SessionConfig `json:"session,omitempty" yaml:"session,omitempty"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Compression contains response compression configuration.
	Compression CompressionConfig `json:"compression,omitempty" yaml:"compression,omitempty"`

	// Static contains static file serving configuration.
	Static StaticConfig `json:"static,omitempty" yaml:"static,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SessionConfig contains session configuration.
type SessionConfig struct {
	// Store is memory, redis or bolt.
	Store string `json:"store,omitempty" yaml:"store,omitempty"`

	// Cookie is the session cookie name.
	Cookie string `json:"cookie,omitempty" yaml:"cookie,omitempty"`

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`

	// RedisPassword authenticates to Redis.
	RedisPassword string `json:"redisPassword,omitempty" yaml:"redisPassword,omitempty"`

	// RedisDB selects the Redis database.
	RedisDB int `json:"redisDB,omitempty" yaml:"redisDB,omitempty"`

	// RedisPrefix namespaces session keys.
	RedisPrefix string `json:"redisPrefix,omitempty" yaml:"redisPrefix,omitempty"`

	// BoltPath is the bbolt database file.
	BoltPath string `json:"boltPath,omitempty" yaml:"boltPath,omitempty"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Path serves the metrics. Default: "/metrics".
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Namespace prefixes every metric. Default: "cinder".
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Name is the tracer name. Default: "cinder".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// CompressionConfig contains response compression configuration.
type CompressionConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Level is the compression level, 1 (fastest) to 9 (best).
	Level int `json:"level,omitempty" yaml:"level,omitempty"`
}

// StaticConfig contains static file serving configuration.
type StaticConfig struct {
	// Dir is the directory containing static files. Empty disables them.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Prefix is the URL prefix for static files (default: "/static").
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Resolve picks the config file path: the flag value if set, else the
// environment variable, else ConfigFileName in the working directory.
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	return ConfigFileName
}

// Load reads configuration from path. A missing file is not an error: the
// defaults are returned and a warning is logged.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", path)
			return New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from path, decoding it as YAML for .yaml and
// .yml files and as JSON otherwise.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E100").
			WithDetail("Cannot read " + path).
			Wrap(err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", "":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, errors.New("E102").
			WithDetail("Cannot decode " + ext + " files").
			WithSuggestion("Rename the file to cinder.json or cinder.yaml")
	}
	if err != nil {
		return nil, errors.New("E101").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// SaveTo writes the configuration to path in the format its extension names.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("E101").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = Duration(60 * time.Second)
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1024
	}

	// Session
	if c.Session.Store == "" {
		c.Session.Store = StoreMemory
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = "cinder_session"
	}
	if c.Session.RedisAddr == "" {
		c.Session.RedisAddr = "127.0.0.1:6379"
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "cinder:session:"
	}
	if c.Session.BoltPath == "" {
		c.Session.BoltPath = "sessions.db"
	}

	// Observability
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "cinder"
	}
	if c.Tracing.Name == "" {
		c.Tracing.Name = "cinder"
	}
	if c.Compression.Level == 0 {
		c.Compression.Level = 5
	}

	// Static
	if c.Static.Prefix == "" {
		c.Static.Prefix = "/static"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return errors.New("E103").WithDetail(detail)
	}

	if c.Port < 0 || c.Port > 65535 {
		return invalid("Port must be between 0 and 65535")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logLevel must be debug, info, warn or error, not " + strconv.Quote(c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("logFormat must be text or json, not " + strconv.Quote(c.LogFormat))
	}
	if c.ResponseTimeout < 0 {
		return invalid("responseTimeout must not be negative")
	}
	if c.ChunkSize < 0 {
		return invalid("chunkSize must not be negative")
	}
	switch c.Session.Store {
	case StoreMemory, StoreRedis, StoreBolt:
	default:
		return errors.New("E120").
			WithDetail("Got " + strconv.Quote(c.Session.Store)).
			WithSuggestion("Set session.store to memory, redis or bolt")
	}
	if c.Compression.Level < 1 || c.Compression.Level > 9 {
		return invalid("compression.level must be between 1 and 9")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	if !strings.HasPrefix(c.Static.Prefix, "/") {
		return invalid("static.prefix must start with /")
	}
	return nil
}

// Address returns the host:port to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
