// Package config loads the configuration of the rowset command.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/syssam/rowset/dialect"
	"github.com/syssam/rowset/dialect/sql"
)

// Config holds the configuration of the rowset command.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values.
// The database password must only come from the environment.
type Config struct {
	// Dialect is the target dialect, sqlserver or mysql.
	Dialect string `yaml:"dialect" env:"ROWSET_DIALECT" env-default:"sqlserver" validate:"oneof=sqlserver mysql"`
	// ServerVersion is the version of the target server, e.g. "16.0" or "8.0.36".
	ServerVersion string `yaml:"server_version" env:"ROWSET_SERVER_VERSION" validate:"required"`

	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`

	// SlowQueryThreshold is the duration above which statements are logged.
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"ROWSET_SLOW_QUERY_THRESHOLD" env-default:"200ms" validate:"min=0"`

	version dialect.Version
}

// DatabaseConfig holds the connection settings of the target database.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"ROWSET_DB_HOST" env-default:"localhost" validate:"required"`
	Port     int    `yaml:"port" env:"ROWSET_DB_PORT" validate:"min=0,max=65535"` // 0 for the dialect default
	User     string `yaml:"user" env:"ROWSET_DB_USER" validate:"required"`
	Password string `yaml:"-" env:"ROWSET_DB_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"ROWSET_DB_NAME" validate:"required"`

	Encrypt                bool `yaml:"encrypt" env:"ROWSET_DB_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"ROWSET_DB_TRUST_SERVER_CERTIFICATE"`
	// ConnectionTimeout is the connection timeout in seconds.
	ConnectionTimeout int `yaml:"connection_timeout" env:"ROWSET_DB_CONNECTION_TIMEOUT" env-default:"30" validate:"min=0"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level       string `yaml:"level" env:"ROWSET_LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" env:"ROWSET_LOG_DEVELOPMENT"`
}

// Default ports.
const (
	SQLServerPort = 1433
	MySQLPort     = 3306
)

// Load reads configuration from the YAML file at path with environment
// variable overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config: read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the field constraints and parses the server version.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	v, err := dialect.ParseVersion(c.ServerVersion)
	if err != nil {
		return fmt.Errorf("config: server_version: %w", err)
	}
	c.version = v
	return nil
}

// Version returns the parsed server version. It is set by Validate.
func (c *Config) Version() dialect.Version { return c.version }

// Port returns the configured port or the default port of the dialect.
func (c *Config) Port() int {
	switch {
	case c.Database.Port != 0:
		return c.Database.Port
	case c.Dialect == dialect.MySQL:
		return MySQLPort
	default:
		return SQLServerPort
	}
}

// DSN returns the data source name for the driver of the configured dialect.
func (c *Config) DSN() string {
	addr := net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Port()))
	if c.Dialect == dialect.MySQL {
		mc := mysql.NewConfig()
		mc.User = c.Database.User
		mc.Passwd = c.Database.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Database.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Timeout = time.Duration(c.Database.ConnectionTimeout) * time.Second
		switch {
		case c.Database.Encrypt && c.Database.TrustServerCertificate:
			mc.TLSConfig = "skip-verify"
		case c.Database.Encrypt:
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN()
	}
	query := url.Values{}
	query.Add("database", c.Database.Database)
	query.Add("encrypt", strconv.FormatBool(c.Database.Encrypt))
	if c.Database.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.Database.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.Database.ConnectionTimeout))
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.User(c.Database.User),
		Host:     addr,
		RawQuery: query.Encode(),
	}
	if c.Database.Password != "" {
		u.User = url.UserPassword(c.Database.User, c.Database.Password)
	}
	return u.String()
}

// Generator returns the SQL generator of the configured dialect and version.
func (c *Config) Generator() (sql.Generator, error) {
	return sql.NewGenerator(c.Dialect, c.version)
}

// Logger builds the zap logger described by the log settings.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}
