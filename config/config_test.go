package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/syssam/rowset/dialect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rowset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
dialect: mysql
server_version: "8.0.36-log"
database:
  host: db.example.com
  user: loader
  database: adventureworks
log:
  level: debug
`)
	t.Setenv("ROWSET_DB_PASSWORD", "s3cret")
	t.Setenv("ROWSET_DB_PORT", "3307")
	t.Setenv("ROWSET_SLOW_QUERY_THRESHOLD", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dialect.MySQL, cfg.Dialect)
	assert.Equal(t, dialect.Version{Major: 8, Minor: 0, Build: 36}, cfg.Version())
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Port())
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, time.Second, cfg.SlowQueryThreshold)
	assert.Equal(t, 30, cfg.Database.ConnectionTimeout)
	assert.True(t, cfg.Database.Encrypt)
	assert.Equal(t, "debug", cfg.Log.Level)

	gen, err := cfg.Generator()
	require.NoError(t, err)
	assert.Equal(t, dialect.MySQL, gen.Dialect())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ROWSET_SERVER_VERSION", "15.0.2000.5")
	t.Setenv("ROWSET_DB_USER", "sa")
	t.Setenv("ROWSET_DB_NAME", "AdventureWorksLT")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLServer, cfg.Dialect)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, SQLServerPort, cfg.Port())
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "Dialect",
			yaml:    "dialect: postgres\nserver_version: \"16\"\ndatabase: {user: u, database: d}\n",
			wantErr: "Config.Dialect",
		},
		{
			name:    "MissingVersion",
			yaml:    "database: {user: u, database: d}\n",
			wantErr: "Config.ServerVersion",
		},
		{
			name:    "MissingDatabase",
			yaml:    "server_version: \"16\"\ndatabase: {user: u}\n",
			wantErr: "Config.Database.Database",
		},
		{
			name:    "Port",
			yaml:    "server_version: \"16\"\ndatabase: {user: u, database: d, port: 70000}\n",
			wantErr: "Config.Database.Port",
		},
		{
			name:    "LogLevel",
			yaml:    "server_version: \"16\"\ndatabase: {user: u, database: d}\nlog: {level: verbose}\n",
			wantErr: "Config.Log.Level",
		},
		{
			name:    "Version",
			yaml:    "server_version: sixteen\ndatabase: {user: u, database: d}\n",
			wantErr: "config: server_version: dialect: invalid version",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config: read ")
	})
}

func TestConfig_DSN(t *testing.T) {
	t.Run("SQLServer", func(t *testing.T) {
		cfg := &Config{
			Dialect: dialect.SQLServer,
			Database: DatabaseConfig{
				Host:                   "sql.example.com",
				User:                   "loader",
				Password:               "p@ss:word",
				Database:               "AdventureWorksLT",
				Encrypt:                true,
				TrustServerCertificate: true,
				ConnectionTimeout:      15,
			},
		}
		u, err := url.Parse(cfg.DSN())
		require.NoError(t, err)
		assert.Equal(t, "sqlserver", u.Scheme)
		assert.Equal(t, "sql.example.com:1433", u.Host)
		assert.Equal(t, "loader", u.User.Username())
		password, _ := u.User.Password()
		assert.Equal(t, "p@ss:word", password)
		assert.Equal(t, url.Values{
			"database":               {"AdventureWorksLT"},
			"encrypt":                {"true"},
			"TrustServerCertificate": {"true"},
			"connection timeout":     {"15"},
		}, u.Query())
	})

	t.Run("SQLServerNoPassword", func(t *testing.T) {
		cfg := &Config{
			Dialect: dialect.SQLServer,
			Database: DatabaseConfig{
				Host:     "localhost",
				User:     "sa",
				Database: "AdventureWorksLT",
			},
		}
		dsn := cfg.DSN()
		assert.True(t, strings.HasPrefix(dsn, "sqlserver://sa@localhost:1433?"), dsn)
		u, err := url.Parse(dsn)
		require.NoError(t, err)
		_, set := u.User.Password()
		assert.False(t, set)
	})

	t.Run("MySQL", func(t *testing.T) {
		cfg := &Config{
			Dialect: dialect.MySQL,
			Database: DatabaseConfig{
				Host:              "10.0.0.7",
				Port:              3307,
				User:              "loader",
				Password:          "p@ss",
				Database:          "adventureworks",
				ConnectionTimeout: 5,
			},
		}
		mc, err := mysql.ParseDSN(cfg.DSN())
		require.NoError(t, err)
		assert.Equal(t, "tcp", mc.Net)
		assert.Equal(t, "10.0.0.7:3307", mc.Addr)
		assert.Equal(t, "loader", mc.User)
		assert.Equal(t, "p@ss", mc.Passwd)
		assert.Equal(t, "adventureworks", mc.DBName)
		assert.True(t, mc.ParseTime)
		assert.Equal(t, time.UTC, mc.Loc)
		assert.Equal(t, 5*time.Second, mc.Timeout)
		assert.Empty(t, mc.TLSConfig)

		cfg.Database.Encrypt = true
		mc, err = mysql.ParseDSN(cfg.DSN())
		require.NoError(t, err)
		assert.Equal(t, "true", mc.TLSConfig)
	})
}

func TestConfig_Logger(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn"}}
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	cfg.Log = LogConfig{Level: "debug", Development: true}
	logger, err = cfg.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg.Log.Level = "verbose"
	_, err = cfg.Logger()
	assert.Error(t, err)
}
