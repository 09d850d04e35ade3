package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigurationDefaults(t *testing.T) {
	cfg, err := NewConfiguration()
	require.NoError(t, err)
	require.NoError(t, cfg.parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil))

	assert.Equal(t, ":8080", cfg.ServerConfig.ServerAddress)
	assert.Equal(t, "http://localhost:7070", cfg.ServerConfig.RatesAddress)
	assert.Equal(t, []string{"*"}, cfg.ServerConfig.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.ServerConfig.RequestTimeout)
	assert.Equal(t, "sqlite://balance-tracker.db", cfg.StorageConfig.DatabaseDSN)
	assert.Equal(t, 30*time.Minute, cfg.SecretConfig.TokenTTL)
	assert.Equal(t, "5/minute", cfg.LimiterConfig.AuthRule)
	assert.Equal(t, 4, cfg.QueueConfig.WorkerNumber)
	assert.Equal(t, "USD", cfg.QueueConfig.BaseCurrency)
	assert.Equal(t, "info", cfg.LogConfig.Level)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("RUN_ADDRESS", ":9090")
	t.Setenv("DATABASE_URI", "postgres://u:p@localhost:5432/db")
	t.Setenv("N_WORKERS", "2")
	t.Setenv("BASE_CURRENCY", "eur")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := NewConfiguration()
	require.NoError(t, err)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, cfg.parseFlags(fs, []string{"-a", ":7000"}))

	assert.Equal(t, ":7000", cfg.ServerConfig.ServerAddress)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", cfg.StorageConfig.DatabaseDSN)
	assert.Equal(t, 2, cfg.QueueConfig.WorkerNumber)
	assert.Equal(t, "EUR", cfg.QueueConfig.BaseCurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.ServerConfig.AllowedOrigins)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := NewConfiguration()
	require.NoError(t, err)
	require.NoError(t, cfg.parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil))

	cfg.QueueConfig.WorkerNumber = 0
	assert.Error(t, cfg.Validate())

	cfg.QueueConfig.WorkerNumber = 1
	cfg.StorageConfig.DatabaseDSN = "mysql://nope"
	assert.Error(t, cfg.Validate())

	cfg.StorageConfig.DatabaseDSN = "sqlite://app.db"
	require.NoError(t, cfg.Validate())
	cfg.LimiterConfig.AuthRule = "5/fortnight"
	assert.Error(t, cfg.Validate())
	cfg.LimiterConfig.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.ServerConfig.TrustedProxies = []string{"10.0.0.0/33"}
	assert.Error(t, cfg.Validate())
}

func TestTrustedProxyPrefixes(t *testing.T) {
	cfg := &ServerConfig{TrustedProxies: []string{"10.0.0.0/8", " 192.168.1.7 ", "", "::ffff:172.16.0.1", "fd00::/8"}}
	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 4)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.168.1.7/32", prefixes[1].String())
	assert.Equal(t, "172.16.0.1/32", prefixes[2].String())
	assert.Equal(t, "fd00::/8", prefixes[3].String())

	_, err = (&ServerConfig{TrustedProxies: []string{"proxy.local"}}).TrustedProxyPrefixes()
	assert.Error(t, err)
}

func TestStorageDriver(t *testing.T) {
	tests := []struct {
		dsn     string
		driver  string
		conn    string
		wantErr bool
	}{
		{dsn: "postgres://u@h/db", driver: DriverPostgres, conn: "postgres://u@h/db"},
		{dsn: "postgresql://u@h/db", driver: DriverPostgres, conn: "postgresql://u@h/db"},
		{dsn: "sqlite://data/app.db", driver: DriverSQLite, conn: "data/app.db"},
		{dsn: "sqlite://", wantErr: true},
		{dsn: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, conn, err := (&StorageConfig{DatabaseDSN: tt.dsn}).Driver()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.conn, conn)
		})
	}
}
