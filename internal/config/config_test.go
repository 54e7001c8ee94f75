package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *APIServiceConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 20
  write_timeout: 20
  idle_timeout: 180
database:
  host: localhost
  port: 5432
  user: testuser
  password: testpass
  dbname: testdb
  sslmode: require
nats:
  url: "nats://localhost:4222"
  stream_name: "TEST_EVENTS"
  max_reconnects: 5
  reconnect_wait: "5s"
  connection_name: "test-connection"
auth:
  jwt_public_key: "test-public-key"
  api_keys:
    - "key1"
    - "key2"
token:
  rpc_url: "http://localhost:8545"
  token_address: "0x1111111111111111111111111111111111111111"
  operator_key: "deadbeef"
  gas_limit: 120000
  payout_timeout: "45s"
ledger:
  lock_timeout: "10s"
`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIServiceConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 20, cfg.Server.ReadTimeout)
				assert.Equal(t, 180, cfg.Server.IdleTimeout)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, "TEST_EVENTS", cfg.NATS.StreamName)
				assert.Equal(t, 5, cfg.NATS.MaxReconnects)
				assert.Equal(t, "test-public-key", cfg.Auth.JWTPublicKey)
				assert.Len(t, cfg.Auth.APIKeys, 2)
				assert.Equal(t, "http://localhost:8545", cfg.Token.RPCURL)
				assert.Equal(t, uint64(120000), cfg.Token.GasLimit)
				assert.Equal(t, 45*time.Second, cfg.Token.PayoutTimeout)
				assert.Equal(t, 10*time.Second, cfg.Ledger.LockTimeout)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIServiceConfig) {
				// Check defaults
				assert.False(t, cfg.Debug)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 10, cfg.Server.ReadTimeout)
				assert.Equal(t, 10, cfg.Server.WriteTimeout)
				assert.Equal(t, 120, cfg.Server.IdleTimeout)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, "ENTITLEMENT_EVENTS", cfg.NATS.StreamName)
				assert.Equal(t, 10, cfg.NATS.MaxReconnects)
				assert.Equal(t, "2s", cfg.NATS.ReconnectWait.String())
				assert.Equal(t, uint64(90000), cfg.Token.GasLimit)
				assert.Equal(t, 30*time.Second, cfg.Token.PayoutTimeout)
				assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
				// Empty URLs select the no-op collaborators
				assert.Empty(t, cfg.NATS.URL)
				assert.Empty(t, cfg.Token.RPCURL)
			},
		},
		{
			name:        "missing config file - should work with env vars",
			configFile:  "",
			expectError: false,
			validate: func(t *testing.T, cfg *APIServiceConfig) {
				assert.NotNil(t, cfg)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
			},
		},
		{
			name: "invalid yaml",
			configFile: `
				database:
				  host: localhost
				  port: invalid
			`,
			expectError: true, // Invalid port should cause unmarshal error
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var configFile string

			if tt.configFile != "" {
				tmpDir := t.TempDir()
				configFile = filepath.Join(tmpDir, "config.yaml")
				err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
				require.NoError(t, err)
			}

			cfg, err := LoadAPIConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestLoadSweeperConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *SweeperServiceConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
nats:
  url: "nats://localhost:4222"
sweeper:
  interval: "30s"
  batch_size: 25
`,
			expectError: false,
			validate: func(t *testing.T, cfg *SweeperServiceConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
				assert.Equal(t, 25, cfg.Sweeper.BatchSize)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
`,
			expectError: false,
			validate: func(t *testing.T, cfg *SweeperServiceConfig) {
				assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
				assert.Equal(t, 100, cfg.Sweeper.BatchSize)
				assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
			},
		},
		{
			name:        "missing config file",
			configFile:  "",
			expectError: false,
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var configFile string

			if tt.configFile != "" {
				tmpDir := t.TempDir()
				configFile = filepath.Join(tmpDir, "config.yaml")
				err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
				require.NoError(t, err)
			}

			cfg, err := LoadSweeperConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestLoadReconcilerConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *ReconcilerServiceConfig)
	}{
		{
			name: "valid config file",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
token:
  rpc_url: "http://localhost:8545"
reconciler:
  interval: "2m"
  batch_size: 10
  worker_pool_size: 4
  pending_age: "10m"
  max_elapsed_time: "30m"
`,
			expectError: false,
			validate: func(t *testing.T, cfg *ReconcilerServiceConfig) {
				assert.Equal(t, 2*time.Minute, cfg.Reconciler.Interval)
				assert.Equal(t, 10, cfg.Reconciler.BatchSize)
				assert.Equal(t, 4, cfg.Reconciler.WorkerPoolSize)
				assert.Equal(t, 10*time.Minute, cfg.Reconciler.PendingAge)
				assert.Equal(t, 30*time.Minute, cfg.Reconciler.MaxElapsedTime)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
`,
			expectError: false,
			validate: func(t *testing.T, cfg *ReconcilerServiceConfig) {
				assert.Equal(t, 30*time.Second, cfg.Reconciler.Interval)
				assert.Equal(t, 50, cfg.Reconciler.BatchSize)
				assert.Equal(t, 10, cfg.Reconciler.WorkerPoolSize)
				assert.Equal(t, 5*time.Minute, cfg.Reconciler.PendingAge)
				assert.Equal(t, 15*time.Minute, cfg.Reconciler.MaxElapsedTime)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadReconcilerConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require",
		cfg.DSN())
}

func TestDatabaseConfig_ReadDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "primary",
		Port:     5432,
		ReadHost: "replica",
		User:     "user",
		Password: "pass",
		DBName:   "db",
		SSLMode:  "disable",
	}

	// ReadPort falls back to Port when unset
	assert.Equal(t,
		"host=replica port=5432 user=user password=pass dbname=db sslmode=disable",
		cfg.ReadDSN())

	cfg.ReadPort = 5433
	assert.Equal(t,
		"host=replica port=5433 user=user password=pass dbname=db sslmode=disable",
		cfg.ReadDSN())
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	tmpDir := t.TempDir()

	envDir := filepath.Join(tmpDir, "env")
	err := os.MkdirAll(envDir, 0750)
	require.NoError(t, err)

	// godotenv.Overload sets real environment variables, which viper's
	// AutomaticEnv picks up with the REWARD_DISTRIBUTOR_ prefix
	envFile := filepath.Join(envDir, ".env")
	envContent := `REWARD_DISTRIBUTOR_DEBUG=true
REWARD_DISTRIBUTOR_DATABASE_HOST=env-host
REWARD_DISTRIBUTOR_DATABASE_PORT=3306
REWARD_DISTRIBUTOR_DATABASE_USER=env-user
REWARD_DISTRIBUTOR_DATABASE_PASSWORD=env-pass
REWARD_DISTRIBUTOR_DATABASE_DBNAME=env-db
REWARD_DISTRIBUTOR_DATABASE_SSLMODE=require
`
	err = os.WriteFile(envFile, []byte(envContent), 0600)
	require.NoError(t, err)

	// Config file with different values to verify the env vars win
	configPath := filepath.Join(tmpDir, "config.yaml")
	configFile := `
debug: false
database:
  host: file-host
  port: 5432
  user: file-user
  password: file-pass
  dbname: file-db
  sslmode: disable
`
	err = os.WriteFile(configPath, []byte(configFile), 0600)
	require.NoError(t, err)

	cfg, err := LoadAPIConfig(configPath, envDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "env-user", cfg.Database.User)
	assert.Equal(t, "env-pass", cfg.Database.Password)
	assert.Equal(t, "env-db", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
}
