package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
service_name = "bankledger"

[http]
port = 18080

[database]
driver = "memory"

[ledger]
account_policy = "unlimited"
top_categories = 3

[ledger.min_balance]
savings = "50"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "bankledger", cfg.ServiceName)
	assert.Equal(t, 18080, cfg.HTTP.Port)
	assert.Equal(t, 50051, cfg.GRPC.Port)
	assert.Equal(t, "unlimited", cfg.Ledger.AccountPolicy)
	assert.Equal(t, 3, cfg.Ledger.TopCategories)
	assert.Equal(t, "50", cfg.Ledger.MinBalance["savings"])
	assert.True(t, cfg.Ledger.RecordFailed)
	assert.Equal(t, 3000, cfg.Ledger.LockTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("APP_HTTP_PORT", "19090")
	t.Setenv("APP_LEDGER_TOP_CATEGORIES", "7")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, 19090, cfg.HTTP.Port)
	assert.Equal(t, 7, cfg.Ledger.TopCategories)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)

	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "one_per_type", cfg.Ledger.AccountPolicy)
}

func TestValidate(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	bad := *cfg
	bad.Database.Driver = "mysql"
	bad.Database.DSN = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Ledger.AccountPolicy = "expr"
	assert.Error(t, bad.Validate())

	bad.Ledger.PolicyExpr = "ActiveOfType < 2"
	assert.NoError(t, bad.Validate())
}
