package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithPath(filepath.Join(t.TempDir(), "absent.json"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLayering(t *testing.T) {
	p := writeJSON(t, `{"port":"9000","driver":"bunt","buntPath":"x.db","logLevel":"debug"}`)
	t.Setenv("FIELDSYNC_PORT", "9100")
	t.Setenv("FIELDSYNC_AUTO_MIGRATE", "yes")
	t.Setenv("FIELDSYNC_SCHEMA_VARIANT", "legacy")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--bunt-path", "y.db", "--auto-migrate=false"}))

	cfg, err := LoadWithPath(p, fs)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)       // env поверх json
	assert.Equal(t, DriverBunt, cfg.Driver) // json
	assert.Equal(t, "y.db", cfg.BuntPath)   // флаг поверх json
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "legacy", cfg.SchemaVariant)
	assert.False(t, cfg.AutoMigrate) // флаг поверх env
}

func TestUnchangedFlagsDoNotOverride(t *testing.T) {
	t.Setenv("FIELDSYNC_DRIVER", "postgres")
	t.Setenv("FIELDSYNC_DB_URL", "postgres://localhost/fields")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := LoadWithPath(filepath.Join(t.TempDir(), "absent.json"), fs)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "postgres://localhost/fields", cfg.DBURL)
}

func TestLoadUsesConfigFlag(t *testing.T) {
	p := writeJSON(t, `{"catalogPath":"catalog/custom_fields.yaml"}`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", p}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "catalog/custom_fields.yaml", cfg.CatalogPath)
}

func TestValidate(t *testing.T) {
	_, err := LoadWithPath(writeJSON(t, `{"driver":"postgres"}`), nil)
	assert.ErrorContains(t, err, "requires dbUrl")

	_, err = LoadWithPath(writeJSON(t, `{"driver":"mongo"}`), nil)
	assert.ErrorContains(t, err, "unknown driver")

	_, err = LoadWithPath(writeJSON(t, `{"schemaVariant":"v3"}`), nil)
	assert.ErrorContains(t, err, "unknown schema variant")

	_, err = LoadWithPath(writeJSON(t, `{"port":`), nil)
	assert.Error(t, err)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--auto-migrate", "maybe"}))
	_, err = LoadWithPath(filepath.Join(t.TempDir(), "absent.json"), fs)
	assert.ErrorContains(t, err, "invalid boolean")
}
