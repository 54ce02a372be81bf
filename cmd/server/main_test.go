package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"fieldsync/internal/installer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error", "--log-format", "json"))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestLint(t *testing.T) {
	out, err := execute(t, "lint", "--catalog", filepath.Join("..", "..", "catalog", "custom_fields.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 set(s), 3 entities")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sets:\n  - name: nw_x\n    entity: ''\n"), 0o644))
	out, err = execute(t, "lint", "--catalog", bad)
	require.Error(t, err)
	assert.Contains(t, out, "entity_empty")
}

func TestMigratePrint(t *testing.T) {
	out, err := execute(t, "migrate", "--print", "--schema-variant", "legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "-- 000_schemas_and_tables")
	assert.Contains(t, out, `"set_id"`)

	_, err = execute(t, "migrate")
	assert.ErrorContains(t, err, "driver=postgres")
}

func TestHooksOnBuntFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "fields.db")

	out, err := execute(t, "install", "--driver", "bunt", "--bunt-path", path)
	require.NoError(t, err)
	var rep installer.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.FieldsCreated)

	// состояние переживает перезапуск
	out, err = execute(t, "install", "--driver", "bunt", "--bunt-path", path)
	require.NoError(t, err)
	rep = installer.Report{}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 0, rep.FieldsCreated)
	assert.Equal(t, 2, rep.FieldsUpdated)

	out, err = execute(t, "uninstall", "--keep-user-data", "--driver", "bunt", "--bunt-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"keptUserData": true`)

	out, err = execute(t, "uninstall", "--driver", "bunt", "--bunt-path", path)
	require.NoError(t, err)
	rep = installer.Report{}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.SetsDeleted)
	assert.Equal(t, 2, rep.FieldsDeleted)
}

func TestUnknownDriver(t *testing.T) {
	_, err := execute(t, "install", "--driver", "mongo")
	assert.ErrorContains(t, err, "unknown driver")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := executeContext(t, ctx, "serve", "--port", "0")
	assert.NoError(t, err)
}
