package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", config.DriverSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "budget.db"))
	config.ReloadSettings()
	config.UseRedis(nil)
	t.Cleanup(func() {
		if db := config.GetDB(); db != nil {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		config.UseDB(nil)
		config.ReloadSettings()
	})
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestImportAndExport(t *testing.T) {
	useTempStore(t)
	require.NoError(t, run(t, "migrate"))

	dir := t.TempDir()
	docPath := filepath.Join(dir, "villa.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{
		"project": {"name": "Villa", "location": "Goa"},
		"cost_line_items": [
			{"category_code": "A", "category_name": "Civil", "item_description": "Cement", "quantity": 10, "rate_per_unit": 5}
		],
		"overheads": []
	}`), 0o600))
	require.NoError(t, run(t, "import", docPath, "--actor", "ops"))

	projects, err := models.ListProjects(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Villa", projects[0].Name)

	out := filepath.Join(dir, "villa.xlsx")
	require.NoError(t, run(t, "export", "1", out))
	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	assert.Contains(t, f.GetSheetList(), "Costs")
	require.NoError(t, f.Close())

	require.NoError(t, run(t, "events", "replay"))
}

func TestCommandArgumentErrors(t *testing.T) {
	useTempStore(t)
	assert.Error(t, run(t, "history", "project", "abc"))
	assert.Error(t, run(t, "export", "x", "out.xlsx"))
	assert.Error(t, run(t, "import", filepath.Join(t.TempDir(), "budget.csv")))
}
