package models_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testActor = "tester@local"

// setupStore points the store at a fresh SQLite file with foreign keys on.
func setupStore(t *testing.T) context.Context {
	t.Helper()

	conn, err := config.OpenDatabase(config.DatabaseSettings{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "budget.db"),
	})
	require.NoError(t, err)
	config.UseDB(conn)
	config.UseRedis(nil)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.UseDB(nil)
	})
	require.NoError(t, models.MigrateTable())

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	ctx = utils.SetUsernameInContext(ctx, testActor)
	return ctx
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func mustCreateProject(t *testing.T, ctx context.Context, name string, location *string) *models.Project {
	t.Helper()
	p, err := models.CreateProject(ctx, &models.NewProject{Name: name, Location: location}, testActor)
	require.NoError(t, err)
	return p
}

func mustCreateCost(t *testing.T, ctx context.Context, projectId int, code, item, quantity, rate string) *models.ProjectCost {
	t.Helper()
	c, err := models.CreateProjectCost(ctx, &models.NewProjectCost{
		ProjectId:       projectId,
		CategoryCode:    code,
		CategoryName:    "Category " + code,
		ItemDescription: item,
		Quantity:        dec(quantity),
		RatePerUnit:     dec(rate),
	}, testActor)
	require.NoError(t, err)
	return c
}

func mustCreateOverhead(t *testing.T, ctx context.Context, projectId int, overheadType, percentage, amount string) *models.ProjectOverhead {
	t.Helper()
	o, err := models.CreateProjectOverhead(ctx, &models.NewProjectOverhead{
		ProjectId:    projectId,
		OverheadType: overheadType,
		Percentage:   dec(percentage),
		Amount:       dec(amount),
	}, testActor)
	require.NoError(t, err)
	return o
}

func countRows(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, config.GetDB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}
