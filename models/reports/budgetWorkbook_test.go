package reports_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/models/reports"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

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
	return utils.SetUsernameInContext(context.Background(), "tester@local")
}

func TestBudgetWorkbookRoundTrip(t *testing.T) {
	ctx := setupStore(t)

	q, r := decimal.NewFromInt(10), decimal.NewFromInt(5)
	project, err := models.CreateProject(ctx, &models.NewProject{
		Name:      "Villa",
		Location:  utils.NewString("Goa"),
		StartDate: utils.NewString("2025-04-01"),
	}, "tester")
	require.NoError(t, err)
	cost, err := models.CreateProjectCost(ctx, &models.NewProjectCost{
		ProjectId:       project.ID,
		CategoryCode:    "A",
		CategoryName:    "Civil",
		ItemDescription: "Cement",
		Unit:            utils.NewString("bag"),
		Quantity:        &q,
		RatePerUnit:     &r,
	}, "tester")
	require.NoError(t, err)
	pct, amount := decimal.NewFromInt(10), decimal.NewFromInt(12)
	_, err = models.CreateProjectOverhead(ctx, &models.NewProjectOverhead{
		ProjectId:    project.ID,
		OverheadType: models.OverheadContingency,
		Percentage:   &pct,
		Amount:       &amount,
	}, "tester")
	require.NoError(t, err)

	q2 := decimal.NewFromInt(12)
	_, err = models.UpdateProjectCost(ctx, cost.ID, &models.ProjectCostPatch{Quantity: &q2, ChangeReason: "remeasured"}, "tester")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, reports.WriteBudgetWorkbook(ctx, project.ID, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	history, err := f.GetRows("History")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, string(models.KindProjectCost), history[1][0])
	assert.Equal(t, "remeasured", history[1][4])
	require.NoError(t, f.Close())

	doc, err := reports.ReadBudgetDocument(bytes.NewReader(buf.Bytes()), "villa.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Villa", doc.Project.Name)
	assert.Equal(t, "Goa", doc.Project.Location)
	require.NotNil(t, doc.Project.StartDate)
	assert.Equal(t, "2025-04-01", *doc.Project.StartDate)
	require.Len(t, doc.CostLineItems, 1)
	assert.Equal(t, float64(12), doc.CostLineItems[0].Quantity)
	assert.Equal(t, "bag", doc.CostLineItems[0].Unit)
	require.Len(t, doc.Overheads, 1)
	assert.Equal(t, float64(12), doc.Overheads[0].Amount)

	imported, err := models.ImportBudgetDocument(ctx, doc, nil, "tester")
	require.NoError(t, err)
	assert.NotEqual(t, project.ID, imported.Project.ID)
	assert.True(t, imported.Project.TotalProjectCost.Equal(decimal.NewFromInt(72)), "total %s", imported.Project.TotalProjectCost)
}

func TestReadBudgetDocumentRejectsBadNumbers(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Project"))
	_, err := f.NewSheet("Costs")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Project", "A1", &[]interface{}{"Name", "Villa"}))
	require.NoError(t, f.SetSheetRow("Costs", "A1", &[]interface{}{"Category Code"}))
	require.NoError(t, f.SetSheetRow("Costs", "A2", &[]interface{}{"A", "Civil", "Cement", "", "", "ten", 5}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err = reports.ReadBudgetDocument(&buf, "bad.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantity")
}

func TestReadBudgetDocumentRejectsNonFiniteNumbers(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Project"))
	_, err := f.NewSheet("Costs")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Project", "A1", &[]interface{}{"Name", "Villa"}))
	require.NoError(t, f.SetSheetRow("Costs", "A1", &[]interface{}{"Category Code"}))
	require.NoError(t, f.SetSheetRow("Costs", "A2", &[]interface{}{"A", "Civil", "Cement", "", "", 10, "NaN"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err = reports.ReadBudgetDocument(&buf, "nan.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate")
}
