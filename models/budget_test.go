package models_test

import (
	"testing"

	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectLatestDataTotals(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	mustCreateCost(t, ctx, p.ID, "B", "Bricks", "100", "2.50")
	mustCreateCost(t, ctx, p.ID, "A", "Cement", "10", "5")
	mustCreateCost(t, ctx, p.ID, "A", "Sand", "4", "25")
	mustCreateOverhead(t, ctx, p.ID, models.OverheadContingency, "10", "45")

	data, err := models.GetProjectLatestData(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, data.Costs, 3)
	assert.Equal(t, "A", data.Costs[0].CategoryCode)
	assert.Equal(t, "B", data.Costs[2].CategoryCode)
	assert.True(t, data.Subtotal.Equal(decimal.NewFromInt(400)), "subtotal %s", data.Subtotal)
	assert.True(t, data.OverheadTotal.Equal(decimal.NewFromInt(45)))
	assert.True(t, data.CalculatedTotalCost.Equal(decimal.NewFromInt(445)))
	require.Len(t, data.CategoryTotals, 2)
	assert.True(t, data.CategoryTotals[0].Total.Equal(decimal.NewFromInt(150)))
	assert.True(t, data.CategoryTotals[1].Total.Equal(decimal.NewFromInt(250)))

	res, err := models.RecalculateProjectTotal(ctx, p.ID, testActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"total_project_cost"}, res.ChangedFields)
	assert.True(t, res.Entity.TotalProjectCost.Equal(decimal.NewFromInt(445)))

	// already up to date
	res, err = models.RecalculateProjectTotal(ctx, p.ID, testActor)
	require.NoError(t, err)
	assert.False(t, res.Versioned())
	assert.Equal(t, 2, res.Entity.VersionNumber)
}

func TestProjectCostingDefaultsOverheads(t *testing.T) {
	ctx := setupStore(t)
	p, err := models.CreateProject(ctx, &models.NewProject{
		Name:      "Villa",
		Location:  utils.NewString("Pune"),
		StartDate: utils.NewString("2025-02-01"),
	}, testActor)
	require.NoError(t, err)
	mustCreateCost(t, ctx, p.ID, "A", "Cement", "10", "50")
	mustCreateCost(t, ctx, p.ID, "A", "Sand", "10", "50")

	envelope, err := models.GetProjectCosting(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", envelope.Status)
	assert.Equal(t, "Villa_project_data.pdf", envelope.Source)

	data := envelope.Data
	assert.Equal(t, "Villa", data.Project.Name)
	assert.Equal(t, "Pune", data.Project.Location)
	require.NotNil(t, data.Project.StartDate)
	assert.Equal(t, "2025-02-01", *data.Project.StartDate)
	assert.Nil(t, data.Project.EndDate)
	assert.Equal(t, float64(1200), data.Project.TotalCost)

	require.Len(t, data.CostLineItems, 2)
	assert.Equal(t, float64(1000), data.CostLineItems[0].CategoryTotal)
	require.Len(t, data.Overheads, 2)
	assert.Equal(t, models.OverheadContingency, data.Overheads[0].OverheadType)
	assert.Equal(t, models.OverheadContractorMargin, data.Overheads[1].OverheadType)
	for _, o := range data.Overheads {
		assert.Equal(t, float64(10), o.Percentage)
		assert.Equal(t, float64(100), o.Amount)
		assert.Equal(t, "Provided in your BOQ", o.Description)
	}

	// a stored total wins
	_, err = models.UpdateProject(ctx, p.ID, &models.ProjectPatch{TotalProjectCost: dec("5000.75")}, testActor)
	require.NoError(t, err)
	envelope, err = models.GetProjectCosting(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(5000), envelope.Data.Project.TotalCost)
}

func TestListFilters(t *testing.T) {
	ctx := setupStore(t)
	a := mustCreateProject(t, ctx, "Green Tower", utils.NewString("Mumbai"))
	mustCreateProject(t, ctx, "Blue Villa", utils.NewString("Pune"))
	mustCreateCost(t, ctx, a.ID, "A", "Cement", "1", "1")
	mustCreateCost(t, ctx, a.ID, "B", "Bricks", "1", "1")
	mustCreateOverhead(t, ctx, a.ID, models.OverheadContractorMargin, "5", "1")

	name := "tower"
	projects, err := models.ListProjects(ctx, &name, nil)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, a.ID, projects[0].ID)

	location := "PUN"
	projects, err = models.ListProjects(ctx, nil, &location)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Blue Villa", projects[0].Name)

	code := "b"
	costs, err := models.ListProjectCosts(ctx, &a.ID, &code)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, "Bricks", costs[0].ItemDescription)

	kind := "margin"
	overheads, err := models.ListProjectOverheads(ctx, &a.ID, &kind)
	require.NoError(t, err)
	require.Len(t, overheads, 1)
}

func TestImportBudgetDocumentCreatesProject(t *testing.T) {
	ctx := setupStore(t)
	start := "2025-03-01T00:00:00Z"

	result, err := models.ImportBudgetDocument(ctx, &models.BudgetDocument{
		Source: "uploads/villa.pdf",
		Project: models.CostingProject{
			Name:      "Villa",
			Location:  "Goa",
			StartDate: &start,
		},
		CostLineItems: []models.CostingLineItem{
			{CategoryCode: "A", CategoryName: "Civil", ItemDescription: "Cement", Quantity: 10, RatePerUnit: 5},
			{CategoryCode: "A", CategoryName: "Civil", ItemDescription: "Sand", Quantity: 2, RatePerUnit: 25},
			{CategoryCode: "B", CategoryName: "Finishes", ItemDescription: "Paint", Unit: "l", Quantity: 3, RatePerUnit: 10.5},
		},
		Overheads: []models.CostingOverhead{
			{OverheadType: models.OverheadContingency, Percentage: 10, Amount: 13.15},
		},
	}, nil, testActor)
	require.NoError(t, err)
	assert.Empty(t, result.ArchiveURI)

	p := result.Project
	assert.Equal(t, 1, p.VersionNumber)
	assert.True(t, p.TotalProjectCost.Equal(decimal.RequireFromString("144.65")), "total %s", p.TotalProjectCost)
	require.Len(t, result.Costs, 3)
	for _, c := range result.Costs {
		assert.Equal(t, p.ID, c.ProjectId)
		assert.Equal(t, 1, c.VersionNumber)
	}
	require.NotNil(t, result.Costs[0].CategoryTotal)
	assert.True(t, result.Costs[0].CategoryTotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.Costs[2].LineTotal.Equal(decimal.RequireFromString("31.5")))

	stored, err := models.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Villa", stored.Name)

	imports := models.ActivityImport
	activities, err := models.ListActivities(ctx, &p.ID, nil, &imports, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Contains(t, activities[0].Description, "villa.pdf")
}

func TestImportBudgetDocumentValidatesEverything(t *testing.T) {
	ctx := setupStore(t)

	_, err := models.ImportBudgetDocument(ctx, &models.BudgetDocument{
		Project: models.CostingProject{Name: ""},
		CostLineItems: []models.CostingLineItem{
			{CategoryCode: "A", CategoryName: "Civil", ItemDescription: "Cement", Quantity: 1, RatePerUnit: 1},
			{CategoryCode: "", CategoryName: "Civil", ItemDescription: "Sand", Quantity: -1, RatePerUnit: 1},
		},
	}, nil, testActor)

	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "project.name")
	assert.Contains(t, ve.Fields, "cost_line_items[1].category_code")
	assert.Contains(t, ve.Fields, "cost_line_items[1].quantity")
	assert.NotContains(t, ve.Fields, "cost_line_items[0].category_code")

	projects, err := models.ListProjects(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = models.ImportBudgetDocument(ctx, &models.BudgetDocument{Project: models.CostingProject{Name: "Empty"}}, nil, testActor)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "is required", ve.Fields["cost_line_items"])
}

func TestImportBudgetDocumentRejectsSubCentValues(t *testing.T) {
	ctx := setupStore(t)

	_, err := models.ImportBudgetDocument(ctx, &models.BudgetDocument{
		Project: models.CostingProject{Name: "Villa"},
		CostLineItems: []models.CostingLineItem{
			{CategoryCode: "A", CategoryName: "Civil", ItemDescription: "Cement", Quantity: 10, RatePerUnit: 5.125},
		},
		Overheads: []models.CostingOverhead{
			{OverheadType: models.OverheadContingency, Percentage: 10, Amount: 5.001},
		},
	}, nil, testActor)

	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must have at most 2 decimal places", ve.Fields["cost_line_items[0].rate_per_unit"])
	assert.Equal(t, "must have at most 2 decimal places", ve.Fields["overheads[0].amount"])
	assert.NotContains(t, ve.Fields, "cost_line_items[0].quantity")

	projects, err := models.ListProjects(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, projects)
}
