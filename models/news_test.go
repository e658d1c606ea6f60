package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decisionFixture = `{
	"decision": "Switch supplier",
	"reason": "Cement prices are falling",
	"suggestion": "Use ACC for the next order",
	"updated_costing": {
		"category_name": "Category A",
		"item": "Cement",
		"unit": "bag",
		"quantity": 10,
		"cost_impact": -5,
		"old_values": {"supplier_brand": "Ultratech", "rate_per_unit": 5, "line_total": 50},
		"new_values": {"supplier_brand": "ACC", "rate_per_unit": 4.5, "line_total": 45}
	}
}`

func TestAlertFromDecision(t *testing.T) {
	alert, err := models.AlertFromDecision("decision_1", json.RawMessage(decisionFixture))
	require.NoError(t, err)
	assert.Equal(t, "decision_1", alert.DecisionKey)
	assert.Equal(t, "Switch supplier", alert.Decision)
	assert.Equal(t, "Cement", utils.DerefString(alert.Item))
	assert.Equal(t, "ACC", utils.DerefString(alert.NewSupplierBrand))
	require.NotNil(t, alert.NewRatePerUnit)
	assert.True(t, alert.NewRatePerUnit.Equal(decimal.RequireFromString("4.5")))
	require.NotNil(t, alert.CostImpact)
	assert.True(t, alert.CostImpact.IsNegative())

	_, err = models.AlertFromDecision("bad", json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestAcceptAlertUpdatesMatchingCost(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	cement := mustCreateCost(t, ctx, p.ID, "A", "Cement", "10", "5")

	alert, err := models.AlertFromDecision("decision_1", json.RawMessage(decisionFixture))
	require.NoError(t, err)
	require.NoError(t, models.SaveAlerts(ctx, []*models.Alert{alert}))

	pending, err := models.ListAlerts(ctx, "pending", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	result, err := models.AcceptAlert(ctx, alert.ID, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rate_per_unit", "supplier_brand"}, result.Cost.ChangedFields)
	assert.Equal(t, cement.ID, *result.Alert.ProjectCostId)

	history, err := models.ListProjectCostVersions(ctx, cement.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, history.Current.VersionNumber)
	assert.Equal(t, "ACC", utils.DerefString(history.Current.SupplierBrand))
	assert.True(t, history.Current.LineTotal.Equal(decimal.NewFromInt(45)))
	require.Len(t, history.History, 1)
	assert.Equal(t, models.AlertAcceptActor("bob"), history.History[0].ChangedBy)
	assert.Equal(t, models.AlertAcceptReason("decision_1"), history.History[0].ChangeReason)

	decisions, err := models.AcceptedDecisions(ctx)
	require.NoError(t, err)
	require.Contains(t, decisions, "1")
	assert.Equal(t, "ACC", decisions["1"].NewSupplierBrand)

	_, err = models.AcceptAlert(ctx, alert.ID, "bob", nil)
	var ve *utils.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAcceptAlertWithoutMatchingCost(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	mustCreateCost(t, ctx, p.ID, "A", "Sand", "10", "5")

	alert, err := models.AlertFromDecision("decision_2", json.RawMessage(decisionFixture))
	require.NoError(t, err)
	require.NoError(t, models.SaveAlerts(ctx, []*models.Alert{alert}))

	_, err = models.AcceptAlert(ctx, alert.ID, "bob", nil)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	stored, err := models.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.IsAccept)

	rejected, err := models.RejectAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.False(t, *rejected.IsAccept)

	listed, err := models.ListAlerts(ctx, "rejected", 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestSaveNewsArticlesUpserts(t *testing.T) {
	ctx := setupStore(t)
	paid := "ONLY AVAILABLE IN PAID PLANS"
	now := time.Now().UTC()

	saved, err := models.SaveNewsArticles(ctx, []*models.NewsArticle{
		{ArticleId: "a1", Title: "Cement prices fall", Content: &paid, PubDate: now},
		{ArticleId: "a2", Title: "Steel rally", PubDate: now.Add(-time.Hour)},
	}, &models.NewsFetchLog{Status: "success", TotalResults: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	_, err = models.SaveNewsArticles(ctx, []*models.NewsArticle{
		{ArticleId: "a1", Title: "Cement prices fall further", PubDate: now},
	}, nil)
	require.NoError(t, err)

	articles, err := models.LatestNewsArticles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "a1", articles[0].ArticleId)
	assert.Equal(t, "Cement prices fall further", articles[0].Title)
	assert.Nil(t, articles[0].Content)

	logs, err := models.ListNewsFetchLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].ArticlesSaved)
}
