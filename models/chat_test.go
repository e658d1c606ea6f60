package models_test

import (
	"encoding/json"
	"testing"

	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartChatSessionIsIdempotent(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)

	first, err := models.StartChatSession(ctx, 7, p.ID)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := models.StartChatSession(ctx, 7, p.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	messages, err := models.ListConversationMessages(ctx, first.Conversation.ID, false)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageTypeAssistant, messages[0].MessageType)
	assert.Contains(t, messages[0].Content, "Welcome to Tower A")

	_, err = models.StartChatSession(ctx, 7, p.ID+100)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestPreviousChatPairsTurns(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	start, err := models.StartChatSession(ctx, 7, p.ID)
	require.NoError(t, err)
	conv := start.Conversation
	user := 7

	for _, m := range []struct {
		kind    models.MessageType
		content string
	}{
		{models.MessageTypeUser, "How much is cement?"},
		{models.MessageTypeAssistant, "About 5 per bag."},
		{models.MessageTypeUser, "And sand?"},
		{models.MessageTypeAssistant, "25 per ton."},
		{models.MessageTypeUser, "Still typing"},
	} {
		var sender *int
		if m.kind == models.MessageTypeUser {
			sender = &user
		}
		_, err := models.SaveMessage(ctx, conv, sender, m.kind, m.content, nil)
		require.NoError(t, err)
	}

	turns, err := models.PreviousChat(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.ChatTurn{Human: "How much is cement?", AI: "About 5 per bag."}, turns["1"])
	assert.Equal(t, models.ChatTurn{Human: "And sand?", AI: "25 per ton."}, turns["2"])
}

func TestAcceptCostProposalUpdatesBudget(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", utils.NewString("Pune"))
	cement := mustCreateCost(t, ctx, p.ID, "A", "Cement", "10", "5")
	sand := mustCreateCost(t, ctx, p.ID, "A", "Sand", "4", "25")
	contingency := mustCreateOverhead(t, ctx, p.ID, models.OverheadContingency, "10", "15")

	start, err := models.StartChatSession(ctx, 7, p.ID)
	require.NoError(t, err)
	reply, err := models.SaveMessage(ctx, start.Conversation, nil, models.MessageTypeAssistant, "Here is a revised budget", nil)
	require.NoError(t, err)

	endDate := "2026-01-31T00:00:00"
	data := &models.CostingData{
		Project: models.CostingProject{Name: "Tower A", Location: "Pune", TotalCost: 400, EndDate: &endDate},
		CostLineItems: []models.CostingLineItem{
			{CategoryCode: "a", CategoryName: "Category A", ItemDescription: "cement", Quantity: 20, RatePerUnit: 5, CategoryTotal: 200},
			{CategoryCode: "A", CategoryName: "Category A", ItemDescription: "Sand", Quantity: 4, RatePerUnit: 25},
			{CategoryCode: "C", CategoryName: "Steel", ItemDescription: "TMT bars", SupplierBrand: "Tata", Quantity: 2, RatePerUnit: 60},
		},
		Overheads: []models.CostingOverhead{
			{OverheadType: "contingency", Percentage: 10, Amount: 35},
			{OverheadType: models.OverheadContractorMargin, Percentage: 5, Amount: 17.5},
		},
	}
	raw, _ := json.Marshal(map[string]interface{}{"status": "success", "data": data})
	proposal, err := models.SaveCostProposal(ctx, start.Conversation, &reply.ID, data, raw)
	require.NoError(t, err)
	require.NotNil(t, proposal.EndDate)
	assert.Equal(t, "2026-01-31", *proposal.EndDate)
	assert.Nil(t, proposal.IsAccept)

	result, err := models.AcceptCostProposal(ctx, proposal.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"end_date", "total_project_cost"}, result.Project.ChangedFields)
	assert.Len(t, result.UpdatedCosts, 2)
	require.Len(t, result.CreatedCosts, 1)
	assert.Equal(t, "TMT bars", result.CreatedCosts[0].ItemDescription)
	assert.Len(t, result.UpdatedOverheads, 1)
	assert.Len(t, result.CreatedOverheads, 1)

	cementHistory, err := models.ListProjectCostVersions(ctx, cement.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cementHistory.Current.VersionNumber)
	assert.True(t, cementHistory.Current.LineTotal.Equal(decimal.NewFromInt(100)))
	require.Len(t, cementHistory.History, 1)
	assert.Equal(t, models.ChatAcceptActor("alice"), cementHistory.History[0].ChangedBy)
	assert.Equal(t, models.ChatAcceptReason, cementHistory.History[0].ChangeReason)

	// unchanged tracked values
	storedSand, err := models.GetProjectCost(ctx, sand.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storedSand.VersionNumber)

	storedContingency, err := models.GetProjectOverhead(ctx, contingency.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, storedContingency.VersionNumber)
	assert.True(t, storedContingency.Amount.Equal(decimal.NewFromInt(35)))

	accepted, err := models.GetCostProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.IsAccept)
	assert.True(t, *accepted.IsAccept)
	assert.NotNil(t, accepted.AcceptedAt)

	messages, err := models.ListConversationMessages(ctx, start.Conversation.ID, true)
	require.NoError(t, err)
	var acceptedMessage *models.Message
	for _, m := range messages {
		if m.ID == reply.ID {
			acceptedMessage = m
		}
	}
	require.NotNil(t, acceptedMessage)
	require.NotNil(t, acceptedMessage.IsAccept)
	assert.True(t, *acceptedMessage.IsAccept)

	_, err = models.AcceptCostProposal(ctx, proposal.ID, "alice")
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	_, err = models.RejectCostProposal(ctx, proposal.ID)
	require.ErrorAs(t, err, &ve)
}

func TestAcceptCostProposalIsAllOrNothing(t *testing.T) {
	ctx := setupStore(t)
	p := mustCreateProject(t, ctx, "Tower A", nil)
	cement := mustCreateCost(t, ctx, p.ID, "A", "Cement", "10", "5")
	start, err := models.StartChatSession(ctx, 7, p.ID)
	require.NoError(t, err)

	data := &models.CostingData{
		Project: models.CostingProject{Name: "Tower B"},
		CostLineItems: []models.CostingLineItem{
			{CategoryCode: "A", CategoryName: "Category A", ItemDescription: "Cement", Quantity: 30, RatePerUnit: 5},
			// new line missing its category code
			{CategoryCode: "", CategoryName: "Misc", ItemDescription: "Scaffolding", Quantity: 1, RatePerUnit: 1},
		},
	}
	proposal, err := models.SaveCostProposal(ctx, start.Conversation, nil, data, nil)
	require.NoError(t, err)

	_, err = models.AcceptCostProposal(ctx, proposal.ID, "alice")
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "cost_line_items[1].category_code")

	stored, err := models.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tower A", stored.Name)
	assert.Equal(t, 1, stored.VersionNumber)

	storedCement, err := models.GetProjectCost(ctx, cement.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storedCement.VersionNumber)

	rejected, err := models.RejectCostProposal(ctx, proposal.ID)
	require.NoError(t, err)
	require.NotNil(t, rejected.IsAccept)
	assert.False(t, *rejected.IsAccept)
}
