package workflow

import (
	"context"
	"encoding/json"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/sirupsen/logrus"
)

const previousChatLimit = 10

// Chatbot answers a question about a budget. *integrations.ChatbotClient implements it.
type Chatbot interface {
	Ask(ctx context.Context, req *integrations.ChatbotRequest) (*integrations.ChatbotReply, error)
}

// ChatExchange is the outcome of one user message.
// When the chatbot call fails the user message is still stored and ChatbotError is set.
type ChatExchange struct {
	ConversationId int                  `json:"conversation_id"`
	UserMessage    *models.Message      `json:"user_message"`
	AIMessage      *models.Message      `json:"ai_message,omitempty"`
	Proposal       *models.CostProposal `json:"proposal,omitempty"`
	ChatbotError   string               `json:"chatbot_error,omitempty"`
}

// SendChatMessage stores the user's message, asks the chatbot with the current costing,
// the conversation so far and accepted decisions, then stores the answer and any proposal.
func SendChatMessage(ctx context.Context, bot Chatbot, conversationId int, userId int, content string) (*ChatExchange, error) {
	if content == "" {
		return nil, utils.NewValidationError(map[string]string{"content": "is required"})
	}
	conversation, err := models.GetConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	userMessage, err := models.SaveMessage(ctx, conversation, &userId, models.MessageTypeUser, content, nil)
	if err != nil {
		return nil, err
	}
	out := &ChatExchange{ConversationId: conversation.ID, UserMessage: userMessage}

	req, err := buildChatbotRequest(ctx, conversation, content)
	if err != nil {
		return nil, err
	}

	logger := config.GetLogger().WithFields(logrus.Fields{
		"field":           "SendChatMessage",
		"conversation_id": conversation.ID,
		"project_id":      conversation.ProjectId,
	})
	reply, err := bot.Ask(ctx, req)
	if err != nil {
		logger.Error("chatbot call failed: " + err.Error())
		out.ChatbotError = err.Error()
		return out, nil
	}

	aiMessage, err := models.SaveMessage(ctx, conversation, nil, models.MessageTypeAssistant, reply.Answer, map[string]interface{}{
		"chatbot_response":   reply.Raw,
		"has_costing_update": reply.HasProposal(),
	})
	if err != nil {
		return nil, err
	}
	out.AIMessage = aiMessage

	if reply.HasProposal() {
		raw, err := json.Marshal(reply.Costing)
		if err != nil {
			return nil, err
		}
		proposal, err := models.SaveCostProposal(ctx, conversation, &aiMessage.ID, reply.Costing.Data, raw)
		if err != nil {
			return nil, err
		}
		out.Proposal = proposal
		logger.WithField("proposal_id", proposal.ID).Info("cost proposal stored")
	}
	return out, nil
}

func buildChatbotRequest(ctx context.Context, conversation *models.Conversation, question string) (*integrations.ChatbotRequest, error) {
	costing, err := models.GetProjectCosting(ctx, conversation.ProjectId)
	if err != nil {
		return nil, err
	}
	previous, err := models.PreviousChat(ctx, conversation.ID, previousChatLimit)
	if err != nil {
		return nil, err
	}
	decisions, err := models.AcceptedDecisions(ctx)
	if err != nil {
		return nil, err
	}
	return &integrations.ChatbotRequest{
		Question:         question,
		PreviousChat:     previous,
		PreviousDecision: decisions,
		CostingJSON:      costing,
	}, nil
}

// AcceptChatProposal applies a proposal to the budget while holding the project lock.
func AcceptChatProposal(ctx context.Context, proposalId int, user string) (*models.ProposalAcceptResult, error) {
	proposal, err := models.GetCostProposal(ctx, proposalId)
	if err != nil {
		return nil, err
	}
	var result *models.ProposalAcceptResult
	err = withLock(ctx, projectLockKey(proposal.ProjectId), func() error {
		var err error
		result, err = models.AcceptCostProposal(ctx, proposalId, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func RejectChatProposal(ctx context.Context, proposalId int) (*models.CostProposal, error) {
	return models.RejectCostProposal(ctx, proposalId)
}
