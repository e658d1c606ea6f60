package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/hohbackend/budget_backend/workflow"
)

type startChatRequest struct {
	ProjectId int `json:"project_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func currentUserId(c *gin.Context) int {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	return id
}

// ownedConversation loads a conversation whose session belongs to the caller.
// Other users' conversations are reported as not found.
func ownedConversation(c *gin.Context, id int) (*models.Conversation, bool) {
	ctx := c.Request.Context()
	conversation, err := models.GetConversation(ctx, id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	session, err := models.GetChatSession(ctx, conversation.SessionId)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if session.UserId != currentUserId(c) {
		writeError(c, utils.ErrorRecordNotFound)
		return nil, false
	}
	return conversation, true
}

func (h *Handler) startChatSession(c *gin.Context) {
	var input startChatRequest
	if !bindJSON(c, &input) {
		return
	}
	if input.ProjectId <= 0 {
		writeError(c, utils.NewValidationError(map[string]string{"project_id": "is required"}))
		return
	}
	start, err := models.StartChatSession(c.Request.Context(), currentUserId(c), input.ProjectId)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if start.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": start})
}

func (h *Handler) listChatSessions(c *gin.Context) {
	sessions, err := models.ListUserChatSessions(c.Request.Context(), currentUserId(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (h *Handler) newConversation(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	session, err := models.GetChatSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if session.UserId != currentUserId(c) {
		writeError(c, utils.ErrorRecordNotFound)
		return
	}
	conversation, err := models.NewConversation(c.Request.Context(), session.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": conversation})
}

func (h *Handler) listMessages(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	conversation, ok := ownedConversation(c, id)
	if !ok {
		return
	}
	messages, err := models.ListConversationMessages(c.Request.Context(), conversation.ID, c.Query("include_hidden") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if h.Chatbot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chatbot is not configured"})
		return
	}
	var input sendMessageRequest
	if !bindJSON(c, &input) {
		return
	}
	conversation, ok := ownedConversation(c, id)
	if !ok {
		return
	}
	exchange, err := workflow.SendChatMessage(c.Request.Context(), h.Chatbot, conversation.ID, currentUserId(c), input.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": exchange})
}

func (h *Handler) listProposals(c *gin.Context) {
	conversationId, ok := queryInt(c, "conversation_id")
	if !ok {
		return
	}
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	proposals, err := models.ListCostProposals(c.Request.Context(), conversationId, projectId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposals})
}

func (h *Handler) getProposal(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	proposal, err := models.GetCostProposal(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposal})
}

func (h *Handler) acceptProposal(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	result, err := workflow.AcceptChatProposal(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *Handler) rejectProposal(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	proposal, err := workflow.RejectChatProposal(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": proposal})
}
