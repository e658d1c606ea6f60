package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/workflow"
)

type acceptAlertRequest struct {
	ProjectCostId *int `json:"project_cost_id"`
}

func (h *Handler) listArticles(c *gin.Context) {
	articles, err := models.LatestNewsArticles(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": articles})
}

func (h *Handler) listFetchLogs(c *gin.Context) {
	logs, err := models.ListNewsFetchLogs(c.Request.Context(), queryLimit(c, 20))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (h *Handler) fetchNews(c *gin.Context) {
	if h.News == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "news source is not configured"})
		return
	}
	saved, err := workflow.FetchNews(c.Request.Context(), h.News, h.NewsQuery)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"saved": saved}})
}

func (h *Handler) processNews(c *gin.Context) {
	if h.Decider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision service is not configured"})
		return
	}
	alerts, err := workflow.ProcessNews(c.Request.Context(), h.Decider, queryLimit(c, h.DecisionLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (h *Handler) listAlerts(c *gin.Context) {
	state := c.DefaultQuery("state", "pending")
	alerts, err := models.ListAlerts(c.Request.Context(), state, queryLimit(c, 50))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (h *Handler) getAlert(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	alert, err := models.GetAlert(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (h *Handler) acceptAlert(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input acceptAlertRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &input) {
		return
	}
	result, err := workflow.AcceptNewsAlert(c.Request.Context(), id, actor(c), input.ProjectCostId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *Handler) rejectAlert(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	alert, err := models.RejectAlert(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}
