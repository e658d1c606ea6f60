package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
)

func (h *Handler) listActivities(c *gin.Context) {
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	var actionType *string
	if v := queryString(c, "action_type"); v != nil {
		upper := strings.ToUpper(*v)
		actionType = &upper
	}
	activities, err := models.ListActivities(c.Request.Context(), projectId, queryString(c, "reference_type"), actionType, queryLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": activities})
}

func (h *Handler) listEvents(c *gin.Context) {
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	events, err := models.ListBudgetEvents(c.Request.Context(), projectId, queryString(c, "status"), queryLimit(c, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// replayEvents requeues DEAD and FAILED events, optionally for one project.
func (h *Handler) replayEvents(c *gin.Context) {
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	pid := 0
	if projectId != nil {
		pid = *projectId
	}
	n, err := models.ReplayBudgetEvents(c.Request.Context(), pid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"requeued": n}})
}
