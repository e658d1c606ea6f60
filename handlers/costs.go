package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
)

func (h *Handler) listCosts(c *gin.Context) {
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	costs, err := models.ListProjectCosts(c.Request.Context(), projectId, queryString(c, "category_code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": costs})
}

func (h *Handler) createCost(c *gin.Context) {
	var input models.NewProjectCost
	if !bindJSON(c, &input) {
		return
	}
	cost, err := models.CreateProjectCost(c.Request.Context(), &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": cost})
}

func (h *Handler) getCost(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	cost, err := models.GetProjectCost(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cost})
}

func (h *Handler) updateCost(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ProjectCostPatch
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.UpdateProjectCost(c.Request.Context(), id, &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteCost(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	cost, err := models.DeleteProjectCost(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cost})
}

func (h *Handler) costHistory(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	history, err := models.ListProjectCostVersions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
