package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
)

func (h *Handler) listOverheads(c *gin.Context) {
	projectId, ok := queryInt(c, "project_id")
	if !ok {
		return
	}
	overheads, err := models.ListProjectOverheads(c.Request.Context(), projectId, queryString(c, "overhead_type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": overheads})
}

func (h *Handler) createOverhead(c *gin.Context) {
	var input models.NewProjectOverhead
	if !bindJSON(c, &input) {
		return
	}
	overhead, err := models.CreateProjectOverhead(c.Request.Context(), &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": overhead})
}

func (h *Handler) getOverhead(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	overhead, err := models.GetProjectOverhead(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": overhead})
}

func (h *Handler) updateOverhead(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ProjectOverheadPatch
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.UpdateProjectOverhead(c.Request.Context(), id, &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteOverhead(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	overhead, err := models.DeleteProjectOverhead(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": overhead})
}

func (h *Handler) overheadHistory(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	history, err := models.ListProjectOverheadVersions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
