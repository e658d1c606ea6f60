package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/models/reports"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) listProjects(c *gin.Context) {
	projects, err := models.ListProjects(c.Request.Context(), queryString(c, "name"), queryString(c, "location"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": projects})
}

func (h *Handler) createProject(c *gin.Context) {
	var input models.NewProject
	if !bindJSON(c, &input) {
		return
	}
	project, err := models.CreateProject(c.Request.Context(), &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": project})
}

func (h *Handler) getProject(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	project, err := models.GetProject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": project})
}

func (h *Handler) updateProject(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.ProjectPatch
	if !bindJSON(c, &input) {
		return
	}
	result, err := models.UpdateProject(c.Request.Context(), id, &input, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteProject(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	project, err := models.DeleteProject(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": project})
}

func (h *Handler) projectHistory(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	history, err := models.ListProjectVersions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) projectLatest(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	latest, err := models.GetProjectLatestData(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": latest})
}

func (h *Handler) projectCosting(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	costing, err := models.GetProjectCosting(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, costing)
}

func (h *Handler) recalculateProject(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	result, err := models.RecalculateProjectTotal(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) exportProject(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteBudgetWorkbook(c.Request.Context(), id, &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project_%d_budget.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
