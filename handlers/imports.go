package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/models"
	"github.com/hohbackend/budget_backend/models/reports"
	"github.com/hohbackend/budget_backend/utils"
)

const maxImportSize = 10 << 20

// importDocument accepts an extracted budget either as a JSON body or as a
// multipart "file" upload (.json or .xlsx) and stores it as a new project.
func (h *Handler) importDocument(c *gin.Context) {
	doc, raw, ok := readImport(c)
	if !ok {
		return
	}
	result, err := models.ImportBudgetDocument(c.Request.Context(), doc, raw, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func readImport(c *gin.Context) (*models.BudgetDocument, []byte, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
		if err != nil {
			badRequest(c, "unable to read request body")
			return nil, nil, false
		}
		doc, err := decodeDocument(raw, "")
		if err != nil {
			writeError(c, err)
			return nil, nil, false
		}
		return doc, raw, true
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return nil, nil, false
	}
	if header.Size > maxImportSize {
		badRequest(c, "file is too large")
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "unable to open file")
		return nil, nil, false
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, "unable to read file")
		return nil, nil, false
	}

	var doc *models.BudgetDocument
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		doc, err = reports.ReadBudgetDocument(bytes.NewReader(raw), header.Filename)
		if err != nil {
			err = utils.NewValidationError(map[string]string{"file": err.Error()})
		}
	case ".json":
		doc, err = decodeDocument(raw, header.Filename)
	default:
		err = utils.NewValidationError(map[string]string{"file": "must be .json or .xlsx"})
	}
	if err != nil {
		writeError(c, err)
		return nil, nil, false
	}
	return doc, raw, true
}

func decodeDocument(raw []byte, source string) (*models.BudgetDocument, error) {
	var doc models.BudgetDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, utils.NewValidationError(map[string]string{"document": "is not valid JSON"})
	}
	if doc.Source == "" {
		doc.Source = source
	}
	return &doc, nil
}
