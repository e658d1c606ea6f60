package models

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BudgetDocument is a budget extracted from an uploaded document.
type BudgetDocument struct {
	Project       CostingProject    `json:"project"`
	CostLineItems []CostingLineItem `json:"cost_line_items"`
	Overheads     []CostingOverhead `json:"overheads"`
	Source        string            `json:"source"`
}

type ImportResult struct {
	Project    *Project           `json:"project"`
	Costs      []*ProjectCost     `json:"costs"`
	Overheads  []*ProjectOverhead `json:"overheads"`
	ArchiveURI string             `json:"archive_uri,omitempty"`
}

func money(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f).Round(2)
	return &d
}

// exact keeps every decimal place so validation can reject sub-cent values.
// Non-finite input yields nil and is reported as a missing value.
func exact(f float64) *decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	d := decimal.NewFromFloat(f)
	return &d
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// rows validates the whole document and returns the rows to insert.
// Field errors of line items are keyed as cost_line_items[i].field.
func (doc *BudgetDocument) rows() (*Project, []*ProjectCost, []*ProjectOverhead, error) {
	fields := map[string]string{}
	merge := func(prefix string, err error) {
		if ve, ok := err.(*utils.ValidationError); ok {
			for k, v := range ve.Fields {
				fields[prefix+k] = v
			}
		}
	}

	project, err := (&NewProject{
		Name:      doc.Project.Name,
		Location:  optionalString(doc.Project.Location),
		StartDate: normalizeDate(doc.Project.StartDate),
		EndDate:   normalizeDate(doc.Project.EndDate),
	}).validate()
	merge("project.", err)

	if len(doc.CostLineItems) == 0 {
		fields["cost_line_items"] = "is required"
	}
	costs := make([]*ProjectCost, 0, len(doc.CostLineItems))
	for i, item := range doc.CostLineItems {
		input := NewProjectCost{
			CategoryCode:    item.CategoryCode,
			CategoryName:    item.CategoryName,
			ItemDescription: item.ItemDescription,
			SupplierBrand:   optionalString(item.SupplierBrand),
			Unit:            optionalString(item.Unit),
			Quantity:        exact(item.Quantity),
			RatePerUnit:     exact(item.RatePerUnit),
		}
		cost, err := input.validate(false)
		merge(fmt.Sprintf("cost_line_items[%d].", i), err)
		if cost != nil {
			costs = append(costs, cost)
		}
	}

	overheads := make([]*ProjectOverhead, 0, len(doc.Overheads))
	for i, item := range doc.Overheads {
		input := NewProjectOverhead{
			OverheadType: item.OverheadType,
			Description:  optionalString(item.Description),
			Basis:        optionalString(item.Basis),
			Percentage:   exact(item.Percentage),
			Amount:       exact(item.Amount),
		}
		overhead, err := input.validate(false)
		merge(fmt.Sprintf("overheads[%d].", i), err)
		if overhead != nil {
			overheads = append(overheads, overhead)
		}
	}

	if len(fields) > 0 {
		return nil, nil, nil, utils.NewValidationError(fields)
	}

	// category_total is recomputed from the imported lines.
	categoryTotals := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, c := range costs {
		categoryTotals[c.CategoryCode] = categoryTotals[c.CategoryCode].Add(c.LineTotal)
		total = total.Add(c.LineTotal)
	}
	for _, c := range costs {
		c.CategoryTotal = utils.NewDecimal(categoryTotals[c.CategoryCode].Round(2))
	}
	for _, o := range overheads {
		total = total.Add(o.Amount)
	}
	project.TotalProjectCost = total.Round(2)

	return project, costs, overheads, nil
}

// ImportBudgetDocument creates a new project with its costs and overheads in one transaction.
// An import never reconciles into an existing project. raw, when given, is archived to GCS
// after commit; archive failures are logged and do not undo the import.
func ImportBudgetDocument(ctx context.Context, doc *BudgetDocument, raw []byte, actor string) (*ImportResult, error) {
	project, costs, overheads, err := doc.rows()
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, "ImportBudgetDocument", func(tx *gorm.DB) error {
		if err := insertProject(tx, project); err != nil {
			return err
		}
		for _, c := range costs {
			c.ProjectId = project.ID
			if err := insertProjectCost(tx, c); err != nil {
				return err
			}
		}
		for _, o := range overheads {
			o.ProjectId = project.ID
			if err := insertProjectOverhead(tx, o); err != nil {
				return err
			}
		}
		summary := map[string]interface{}{
			"source":     doc.Source,
			"project":    project,
			"cost_count": len(costs),
			"overheads":  len(overheads),
		}
		return createActivity(tx, ActivityImport, KindProject, project.ID, project.ID, actor, "budget imported from "+sourceName(doc.Source), summary)
	})
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Project: project, Costs: costs, Overheads: overheads}
	if utils.ArchiveEnabled() {
		result.ArchiveURI = archiveImport(ctx, project.ID, doc, raw)
	}
	return result, nil
}

// archiveImport copies the source document to GCS and returns its URI, or "" when
// the copy failed. Failures are logged only.
func archiveImport(ctx context.Context, projectId int, doc *BudgetDocument, raw []byte) string {
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(doc); err != nil {
			config.LogError(config.GetLogger(), "models", "archiveImport", "marshal", projectId, err)
			return ""
		}
	}
	objectName := path.Join("imports", fmt.Sprint(projectId), time.Now().UTC().Format("20060102T150405Z")+"-"+sourceName(doc.Source)+".json")
	uri, err := utils.UploadBytesToGCS(ctx, objectName, raw, "application/json")
	if err != nil {
		config.LogError(config.GetLogger(), "models", "archiveImport", "upload", objectName, err)
		return ""
	}
	return uri
}

func sourceName(source string) string {
	source = strings.TrimSpace(path.Base(source))
	if source == "" || source == "." || source == "/" {
		return "document"
	}
	return source
}
