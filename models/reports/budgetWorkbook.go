package reports

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	sheetProject   = "Project"
	sheetCosts     = "Costs"
	sheetOverheads = "Overheads"
	sheetHistory   = "History"
)

var (
	costHeadings     = []string{"Category Code", "Category Name", "Item Description", "Supplier Brand", "Unit", "Quantity", "Rate Per Unit", "Line Total", "Category Total", "Version"}
	overheadHeadings = []string{"Overhead Type", "Description", "Basis", "Percentage", "Amount", "Version"}
	historyHeadings  = []string{"Kind", "Record Id", "Version", "Changed By", "Change Reason", "Archived At", "Summary"}
)

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for i, v := range values {
		if err := f.SetCellValue(sheet, cell(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// BuildBudgetWorkbook exports the project's current state and its full version history.
func BuildBudgetWorkbook(ctx context.Context, projectId int) (*excelize.File, error) {
	data, err := models.GetProjectLatestData(ctx, projectId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetProject); err != nil {
		return nil, err
	}
	for _, s := range []string{sheetCosts, sheetOverheads, sheetHistory} {
		if _, err := f.NewSheet(s); err != nil {
			return nil, err
		}
	}

	p := data.Project
	costing, err := models.GetProjectCosting(ctx, projectId)
	if err != nil {
		return nil, err
	}
	projectRows := [][]interface{}{
		{"Name", p.Name},
		{"Location", str(p.Location)},
		{"Start Date", str(costing.Data.Project.StartDate)},
		{"End Date", str(costing.Data.Project.EndDate)},
		{"Total Project Cost", p.TotalProjectCost.InexactFloat64()},
		{"Calculated Total Cost", data.CalculatedTotalCost.InexactFloat64()},
		{"Version", p.VersionNumber},
		{"Updated At", p.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	for i, r := range projectRows {
		if err := writeRow(f, sheetProject, i+1, r...); err != nil {
			return nil, err
		}
	}

	if err := writeRow(f, sheetCosts, 1, toInterfaces(costHeadings)...); err != nil {
		return nil, err
	}
	for i, c := range data.Costs {
		var categoryTotal interface{}
		if c.CategoryTotal != nil {
			categoryTotal = c.CategoryTotal.InexactFloat64()
		}
		if err := writeRow(f, sheetCosts, i+2,
			c.CategoryCode, c.CategoryName, c.ItemDescription, str(c.SupplierBrand), str(c.Unit),
			c.Quantity.InexactFloat64(), c.RatePerUnit.InexactFloat64(), c.LineTotal.InexactFloat64(),
			categoryTotal, c.VersionNumber); err != nil {
			return nil, err
		}
	}

	if err := writeRow(f, sheetOverheads, 1, toInterfaces(overheadHeadings)...); err != nil {
		return nil, err
	}
	for i, o := range data.Overheads {
		if err := writeRow(f, sheetOverheads, i+2,
			o.OverheadType, str(o.Description), str(o.Basis),
			o.Percentage.InexactFloat64(), o.Amount.InexactFloat64(), o.VersionNumber); err != nil {
			return nil, err
		}
	}

	if err := writeHistory(ctx, f, data); err != nil {
		return nil, err
	}
	return f, nil
}

func writeHistory(ctx context.Context, f *excelize.File, data *models.ProjectLatestData) error {
	if err := writeRow(f, sheetHistory, 1, toInterfaces(historyHeadings)...); err != nil {
		return err
	}
	row := 2
	add := func(kind models.EntityKind, id, version int, by, reason string, at time.Time, summary string) error {
		err := writeRow(f, sheetHistory, row, string(kind), id, version, by, reason, at.UTC().Format(time.RFC3339), summary)
		row++
		return err
	}

	ph, err := models.ListProjectVersions(ctx, data.Project.ID)
	if err != nil {
		return err
	}
	for _, h := range ph.History {
		if err := add(models.KindProject, h.OriginalRecordId, h.VersionNumber, h.ChangedBy, h.ChangeReason, h.CreatedAt,
			fmt.Sprintf("%s total=%s", h.Name, h.TotalProjectCost.StringFixed(2))); err != nil {
			return err
		}
	}
	for _, c := range data.Costs {
		ch, err := models.ListProjectCostVersions(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, h := range ch.History {
			if err := add(models.KindProjectCost, h.OriginalRecordId, h.VersionNumber, h.ChangedBy, h.ChangeReason, h.CreatedAt,
				fmt.Sprintf("%s qty=%s rate=%s", h.ItemDescription, h.Quantity.StringFixed(2), h.RatePerUnit.StringFixed(2))); err != nil {
				return err
			}
		}
	}
	for _, o := range data.Overheads {
		oh, err := models.ListProjectOverheadVersions(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, h := range oh.History {
			if err := add(models.KindProjectOverhead, h.OriginalRecordId, h.VersionNumber, h.ChangedBy, h.ChangeReason, h.CreatedAt,
				fmt.Sprintf("%s %s%% amount=%s", h.OverheadType, h.Percentage.StringFixed(2), h.Amount.StringFixed(2))); err != nil {
				return err
			}
		}
	}
	return nil
}

func WriteBudgetWorkbook(ctx context.Context, projectId int, w io.Writer) error {
	f, err := BuildBudgetWorkbook(ctx, projectId)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// ReadBudgetDocument reads a workbook in the export layout back into an importable document.
// Only the Project, Costs and Overheads sheets are read.
func ReadBudgetDocument(r io.Reader, source string) (*models.BudgetDocument, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to open workbook: %v", err)
	}
	defer f.Close()

	doc := models.BudgetDocument{Source: source}

	projectRows, err := f.GetRows(sheetProject)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet %s: %v", sheetProject, err)
	}
	for _, row := range projectRows {
		if len(row) < 2 {
			continue
		}
		value := strings.TrimSpace(row[1])
		switch strings.TrimSpace(row[0]) {
		case "Name":
			doc.Project.Name = value
		case "Location":
			doc.Project.Location = value
		case "Start Date":
			if value != "" {
				doc.Project.StartDate = &value
			}
		case "End Date":
			if value != "" {
				doc.Project.EndDate = &value
			}
		}
	}

	costRows, err := f.GetRows(sheetCosts)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet %s: %v", sheetCosts, err)
	}
	for i, row := range costRows {
		if i == 0 || isBlank(row) {
			continue
		}
		row = pad(row, len(costHeadings))
		qty, err := number(row[5])
		if err != nil {
			return nil, fmt.Errorf("%s row %d quantity: %v", sheetCosts, i+1, err)
		}
		rate, err := number(row[6])
		if err != nil {
			return nil, fmt.Errorf("%s row %d rate per unit: %v", sheetCosts, i+1, err)
		}
		doc.CostLineItems = append(doc.CostLineItems, models.CostingLineItem{
			CategoryCode:    strings.TrimSpace(row[0]),
			CategoryName:    strings.TrimSpace(row[1]),
			ItemDescription: strings.TrimSpace(row[2]),
			SupplierBrand:   strings.TrimSpace(row[3]),
			Unit:            strings.TrimSpace(row[4]),
			Quantity:        qty,
			RatePerUnit:     rate,
		})
	}

	overheadRows, err := f.GetRows(sheetOverheads)
	if err != nil {
		// the sheet is optional
		return &doc, nil
	}
	for i, row := range overheadRows {
		if i == 0 || isBlank(row) {
			continue
		}
		row = pad(row, len(overheadHeadings))
		pct, err := number(row[3])
		if err != nil {
			return nil, fmt.Errorf("%s row %d percentage: %v", sheetOverheads, i+1, err)
		}
		amount, err := number(row[4])
		if err != nil {
			return nil, fmt.Errorf("%s row %d amount: %v", sheetOverheads, i+1, err)
		}
		doc.Overheads = append(doc.Overheads, models.CostingOverhead{
			OverheadType: strings.TrimSpace(row[0]),
			Description:  strings.TrimSpace(row[1]),
			Basis:        strings.TrimSpace(row[2]),
			Percentage:   pct,
			Amount:       amount,
		})
	}
	return &doc, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

func number(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}
