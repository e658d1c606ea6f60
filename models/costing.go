package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultOverheadDescription = "Provided in your BOQ"
	defaultOverheadBasis       = "On total cost"
)

var defaultOverheadPercentage = decimal.NewFromInt(10)

// CostingProject, CostingLineItem and CostingOverhead make up the budget document
// exchanged with the chatbot service and accepted by the importer.
type CostingProject struct {
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	TotalCost float64 `json:"total_cost"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

type CostingLineItem struct {
	CategoryCode    string  `json:"category_code"`
	CategoryName    string  `json:"category_name"`
	ItemDescription string  `json:"item_description"`
	SupplierBrand   string  `json:"supplier_brand"`
	Unit            string  `json:"unit"`
	Quantity        float64 `json:"quantity"`
	RatePerUnit     float64 `json:"rate_per_unit"`
	LineTotal       float64 `json:"line_total"`
	CategoryTotal   float64 `json:"category_total"`
}

type CostingOverhead struct {
	OverheadType string  `json:"overhead_type"`
	Description  string  `json:"description"`
	Basis        string  `json:"basis"`
	Percentage   float64 `json:"percentage"`
	Amount       float64 `json:"amount"`
}

type CostingData struct {
	Project       CostingProject    `json:"project"`
	CostLineItems []CostingLineItem `json:"cost_line_items"`
	Overheads     []CostingOverhead `json:"overheads"`
}

type CostingEnvelope struct {
	Status string      `json:"status"`
	Source string      `json:"source,omitempty"`
	Data   CostingData `json:"data"`
}

func formatDate(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).UTC().Format("2006-01-02")
	return &s
}

// GetProjectCosting renders the project's current state as a costing document.
func GetProjectCosting(ctx context.Context, projectId int) (*CostingEnvelope, error) {
	var envelope *CostingEnvelope
	err := runInTx(ctx, "GetProjectCosting", func(tx *gorm.DB) error {
		data, err := loadProjectLatestData(tx, projectId)
		if err != nil {
			return err
		}
		envelope = &CostingEnvelope{
			Status: "success",
			Source: data.Project.Name + "_project_data.pdf",
			Data:   buildCostingData(data),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

func buildCostingData(data *ProjectLatestData) CostingData {
	categoryTotals := map[string]decimal.Decimal{}
	for _, c := range data.CategoryTotals {
		categoryTotals[c.CategoryCode] = c.Total
	}

	out := CostingData{
		CostLineItems: make([]CostingLineItem, 0, len(data.Costs)),
		Overheads:     make([]CostingOverhead, 0, len(data.Overheads)),
	}
	for _, c := range data.Costs {
		out.CostLineItems = append(out.CostLineItems, CostingLineItem{
			CategoryCode:    c.CategoryCode,
			CategoryName:    c.CategoryName,
			ItemDescription: c.ItemDescription,
			SupplierBrand:   derefOr(c.SupplierBrand, ""),
			Unit:            derefOr(c.Unit, ""),
			Quantity:        c.Quantity.InexactFloat64(),
			RatePerUnit:     c.RatePerUnit.InexactFloat64(),
			LineTotal:       c.LineTotal.InexactFloat64(),
			CategoryTotal:   categoryTotals[c.CategoryCode].InexactFloat64(),
		})
	}

	overheadTotal := data.OverheadTotal
	if len(data.Overheads) == 0 {
		amount := data.Subtotal.Mul(defaultOverheadPercentage).Div(decimal.NewFromInt(100)).Round(2)
		for _, t := range []string{OverheadContingency, OverheadContractorMargin} {
			out.Overheads = append(out.Overheads, CostingOverhead{
				OverheadType: t,
				Description:  defaultOverheadDescription,
				Basis:        defaultOverheadBasis,
				Percentage:   defaultOverheadPercentage.InexactFloat64(),
				Amount:       amount.InexactFloat64(),
			})
		}
		overheadTotal = amount.Add(amount)
	}
	for _, o := range data.Overheads {
		out.Overheads = append(out.Overheads, CostingOverhead{
			OverheadType: o.OverheadType,
			Description:  derefOr(o.Description, defaultOverheadDescription),
			Basis:        derefOr(o.Basis, defaultOverheadBasis),
			Percentage:   o.Percentage.InexactFloat64(),
			Amount:       o.Amount.InexactFloat64(),
		})
	}

	// A stored total wins over the computed one.
	total := data.Subtotal.Add(overheadTotal)
	if !data.Project.TotalProjectCost.IsZero() {
		total = data.Project.TotalProjectCost
	}
	out.Project = CostingProject{
		Name:      data.Project.Name,
		Location:  derefOr(data.Project.Location, ""),
		TotalCost: total.Truncate(0).InexactFloat64(),
		StartDate: formatDate(data.Project.StartDate),
		EndDate:   formatDate(data.Project.EndDate),
	}
	return out
}

// normalizeDate keeps the calendar day of an ISO date or datetime string.
// Unparseable values are passed through so validation reports them.
func normalizeDate(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	if len(*s) > 10 {
		if _, err := time.Parse("2006-01-02", (*s)[:10]); err == nil {
			day := (*s)[:10]
			return &day
		}
	}
	return s
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
