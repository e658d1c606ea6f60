package models

import (
	"context"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CategoryTotal struct {
	CategoryCode string          `json:"category_code"`
	CategoryName string          `json:"category_name"`
	Total        decimal.Decimal `json:"total"`
}

// ProjectLatestData is the current state of a project with its computed totals.
type ProjectLatestData struct {
	Project             *Project           `json:"project"`
	Costs               []*ProjectCost     `json:"costs"`
	Overheads           []*ProjectOverhead `json:"overheads"`
	CategoryTotals      []CategoryTotal    `json:"category_totals"`
	Subtotal            decimal.Decimal    `json:"subtotal"`
	OverheadTotal       decimal.Decimal    `json:"overhead_total"`
	CalculatedTotalCost decimal.Decimal    `json:"calculate_total_cost"`
}

func GetProjectLatestData(ctx context.Context, projectId int) (*ProjectLatestData, error) {
	if cached, err := utils.RetrieveRedis[ProjectLatestData](ctx, projectId); err != nil {
		config.LogError(config.GetLogger(), "models", "GetProjectLatestData", "redis", projectId, err)
	} else if cached != nil {
		return cached, nil
	}

	var data *ProjectLatestData
	err := runInTx(ctx, "GetProjectLatestData", func(tx *gorm.DB) error {
		var err error
		data, err = loadProjectLatestData(tx, projectId)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := utils.StoreRedis(ctx, data, projectId, utils.LatestDataCacheLifespan); err != nil {
		config.LogError(config.GetLogger(), "models", "GetProjectLatestData", "redis", projectId, err)
	}
	return data, nil
}

func loadProjectLatestData(tx *gorm.DB, projectId int) (*ProjectLatestData, error) {
	project, err := utils.FetchModelTx[Project](tx, projectId)
	if err != nil {
		return nil, err
	}
	var costs []*ProjectCost
	if err := tx.Where("project_id = ?", projectId).Order("category_code, id").Find(&costs).Error; err != nil {
		return nil, err
	}
	var overheads []*ProjectOverhead
	if err := tx.Where("project_id = ?", projectId).Order("id").Find(&overheads).Error; err != nil {
		return nil, err
	}

	data := &ProjectLatestData{
		Project:   project,
		Costs:     costs,
		Overheads: overheads,
	}
	index := map[string]int{}
	for _, c := range costs {
		data.Subtotal = data.Subtotal.Add(c.LineTotal)
		i, ok := index[c.CategoryCode]
		if !ok {
			i = len(data.CategoryTotals)
			index[c.CategoryCode] = i
			data.CategoryTotals = append(data.CategoryTotals, CategoryTotal{
				CategoryCode: c.CategoryCode,
				CategoryName: c.CategoryName,
			})
		}
		data.CategoryTotals[i].Total = data.CategoryTotals[i].Total.Add(c.LineTotal)
	}
	for _, o := range overheads {
		data.OverheadTotal = data.OverheadTotal.Add(o.Amount)
	}
	data.CalculatedTotalCost = data.Subtotal.Add(data.OverheadTotal)
	return data, nil
}

// RecalculateProjectTotal sets total_project_cost to the sum of line totals and overhead amounts.
func RecalculateProjectTotal(ctx context.Context, projectId int, actor string) (*UpdateResult[Project], error) {
	var result *UpdateResult[Project]
	err := runInTx(ctx, "RecalculateProjectTotal", func(tx *gorm.DB) error {
		var err error
		result, err = recalculateProjectTotalTx(tx, projectId, actor, "Recalculated project total")
		return err
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, projectId)
	return result, nil
}

func recalculateProjectTotalTx(tx *gorm.DB, projectId int, actor, reason string) (*UpdateResult[Project], error) {
	data, err := loadProjectLatestData(tx, projectId)
	if err != nil {
		return nil, err
	}
	total := data.CalculatedTotalCost.Round(2)
	return UpdateProjectTx(tx, projectId, &ProjectPatch{
		TotalProjectCost: &total,
		ChangeReason:     reason,
	}, actor)
}
