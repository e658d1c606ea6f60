package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectCost struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	ProjectId       int                  `gorm:"index;not null" json:"project_id"`
	CategoryCode    string               `gorm:"size:10;not null;index" json:"category_code"`
	CategoryName    string               `gorm:"size:100;not null" json:"category_name"`
	ItemDescription string               `gorm:"size:255;not null" json:"item_description"`
	SupplierBrand   *string              `gorm:"size:150" json:"supplier_brand"`
	Unit            *string              `gorm:"size:50" json:"unit"`
	Quantity        decimal.Decimal      `gorm:"type:decimal(15,2);not null" json:"quantity"`
	RatePerUnit     decimal.Decimal      `gorm:"type:decimal(15,2);not null" json:"rate_per_unit"`
	LineTotal       decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"line_total"`
	CategoryTotal   *decimal.Decimal     `gorm:"type:decimal(20,2)" json:"category_total"`
	VersionNumber   int                  `gorm:"not null;default:1" json:"version_number"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime:false" json:"updated_at"`
	Versions        []ProjectCostVersion `gorm:"foreignKey:OriginalRecordId;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *ProjectCost) GetId() int            { return c.ID }
func (c *ProjectCost) GetVersionNumber() int { return c.VersionNumber }
func (c *ProjectCost) GetProjectId() int     { return c.ProjectId }

func (c *ProjectCost) stamp(version int, at time.Time) {
	c.VersionNumber = version
	c.UpdatedAt = at
}

// deriveLineTotal keeps line_total = quantity * rate_per_unit.
func (c *ProjectCost) deriveLineTotal() {
	c.LineTotal = c.Quantity.Mul(c.RatePerUnit)
}

// ProjectCostVersion is an archived ProjectCost state. Rows are append-only.
type ProjectCostVersion struct {
	ID               int              `gorm:"primary_key" json:"id"`
	OriginalRecordId int              `gorm:"not null;uniqueIndex:idx_project_cost_version,priority:1" json:"original_record_id"`
	ProjectId        int              `gorm:"index;not null" json:"project_id"`
	CategoryCode     string           `gorm:"size:10;not null" json:"category_code"`
	CategoryName     string           `gorm:"size:100;not null" json:"category_name"`
	ItemDescription  string           `gorm:"size:255;not null" json:"item_description"`
	SupplierBrand    *string          `gorm:"size:150" json:"supplier_brand"`
	Unit             *string          `gorm:"size:50" json:"unit"`
	Quantity         decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"quantity"`
	RatePerUnit      decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"rate_per_unit"`
	LineTotal        decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"line_total"`
	CategoryTotal    *decimal.Decimal `gorm:"type:decimal(20,2)" json:"category_total"`
	VersionNumber    int              `gorm:"not null;uniqueIndex:idx_project_cost_version,priority:2" json:"version_number"`
	ChangedBy        string           `gorm:"size:255" json:"changed_by"`
	ChangeReason     string           `gorm:"size:255;not null;default:'Updated'" json:"change_reason"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
}

func (ProjectCostVersion) AppendOnly() bool { return true }

// category_code, category_name, item_description and unit are descriptive and never trigger a version.
var projectCostSpec = kindSpec[ProjectCost, ProjectCostVersion]{
	Kind: KindProjectCost,
	Tracked: []trackedField[ProjectCost]{
		{"quantity", func(a, b *ProjectCost) bool { return a.Quantity.Equal(b.Quantity) }},
		{"rate_per_unit", func(a, b *ProjectCost) bool { return a.RatePerUnit.Equal(b.RatePerUnit) }},
		{"supplier_brand", func(a, b *ProjectCost) bool { return utils.SameString(a.SupplierBrand, b.SupplierBrand) }},
		{"category_total", func(a, b *ProjectCost) bool { return utils.SameDecimal(a.CategoryTotal, b.CategoryTotal) }},
	},
	Derive: (*ProjectCost).deriveLineTotal,
	Snapshot: func(old *ProjectCost, actor, reason string, at time.Time) ProjectCostVersion {
		return ProjectCostVersion{
			OriginalRecordId: old.ID,
			ProjectId:        old.ProjectId,
			CategoryCode:     old.CategoryCode,
			CategoryName:     old.CategoryName,
			ItemDescription:  old.ItemDescription,
			SupplierBrand:    old.SupplierBrand,
			Unit:             old.Unit,
			Quantity:         old.Quantity,
			RatePerUnit:      old.RatePerUnit,
			LineTotal:        old.LineTotal,
			CategoryTotal:    old.CategoryTotal,
			VersionNumber:    old.VersionNumber,
			ChangedBy:        actor,
			ChangeReason:     reason,
			CreatedAt:        at,
		}
	},
}

type NewProjectCost struct {
	ProjectId       int              `json:"project_id"`
	CategoryCode    string           `json:"category_code" validate:"required,max=10"`
	CategoryName    string           `json:"category_name" validate:"required,max=100"`
	ItemDescription string           `json:"item_description" validate:"required,max=255"`
	SupplierBrand   *string          `json:"supplier_brand" validate:"omitempty,max=150"`
	Unit            *string          `json:"unit" validate:"omitempty,max=50"`
	Quantity        *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0,lte=9999999999999.99"`
	RatePerUnit     *decimal.Decimal `json:"rate_per_unit" validate:"omitempty,gte=0,lte=9999999999999.99"`
	CategoryTotal   *decimal.Decimal `json:"category_total" validate:"omitempty,gte=0"`
}

// validate checks input and builds the row. The import path passes
// requireProject=false because the owning project does not exist yet.
func (input *NewProjectCost) validate(requireProject bool) (*ProjectCost, error) {
	fields := utils.ValidationFields(input)
	if requireProject && input.ProjectId <= 0 {
		fields["project_id"] = "is required"
	}
	if input.Quantity == nil {
		fields["quantity"] = "is required"
	}
	if input.RatePerUnit == nil {
		fields["rate_per_unit"] = "is required"
	}
	utils.CheckMoney(fields, "quantity", input.Quantity)
	utils.CheckMoney(fields, "rate_per_unit", input.RatePerUnit)
	utils.CheckMoney(fields, "category_total", input.CategoryTotal)
	if len(fields) > 0 {
		return nil, utils.NewValidationError(fields)
	}

	cost := ProjectCost{
		ProjectId:       input.ProjectId,
		CategoryCode:    strings.TrimSpace(input.CategoryCode),
		CategoryName:    input.CategoryName,
		ItemDescription: input.ItemDescription,
		SupplierBrand:   input.SupplierBrand,
		Unit:            input.Unit,
		Quantity:        *input.Quantity,
		RatePerUnit:     *input.RatePerUnit,
		CategoryTotal:   input.CategoryTotal,
	}
	cost.deriveLineTotal()
	return &cost, nil
}

// ProjectCostPatch is a partial update; nil fields are left unchanged and keys
// listed in Clear are set to NULL. line_total is derived and cannot be patched.
type ProjectCostPatch struct {
	CategoryCode    *string          `json:"category_code" validate:"omitempty,max=10"`
	CategoryName    *string          `json:"category_name" validate:"omitempty,max=100"`
	ItemDescription *string          `json:"item_description" validate:"omitempty,max=255"`
	SupplierBrand   *string          `json:"supplier_brand" validate:"omitempty,max=150"`
	Unit            *string          `json:"unit" validate:"omitempty,max=50"`
	Quantity        *decimal.Decimal `json:"quantity" validate:"omitempty,gte=0,lte=9999999999999.99"`
	RatePerUnit     *decimal.Decimal `json:"rate_per_unit" validate:"omitempty,gte=0,lte=9999999999999.99"`
	CategoryTotal   *decimal.Decimal `json:"category_total" validate:"omitempty,gte=0"`
	ChangeReason    string           `json:"change_reason" validate:"max=255"`
	Clear           []string         `json:"-"`

	apply func(*ProjectCost)
}

var projectCostNullable = map[string]bool{
	"category_code":    false,
	"category_name":    false,
	"item_description": false,
	"supplier_brand":   true,
	"unit":             true,
	"quantity":         false,
	"rate_per_unit":    false,
	"category_total":   true,
}

// UnmarshalJSON records keys sent as an explicit null in Clear.
func (input *ProjectCostPatch) UnmarshalJSON(data []byte) error {
	type plain ProjectCostPatch
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	nulls, err := nullKeys(data)
	if err != nil {
		return err
	}
	*input = ProjectCostPatch(p)
	input.Clear = nulls
	return nil
}

func (input *ProjectCostPatch) Validate() error {
	fields := utils.ValidationFields(input)
	cleared := clearedSet(fields, input.Clear, projectCostNullable)
	for name, v := range map[string]*string{
		"category_code":    input.CategoryCode,
		"category_name":    input.CategoryName,
		"item_description": input.ItemDescription,
	} {
		if v != nil && strings.TrimSpace(*v) == "" {
			fields[name] = "must not be blank"
		}
	}
	utils.CheckMoney(fields, "quantity", input.Quantity)
	utils.CheckMoney(fields, "rate_per_unit", input.RatePerUnit)
	utils.CheckMoney(fields, "category_total", input.CategoryTotal)
	if len(fields) > 0 {
		return utils.NewValidationError(fields)
	}

	input.apply = func(c *ProjectCost) {
		if input.CategoryCode != nil {
			c.CategoryCode = strings.TrimSpace(*input.CategoryCode)
		}
		if input.CategoryName != nil {
			c.CategoryName = *input.CategoryName
		}
		if input.ItemDescription != nil {
			c.ItemDescription = *input.ItemDescription
		}
		if input.SupplierBrand != nil {
			c.SupplierBrand = input.SupplierBrand
		}
		if input.Unit != nil {
			c.Unit = input.Unit
		}
		if input.Quantity != nil {
			c.Quantity = *input.Quantity
		}
		if input.RatePerUnit != nil {
			c.RatePerUnit = *input.RatePerUnit
		}
		if input.CategoryTotal != nil {
			c.CategoryTotal = input.CategoryTotal
		}
		if cleared["supplier_brand"] {
			c.SupplierBrand = nil
		}
		if cleared["unit"] {
			c.Unit = nil
		}
		if cleared["category_total"] {
			c.CategoryTotal = nil
		}
	}
	return nil
}

func CreateProjectCost(ctx context.Context, input *NewProjectCost, actor string) (*ProjectCost, error) {
	cost, err := input.validate(true)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, "CreateProjectCost", func(tx *gorm.DB) error {
		return createProjectCostTx(tx, cost, actor)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, cost.ProjectId)
	return cost, nil
}

func createProjectCostTx(tx *gorm.DB, cost *ProjectCost, actor string) error {
	if err := utils.ValidateResourceId[Project](tx, cost.ProjectId); err != nil {
		if err == utils.ErrorRecordNotFound {
			return utils.NewValidationError(map[string]string{"project_id": "project not found"})
		}
		return err
	}
	if err := insertProjectCost(tx, cost); err != nil {
		return err
	}
	return createActivity(tx, ActivityCreate, KindProjectCost, cost.ID, cost.ProjectId, actor, "cost line created", cost)
}

func insertProjectCost(tx *gorm.DB, cost *ProjectCost) error {
	now := tx.NowFunc()
	cost.VersionNumber = 1
	cost.CreatedAt = now
	cost.UpdatedAt = now
	cost.deriveLineTotal()
	return tx.Omit("Versions").Create(cost).Error
}

func GetProjectCost(ctx context.Context, id int) (*ProjectCost, error) {
	return utils.FetchModel[ProjectCost](ctx, id)
}

// ListProjectCosts filters by project and exact (case-insensitive) category code.
func ListProjectCosts(ctx context.Context, projectId *int, categoryCode *string) ([]*ProjectCost, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if categoryCode != nil && *categoryCode != "" {
		dbCtx = dbCtx.Where("LOWER(category_code) = ?", strings.ToLower(*categoryCode))
	}
	var results []*ProjectCost
	if err := dbCtx.Order("category_code, id").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListProjectCosts", Err: err}
	}
	return results, nil
}

func UpdateProjectCost(ctx context.Context, id int, input *ProjectCostPatch, actor string) (*UpdateResult[ProjectCost], error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var result *UpdateResult[ProjectCost]
	err := runInTx(ctx, "UpdateProjectCost", func(tx *gorm.DB) error {
		var err error
		result, err = UpdateProjectCostTx(tx, id, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, result.Entity.ProjectId)
	return result, nil
}

// UpdateProjectCostTx runs the versioned update inside a caller-owned transaction.
func UpdateProjectCostTx(tx *gorm.DB, id int, input *ProjectCostPatch, actor string) (*UpdateResult[ProjectCost], error) {
	if input.apply == nil {
		if err := input.Validate(); err != nil {
			return nil, err
		}
	}
	return updateVersioned[ProjectCost, ProjectCostVersion](tx, projectCostSpec, id, input.apply, actor, input.ChangeReason)
}

func DeleteProjectCost(ctx context.Context, id int, actor string) (*ProjectCost, error) {
	var cost *ProjectCost
	err := runInTx(ctx, "DeleteProjectCost", func(tx *gorm.DB) error {
		var err error
		cost, err = lockRow[ProjectCost](tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&ProjectCost{}, id).Error; err != nil {
			return err
		}
		return createActivity(tx, ActivityDelete, KindProjectCost, id, cost.ProjectId, actor, "cost line deleted", cost)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, cost.ProjectId)
	return cost, nil
}

func ListProjectCostVersions(ctx context.Context, id int) (*VersionHistory[ProjectCost, ProjectCostVersion], error) {
	return listHistory[ProjectCost, ProjectCostVersion](ctx, id)
}
