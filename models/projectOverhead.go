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

const (
	OverheadContingency      = "Contingency"
	OverheadContractorMargin = "Contractor Margin"
)

type ProjectOverhead struct {
	ID            int                      `gorm:"primary_key" json:"id"`
	ProjectId     int                      `gorm:"index;not null" json:"project_id"`
	OverheadType  string                   `gorm:"size:50;not null" json:"overhead_type"`
	Description   *string                  `gorm:"size:255" json:"description"`
	Basis         *string                  `gorm:"size:100" json:"basis"`
	Percentage    decimal.Decimal          `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Amount        decimal.Decimal          `gorm:"type:decimal(15,2);not null" json:"amount"`
	VersionNumber int                      `gorm:"not null;default:1" json:"version_number"`
	CreatedAt     time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                `gorm:"autoUpdateTime:false" json:"updated_at"`
	Versions      []ProjectOverheadVersion `gorm:"foreignKey:OriginalRecordId;constraint:OnDelete:CASCADE" json:"-"`
}

func (o *ProjectOverhead) GetId() int            { return o.ID }
func (o *ProjectOverhead) GetVersionNumber() int { return o.VersionNumber }
func (o *ProjectOverhead) GetProjectId() int     { return o.ProjectId }

func (o *ProjectOverhead) stamp(version int, at time.Time) {
	o.VersionNumber = version
	o.UpdatedAt = at
}

type ProjectOverheadVersion struct {
	ID               int             `gorm:"primary_key" json:"id"`
	OriginalRecordId int             `gorm:"not null;uniqueIndex:idx_project_overhead_version,priority:1" json:"original_record_id"`
	ProjectId        int             `gorm:"index;not null" json:"project_id"`
	OverheadType     string          `gorm:"size:50;not null" json:"overhead_type"`
	Description      *string         `gorm:"size:255" json:"description"`
	Basis            *string         `gorm:"size:100" json:"basis"`
	Percentage       decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percentage"`
	Amount           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	VersionNumber    int             `gorm:"not null;uniqueIndex:idx_project_overhead_version,priority:2" json:"version_number"`
	ChangedBy        string          `gorm:"size:255" json:"changed_by"`
	ChangeReason     string          `gorm:"size:255;not null;default:'Updated'" json:"change_reason"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

func (ProjectOverheadVersion) AppendOnly() bool { return true }

// basis is descriptive only.
var projectOverheadSpec = kindSpec[ProjectOverhead, ProjectOverheadVersion]{
	Kind: KindProjectOverhead,
	Tracked: []trackedField[ProjectOverhead]{
		{"overhead_type", func(a, b *ProjectOverhead) bool { return a.OverheadType == b.OverheadType }},
		{"description", func(a, b *ProjectOverhead) bool { return utils.SameString(a.Description, b.Description) }},
		{"percentage", func(a, b *ProjectOverhead) bool { return a.Percentage.Equal(b.Percentage) }},
		{"amount", func(a, b *ProjectOverhead) bool { return a.Amount.Equal(b.Amount) }},
	},
	Snapshot: func(old *ProjectOverhead, actor, reason string, at time.Time) ProjectOverheadVersion {
		return ProjectOverheadVersion{
			OriginalRecordId: old.ID,
			ProjectId:        old.ProjectId,
			OverheadType:     old.OverheadType,
			Description:      old.Description,
			Basis:            old.Basis,
			Percentage:       old.Percentage,
			Amount:           old.Amount,
			VersionNumber:    old.VersionNumber,
			ChangedBy:        actor,
			ChangeReason:     reason,
			CreatedAt:        at,
		}
	},
}

type NewProjectOverhead struct {
	ProjectId    int              `json:"project_id"`
	OverheadType string           `json:"overhead_type" validate:"required,max=50"`
	Description  *string          `json:"description" validate:"omitempty,max=255"`
	Basis        *string          `json:"basis" validate:"omitempty,max=100"`
	Percentage   *decimal.Decimal `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Amount       *decimal.Decimal `json:"amount" validate:"omitempty,gte=0,lte=9999999999999.99"`
}

func (input *NewProjectOverhead) validate(requireProject bool) (*ProjectOverhead, error) {
	fields := utils.ValidationFields(input)
	if requireProject && input.ProjectId <= 0 {
		fields["project_id"] = "is required"
	}
	if _, ok := fields["overhead_type"]; !ok && strings.TrimSpace(input.OverheadType) == "" {
		fields["overhead_type"] = "is required"
	}
	if input.Percentage == nil {
		fields["percentage"] = "is required"
	}
	if input.Amount == nil {
		fields["amount"] = "is required"
	}
	utils.CheckMoney(fields, "percentage", input.Percentage)
	utils.CheckMoney(fields, "amount", input.Amount)
	if len(fields) > 0 {
		return nil, utils.NewValidationError(fields)
	}

	return &ProjectOverhead{
		ProjectId:    input.ProjectId,
		OverheadType: strings.TrimSpace(input.OverheadType),
		Description:  input.Description,
		Basis:        input.Basis,
		Percentage:   *input.Percentage,
		Amount:       *input.Amount,
	}, nil
}

// ProjectOverheadPatch is a partial update; nil fields are left unchanged and keys
// listed in Clear are set to NULL.
type ProjectOverheadPatch struct {
	OverheadType *string          `json:"overhead_type" validate:"omitempty,max=50"`
	Description  *string          `json:"description" validate:"omitempty,max=255"`
	Basis        *string          `json:"basis" validate:"omitempty,max=100"`
	Percentage   *decimal.Decimal `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Amount       *decimal.Decimal `json:"amount" validate:"omitempty,gte=0,lte=9999999999999.99"`
	ChangeReason string           `json:"change_reason" validate:"max=255"`
	Clear        []string         `json:"-"`

	apply func(*ProjectOverhead)
}

var projectOverheadNullable = map[string]bool{
	"overhead_type": false,
	"description":   true,
	"basis":         true,
	"percentage":    false,
	"amount":        false,
}

// UnmarshalJSON records keys sent as an explicit null in Clear.
func (input *ProjectOverheadPatch) UnmarshalJSON(data []byte) error {
	type plain ProjectOverheadPatch
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	nulls, err := nullKeys(data)
	if err != nil {
		return err
	}
	*input = ProjectOverheadPatch(p)
	input.Clear = nulls
	return nil
}

func (input *ProjectOverheadPatch) Validate() error {
	fields := utils.ValidationFields(input)
	cleared := clearedSet(fields, input.Clear, projectOverheadNullable)
	if input.OverheadType != nil && strings.TrimSpace(*input.OverheadType) == "" {
		fields["overhead_type"] = "must not be blank"
	}
	utils.CheckMoney(fields, "percentage", input.Percentage)
	utils.CheckMoney(fields, "amount", input.Amount)
	if len(fields) > 0 {
		return utils.NewValidationError(fields)
	}

	input.apply = func(o *ProjectOverhead) {
		if input.OverheadType != nil {
			o.OverheadType = strings.TrimSpace(*input.OverheadType)
		}
		if input.Description != nil {
			o.Description = input.Description
		}
		if input.Basis != nil {
			o.Basis = input.Basis
		}
		if input.Percentage != nil {
			o.Percentage = *input.Percentage
		}
		if input.Amount != nil {
			o.Amount = *input.Amount
		}
		if cleared["description"] {
			o.Description = nil
		}
		if cleared["basis"] {
			o.Basis = nil
		}
	}
	return nil
}

func CreateProjectOverhead(ctx context.Context, input *NewProjectOverhead, actor string) (*ProjectOverhead, error) {
	overhead, err := input.validate(true)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, "CreateProjectOverhead", func(tx *gorm.DB) error {
		return createProjectOverheadTx(tx, overhead, actor)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, overhead.ProjectId)
	return overhead, nil
}

func createProjectOverheadTx(tx *gorm.DB, overhead *ProjectOverhead, actor string) error {
	if err := utils.ValidateResourceId[Project](tx, overhead.ProjectId); err != nil {
		if err == utils.ErrorRecordNotFound {
			return utils.NewValidationError(map[string]string{"project_id": "project not found"})
		}
		return err
	}
	if err := insertProjectOverhead(tx, overhead); err != nil {
		return err
	}
	return createActivity(tx, ActivityCreate, KindProjectOverhead, overhead.ID, overhead.ProjectId, actor, "overhead created", overhead)
}

func insertProjectOverhead(tx *gorm.DB, overhead *ProjectOverhead) error {
	now := tx.NowFunc()
	overhead.VersionNumber = 1
	overhead.CreatedAt = now
	overhead.UpdatedAt = now
	return tx.Omit("Versions").Create(overhead).Error
}

func GetProjectOverhead(ctx context.Context, id int) (*ProjectOverhead, error) {
	return utils.FetchModel[ProjectOverhead](ctx, id)
}

// ListProjectOverheads filters by project and case-insensitive substring on overhead type.
func ListProjectOverheads(ctx context.Context, projectId *int, overheadType *string) ([]*ProjectOverhead, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if overheadType != nil && *overheadType != "" {
		dbCtx = dbCtx.Where("LOWER(overhead_type) LIKE ?", "%"+strings.ToLower(*overheadType)+"%")
	}
	var results []*ProjectOverhead
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListProjectOverheads", Err: err}
	}
	return results, nil
}

func UpdateProjectOverhead(ctx context.Context, id int, input *ProjectOverheadPatch, actor string) (*UpdateResult[ProjectOverhead], error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var result *UpdateResult[ProjectOverhead]
	err := runInTx(ctx, "UpdateProjectOverhead", func(tx *gorm.DB) error {
		var err error
		result, err = UpdateProjectOverheadTx(tx, id, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, result.Entity.ProjectId)
	return result, nil
}

func UpdateProjectOverheadTx(tx *gorm.DB, id int, input *ProjectOverheadPatch, actor string) (*UpdateResult[ProjectOverhead], error) {
	if input.apply == nil {
		if err := input.Validate(); err != nil {
			return nil, err
		}
	}
	return updateVersioned[ProjectOverhead, ProjectOverheadVersion](tx, projectOverheadSpec, id, input.apply, actor, input.ChangeReason)
}

func DeleteProjectOverhead(ctx context.Context, id int, actor string) (*ProjectOverhead, error) {
	var overhead *ProjectOverhead
	err := runInTx(ctx, "DeleteProjectOverhead", func(tx *gorm.DB) error {
		var err error
		overhead, err = lockRow[ProjectOverhead](tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&ProjectOverhead{}, id).Error; err != nil {
			return err
		}
		return createActivity(tx, ActivityDelete, KindProjectOverhead, id, overhead.ProjectId, actor, "overhead deleted", overhead)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, overhead.ProjectId)
	return overhead, nil
}

func ListProjectOverheadVersions(ctx context.Context, id int) (*VersionHistory[ProjectOverhead, ProjectOverheadVersion], error) {
	return listHistory[ProjectOverhead, ProjectOverheadVersion](ctx, id)
}
