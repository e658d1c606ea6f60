package models

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Project struct {
	ID               int               `gorm:"primary_key" json:"id"`
	Name             string            `gorm:"size:150;not null" json:"name"`
	Location         *string           `gorm:"size:255" json:"location"`
	StartDate        *datatypes.Date   `json:"start_date"`
	EndDate          *datatypes.Date   `json:"end_date"`
	TotalProjectCost decimal.Decimal   `gorm:"type:decimal(20,2);not null;default:0" json:"total_project_cost"`
	VersionNumber    int               `gorm:"not null;default:1" json:"version_number"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime:false" json:"updated_at"`
	Costs            []ProjectCost     `gorm:"foreignKey:ProjectId;constraint:OnDelete:CASCADE" json:"costs,omitempty"`
	Overheads        []ProjectOverhead `gorm:"foreignKey:ProjectId;constraint:OnDelete:CASCADE" json:"overheads,omitempty"`
	Versions         []ProjectVersion  `gorm:"foreignKey:OriginalRecordId;constraint:OnDelete:CASCADE" json:"-"`
}

func (p *Project) GetId() int            { return p.ID }
func (p *Project) GetVersionNumber() int { return p.VersionNumber }
func (p *Project) GetProjectId() int     { return p.ID }

func (p *Project) stamp(version int, at time.Time) {
	p.VersionNumber = version
	p.UpdatedAt = at
}

// ProjectVersion is an archived Project state. Rows are append-only.
type ProjectVersion struct {
	ID               int             `gorm:"primary_key" json:"id"`
	OriginalRecordId int             `gorm:"not null;uniqueIndex:idx_project_version,priority:1" json:"original_record_id"`
	Name             string          `gorm:"size:150;not null" json:"name"`
	Location         *string         `gorm:"size:255" json:"location"`
	StartDate        *datatypes.Date `json:"start_date"`
	EndDate          *datatypes.Date `json:"end_date"`
	TotalProjectCost decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"total_project_cost"`
	VersionNumber    int             `gorm:"not null;uniqueIndex:idx_project_version,priority:2" json:"version_number"`
	ChangedBy        string          `gorm:"size:255" json:"changed_by"`
	ChangeReason     string          `gorm:"size:255;not null;default:'Updated'" json:"change_reason"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

func (ProjectVersion) AppendOnly() bool { return true }

var projectSpec = kindSpec[Project, ProjectVersion]{
	Kind: KindProject,
	Tracked: []trackedField[Project]{
		{"name", func(a, b *Project) bool { return a.Name == b.Name }},
		{"location", func(a, b *Project) bool { return utils.SameString(a.Location, b.Location) }},
		{"start_date", func(a, b *Project) bool { return utils.SameDate(a.StartDate, b.StartDate) }},
		{"end_date", func(a, b *Project) bool { return utils.SameDate(a.EndDate, b.EndDate) }},
		{"total_project_cost", func(a, b *Project) bool { return a.TotalProjectCost.Equal(b.TotalProjectCost) }},
	},
	Snapshot: func(old *Project, actor, reason string, at time.Time) ProjectVersion {
		return ProjectVersion{
			OriginalRecordId: old.ID,
			Name:             old.Name,
			Location:         old.Location,
			StartDate:        old.StartDate,
			EndDate:          old.EndDate,
			TotalProjectCost: old.TotalProjectCost,
			VersionNumber:    old.VersionNumber,
			ChangedBy:        actor,
			ChangeReason:     reason,
			CreatedAt:        at,
		}
	},
}

type NewProject struct {
	Name             string           `json:"name" validate:"required,max=150"`
	Location         *string          `json:"location" validate:"omitempty,max=255"`
	StartDate        *string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate          *string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TotalProjectCost *decimal.Decimal `json:"total_project_cost" validate:"omitempty,gte=0"`
}

// validate input and build the row to insert.
func (input *NewProject) validate() (*Project, error) {
	fields := utils.ValidationFields(input)
	if _, ok := fields["name"]; !ok && strings.TrimSpace(input.Name) == "" {
		fields["name"] = "is required"
	}
	utils.CheckMoney(fields, "total_project_cost", input.TotalProjectCost)
	start, end := parseDateRange(fields, input.StartDate, input.EndDate)
	if len(fields) > 0 {
		return nil, utils.NewValidationError(fields)
	}

	project := Project{
		Name:      strings.TrimSpace(input.Name),
		Location:  input.Location,
		StartDate: start,
		EndDate:   end,
	}
	if input.TotalProjectCost != nil {
		project.TotalProjectCost = *input.TotalProjectCost
	}
	return &project, nil
}

// ProjectPatch is a partial update; nil fields are left unchanged and keys
// listed in Clear are set to NULL.
type ProjectPatch struct {
	Name             *string          `json:"name" validate:"omitempty,max=150"`
	Location         *string          `json:"location" validate:"omitempty,max=255"`
	StartDate        *string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate          *string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TotalProjectCost *decimal.Decimal `json:"total_project_cost" validate:"omitempty,gte=0"`
	ChangeReason     string           `json:"change_reason" validate:"max=255"`
	Clear            []string         `json:"-"`

	apply func(*Project)
}

var projectNullable = map[string]bool{
	"name":               false,
	"location":           true,
	"start_date":         true,
	"end_date":           true,
	"total_project_cost": false,
}

// UnmarshalJSON records keys sent as an explicit null in Clear.
func (input *ProjectPatch) UnmarshalJSON(data []byte) error {
	type plain ProjectPatch
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	nulls, err := nullKeys(data)
	if err != nil {
		return err
	}
	*input = ProjectPatch(p)
	input.Clear = nulls
	return nil
}

// Validate checks the patch without touching the database.
func (input *ProjectPatch) Validate() error {
	fields := utils.ValidationFields(input)
	cleared := clearedSet(fields, input.Clear, projectNullable)
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		fields["name"] = "must not be blank"
	}
	utils.CheckMoney(fields, "total_project_cost", input.TotalProjectCost)
	start, end := parseDateRange(fields, input.StartDate, input.EndDate)
	if len(fields) > 0 {
		return utils.NewValidationError(fields)
	}

	input.apply = func(p *Project) {
		if input.Name != nil {
			p.Name = strings.TrimSpace(*input.Name)
		}
		if input.Location != nil {
			p.Location = input.Location
		}
		if start != nil {
			p.StartDate = start
		}
		if end != nil {
			p.EndDate = end
		}
		if input.TotalProjectCost != nil {
			p.TotalProjectCost = *input.TotalProjectCost
		}
		if cleared["location"] {
			p.Location = nil
		}
		if cleared["start_date"] {
			p.StartDate = nil
		}
		if cleared["end_date"] {
			p.EndDate = nil
		}
	}
	return nil
}

func parseDateRange(fields map[string]string, startStr, endStr *string) (start, end *datatypes.Date) {
	var err error
	if _, bad := fields["start_date"]; !bad {
		if start, err = utils.ParseDate(startStr); err != nil {
			fields["start_date"] = "must be a date in 2006-01-02 format"
		}
	}
	if _, bad := fields["end_date"]; !bad {
		if end, err = utils.ParseDate(endStr); err != nil {
			fields["end_date"] = "must be a date in 2006-01-02 format"
		}
	}
	if start != nil && end != nil && time.Time(*end).Before(time.Time(*start)) {
		fields["end_date"] = "must not be before start_date"
	}
	return start, end
}

func CreateProject(ctx context.Context, input *NewProject, actor string) (*Project, error) {
	project, err := input.validate()
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, "CreateProject", func(tx *gorm.DB) error {
		return createProjectTx(tx, project, actor)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func createProjectTx(tx *gorm.DB, project *Project, actor string) error {
	if err := insertProject(tx, project); err != nil {
		return err
	}
	return createActivity(tx, ActivityCreate, KindProject, project.ID, project.ID, actor, "project created", project)
}

func insertProject(tx *gorm.DB, project *Project) error {
	now := tx.NowFunc()
	project.VersionNumber = 1
	project.CreatedAt = now
	project.UpdatedAt = now
	return tx.Omit("Costs", "Overheads", "Versions").Create(project).Error
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	return utils.FetchModel[Project](ctx, id)
}

// ListProjects filters by case-insensitive substring on name and location.
func ListProjects(ctx context.Context, name *string, location *string) ([]*Project, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(*name)+"%")
	}
	if location != nil && *location != "" {
		dbCtx = dbCtx.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(*location)+"%")
	}
	var results []*Project
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListProjects", Err: err}
	}
	return results, nil
}

func UpdateProject(ctx context.Context, id int, input *ProjectPatch, actor string) (*UpdateResult[Project], error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var result *UpdateResult[Project]
	err := runInTx(ctx, "UpdateProject", func(tx *gorm.DB) error {
		var err error
		result, err = UpdateProjectTx(tx, id, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, id)
	return result, nil
}

// UpdateProjectTx runs the versioned update inside a caller-owned transaction.
func UpdateProjectTx(tx *gorm.DB, id int, input *ProjectPatch, actor string) (*UpdateResult[Project], error) {
	if input.apply == nil {
		if err := input.Validate(); err != nil {
			return nil, err
		}
	}
	return updateVersioned[Project, ProjectVersion](tx, projectSpec, id, input.apply, actor, input.ChangeReason)
}

// DeleteProject removes the project, its costs and overheads. History rows go with them by cascade.
func DeleteProject(ctx context.Context, id int, actor string) (*Project, error) {
	var project *Project
	err := runInTx(ctx, "DeleteProject", func(tx *gorm.DB) error {
		var err error
		project, err = lockRow[Project](tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&ProjectCost{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&ProjectOverhead{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Project{}, id).Error; err != nil {
			return err
		}
		return createActivity(tx, ActivityDelete, KindProject, id, id, actor, "project deleted", project)
	})
	if err != nil {
		return nil, err
	}
	invalidateProject(ctx, id)
	return project, nil
}

func ListProjectVersions(ctx context.Context, id int) (*VersionHistory[Project, ProjectVersion], error) {
	return listHistory[Project, ProjectVersion](ctx, id)
}
