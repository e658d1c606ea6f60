package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"gorm.io/gorm"
)

const (
	ActivityCreate = "CREATE"
	ActivityDelete = "DELETE"
	ActivityImport = "IMPORT"
	ActivityAccept = "ACCEPT"
	ActivityReject = "REJECT"
)

// Activity is the operational log of non-versioned mutations: creates, deletes,
// imports and accepted proposals. Version history lives in the *Version tables.
type Activity struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	ReferenceId   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:50;index" json:"reference_type"`
	ProjectId     int       `gorm:"index" json:"project_id"`
	Payload       string    `gorm:"type:text" json:"payload"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	Actor         string    `gorm:"size:255" json:"actor"`
	UserId        int       `gorm:"index" json:"user_id"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Activity) AppendOnly() bool { return true }

func createActivity(tx *gorm.DB,
	actionType string,
	kind EntityKind,
	referenceId int,
	projectId int,
	actor string,
	description string,
	payload interface{}) error {

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx := tx.Statement.Context
	activity := Activity{
		ActionType:    actionType,
		ReferenceId:   referenceId,
		ReferenceType: string(kind),
		ProjectId:     projectId,
		Payload:       string(b),
		Description:   description,
		Actor:         actor,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		activity.UserId = userId
	}
	return tx.Create(&activity).Error
}

// ListActivities returns the log newest first. Zero or nil filters are ignored.
func ListActivities(ctx context.Context, projectId *int, referenceType *string, actionType *string, limit int) ([]*Activity, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if referenceType != nil && *referenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}
	if actionType != nil && *actionType != "" {
		dbCtx = dbCtx.Where("action_type = ?", *actionType)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var results []*Activity
	if err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListActivities", Err: err}
	}
	return results, nil
}
