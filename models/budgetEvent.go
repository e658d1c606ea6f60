package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outbox publish statuses for BudgetEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// BudgetEvent is the transactional outbox row written next to every version bump.
// It is published after commit by the dispatcher.
type BudgetEvent struct {
	ID               int            `gorm:"primary_key;index:idx_budget_event_dispatch,priority:3" json:"id"`
	EntityKind       string         `gorm:"size:50;not null;index:idx_budget_event_entity,priority:1" json:"entity_kind"`
	EntityId         int            `gorm:"not null;index:idx_budget_event_entity,priority:2" json:"entity_id"`
	ProjectId        int            `gorm:"index;not null" json:"project_id"`
	OldVersion       int            `gorm:"not null" json:"old_version"`
	NewVersion       int            `gorm:"not null" json:"new_version"`
	ChangedBy        string         `gorm:"size:255" json:"changed_by"`
	ChangeReason     string         `gorm:"size:255" json:"change_reason"`
	Before           datatypes.JSON `json:"before"`
	After            datatypes.JSON `json:"after"`
	CorrelationId    string         `gorm:"size:64;index" json:"correlation_id"`
	PublishStatus    string         `gorm:"size:20;index;not null;default:'PENDING';index:idx_budget_event_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time     `gorm:"index" json:"published_at"`
	PubSubMessageId  *string        `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int            `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time     `gorm:"index;index:idx_budget_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time     `gorm:"index" json:"locked_at"`
	LockedBy         *string        `gorm:"size:100" json:"locked_by"`
	LastPublishError *string        `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func enqueueBudgetEvent(tx *gorm.DB, kind EntityKind, projectId, entityId, oldVersion, newVersion int, actor, reason string, before, after interface{}) error {
	b, err := json.Marshal(before)
	if err != nil {
		return err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return err
	}

	record := BudgetEvent{
		EntityKind:    string(kind),
		EntityId:      entityId,
		ProjectId:     projectId,
		OldVersion:    oldVersion,
		NewVersion:    newVersion,
		ChangedBy:     actor,
		ChangeReason:  reason,
		Before:        datatypes.JSON(b),
		After:         datatypes.JSON(a),
		CorrelationId: correlationIdFromContextOrNew(tx.Statement.Context),
		PublishStatus: OutboxPublishStatusPending,
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToBudgetEventMessage(record BudgetEvent) config.BudgetEventMessage {
	return config.BudgetEventMessage{
		ID:            record.ID,
		EntityKind:    record.EntityKind,
		EntityId:      record.EntityId,
		ProjectId:     record.ProjectId,
		OldVersion:    record.OldVersion,
		NewVersion:    record.NewVersion,
		ChangedBy:     record.ChangedBy,
		ChangeReason:  record.ChangeReason,
		Before:        []byte(record.Before),
		After:         []byte(record.After),
		CorrelationId: record.CorrelationId,
		OccurredAt:    record.CreatedAt,
	}
}

// ListBudgetEvents returns outbox rows newest first.
func ListBudgetEvents(ctx context.Context, projectId *int, status *string, limit int) ([]*BudgetEvent, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if projectId != nil && *projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", *projectId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("publish_status = ?", *status)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var results []*BudgetEvent
	if err := dbCtx.Order("id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, &utils.TransactionError{Op: "ListBudgetEvents", Err: err}
	}
	return results, nil
}

// ReplayBudgetEvents puts DEAD and FAILED events back in the dispatch queue.
// A non-zero projectId limits the replay to one project.
func ReplayBudgetEvents(ctx context.Context, projectId int) (int64, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Model(&BudgetEvent{}).
		Where("publish_status IN ?", []string{OutboxPublishStatusDead, OutboxPublishStatusFailed})
	if projectId > 0 {
		dbCtx = dbCtx.Where("project_id = ?", projectId)
	}
	res := dbCtx.Updates(map[string]interface{}{
		"publish_status":     OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
		"last_publish_error": nil,
	})
	if res.Error != nil {
		return 0, &utils.TransactionError{Op: "ReplayBudgetEvents", Err: res.Error}
	}
	return res.RowsAffected, nil
}
