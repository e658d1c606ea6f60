package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Publisher delivers one budget event and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, msg config.BudgetEventMessage) (string, error)
}

type PubSubPublisher struct {
	Topic string
}

func (p PubSubPublisher) Publish(ctx context.Context, msg config.BudgetEventMessage) (string, error) {
	return config.PublishBudgetEvent(ctx, p.Topic, msg)
}

// LogPublisher writes events to the logger. Used when no Pub/Sub topic is configured.
type LogPublisher struct {
	Logger *logrus.Logger
}

func (p LogPublisher) Publish(_ context.Context, msg config.BudgetEventMessage) (string, error) {
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":          "BudgetEvent",
			"entity_kind":    msg.EntityKind,
			"entity_id":      msg.EntityId,
			"project_id":     msg.ProjectId,
			"new_version":    msg.NewVersion,
			"changed_by":     msg.ChangedBy,
			"correlation_id": msg.CorrelationId,
		}).Info("budget entity versioned")
	}
	return "log-" + strconv.Itoa(msg.ID), nil
}

// NewPublisher picks Pub/Sub when a topic is set.
func NewPublisher(topic string, logger *logrus.Logger) Publisher {
	if topic != "" {
		return PubSubPublisher{Topic: topic}
	}
	return LogPublisher{Logger: logger}
}

type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Publisher    Publisher
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger, publisher Publisher) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		Publisher:      publisher,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && d.Logger != nil && ctx.Err() == nil {
			d.Logger.WithField("field", "OutboxDispatcher").Error("claim budget events: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of events sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil || d.Publisher == nil {
		return 0, nil
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.BudgetEvent
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// due PENDING/FAILED rows, or PROCESSING rows whose dispatcher died
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize)
		if tx.Dialector.Name() != config.DriverSQLite {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.BudgetEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.BudgetEvent{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		pubID, pubErr := d.Publisher.Publish(ctx, models.ConvertToBudgetEventMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID)
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, messageID string) {
	now := time.Now().UTC()
	err := d.DB.WithContext(ctx).Model(&models.BudgetEvent{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &messageID,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		d.logMarkError("markPublishSent", recordID, err)
	}
}

// logMarkError reports a status write that failed. The row stays PROCESSING
// until the stale-lock reclaim picks it up again.
func (d *OutboxDispatcher) logMarkError(funcName string, recordID int, err error) {
	if d.Logger != nil {
		config.LogError(d.Logger, "OutboxDispatcher", funcName, "record_id="+strconv.Itoa(recordID), nil, err)
	}
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.BudgetEvent, err error) {
	db := d.DB.WithContext(ctx)
	msg := err.Error()
	attempt := rec.PublishAttempts

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		uerr := db.Model(&models.BudgetEvent{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if uerr != nil {
			d.logMarkError("markPublishDead", rec.ID, uerr)
			return
		}
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":          "OutboxDispatcher",
				"project_id":     rec.ProjectId,
				"record_id":      rec.ID,
				"attempt":        attempt,
				"correlation_id": rec.CorrelationId,
			}).Error("budget event moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := time.Now().UTC().Add(retryBackoff(d.InitialBackoff, attempt))
	uerr := db.Model(&models.BudgetEvent{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if uerr != nil {
		d.logMarkError("markPublishFailed", rec.ID, uerr)
		return
	}
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"project_id":      rec.ProjectId,
			"record_id":       rec.ID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("budget event publish failed: " + msg)
	}
}

// retryBackoff doubles from initial per attempt, capped at ten minutes.
func retryBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
