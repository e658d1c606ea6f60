package models

import (
	"context"
	"errors"
	"time"

	"github.com/hohbackend/budget_backend/config"
	"github.com/hohbackend/budget_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EntityKind string

const (
	KindProject         EntityKind = "project"
	KindProjectCost     EntityKind = "project_cost"
	KindProjectOverhead EntityKind = "project_overhead"
)

const DefaultChangeReason = "Updated"

var tracer = otel.Tracer("github.com/hohbackend/budget_backend/models")

// versionedRow is the pointer side of a current-state entity row.
type versionedRow[E any] interface {
	*E
	GetId() int
	GetVersionNumber() int
	GetProjectId() int
	stamp(version int, at time.Time)
}

// trackedField is one entry of a kind's version-triggering allow-list.
type trackedField[E any] struct {
	Name  string
	Equal func(a, b *E) bool
}

// kindSpec describes how one entity kind is versioned.
type kindSpec[E any, H any] struct {
	Kind    EntityKind
	Tracked []trackedField[E]
	// Derive recomputes derived columns on the proposed state before diffing. May be nil.
	Derive func(*E)
	// Snapshot copies the outgoing state into a history row.
	Snapshot func(old *E, actor, reason string, at time.Time) H
}

func (s kindSpec[E, H]) changedFields(current, proposed *E) []string {
	var changed []string
	for _, f := range s.Tracked {
		if !f.Equal(current, proposed) {
			changed = append(changed, f.Name)
		}
	}
	return changed
}

// UpdateResult is what a versioned update did.
type UpdateResult[E any] struct {
	Entity          *E       `json:"data"`
	PreviousVersion int      `json:"previous_version"`
	ChangedFields   []string `json:"changed_fields"`
}

// Versioned reports whether the update archived history and bumped the version.
func (r *UpdateResult[E]) Versioned() bool {
	return len(r.ChangedFields) > 0
}

// VersionHistory is the current row plus every archived state, newest first.
type VersionHistory[E any, H any] struct {
	Current       *E  `json:"current_version"`
	History       []H `json:"version_history"`
	TotalVersions int `json:"total_versions"`
}

func normalizeReason(reason string) string {
	if reason == "" {
		return DefaultChangeReason
	}
	return reason
}

func supportsRowLocks(tx *gorm.DB) bool {
	// SQLite serializes writers on the database file; FOR UPDATE is MySQL only.
	return tx.Dialector.Name() != config.DriverSQLite
}

// lockRow loads one current-state row, taking a row lock where the driver supports it.
func lockRow[E any](tx *gorm.DB, id int) (*E, error) {
	q := tx
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return utils.FetchModelTx[E](q, id)
}

// updateVersioned applies patch to the row id inside tx.
//
// When a tracked field differs, the outgoing state is archived with the outgoing
// version number and the version is bumped by one. All patched fields are always
// written. The write is guarded by the version that was read, so a concurrent writer
// that got there first turns this call into a ConflictError.
func updateVersioned[E any, H any, PE versionedRow[E]](tx *gorm.DB, spec kindSpec[E, H], id int, patch func(*E), actor, reason string) (*UpdateResult[E], error) {
	reason = normalizeReason(reason)

	current, err := lockRow[E](tx, id)
	if err != nil {
		return nil, err
	}

	proposed := *current
	patch(&proposed)
	if spec.Derive != nil {
		spec.Derive(&proposed)
	}

	changed := spec.changedFields(current, &proposed)
	now := tx.NowFunc()
	oldVersion := PE(current).GetVersionNumber()
	newVersion := oldVersion

	if len(changed) > 0 {
		snapshot := spec.Snapshot(current, actor, reason, now)
		if err := tx.Create(&snapshot).Error; err != nil {
			return nil, &utils.TransactionError{Op: "archive " + string(spec.Kind), Err: err}
		}
		newVersion = oldVersion + 1
	}
	PE(&proposed).stamp(newVersion, now)

	if err := writeGuarded(tx, spec.Kind, id, oldVersion, &proposed); err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		if err := enqueueBudgetEvent(tx, spec.Kind, PE(&proposed).GetProjectId(), id, oldVersion, newVersion, actor, reason, current, &proposed); err != nil {
			return nil, err
		}
	}

	return &UpdateResult[E]{
		Entity:          &proposed,
		PreviousVersion: oldVersion,
		ChangedFields:   changed,
	}, nil
}

// writeGuarded writes every column of row except id and created_at, provided the
// stored version is still expectedVersion.
func writeGuarded[E any](tx *gorm.DB, kind EntityKind, id, expectedVersion int, row *E) error {
	res := tx.Model(new(E)).
		Where("id = ? AND version_number = ?", id, expectedVersion).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(row)
	if res.Error != nil {
		return &utils.TransactionError{Op: "update " + string(kind), Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &utils.ConflictError{Kind: string(kind), Id: id, ExpectedVersion: expectedVersion}
	}
	return nil
}

// listHistory reads the current row and its history in one consistent snapshot.
func listHistory[E any, H any](ctx context.Context, id int) (*VersionHistory[E, H], error) {
	var out VersionHistory[E, H]
	err := runInTx(ctx, "listHistory", func(tx *gorm.DB) error {
		current, err := utils.FetchModelTx[E](tx, id)
		if err != nil {
			return err
		}
		var history []H
		if err := tx.Where("original_record_id = ?", id).
			Order("version_number DESC").
			Find(&history).Error; err != nil {
			return err
		}
		out = VersionHistory[E, H]{
			Current:       current,
			History:       history,
			TotalVersions: len(history) + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// runInTx runs fn in one transaction bounded by DB_TX_TIMEOUT_SECONDS.
// Storage failures come back as *utils.TransactionError and are logged once here.
func runInTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	txCtx, cancel := config.TxContext(ctx)
	defer cancel()

	txCtx, span := tracer.Start(txCtx, "models."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("budget.op", op)))
	defer span.End()

	err := config.GetDB().WithContext(txCtx).Transaction(fn)
	if err == nil {
		return nil
	}
	if !utils.IsDomainError(err) {
		err = &utils.TransactionError{Op: op, Err: err}
	}
	var terr *utils.TransactionError
	if errors.As(err, &terr) {
		span.RecordError(err)
		config.LogError(config.GetLogger(), "models", op, "transaction", nil, err)
	}
	return err
}

// invalidateProject drops cached read models for a project after a committed write.
func invalidateProject(ctx context.Context, projectId int) {
	if err := utils.RemoveRedis[ProjectLatestData](ctx, projectId); err != nil {
		config.LogError(config.GetLogger(), "models", "invalidateProject", "redis", projectId, err)
	}
}
