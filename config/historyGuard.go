package config

import (
	"errors"
	"reflect"

	"gorm.io/gorm"
)

// ErrAppendOnly is returned when an UPDATE or DELETE targets an append-only table.
var ErrAppendOnly = errors.New("append-only table: rows cannot be updated or deleted")

// AppendOnlyModel is implemented by models whose rows must never change after insert.
// Cascading deletes issued by the database itself are not affected.
type AppendOnlyModel interface {
	AppendOnly() bool
}

// HistoryGuardPlugin rejects ORM-level updates and deletes on append-only models
// (the *_versions history tables).
type HistoryGuardPlugin struct{}

func NewHistoryGuardPlugin() *HistoryGuardPlugin { return &HistoryGuardPlugin{} }

func (p *HistoryGuardPlugin) Name() string { return "history_guard" }

func (p *HistoryGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("history_guard:update", historyGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("history_guard:delete", historyGuardCallback); err != nil {
		return err
	}
	return nil
}

func historyGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	if isAppendOnly(db.Statement.Schema.ModelType) {
		_ = db.AddError(ErrAppendOnly)
	}
}

func isAppendOnly(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	m, ok := reflect.New(t).Interface().(AppendOnlyModel)
	return ok && m.AppendOnly()
}
