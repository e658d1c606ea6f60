package utils

import (
	"context"
	"errors"

	"github.com/hohbackend/budget_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// FetchModel loads one row by primary key.
// A missing row yields ErrorRecordNotFound; any other failure is a TransactionError.
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	return FetchModelTx[T](config.GetDB().WithContext(ctx), id, associations...)
}

// FetchModelTx is FetchModel on an existing session or transaction.
func FetchModelTx[T any](tx *gorm.DB, id int, associations ...string) (*T, error) {
	dbCtx := tx
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, &TransactionError{Op: "fetch " + GetTypeName[T](), Err: err}
	}
	return &result, nil
}

// ValidateResourceId returns ErrorRecordNotFound when no row of T has the id.
func ValidateResourceId[T any](tx *gorm.DB, id int) error {
	var count int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&count).Error; err != nil {
		return &TransactionError{Op: "count " + GetTypeName[T](), Err: err}
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}
