package utils

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	if db == nil {
		return nil, ErrorServiceNotReady
	}
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch model inside tx with SELECT ... FOR UPDATE
// (the row stays locked until tx commits or rolls back)
func FetchModelForUpdate[T any](tx *gorm.DB, id int) (*T, error) {
	var result T
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}
