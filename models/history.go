package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"gorm.io/gorm"
)

// History is the audit trail. It is written by the request layer after an operation
// succeeded; inventory functions never write it.
type History struct {
	ID            int           `gorm:"primary_key" json:"id"`
	ActionType    HistoryAction `gorm:"size:10;not null;index" json:"action_type"`
	Before        string        `gorm:"type:text" json:"before"`
	After         string        `gorm:"type:text" json:"after"`
	Description   string        `gorm:"type:text;not null" json:"description"`
	ReferenceID   int           `gorm:"index:idx_histories_reference,priority:2" json:"reference_id"`
	ReferenceType string        `gorm:"size:50;index:idx_histories_reference,priority:1" json:"reference_type"`
	UserId        *int          `gorm:"index" json:"user_id"`
	UserName      string        `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}

const (
	ReferenceTypeProduct  = "Product"
	ReferenceTypeSupplier = "Supplier"
	ReferenceTypeCustomer = "Customer"
	ReferenceTypeInbound  = "Inbound"
	ReferenceTypeOutbound = "Outbound"
	ReferenceTypeUser     = "User"
)

type HistoryFilter struct {
	ReferenceType string
	ReferenceId   int
	UserId        int
	ActionType    HistoryAction
	Limit         int
}

// Actor identifies who performed an audited action. A nil Id is a system action.
type Actor struct {
	Id       *int
	Username string
}

func marshalSnapshot(obj interface{}) string {
	if obj == nil {
		return ""
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(b)
}

func (h History) GetId() int {
	return h.ID
}

// RecordHistory appends one audit entry. db may be a transaction or nil for the default connection.
func RecordHistory(ctx context.Context, db *gorm.DB, actor Actor, action HistoryAction,
	referenceType string, referenceId int,
	before interface{}, after interface{},
	description string) (*History, error) {

	if db == nil {
		db = config.GetDB()
	}
	userName := actor.Username
	if userName == "" && actor.Id == nil {
		userName = "system"
	}
	history := History{
		ActionType:    action,
		Before:        marshalSnapshot(before),
		After:         marshalSnapshot(after),
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        actor.Id,
		UserName:      userName,
	}
	if err := db.WithContext(ctx).Create(&history).Error; err != nil {
		return nil, err
	}
	return &history, nil
}

func ListHistories(ctx context.Context, filter HistoryFilter) ([]*History, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&History{})
	if filter.ReferenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.ReferenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", filter.ReferenceId)
	}
	if filter.UserId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", filter.UserId)
	}
	if filter.ActionType != "" {
		dbCtx = dbCtx.Where("action_type = ?", filter.ActionType)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*History
	err := dbCtx.Order("created_at DESC, id DESC").Limit(limit).Find(&results).Error
	return results, err
}
