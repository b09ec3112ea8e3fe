package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// InventoryLog is one ledger entry. Rows are only ever inserted by the inventory mutator.
type InventoryLog struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ProductId      int       `gorm:"not null;index:idx_inventory_logs_product_time,priority:1" json:"product_id"`
	Product        *Product  `gorm:"foreignKey:ProductId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	UserId         *int      `gorm:"index" json:"user_id"`
	User           *User     `gorm:"foreignKey:UserId;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	QuantityChange int       `gorm:"not null" json:"quantity_change"`
	NewQuantity    int       `gorm:"not null" json:"new_quantity"`
	Reason         string    `gorm:"size:255;not null" json:"reason"`
	Timestamp      time.Time `gorm:"autoCreateTime;index:idx_inventory_logs_product_time,priority:2" json:"timestamp"`
}

func (InventoryLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

func (InventoryLog) BeforeDelete(tx *gorm.DB) error {
	return ErrLedgerImmutable
}

type InventoryLogFilter struct {
	ProductId *int
	UserId    *int
	Reason    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ListInventoryLogs returns ledger entries newest first.
func ListInventoryLogs(ctx context.Context, filter InventoryLogFilter) ([]*InventoryLog, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	dbCtx := db.WithContext(ctx).Model(&InventoryLog{})
	if filter.ProductId != nil {
		dbCtx = dbCtx.Where("product_id = ?", *filter.ProductId)
	}
	if filter.UserId != nil {
		dbCtx = dbCtx.Where("user_id = ?", *filter.UserId)
	}
	if filter.Reason != "" {
		dbCtx = dbCtx.Where("reason LIKE ?", "%"+filter.Reason+"%")
	}
	if filter.From != nil {
		dbCtx = dbCtx.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		dbCtx = dbCtx.Where("timestamp < ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}

	var results []*InventoryLog
	err := dbCtx.Order("timestamp DESC, id DESC").Limit(limit).Offset(filter.Offset).Find(&results).Error
	return results, err
}
