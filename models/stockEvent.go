package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for StockEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const StockEventTypeChanged = "stock.changed"

// StockEventRecord is an outbox row for one ledger entry. It is inserted in the same
// transaction as the entry and published by the dispatcher after commit.
type StockEventRecord struct {
	ID               int        `gorm:"primary_key;index:idx_stock_event_dispatch,priority:3" json:"id"`
	InventoryLogId   int        `gorm:"not null;uniqueIndex" json:"inventory_log_id"`
	ReferenceType    string     `gorm:"size:20;not null;index:idx_stock_event_reference,priority:1" json:"reference_type"`
	ReferenceId      int        `gorm:"not null;index:idx_stock_event_reference,priority:2" json:"reference_id"`
	ProductId        int        `gorm:"not null;index" json:"product_id"`
	QuantityChange   int        `gorm:"not null" json:"quantity_change"`
	NewQuantity      int        `gorm:"not null" json:"new_quantity"`
	OccurredAt       time.Time  `gorm:"not null" json:"occurred_at"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_stock_event_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_stock_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToStockEventMessage(record StockEventRecord) config.StockEventMessage {
	return config.StockEventMessage{
		ID:             record.ID,
		EventType:      StockEventTypeChanged,
		ReferenceType:  record.ReferenceType,
		ReferenceId:    record.ReferenceId,
		ProductId:      record.ProductId,
		QuantityChange: record.QuantityChange,
		NewQuantity:    record.NewQuantity,
		OccurredAt:     record.OccurredAt,
		CorrelationId:  record.CorrelationId,
	}
}

// queueStockEvents writes one outbox row per ledger entry through the caller's transaction,
// so an event exists exactly when its stock change committed. Nil entries are skipped, and
// nothing is written while stock events are disabled.
func queueStockEvents(tx *gorm.DB, referenceType string, referenceId int, entries ...*InventoryLog) error {
	if !config.StockEventsEnabled() {
		return nil
	}
	var correlationId string
	if ctx := tx.Statement.Context; ctx != nil {
		correlationId, _ = utils.GetCorrelationIdFromContext(ctx)
	}
	records := make([]StockEventRecord, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		records = append(records, StockEventRecord{
			InventoryLogId: entry.ID,
			ReferenceType:  referenceType,
			ReferenceId:    referenceId,
			ProductId:      entry.ProductId,
			QuantityChange: entry.QuantityChange,
			NewQuantity:    entry.NewQuantity,
			OccurredAt:     entry.Timestamp,
			CorrelationId:  correlationId,
			PublishStatus:  OutboxPublishStatusPending,
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := tx.Create(&records).Error; err != nil {
		return translateDBError(err)
	}
	return nil
}

// ReprocessStockEvent puts a FAILED or DEAD event back into the dispatch queue.
func ReprocessStockEvent(ctx context.Context, id int) (*StockEventRecord, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).
		Model(&StockEventRecord{}).
		Where("id = ? AND publish_status IN ?", id, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
			"locked_at":        nil,
			"locked_by":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: failed stock event #%d", ErrReferenceNotFound, id)
	}
	var record StockEventRecord
	if err := db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func ListStockEvents(ctx context.Context, publishStatus string, limit int) ([]*StockEventRecord, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&StockEventRecord{})
	if publishStatus != "" {
		dbCtx = dbCtx.Where("publish_status = ?", publishStatus)
	}
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*StockEventRecord
	err := dbCtx.Order("id DESC").Limit(limit).Find(&results).Error
	return results, err
}
