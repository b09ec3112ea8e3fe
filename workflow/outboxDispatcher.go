package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxDispatcher publishes queued stock events to Pub/Sub after their transaction committed.
// Several instances may run at once; rows are claimed with SKIP LOCKED.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      func(ctx context.Context, msg config.StockEventMessage) (string, error)

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishStockEventWithResult,
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
			config.LogError(d.Logger, "outboxDispatcher.go", "Run", "claiming stock events", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns how many events were sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil {
		return 0, nil
	}
	now := time.Now().UTC()

	var batch []models.StockEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = d.claimBatch(tx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range batch {
		if rec.PublishStatus != models.OutboxPublishStatusProcessing {
			continue
		}
		pubID, pubErr := d.Publish(ctx, models.ConvertToStockEventMessage(rec))
		if pubErr != nil {
			d.markPublishFailed(ctx, rec.ID, rec.ProductId, pubErr, rec.PublishAttempts)
			continue
		}
		d.markPublishSent(ctx, rec.ID, pubID, now)
		sent++
	}
	return sent, nil
}

// claimBatch picks events that are due (PENDING, or FAILED past next_attempt_at) plus
// PROCESSING rows whose claim is older than LockTimeout. Rows at MaxAttempts go DEAD
// instead of being claimed.
func (d *OutboxDispatcher) claimBatch(tx *gorm.DB, now time.Time) ([]models.StockEventRecord, error) {
	due := tx.Where("publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
		[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now)
	stale := tx.Where("publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?",
		models.OutboxPublishStatusProcessing, now.Add(-d.LockTimeout))

	var batch []models.StockEventRecord
	err := tx.Where(due).Or(stale).
		Order("id ASC").
		Limit(d.BatchSize).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&batch).Error
	if err != nil {
		return nil, err
	}

	for i := range batch {
		rec := &batch[i]
		if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
			if err := d.bury(tx, rec); err != nil {
				return nil, err
			}
			continue
		}
		rec.PublishStatus = models.OutboxPublishStatusProcessing
		rec.LockedAt = &now
		rec.LockedBy = &d.DispatcherID
		rec.PublishAttempts++
		rec.LastPublishError = nil
		err := tx.Model(&models.StockEventRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
			"publish_status":     rec.PublishStatus,
			"locked_at":          rec.LockedAt,
			"locked_by":          rec.LockedBy,
			"publish_attempts":   gorm.Expr("publish_attempts + 1"),
			"last_publish_error": nil,
			"next_attempt_at":    nil,
		}).Error
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// bury marks an event DEAD; it is only retried through ReprocessStockEvent.
func (d *OutboxDispatcher) bury(tx *gorm.DB, rec *models.StockEventRecord) error {
	msg := fmt.Sprintf("gave up after %d publish attempts", d.MaxAttempts)
	rec.PublishStatus = models.OutboxPublishStatusDead
	return tx.Model(&models.StockEventRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusDead,
		"last_publish_error": &msg,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
	}).Error
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, recordID int, pubsubMsgID string, now time.Time) {
	db := d.DB.WithContext(ctx)
	id := pubsubMsgID
	_ = db.Model(&models.StockEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &id,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
}

// retryBackoff doubles InitialBackoff per attempt, capped at 10 minutes.
func (d *OutboxDispatcher) retryBackoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			return time.Minute * 10
		}
	}
	return backoff
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, recordID int, productID int, err error, attempt int) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := err.Error()

	// Terminal after MaxAttempts (DLQ equivalent).
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = db.Model(&models.StockEventRecord{}).
			Where("id = ?", recordID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "OutboxDispatcher",
				"product_id": productID,
				"record_id":  recordID,
				"attempt":    attempt,
			}).Error("stock event moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		return
	}

	next := now.Add(d.retryBackoff(attempt))
	_ = db.Model(&models.StockEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"product_id":      productID,
			"record_id":       recordID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("stock event publish failed: " + fmt.Sprintf("%v", err))
	}
}
