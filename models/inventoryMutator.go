package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ApplyInventoryChange is the only write path for Product.Quantity.
//
// It must run inside tx: the product row is locked (SELECT ... FOR UPDATE), the new
// quantity is computed and checked against zero, and the product update plus exactly
// one InventoryLog entry are written. Both writes commit or roll back with tx.
// Calling it twice records two movements; callers guard against repeats.
func ApplyInventoryChange(tx *gorm.DB, productId int, delta int, actorId *int, reason string) (int, error) {
	entry, err := applyInventoryChange(tx, productId, delta, actorId, reason)
	if err != nil {
		return 0, err
	}
	return entry.NewQuantity, nil
}

// SetInventoryLevel moves a product to an absolute quantity.
// The delta is computed after the row lock is held; no entry is written when it is zero.
func SetInventoryLevel(tx *gorm.DB, productId int, target int, actorId *int, reason string) (int, bool, error) {
	entry, level, err := setInventoryLevel(tx, productId, target, actorId, reason)
	if err != nil {
		return 0, false, err
	}
	return level, entry != nil, nil
}

// applyInventoryChange is ApplyInventoryChange returning the ledger entry it wrote.
func applyInventoryChange(tx *gorm.DB, productId int, delta int, actorId *int, reason string) (*InventoryLog, error) {
	if delta == 0 {
		return nil, ErrInvalidDelta
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New("reason is required")
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return nil, err
	}
	return applyLocked(tx, product, delta, actorId, reason)
}

// setInventoryLevel returns a nil entry when the product already holds target.
func setInventoryLevel(tx *gorm.DB, productId int, target int, actorId *int, reason string) (*InventoryLog, int, error) {
	if target < 0 {
		return nil, 0, fmt.Errorf("%w: quantity cannot be negative", ErrInsufficientStock)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, 0, errors.New("reason is required")
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return nil, 0, err
	}
	delta := target - product.Quantity
	if delta == 0 {
		return nil, product.Quantity, nil
	}
	entry, err := applyLocked(tx, product, delta, actorId, reason)
	if err != nil {
		return nil, 0, err
	}
	return entry, entry.NewQuantity, nil
}

// ApplyInventoryChangeTx runs ApplyInventoryChange in its own transaction and queues the
// stock event with it.
func ApplyInventoryChangeTx(ctx context.Context, productId int, delta int, actorId *int, reason string) (int, error) {
	ctx, span := startSpan(ctx, "ApplyInventoryChange",
		attribute.Int("product.id", productId),
		attribute.Int("inventory.delta", delta),
	)
	var newQty int
	var err error
	defer func() { endSpan(span, err) }()

	tx, err := beginTx(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := applyInventoryChange(tx, productId, delta, actorId, reason)
	if err == nil {
		err = queueStockEvents(tx, ReferenceTypeProduct, productId, entry)
	}
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	newQty = entry.NewQuantity
	if err = tx.Commit().Error; err != nil {
		return 0, err
	}
	return newQty, nil
}

// beginTx opens a transaction on the shared connection, or fails when storage is not ready.
func beginTx(ctx context.Context) (*gorm.DB, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

func lockProduct(tx *gorm.DB, productId int) (*Product, error) {
	product, err := utils.FetchModelForUpdate[Product](tx, productId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: product #%d", ErrReferenceNotFound, productId)
		}
		return nil, err
	}
	return product, nil
}

// applyLocked expects product to be the row just read under lock in tx.
func applyLocked(tx *gorm.DB, product *Product, delta int, actorId *int, reason string) (*InventoryLog, error) {
	newQty := product.Quantity + delta
	if newQty < 0 {
		return nil, &StockError{
			Kind:      ErrInsufficientStock,
			ProductId: product.ID,
			Sku:       product.Sku,
			Available: product.Quantity,
			Requested: -delta,
		}
	}

	res := tx.Model(&Product{}).
		Where("id = ? AND quantity = ?", product.ID, product.Quantity).
		Update("quantity", newQty)
	if res.Error != nil {
		return nil, translateDBError(res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, &StockError{
			Kind:      ErrStockConflict,
			ProductId: product.ID,
			Sku:       product.Sku,
			Available: product.Quantity,
			Requested: -delta,
		}
	}

	entry := InventoryLog{
		ProductId:      product.ID,
		UserId:         actorId,
		QuantityChange: delta,
		NewQuantity:    newQty,
		Reason:         truncate(reason, 255),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, translateDBError(err)
	}

	product.Quantity = newQty
	return &entry, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
