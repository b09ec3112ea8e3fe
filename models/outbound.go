package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Outbound ships a single product to a customer.
type Outbound struct {
	ID           int            `gorm:"primary_key" json:"id"`
	CustomerId   int            `gorm:"not null;index" json:"customer_id"`
	Customer     *Customer      `gorm:"foreignKey:CustomerId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"customer,omitempty"`
	ProductId    int            `gorm:"not null;index" json:"product_id"`
	Product      *Product       `gorm:"foreignKey:ProductId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"product,omitempty"`
	Quantity     int            `gorm:"not null;check:chk_outbounds_quantity,quantity > 0" json:"quantity"`
	Status       ShipmentStatus `gorm:"type:enum('PENDING','COMPLETED','CANCELLED');not null;default:PENDING;index" json:"status"`
	OutboundDate time.Time      `gorm:"type:date;not null" json:"outbound_date"`
	SoRef        string         `gorm:"size:100;index" json:"so_ref"`
	Notes        string         `gorm:"type:text" json:"notes"`
	CreatedById  *int           `gorm:"index" json:"created_by_id"`
	CreatedBy    *User          `gorm:"foreignKey:CreatedById;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	CompletedAt  *time.Time     `json:"completed_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutbound struct {
	CustomerId   int       `json:"customer_id" validate:"required,gt=0"`
	ProductId    int       `json:"product_id" validate:"required,gt=0"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
	OutboundDate time.Time `json:"outbound_date" validate:"required"`
	SoRef        string    `json:"so_ref" validate:"max=100"`
	Notes        string    `json:"notes"`
}

// UpdateOutboundInput changes only the fields that are set.
// Customer, product and quantity are editable only while the shipment is PENDING.
type UpdateOutboundInput struct {
	CustomerId   *int            `json:"customer_id" validate:"omitempty,gt=0"`
	ProductId    *int            `json:"product_id" validate:"omitempty,gt=0"`
	Quantity     *int            `json:"quantity" validate:"omitempty,gt=0"`
	OutboundDate *time.Time      `json:"outbound_date"`
	SoRef        *string         `json:"so_ref" validate:"omitempty,max=100"`
	Notes        *string         `json:"notes"`
	Status       *ShipmentStatus `json:"status"`
	Reason       string          `json:"reason" validate:"max=150"`
}

type OutboundFilter struct {
	Status     ShipmentStatus
	CustomerId int
	ProductId  int
	Limit      int
	Offset     int
}

func OutboundCompletionReason(outboundId int, note string) string {
	return strings.TrimSpace(fmt.Sprintf("Outbound #%d completed. %s", outboundId, strings.TrimSpace(note)))
}

func validateOutboundProduct(ctx context.Context, productId int) (*Product, error) {
	product, err := GetProduct(ctx, productId)
	if err != nil {
		return nil, err
	}
	if product.IsArchived {
		return nil, fmt.Errorf("%w: product %s is archived", ErrInvalidRow, product.Sku)
	}
	return product, nil
}

func CreateOutbound(ctx context.Context, input *NewOutbound, actorId *int) (*Outbound, error) {
	input.SoRef = strings.TrimSpace(input.SoRef)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if _, err := GetCustomer(ctx, input.CustomerId); err != nil {
		return nil, err
	}
	if _, err := validateOutboundProduct(ctx, input.ProductId); err != nil {
		return nil, err
	}

	outbound := Outbound{
		CustomerId:   input.CustomerId,
		ProductId:    input.ProductId,
		Quantity:     input.Quantity,
		Status:       ShipmentStatusPending,
		OutboundDate: input.OutboundDate,
		SoRef:        input.SoRef,
		Notes:        input.Notes,
		CreatedById:  actorId,
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	if err := db.WithContext(ctx).Create(&outbound).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &outbound, nil
}

// UpdateOutbound is the generic save path; moving the status to COMPLETED deducts stock
// exactly like CompleteOutbound.
func UpdateOutbound(ctx context.Context, id int, input *UpdateOutboundInput, actorId *int) (*Outbound, error) {
	return updateOutbound(ctx, id, input, actorId, false)
}

// CompleteOutbound deducts the shipped quantity and marks the outbound COMPLETED.
//
// Stock is checked twice: once without locks for a fast InsufficientStock answer,
// then under the product row lock. A failure at the second check means stock moved
// in between and is reported as StockConflict; the outbound stays PENDING.
func CompleteOutbound(ctx context.Context, id int, actorId *int, note string) (*Outbound, error) {
	status := ShipmentStatusCompleted
	return updateOutbound(ctx, id, &UpdateOutboundInput{Status: &status, Reason: note}, actorId, true)
}

func CancelOutbound(ctx context.Context, id int, actorId *int) (*Outbound, error) {
	status := ShipmentStatusCancelled
	return updateOutbound(ctx, id, &UpdateOutboundInput{Status: &status}, actorId, true)
}

func requirePendingOutbound(status ShipmentStatus, to ShipmentStatus) error {
	switch status {
	case ShipmentStatusCompleted:
		return fmt.Errorf("%w: outbound is already completed", ErrInvalidTransition)
	case ShipmentStatusCancelled:
		if to == ShipmentStatusCompleted {
			return fmt.Errorf("%w: cannot complete a cancelled outbound", ErrInvalidTransition)
		}
		return fmt.Errorf("%w: outbound is already cancelled", ErrInvalidTransition)
	}
	return nil
}

// checkOutboundStock is the optimistic pre-check; it takes no locks.
func checkOutboundStock(ctx context.Context, productId int, quantity int) error {
	product, err := GetProduct(ctx, productId)
	if err != nil {
		return err
	}
	if product.Quantity < quantity {
		return &StockError{
			Kind:      ErrInsufficientStock,
			ProductId: product.ID,
			Sku:       product.Sku,
			Available: product.Quantity,
			Requested: quantity,
		}
	}
	return nil
}

func updateOutbound(ctx context.Context, id int, input *UpdateOutboundInput, actorId *int, requirePending bool) (outbound *Outbound, err error) {
	ctx, span := startSpan(ctx, "UpdateOutbound", attribute.Int("outbound.id", id))
	defer func() { endSpan(span, err) }()

	if err = utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}

	current, err := GetOutbound(ctx, id)
	if err != nil {
		return nil, err
	}
	target := ShipmentStatus("")
	if input.Status != nil {
		target = *input.Status
	}
	if requirePending {
		if err = requirePendingOutbound(current.Status, target); err != nil {
			return nil, err
		}
	}
	if input.Status != nil {
		if err = ValidateShipmentTransition("outbound", current.Status, *input.Status); err != nil {
			return nil, err
		}
	}
	if input.CustomerId != nil {
		if _, err = GetCustomer(ctx, *input.CustomerId); err != nil {
			return nil, err
		}
	}
	productId := current.ProductId
	if input.ProductId != nil {
		productId = *input.ProductId
		if _, err = validateOutboundProduct(ctx, productId); err != nil {
			return nil, err
		}
	}
	quantity := current.Quantity
	if input.Quantity != nil {
		quantity = *input.Quantity
	}
	if input.Status != nil && IsCompletionEdge(current.Status, *input.Status) {
		if err = checkOutboundStock(ctx, productId, quantity); err != nil {
			return nil, err
		}
	}

	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stored, err := utils.FetchModelForUpdate[Outbound](tx, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			err = fmt.Errorf("%w: outbound #%d", ErrReferenceNotFound, id)
		}
		return nil, err
	}
	oldStatus := stored.Status
	newStatus := oldStatus
	if input.Status != nil {
		newStatus = *input.Status
	}
	// re-check against the locked row; a concurrent save may have moved it
	if requirePending {
		if err = requirePendingOutbound(oldStatus, newStatus); err != nil {
			return nil, err
		}
	}
	if err = ValidateShipmentTransition("outbound", oldStatus, newStatus); err != nil {
		return nil, err
	}
	editsLine := input.CustomerId != nil || input.ProductId != nil || input.Quantity != nil
	if editsLine && oldStatus != ShipmentStatusPending {
		err = fmt.Errorf("%w: customer, product and quantity can only be changed while the outbound is pending", ErrInvalidTransition)
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.CustomerId != nil {
		updates["customer_id"] = *input.CustomerId
	}
	if input.ProductId != nil {
		updates["product_id"] = *input.ProductId
		stored.ProductId = *input.ProductId
	}
	if input.Quantity != nil {
		updates["quantity"] = *input.Quantity
		stored.Quantity = *input.Quantity
	}
	if input.OutboundDate != nil {
		updates["outbound_date"] = *input.OutboundDate
	}
	if input.SoRef != nil {
		updates["so_ref"] = strings.TrimSpace(*input.SoRef)
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if newStatus != oldStatus {
		updates["status"] = newStatus
		if newStatus == ShipmentStatusCompleted {
			updates["completed_at"] = time.Now()
		}
	}

	stored.Status = newStatus
	entry, err := ApplyOutboundStockForStatusTransition(tx, stored, oldStatus, actorId, input.Reason)
	if err != nil {
		return nil, err
	}
	if err = queueStockEvents(tx, ReferenceTypeOutbound, id, entry); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		res := tx.Model(&Outbound{}).Where("id = ? AND status = ?", id, oldStatus).Updates(updates)
		if err = res.Error; err != nil {
			err = translateDBError(err)
			return nil, err
		}
		if newStatus != oldStatus && res.RowsAffected != 1 {
			err = fmt.Errorf("%w: outbound #%d changed concurrently", ErrInvalidTransition, id)
			return nil, err
		}
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetOutbound(ctx, id)
}

// ApplyOutboundStockForStatusTransition deducts an outbound's quantity on the edge into
// COMPLETED and returns the ledger entry, or nil when the save is not that edge. It runs
// after the optimistic check passed, so a stock shortage found here under the row lock is
// a StockConflict. The caller owns tx.
func ApplyOutboundStockForStatusTransition(tx *gorm.DB, outbound *Outbound, oldStatus ShipmentStatus, actorId *int, note string) (*InventoryLog, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx is nil")
	}
	if outbound == nil {
		return nil, fmt.Errorf("outbound is nil")
	}
	if !IsCompletionEdge(oldStatus, outbound.Status) {
		return nil, nil
	}

	entry, err := applyInventoryChange(tx, outbound.ProductId, -outbound.Quantity, actorId, OutboundCompletionReason(outbound.ID, note))
	if err != nil {
		var stockErr *StockError
		if errors.As(err, &stockErr) && errors.Is(err, ErrInsufficientStock) {
			conflict := *stockErr
			conflict.Kind = ErrStockConflict
			return nil, &conflict
		}
		return nil, err
	}
	return entry, nil
}

func GetOutbound(ctx context.Context, id int) (*Outbound, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	var outbound Outbound
	err := db.WithContext(ctx).Preload("Customer").Preload("Product").First(&outbound, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: outbound #%d", ErrReferenceNotFound, id)
		}
		return nil, err
	}
	return &outbound, nil
}

func ListOutbounds(ctx context.Context, filter OutboundFilter) ([]*Outbound, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	dbCtx := db.WithContext(ctx).Model(&Outbound{})
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.CustomerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", filter.CustomerId)
	}
	if filter.ProductId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", filter.ProductId)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*Outbound
	err := dbCtx.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&results).Error
	return results, err
}
