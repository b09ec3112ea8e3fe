package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type Inbound struct {
	ID          int            `gorm:"primary_key" json:"id"`
	SupplierId  int            `gorm:"not null;index" json:"supplier_id"`
	Supplier    *Supplier      `gorm:"foreignKey:SupplierId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"supplier,omitempty"`
	InboundDate time.Time      `gorm:"type:date;not null" json:"inbound_date"`
	Status      ShipmentStatus `gorm:"type:enum('PENDING','COMPLETED','CANCELLED');not null;default:PENDING;index" json:"status"`
	Notes       string         `gorm:"type:text" json:"notes"`
	CreatedById *int           `gorm:"index" json:"created_by_id"`
	CreatedBy   *User          `gorm:"foreignKey:CreatedById;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	CompletedAt *time.Time     `json:"completed_at"`
	Items       []InboundItem  `gorm:"foreignKey:InboundId;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// InboundItem is one product line; a shipment holds at most one line per product.
type InboundItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InboundId int             `gorm:"not null;uniqueIndex:idx_inbound_items_inbound_product,priority:1" json:"inbound_id"`
	ProductId int             `gorm:"not null;index;uniqueIndex:idx_inbound_items_inbound_product,priority:2" json:"product_id"`
	Product   *Product        `gorm:"foreignKey:ProductId;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Quantity  int             `gorm:"not null;check:chk_inbound_items_quantity,quantity > 0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"unit_price"`
}

type NewInboundItem struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type NewInbound struct {
	SupplierId  int              `json:"supplier_id" validate:"required,gt=0"`
	InboundDate time.Time        `json:"inbound_date" validate:"required"`
	Notes       string           `json:"notes"`
	Items       []NewInboundItem `json:"items" validate:"dive"`
}

// UpdateInboundInput changes only the fields that are set.
// Items replace the whole item list and are accepted only while the shipment is PENDING.
type UpdateInboundInput struct {
	SupplierId  *int              `json:"supplier_id" validate:"omitempty,gt=0"`
	InboundDate *time.Time        `json:"inbound_date"`
	Notes       *string           `json:"notes"`
	Status      *ShipmentStatus   `json:"status"`
	Items       *[]NewInboundItem `json:"items" validate:"omitempty,dive"`
	Reason      string            `json:"reason" validate:"max=150"`
}

type InboundFilter struct {
	Status     ShipmentStatus
	SupplierId int
	Limit      int
	Offset     int
}

func InboundCompletionReason(inboundId int, note string) string {
	reason := fmt.Sprintf("Inbound shipment #%d completed.", inboundId)
	if note = strings.TrimSpace(note); note != "" {
		reason += " " + note
	}
	return reason
}

// validateInboundItems checks the line invariants and that every product exists and is active.
func validateInboundItems(ctx context.Context, items []NewInboundItem) error {
	seen := make(map[int]bool, len(items))
	ids := make([]int, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidRow)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unit_price cannot be negative", ErrInvalidRow)
		}
		if seen[item.ProductId] {
			return fmt.Errorf("%w: product #%d appears more than once", ErrInvalidRow, item.ProductId)
		}
		seen[item.ProductId] = true
		ids = append(ids, item.ProductId)
	}
	if len(ids) == 0 {
		return nil
	}

	db := config.GetDB()
	if db == nil {
		return utils.ErrorServiceNotReady
	}
	var products []Product
	if err := db.WithContext(ctx).Select("id", "sku", "is_archived").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return err
	}
	found := make(map[int]Product, len(products))
	for _, p := range products {
		found[p.ID] = p
	}
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: product #%d", ErrReferenceNotFound, id)
		}
		if p.IsArchived {
			return fmt.Errorf("%w: product %s is archived", ErrInvalidRow, p.Sku)
		}
	}
	return nil
}

func toInboundItems(items []NewInboundItem) []InboundItem {
	out := make([]InboundItem, 0, len(items))
	for _, item := range items {
		out = append(out, InboundItem{
			ProductId: item.ProductId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.Round(2),
		})
	}
	return out
}

func CreateInbound(ctx context.Context, input *NewInbound, actorId *int) (*Inbound, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: supplier #%d", ErrReferenceNotFound, input.SupplierId)
		}
		return nil, err
	}
	if err := validateInboundItems(ctx, input.Items); err != nil {
		return nil, err
	}

	inbound := Inbound{
		SupplierId:  input.SupplierId,
		InboundDate: input.InboundDate,
		Status:      ShipmentStatusPending,
		Notes:       input.Notes,
		CreatedById: actorId,
		Items:       toInboundItems(input.Items),
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	if err := db.WithContext(ctx).Create(&inbound).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &inbound, nil
}

// UpdateInbound is the generic save path. A save whose stored status is not COMPLETED
// and whose new status is COMPLETED applies the items to inventory in the same transaction.
func UpdateInbound(ctx context.Context, id int, input *UpdateInboundInput, actorId *int) (*Inbound, error) {
	return updateInbound(ctx, id, input, actorId, false)
}

// CompleteInbound requires the shipment to be PENDING.
func CompleteInbound(ctx context.Context, id int, actorId *int, note string) (*Inbound, error) {
	status := ShipmentStatusCompleted
	return updateInbound(ctx, id, &UpdateInboundInput{Status: &status, Reason: note}, actorId, true)
}

// CancelInbound requires the shipment to be PENDING and has no inventory effect.
func CancelInbound(ctx context.Context, id int, actorId *int) (*Inbound, error) {
	status := ShipmentStatusCancelled
	return updateInbound(ctx, id, &UpdateInboundInput{Status: &status}, actorId, true)
}

func updateInbound(ctx context.Context, id int, input *UpdateInboundInput, actorId *int, requirePending bool) (inbound *Inbound, err error) {
	ctx, span := startSpan(ctx, "UpdateInbound", attribute.Int("inbound.id", id))
	defer func() { endSpan(span, err) }()

	if err = utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if input.Items != nil {
		if err = validateInboundItems(ctx, *input.Items); err != nil {
			return nil, err
		}
	}
	if input.SupplierId != nil {
		if err = utils.ValidateResourceId[Supplier](ctx, *input.SupplierId); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				err = fmt.Errorf("%w: supplier #%d", ErrReferenceNotFound, *input.SupplierId)
			}
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

	stored, err := utils.FetchModelForUpdate[Inbound](tx, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			err = fmt.Errorf("%w: inbound #%d", ErrReferenceNotFound, id)
		}
		return nil, err
	}
	oldStatus := stored.Status
	newStatus := oldStatus
	if input.Status != nil {
		newStatus = *input.Status
	}
	if requirePending && oldStatus != ShipmentStatusPending {
		if oldStatus == ShipmentStatusCompleted {
			err = fmt.Errorf("%w: inbound is already completed", ErrInvalidTransition)
		} else {
			err = fmt.Errorf("%w: inbound is cancelled", ErrInvalidTransition)
		}
		return nil, err
	}
	if err = ValidateShipmentTransition("inbound", oldStatus, newStatus); err != nil {
		return nil, err
	}
	if input.Items != nil && oldStatus != ShipmentStatusPending {
		err = fmt.Errorf("%w: items can only be changed while the inbound is pending", ErrInvalidTransition)
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.SupplierId != nil {
		updates["supplier_id"] = *input.SupplierId
	}
	if input.InboundDate != nil {
		updates["inbound_date"] = *input.InboundDate
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

	if input.Items != nil {
		if err = tx.Where("inbound_id = ?", id).Delete(&InboundItem{}).Error; err != nil {
			return nil, err
		}
		items := toInboundItems(*input.Items)
		for i := range items {
			items[i].InboundId = id
		}
		if len(items) > 0 {
			if err = tx.Create(&items).Error; err != nil {
				err = translateDBError(err)
				return nil, err
			}
		}
	}
	if len(updates) > 0 {
		if err = tx.Model(&Inbound{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			err = translateDBError(err)
			return nil, err
		}
	}

	stored.Status = newStatus
	if err = tx.Where("inbound_id = ?", id).Order("product_id ASC").Find(&stored.Items).Error; err != nil {
		return nil, err
	}
	entries, err := ApplyInboundStockForStatusTransition(tx, stored, oldStatus, actorId, input.Reason)
	if err != nil {
		return nil, err
	}
	if err = queueStockEvents(tx, ReferenceTypeInbound, id, entries...); err != nil {
		return nil, err
	}

	if err = tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetInbound(ctx, id)
}

// ApplyInboundStockForStatusTransition applies an inbound shipment's items to inventory.
//
// Only the save that moves the shipment into COMPLETED has an effect; re-saving a
// completed shipment never does. Items are applied one by one in product-id order, and the
// ledger entries written are returned in that order. The caller owns tx and must roll it
// back on error so the status write is undone as well.
func ApplyInboundStockForStatusTransition(tx *gorm.DB, inbound *Inbound, oldStatus ShipmentStatus, actorId *int, note string) ([]*InventoryLog, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx is nil")
	}
	if inbound == nil {
		return nil, fmt.Errorf("inbound is nil")
	}
	if !IsCompletionEdge(oldStatus, inbound.Status) {
		return nil, nil
	}

	if len(inbound.Items) == 0 {
		if config.RejectEmptyInboundCompletion() {
			return nil, fmt.Errorf("%w: inbound #%d has no items", ErrInvalidTransition, inbound.ID)
		}
		config.GetLogger().WithFields(logrus.Fields{
			"module":     "inbound.go",
			"funcName":   "ApplyInboundStockForStatusTransition",
			"inbound_id": inbound.ID,
		}).Warn("inbound completed without items; no inventory change")
		return nil, nil
	}

	items := make([]InboundItem, len(inbound.Items))
	copy(items, inbound.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].ProductId < items[j].ProductId })

	reason := InboundCompletionReason(inbound.ID, note)
	entries := make([]*InventoryLog, 0, len(items))
	for _, item := range items {
		entry, err := applyInventoryChange(tx, item.ProductId, item.Quantity, actorId, reason)
		if err != nil {
			return nil, fmt.Errorf("inbound #%d, product #%d: %w", inbound.ID, item.ProductId, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func GetInbound(ctx context.Context, id int) (*Inbound, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	var inbound Inbound
	err := db.WithContext(ctx).
		Preload("Supplier").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC") }).
		First(&inbound, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: inbound #%d", ErrReferenceNotFound, id)
		}
		return nil, err
	}
	return &inbound, nil
}

func ListInbounds(ctx context.Context, filter InboundFilter) ([]*Inbound, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	dbCtx := db.WithContext(ctx).Model(&Inbound{}).Preload("Items")
	if filter.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filter.Status)
	}
	if filter.SupplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", filter.SupplierId)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*Inbound
	err := dbCtx.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&results).Error
	return results, err
}
