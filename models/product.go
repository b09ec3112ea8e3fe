package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

const DefaultLowStockThreshold = 10

type Product struct {
	ID                int       `gorm:"primary_key" json:"id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	Sku               string    `gorm:"size:100;not null;uniqueIndex" json:"sku"`
	Tags              string    `gorm:"size:255" json:"tags"`
	Description       string    `gorm:"type:text" json:"description"`
	Category          string    `gorm:"size:100;index" json:"category"`
	Quantity          int       `gorm:"not null;default:0;check:chk_products_quantity,quantity >= 0" json:"quantity"`
	LowStockThreshold int       `gorm:"not null" json:"low_stock_threshold"`
	IsArchived        bool      `gorm:"not null;index" json:"is_archived"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name              string `json:"name" validate:"required,max=255"`
	Sku               string `json:"sku" validate:"required,max=100"`
	Tags              string `json:"tags" validate:"max=255"`
	Description       string `json:"description"`
	Category          string `json:"category" validate:"max=100"`
	Quantity          int    `json:"quantity" validate:"gte=0"`
	LowStockThreshold *int   `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

// UpdateProductInput changes only the fields that are set. The sku never changes.
type UpdateProductInput struct {
	Name              *string `json:"name" validate:"omitempty,min=1,max=255"`
	Tags              *string `json:"tags" validate:"omitempty,max=255"`
	Description       *string `json:"description"`
	Category          *string `json:"category" validate:"omitempty,max=100"`
	Quantity          *int    `json:"quantity" validate:"omitempty,gte=0"`
	LowStockThreshold *int    `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Reason            string  `json:"reason" validate:"max=200"`
}

type ProductFilter struct {
	Category string
	Archived *bool
	Search   string
	Limit    int
	Offset   int
}

func (p Product) IsLowStock() bool {
	return !p.IsArchived && p.Quantity <= p.LowStockThreshold
}

func (input *NewProduct) trim() {
	input.Name = strings.TrimSpace(input.Name)
	input.Sku = strings.TrimSpace(input.Sku)
	input.Tags = strings.TrimSpace(input.Tags)
	input.Category = strings.TrimSpace(input.Category)
}

func CreateProduct(ctx context.Context, input *NewProduct, actorId *int) (*Product, error) {
	input.trim()
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if err := checkUnique[Product](ctx, "sku", input.Sku, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:              input.Name,
		Sku:               input.Sku,
		Tags:              input.Tags,
		Description:       input.Description,
		Category:          input.Category,
		LowStockThreshold: utils.DereferencePtr(input.LowStockThreshold, DefaultLowStockThreshold),
	}

	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, translateDBError(err)
	}
	if input.Quantity > 0 {
		entry, err := applyInventoryChange(tx, product.ID, input.Quantity, actorId, "Initial stock")
		if err == nil {
			err = queueStockEvents(tx, ReferenceTypeProduct, product.ID, entry)
		}
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		product.Quantity = entry.NewQuantity
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (input *UpdateProductInput) trim() {
	for _, field := range []*string{input.Name, input.Tags, input.Category} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

func UpdateProduct(ctx context.Context, id int, input *UpdateProductInput, actorId *int) (*Product, error) {
	input.trim()
	if err := utils.ValidateStruct(input); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}

	tx, err := beginTx(ctx)
	if err != nil {
		return nil, err
	}
	product, err := lockProduct(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Tags != nil {
		updates["tags"] = *input.Tags
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *input.LowStockThreshold
	}
	if len(updates) > 0 {
		if err := tx.Model(&Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, translateDBError(err)
		}
	}

	if input.Quantity != nil {
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = "Manual adjustment"
		}
		entry, _, err := setInventoryLevel(tx, product.ID, *input.Quantity, actorId, reason)
		if err == nil {
			err = queueStockEvents(tx, ReferenceTypeProduct, product.ID, entry)
		}
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetProduct(ctx, id)
}

// ArchiveProduct hides a product from active listings. Products are never hard-deleted.
func ArchiveProduct(ctx context.Context, id int, archived bool) (*Product, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	res := db.WithContext(ctx).Model(&Product{}).Where("id = ?", id).Update("is_archived", archived)
	if res.Error != nil {
		return nil, res.Error
	}
	return GetProduct(ctx, id)
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, fmt.Errorf("%w: product #%d", ErrReferenceNotFound, id)
	}
	return product, err
}

func GetProductBySku(ctx context.Context, sku string) (*Product, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	var product Product
	err := db.WithContext(ctx).Where("sku = ?", strings.TrimSpace(sku)).Take(&product).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: product with sku %q", ErrReferenceNotFound, sku)
		}
		return nil, err
	}
	return &product, nil
}

func ListProducts(ctx context.Context, filter ProductFilter) ([]*Product, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	dbCtx := db.WithContext(ctx).Model(&Product{})
	if filter.Category != "" {
		dbCtx = dbCtx.Where("category = ?", filter.Category)
	}
	if filter.Archived != nil {
		dbCtx = dbCtx.Where("is_archived = ?", *filter.Archived)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR sku LIKE ? OR category LIKE ? OR tags LIKE ?", like, like, like, like)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*Product
	err := dbCtx.Order("name ASC, id ASC").Limit(limit).Offset(filter.Offset).Find(&results).Error
	return results, err
}

// GetLowStockProducts lists active products at or below their threshold, lowest stock first.
func GetLowStockProducts(ctx context.Context) ([]*Product, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	var results []*Product
	err := db.WithContext(ctx).
		Where("is_archived = ? AND quantity <= low_stock_threshold", false).
		Order("quantity ASC, id ASC").
		Find(&results).Error
	return results, err
}
