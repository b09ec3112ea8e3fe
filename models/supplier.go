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

type Supplier struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	ContactPerson string    `gorm:"size:255" json:"contact_person"`
	Email         string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone         string    `gorm:"size:30" json:"phone"`
	Address       string    `gorm:"type:text" json:"address"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateSupplier(ctx context.Context, input *NewContact) (*Supplier, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := checkUnique[Supplier](ctx, "email", input.Email, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	supplier := Supplier{
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
	}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewContact) (*Supplier, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := GetSupplier(ctx, id); err != nil {
		return nil, err
	}
	if err := checkUnique[Supplier](ctx, "email", input.Email, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Supplier{}).Where("id = ?", id).Updates(input.updates()).Error; err != nil {
		return nil, translateDBError(err)
	}
	return GetSupplier(ctx, id)
}

// DeleteSupplier refuses to remove a supplier that shipments still reference.
func DeleteSupplier(ctx context.Context, id int) (*Supplier, error) {
	supplier, err := GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[Inbound](ctx, "supplier_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: supplier #%d has %d inbound shipment(s)", ErrInUse, id, count)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Supplier{}, id).Error; err != nil {
		return nil, translateDBError(err)
	}
	return supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	supplier, err := utils.FetchModel[Supplier](ctx, id)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, fmt.Errorf("%w: supplier #%d", ErrReferenceNotFound, id)
	}
	return supplier, err
}

func GetSupplierByEmail(ctx context.Context, email string) (*Supplier, error) {
	db := config.GetDB()
	var supplier Supplier
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&supplier).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: supplier with email %q", ErrReferenceNotFound, email)
		}
		return nil, err
	}
	return &supplier, nil
}

func ListSuppliers(ctx context.Context, search string, limit int, offset int) ([]*Supplier, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Supplier{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR email LIKE ? OR contact_person LIKE ?", like, like, like)
	}
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*Supplier
	err := dbCtx.Order("name ASC, id ASC").Limit(limit).Offset(offset).Find(&results).Error
	return results, err
}
