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

type Customer struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	ContactPerson string    `gorm:"size:255" json:"contact_person"`
	Email         string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone         string    `gorm:"size:30" json:"phone"`
	Address       string    `gorm:"type:text" json:"address"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateCustomer(ctx context.Context, input *NewContact) (*Customer, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := checkUnique[Customer](ctx, "email", input.Email, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	customer := Customer{
		Name:          input.Name,
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewContact) (*Customer, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	if err := checkUnique[Customer](ctx, "email", input.Email, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Customer{}).Where("id = ?", id).Updates(input.updates()).Error; err != nil {
		return nil, translateDBError(err)
	}
	return GetCustomer(ctx, id)
}

// DeleteCustomer refuses to remove a customer that shipments still reference.
func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := utils.ResourceCountWhere[Outbound](ctx, "customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: customer #%d has %d outbound shipment(s)", ErrInUse, id, count)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Customer{}, id).Error; err != nil {
		return nil, translateDBError(err)
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := utils.FetchModel[Customer](ctx, id)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, fmt.Errorf("%w: customer #%d", ErrReferenceNotFound, id)
	}
	return customer, err
}

func GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&customer).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: customer with email %q", ErrReferenceNotFound, email)
		}
		return nil, err
	}
	return &customer, nil
}

func ListCustomers(ctx context.Context, search string, limit int, offset int) ([]*Customer, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Customer{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + search + "%"
		dbCtx = dbCtx.Where("name LIKE ? OR email LIKE ? OR contact_person LIKE ?", like, like, like)
	}
	if limit <= 0 {
		limit = config.DefaultListLimit
	}
	var results []*Customer
	err := dbCtx.Order("name ASC, id ASC").Limit(limit).Offset(offset).Find(&results).Error
	return results, err
}
