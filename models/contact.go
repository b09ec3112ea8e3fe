package models

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

// NewContact is the create/update input shared by suppliers and customers.
type NewContact struct {
	Name          string `json:"name" validate:"required,max=255"`
	ContactPerson string `json:"contact_person" validate:"max=255"`
	Email         string `json:"email" validate:"required,email,max=255"`
	Phone         string `json:"phone" validate:"max=30"`
	Address       string `json:"address"`
}

func (input *NewContact) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.ContactPerson = strings.TrimSpace(input.ContactPerson)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Phone = strings.TrimSpace(input.Phone)

	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRow, utils.DescribeValidationErrors(err))
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, config.PhoneRegion()); err != nil {
			return fmt.Errorf("%w: phone %s", ErrInvalidRow, err.Error())
		}
	}
	return nil
}

func (input *NewContact) updates() map[string]interface{} {
	return map[string]interface{}{
		"name":           input.Name,
		"contact_person": input.ContactPerson,
		"email":          input.Email,
		"phone":          input.Phone,
		"address":        input.Address,
	}
}
