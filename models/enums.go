package models

import (
	"fmt"
	"strings"
)

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "PENDING"
	ShipmentStatusCompleted ShipmentStatus = "COMPLETED"
	ShipmentStatusCancelled ShipmentStatus = "CANCELLED"
)

func (s ShipmentStatus) IsValid() bool {
	switch s {
	case ShipmentStatusPending, ShipmentStatusCompleted, ShipmentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status change is permitted.
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusCompleted || s == ShipmentStatusCancelled
}

// ParseShipmentStatus accepts the status name in any case.
func ParseShipmentStatus(raw string) (ShipmentStatus, error) {
	s := ShipmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: invalid shipment status %q", ErrInvalidRow, raw)
	}
	return s, nil
}

// ValidateShipmentTransition checks a status edit of a stored shipment.
// Same-status saves are always allowed; leaving COMPLETED or CANCELLED is not.
func ValidateShipmentTransition(kind string, from ShipmentStatus, to ShipmentStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to || !from.IsTerminal() {
		return nil
	}
	if from == ShipmentStatusCompleted {
		return fmt.Errorf("%w: %s is already completed", ErrInvalidTransition, kind)
	}
	return fmt.Errorf("%w: cannot change a cancelled %s", ErrInvalidTransition, kind)
}

// IsCompletionEdge is true only for the save that moves a shipment into COMPLETED.
func IsCompletionEdge(stored ShipmentStatus, next ShipmentStatus) bool {
	return stored != ShipmentStatusCompleted && next == ShipmentStatusCompleted
}

type UserRole string

const (
	UserRoleAdmin    UserRole = "Admin"
	UserRoleManager  UserRole = "Manager"
	UserRoleOperator UserRole = "Operator"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleOperator:
		return true
	}
	return false
}

type PermissionModule string

const (
	PermissionModuleInventory PermissionModule = "INVENTORY"
	PermissionModuleInbound   PermissionModule = "INBOUND"
	PermissionModuleOutbound  PermissionModule = "OUTBOUND"
	PermissionModuleContact   PermissionModule = "CONTACT"
	PermissionModuleUser      PermissionModule = "USER"
)

type PermissionAction string

const (
	PermissionActionCreate PermissionAction = "CREATE"
	PermissionActionRead   PermissionAction = "READ"
	PermissionActionUpdate PermissionAction = "UPDATE"
	PermissionActionDelete PermissionAction = "DELETE"
)

type HistoryAction string

const (
	HistoryActionCreate   HistoryAction = "CREATE"
	HistoryActionUpdate   HistoryAction = "UPDATE"
	HistoryActionComplete HistoryAction = "COMPLETE"
	HistoryActionCancel   HistoryAction = "CANCEL"
	HistoryActionArchive  HistoryAction = "ARCHIVE"
	HistoryActionDelete   HistoryAction = "DELETE"
	HistoryActionImport   HistoryAction = "IMPORT"
)
