package models

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func TestParseShipmentStatus(t *testing.T) {
	for in, want := range map[string]ShipmentStatus{
		"pending":     ShipmentStatusPending,
		" Completed ": ShipmentStatusCompleted,
		"CANCELLED":   ShipmentStatusCancelled,
	} {
		got, err := ParseShipmentStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseShipmentStatus(%q) expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseShipmentStatus("shipped"); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for unknown status, got %v", err)
	}
}

func TestIsCompletionEdge(t *testing.T) {
	cases := []struct {
		stored, next ShipmentStatus
		expected     bool
	}{
		{ShipmentStatusPending, ShipmentStatusCompleted, true},
		{ShipmentStatusCancelled, ShipmentStatusCompleted, true},
		{ShipmentStatusCompleted, ShipmentStatusCompleted, false},
		{ShipmentStatusPending, ShipmentStatusPending, false},
		{ShipmentStatusPending, ShipmentStatusCancelled, false},
		{ShipmentStatusCompleted, ShipmentStatusPending, false},
	}
	for _, tc := range cases {
		if got := IsCompletionEdge(tc.stored, tc.next); got != tc.expected {
			t.Fatalf("IsCompletionEdge(%s, %s) expected %v, got %v", tc.stored, tc.next, tc.expected, got)
		}
	}
}

func TestValidateShipmentTransition(t *testing.T) {
	allowed := [][2]ShipmentStatus{
		{ShipmentStatusPending, ShipmentStatusPending},
		{ShipmentStatusPending, ShipmentStatusCompleted},
		{ShipmentStatusPending, ShipmentStatusCancelled},
		{ShipmentStatusCompleted, ShipmentStatusCompleted},
		{ShipmentStatusCancelled, ShipmentStatusCancelled},
	}
	for _, tr := range allowed {
		if err := ValidateShipmentTransition("inbound", tr[0], tr[1]); err != nil {
			t.Fatalf("%s -> %s expected allowed, got %v", tr[0], tr[1], err)
		}
	}

	rejected := [][2]ShipmentStatus{
		{ShipmentStatusCompleted, ShipmentStatusPending},
		{ShipmentStatusCompleted, ShipmentStatusCancelled},
		{ShipmentStatusCancelled, ShipmentStatusPending},
		{ShipmentStatusCancelled, ShipmentStatusCompleted},
		{ShipmentStatusPending, ShipmentStatus("SHIPPED")},
	}
	for _, tr := range rejected {
		if err := ValidateShipmentTransition("outbound", tr[0], tr[1]); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s expected ErrInvalidTransition, got %v", tr[0], tr[1], err)
		}
	}

	// A status is terminal exactly when every move out of it is rejected.
	all := []ShipmentStatus{ShipmentStatusPending, ShipmentStatusCompleted, ShipmentStatusCancelled}
	for _, from := range all {
		blocked := true
		for _, to := range all {
			if to != from && ValidateShipmentTransition("inbound", from, to) == nil {
				blocked = false
			}
		}
		if from.IsTerminal() != blocked {
			t.Fatalf("%s: IsTerminal=%v but outgoing moves blocked=%v", from, from.IsTerminal(), blocked)
		}
	}
}

func TestCompletionReasons(t *testing.T) {
	if got := InboundCompletionReason(12, ""); got != "Inbound shipment #12 completed." {
		t.Fatalf("unexpected inbound reason %q", got)
	}
	if got := InboundCompletionReason(12, "  dock 3 "); got != "Inbound shipment #12 completed. dock 3" {
		t.Fatalf("unexpected inbound reason with note %q", got)
	}
	if got := OutboundCompletionReason(7, ""); got != "Outbound #7 completed." {
		t.Fatalf("unexpected outbound reason %q", got)
	}
	if got := OutboundCompletionReason(7, "SO-1"); got != "Outbound #7 completed. SO-1" {
		t.Fatalf("unexpected outbound reason with note %q", got)
	}
}

func TestHasPermission(t *testing.T) {
	cases := []struct {
		role     UserRole
		module   PermissionModule
		action   PermissionAction
		expected bool
	}{
		{UserRoleAdmin, PermissionModuleUser, PermissionActionDelete, true},
		{UserRoleAdmin, PermissionModuleInventory, PermissionActionUpdate, true},
		{UserRoleManager, PermissionModuleOutbound, PermissionActionDelete, true},
		{UserRoleManager, PermissionModuleUser, PermissionActionRead, true},
		{UserRoleManager, PermissionModuleUser, PermissionActionCreate, false},
		{UserRoleOperator, PermissionModuleInbound, PermissionActionCreate, true},
		{UserRoleOperator, PermissionModuleInbound, PermissionActionUpdate, false},
		{UserRoleOperator, PermissionModuleUser, PermissionActionRead, false},
		{UserRole("Guest"), PermissionModuleInventory, PermissionActionRead, false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.role, tc.module, tc.action); got != tc.expected {
			t.Fatalf("HasPermission(%s, %s, %s) expected %v, got %v", tc.role, tc.module, tc.action, tc.expected, got)
		}
	}
}

func TestAllowedModules(t *testing.T) {
	modules := AllowedModules(UserRoleOperator)
	if len(modules) != 4 {
		t.Fatalf("expected 4 modules for Operator, got %d", len(modules))
	}
	for _, m := range modules {
		if m.ModuleName == PermissionModuleUser {
			t.Fatalf("Operator must not see the USER module")
		}
		if m.AllowedActions != "CREATE;READ" {
			t.Fatalf("unexpected Operator actions on %s: %s", m.ModuleName, m.AllowedActions)
		}
	}
	if got := len(AllowedModules(UserRoleAdmin)); got != 5 {
		t.Fatalf("expected 5 modules for Admin, got %d", got)
	}
	if got := AllowedModules(UserRole("Guest")); len(got) != 0 {
		t.Fatalf("expected no modules for unknown role, got %v", got)
	}
}

func TestStockError(t *testing.T) {
	insufficient := &StockError{Kind: ErrInsufficientStock, ProductId: 3, Sku: "SKU-3", Available: 2, Requested: 5}
	if !errors.Is(insufficient, ErrInsufficientStock) || errors.Is(insufficient, ErrStockConflict) {
		t.Fatalf("insufficient stock error has the wrong kind")
	}
	if insufficient.Error() != "Not enough stock for SKU-3. Available: 2, Requested: 5" {
		t.Fatalf("unexpected message %q", insufficient.Error())
	}

	conflict := &StockError{Kind: ErrStockConflict, ProductId: 3, Available: 0, Requested: 5}
	if !errors.Is(conflict, ErrStockConflict) {
		t.Fatalf("conflict error has the wrong kind")
	}
	if !strings.Contains(conflict.Error(), "product #3") {
		t.Fatalf("expected product id fallback in %q", conflict.Error())
	}
}

func TestTranslateDBError(t *testing.T) {
	cases := []struct {
		number   uint16
		expected error
	}{
		{1062, ErrDuplicate},
		{1451, ErrInUse},
		{1452, ErrReferenceNotFound},
		{3819, ErrInsufficientStock},
	}
	for _, tc := range cases {
		err := translateDBError(&mysql.MySQLError{Number: tc.number, Message: "x"})
		if !errors.Is(err, tc.expected) {
			t.Fatalf("MySQL error %d expected %v, got %v", tc.number, tc.expected, err)
		}
	}
	other := errors.New("boom")
	if translateDBError(other) != other {
		t.Fatalf("expected non-MySQL errors to pass through")
	}
}

func TestApplyInventoryChange_RejectsBadInputWithoutTouchingTheRow(t *testing.T) {
	if _, err := ApplyInventoryChange(nil, 1, 0, nil, "noop"); !errors.Is(err, ErrInvalidDelta) {
		t.Fatalf("expected ErrInvalidDelta, got %v", err)
	}
	if _, err := ApplyInventoryChange(nil, 1, 5, nil, "   "); err == nil {
		t.Fatalf("expected an error for an empty reason")
	}
	if _, _, err := SetInventoryLevel(nil, 1, -1, nil, "count"); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for a negative target, got %v", err)
	}
}

func TestShipmentStockTransitions_OnlyTheCompletionEdgeMovesStock(t *testing.T) {
	// a non-edge save must return before the transaction is used
	tx := &gorm.DB{}
	inbound := &Inbound{ID: 1, Status: ShipmentStatusCompleted, Items: []InboundItem{{ProductId: 1, Quantity: 5}}}
	if entries, err := ApplyInboundStockForStatusTransition(tx, inbound, ShipmentStatusCompleted, nil, ""); err != nil || len(entries) != 0 {
		t.Fatalf("re-saving a completed inbound must be a no-op, got %d entries (%v)", len(entries), err)
	}
	inbound.Status = ShipmentStatusCancelled
	if entries, err := ApplyInboundStockForStatusTransition(tx, inbound, ShipmentStatusPending, nil, ""); err != nil || len(entries) != 0 {
		t.Fatalf("cancelling must be a no-op, got %d entries (%v)", len(entries), err)
	}

	outbound := &Outbound{ID: 1, ProductId: 1, Quantity: 5, Status: ShipmentStatusCompleted}
	if entry, err := ApplyOutboundStockForStatusTransition(tx, outbound, ShipmentStatusCompleted, nil, ""); err != nil || entry != nil {
		t.Fatalf("re-saving a completed outbound must be a no-op, got %+v (%v)", entry, err)
	}

	if _, err := ApplyInboundStockForStatusTransition(nil, inbound, ShipmentStatusPending, nil, ""); err == nil {
		t.Fatalf("expected an error for a nil transaction")
	}
	if _, err := ApplyOutboundStockForStatusTransition(tx, nil, ShipmentStatusPending, nil, ""); err == nil {
		t.Fatalf("expected an error for a nil outbound")
	}
}

func TestQueueStockEvents_DisabledWithoutTopic(t *testing.T) {
	t.Setenv("PUBSUB_TOPIC", "")
	// the transaction is never touched while stock events are off
	if err := queueStockEvents(nil, ReferenceTypeInbound, 1, &InventoryLog{ID: 1, ProductId: 1, QuantityChange: 5, NewQuantity: 5}); err != nil {
		t.Fatalf("expected no-op while disabled, got %v", err)
	}
}

func TestUpdateProduct_BlankNameIsRejectedAfterTrimming(t *testing.T) {
	name := "   "
	_, err := UpdateProduct(context.Background(), 1, &UpdateProductInput{Name: &name}, nil)
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for a blank name, got %v", err)
	}
}

func TestWorkflows_ReportServiceNotReadyWithoutStorage(t *testing.T) {
	ctx := context.Background()
	name := "Widget"
	if _, err := UpdateProduct(ctx, 1, &UpdateProductInput{Name: &name}, nil); !errors.Is(err, utils.ErrorServiceNotReady) {
		t.Fatalf("UpdateProduct expected ErrorServiceNotReady, got %v", err)
	}
	if _, err := CompleteInbound(ctx, 1, nil, ""); !errors.Is(err, utils.ErrorServiceNotReady) {
		t.Fatalf("CompleteInbound expected ErrorServiceNotReady, got %v", err)
	}
	if _, err := CompleteOutbound(ctx, 1, nil, ""); !errors.Is(err, utils.ErrorServiceNotReady) {
		t.Fatalf("CompleteOutbound expected ErrorServiceNotReady, got %v", err)
	}
	if _, err := ApplyInventoryChangeTx(ctx, 1, 5, nil, "count"); !errors.Is(err, utils.ErrorServiceNotReady) {
		t.Fatalf("ApplyInventoryChangeTx expected ErrorServiceNotReady, got %v", err)
	}
	if _, err := ImportProducts(ctx, ImportFile{Name: "p.csv", Data: []byte("sku,name\nA-1,Widget\n")}, nil); !errors.Is(err, utils.ErrorServiceNotReady) {
		t.Fatalf("ImportProducts expected ErrorServiceNotReady, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("expected short strings unchanged, got %q", got)
	}
}
