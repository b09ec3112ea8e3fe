package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerMismatch is one product whose stored quantity disagrees with its ledger.
type LedgerMismatch struct {
	ProductId       int    `json:"product_id"`
	Sku             string `json:"sku"`
	Quantity        int    `json:"quantity"`
	LedgerSum       int    `json:"ledger_sum"`
	Entries         int    `json:"entries"`
	LastNewQuantity *int   `json:"last_new_quantity"`
	Problem         string `json:"problem"`
}

// ShipmentMismatch is a completed shipment whose ledger entries do not match its lines.
type ShipmentMismatch struct {
	Kind       string `json:"kind"`
	ShipmentId int    `json:"shipment_id"`
	Expected   int    `json:"expected"`
	Recorded   int    `json:"recorded"`
	Entries    int    `json:"entries"`
}

type productLedgerRow struct {
	ProductId       int
	Sku             string
	Quantity        int
	LedgerSum       int
	Entries         int
	LastNewQuantity *int
}

// CheckLedgerConsistency compares every product's quantity with the sum of its ledger
// entries and with the newest entry's snapshot.
func CheckLedgerConsistency(ctx context.Context, db *gorm.DB) ([]LedgerMismatch, error) {
	var rows []productLedgerRow
	err := db.WithContext(ctx).Raw(`
SELECT
    p.id AS product_id,
    p.sku,
    p.quantity,
    COALESCE(SUM(l.quantity_change), 0) AS ledger_sum,
    COUNT(l.id) AS entries,
    (
        SELECT l2.new_quantity FROM inventory_logs l2
        WHERE l2.product_id = p.id
        ORDER BY l2.id DESC LIMIT 1
    ) AS last_new_quantity
FROM products p
LEFT JOIN inventory_logs l ON l.product_id = p.id
GROUP BY p.id, p.sku, p.quantity
ORDER BY p.id`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return findLedgerMismatches(rows), nil
}

func findLedgerMismatches(rows []productLedgerRow) []LedgerMismatch {
	var mismatches []LedgerMismatch
	for _, r := range rows {
		var problem string
		switch {
		case r.Quantity < 0:
			problem = "negative quantity"
		case r.LedgerSum != r.Quantity:
			problem = fmt.Sprintf("ledger sums to %d", r.LedgerSum)
		case r.Entries > 0 && r.LastNewQuantity != nil && *r.LastNewQuantity != r.Quantity:
			problem = fmt.Sprintf("last entry snapshot is %d", *r.LastNewQuantity)
		default:
			continue
		}
		mismatches = append(mismatches, LedgerMismatch{
			ProductId:       r.ProductId,
			Sku:             r.Sku,
			Quantity:        r.Quantity,
			LedgerSum:       r.LedgerSum,
			Entries:         r.Entries,
			LastNewQuantity: r.LastNewQuantity,
			Problem:         problem,
		})
	}
	return mismatches
}

var (
	inboundReasonPattern  = regexp.MustCompile(`^Inbound shipment #(\d+) completed\.`)
	outboundReasonPattern = regexp.MustCompile(`^Outbound #(\d+) completed\.`)
)

// shipmentIdFromReason extracts the shipment id a completion entry was written for.
func shipmentIdFromReason(pattern *regexp.Regexp, reason string) (int, bool) {
	m := pattern.FindStringSubmatch(reason)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

type ledgerTotal struct {
	sum     int
	entries int
}

func totalsByShipment(ctx context.Context, db *gorm.DB, like string, pattern *regexp.Regexp) (map[int]ledgerTotal, error) {
	var logs []models.InventoryLog
	if err := db.WithContext(ctx).Select("id", "quantity_change", "reason").Where("reason LIKE ?", like).Find(&logs).Error; err != nil {
		return nil, err
	}
	totals := map[int]ledgerTotal{}
	for _, l := range logs {
		id, ok := shipmentIdFromReason(pattern, l.Reason)
		if !ok {
			continue
		}
		t := totals[id]
		t.sum += l.QuantityChange
		t.entries++
		totals[id] = t
	}
	return totals, nil
}

// CheckShipmentLedger verifies that every completed inbound was applied once per line and
// every completed outbound produced exactly one deduction. Shipments that are not
// completed must have no completion entries.
func CheckShipmentLedger(ctx context.Context, db *gorm.DB) ([]ShipmentMismatch, error) {
	var mismatches []ShipmentMismatch

	inboundTotals, err := totalsByShipment(ctx, db, "Inbound shipment #%", inboundReasonPattern)
	if err != nil {
		return nil, err
	}
	var inbounds []models.Inbound
	if err := db.WithContext(ctx).Preload("Items").Find(&inbounds).Error; err != nil {
		return nil, err
	}
	for _, in := range inbounds {
		expected, lines := 0, 0
		if in.Status == models.ShipmentStatusCompleted {
			for _, item := range in.Items {
				expected += item.Quantity
			}
			lines = len(in.Items)
		}
		got := inboundTotals[in.ID]
		if got.sum != expected || got.entries != lines {
			mismatches = append(mismatches, ShipmentMismatch{Kind: "inbound", ShipmentId: in.ID, Expected: expected, Recorded: got.sum, Entries: got.entries})
		}
	}

	outboundTotals, err := totalsByShipment(ctx, db, "Outbound #%", outboundReasonPattern)
	if err != nil {
		return nil, err
	}
	var outbounds []models.Outbound
	if err := db.WithContext(ctx).Select("id", "quantity", "status").Find(&outbounds).Error; err != nil {
		return nil, err
	}
	for _, out := range outbounds {
		expected, lines := 0, 0
		if out.Status == models.ShipmentStatusCompleted {
			expected, lines = -out.Quantity, 1
		}
		got := outboundTotals[out.ID]
		if got.sum != expected || got.entries != lines {
			mismatches = append(mismatches, ShipmentMismatch{Kind: "outbound", ShipmentId: out.ID, Expected: expected, Recorded: got.sum, Entries: got.entries})
		}
	}
	return mismatches, nil
}

// RunReconciliation runs both checks and logs every mismatch. It returns the total count.
func RunReconciliation(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (int, error) {
	products, err := CheckLedgerConsistency(ctx, db)
	if err != nil {
		return 0, err
	}
	shipments, err := CheckShipmentLedger(ctx, db)
	if err != nil {
		return 0, err
	}
	if logger != nil {
		for _, m := range products {
			logger.WithFields(logrus.Fields{
				"field":      "Reconciliation",
				"product_id": m.ProductId,
				"sku":        m.Sku,
				"quantity":   m.Quantity,
			}).Error("ledger mismatch: " + m.Problem)
		}
		for _, m := range shipments {
			logger.WithFields(logrus.Fields{
				"field":       "Reconciliation",
				"kind":        m.Kind,
				"shipment_id": m.ShipmentId,
				"expected":    m.Expected,
				"recorded":    m.Recorded,
				"entries":     m.Entries,
			}).Error("shipment ledger mismatch")
		}
		logger.WithFields(logrus.Fields{
			"field":     "Reconciliation",
			"products":  len(products),
			"shipments": len(shipments),
		}).Info("reconciliation checks completed")
	}
	return len(products) + len(shipments), nil
}
