package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
)

const (
	dashboardSummaryCacheKey = "DashboardSummary"
	dashboardCacheTTL        = 30 * time.Second
	defaultRecentActivity    = 20
	defaultVolumeDays        = 7
)

type DashboardSummary struct {
	TotalProducts      int64     `json:"total_products"`
	LowStockProducts   int64     `json:"low_stock_products"`
	PendingInbounds    int64     `json:"pending_inbounds"`
	PendingOutbounds   int64     `json:"pending_outbounds"`
	CompletedInbounds  int64     `json:"completed_inbounds_today"`
	CompletedOutbounds int64     `json:"completed_outbounds_today"`
	TotalUnitsInStock  int64     `json:"total_units_in_stock"`
	GeneratedAt        time.Time `json:"generated_at"`
}

type RecentActivity struct {
	ID             int       `json:"id"`
	ProductId      int       `json:"product_id"`
	Sku            string    `json:"sku"`
	ProductName    string    `json:"product_name"`
	QuantityChange int       `json:"quantity_change"`
	NewQuantity    int       `json:"new_quantity"`
	Reason         string    `json:"reason"`
	UserId         *int      `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
}

type DailyVolume struct {
	Date          string `json:"date"`
	InboundUnits  int64  `json:"inbound_units"`
	OutboundUnits int64  `json:"outbound_units"`
}

// GetDashboardSummary is cached for a short time; stock counts may lag by the cache TTL.
func GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	exists, err := config.GetRedisObject(dashboardSummaryCacheKey, &summary)
	if err != nil {
		return nil, err
	}
	if exists {
		return &summary, nil
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := dbCtx.Model(&Product{}).Where("is_archived = ?", false).Count(&summary.TotalProducts).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Product{}).Where("is_archived = ? AND quantity <= low_stock_threshold", false).Count(&summary.LowStockProducts).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Product{}).Where("is_archived = ?", false).Select("COALESCE(SUM(quantity), 0)").Scan(&summary.TotalUnitsInStock).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Inbound{}).Where("status = ?", ShipmentStatusPending).Count(&summary.PendingInbounds).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Outbound{}).Where("status = ?", ShipmentStatusPending).Count(&summary.PendingOutbounds).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Inbound{}).Where("status = ? AND completed_at >= ?", ShipmentStatusCompleted, startOfDay).Count(&summary.CompletedInbounds).Error; err != nil {
		return nil, err
	}
	if err := dbCtx.Model(&Outbound{}).Where("status = ? AND completed_at >= ?", ShipmentStatusCompleted, startOfDay).Count(&summary.CompletedOutbounds).Error; err != nil {
		return nil, err
	}
	summary.GeneratedAt = now

	if err := config.SetRedisObject(dashboardSummaryCacheKey, &summary, dashboardCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "dashboard.go", "GetDashboardSummary", "caching summary", nil, err)
	}
	return &summary, nil
}

// GetRecentActivity returns the newest ledger entries with their product.
func GetRecentActivity(ctx context.Context, limit int) ([]*RecentActivity, error) {
	if limit <= 0 {
		limit = defaultRecentActivity
	}
	db := config.GetDB()
	var results []*RecentActivity
	err := db.WithContext(ctx).
		Table("inventory_logs AS l").
		Select("l.id, l.product_id, p.sku, p.name AS product_name, l.quantity_change, l.new_quantity, l.reason, l.user_id, l.timestamp").
		Joins("JOIN products p ON p.id = l.product_id").
		Order("l.timestamp DESC, l.id DESC").
		Limit(limit).
		Scan(&results).Error
	return results, err
}

// GetTransactionVolume sums shipped units per day from the ledger, oldest day first.
// Days without movement are included with zero units.
func GetTransactionVolume(ctx context.Context, days int) ([]*DailyVolume, error) {
	if days <= 0 {
		days = defaultVolumeDays
	}
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	type row struct {
		Day           string
		InboundUnits  int64
		OutboundUnits int64
	}
	var rows []row
	db := config.GetDB()
	err := db.WithContext(ctx).
		Model(&InventoryLog{}).
		Select(`DATE_FORMAT(timestamp, '%Y-%m-%d') AS day,
			COALESCE(SUM(CASE WHEN reason LIKE 'Inbound shipment #%' THEN quantity_change ELSE 0 END), 0) AS inbound_units,
			COALESCE(SUM(CASE WHEN reason LIKE 'Outbound #%' THEN -quantity_change ELSE 0 END), 0) AS outbound_units`).
		Where("timestamp >= ?", from).
		Group("day").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]row, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}
	results := make([]*DailyVolume, 0, days)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format("2006-01-02")
		r := byDay[day]
		results = append(results, &DailyVolume{Date: day, InboundUnits: r.InboundUnits, OutboundUnits: r.OutboundUnits})
	}
	return results, nil
}
