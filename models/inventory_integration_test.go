package models_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestInventoryConsistency(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME_2", "warehouse_test")
	t.Setenv("PUBSUB_TOPIC", "stock-events")
	t.Setenv("IMPORT_ARCHIVE_ENABLED", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	t.Run("every pooled connection runs read committed", func(t *testing.T) {
		sqlDB, err := config.GetDB().DB()
		if err != nil {
			t.Fatalf("DB: %v", err)
		}
		// Hold several connections at once so the pool has to open new ones.
		conns := make([]*sql.Conn, 0, 3)
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()
		for i := 0; i < 3; i++ {
			conn, err := sqlDB.Conn(ctx)
			if err != nil {
				t.Fatalf("Conn: %v", err)
			}
			conns = append(conns, conn)
			var level string
			if err := conn.QueryRowContext(ctx, "SELECT @@SESSION.transaction_isolation").Scan(&level); err != nil {
				t.Fatalf("read isolation: %v", err)
			}
			if level != "READ-COMMITTED" {
				t.Fatalf("connection %d: expected READ-COMMITTED, got %s", i, level)
			}
		}
	})

	actor, err := models.CreateUser(ctx, &models.NewUser{
		Username: "operator1",
		Name:     "Operator One",
		Password: "secret-pass",
		Role:     models.UserRoleOperator,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	actorId := &actor.ID

	supplier, err := models.CreateSupplier(ctx, &models.NewContact{Name: "Acme Supply", Email: "Supply@Acme.test"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewContact{Name: "Shop", Email: "orders@shop.test"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	t.Run("mutator keeps quantity and ledger together", func(t *testing.T) {
		p, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Widget", Sku: "W-1", Quantity: 10}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		qty, err := models.ApplyInventoryChangeTx(ctx, p.ID, 5, actorId, "Manual adjustment")
		if err != nil || qty != 15 {
			t.Fatalf("expected 15, got %d (%v)", qty, err)
		}

		_, err = models.ApplyInventoryChangeTx(ctx, p.ID, -100, actorId, "Too much")
		var stockErr *models.StockError
		if !errors.As(err, &stockErr) || !errors.Is(err, models.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if stockErr.Available != 15 || stockErr.Requested != 100 {
			t.Fatalf("unexpected stock error detail %+v", stockErr)
		}

		stored := mustProduct(t, ctx, p.ID)
		if stored.Quantity != 15 {
			t.Fatalf("failed change must not move stock, got %d", stored.Quantity)
		}
		logs := ledger(t, ctx, p.ID)
		if len(logs) != 2 {
			t.Fatalf("expected 2 ledger entries, got %d", len(logs))
		}
		if logs[0].NewQuantity != 15 || logs[0].QuantityChange != 5 || logs[0].UserId == nil || *logs[0].UserId != actor.ID {
			t.Fatalf("unexpected newest ledger entry %+v", logs[0])
		}

		if err := config.GetDB().Delete(logs[0]).Error; !errors.Is(err, models.ErrLedgerImmutable) {
			t.Fatalf("expected ledger delete to be refused, got %v", err)
		}

		level, changed, err := setLevel(ctx, p.ID, 15)
		if err != nil || changed || level != 15 {
			t.Fatalf("setting the current level must write nothing, got %d %v (%v)", level, changed, err)
		}
		if len(ledger(t, ctx, p.ID)) != 2 {
			t.Fatalf("no-op level change wrote a ledger entry")
		}
	})

	t.Run("opposite changes cancel out", func(t *testing.T) {
		p, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Spring", Sku: "S-1", Quantity: 7}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		before := len(ledger(t, ctx, p.ID))
		if qty, err := models.ApplyInventoryChangeTx(ctx, p.ID, 5, nil, "Cycle count"); err != nil || qty != 12 {
			t.Fatalf("expected 12, got %d (%v)", qty, err)
		}
		if qty, err := models.ApplyInventoryChangeTx(ctx, p.ID, -5, nil, "Cycle count"); err != nil || qty != 7 {
			t.Fatalf("expected 7, got %d (%v)", qty, err)
		}
		if got := mustProduct(t, ctx, p.ID).Quantity; got != 7 {
			t.Fatalf("expected the original 7, got %d", got)
		}
		logs := ledger(t, ctx, p.ID)
		if len(logs) != before+2 {
			t.Fatalf("expected 2 new ledger entries, got %d", len(logs)-before)
		}
		if sum := logs[0].QuantityChange + logs[1].QuantityChange; sum != 0 {
			t.Fatalf("expected the two entries to sum to zero, got %d", sum)
		}
		if logs[0].UserId != nil || logs[1].UserId != nil {
			t.Fatalf("changes without an actor must leave the ledger user empty")
		}
		if got := countStockEvents(t, "inventory_log_id IN ?", []int{logs[0].ID, logs[1].ID}); got != 2 {
			t.Fatalf("expected one stock event per ledger entry, got %d", got)
		}
	})

	t.Run("inbound completion applies once", func(t *testing.T) {
		a, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Bolt", Sku: "B-1"}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		b, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Nut", Sku: "N-1", Quantity: 1}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		inbound, err := models.CreateInbound(ctx, &models.NewInbound{
			SupplierId:  supplier.ID,
			InboundDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Items: []models.NewInboundItem{
				{ProductId: b.ID, Quantity: 4, UnitPrice: decimal.NewFromFloat(1.25)},
				{ProductId: a.ID, Quantity: 6},
			},
		}, actorId)
		if err != nil {
			t.Fatalf("CreateInbound: %v", err)
		}
		if mustProduct(t, ctx, a.ID).Quantity != 0 {
			t.Fatalf("creating a pending inbound must not change stock")
		}

		completed, err := models.CompleteInbound(ctx, inbound.ID, actorId, "dock 2")
		if err != nil {
			t.Fatalf("CompleteInbound: %v", err)
		}
		if completed.Status != models.ShipmentStatusCompleted || completed.CompletedAt == nil {
			t.Fatalf("expected COMPLETED with a timestamp, got %s", completed.Status)
		}
		if got := mustProduct(t, ctx, a.ID).Quantity; got != 6 {
			t.Fatalf("expected 6, got %d", got)
		}
		if got := mustProduct(t, ctx, b.ID).Quantity; got != 5 {
			t.Fatalf("expected 5, got %d", got)
		}
		reason := models.InboundCompletionReason(inbound.ID, "dock 2")
		if logs := ledger(t, ctx, a.ID); logs[0].Reason != reason {
			t.Fatalf("expected reason %q, got %q", reason, logs[0].Reason)
		}

		if _, err := models.CompleteInbound(ctx, inbound.ID, actorId, ""); !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected second completion to be rejected, got %v", err)
		}
		ledgerA, ledgerB := len(ledger(t, ctx, a.ID)), len(ledger(t, ctx, b.ID))
		status := models.ShipmentStatusCompleted
		notes := "re-saved"
		if _, err := models.UpdateInbound(ctx, inbound.ID, &models.UpdateInboundInput{Status: &status, Notes: &notes}, actorId); err != nil {
			t.Fatalf("re-saving a completed inbound: %v", err)
		}
		if got := mustProduct(t, ctx, a.ID).Quantity; got != 6 {
			t.Fatalf("re-save must not apply stock again, got %d", got)
		}
		if got := len(ledger(t, ctx, a.ID)); got != ledgerA {
			t.Fatalf("re-save must not write the ledger, got %d entries instead of %d", got, ledgerA)
		}
		if got := len(ledger(t, ctx, b.ID)); got != ledgerB {
			t.Fatalf("re-save must not write the ledger, got %d entries instead of %d", got, ledgerB)
		}
		entries, err := models.ListInventoryLogs(ctx, models.InventoryLogFilter{Reason: reason, Limit: 1000})
		if err != nil {
			t.Fatalf("ListInventoryLogs: %v", err)
		}
		total := 0
		for _, e := range entries {
			total += e.QuantityChange
		}
		if len(entries) != 2 || total != 10 {
			t.Fatalf("expected 2 entries adding up to the 10 received, got %d entries totalling %d", len(entries), total)
		}
		if _, err := models.CancelInbound(ctx, inbound.ID, actorId); !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected cancel of a completed inbound to be rejected, got %v", err)
		}

		if got := countStockEvents(t, "reference_type = ? AND reference_id = ?", models.ReferenceTypeInbound, inbound.ID); got != 2 {
			t.Fatalf("expected the completion to queue 2 stock events, got %d", got)
		}
		if got := countStockEvents(t, "inventory_log_id IN ?", []int{entries[0].ID, entries[1].ID}); got != 2 {
			t.Fatalf("expected the queued events to point at the completion's ledger entries, got %d", got)
		}
	})

	t.Run("outbound deducts or fails without side effects", func(t *testing.T) {
		p, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Crate", Sku: "C-1", Quantity: 3}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		out, err := models.CreateOutbound(ctx, &models.NewOutbound{
			CustomerId: customer.ID, ProductId: p.ID, Quantity: 5, OutboundDate: time.Now(),
		}, actorId)
		if err != nil {
			t.Fatalf("CreateOutbound: %v", err)
		}
		_, err = models.CompleteOutbound(ctx, out.ID, actorId, "")
		if !errors.Is(err, models.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		stored, err := models.GetOutbound(ctx, out.ID)
		if err != nil || stored.Status != models.ShipmentStatusPending {
			t.Fatalf("failed completion must leave the outbound pending, got %v (%v)", stored, err)
		}
		if got := len(ledger(t, ctx, p.ID)); got != 1 {
			t.Fatalf("failed completion must not write the ledger, got %d entries", got)
		}
		if got := countStockEvents(t, "reference_type = ? AND reference_id = ?", models.ReferenceTypeOutbound, out.ID); got != 0 {
			t.Fatalf("failed completion must not queue stock events, got %d", got)
		}

		qty := 3
		if _, err := models.UpdateOutbound(ctx, out.ID, &models.UpdateOutboundInput{Quantity: &qty}, actorId); err != nil {
			t.Fatalf("UpdateOutbound: %v", err)
		}
		done, err := models.CompleteOutbound(ctx, out.ID, actorId, "SO-9")
		if err != nil {
			t.Fatalf("CompleteOutbound: %v", err)
		}
		if done.Status != models.ShipmentStatusCompleted {
			t.Fatalf("expected COMPLETED, got %s", done.Status)
		}
		if got := mustProduct(t, ctx, p.ID).Quantity; got != 0 {
			t.Fatalf("expected 0 left, got %d", got)
		}
		if logs := ledger(t, ctx, p.ID); logs[0].Reason != "Outbound #"+fmt.Sprint(out.ID)+" completed. SO-9" || logs[0].QuantityChange != -3 {
			t.Fatalf("unexpected outbound ledger entry %+v", logs[0])
		}
		if _, err := models.UpdateOutbound(ctx, out.ID, &models.UpdateOutboundInput{Quantity: &qty}, actorId); !errors.Is(err, models.ErrInvalidTransition) {
			t.Fatalf("expected quantity edit of a completed outbound to be rejected, got %v", err)
		}
	})

	t.Run("concurrent outbounds never oversell", func(t *testing.T) {
		p, err := models.CreateProduct(ctx, &models.NewProduct{Name: "Pallet", Sku: "P-1", Quantity: 8}, actorId)
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		var ids []int
		for i := 0; i < 2; i++ {
			out, err := models.CreateOutbound(ctx, &models.NewOutbound{
				CustomerId: customer.ID, ProductId: p.ID, Quantity: 8, OutboundDate: time.Now(),
			}, actorId)
			if err != nil {
				t.Fatalf("CreateOutbound: %v", err)
			}
			ids = append(ids, out.ID)
		}

		errs := make([]error, len(ids))
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(i, id int) {
				defer wg.Done()
				_, errs[i] = models.CompleteOutbound(ctx, id, actorId, "")
			}(i, id)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrStockConflict), errors.Is(err, models.ErrInsufficientStock):
			default:
				t.Fatalf("unexpected completion error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one completion, got %d (%v)", succeeded, errs)
		}
		if got := mustProduct(t, ctx, p.ID).Quantity; got != 0 {
			t.Fatalf("expected 0 left, got %d", got)
		}
		deductions := 0
		for _, e := range ledger(t, ctx, p.ID) {
			if e.QuantityChange < 0 {
				deductions++
				if e.QuantityChange != -8 || e.NewQuantity != 0 {
					t.Fatalf("unexpected deduction %+v", e)
				}
			}
		}
		if deductions != 1 {
			t.Fatalf("expected exactly one negative ledger entry, got %d", deductions)
		}
		if got := countStockEvents(t, "product_id = ? AND quantity_change < 0", p.ID); got != 1 {
			t.Fatalf("expected one stock event for the deduction, got %d", got)
		}
	})

	t.Run("product import missing a column changes nothing", func(t *testing.T) {
		_, err := models.ImportProducts(ctx, models.ImportFile{
			Name: "products.csv",
			Data: []byte("SKU,Quantity\nX-1,4\n"),
		}, actorId)
		if !errors.Is(err, models.ErrMissingColumns) {
			t.Fatalf("expected ErrMissingColumns, got %v", err)
		}
		if _, err := models.GetProductBySku(ctx, "X-1"); !errors.Is(err, models.ErrReferenceNotFound) {
			t.Fatalf("rejected file must not create products, got %v", err)
		}
	})

	t.Run("product import is all or nothing", func(t *testing.T) {
		data := "SKU,Name,Quantity\n" +
			"IMP-1,Imported,4\n" +
			"IMP-2,,2\n"
		_, err := models.ImportProducts(ctx, models.ImportFile{Name: "products.csv", Data: []byte(data)}, actorId)
		var importErr *models.ImportError
		if !errors.As(err, &importErr) || len(importErr.Rows) != 1 || importErr.Rows[0].Row != 3 {
			t.Fatalf("expected a report for row 3, got %v", err)
		}
		if _, err := models.GetProductBySku(ctx, "IMP-1"); !errors.Is(err, models.ErrReferenceNotFound) {
			t.Fatalf("valid rows of a rejected file must not be written, got %v", err)
		}

		data = "SKU,Name,Quantity\n" +
			"IMP-1,Imported,4\n" +
			"W-1,Widget renamed,20\n"
		result, err := models.ImportProducts(ctx, models.ImportFile{Name: "products.csv", Data: []byte(data)}, actorId)
		if err != nil {
			t.Fatalf("ImportProducts: %v", err)
		}
		if result.Created != 1 || result.Updated != 1 {
			t.Fatalf("expected 1 created and 1 updated, got %+v", result)
		}
		w, err := models.GetProductBySku(ctx, "W-1")
		if err != nil || w.Quantity != 20 || w.Name != "Widget renamed" {
			t.Fatalf("unexpected updated product %+v (%v)", w, err)
		}
		if logs := ledger(t, ctx, w.ID); logs[0].Reason != models.BulkReasonProductUpdated || logs[0].QuantityChange != 5 {
			t.Fatalf("expected a bulk update ledger entry of +5, got %+v", logs[0])
		}
	})

	t.Run("shipment imports resolve references", func(t *testing.T) {
		data := "Inbound Ref,Inbound Date,Supplier Email,Product SKU,Quantity,Unit Price\n" +
			"R-1,2024-03-15,supply@acme.test,B-1,2,1.50\n" +
			"R-1,2024-03-15,supply@acme.test,N-1,3,\n" +
			"R-2,15 Mar 2024,supply@acme.test,W-1,1,\n"
		result, err := models.ImportInbounds(ctx, models.ImportFile{Name: "inbounds.csv", Data: []byte(data)}, actorId)
		if err != nil {
			t.Fatalf("ImportInbounds: %v", err)
		}
		if result.Created != 2 {
			t.Fatalf("expected 2 inbounds, got %d", result.Created)
		}

		inboundsBefore := countRows(t, &models.Inbound{})
		mixedInbound := "Inbound Ref,Inbound Date,Supplier Email,Product SKU,Quantity,Unit Price\n" +
			"R-3,2024-03-16,supply@acme.test,B-1,2,1.50\n" +
			"R-3,2024-03-16,supply@acme.test,NOPE,3,\n" +
			"R-4,2024-03-16,supply@acme.test,W-1,1,\n"
		_, err = models.ImportInbounds(ctx, models.ImportFile{Name: "inbounds.csv", Data: []byte(mixedInbound)}, actorId)
		assertSingleRowReport(t, err, 3, "product_sku")
		if got := countRows(t, &models.Inbound{}); got != inboundsBefore {
			t.Fatalf("rejected inbound file created %d inbounds", got-inboundsBefore)
		}

		outboundsBefore := countRows(t, &models.Outbound{})
		mixedOutbound := "Product SKU,Customer Email,Quantity,Outbound Date\n" +
			"B-1,orders@shop.test,1,2024-03-15\n" +
			"N-1,orders@shop.test,1,2024-03-15\n" +
			"NOPE,orders@shop.test,1,2024-03-15\n"
		_, err = models.ImportOutbounds(ctx, models.ImportFile{Name: "outbounds.csv", Data: []byte(mixedOutbound)}, actorId)
		assertSingleRowReport(t, err, 4, "product_sku")
		if got := countRows(t, &models.Outbound{}); got != outboundsBefore {
			t.Fatalf("rejected outbound file created %d outbounds", got-outboundsBefore)
		}

		serial := "Product SKU,Customer Email,Quantity,Outbound Date\n" +
			"B-1,orders@shop.test,1,45366\n"
		_, err = models.ImportOutbounds(ctx, models.ImportFile{Name: "outbounds.csv", Data: []byte(serial)}, actorId)
		if !errors.Is(err, models.ErrAmbiguousDate) {
			t.Fatalf("expected a bare number in a CSV date column to be rejected, got %v", err)
		}

		ambiguous := "Product SKU,Customer Email,Quantity,Outbound Date\n" +
			"B-1,orders@shop.test,1,03/04/2024\n"
		_, err = models.ImportOutbounds(ctx, models.ImportFile{Name: "outbounds.csv", Data: []byte(ambiguous)}, actorId)
		if !errors.Is(err, models.ErrAmbiguousDate) {
			t.Fatalf("expected ErrAmbiguousDate, got %v", err)
		}

		before, err := models.ListOutbounds(ctx, models.OutboundFilter{Limit: 1000})
		if err != nil {
			t.Fatalf("ListOutbounds: %v", err)
		}
		oversell := "Product SKU,Customer Email,Quantity,Outbound Date\n" +
			"B-1,orders@shop.test,4,2024-03-15\n" +
			"B-1,orders@shop.test,4,2024-03-15\n"
		_, err = models.ImportOutbounds(ctx, models.ImportFile{Name: "outbounds.csv", Data: []byte(oversell)}, actorId)
		if !errors.Is(err, models.ErrInvalidRow) {
			t.Fatalf("expected the file to be rejected for exceeding stock, got %v", err)
		}
		after, err := models.ListOutbounds(ctx, models.OutboundFilter{Limit: 1000})
		if err != nil {
			t.Fatalf("ListOutbounds: %v", err)
		}
		if len(after) != len(before) {
			t.Fatalf("rejected outbound file created %d outbounds", len(after)-len(before))
		}
	})

	t.Run("ledger reconciles", func(t *testing.T) {
		db := config.GetDB()
		products, err := workflow.CheckLedgerConsistency(ctx, db)
		if err != nil {
			t.Fatalf("CheckLedgerConsistency: %v", err)
		}
		if len(products) != 0 {
			t.Fatalf("expected no product mismatches, got %+v", products)
		}
		shipments, err := workflow.CheckShipmentLedger(ctx, db)
		if err != nil {
			t.Fatalf("CheckShipmentLedger: %v", err)
		}
		if len(shipments) != 0 {
			t.Fatalf("expected no shipment mismatches, got %+v", shipments)
		}
	})
}

func mustProduct(t *testing.T, ctx context.Context, id int) *models.Product {
	t.Helper()
	p, err := models.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct(%d): %v", id, err)
	}
	return p
}

func ledger(t *testing.T, ctx context.Context, productId int) []*models.InventoryLog {
	t.Helper()
	logs, err := models.ListInventoryLogs(ctx, models.InventoryLogFilter{ProductId: &productId, Limit: 1000})
	if err != nil {
		t.Fatalf("ListInventoryLogs: %v", err)
	}
	return logs
}

func countStockEvents(t *testing.T, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := config.GetDB().Model(&models.StockEventRecord{}).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count stock events: %v", err)
	}
	return n
}

func countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := config.GetDB().Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

// assertSingleRowReport expects a whole-file ReferenceNotFound rejection naming one row.
func assertSingleRowReport(t *testing.T, err error, row int, field string) {
	t.Helper()
	var importErr *models.ImportError
	if !errors.As(err, &importErr) || !errors.Is(err, models.ErrReferenceNotFound) {
		t.Fatalf("expected a ReferenceNotFound import report, got %v", err)
	}
	if len(importErr.Rows) != 1 || importErr.Rows[0].Row != row || importErr.Rows[0].Field != field {
		t.Fatalf("expected the report to name row %d (%s), got %+v", row, field, importErr.Rows)
	}
}

func setLevel(ctx context.Context, productId int, target int) (level int, changed bool, err error) {
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		level, changed, err = models.SetInventoryLevel(tx, productId, target, nil, "Stock count")
		return err
	})
	return level, changed, err
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=warehouse_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
