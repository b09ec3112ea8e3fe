// inventory-reconcile checks every product's quantity against its inventory log and every
// completed shipment against its ledger entries. It exits 3 when any mismatch is found.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
)

func main() {
	asJSON := flag.Bool("json", false, "print mismatches as JSON instead of log lines")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall time limit")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *asJSON {
		products, err := workflow.CheckLedgerConsistency(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ledger check failed: %v\n", err)
			os.Exit(1)
		}
		shipments, err := workflow.CheckShipmentLedger(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "shipment check failed: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]interface{}{"products": products, "shipments": shipments})
		if len(products)+len(shipments) > 0 {
			os.Exit(3)
		}
		return
	}

	logger := config.GetLogger()
	count, err := workflow.RunReconciliation(ctx, db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}
	if count > 0 {
		fmt.Fprintf(os.Stderr, "%d mismatch(es) found\n", count)
		os.Exit(3)
	}
	fmt.Println("inventory ledger is consistent")
}
