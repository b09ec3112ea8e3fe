package models

import (
	"log"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Product{}, &InventoryLog{},
		&Supplier{}, &Customer{},
		&Inbound{}, &InboundItem{}, &Outbound{},
		&History{}, &StockEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
