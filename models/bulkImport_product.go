package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	BulkReasonProductCreated = "bulk upload: created"
	BulkReasonProductUpdated = "bulk upload: updated"
)

var productImportColumns = []string{"sku", "name"}

type productImportRow struct {
	line              int
	sku               string
	name              string
	tags              string
	description       string
	category          string
	quantity          *int
	lowStockThreshold *int
}

func parseProductRows(table *ImportTable) ([]productImportRow, rowErrors) {
	var errs rowErrors
	rows := make([]productImportRow, 0, len(table.Rows))
	seen := map[string]int{}
	for _, r := range table.Rows {
		row := productImportRow{
			line:        r.Line,
			sku:         table.Get(r, "sku"),
			name:        table.Get(r, "name"),
			tags:        table.Get(r, "tags"),
			description: table.Get(r, "description"),
			category:    table.Get(r, "category"),
		}
		if row.sku == "" {
			errs.add(r.Line, "sku", ErrInvalidRow, "sku is required")
		} else if len(row.sku) > 100 {
			errs.add(r.Line, "sku", ErrInvalidRow, "sku is longer than 100 characters")
		} else if first, dup := seen[strings.ToLower(row.sku)]; dup {
			errs.add(r.Line, "sku", ErrInvalidRow, "sku %s already appears on row %d", row.sku, first)
		} else {
			seen[strings.ToLower(row.sku)] = r.Line
		}
		if row.name == "" {
			errs.add(r.Line, "name", ErrInvalidRow, "name is required")
		}
		if raw := table.Get(r, "quantity"); raw != "" {
			q, err := parseImportInt(raw)
			if err != nil {
				errs.add(r.Line, "quantity", ErrInvalidRow, "%s", err.Error())
			} else if q < 0 {
				errs.add(r.Line, "quantity", ErrInvalidRow, "quantity cannot be negative")
			} else {
				row.quantity = &q
			}
		}
		if raw := table.Get(r, "low_stock_threshold"); raw != "" {
			v, err := parseImportInt(raw)
			if err != nil {
				errs.add(r.Line, "low_stock_threshold", ErrInvalidRow, "%s", err.Error())
			} else if v < 0 {
				errs.add(r.Line, "low_stock_threshold", ErrInvalidRow, "low_stock_threshold cannot be negative")
			} else {
				row.lowStockThreshold = &v
			}
		}
		rows = append(rows, row)
	}
	return rows, errs
}

// ImportProducts upserts products by sku. Existing products get a partial update of the
// non-empty cells; a differing quantity is written through the inventory mutator.
// Nothing is committed unless every row is valid.
func ImportProducts(ctx context.Context, file ImportFile, actorId *int) (*ImportResult, error) {
	return runImport(ctx, ImportKindProduct, file, productImportColumns, func(tx *gorm.DB, table *ImportTable, result *ImportResult) error {
		rows, errs := parseProductRows(table)
		if err := errs.err(); err != nil {
			return err
		}

		for _, row := range rows {
			var existing Product
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("sku = ?", row.sku).Take(&existing).Error
			if err != nil && !isNotFound(err) {
				return err
			}
			if err == nil {
				if err := updateImportedProduct(tx, &existing, row, actorId); err != nil {
					return annotateRow(row.line, "sku", err)
				}
				result.Updated++
				continue
			}
			if err := createImportedProduct(tx, row, actorId); err != nil {
				return annotateRow(row.line, "sku", err)
			}
			result.Created++
		}
		return nil
	})
}

func updateImportedProduct(tx *gorm.DB, product *Product, row productImportRow, actorId *int) error {
	updates := map[string]interface{}{"name": row.name}
	if row.tags != "" {
		updates["tags"] = row.tags
	}
	if row.description != "" {
		updates["description"] = row.description
	}
	if row.category != "" {
		updates["category"] = row.category
	}
	if row.lowStockThreshold != nil {
		updates["low_stock_threshold"] = *row.lowStockThreshold
	}
	if err := tx.Model(&Product{}).Where("id = ?", product.ID).Updates(updates).Error; err != nil {
		return translateDBError(err)
	}
	if row.quantity == nil {
		return nil
	}
	entry, _, err := setInventoryLevel(tx, product.ID, *row.quantity, actorId, BulkReasonProductUpdated)
	if err != nil {
		return err
	}
	return queueStockEvents(tx, ReferenceTypeProduct, product.ID, entry)
}

func createImportedProduct(tx *gorm.DB, row productImportRow, actorId *int) error {
	threshold := DefaultLowStockThreshold
	if row.lowStockThreshold != nil {
		threshold = *row.lowStockThreshold
	}
	product := Product{
		Name:              row.name,
		Sku:               row.sku,
		Tags:              row.tags,
		Description:       row.description,
		Category:          row.category,
		LowStockThreshold: threshold,
	}
	if err := tx.Create(&product).Error; err != nil {
		return translateDBError(err)
	}
	if row.quantity == nil || *row.quantity == 0 {
		return nil
	}
	entry, err := applyInventoryChange(tx, product.ID, *row.quantity, actorId, BulkReasonProductCreated)
	if err != nil {
		return err
	}
	return queueStockEvents(tx, ReferenceTypeProduct, product.ID, entry)
}

// annotateRow turns a write failure of one row into the structured row report.
func annotateRow(line int, field string, err error) error {
	if IsImportError(err) {
		return err
	}
	if !errors.Is(err, ErrDuplicate) && !errors.Is(err, ErrInsufficientStock) &&
		!errors.Is(err, ErrStockConflict) && !errors.Is(err, ErrReferenceNotFound) {
		return err
	}
	var errs rowErrors
	errs.add(line, field, err, "%s", err.Error())
	return newRowsError(errs)
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d, %s: %s", e.Row, e.Field, e.Message)
}
