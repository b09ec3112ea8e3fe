package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	inboundImportColumns  = []string{"inbound_ref", "inbound_date", "supplier_email", "product_sku", "quantity", "unit_price"}
	outboundImportColumns = []string{"product_sku", "customer_email", "quantity", "outbound_date"}
)

func BulkInboundNotes(ref string) string {
	return "Bulk upload ref: " + ref
}

// importRefs resolves emails and skus of a whole file with one query per table.
type importRefs struct {
	suppliers map[string]Supplier
	customers map[string]Customer
	products  map[string]Product
}

func loadImportRefs(tx *gorm.DB, supplierEmails, customerEmails, skus []string) (*importRefs, error) {
	refs := &importRefs{
		suppliers: map[string]Supplier{},
		customers: map[string]Customer{},
		products:  map[string]Product{},
	}
	if len(supplierEmails) > 0 {
		var suppliers []Supplier
		if err := tx.Where("email IN ?", utils.UniqueSlice(supplierEmails)).Find(&suppliers).Error; err != nil {
			return nil, err
		}
		for _, s := range suppliers {
			refs.suppliers[strings.ToLower(s.Email)] = s
		}
	}
	if len(customerEmails) > 0 {
		var customers []Customer
		if err := tx.Where("email IN ?", utils.UniqueSlice(customerEmails)).Find(&customers).Error; err != nil {
			return nil, err
		}
		for _, c := range customers {
			refs.customers[strings.ToLower(c.Email)] = c
		}
	}
	if len(skus) > 0 {
		var products []Product
		if err := tx.Where("sku IN ?", utils.UniqueSlice(skus)).Find(&products).Error; err != nil {
			return nil, err
		}
		for _, p := range products {
			refs.products[strings.ToLower(p.Sku)] = p
		}
	}
	return refs, nil
}

func (refs *importRefs) product(errs *rowErrors, line int, sku string) (Product, bool) {
	p, ok := refs.products[strings.ToLower(sku)]
	if !ok {
		errs.add(line, "product_sku", ErrReferenceNotFound, "product with sku %s not found", sku)
		return p, false
	}
	if p.IsArchived {
		errs.add(line, "product_sku", ErrInvalidRow, "product %s is archived", sku)
		return p, false
	}
	return p, true
}

func parsePositiveQuantity(errs *rowErrors, line int, raw string) (int, bool) {
	if raw == "" {
		errs.add(line, "quantity", ErrInvalidRow, "quantity is required")
		return 0, false
	}
	q, err := parseImportInt(raw)
	if err != nil {
		errs.add(line, "quantity", ErrInvalidRow, "%s", err.Error())
		return 0, false
	}
	if q <= 0 {
		errs.add(line, "quantity", ErrInvalidRow, "quantity must be greater than zero")
		return 0, false
	}
	return q, true
}

func parseRowDate(errs *rowErrors, table *ImportTable, row ImportRow, field string) (time.Time, bool) {
	t, err := table.Date(row, field)
	if err != nil {
		errs.add(row.Line, field, ErrAmbiguousDate, "%s", err.Error())
		return t, false
	}
	return t, true
}

func requiredCell(errs *rowErrors, table *ImportTable, row ImportRow, field string) string {
	v := table.Get(row, field)
	if v == "" {
		errs.add(row.Line, field, ErrInvalidRow, "%s is required", field)
	}
	return v
}

type inboundImportGroup struct {
	ref        string
	line       int
	supplierId int
	email      string
	date       time.Time
	items      []InboundItem
	products   map[int]int
}

// ImportInbounds creates one PENDING inbound per inbound_ref. Rows sharing a ref must name the
// same supplier and date and become the shipment's items. Stock changes only on completion.
func ImportInbounds(ctx context.Context, file ImportFile, actorId *int) (*ImportResult, error) {
	return runImport(ctx, ImportKindInbound, file, inboundImportColumns, func(tx *gorm.DB, table *ImportTable, result *ImportResult) error {
		var emails, skus []string
		for _, r := range table.Rows {
			emails = append(emails, strings.ToLower(table.Get(r, "supplier_email")))
			skus = append(skus, table.Get(r, "product_sku"))
		}
		refs, err := loadImportRefs(tx, emails, nil, skus)
		if err != nil {
			return err
		}

		var errs rowErrors
		var order []string
		groups := map[string]*inboundImportGroup{}
		for _, r := range table.Rows {
			ref := requiredCell(&errs, table, r, "inbound_ref")
			email := strings.ToLower(requiredCell(&errs, table, r, "supplier_email"))
			sku := requiredCell(&errs, table, r, "product_sku")
			date, dateOk := parseRowDate(&errs, table, r, "inbound_date")
			qty, qtyOk := parsePositiveQuantity(&errs, r.Line, table.Get(r, "quantity"))

			price := decimal.Zero
			priceOk := true
			if raw := table.Get(r, "unit_price"); raw != "" {
				p, err := utils.ParseDecimal(raw)
				if err != nil {
					errs.add(r.Line, "unit_price", ErrInvalidRow, "%q is not a number", raw)
					priceOk = false
				} else if p.IsNegative() {
					errs.add(r.Line, "unit_price", ErrInvalidRow, "unit_price cannot be negative")
					priceOk = false
				} else {
					price = p.Round(2)
				}
			}

			supplier, supplierOk := refs.suppliers[email]
			if email != "" && !supplierOk {
				errs.add(r.Line, "supplier_email", ErrReferenceNotFound, "supplier with email %s not found", email)
			}
			var product Product
			productOk := false
			if sku != "" {
				product, productOk = refs.product(&errs, r.Line, sku)
			}
			if ref == "" {
				continue
			}

			group, exists := groups[ref]
			if !exists {
				group = &inboundImportGroup{ref: ref, line: r.Line, email: email, date: date, products: map[int]int{}}
				if supplierOk {
					group.supplierId = supplier.ID
				}
				groups[ref] = group
				order = append(order, ref)
			} else {
				if email != "" && email != group.email {
					errs.add(r.Line, "supplier_email", ErrInvalidRow, "inbound_ref %s already uses supplier %s (row %d)", ref, group.email, group.line)
				}
				if dateOk && !group.date.IsZero() && !date.Equal(group.date) {
					errs.add(r.Line, "inbound_date", ErrInvalidRow, "inbound_ref %s already uses date %s (row %d)", ref, group.date.Format("2006-01-02"), group.line)
				}
			}
			if group.date.IsZero() && dateOk {
				group.date = date
			}
			if productOk {
				if first, dup := group.products[product.ID]; dup {
					errs.add(r.Line, "product_sku", ErrInvalidRow, "product %s already appears in inbound_ref %s on row %d", sku, ref, first)
					continue
				}
				group.products[product.ID] = r.Line
			}
			if productOk && qtyOk && priceOk {
				group.items = append(group.items, InboundItem{ProductId: product.ID, Quantity: qty, UnitPrice: price})
			}
		}
		if err := errs.err(); err != nil {
			return err
		}

		for _, ref := range order {
			group := groups[ref]
			inbound := Inbound{
				SupplierId:  group.supplierId,
				InboundDate: group.date,
				Status:      ShipmentStatusPending,
				Notes:       BulkInboundNotes(ref),
				CreatedById: actorId,
				Items:       group.items,
			}
			if err := tx.Create(&inbound).Error; err != nil {
				return annotateRow(group.line, "inbound_ref", translateDBError(err))
			}
			result.Created++
		}
		return nil
	})
}

// ImportOutbounds creates one PENDING outbound per row. Requested quantities are checked
// against current stock per product across the whole file, but nothing is reserved.
func ImportOutbounds(ctx context.Context, file ImportFile, actorId *int) (*ImportResult, error) {
	return runImport(ctx, ImportKindOutbound, file, outboundImportColumns, func(tx *gorm.DB, table *ImportTable, result *ImportResult) error {
		var emails, skus []string
		for _, r := range table.Rows {
			emails = append(emails, strings.ToLower(table.Get(r, "customer_email")))
			skus = append(skus, table.Get(r, "product_sku"))
		}
		refs, err := loadImportRefs(tx, nil, emails, skus)
		if err != nil {
			return err
		}

		var errs rowErrors
		requested := map[int]int{}
		outbounds := make([]Outbound, 0, len(table.Rows))
		for _, r := range table.Rows {
			email := strings.ToLower(requiredCell(&errs, table, r, "customer_email"))
			sku := requiredCell(&errs, table, r, "product_sku")
			date, dateOk := parseRowDate(&errs, table, r, "outbound_date")
			qty, qtyOk := parsePositiveQuantity(&errs, r.Line, table.Get(r, "quantity"))
			soRef := table.Get(r, "so_ref")
			if len(soRef) > 100 {
				errs.add(r.Line, "so_ref", ErrInvalidRow, "so_ref is longer than 100 characters")
			}

			customer, customerOk := refs.customers[email]
			if email != "" && !customerOk {
				errs.add(r.Line, "customer_email", ErrReferenceNotFound, "customer with email %s not found", email)
			}
			var product Product
			productOk := false
			if sku != "" {
				product, productOk = refs.product(&errs, r.Line, sku)
			}
			if productOk && qtyOk {
				requested[product.ID] += qty
				if requested[product.ID] > product.Quantity {
					stockErr := &StockError{
						Kind:      ErrInsufficientStock,
						ProductId: product.ID,
						Sku:       product.Sku,
						Available: product.Quantity,
						Requested: requested[product.ID],
					}
					errs.add(r.Line, "quantity", ErrInsufficientStock, "%s", stockErr.Error())
				}
			}
			if customerOk && productOk && qtyOk && dateOk {
				outbounds = append(outbounds, Outbound{
					CustomerId:   customer.ID,
					ProductId:    product.ID,
					Quantity:     qty,
					Status:       ShipmentStatusPending,
					OutboundDate: date,
					SoRef:        soRef,
					Notes:        table.Get(r, "notes"),
					CreatedById:  actorId,
				})
			}
		}
		if err := errs.err(); err != nil {
			return err
		}
		if len(outbounds) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&outbounds, 100).Error; err != nil {
			return fmt.Errorf("creating outbounds: %w", translateDBError(err))
		}
		result.Created = len(outbounds)
		return nil
	})
}
