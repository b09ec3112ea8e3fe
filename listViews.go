package main

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/warehouse_backend/middlewares"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
)

func joinLoaderErrors(errs []error) error {
	return errors.Join(errs...)
}

// attachInboundSuppliers fills Supplier on every listed inbound with one batched query.
func attachInboundSuppliers(ctx context.Context, inbounds []*models.Inbound) error {
	ids := make([]int, 0, len(inbounds))
	for _, in := range inbounds {
		ids = append(ids, in.SupplierId)
	}
	ids = utils.UniqueSlice(ids)
	suppliers, errs := middlewares.GetSuppliers(ctx, ids)
	if err := joinLoaderErrors(errs); err != nil {
		return err
	}
	byId := make(map[int]*models.Supplier, len(ids))
	for i, id := range ids {
		byId[id] = suppliers[i]
	}
	for _, in := range inbounds {
		in.Supplier = byId[in.SupplierId]
	}
	return nil
}

// attachOutboundReferences fills Customer and Product on every listed outbound.
func attachOutboundReferences(ctx context.Context, outbounds []*models.Outbound) error {
	customerIds := make([]int, 0, len(outbounds))
	productIds := make([]int, 0, len(outbounds))
	for _, out := range outbounds {
		customerIds = append(customerIds, out.CustomerId)
		productIds = append(productIds, out.ProductId)
	}
	customerIds = utils.UniqueSlice(customerIds)
	productIds = utils.UniqueSlice(productIds)

	customers, errs := middlewares.GetCustomers(ctx, customerIds)
	if err := joinLoaderErrors(errs); err != nil {
		return err
	}
	products, errs := middlewares.GetProducts(ctx, productIds)
	if err := joinLoaderErrors(errs); err != nil {
		return err
	}
	customerById := make(map[int]*models.Customer, len(customerIds))
	for i, id := range customerIds {
		customerById[id] = customers[i]
	}
	productById := make(map[int]*models.Product, len(productIds))
	for i, id := range productIds {
		productById[id] = products[i]
	}
	for _, out := range outbounds {
		out.Customer = customerById[out.CustomerId]
		out.Product = productById[out.ProductId]
	}
	return nil
}

type inventoryLogView struct {
	*models.InventoryLog
	Username string `json:"username"`
}

// inventoryLogViews adds the acting user's name to ledger entries. System entries have none.
func inventoryLogViews(ctx context.Context, logs []*models.InventoryLog) ([]inventoryLogView, error) {
	var ids []int
	for _, l := range logs {
		if l.UserId != nil {
			ids = append(ids, *l.UserId)
		}
	}
	ids = utils.UniqueSlice(ids)
	names := make(map[int]string, len(ids))
	if len(ids) > 0 {
		users, errs := middlewares.GetUsers(ctx, ids)
		if err := joinLoaderErrors(errs); err != nil {
			return nil, err
		}
		for i, id := range ids {
			names[id] = users[i].Username
		}
	}
	views := make([]inventoryLogView, 0, len(logs))
	for _, l := range logs {
		view := inventoryLogView{InventoryLog: l}
		if l.UserId != nil {
			view.Username = names[*l.UserId]
		}
		views = append(views, view)
	}
	return views, nil
}
