package middlewares

import (
	"context"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

// batchByIds loads one table for a whole batch of ids.
// Archived products are included; historical shipments still reference them.
func batchByIds[T models.Data](db *gorm.DB) dataloader.BatchFunc[int, *T] {
	return func(ctx context.Context, ids []int) []*dataloader.Result[*T] {
		var results []T
		if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&results).Error; err != nil {
			return handleError[*T](len(ids), err)
		}
		return generateLoaderResults(results, ids)
	}
}

func GetProducts(ctx context.Context, ids []int) ([]*models.Product, []error) {
	return For(ctx).productLoader.LoadMany(ctx, ids)()
}

func GetSuppliers(ctx context.Context, ids []int) ([]*models.Supplier, []error) {
	return For(ctx).supplierLoader.LoadMany(ctx, ids)()
}

func GetCustomers(ctx context.Context, ids []int) ([]*models.Customer, []error) {
	return For(ctx).customerLoader.LoadMany(ctx, ids)()
}

// GetUsers resolves ledger and history actors; unknown ids come back as placeholders.
func GetUsers(ctx context.Context, ids []int) ([]*models.User, []error) {
	return For(ctx).userLoader.LoadMany(ctx, ids)()
}
