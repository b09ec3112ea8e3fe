package middlewares

import (
	"context"
	"reflect"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the reference lookups made while rendering shipment lists.
type Loaders struct {
	productLoader  *dataloader.Loader[int, *models.Product]
	supplierLoader *dataloader.Loader[int, *models.Supplier]
	customerLoader *dataloader.Loader[int, *models.Customer]
	userLoader     *dataloader.Loader[int, *models.User]
}

// NewLoaders builds fresh per-request loaders over conn.
func NewLoaders(conn *gorm.DB) *Loaders {
	wait := time.Millisecond
	return &Loaders{
		productLoader:  dataloader.NewBatchedLoader(batchByIds[models.Product](conn), dataloader.WithWait[int, *models.Product](wait)),
		supplierLoader: dataloader.NewBatchedLoader(batchByIds[models.Supplier](conn), dataloader.WithWait[int, *models.Supplier](wait)),
		customerLoader: dataloader.NewBatchedLoader(batchByIds[models.Customer](conn), dataloader.WithWait[int, *models.Customer](wait)),
		userLoader:     dataloader.NewBatchedLoader(batchByIds[models.User](conn), dataloader.WithWait[int, *models.User](wait)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders. Requests that skipped the middleware get fresh ones.
func For(ctx context.Context) *Loaders {
	if loaders, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return loaders
	}
	return NewLoaders(config.GetDB())
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T)
	var resultZero T
	resultMap[0] = resultZero.GetDefault(0).(T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}
