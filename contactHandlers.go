package main

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
)

// contactHandlers serves suppliers and customers, which share the same input and lifecycle.
type contactHandlers[T models.Identifier] struct {
	referenceType string
	list          func(ctx context.Context, search string, limit int, offset int) ([]*T, error)
	get           func(ctx context.Context, id int) (*T, error)
	create        func(ctx context.Context, input *models.NewContact) (*T, error)
	update        func(ctx context.Context, id int, input *models.NewContact) (*T, error)
	remove        func(ctx context.Context, id int) (*T, error)
}

var (
	supplierHandlers = contactHandlers[models.Supplier]{
		referenceType: models.ReferenceTypeSupplier,
		list:          models.ListSuppliers,
		get:           models.GetSupplier,
		create:        models.CreateSupplier,
		update:        models.UpdateSupplier,
		remove:        models.DeleteSupplier,
	}
	customerHandlers = contactHandlers[models.Customer]{
		referenceType: models.ReferenceTypeCustomer,
		list:          models.ListCustomers,
		get:           models.GetCustomer,
		create:        models.CreateCustomer,
		update:        models.UpdateCustomer,
		remove:        models.DeleteCustomer,
	}
)

func (h contactHandlers[T]) List(c *gin.Context) {
	results, err := h.list(c.Request.Context(), c.Query("search"), queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, "contactHandlers.List", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h contactHandlers[T]) Get(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	result, err := h.get(c.Request.Context(), id)
	if err != nil {
		respondError(c, "contactHandlers.Get", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h contactHandlers[T]) Create(c *gin.Context) {
	var input models.NewContact
	if !bindJSON(c, &input) {
		return
	}
	result, err := h.create(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "contactHandlers.Create", err)
		return
	}
	id := (*result).GetId()
	recordHistory(c, models.HistoryActionCreate, h.referenceType, id, nil, result, "Created "+h.referenceType+" "+input.Name)
	c.JSON(http.StatusCreated, result)
}

func (h contactHandlers[T]) Update(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewContact
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()
	before, err := h.get(ctx, id)
	if err != nil {
		respondError(c, "contactHandlers.Update", err)
		return
	}
	result, err := h.update(ctx, id, &input)
	if err != nil {
		respondError(c, "contactHandlers.Update", err)
		return
	}
	recordHistory(c, models.HistoryActionUpdate, h.referenceType, id, before, result, "Updated "+h.referenceType+" "+input.Name)
	c.JSON(http.StatusOK, result)
}

func (h contactHandlers[T]) Delete(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	result, err := h.remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, "contactHandlers.Delete", err)
		return
	}
	recordHistory(c, models.HistoryActionDelete, h.referenceType, id, result, nil, "Deleted "+h.referenceType)
	c.JSON(http.StatusOK, result)
}
