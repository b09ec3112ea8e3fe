package main

import (
	"fmt"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
)

func listProductsHandler(c *gin.Context) {
	filter := models.ProductFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Archived: queryBool(c, "archived"),
		Search:   c.Query("search"),
		Limit:    queryInt(c, "limit", 0),
		Offset:   queryInt(c, "offset", 0),
	}
	products, err := models.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "listProductsHandler", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func lowStockProductsHandler(c *gin.Context) {
	products, err := models.GetLowStockProducts(c.Request.Context())
	if err != nil {
		respondError(c, "lowStockProductsHandler", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getProductHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getProductHandler", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()
	product, err := models.CreateProduct(ctx, &input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "createProductHandler", err)
		return
	}
	recordHistory(c, models.HistoryActionCreate, models.ReferenceTypeProduct, product.ID, nil, product,
		fmt.Sprintf("Created product %s", product.Sku))
	c.JSON(http.StatusCreated, product)
}

func updateProductHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.UpdateProductInput
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetProduct(ctx, id)
	if err != nil {
		respondError(c, "updateProductHandler", err)
		return
	}
	product, err := models.UpdateProduct(ctx, id, &input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "updateProductHandler", err)
		return
	}
	description := fmt.Sprintf("Updated product %s", product.Sku)
	if before.Quantity != product.Quantity {
		description += fmt.Sprintf(", quantity %d -> %d", before.Quantity, product.Quantity)
	}
	recordHistory(c, models.HistoryActionUpdate, models.ReferenceTypeProduct, product.ID, before, product, description)
	c.JSON(http.StatusOK, product)
}

func archiveProductHandler(archived bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		product, err := models.ArchiveProduct(c.Request.Context(), id, archived)
		if err != nil {
			respondError(c, "archiveProductHandler", err)
			return
		}
		description := "Archived product " + product.Sku
		if !archived {
			description = "Restored product " + product.Sku
		}
		recordHistory(c, models.HistoryActionArchive, models.ReferenceTypeProduct, product.ID, nil, product, description)
		c.JSON(http.StatusOK, product)
	}
}

// productLedgerHandler lists the inventory log of one product, newest first.
func productLedgerHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := models.GetProduct(ctx, id); err != nil {
		respondError(c, "productLedgerHandler", err)
		return
	}
	logs, err := models.ListInventoryLogs(ctx, models.InventoryLogFilter{
		ProductId: &id,
		Limit:     queryInt(c, "limit", 0),
		Offset:    queryInt(c, "offset", 0),
	})
	if err != nil {
		respondError(c, "productLedgerHandler", err)
		return
	}
	views, err := inventoryLogViews(ctx, logs)
	if err != nil {
		respondError(c, "productLedgerHandler", err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func listInventoryLogsHandler(c *gin.Context) {
	filter := models.InventoryLogFilter{
		Reason: strings.TrimSpace(c.Query("reason")),
		Limit:  queryInt(c, "limit", 0),
		Offset: queryInt(c, "offset", 0),
	}
	if v := queryInt(c, "product_id", 0); v > 0 {
		filter.ProductId = &v
	}
	if v := queryInt(c, "user_id", 0); v > 0 {
		filter.UserId = &v
	}
	if raw := c.Query("from"); raw != "" {
		from, err := parseDateField("from", raw)
		if err != nil {
			respondError(c, "listInventoryLogsHandler", err)
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseDateField("to", raw)
		if err != nil {
			respondError(c, "listInventoryLogsHandler", err)
			return
		}
		// inclusive of the whole day
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	ctx := c.Request.Context()
	logs, err := models.ListInventoryLogs(ctx, filter)
	if err != nil {
		respondError(c, "listInventoryLogsHandler", err)
		return
	}
	views, err := inventoryLogViews(ctx, logs)
	if err != nil {
		respondError(c, "listInventoryLogsHandler", err)
		return
	}
	c.JSON(http.StatusOK, views)
}
