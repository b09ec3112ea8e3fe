package main

import (
	"bitbucket.org/mmdatafocus/warehouse_backend/middlewares"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
)

func can(module models.PermissionModule, action models.PermissionAction) gin.HandlerFunc {
	return middlewares.RequirePermission(module, action)
}

func registerRoutes(r *gin.Engine) {
	const (
		inventory = models.PermissionModuleInventory
		inbound   = models.PermissionModuleInbound
		outbound  = models.PermissionModuleOutbound
		contact   = models.PermissionModuleContact
		user      = models.PermissionModuleUser

		create = models.PermissionActionCreate
		read   = models.PermissionActionRead
		update = models.PermissionActionUpdate
		remove = models.PermissionActionDelete
	)

	api := r.Group("/api", middlewares.RequireSession())
	api.GET("/me", meHandler)

	products := api.Group("/products")
	products.GET("", can(inventory, read), listProductsHandler)
	products.GET("/low-stock", can(inventory, read), lowStockProductsHandler)
	products.GET("/:id", can(inventory, read), getProductHandler)
	products.GET("/:id/ledger", can(inventory, read), productLedgerHandler)
	products.POST("", can(inventory, create), createProductHandler)
	products.PUT("/:id", can(inventory, update), updateProductHandler)
	products.POST("/:id/archive", can(inventory, remove), archiveProductHandler(true))
	products.POST("/:id/restore", can(inventory, update), archiveProductHandler(false))
	products.POST("/import", can(inventory, create), bulkImportHandler(models.ReferenceTypeProduct, models.ImportProducts))

	api.GET("/inventory-logs", can(inventory, read), listInventoryLogsHandler)

	suppliers := api.Group("/suppliers")
	suppliers.GET("", can(contact, read), supplierHandlers.List)
	suppliers.GET("/:id", can(contact, read), supplierHandlers.Get)
	suppliers.POST("", can(contact, create), supplierHandlers.Create)
	suppliers.PUT("/:id", can(contact, update), supplierHandlers.Update)
	suppliers.DELETE("/:id", can(contact, remove), supplierHandlers.Delete)

	customers := api.Group("/customers")
	customers.GET("", can(contact, read), customerHandlers.List)
	customers.GET("/:id", can(contact, read), customerHandlers.Get)
	customers.POST("", can(contact, create), customerHandlers.Create)
	customers.PUT("/:id", can(contact, update), customerHandlers.Update)
	customers.DELETE("/:id", can(contact, remove), customerHandlers.Delete)

	inbounds := api.Group("/inbounds")
	inbounds.GET("", can(inbound, read), listInboundsHandler)
	inbounds.GET("/:id", can(inbound, read), getInboundHandler)
	inbounds.POST("", can(inbound, create), createInboundHandler)
	inbounds.PUT("/:id", can(inbound, update), updateInboundHandler)
	inbounds.POST("/:id/complete", can(inbound, update), completeInboundHandler)
	inbounds.POST("/:id/cancel", can(inbound, update), cancelInboundHandler)
	inbounds.POST("/import", can(inbound, create), bulkImportHandler(models.ReferenceTypeInbound, models.ImportInbounds))

	outbounds := api.Group("/outbounds")
	outbounds.GET("", can(outbound, read), listOutboundsHandler)
	outbounds.GET("/:id", can(outbound, read), getOutboundHandler)
	outbounds.POST("", can(outbound, create), createOutboundHandler)
	outbounds.PUT("/:id", can(outbound, update), updateOutboundHandler)
	outbounds.POST("/:id/complete", can(outbound, update), completeOutboundHandler)
	outbounds.POST("/:id/cancel", can(outbound, update), cancelOutboundHandler)
	outbounds.POST("/import", can(outbound, create), bulkImportHandler(models.ReferenceTypeOutbound, models.ImportOutbounds))

	dashboard := api.Group("/dashboard", can(inventory, read))
	dashboard.GET("/summary", dashboardSummaryHandler)
	dashboard.GET("/recent-activity", recentActivityHandler)
	dashboard.GET("/transaction-volume", transactionVolumeHandler)

	api.GET("/histories", can(user, read), listHistoriesHandler)

	users := api.Group("/users")
	users.GET("", can(user, read), listUsersHandler)
	users.GET("/:id", can(user, read), getUserHandler)
	users.POST("", can(user, create), createUserHandler)
	users.PUT("/:id", can(user, update), updateUserHandler)

	// Ops tooling, admin only through the USER module's DELETE right.
	ops := r.Group("/internal/ops", middlewares.RequireSession(), can(user, remove))
	ops.GET("/stock-events", listStockEventsHandler)
	ops.POST("/stock-events/:id/replay", replayStockEventHandler)
	ops.GET("/reconciliation", reconciliationHandler)
}
