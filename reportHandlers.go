package main

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/workflow"
	"github.com/gin-gonic/gin"
)

func dashboardSummaryHandler(c *gin.Context) {
	summary, err := models.GetDashboardSummary(c.Request.Context())
	if err != nil {
		respondError(c, "dashboardSummaryHandler", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func recentActivityHandler(c *gin.Context) {
	results, err := models.GetRecentActivity(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, "recentActivityHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func transactionVolumeHandler(c *gin.Context) {
	results, err := models.GetTransactionVolume(c.Request.Context(), queryInt(c, "days", 0))
	if err != nil {
		respondError(c, "transactionVolumeHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func listHistoriesHandler(c *gin.Context) {
	filter := models.HistoryFilter{
		ReferenceType: strings.TrimSpace(c.Query("reference_type")),
		ReferenceId:   queryInt(c, "reference_id", 0),
		UserId:        queryInt(c, "user_id", 0),
		ActionType:    models.HistoryAction(strings.ToUpper(strings.TrimSpace(c.Query("action")))),
		Limit:         queryInt(c, "limit", 0),
	}
	results, err := models.ListHistories(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "listHistoriesHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func listStockEventsHandler(c *gin.Context) {
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	results, err := models.ListStockEvents(c.Request.Context(), status, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, "listStockEventsHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// replayStockEventHandler puts a FAILED or DEAD stock event back into the dispatch queue.
func replayStockEventHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	record, err := models.ReprocessStockEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, "replayStockEventHandler", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type reconciliationResponse struct {
	Products  []workflow.LedgerMismatch   `json:"products"`
	Shipments []workflow.ShipmentMismatch `json:"shipments"`
}

func reconciliationHandler(c *gin.Context) {
	ctx := c.Request.Context()
	db := config.GetDB()
	products, err := workflow.CheckLedgerConsistency(ctx, db)
	if err != nil {
		respondError(c, "reconciliationHandler", err)
		return
	}
	shipments, err := workflow.CheckShipmentLedger(ctx, db)
	if err != nil {
		respondError(c, "reconciliationHandler", err)
		return
	}
	c.JSON(http.StatusOK, reconciliationResponse{Products: products, Shipments: shipments})
}
