package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
)

type inboundRequest struct {
	SupplierId  int                     `json:"supplier_id"`
	InboundDate string                  `json:"inbound_date"`
	Notes       string                  `json:"notes"`
	Items       []models.NewInboundItem `json:"items"`
}

type updateInboundRequest struct {
	SupplierId  *int                     `json:"supplier_id"`
	InboundDate *string                  `json:"inbound_date"`
	Notes       *string                  `json:"notes"`
	Status      *string                  `json:"status"`
	Items       *[]models.NewInboundItem `json:"items"`
	Reason      string                   `json:"reason"`
}

type outboundRequest struct {
	CustomerId   int    `json:"customer_id"`
	ProductId    int    `json:"product_id"`
	Quantity     int    `json:"quantity"`
	OutboundDate string `json:"outbound_date"`
	SoRef        string `json:"so_ref"`
	Notes        string `json:"notes"`
}

type updateOutboundRequest struct {
	CustomerId   *int    `json:"customer_id"`
	ProductId    *int    `json:"product_id"`
	Quantity     *int    `json:"quantity"`
	OutboundDate *string `json:"outbound_date"`
	SoRef        *string `json:"so_ref"`
	Notes        *string `json:"notes"`
	Status       *string `json:"status"`
	Reason       string  `json:"reason"`
}

type transitionRequest struct {
	Note string `json:"note"`
}

// bindOptionalJSON accepts an empty body for actions whose payload is optional.
// Chunked requests report no length, so emptiness is detected by the decoder.
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondError(c, "bindOptionalJSON", fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidRow, err))
		return false
	}
	return true
}

func (r updateInboundRequest) toInput() (*models.UpdateInboundInput, error) {
	date, err := parseOptionalDate("inbound_date", r.InboundDate)
	if err != nil {
		return nil, err
	}
	status, err := parseOptionalStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &models.UpdateInboundInput{
		SupplierId:  r.SupplierId,
		InboundDate: date,
		Notes:       r.Notes,
		Status:      status,
		Items:       r.Items,
		Reason:      r.Reason,
	}, nil
}

func (r updateOutboundRequest) toInput() (*models.UpdateOutboundInput, error) {
	date, err := parseOptionalDate("outbound_date", r.OutboundDate)
	if err != nil {
		return nil, err
	}
	status, err := parseOptionalStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &models.UpdateOutboundInput{
		CustomerId:   r.CustomerId,
		ProductId:    r.ProductId,
		Quantity:     r.Quantity,
		OutboundDate: date,
		SoRef:        r.SoRef,
		Notes:        r.Notes,
		Status:       status,
		Reason:       r.Reason,
	}, nil
}

func listInboundsHandler(c *gin.Context) {
	filter := models.InboundFilter{
		SupplierId: queryInt(c, "supplier_id", 0),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseShipmentStatus(raw)
		if err != nil {
			respondError(c, "listInboundsHandler", err)
			return
		}
		filter.Status = status
	}
	ctx := c.Request.Context()
	results, err := models.ListInbounds(ctx, filter)
	if err == nil {
		err = attachInboundSuppliers(ctx, results)
	}
	if err != nil {
		respondError(c, "listInboundsHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func getInboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	result, err := models.GetInbound(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getInboundHandler", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createInboundHandler(c *gin.Context) {
	var req inboundRequest
	if !bindJSON(c, &req) {
		return
	}
	date, err := parseDateField("inbound_date", req.InboundDate)
	if err != nil {
		respondError(c, "createInboundHandler", err)
		return
	}
	input := models.NewInbound{
		SupplierId:  req.SupplierId,
		InboundDate: date,
		Notes:       req.Notes,
		Items:       req.Items,
	}
	result, err := models.CreateInbound(c.Request.Context(), &input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "createInboundHandler", err)
		return
	}
	recordHistory(c, models.HistoryActionCreate, models.ReferenceTypeInbound, result.ID, nil, result,
		fmt.Sprintf("Created inbound shipment #%d with %d item(s)", result.ID, len(result.Items)))
	c.JSON(http.StatusCreated, result)
}

// afterInboundSaved records the audit entry. Stock events were queued with the commit.
func afterInboundSaved(c *gin.Context, before *models.Inbound, after *models.Inbound) {
	action := models.HistoryActionUpdate
	description := fmt.Sprintf("Updated inbound shipment #%d", after.ID)
	switch {
	case models.IsCompletionEdge(before.Status, after.Status):
		action = models.HistoryActionComplete
		description = fmt.Sprintf("Completed inbound shipment #%d", after.ID)
	case before.Status != after.Status && after.Status == models.ShipmentStatusCancelled:
		action = models.HistoryActionCancel
		description = fmt.Sprintf("Cancelled inbound shipment #%d", after.ID)
	}
	recordHistory(c, action, models.ReferenceTypeInbound, after.ID, before, after, description)
}

func updateInboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req updateInboundRequest
	if !bindJSON(c, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondError(c, "updateInboundHandler", err)
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetInbound(ctx, id)
	if err != nil {
		respondError(c, "updateInboundHandler", err)
		return
	}
	result, err := models.UpdateInbound(ctx, id, input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "updateInboundHandler", err)
		return
	}
	afterInboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}

func completeInboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetInbound(ctx, id)
	if err != nil {
		respondError(c, "completeInboundHandler", err)
		return
	}
	result, err := models.CompleteInbound(ctx, id, actorFromRequest(c).Id, req.Note)
	if err != nil {
		respondError(c, "completeInboundHandler", err)
		return
	}
	afterInboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}

func cancelInboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetInbound(ctx, id)
	if err != nil {
		respondError(c, "cancelInboundHandler", err)
		return
	}
	result, err := models.CancelInbound(ctx, id, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "cancelInboundHandler", err)
		return
	}
	afterInboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}

func listOutboundsHandler(c *gin.Context) {
	filter := models.OutboundFilter{
		CustomerId: queryInt(c, "customer_id", 0),
		ProductId:  queryInt(c, "product_id", 0),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseShipmentStatus(raw)
		if err != nil {
			respondError(c, "listOutboundsHandler", err)
			return
		}
		filter.Status = status
	}
	ctx := c.Request.Context()
	results, err := models.ListOutbounds(ctx, filter)
	if err == nil {
		err = attachOutboundReferences(ctx, results)
	}
	if err != nil {
		respondError(c, "listOutboundsHandler", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func getOutboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	result, err := models.GetOutbound(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getOutboundHandler", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createOutboundHandler(c *gin.Context) {
	var req outboundRequest
	if !bindJSON(c, &req) {
		return
	}
	date, err := parseDateField("outbound_date", req.OutboundDate)
	if err != nil {
		respondError(c, "createOutboundHandler", err)
		return
	}
	input := models.NewOutbound{
		CustomerId:   req.CustomerId,
		ProductId:    req.ProductId,
		Quantity:     req.Quantity,
		OutboundDate: date,
		SoRef:        req.SoRef,
		Notes:        req.Notes,
	}
	result, err := models.CreateOutbound(c.Request.Context(), &input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "createOutboundHandler", err)
		return
	}
	recordHistory(c, models.HistoryActionCreate, models.ReferenceTypeOutbound, result.ID, nil, result,
		fmt.Sprintf("Created outbound #%d for %d unit(s)", result.ID, result.Quantity))
	c.JSON(http.StatusCreated, result)
}

func afterOutboundSaved(c *gin.Context, before *models.Outbound, after *models.Outbound) {
	action := models.HistoryActionUpdate
	description := fmt.Sprintf("Updated outbound #%d", after.ID)
	switch {
	case models.IsCompletionEdge(before.Status, after.Status):
		action = models.HistoryActionComplete
		description = fmt.Sprintf("Completed outbound #%d", after.ID)
	case before.Status != after.Status && after.Status == models.ShipmentStatusCancelled:
		action = models.HistoryActionCancel
		description = fmt.Sprintf("Cancelled outbound #%d", after.ID)
	}
	recordHistory(c, action, models.ReferenceTypeOutbound, after.ID, before, after, description)
}

func updateOutboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req updateOutboundRequest
	if !bindJSON(c, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		respondError(c, "updateOutboundHandler", err)
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetOutbound(ctx, id)
	if err != nil {
		respondError(c, "updateOutboundHandler", err)
		return
	}
	result, err := models.UpdateOutbound(ctx, id, input, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "updateOutboundHandler", err)
		return
	}
	afterOutboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}

func completeOutboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetOutbound(ctx, id)
	if err != nil {
		respondError(c, "completeOutboundHandler", err)
		return
	}
	result, err := models.CompleteOutbound(ctx, id, actorFromRequest(c).Id, req.Note)
	if err != nil {
		respondError(c, "completeOutboundHandler", err)
		return
	}
	afterOutboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}

func cancelOutboundHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetOutbound(ctx, id)
	if err != nil {
		respondError(c, "cancelOutboundHandler", err)
		return
	}
	result, err := models.CancelOutbound(ctx, id, actorFromRequest(c).Id)
	if err != nil {
		respondError(c, "cancelOutboundHandler", err)
		return
	}
	afterOutboundSaved(c, before, result)
	c.JSON(http.StatusOK, result)
}
