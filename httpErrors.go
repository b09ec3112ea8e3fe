package main

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

// statusForError maps model errors onto HTTP status codes. Unknown errors are 500.
func statusForError(err error) int {
	var importErr *models.ImportError
	switch {
	case errors.As(err, &importErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStockConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrDuplicate), errors.Is(err, models.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, models.ErrReferenceNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrInvalidDelta),
		errors.Is(err, models.ErrLedgerImmutable),
		errors.Is(err, models.ErrMissingColumns),
		errors.Is(err, models.ErrInvalidRow),
		errors.Is(err, models.ErrAmbiguousDate):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrImportInProgress):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorServiceNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody carries the structured detail clients need to correct their input.
func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}

	var stockErr *models.StockError
	var importErr *models.ImportError
	switch {
	case errors.As(err, &stockErr):
		body["code"] = errorCode(err)
		body["details"] = gin.H{
			"product_id": stockErr.ProductId,
			"sku":        stockErr.Sku,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		}
	case errors.As(err, &importErr):
		body["code"] = errorCode(err)
		body["details"] = importErr
	default:
		if code := errorCode(err); code != "" {
			body["code"] = code
		}
	}
	return body
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrStockConflict):
		return "STOCK_CONFLICT"
	case errors.Is(err, models.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, models.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, models.ErrMissingColumns):
		return "MISSING_COLUMNS"
	case errors.Is(err, models.ErrAmbiguousDate):
		return "AMBIGUOUS_DATE"
	case errors.Is(err, models.ErrInvalidRow):
		return "INVALID_ROW"
	case errors.Is(err, models.ErrReferenceNotFound):
		return "REFERENCE_NOT_FOUND"
	case errors.Is(err, models.ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, models.ErrInUse):
		return "IN_USE"
	}
	return ""
}

// respondError writes err as JSON; unexpected errors are logged and hidden from the client.
func respondError(c *gin.Context, funcName string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "httpErrors.go", funcName, c.Request.Method+" "+c.FullPath(), nil, err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
