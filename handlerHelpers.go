package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		respondError(c, "pathId", fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidRow, name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func queryBool(c *gin.Context, name string) *bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	if err != nil {
		return nil
	}
	return &v
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		respondError(c, "bindJSON", fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidRow, err))
		return false
	}
	return true
}

// parseDateField accepts the same unambiguous date formats as bulk uploads.
func parseDateField(field string, raw string) (time.Time, error) {
	t, err := models.ParseImportDate(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func parseOptionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := parseDateField(field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalStatus(raw *string) (*models.ShipmentStatus, error) {
	if raw == nil {
		return nil, nil
	}
	status, err := models.ParseShipmentStatus(*raw)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func actorFromRequest(c *gin.Context) models.Actor {
	ctx := c.Request.Context()
	username, _ := utils.GetUsernameFromContext(ctx)
	return models.Actor{Id: utils.GetActorIdFromContext(ctx), Username: username}
}

// recordHistory writes the audit entry after a committed change. The change itself already
// succeeded, so a failure here is only logged.
func recordHistory(c *gin.Context, action models.HistoryAction, referenceType string, referenceId int, before interface{}, after interface{}, description string) {
	_, err := models.RecordHistory(c.Request.Context(), nil, actorFromRequest(c), action, referenceType, referenceId, before, after, description)
	if err != nil {
		config.LogError(config.GetLogger(), "handlerHelpers.go", "recordHistory", description, referenceId, err)
	}
}
