package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	User    *models.User           `json:"user"`
	Modules []models.AllowedModule `json:"modules"`
}

// meHandler returns the session user and what the role may do, for building menus.
func meHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := utils.GetUserIdFromContext(ctx)
	user, err := models.GetUser(ctx, id)
	if err != nil {
		respondError(c, "meHandler", err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: user, Modules: models.AllowedModules(user.Role)})
}

func listUsersHandler(c *gin.Context) {
	users, err := models.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, "listUsersHandler", err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func getUserHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	user, err := models.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getUserHandler", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func createUserHandler(c *gin.Context) {
	var input models.NewUser
	if !bindJSON(c, &input) {
		return
	}
	user, err := models.CreateUser(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createUserHandler", err)
		return
	}
	recordHistory(c, models.HistoryActionCreate, models.ReferenceTypeUser, user.ID, nil, user, "Created user "+user.Username)
	c.JSON(http.StatusCreated, user)
}

func updateUserHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.UpdateUserInput
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()
	before, err := models.GetUser(ctx, id)
	if err != nil {
		respondError(c, "updateUserHandler", err)
		return
	}
	user, err := models.UpdateUser(ctx, id, &input)
	if err != nil {
		respondError(c, "updateUserHandler", err)
		return
	}
	recordHistory(c, models.HistoryActionUpdate, models.ReferenceTypeUser, user.ID, before, user, "Updated user "+user.Username)
	c.JSON(http.StatusOK, user)
}
