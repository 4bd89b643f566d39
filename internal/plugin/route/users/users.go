// Package users provides the /api/users route adapters.
package users

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts user routes on the given router.
// Called after store initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore) {
	g := r.Group("/api")

	g.POST("/users", func(c *gin.Context) {
		createUser(c, store)
	})
	g.GET("/users/:userId", func(c *gin.Context) {
		getUser(c, store)
	})
}

func createUser(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		UserID    int64  `json:"user_id"    binding:"required"`
		PublicKey string `json:"public_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	if err := store.InsertUser(c.Request.Context(), req.UserID, req.PublicKey); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id":    req.UserID,
		"public_key": req.PublicKey,
	})
}

func getUser(c *gin.Context, store registrystore.ChatStore) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	user, err := store.SelectUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var unknown *registrystore.UnknownReferenceError
	var conflict *registrystore.ConflictError
	var validation *registrystore.ValidationError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{"code": "unknown_reference", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	default:
		errID := uuid.New()
		log.Error("Internal error", "errorId", errID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("internal server error <%s>: please include this error id in bug reports", errID),
		})
	}
}
