// Package contacts provides the /api/contacts route adapters.
package contacts

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

type contactRef struct {
	OwnerID int64 `json:"owner_id" binding:"required"`
	UserID  int64 `json:"user_id"  binding:"required"`
}

// MountRoutes mounts contact routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore) {
	g := r.Group("/api")

	g.POST("/contacts", func(c *gin.Context) {
		createContact(c, store)
	})
	g.GET("/contacts/:ownerId", func(c *gin.Context) {
		listContacts(c, store)
	})
	g.PATCH("/contacts", func(c *gin.Context) {
		alterContact(c, store)
	})
	g.DELETE("/contacts", func(c *gin.Context) {
		deleteContact(c, store)
	})
}

func createContact(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		contactRef
		Alias string `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	if err := store.InsertContact(c.Request.Context(), req.OwnerID, req.UserID, req.Alias); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"owner_id": req.OwnerID,
		"user_id":  req.UserID,
		"alias":    req.Alias,
	})
}

func listContacts(c *gin.Context, store registrystore.ChatStore) {
	ownerID, err := strconv.ParseInt(c.Param("ownerId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	contacts, err := store.SelectMyContacts(c.Request.Context(), ownerID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func alterContact(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		contactRef
		Alias string `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	// Altering a pair that does not exist is a deliberate zero-change success.
	changed, err := store.AlterMyContact(c.Request.Context(), req.OwnerID, req.UserID, req.Alias)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func deleteContact(c *gin.Context, store registrystore.ChatStore) {
	var req contactRef
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	removed, err := store.DeleteMyContact(c.Request.Context(), req.OwnerID, req.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
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
