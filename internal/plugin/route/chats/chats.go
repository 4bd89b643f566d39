// Package chats provides the /api/chats route adapters.
package chats

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

// MountRoutes mounts chat routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore) {
	g := r.Group("/api")

	g.POST("/chats", func(c *gin.Context) {
		createChat(c, store)
	})
	g.GET("/chats/:chatId", func(c *gin.Context) {
		getChat(c, store)
	})
	g.GET("/chats/user/:userId", func(c *gin.Context) {
		listUserChats(c, store)
	})
}

func createChat(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		Users []int64  `json:"users"                          binding:"required"`
		Keys  []string `json:"sym_key_enc_by_owners_pub_keys" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	chatID, err := store.InsertChat(c.Request.Context(), req.Users, req.Keys)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"chat_id":                        chatID,
		"users":                          req.Users,
		"sym_key_enc_by_owners_pub_keys": req.Keys,
	})
}

func getChat(c *gin.Context, store registrystore.ChatStore) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "chat not found"})
		return
	}

	chat, err := store.SelectChat(c.Request.Context(), chatID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func listUserChats(c *gin.Context, store registrystore.ChatStore) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "user not found"})
		return
	}

	chats, err := store.SelectMyChats(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
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
