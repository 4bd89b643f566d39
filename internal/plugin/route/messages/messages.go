// Package messages provides the /api/message route adapters: posting new
// messages and polling for updates by cursor. Push delivery is intentionally
// absent; clients poll /api/message/updates with the last timestamp they saw.
package messages

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chirino/cryptochat-server/internal/model"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MountRoutes mounts message routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ChatStore) {
	g := r.Group("/api")

	g.POST("/message/new", func(c *gin.Context) {
		createMessage(c, store)
	})
	g.POST("/message/updates", func(c *gin.Context) {
		messageUpdates(c, store)
	})
	g.GET("/chats/:chatId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
}

func createMessage(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		ChatID   int64  `json:"chat_id"   binding:"required"`
		SenderID int64  `json:"sender_id" binding:"required"`
		Message  string `json:"message"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	ts, err := store.InsertMessage(c.Request.Context(), req.ChatID, req.SenderID, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"chat_id":   req.ChatID,
		"sender_id": req.SenderID,
		"message":   req.Message,
		"timestamp": ts,
	})
}

func messageUpdates(c *gin.Context, store registrystore.ChatStore) {
	var req struct {
		ChatID int64    `json:"chat_id" binding:"required"`
		Cursor *float64 `json:"cursor"  binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	msgs, err := store.SelectMessageUpdates(c.Request.Context(), req.ChatID, *req.Cursor)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

func listMessages(c *gin.Context, store registrystore.ChatStore) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	msgs, err := store.SelectMyMessages(c.Request.Context(), chatID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

func chatParam(c *gin.Context) (int64, bool) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "chat not found"})
		return 0, false
	}
	return chatID, true
}

// emptyIfNil keeps "no messages" serialized as [] instead of null.
func emptyIfNil(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
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
