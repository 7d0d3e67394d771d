package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// NotificationHandler 通知处理器
type NotificationHandler struct {
	notifService *services.NotificationService
}

// NewNotificationHandler 创建通知处理器实例
func NewNotificationHandler(notifService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
	}
}

// ListNotifications 列出我的通知
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	ns, total, err := h.notifService.List(userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"notifications": ns,
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
	})
}

// MarkSeen 标记通知为已读
func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	type seenRequest struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	var req seenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.notifService.MarkSeen(userID, req.IDs); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
