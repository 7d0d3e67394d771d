package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// RelationshipHandler 连接与拉黑处理器
type RelationshipHandler struct {
	relService *services.RelationshipService
}

// NewRelationshipHandler 创建连接处理器实例
func NewRelationshipHandler(relService *services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{
		relService: relService,
	}
}

// RequestConnection 发起连接请求
func (h *RelationshipHandler) RequestConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	type connectRequest struct {
		ReceiverID uint `json:"receiver_id" binding:"required"`
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.relService.RequestConnection(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, conn)
}

// RespondToConnection 接受或拒绝连接请求
func (h *RelationshipHandler) RespondToConnection(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	connID, ok := pathID(c, "id")
	if !ok {
		return
	}

	type respondRequest struct {
		Status string `json:"status" binding:"required"`
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.relService.RespondToConnection(c.Request.Context(), connID, userID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, conn)
}

// ListConnections 列出我的连接，可按状态过滤
func (h *RelationshipHandler) ListConnections(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	conns, total, err := h.relService.ListConnections(userID, c.Query("status"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"connections": conns,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// Block 拉黑用户
func (h *RelationshipHandler) Block(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.relService.Block(c.Request.Context(), userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Unblock 解除拉黑
func (h *RelationshipHandler) Unblock(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.relService.Unblock(c.Request.Context(), userID, targetID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
