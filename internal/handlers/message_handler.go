package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// MessageHandler 私信处理器
type MessageHandler struct {
	messageService *services.MessageService
}

// NewMessageHandler 创建私信处理器实例
func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
	}
}

// SendMessage 发送私信
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	type sendRequest struct {
		ReceiverID uint   `json:"receiver_id" binding:"required"`
		Content    string `json:"content"`
		Attachment string `json:"attachment"`
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageService.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.Attachment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// MarkRead 标记某个会话里对方发来的消息为已读
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	senderID, ok := pathID(c, "peer_id")
	if !ok {
		return
	}

	ids, err := h.messageService.MarkRead(c.Request.Context(), userID, senderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"read_message_ids": ids})
}

// GetConversation 获取和某个用户的消息记录
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	peerID, ok := pathID(c, "peer_id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	messages, total, err := h.messageService.GetConversation(userID, peerID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"messages":  messages,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetUnreadCount 获取某个会话的未读数
func (h *MessageHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	peerID, ok := pathID(c, "peer_id")
	if !ok {
		return
	}

	count, err := h.messageService.GetUnreadCount(userID, peerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"unread": count})
}
