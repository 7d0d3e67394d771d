package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// EventHandler 活动处理器
type EventHandler struct {
	eventService *services.EventService
}

// NewEventHandler 创建活动处理器实例
func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
	}
}

// CreateEvent 创建活动
func (h *EventHandler) CreateEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.eventService.CreateEvent(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, event)
}

// GetEvent 获取活动详情
func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.eventService.GetEvent(eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, event)
}

// UpdateEvent 编辑活动
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.eventService.Update(c.Request.Context(), userID, eventID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, event)
}

// PublishEvent 发布活动
func (h *EventHandler) PublishEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.eventService.Publish(c.Request.Context(), userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, event)
}

// CancelEvent 取消活动
func (h *EventHandler) CancelEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.eventService.Cancel(c.Request.Context(), userID, eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, event)
}

// JoinEvent 报名活动
func (h *EventHandler) JoinEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.eventService.Join(c.Request.Context(), userID, eventID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// LeaveEvent 退出活动
func (h *EventHandler) LeaveEvent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.eventService.Leave(c.Request.Context(), userID, eventID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// SendGroupMessage 发送活动群聊消息
func (h *EventHandler) SendGroupMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	type sendRequest struct {
		Content string `json:"content" binding:"required"`
		MsgType string `json:"msg_type"`
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.eventService.SendGroupMessage(c.Request.Context(), userID, eventID, req.Content, req.MsgType)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// GetGroupMessages 获取活动群聊记录
func (h *EventHandler) GetGroupMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	messages, total, err := h.eventService.GetGroupMessages(userID, eventID, page, pageSize)
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

// AddEventAdmin 添加活动管理员
func (h *EventHandler) AddEventAdmin(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	type addRequest struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.eventService.AddEventAdmin(c.Request.Context(), userID, eventID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// AddEventOrganizer 添加活动组织者
func (h *EventHandler) AddEventOrganizer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	type addRequest struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.eventService.AddEventOrganizer(c.Request.Context(), userID, eventID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
