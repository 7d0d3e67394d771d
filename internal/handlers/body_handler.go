package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// BodyHandler 组织处理器
type BodyHandler struct {
	bodyService *services.BodyService
}

// NewBodyHandler 创建组织处理器实例
func NewBodyHandler(bodyService *services.BodyService) *BodyHandler {
	return &BodyHandler{
		bodyService: bodyService,
	}
}

// CreateBody 创建组织
func (h *BodyHandler) CreateBody(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateBodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := h.bodyService.CreateBody(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, body)
}

// JoinBody 加入组织
func (h *BodyHandler) JoinBody(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	bodyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.bodyService.Join(userID, bodyID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// GetBody 获取组织详情
func (h *BodyHandler) GetBody(c *gin.Context) {
	bodyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	body, err := h.bodyService.GetBody(bodyID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, body)
}

// GetBodyMembers 获取组织成员列表
func (h *BodyHandler) GetBodyMembers(c *gin.Context) {
	bodyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	members, total, err := h.bodyService.GetMembers(bodyID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"members":   members,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetBodyEvents 获取组织的活动列表
func (h *BodyHandler) GetBodyEvents(c *gin.Context) {
	bodyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	events, total, err := h.bodyService.GetEvents(bodyID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"events":    events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
