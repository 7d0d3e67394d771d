package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/internal/services"
)

// GroupHandler 群组处理器
type GroupHandler struct {
	groupService *services.GroupService
}

// NewGroupHandler 创建群组处理器实例
func NewGroupHandler(groupService *services.GroupService) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
	}
}

// CreateGroup 创建群组
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, group)
}

// AddMember 把用户加进群组
func (h *GroupHandler) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
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

	if err := h.groupService.AddMember(c.Request.Context(), userID, groupID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// LeaveGroup 退出群组
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.groupService.LeaveGroup(c.Request.Context(), userID, groupID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// GetGroupMembers 获取群组成员列表
func (h *GroupHandler) GetGroupMembers(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	members, total, err := h.groupService.GetGroupMembers(groupID, page, pageSize)
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

// GetUserGroups 获取我所在的群组列表
func (h *GroupHandler) GetUserGroups(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	groups, total, err := h.groupService.GetUserGroups(userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"groups":    groups,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
