package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
)

// BodyService 组织（社团/院系）服务
// 活动权限裁决的数据来源：谁属于哪个组织、谁是 manager
type BodyService struct {
	bodyRepo  *repositories.BodyRepository
	userRepo  *repositories.UserRepository
	eventRepo *repositories.EventRepository
}

// NewBodyService 创建组织服务实例
func NewBodyService(
	bodyRepo *repositories.BodyRepository,
	userRepo *repositories.UserRepository,
	eventRepo *repositories.EventRepository,
) *BodyService {
	return &BodyService{
		bodyRepo:  bodyRepo,
		userRepo:  userRepo,
		eventRepo: eventRepo,
	}
}

// CreateBodyRequest 创建组织请求
type CreateBodyRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// BodyDTO 组织数据传输对象
type BodyDTO struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   uint   `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

// BodyMemberDTO 组织成员数据传输对象
type BodyMemberDTO struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

func bodyToDTO(body *models.Body) *BodyDTO {
	return &BodyDTO{
		ID:          body.ID,
		Name:        body.Name,
		Description: body.Description,
		CreatedBy:   body.CreatedBy,
		CreatedAt:   body.CreatedAt.Format(time.RFC3339),
	}
}

// CreateBody 创建组织，创建者成为 manager
func (s *BodyService) CreateBody(creatorID uint, req *CreateBodyRequest) (*BodyDTO, error) {
	if len(req.Name) < 1 || len(req.Name) > 50 {
		return nil, errs.Validation("body name length invalid")
	}

	body := &models.Body{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   creatorID,
	}
	if err := s.bodyRepo.Create(body); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.Conflict("body name already exists")
		}
		return nil, errs.Unavailable(err)
	}

	if err := s.bodyRepo.AddMember(&models.BodyMember{
		BodyID: body.ID,
		UserID: creatorID,
		Role:   models.BodyRoleManager,
	}); err != nil {
		return nil, errs.Unavailable(err)
	}

	return bodyToDTO(body), nil
}

// Join 加入组织，重复加入是无操作
func (s *BodyService) Join(userID, bodyID uint) error {
	if _, err := s.bodyRepo.GetByID(bodyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("body not found")
		}
		return errs.Unavailable(err)
	}
	if err := s.bodyRepo.AddMember(&models.BodyMember{
		BodyID: bodyID,
		UserID: userID,
		Role:   models.BodyRoleMember,
	}); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// GetBody 获取组织详情
func (s *BodyService) GetBody(bodyID uint) (*BodyDTO, error) {
	body, err := s.bodyRepo.GetByID(bodyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("body not found")
		}
		return nil, errs.Unavailable(err)
	}
	return bodyToDTO(body), nil
}

// GetMembers 分页列出组织成员
func (s *BodyService) GetMembers(bodyID uint, page, pageSize int) ([]BodyMemberDTO, int64, error) {
	offset := (page - 1) * pageSize
	members, total, err := s.bodyRepo.ListMembers(bodyID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]BodyMemberDTO, 0, len(members))
	for _, m := range members {
		dtos = append(dtos, BodyMemberDTO{UserID: m.UserID, Role: m.Role})
	}
	return dtos, total, nil
}

// GetEvents 列出组织的活动
func (s *BodyService) GetEvents(bodyID uint, page, pageSize int) ([]EventDTO, int64, error) {
	offset := (page - 1) * pageSize
	events, total, err := s.eventRepo.ListForBody(bodyID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]EventDTO, 0, len(events))
	for i := range events {
		dtos = append(dtos, *eventToDTO(&events[i]))
	}
	return dtos, total, nil
}
