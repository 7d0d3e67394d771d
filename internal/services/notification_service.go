package services

import (
	"time"

	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/repositories"
)

// NotificationService 通知查询服务，引擎只写、这里只读
type NotificationService struct {
	notifRepo *repositories.NotificationRepository
}

// NewNotificationService 创建通知查询服务实例
func NewNotificationService(notifRepo *repositories.NotificationRepository) *NotificationService {
	return &NotificationService{notifRepo: notifRepo}
}

// NotificationDTO 通知数据传输对象
type NotificationDTO struct {
	ID        int64   `json:"id"`
	Kind      string  `json:"kind"`
	Payload   string  `json:"payload"`
	SeenAt    *string `json:"seen_at"`
	CreatedAt string  `json:"created_at"`
}

// List 分页列出用户的通知
func (s *NotificationService) List(userID uint, page, pageSize int) ([]NotificationDTO, int64, error) {
	offset := (page - 1) * pageSize
	ns, total, err := s.notifRepo.ListForUser(userID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]NotificationDTO, 0, len(ns))
	for _, n := range ns {
		dto := NotificationDTO{
			ID:        n.ID,
			Kind:      n.Kind,
			Payload:   n.Payload,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
		if n.SeenAt != nil {
			seen := n.SeenAt.Format(time.RFC3339)
			dto.SeenAt = &seen
		}
		dtos = append(dtos, dto)
	}
	return dtos, total, nil
}

// MarkSeen 标记通知为已读，只能标记自己的
func (s *NotificationService) MarkSeen(userID uint, ids []int64) error {
	if err := s.notifRepo.MarkSeen(userID, ids); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}
