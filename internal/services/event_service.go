package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/config"
	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	"github.com/Gopher0727/CampusLink/internal/storage"
	logger "github.com/Gopher0727/CampusLink/middleware/log"
)

// BodyGate 组织权限断言，活动创建等操作的外部裁决者
type BodyGate interface {
	HasBodyPermission(userID, bodyID uint, action string) (bool, error)
}

// BodyDirectory 基于 body_members 表的默认权限实现
// manager 角色可以创建活动，成员资格即普通权限
type BodyDirectory struct {
	bodyRepo *repositories.BodyRepository
}

// NewBodyDirectory 创建默认的组织权限实现
func NewBodyDirectory(bodyRepo *repositories.BodyRepository) *BodyDirectory {
	return &BodyDirectory{bodyRepo: bodyRepo}
}

func (d *BodyDirectory) HasBodyPermission(userID, bodyID uint, action string) (bool, error) {
	member, err := d.bodyRepo.GetMember(bodyID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	switch action {
	case "event.create":
		return member.Role == models.BodyRoleManager, nil
	default:
		return true, nil
	}
}

// EventService 活动引擎，基于群组成员引擎特化
// 状态机：draft --publish--> published --cancel--> cancelled
// completed 为终态，只由外部调度流程写入
type EventService struct {
	db           *gorm.DB
	eventRepo    *repositories.EventRepository
	groupRepo    *repositories.GroupRepository
	bodyRepo     *repositories.BodyRepository
	notifRepo    *repositories.NotificationRepository
	groupService *GroupService
	bodyGate     BodyGate
	redis        *storage.RedisClient
	fanout       Fanout
	logger       *logger.Logger
	limits       config.LimitsConfig
}

// NewEventService 创建活动服务实例
func NewEventService(
	db *gorm.DB,
	eventRepo *repositories.EventRepository,
	groupRepo *repositories.GroupRepository,
	bodyRepo *repositories.BodyRepository,
	notifRepo *repositories.NotificationRepository,
	groupService *GroupService,
	bodyGate BodyGate,
	redisClient *storage.RedisClient,
	fanout Fanout,
	log *logger.Logger,
	limits config.LimitsConfig,
) *EventService {
	return &EventService{
		db:           db,
		eventRepo:    eventRepo,
		groupRepo:    groupRepo,
		bodyRepo:     bodyRepo,
		notifRepo:    notifRepo,
		groupService: groupService,
		bodyGate:     bodyGate,
		redis:        redisClient,
		fanout:       fanout,
		logger:       log,
		limits:       limits,
	}
}

// canTransition 活动状态迁移表
func canTransition(from, to string) bool {
	switch {
	case from == models.EventDraft && to == models.EventPublished:
		return true
	case from == models.EventPublished && to == models.EventCancelled:
		return true
	default:
		return false
	}
}

// isUpdatable 只有 draft/published 允许编辑字段
func isUpdatable(status string) bool {
	return status == models.EventDraft || status == models.EventPublished
}

// chatAllowed 活动群聊是否开放
// draft/published 一直开放；cancelled 后保留一个宽限窗口；completed 关闭
func chatAllowed(status string, cancelledAt *time.Time, now time.Time, grace time.Duration) bool {
	switch status {
	case models.EventDraft, models.EventPublished:
		return true
	case models.EventCancelled:
		return cancelledAt != nil && now.Before(cancelledAt.Add(grace))
	default:
		return false
	}
}

// eventCeiling 活动群容量：min(capacity, 硬上限)，不限容量时取硬上限
func eventCeiling(capacity *int, cap int) int {
	if capacity != nil && *capacity < cap {
		return *capacity
	}
	return cap
}

// CreateEventRequest 创建活动请求
type CreateEventRequest struct {
	BodyID      uint       `json:"body_id" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Capacity    *int       `json:"capacity"`
	StartTime   time.Time  `json:"start_time" binding:"required"`
	EndTime     time.Time  `json:"end_time" binding:"required"`
}

// UpdateEventRequest 编辑活动请求，nil 字段表示不改
type UpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Capacity    *int       `json:"capacity"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// EventDTO 活动数据传输对象
type EventDTO struct {
	ID          uint    `json:"id"`
	GroupID     uint    `json:"group_id"`
	BodyID      uint    `json:"body_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Status      string  `json:"status"`
	Capacity    *int    `json:"capacity"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	CancelledAt *string `json:"cancelled_at,omitempty"`
	CreatedBy   uint    `json:"created_by"`
}

func eventToDTO(event *models.Event) *EventDTO {
	dto := &EventDTO{
		ID:          event.ID,
		GroupID:     event.GroupID,
		BodyID:      event.BodyID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		Capacity:    event.Capacity,
		StartTime:   event.StartTime.Format(time.RFC3339),
		EndTime:     event.EndTime.Format(time.RFC3339),
		CreatedBy:   event.CreatedBy,
	}
	if event.CancelledAt != nil {
		cancelled := event.CancelledAt.Format(time.RFC3339)
		dto.CancelledAt = &cancelled
	}
	return dto
}

// CreateEvent 创建活动
// 一个事务内同时建：活动群（type=event）、owner 成员行、draft 活动行、创建者的管理员行
func (s *EventService) CreateEvent(ctx context.Context, creatorID uint, req *CreateEventRequest) (*EventDTO, error) {
	if len(req.Title) < 1 || len(req.Title) > 100 {
		return nil, errs.Validation("event title length invalid")
	}
	if req.Capacity != nil && *req.Capacity < 1 {
		return nil, errs.Validation("capacity must be positive")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, errs.Validation("end time must be after start time")
	}

	allowed, err := s.bodyGate.HasBodyPermission(creatorID, req.BodyID, "event.create")
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if !allowed {
		return nil, errs.Forbidden("no permission to create events for this body")
	}
	isMember, err := s.bodyRepo.IsMember(req.BodyID, creatorID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if !isMember {
		return nil, errs.Forbidden("event creator must be a member of the body")
	}

	event := &models.Event{
		BodyID:      req.BodyID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Status:      models.EventDraft,
		Capacity:    req.Capacity,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedBy:   creatorID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txGroup := s.groupRepo.WithTx(tx)
		txEvent := s.eventRepo.WithTx(tx)

		group := &models.Group{
			Name:       req.Title,
			Type:       models.GroupTypeEvent,
			MaxMembers: eventCeiling(req.Capacity, s.limits.EventMaxMembers),
			IsActive:   true,
			CreatedBy:  creatorID,
		}
		if err := txGroup.Create(group); err != nil {
			return errs.Unavailable(err)
		}

		if err := txGroup.CreateMember(&models.GroupMember{
			GroupID:  group.ID,
			UserID:   creatorID,
			Role:     models.MemberRoleOwner,
			Status:   models.MemberStatusActive,
			ActedBy:  creatorID,
			JoinedAt: time.Now(),
		}); err != nil {
			return errs.Unavailable(err)
		}

		event.GroupID = group.ID
		if err := txEvent.Create(event); err != nil {
			return errs.Unavailable(err)
		}

		if err := txEvent.AddAdmin(&models.EventAdmin{
			EventID: event.ID,
			UserID:  creatorID,
			AddedBy: creatorID,
		}); err != nil {
			return errs.Unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return eventToDTO(event), nil
}

// requireAdmin 操作者必须在活动管理员集合里
func (s *EventService) requireAdmin(txEvent *repositories.EventRepository, eventID, userID uint) error {
	isAdmin, err := txEvent.IsAdmin(eventID, userID)
	if err != nil {
		return errs.Unavailable(err)
	}
	if !isAdmin {
		return errs.Forbidden("only event admins can do this")
	}
	return nil
}

// transition 锁活动行后执行一次状态迁移
func (s *EventService) transition(ctx context.Context, actorID, eventID uint, to string) (*models.Event, error) {
	var event *models.Event
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txEvent := s.eventRepo.WithTx(tx)

		locked, err := txEvent.LockByID(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("event not found")
			}
			return errs.Unavailable(err)
		}

		if err := s.requireAdmin(txEvent, eventID, actorID); err != nil {
			return err
		}
		if !canTransition(locked.Status, to) {
			return errs.InvalidState("event cannot move from " + locked.Status + " to " + to)
		}

		locked.Status = to
		if to == models.EventCancelled {
			now := time.Now()
			locked.CancelledAt = &now
		}
		if err := txEvent.Save(locked); err != nil {
			return errs.Unavailable(err)
		}
		event = locked

		kind := NotifyEventPublished
		if to == models.EventCancelled {
			kind = NotifyEventCancelled
		}
		targets, err := s.activeMemberIDs(tx, locked.GroupID)
		if err != nil {
			return errs.Unavailable(err)
		}
		return persistNotifications(s.notifRepo.WithTx(tx), &NotificationEvent{
			Kind:          kind,
			TargetUserIDs: targets,
			Payload:       map[string]any{"event_id": locked.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	kind := NotifyEventPublished
	if to == models.EventCancelled {
		kind = NotifyEventCancelled
	}
	targets, terr := s.activeMemberIDs(s.db, event.GroupID)
	if terr == nil {
		s.fanout.Publish(ctx, &NotificationEvent{
			Kind:          kind,
			TargetUserIDs: targets,
			Payload:       map[string]any{"event_id": event.ID},
		})
	}
	return event, nil
}

// activeMemberIDs 活动群的全部活跃成员ID
func (s *EventService) activeMemberIDs(db *gorm.DB, groupID uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.GroupMember{}).
		Where("group_id = ? AND status = ?", groupID, models.MemberStatusActive).
		Pluck("user_id", &ids).Error
	return ids, err
}

// Publish 发布活动，只能从 draft 出发
func (s *EventService) Publish(ctx context.Context, actorID, eventID uint) (*EventDTO, error) {
	event, err := s.transition(ctx, actorID, eventID, models.EventPublished)
	if err != nil {
		return nil, err
	}
	return eventToDTO(event), nil
}

// Cancel 取消活动，只能从 published 出发，记录取消时刻
func (s *EventService) Cancel(ctx context.Context, actorID, eventID uint) (*EventDTO, error) {
	event, err := s.transition(ctx, actorID, eventID, models.EventCancelled)
	if err != nil {
		return nil, err
	}
	return eventToDTO(event), nil
}

// Update 编辑活动字段，仅 draft/published 可编辑
// 降容量时不得低于当前活跃成员数；容量变化同步到活动群上限
func (s *EventService) Update(ctx context.Context, actorID, eventID uint, req *UpdateEventRequest) (*EventDTO, error) {
	if req.Capacity != nil && *req.Capacity < 1 {
		return nil, errs.Validation("capacity must be positive")
	}

	var event *models.Event
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txEvent := s.eventRepo.WithTx(tx)
		txGroup := s.groupRepo.WithTx(tx)

		locked, err := txEvent.LockByID(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("event not found")
			}
			return errs.Unavailable(err)
		}

		if err := s.requireAdmin(txEvent, eventID, actorID); err != nil {
			return err
		}
		if !isUpdatable(locked.Status) {
			return errs.InvalidState("event can only be edited in draft or published state")
		}

		if req.Capacity != nil {
			// 容量检查依赖成员计数，锁定活动群再数
			group, err := txGroup.LockByID(locked.GroupID)
			if err != nil {
				return errs.Unavailable(err)
			}
			count, err := txGroup.CountActiveMembers(group.ID)
			if err != nil {
				return errs.Unavailable(err)
			}
			if int64(*req.Capacity) < count {
				return errs.InvalidState("capacity cannot fall below current member count")
			}
			locked.Capacity = req.Capacity
			if err := txGroup.UpdateMaxMembers(group.ID, eventCeiling(req.Capacity, s.limits.EventMaxMembers)); err != nil {
				return errs.Unavailable(err)
			}
		}
		if req.Title != nil {
			if len(*req.Title) < 1 || len(*req.Title) > 100 {
				return errs.Validation("event title length invalid")
			}
			locked.Title = *req.Title
		}
		if req.Description != nil {
			locked.Description = *req.Description
		}
		if req.Location != nil {
			locked.Location = *req.Location
		}
		if req.StartTime != nil {
			locked.StartTime = *req.StartTime
		}
		if req.EndTime != nil {
			locked.EndTime = *req.EndTime
		}
		if !locked.EndTime.After(locked.StartTime) {
			return errs.Validation("end time must be after start time")
		}

		if err := txEvent.Save(locked); err != nil {
			return errs.Unavailable(err)
		}
		event = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eventToDTO(event), nil
}

// Join 用户报名活动
// 活动必须已发布；先过跨活动的单用户配额，再走锁定-计数的容量检查
func (s *EventService) Join(ctx context.Context, userID, eventID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txEvent := s.eventRepo.WithTx(tx)
		txGroup := s.groupRepo.WithTx(tx)

		event, err := txEvent.LockByID(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("event not found")
			}
			return errs.Unavailable(err)
		}
		if event.Status != models.EventPublished {
			return errs.InvalidState("event is not open for joining")
		}

		// 跨活动配额：published/completed 活动里的活跃成员数
		active, err := txEvent.CountUserActiveEventMemberships(userID)
		if err != nil {
			return errs.Unavailable(err)
		}
		if active >= int64(s.limits.UserEventQuota) {
			return errs.QuotaExceeded("too many concurrent events")
		}

		group, err := txGroup.LockByID(event.GroupID)
		if err != nil {
			return errs.Unavailable(err)
		}
		return s.groupService.activateMember(txGroup, group, userID, userID)
	})
	if err != nil {
		if errors.Is(err, errs.KindQuotaExceeded) || errors.Is(err, errs.KindCapacityExceeded) {
			s.logger.WarnContext(ctx, "活动报名被拒",
				zap.Uint("user_id", userID),
				zap.Uint("event_id", eventID),
				zap.Error(err))
		}
		return err
	}
	return nil
}

// Leave 用户退出活动
// owner 不能退；活动群有意不设人数下限，可以缩到只剩 owner
func (s *EventService) Leave(ctx context.Context, userID, eventID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		txEvent := s.eventRepo.WithTx(tx)
		txGroup := s.groupRepo.WithTx(tx)

		event, err := txEvent.LockByID(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("event not found")
			}
			return errs.Unavailable(err)
		}

		group, err := txGroup.LockByID(event.GroupID)
		if err != nil {
			return errs.Unavailable(err)
		}
		return s.groupService.leaveLocked(txGroup, group, userID, false)
	})
}

// GroupMessageDTO 群聊消息数据传输对象
type GroupMessageDTO struct {
	ID          int64  `json:"id"`
	GroupID     uint   `json:"group_id"`
	SenderID    uint   `json:"sender_id"`
	Content     string `json:"content"`
	MsgType     string `json:"msg_type"`
	SequenceID  int64  `json:"sequence_id"`
	IsOrganizer bool   `json:"is_organizer"`
	CreatedAt   string `json:"created_at"`
}

// SendGroupMessage 发送活动群聊消息
// 活跃成员在 draft/published 期间可聊；取消后有宽限窗口；之后拒绝
func (s *EventService) SendGroupMessage(ctx context.Context, senderID, eventID uint, content, msgType string) (*GroupMessageDTO, error) {
	if len(content) == 0 || len(content) > 5000 {
		return nil, errs.Validation("message content invalid")
	}
	if msgType == "" {
		msgType = "text"
	}

	event, err := s.eventRepo.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("event not found")
		}
		return nil, errs.Unavailable(err)
	}

	member, err := s.groupRepo.GetMember(event.GroupID, senderID)
	if err != nil || member.Status != models.MemberStatusActive {
		return nil, errs.Forbidden("not an active member of this event")
	}

	if !chatAllowed(event.Status, event.CancelledAt, time.Now(), s.limits.CancelledChatGrace()) {
		return nil, errs.Forbidden("event chat is closed")
	}

	// isOrganizer：发送者在管理员或组织者集合里即为真
	isAdmin, err := s.eventRepo.IsAdmin(eventID, senderID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	isOrganizer := isAdmin
	if !isOrganizer {
		isOrganizer, err = s.eventRepo.IsOrganizer(eventID, senderID)
		if err != nil {
			return nil, errs.Unavailable(err)
		}
	}

	seqID, err := s.redis.GenerateSeqID(ctx, event.GroupID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	msg := &models.GroupMessage{
		GroupID:     event.GroupID,
		SenderID:    senderID,
		Content:     content,
		MsgType:     msgType,
		SequenceID:  seqID,
		IsOrganizer: isOrganizer,
	}
	if err := s.eventRepo.CreateGroupMessage(msg); err != nil {
		return nil, errs.Unavailable(err)
	}

	// 推送目标是群里除发送者外的活跃成员
	targets, terr := s.activeMemberIDs(s.db, event.GroupID)
	if terr == nil {
		recipients := make([]uint, 0, len(targets))
		for _, id := range targets {
			if id != senderID {
				recipients = append(recipients, id)
			}
		}
		s.fanout.Publish(ctx, &NotificationEvent{
			Kind:          NotifyGroupMessage,
			TargetUserIDs: recipients,
			Payload: map[string]any{
				"group_id":     msg.GroupID,
				"message_id":   msg.ID,
				"sender_id":    senderID,
				"sequence_id":  seqID,
				"is_organizer": isOrganizer,
			},
		})
	}

	return &GroupMessageDTO{
		ID:          msg.ID,
		GroupID:     msg.GroupID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		MsgType:     msg.MsgType,
		SequenceID:  msg.SequenceID,
		IsOrganizer: msg.IsOrganizer,
		CreatedAt:   msg.CreatedAt.Format(time.RFC3339),
	}, nil
}

// GetGroupMessages 分页获取活动群聊消息
func (s *EventService) GetGroupMessages(userID, eventID uint, page, pageSize int) ([]GroupMessageDTO, int64, error) {
	event, err := s.eventRepo.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, errs.NotFound("event not found")
		}
		return nil, 0, errs.Unavailable(err)
	}

	member, err := s.groupRepo.GetMember(event.GroupID, userID)
	if err != nil || member.Status != models.MemberStatusActive {
		return nil, 0, errs.Forbidden("not an active member of this event")
	}

	offset := (page - 1) * pageSize
	messages, total, err := s.eventRepo.ListGroupMessages(event.GroupID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]GroupMessageDTO, 0, len(messages))
	for _, m := range messages {
		dtos = append(dtos, GroupMessageDTO{
			ID:          m.ID,
			GroupID:     m.GroupID,
			SenderID:    m.SenderID,
			Content:     m.Content,
			MsgType:     m.MsgType,
			SequenceID:  m.SequenceID,
			IsOrganizer: m.IsOrganizer,
			CreatedAt:   m.CreatedAt.Format(time.RFC3339),
		})
	}
	return dtos, total, nil
}

// AddEventAdmin 添加活动管理员
// 操作者必须已是管理员；目标必须是活动所属组织的成员；幂等
func (s *EventService) AddEventAdmin(ctx context.Context, actorID, eventID, targetID uint) error {
	event, err := s.eventRepo.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("event not found")
		}
		return errs.Unavailable(err)
	}

	if err := s.requireAdmin(s.eventRepo, eventID, actorID); err != nil {
		return err
	}

	isMember, err := s.bodyRepo.IsMember(event.BodyID, targetID)
	if err != nil {
		return errs.Unavailable(err)
	}
	if !isMember {
		return errs.Forbidden("event admin must be a member of the body")
	}

	if err := s.eventRepo.AddAdmin(&models.EventAdmin{
		EventID: eventID,
		UserID:  targetID,
		AddedBy: actorID,
	}); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// AddEventOrganizer 添加活动组织者，操作者必须是管理员，幂等
func (s *EventService) AddEventOrganizer(ctx context.Context, actorID, eventID, targetID uint) error {
	if _, err := s.eventRepo.GetByID(eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("event not found")
		}
		return errs.Unavailable(err)
	}

	if err := s.requireAdmin(s.eventRepo, eventID, actorID); err != nil {
		return err
	}

	if err := s.eventRepo.AddOrganizer(&models.EventOrganizer{
		EventID: eventID,
		UserID:  targetID,
		AddedBy: actorID,
	}); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// GetEvent 获取活动详情
func (s *EventService) GetEvent(eventID uint) (*EventDTO, error) {
	event, err := s.eventRepo.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("event not found")
		}
		return nil, errs.Unavailable(err)
	}
	return eventToDTO(event), nil
}
