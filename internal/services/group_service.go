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
	logger "github.com/Gopher0727/CampusLink/middleware/log"
)

// GroupService 群组成员引擎
// 每个 (group, user) 的状态机：absent -> active -> {left, removed} -> active（重进）
// 所有依赖成员计数的检查都先锁群组行再数，同群操作串行、异群并行
type GroupService struct {
	db        *gorm.DB
	groupRepo *repositories.GroupRepository
	userRepo  *repositories.UserRepository
	notifRepo *repositories.NotificationRepository
	fanout    Fanout
	logger    *logger.Logger
	limits    config.LimitsConfig
}

// NewGroupService 创建群组服务实例
func NewGroupService(
	db *gorm.DB,
	groupRepo *repositories.GroupRepository,
	userRepo *repositories.UserRepository,
	notifRepo *repositories.NotificationRepository,
	fanout Fanout,
	log *logger.Logger,
	limits config.LimitsConfig,
) *GroupService {
	return &GroupService{
		db:        db,
		groupRepo: groupRepo,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		fanout:    fanout,
		logger:    log,
		limits:    limits,
	}
}

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name             string `json:"name" binding:"required"`
	InitialMemberIDs []uint `json:"initial_member_ids"`
}

// GroupDTO 群组数据传输对象
type GroupDTO struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	MaxMembers  int    `json:"max_members"`
	MemberCount int64  `json:"member_count"`
	IsActive    bool   `json:"is_active"`
	CreatedBy   uint   `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

// GroupMemberDTO 群组成员数据传输对象
type GroupMemberDTO struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// CreateGroup 创建普通群组
// 创建者成为 owner，初始成员（去重、排除创建者）成为 member
// 总人数超过上限则整个操作失败，不留半成品
func (s *GroupService) CreateGroup(ctx context.Context, creatorID uint, req *CreateGroupRequest) (*GroupDTO, error) {
	if len(req.Name) < 1 || len(req.Name) > 50 {
		return nil, errs.Validation("group name length invalid")
	}

	// 去重并排除创建者
	seen := map[uint]bool{creatorID: true}
	memberIDs := make([]uint, 0, len(req.InitialMemberIDs))
	for _, id := range req.InitialMemberIDs {
		if !seen[id] {
			seen[id] = true
			memberIDs = append(memberIDs, id)
		}
	}

	ceiling := s.limits.GroupMaxMembers
	if len(memberIDs)+1 > ceiling {
		return nil, errs.CapacityExceeded("group is full")
	}

	for _, id := range memberIDs {
		exists, err := s.userRepo.Exists(id)
		if err != nil {
			return nil, errs.Unavailable(err)
		}
		if !exists {
			return nil, errs.NotFound("member user not found")
		}
	}

	group := &models.Group{
		Name:       req.Name,
		Type:       models.GroupTypeRegular,
		MaxMembers: ceiling,
		IsActive:   true,
		CreatedBy:  creatorID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txGroup := s.groupRepo.WithTx(tx)

		if err := txGroup.Create(group); err != nil {
			return errs.Unavailable(err)
		}

		now := time.Now()
		owner := &models.GroupMember{
			GroupID:  group.ID,
			UserID:   creatorID,
			Role:     models.MemberRoleOwner,
			Status:   models.MemberStatusActive,
			ActedBy:  creatorID,
			JoinedAt: now,
		}
		if err := txGroup.CreateMember(owner); err != nil {
			return errs.Unavailable(err)
		}

		for _, id := range memberIDs {
			member := &models.GroupMember{
				GroupID:  group.ID,
				UserID:   id,
				Role:     models.MemberRoleMember,
				Status:   models.MemberStatusActive,
				ActedBy:  creatorID,
				JoinedAt: now,
			}
			if err := txGroup.CreateMember(member); err != nil {
				return errs.Unavailable(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &GroupDTO{
		ID:          group.ID,
		Name:        group.Name,
		Type:        group.Type,
		MaxMembers:  group.MaxMembers,
		MemberCount: int64(len(memberIDs)) + 1,
		IsActive:    group.IsActive,
		CreatedBy:   group.CreatedBy,
		CreatedAt:   group.CreatedAt.Format(time.RFC3339),
	}, nil
}

// AddMember 管理员把用户加进群组
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, targetID uint) error {
	exists, err := s.userRepo.Exists(targetID)
	if err != nil {
		return errs.Unavailable(err)
	}
	if !exists {
		return errs.NotFound("user not found")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txGroup := s.groupRepo.WithTx(tx)

		// 先锁群组行再数成员，两个并发的 addMember 在这里排队，
		// 只剩一个名额时恰好一个成功、另一个撞容量
		group, err := txGroup.LockByID(groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("group not found")
			}
			return errs.Unavailable(err)
		}
		if !group.IsActive {
			return errs.InvalidState("group is not active")
		}

		actor, err := txGroup.GetMember(groupID, actorID)
		if err != nil || actor.Status != models.MemberStatusActive ||
			(actor.Role != models.MemberRoleOwner && actor.Role != models.MemberRoleAdmin) {
			return errs.Forbidden("only group owner or admin can add members")
		}

		return s.activateMember(txGroup, group, targetID, actorID)
	})
	if err != nil {
		if errors.Is(err, errs.KindCapacityExceeded) {
			s.logger.WarnContext(ctx, "群组满员，加人被拒",
				zap.Uint("group_id", groupID),
				zap.Uint("target_id", targetID))
		}
		return err
	}

	s.fanout.Publish(ctx, &NotificationEvent{
		Kind:          NotifyGroupMemberAdded,
		TargetUserIDs: []uint{targetID},
		Payload:       map[string]any{"group_id": groupID, "added_by": actorID},
	})
	return nil
}

// activateMember 容量检查后把目标置为 active/member
// 调用方必须已持有群组行锁；活动报名复用同一套逻辑
func (s *GroupService) activateMember(txGroup *repositories.GroupRepository, group *models.Group, targetID, actorID uint) error {
	member, err := txGroup.GetMember(group.ID, targetID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Unavailable(err)
	}
	if member != nil && member.Status == models.MemberStatusActive {
		return errs.Conflict("user is already an active member")
	}

	count, err := txGroup.CountActiveMembers(group.ID)
	if err != nil {
		return errs.Unavailable(err)
	}
	if count >= int64(group.MaxMembers) {
		return errs.CapacityExceeded("group is full")
	}

	now := time.Now()
	if member != nil {
		// 重进复用旧行：状态回到 active，角色不从历史恢复，一律 member
		member.Status = models.MemberStatusActive
		member.Role = models.MemberRoleMember
		member.ActedBy = actorID
		member.JoinedAt = now
		if err := txGroup.SaveMember(member); err != nil {
			return errs.Unavailable(err)
		}
		return nil
	}

	if err := txGroup.CreateMember(&models.GroupMember{
		GroupID:  group.ID,
		UserID:   targetID,
		Role:     models.MemberRoleMember,
		Status:   models.MemberStatusActive,
		ActedBy:  actorID,
		JoinedAt: now,
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.Conflict("user is already an active member")
		}
		return errs.Unavailable(err)
	}
	return nil
}

// LeaveGroup 成员自助退群
// owner 不能退；普通群不允许退到少于下限（用退出前的计数判断）
func (s *GroupService) LeaveGroup(ctx context.Context, userID, groupID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		txGroup := s.groupRepo.WithTx(tx)

		// 下限检查依赖计数，同样先锁群组行
		group, err := txGroup.LockByID(groupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("group not found")
			}
			return errs.Unavailable(err)
		}

		withFloor := group.Type == models.GroupTypeRegular
		return s.leaveLocked(txGroup, group, userID, withFloor)
	})
}

// leaveLocked 在已持有群组行锁的前提下执行退出
// withFloor 控制人数下限：普通群不许退破下限，活动群可以缩到只剩 owner
func (s *GroupService) leaveLocked(txGroup *repositories.GroupRepository, group *models.Group, userID uint, withFloor bool) error {
	member, err := txGroup.GetMember(group.ID, userID)
	if err != nil || member.Status != models.MemberStatusActive {
		return errs.Forbidden("not an active member of this group")
	}
	if member.Role == models.MemberRoleOwner {
		return errs.InvalidState("owner cannot leave")
	}

	if withFloor {
		count, err := txGroup.CountActiveMembers(group.ID)
		if err != nil {
			return errs.Unavailable(err)
		}
		if count <= int64(s.limits.GroupMinMembers) {
			return errs.InvalidState("group cannot shrink below its minimum size")
		}
	}

	member.Status = models.MemberStatusLeft
	member.ActedBy = userID
	if err := txGroup.SaveMember(member); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// GetGroupMembers 分页获取活跃成员列表
func (s *GroupService) GetGroupMembers(groupID uint, page, pageSize int) ([]GroupMemberDTO, int64, error) {
	offset := (page - 1) * pageSize
	members, total, err := s.groupRepo.ListActiveMembers(groupID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]GroupMemberDTO, 0, len(members))
	for _, m := range members {
		dto := GroupMemberDTO{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt.Format(time.RFC3339),
		}
		if m.User != nil {
			dto.Username = m.User.UserName
			dto.Nickname = m.User.Nickname
		}
		dtos = append(dtos, dto)
	}
	return dtos, total, nil
}

// GetUserGroups 获取用户活跃加入的群组列表
func (s *GroupService) GetUserGroups(userID uint, page, pageSize int) ([]GroupDTO, int64, error) {
	offset := (page - 1) * pageSize
	groups, total, err := s.groupRepo.ListUserGroups(userID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]GroupDTO, 0, len(groups))
	for _, g := range groups {
		count, err := s.groupRepo.CountActiveMembers(g.ID)
		if err != nil {
			return nil, 0, errs.Unavailable(err)
		}
		dtos = append(dtos, GroupDTO{
			ID:          g.ID,
			Name:        g.Name,
			Type:        g.Type,
			MaxMembers:  g.MaxMembers,
			MemberCount: count,
			IsActive:    g.IsActive,
			CreatedBy:   g.CreatedBy,
			CreatedAt:   g.CreatedAt.Format(time.RFC3339),
		})
	}
	return dtos, total, nil
}
