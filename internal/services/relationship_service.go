package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/CampusLink/config"
	"github.com/Gopher0727/CampusLink/internal/errs"
	"github.com/Gopher0727/CampusLink/internal/limiter"
	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	logger "github.com/Gopher0727/CampusLink/middleware/log"
)

// RelationshipService 连接请求与拉黑服务
type RelationshipService struct {
	db        *gorm.DB
	connRepo  *repositories.ConnectionRepository
	blockRepo *repositories.BlockRepository
	userRepo  *repositories.UserRepository
	notifRepo *repositories.NotificationRepository
	fanout    Fanout
	logger    *logger.Logger
	limits    config.LimitsConfig
}

// NewRelationshipService 创建连接请求服务实例
func NewRelationshipService(
	db *gorm.DB,
	connRepo *repositories.ConnectionRepository,
	blockRepo *repositories.BlockRepository,
	userRepo *repositories.UserRepository,
	notifRepo *repositories.NotificationRepository,
	fanout Fanout,
	log *logger.Logger,
	limits config.LimitsConfig,
) *RelationshipService {
	return &RelationshipService{
		db:        db,
		connRepo:  connRepo,
		blockRepo: blockRepo,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		fanout:    fanout,
		logger:    log,
		limits:    limits,
	}
}

// ConnectionDTO 连接数据传输对象
type ConnectionDTO struct {
	ID          uint   `json:"id"`
	RequesterID uint   `json:"requester_id"`
	ReceiverID  uint   `json:"receiver_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func connectionToDTO(conn *models.Connection) *ConnectionDTO {
	return &ConnectionDTO{
		ID:          conn.ID,
		RequesterID: conn.RequesterID,
		ReceiverID:  conn.ReceiverID,
		Status:      conn.Status,
		CreatedAt:   conn.CreatedAt.Format(time.RFC3339),
	}
}

// RequestConnection 发起连接请求
// 检查顺序：自连 -> 对方存在 -> 拉黑否决 -> 限流 -> 无序对唯一
func (s *RelationshipService) RequestConnection(ctx context.Context, requesterID, receiverID uint) (*ConnectionDTO, error) {
	if requesterID == receiverID {
		return nil, errs.Validation("cannot connect to yourself")
	}

	if _, err := s.userRepo.GetByID(receiverID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Unavailable(err)
	}

	blocked, err := s.blockRepo.IsBlockedEither(requesterID, receiverID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if blocked {
		return nil, errs.Forbidden("connection not allowed between these users")
	}

	conn := &models.Connection{
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      models.ConnectionPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txConn := s.connRepo.WithTx(tx)

		// 限流计数和插入共享同一个事务视图，只数先前的事件
		window := limiter.NewWindow(s.limits.ConnectionWindow(), s.limits.ConnectionMax,
			func(ctx context.Context, actorKey string, since time.Time) (int64, error) {
				return txConn.CountRecentByRequester(ctx, requesterID, since)
			})
		allowed, err := window.Allow(ctx, strconv.FormatUint(uint64(requesterID), 10))
		if err != nil {
			return errs.Unavailable(err)
		}
		if !allowed {
			s.logger.WarnContext(ctx, "连接请求触发限流",
				zap.Uint("requester_id", requesterID))
			return errs.RateLimited("too many connection requests, try again later")
		}

		// 显式对称预检查，已有任一方向的行即冲突
		if _, err := txConn.GetByPair(requesterID, receiverID); err == nil {
			return errs.Conflict("connection already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.Unavailable(err)
		}

		if err := txConn.Create(conn); err != nil {
			// 并发下预检查可能双双通过，规范化对的唯一索引兜底
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Conflict("connection already exists")
			}
			return errs.Unavailable(err)
		}

		return persistNotifications(s.notifRepo.WithTx(tx), &NotificationEvent{
			Kind:          NotifyConnectionRequested,
			TargetUserIDs: []uint{receiverID},
			Payload:       map[string]any{"connection_id": conn.ID, "requester_id": requesterID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanout.Publish(ctx, &NotificationEvent{
		Kind:          NotifyConnectionRequested,
		TargetUserIDs: []uint{receiverID},
		Payload:       map[string]any{"connection_id": conn.ID, "requester_id": requesterID},
	})

	return connectionToDTO(conn), nil
}

// RespondToConnection 接受或拒绝连接请求
// 只有接收者能响应 pending 的请求；其余情况一律返回"不存在"，
// 故意不区分"不存在"和"不是你的"，避免泄露关系是否存在
func (s *RelationshipService) RespondToConnection(ctx context.Context, connectionID, actingUserID uint, status string) (*ConnectionDTO, error) {
	if status != models.ConnectionAccepted && status != models.ConnectionRejected {
		return nil, errs.Validation("status must be accepted or rejected")
	}

	var conn *models.Connection
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txConn := s.connRepo.WithTx(tx)

		locked, err := txConn.LockByID(connectionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("connection not found")
			}
			return errs.Unavailable(err)
		}
		if locked.ReceiverID != actingUserID || locked.Status != models.ConnectionPending {
			return errs.NotFound("connection not found")
		}

		if err := txConn.UpdateStatus(connectionID, status); err != nil {
			return errs.Unavailable(err)
		}
		locked.Status = status
		conn = locked

		if status == models.ConnectionAccepted {
			return persistNotifications(s.notifRepo.WithTx(tx), &NotificationEvent{
				Kind:          NotifyConnectionAccepted,
				TargetUserIDs: []uint{locked.RequesterID},
				Payload:       map[string]any{"connection_id": locked.ID, "receiver_id": actingUserID},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == models.ConnectionAccepted {
		s.fanout.Publish(ctx, &NotificationEvent{
			Kind:          NotifyConnectionAccepted,
			TargetUserIDs: []uint{conn.RequesterID},
			Payload:       map[string]any{"connection_id": conn.ID, "receiver_id": actingUserID},
		})
	}

	return connectionToDTO(conn), nil
}

// Block 拉黑用户，重复拉黑是无操作
func (s *RelationshipService) Block(ctx context.Context, blockerID, blockedID uint) error {
	if blockerID == blockedID {
		return errs.Validation("cannot block yourself")
	}
	if _, err := s.userRepo.GetByID(blockedID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("user not found")
		}
		return errs.Unavailable(err)
	}
	if err := s.blockRepo.Block(blockerID, blockedID); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// Unblock 解除拉黑，未拉黑时也是无操作
func (s *RelationshipService) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	if blockerID == blockedID {
		return errs.Validation("cannot unblock yourself")
	}
	if err := s.blockRepo.Unblock(blockerID, blockedID); err != nil {
		return errs.Unavailable(err)
	}
	return nil
}

// IsBlocked 双向拉黑判断，关系引擎和私信引擎共用的前置闸门
func (s *RelationshipService) IsBlocked(a, b uint) (bool, error) {
	blocked, err := s.blockRepo.IsBlockedEither(a, b)
	if err != nil {
		return false, errs.Unavailable(err)
	}
	return blocked, nil
}

// ListConnections 列出用户的连接
func (s *RelationshipService) ListConnections(userID uint, status string, page, pageSize int) ([]ConnectionDTO, int64, error) {
	offset := (page - 1) * pageSize
	conns, total, err := s.connRepo.ListForUser(userID, status, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]ConnectionDTO, 0, len(conns))
	for i := range conns {
		dtos = append(dtos, *connectionToDTO(&conns[i]))
	}
	return dtos, total, nil
}
