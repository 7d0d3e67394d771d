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

// MessageService 私信服务
// 发送前依次过拉黑否决、已接受连接、新会话限流三道闸门
type MessageService struct {
	db          *gorm.DB
	messageRepo *repositories.MessageRepository
	connRepo    *repositories.ConnectionRepository
	blockRepo   *repositories.BlockRepository
	notifRepo   *repositories.NotificationRepository
	fanout      Fanout
	logger      *logger.Logger
	limits      config.LimitsConfig
}

// NewMessageService 创建私信服务实例
func NewMessageService(
	db *gorm.DB,
	messageRepo *repositories.MessageRepository,
	connRepo *repositories.ConnectionRepository,
	blockRepo *repositories.BlockRepository,
	notifRepo *repositories.NotificationRepository,
	fanout Fanout,
	log *logger.Logger,
	limits config.LimitsConfig,
) *MessageService {
	return &MessageService{
		db:          db,
		messageRepo: messageRepo,
		connRepo:    connRepo,
		blockRepo:   blockRepo,
		notifRepo:   notifRepo,
		fanout:      fanout,
		logger:      log,
		limits:      limits,
	}
}

// MessageDTO 私信数据传输对象
type MessageDTO struct {
	ID         int64   `json:"id"`
	SenderID   uint    `json:"sender_id"`
	ReceiverID uint    `json:"receiver_id"`
	Content    string  `json:"content"`
	Attachment string  `json:"attachment,omitempty"`
	ReadAt     *string `json:"read_at"`
	CreatedAt  string  `json:"created_at"`
}

func messageToDTO(msg *models.Message) *MessageDTO {
	dto := &MessageDTO{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Attachment: msg.Attachment,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
	}
	if msg.ReadAt != nil {
		readAt := msg.ReadAt.Format(time.RFC3339)
		dto.ReadAt = &readAt
	}
	return dto
}

// Send 发送私信
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uint, content, attachment string) (*MessageDTO, error) {
	if senderID == receiverID {
		return nil, errs.Validation("cannot message yourself")
	}
	if len(content) == 0 && attachment == "" {
		return nil, errs.Validation("message content required")
	}
	if len(content) > 5000 {
		return nil, errs.Validation("message content too long")
	}

	blocked, err := s.blockRepo.IsBlockedEither(senderID, receiverID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if blocked {
		return nil, errs.Forbidden("messaging not allowed between these users")
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Attachment: attachment,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txMsg := s.messageRepo.WithTx(tx)

		// 私信要求双方存在已接受的连接
		conn, err := s.connRepo.WithTx(tx).GetByPair(senderID, receiverID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.Forbidden("messaging requires an accepted connection")
			}
			return errs.Unavailable(err)
		}
		if conn.Status != models.ConnectionAccepted {
			return errs.Forbidden("messaging requires an accepted connection")
		}

		// 发送时该用户对没有任何历史消息，则这条是新会话的开端
		hasPrior, err := txMsg.HasPriorMessage(senderID, receiverID)
		if err != nil {
			return errs.Unavailable(err)
		}
		if !hasPrior {
			window := limiter.NewWindow(s.limits.ConversationStartWindow(), s.limits.ConversationMax,
				func(ctx context.Context, actorKey string, since time.Time) (int64, error) {
					return txMsg.CountConversationStartsSince(ctx, senderID, since)
				})
			allowed, err := window.Allow(ctx, strconv.FormatUint(uint64(senderID), 10))
			if err != nil {
				return errs.Unavailable(err)
			}
			if !allowed {
				s.logger.WarnContext(ctx, "新会话触发限流",
					zap.Uint("sender_id", senderID))
				return errs.RateLimited("too many new conversations, try again later")
			}
			msg.IsConversationStart = true
		}

		if err := txMsg.Create(msg); err != nil {
			return errs.Unavailable(err)
		}

		return persistNotifications(s.notifRepo.WithTx(tx), &NotificationEvent{
			Kind:          NotifyMessageReceived,
			TargetUserIDs: []uint{receiverID},
			Payload:       map[string]any{"message_id": msg.ID, "sender_id": senderID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanout.Publish(ctx, &NotificationEvent{
		Kind:          NotifyMessageReceived,
		TargetUserIDs: []uint{receiverID},
		Payload:       map[string]any{"message_id": msg.ID, "sender_id": senderID},
	})

	return messageToDTO(msg), nil
}

// MarkRead 接收者读会话，把对方发来的所有未读消息标记为已读
// 返回受影响的消息ID，每个之前未读的ID恰好上报一次（批量打包为一个已读事件）
func (s *MessageService) MarkRead(ctx context.Context, receiverID, senderID uint) ([]int64, error) {
	var ids []int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txMsg := s.messageRepo.WithTx(tx)

		var err error
		ids, err = txMsg.ListUnreadFrom(receiverID, senderID)
		if err != nil {
			return errs.Unavailable(err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := txMsg.MarkRead(ids, time.Now()); err != nil {
			return errs.Unavailable(err)
		}

		return persistNotifications(s.notifRepo.WithTx(tx), &NotificationEvent{
			Kind:          NotifyMessageRead,
			TargetUserIDs: []uint{senderID},
			Payload:       map[string]any{"message_ids": ids, "reader_id": receiverID},
		})
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		s.fanout.Publish(ctx, &NotificationEvent{
			Kind:          NotifyMessageRead,
			TargetUserIDs: []uint{senderID},
			Payload:       map[string]any{"message_ids": ids, "reader_id": receiverID},
		})
	}
	return ids, nil
}

// GetConversation 分页获取两个用户之间的消息
func (s *MessageService) GetConversation(userID, peerID uint, page, pageSize int) ([]MessageDTO, int64, error) {
	offset := (page - 1) * pageSize
	messages, total, err := s.messageRepo.ListConversation(userID, peerID, pageSize, offset)
	if err != nil {
		return nil, 0, errs.Unavailable(err)
	}

	dtos := make([]MessageDTO, 0, len(messages))
	for i := range messages {
		dtos = append(dtos, *messageToDTO(&messages[i]))
	}
	return dtos, total, nil
}

// GetUnreadCount 获取某个会话的未读消息数
func (s *MessageService) GetUnreadCount(receiverID, senderID uint) (int64, error) {
	count, err := s.messageRepo.CountUnread(receiverID, senderID)
	if err != nil {
		return 0, errs.Unavailable(err)
	}
	return count, nil
}
