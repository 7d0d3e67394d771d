package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Gopher0727/CampusLink/internal/models"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	logger "github.com/Gopher0727/CampusLink/middleware/log"
	"github.com/Gopher0727/CampusLink/pkg/mq"
)

// 通知事件类型
const (
	NotifyConnectionRequested = "connection.requested"
	NotifyConnectionAccepted  = "connection.accepted"
	NotifyMessageReceived     = "message.received"
	NotifyMessageRead         = "message.read"
	NotifyGroupMemberAdded    = "group.member_added"
	NotifyEventPublished      = "event.published"
	NotifyEventCancelled      = "event.cancelled"
	NotifyGroupMessage        = "group.message"
)

// NotificationEvent 提交后的状态变更事件
type NotificationEvent struct {
	Kind          string         `json:"kind"`
	TargetUserIDs []uint         `json:"target_user_ids"`
	Payload       map[string]any `json:"payload"`
}

// Fanout 通知分发能力
// 以注入接口的形式传给各个引擎，而不是进程级单例：测试可以用替身捕获事件
// 只在事务提交之后调用，尽力而为，失败只记日志、绝不回滚
type Fanout interface {
	Publish(ctx context.Context, event *NotificationEvent)
}

// NoopFanout 空实现，Kafka 不可用时的降级选择
type NoopFanout struct{}

func (NoopFanout) Publish(ctx context.Context, event *NotificationEvent) {}

// KafkaFanout 把通知事件发到 Kafka，由 consumer 推给网关在线连接
type KafkaFanout struct {
	producer *mq.KafkaProducer
	logger   *logger.Logger
}

// NewKafkaFanout 创建 Kafka 通知分发器
func NewKafkaFanout(producer *mq.KafkaProducer, log *logger.Logger) *KafkaFanout {
	return &KafkaFanout{producer: producer, logger: log}
}

// persistNotifications 在事务内落库通知记录，每个目标用户一行
// 通知一旦提交即持久：fanout 推送只是在线加速，不承载正确性
func persistNotifications(repo *repositories.NotificationRepository, event *NotificationEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	ns := make([]models.Notification, 0, len(event.TargetUserIDs))
	for _, uid := range event.TargetUserIDs {
		ns = append(ns, models.Notification{
			UserID:  uid,
			Kind:    event.Kind,
			Payload: string(payload),
		})
	}
	return repo.CreateBatch(ns)
}

func (f *KafkaFanout) Publish(ctx context.Context, event *NotificationEvent) {
	if err := f.producer.SendMessage(event.Kind, event); err != nil {
		// 崩溃在 commit 之后、fanout 之前是可接受的 at-most-once 缺口
		f.logger.WarnContext(ctx, "通知事件发送失败",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}
