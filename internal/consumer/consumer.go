package consumer

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/CampusLink/internal/services"
	"github.com/Gopher0727/CampusLink/pkg/ws"
)

// NotificationConsumer 消费通知事件并推送给在线用户
type NotificationConsumer struct {
	hub *ws.Hub
}

func NewNotificationConsumer(hub *ws.Hub) *NotificationConsumer {
	return &NotificationConsumer{
		hub: hub,
	}
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (consumer *NotificationConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (consumer *NotificationConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim must start a consumer loop of ConsumerGroupClaim's Messages().
func (consumer *NotificationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event services.NotificationEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			log.Printf("反序列化通知事件失败: %v", err)
			session.MarkMessage(message, "")
			continue
		}

		// 通知已经在事务内落库，这里只做在线加速推送
		// 推送失败（用户不在线）没有补偿，客户端拉取 /notifications 兜底
		consumer.hub.PushToUsers(event.TargetUserIDs, event.Kind, event.Payload)

		session.MarkMessage(message, "")
	}
	return nil
}

func StartConsumer(brokers []string, groupID string, topic string, consumer *NotificationConsumer) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		log.Fatalf("创建消费者组客户端失败: %v", err)
	}

	ctx := context.Background()
	go func() {
		for {
			if err := client.Consume(ctx, []string{topic}, consumer); err != nil {
				log.Printf("消费者错误: %v", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}
