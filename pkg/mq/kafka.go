package mq

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"
)

// KafkaProducer 同步生产者封装，通知事件的出口
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}

	return &KafkaProducer{
		producer: producer,
		topic:    topic,
	}, nil
}

// SendMessage 发送消息，key 决定分区：同类事件落同一分区保持有序
func (k *KafkaProducer) SendMessage(key string, message any) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}

	log.Printf("消息已存储到 topic(%s)/partition(%d)/offset(%d)", k.topic, partition, offset)
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.producer.Close()
}
