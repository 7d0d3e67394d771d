package storage

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisClient Redis 访问封装
// 负责群聊序列号、网关在线状态与跨节点的通知广播
type RedisClient struct {
	client *redis.Client
}

// InitRedis 初始化 Redis 连接
func InitRedis(host, port, password string, db, poolSize, minIdleConns int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &RedisClient{client: rdb}, nil
}

// NewRedisClientFrom 从已有连接构造封装，测试用（miniredis）
func NewRedisClientFrom(rdb *redis.Client) *RedisClient {
	return &RedisClient{client: rdb}
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GenerateSeqID 为群聊生成单调递增的消息序列号
func (c *RedisClient) GenerateSeqID(ctx context.Context, groupID uint) (int64, error) {
	key := fmt.Sprintf("group:%d:seq_id", groupID)
	result, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("生成群 %d 的序列号失败: %w", groupID, err)
	}
	return result, nil
}

// SetUserRoute 记录用户连接所在的网关节点
func (c *RedisClient) SetUserRoute(ctx context.Context, userID uint, nodeID string, ttl time.Duration) error {
	key := fmt.Sprintf("user:%d:route", userID)
	return c.client.Set(ctx, key, nodeID, ttl).Err()
}

// GetUserRoute 查询用户连接所在的网关节点
func (c *RedisClient) GetUserRoute(ctx context.Context, userID uint) (string, error) {
	key := fmt.Sprintf("user:%d:route", userID)
	return c.client.Get(ctx, key).Result()
}

// RemoveUserRoute 清除用户的路由键，避免脏路由
func (c *RedisClient) RemoveUserRoute(ctx context.Context, userID uint) error {
	key := fmt.Sprintf("user:%d:route", userID)
	return c.client.Del(ctx, key).Err()
}

// IsUserOnline 用户是否有活跃的网关路由
func (c *RedisClient) IsUserOnline(ctx context.Context, userID uint) (bool, error) {
	key := fmt.Sprintf("user:%d:route", userID)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Publish 发布消息到频道
func (c *RedisClient) Publish(ctx context.Context, channel string, message any) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// Subscribe 订阅频道，等待订阅确认后返回
func (c *RedisClient) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	pubsub := c.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("订阅频道失败: %w", err)
	}
	return pubsub, nil
}
