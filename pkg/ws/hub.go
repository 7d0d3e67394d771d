package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Gopher0727/CampusLink/internal/storage"
	"github.com/Gopher0727/CampusLink/pkg/utils"
)

const (
	redisChannelName = "notify:broadcast"
	routeTTL         = 5 * time.Minute
)

// PushMessage 推送给客户端的通知
type PushMessage struct {
	Kind          string `json:"kind"`
	TargetUserIDs []uint `json:"target_user_ids,omitempty"`
	Payload       any    `json:"payload"`
}

// Hub 维护活跃的客户端连接并按用户推送通知
// 同一个用户可以有多个连接（多端登录），推送发给全部
type Hub struct {
	// 注册的客户端
	clients map[*Client]bool

	// 用户 ID 对应的客户端集合 UserID -> Client -> bool
	userClients map[uint]map[*Client]bool

	// 互斥锁，保护 map 的并发读写
	mu sync.RWMutex

	// 注册请求通道
	register chan *Client

	// 注销请求通道
	unregister chan *Client

	// 推送通道 (内部使用)
	push chan *PushMessage

	// Redis 客户端，用于路由键和分布式广播
	redis *storage.RedisClient

	// 一致性哈希环与当前节点
	hashRing *utils.HashRing
	nodeID   string
}

func NewHub(redisClient *storage.RedisClient, ring *utils.HashRing, nodeID string) *Hub {
	return &Hub{
		push:        make(chan *PushMessage),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		userClients: make(map[uint]map[*Client]bool),
		redis:       redisClient,
		hashRing:    ring,
		nodeID:      nodeID,
	}
}

// SetHashRing 外部更新哈希环时使用
func (h *Hub) SetHashRing(ring *utils.HashRing) {
	h.mu.Lock()
	h.hashRing = ring
	h.mu.Unlock()
}

func (h *Hub) Run() {
	// 启动 Redis 订阅协程
	if h.redis != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if _, ok := h.userClients[client.userID]; !ok {
				h.userClients[client.userID] = make(map[*Client]bool)
			}
			h.userClients[client.userID][client] = true
			h.mu.Unlock()
			// 写入路由键，其他节点据此判断用户在线
			if h.redis != nil {
				if err := h.redis.SetUserRoute(context.Background(), client.userID, h.nodeID, routeTTL); err != nil {
					log.Printf("设置用户路由失败: %v", err)
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			lastConn := false
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if set, ok := h.userClients[client.userID]; ok {
					delete(set, client)
					if len(set) == 0 {
						delete(h.userClients, client.userID)
						lastConn = true
					}
				}
			}
			h.mu.Unlock()
			// 最后一个连接断开才清路由键，避免误伤多端登录
			if lastConn && h.redis != nil {
				_ = h.redis.RemoveUserRoute(context.Background(), client.userID)
			}

		case msg := <-h.push:
			h.deliverLocal(msg)
		}
	}
}

// deliverLocal 把消息投递给本节点上的目标用户连接
func (h *Hub) deliverLocal(msg *PushMessage) {
	h.mu.RLock()
	// 收集发送缓冲区满的客户端，不在 RLock 中改 map
	var closedClients []*Client
	for _, uid := range msg.TargetUserIDs {
		for client := range h.userClients[uid] {
			select {
			case client.send <- msg:
			default:
				closedClients = append(closedClients, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(closedClients) > 0 {
		h.mu.Lock()
		for _, client := range closedClients {
			// Double check，防止已经处理过
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
				if set, ok := h.userClients[client.userID]; ok {
					delete(set, client)
					if len(set) == 0 {
						delete(h.userClients, client.userID)
					}
				}
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub, err := h.redis.Subscribe(ctx, redisChannelName)
	if err != nil {
		log.Printf("订阅通知频道失败: %v", err)
		return
	}
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		var pushMsg PushMessage
		if err := json.Unmarshal([]byte(msg.Payload), &pushMsg); err == nil {
			// 从 Redis 收到的消息直接送入本地推送通道
			// 不再 Publish 回 Redis，否则会死循环
			h.push <- &pushMsg
		}
	}
}

// PushToUsers 把通知推给目标用户
// 有 Redis 时发布到频道，所有节点（包括自己）通过订阅收到并投递本地连接
func (h *Hub) PushToUsers(userIDs []uint, kind string, payload any) {
	if len(userIDs) == 0 {
		return
	}
	msg := &PushMessage{
		Kind:          kind,
		TargetUserIDs: userIDs,
		Payload:       payload,
	}

	if h.redis != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			_ = h.redis.Publish(context.Background(), redisChannelName, payload)
		}
	} else {
		h.push <- msg
	}
}
