package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // 允许写入消息到对端的最大时间
	pongWait       = 60 * time.Second    // 允许读取下一个 pong 消息的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送 ping 到对端的周期。必须小于 pongWait
	maxMessageSize = 512                 // 允许来自对端的最大消息大小
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client 代表一个 WebSocket 连接客户端
// 通知连接是单向的：服务端推、客户端只回 pong
type Client struct {
	hub    *Hub
	conn   *websocket.Conn   // WebSocket 连接
	send   chan *PushMessage // 缓冲通道，用于发送消息
	userID uint              // 用户 ID
}

// readPump 维持读循环以驱动心跳，忽略客户端主动发来的数据
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// 收到 Pong 说明客户端还活着，续期路由键 TTL
		if c.hub != nil && c.hub.redis != nil {
			_ = c.hub.redis.SetUserRoute(context.Background(), c.userID, c.hub.nodeID, routeTTL)
		}
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("错误: %v", err)
			}
			break
		}
	}
}

// writePump 泵送来自 Hub 的消息到 WebSocket 连接
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			json.NewEncoder(w).Encode(msg)

			// 添加队列中的其他消息（如果有）
			n := len(c.send)
			for range n {
				json.NewEncoder(w).Encode(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 处理 WebSocket 请求
func ServeWs(hub *Hub, c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未授权"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("升级 websocket 失败: %v", err)
		return
	}

	uID := userID.(uint)

	// 一致性哈希选择目标节点
	targetNode := ""
	if hub.hashRing != nil {
		targetNode = hub.hashRing.Get(strconv.Itoa(int(uID)))
	}
	if targetNode != hub.nodeID && targetNode != "" {
		// 未命中当前节点：仍接入本节点（简单版本）
		// 可选策略：返回目标节点信息，指导客户端重连
		log.Printf("用户 %d 映射到节点 %s, 当前节点 %s", uID, targetNode, hub.nodeID)
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *PushMessage, 256),
		userID: uID,
	}
	client.hub.register <- client
	go client.writePump()
	go client.readPump()
}
