package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/config"
	"github.com/Gopher0727/CampusLink/internal/handlers"
	"github.com/Gopher0727/CampusLink/internal/middlewares"
	pkgmiddlewares "github.com/Gopher0727/CampusLink/pkg/middlewares"
	"github.com/Gopher0727/CampusLink/pkg/ws"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Auth         *handlers.AuthHandler
	Relationship *handlers.RelationshipHandler
	Message      *handlers.MessageHandler
	Group        *handlers.GroupHandler
	Event        *handlers.EventHandler
	Body         *handlers.BodyHandler
	Notification *handlers.NotificationHandler
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, cfg *config.Config, h *Handlers, hub *ws.Hub) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// 全局限流与并发上限
	r.Use(pkgmiddlewares.RateLimitMiddleware(2 * time.Second))
	r.Use(pkgmiddlewares.MaxConcurrencyMiddleware(cfg.RateLimit.MaxConcurrency))

	// WebSocket 路由 (必须在 AsyncMiddleware 之前注册，避免握手请求被放入 Worker Pool)
	r.GET("/ws", middlewares.AuthMiddleware(), func(c *gin.Context) {
		ws.ServeWs(hub, c)
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"Status": "OK",
		})
	})

	// 异步处理中间件，将请求放入 Worker Pool 中排队执行
	r.Use(middlewares.AsyncMiddleware())

	registerAuthRoutes(r, h.Auth)
	registerRelationshipRoutes(r, h.Relationship)
	registerMessageRoutes(r, h.Message)
	registerGroupRoutes(r, h.Group)
	registerEventRoutes(r, h.Event)
	registerBodyRoutes(r, h.Body)
	registerNotificationRoutes(r, h.Notification)
}

func registerAuthRoutes(r *gin.Engine, h *handlers.AuthHandler) {
	userGroup := r.Group("/api/v1/users")
	{
		userGroup.POST("/register", h.Register) // 注册
		userGroup.POST("/login", h.Login)       // 登录
	}
	userGroup.Use(middlewares.AuthMiddleware())
	{
		userGroup.GET("/me", h.GetProfile)    // 获取当前用户信息
		userGroup.PUT("/me", h.UpdateProfile) // 更新头像、昵称
	}
}

func registerRelationshipRoutes(r *gin.Engine, h *handlers.RelationshipHandler) {
	connGroup := r.Group("/api/v1/connections")
	connGroup.Use(middlewares.AuthMiddleware())
	{
		connGroup.POST("", h.RequestConnection)        // 发起连接请求
		connGroup.GET("", h.ListConnections)           // 列出我的连接
		connGroup.PATCH("/:id", h.RespondToConnection) // 接受/拒绝请求
	}

	blockGroup := r.Group("/api/v1/blocks")
	blockGroup.Use(middlewares.AuthMiddleware())
	{
		blockGroup.PUT("/:id", h.Block)      // 拉黑用户
		blockGroup.DELETE("/:id", h.Unblock) // 解除拉黑
	}
}

func registerMessageRoutes(r *gin.Engine, h *handlers.MessageHandler) {
	msgGroup := r.Group("/api/v1/messages")
	msgGroup.Use(middlewares.AuthMiddleware())
	{
		msgGroup.POST("", h.SendMessage)                   // 发送私信
		msgGroup.GET("/:peer_id", h.GetConversation)       // 获取会话消息
		msgGroup.POST("/:peer_id/read", h.MarkRead)        // 标记会话已读
		msgGroup.GET("/:peer_id/unread", h.GetUnreadCount) // 获取未读数
	}
}

func registerGroupRoutes(r *gin.Engine, h *handlers.GroupHandler) {
	groupGroup := r.Group("/api/v1/groups")
	groupGroup.Use(middlewares.AuthMiddleware())
	{
		groupGroup.POST("", h.CreateGroup)                // 创建群组
		groupGroup.GET("/mine", h.GetUserGroups)          // 我所在的群组
		groupGroup.POST("/:id/members", h.AddMember)      // 添加成员
		groupGroup.POST("/:id/leave", h.LeaveGroup)       // 退出群组
		groupGroup.GET("/:id/members", h.GetGroupMembers) // 成员列表
	}
}

func registerEventRoutes(r *gin.Engine, h *handlers.EventHandler) {
	eventGroup := r.Group("/api/v1/events")
	eventGroup.Use(middlewares.AuthMiddleware())
	{
		eventGroup.POST("", h.CreateEvent)              // 创建活动（draft）
		eventGroup.GET("/:id", h.GetEvent)              // 活动详情
		eventGroup.PATCH("/:id", h.UpdateEvent)         // 编辑活动
		eventGroup.POST("/:id/publish", h.PublishEvent) // 发布
		eventGroup.POST("/:id/cancel", h.CancelEvent)   // 取消
		eventGroup.POST("/:id/join", h.JoinEvent)       // 报名
		eventGroup.POST("/:id/leave", h.LeaveEvent)     // 退出

		eventGroup.POST("/:id/messages", h.SendGroupMessage) // 活动群聊发言
		eventGroup.GET("/:id/messages", h.GetGroupMessages)  // 群聊记录

		eventGroup.POST("/:id/admins", h.AddEventAdmin)         // 添加管理员
		eventGroup.POST("/:id/organizers", h.AddEventOrganizer) // 添加组织者
	}
}

func registerBodyRoutes(r *gin.Engine, h *handlers.BodyHandler) {
	bodyGroup := r.Group("/api/v1/bodies")
	bodyGroup.Use(middlewares.AuthMiddleware())
	{
		bodyGroup.POST("", h.CreateBody)                // 创建组织
		bodyGroup.GET("/:id", h.GetBody)                // 组织详情
		bodyGroup.POST("/:id/join", h.JoinBody)         // 加入组织
		bodyGroup.GET("/:id/members", h.GetBodyMembers) // 成员列表
		bodyGroup.GET("/:id/events", h.GetBodyEvents)   // 组织的活动
	}
}

func registerNotificationRoutes(r *gin.Engine, h *handlers.NotificationHandler) {
	notifGroup := r.Group("/api/v1/notifications")
	notifGroup.Use(middlewares.AuthMiddleware())
	{
		notifGroup.GET("", h.ListNotifications) // 我的通知
		notifGroup.POST("/seen", h.MarkSeen)    // 标记已读
	}
}
