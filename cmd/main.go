package main

import (
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/CampusLink/config"
	"github.com/Gopher0727/CampusLink/internal/consumer"
	"github.com/Gopher0727/CampusLink/internal/handlers"
	"github.com/Gopher0727/CampusLink/internal/repositories"
	"github.com/Gopher0727/CampusLink/internal/routers"
	"github.com/Gopher0727/CampusLink/internal/services"
	"github.com/Gopher0727/CampusLink/internal/storage"
	iutils "github.com/Gopher0727/CampusLink/internal/utils"
	logger "github.com/Gopher0727/CampusLink/middleware/log"
	"github.com/Gopher0727/CampusLink/pkg/middlewares"
	"github.com/Gopher0727/CampusLink/pkg/mq"
	"github.com/Gopher0727/CampusLink/pkg/utils"
	"github.com/Gopher0727/CampusLink/pkg/ws"
)

func main() {
	cfg, err := config.LoadConfig("./config.toml")
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	// 日志
	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLogger.Sync()

	// JWT 配置
	if cfg.JWT.Secret != "" {
		iutils.SetJWTSecret(cfg.JWT.Secret)
	}

	// 初始化全局限流器
	middlewares.InitGlobalLimiter(cfg.RateLimit.Burst, cfg.RateLimit.QPS)

	// 初始化全局 Worker Pool (协程池)
	// 用于异步处理请求，防止高并发下 Goroutine 暴涨
	iutils.InitGlobalWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)

	// 初始化 PostgreSQL
	dsn := storage.BuildDSN(cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName)
	postgres, err := storage.InitPostgres(dsn, cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns)
	if err != nil {
		log.Fatalf("postgres 初始化失败: %v", err)
	}

	// 初始化 Redis
	redisClient, err := storage.InitRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
	if err != nil {
		log.Fatalf("redis 初始化失败: %v", err)
	}
	defer redisClient.Close()

	// 初始化仓储层
	userRepo := repositories.NewUserRepository(postgres)
	connRepo := repositories.NewConnectionRepository(postgres)
	blockRepo := repositories.NewBlockRepository(postgres)
	messageRepo := repositories.NewMessageRepository(postgres)
	groupRepo := repositories.NewGroupRepository(postgres)
	eventRepo := repositories.NewEventRepository(postgres)
	bodyRepo := repositories.NewBodyRepository(postgres)
	notifRepo := repositories.NewNotificationRepository(postgres)

	// 初始化 Kafka Producer
	var fanout services.Fanout = services.NoopFanout{}
	kafkaProducer, err := mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Printf("Kafka 生产者初始化失败: %v。通知推送降级为仅落库。", err)
	} else {
		defer kafkaProducer.Close()
		fanout = services.NewKafkaFanout(kafkaProducer, appLogger)
	}

	// 初始化服务层
	authService := services.NewAuthService(userRepo)
	relService := services.NewRelationshipService(postgres, connRepo, blockRepo, userRepo, notifRepo, fanout, appLogger, cfg.Limits)
	messageService := services.NewMessageService(postgres, messageRepo, connRepo, blockRepo, notifRepo, fanout, appLogger, cfg.Limits)
	groupService := services.NewGroupService(postgres, groupRepo, userRepo, notifRepo, fanout, appLogger, cfg.Limits)
	bodyGate := services.NewBodyDirectory(bodyRepo)
	eventService := services.NewEventService(postgres, eventRepo, groupRepo, bodyRepo, notifRepo, groupService, bodyGate, redisClient, fanout, appLogger, cfg.Limits)
	bodyService := services.NewBodyService(bodyRepo, userRepo, eventRepo)
	notifService := services.NewNotificationService(notifRepo)

	// 初始化一致性哈希环（用于分布式路由）
	ring := utils.NewHashRing(128)
	for node, weight := range cfg.Gateway.Nodes {
		ring.Add(node, weight)
	}

	// 初始化 WebSocket Hub（注入哈希环与当前节点ID）
	hub := ws.NewHub(redisClient, ring, cfg.Gateway.NodeID)
	go hub.Run()

	// 初始化 Kafka Consumer (如果 Kafka 可用)
	if kafkaProducer != nil {
		notifConsumer := consumer.NewNotificationConsumer(hub)
		consumer.StartConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, notifConsumer)
	}

	// 初始化处理器
	h := &routers.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Relationship: handlers.NewRelationshipHandler(relService),
		Message:      handlers.NewMessageHandler(messageService),
		Group:        handlers.NewGroupHandler(groupService),
		Event:        handlers.NewEventHandler(eventService),
		Body:         handlers.NewBodyHandler(bodyService),
		Notification: handlers.NewNotificationHandler(notifService),
	}

	// 配置并创建 Gin 引擎
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()

	// 设置路由
	routers.SetupRoutes(r, cfg, h, hub)

	// 启动服务器
	log.Printf("正在启动服务器，监听端口 :%d\n", cfg.Server.Port)
	if err := r.Run(":" + strconv.FormatInt(int64(cfg.Server.Port), 10)); err != nil {
		log.Fatalf("启动服务器失败: %v", err)
	}
}
