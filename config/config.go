package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Limits     LimitsConfig     `mapstructure:"limits"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RateLimitConfig struct {
	QPS            int64 `mapstructure:"qps"`
	Burst          int64 `mapstructure:"burst"`
	MaxConcurrency int   `mapstructure:"max_concurrency"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type GatewayConfig struct {
	NodeID string         `mapstructure:"node_id"`
	Nodes  map[string]int `mapstructure:"nodes"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // json 或 console
	Output   string `mapstructure:"output"` // stdout 或 file
	FilePath string `mapstructure:"file_path"`
}

// LimitsConfig 业务配额与容量约束
// 这些常量决定关系/成员/消息引擎的各项上限，统一放在配置里便于压测时调整
type LimitsConfig struct {
	ConnectionWindowHours int `mapstructure:"connection_window_hours"` // 连接请求限流窗口
	ConnectionMax         int `mapstructure:"connection_max"`          // 窗口内最大连接请求数
	ConversationWindow    int `mapstructure:"conversation_window_hours"`
	ConversationMax       int `mapstructure:"conversation_max"` // 窗口内最多新开会话数
	GroupMaxMembers       int `mapstructure:"group_max_members"`
	GroupMinMembers       int `mapstructure:"group_min_members"` // 普通群自助退出的人数下限
	EventMaxMembers       int `mapstructure:"event_max_members"` // 活动群容量硬上限
	UserEventQuota        int `mapstructure:"user_event_quota"`  // 单用户同时参加的活动上限
	CancelledChatGraceHrs int `mapstructure:"cancelled_chat_grace_hours"`
}

// ConnectionWindow 连接请求限流窗口时长
func (l *LimitsConfig) ConnectionWindow() time.Duration {
	return time.Duration(l.ConnectionWindowHours) * time.Hour
}

// ConversationStartWindow 新会话限流窗口时长
func (l *LimitsConfig) ConversationStartWindow() time.Duration {
	return time.Duration(l.ConversationWindow) * time.Hour
}

// CancelledChatGrace 活动取消后仍允许群聊的宽限时长
func (l *LimitsConfig) CancelledChatGrace() time.Duration {
	return time.Duration(l.CancelledChatGraceHrs) * time.Hour
}

// DefaultLimits 返回线上默认约束，配置缺省时使用
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		ConnectionWindowHours: 24,
		ConnectionMax:         20,
		ConversationWindow:    24,
		ConversationMax:       30,
		GroupMaxMembers:       100,
		GroupMinMembers:       2,
		EventMaxMembers:       500,
		UserEventQuota:        5,
		CancelledChatGraceHrs: 24,
	}
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		// 如果文件不存在，可以根据情况决定是报错还是使用默认值
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 将配置反序列化到结构体
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 业务约束缺省回填
	defaults := DefaultLimits()
	if config.Limits.ConnectionWindowHours <= 0 {
		config.Limits.ConnectionWindowHours = defaults.ConnectionWindowHours
	}
	if config.Limits.ConnectionMax <= 0 {
		config.Limits.ConnectionMax = defaults.ConnectionMax
	}
	if config.Limits.ConversationWindow <= 0 {
		config.Limits.ConversationWindow = defaults.ConversationWindow
	}
	if config.Limits.ConversationMax <= 0 {
		config.Limits.ConversationMax = defaults.ConversationMax
	}
	if config.Limits.GroupMaxMembers <= 0 {
		config.Limits.GroupMaxMembers = defaults.GroupMaxMembers
	}
	if config.Limits.GroupMinMembers <= 0 {
		config.Limits.GroupMinMembers = defaults.GroupMinMembers
	}
	if config.Limits.EventMaxMembers <= 0 {
		config.Limits.EventMaxMembers = defaults.EventMaxMembers
	}
	if config.Limits.UserEventQuota <= 0 {
		config.Limits.UserEventQuota = defaults.UserEventQuota
	}
	if config.Limits.CancelledChatGraceHrs <= 0 {
		config.Limits.CancelledChatGraceHrs = defaults.CancelledChatGraceHrs
	}
	return &config, nil
}
