package global

import (
	"encoding/json"
	"os"
	"time"

	"WPProject/logger"

	"github.com/mitchellh/mapstructure"
)

const NodeTypeQueueManager = "queueManager" // 排队节点
const NodeTypePartyManager = "partyManager" // 放映节点

const (
	BrokerKindNats  = "nats"
	BrokerKindKafka = "kafka"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	Uri      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type BrokerConfig struct {
	Kind         string   `mapstructure:"kind"` // nats | kafka
	NatsServers  []string `mapstructure:"nats_servers"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	Topic        string   `mapstructure:"topic"`
	GroupID      string   `mapstructure:"group_id"`
}

type QueueConfig struct {
	PartySize       int           `mapstructure:"party_size"`        // 组队人数 N
	MaxWaitingTime  time.Duration `mapstructure:"max_waiting_time"`  // 无人加入时队列存活
	MaxCASRetries   int           `mapstructure:"max_cas_retries"`   // CAS 冲突重试上限
	PublishAttempts int           `mapstructure:"publish_attempts"`  // 事件发布重试次数
	PublishBackoff  time.Duration `mapstructure:"publish_backoff"`   // 首次退避
}

type PartyConfig struct {
	PlaybackTTL time.Duration `mapstructure:"playback_ttl"` // 进度缓存存活
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // 连接空闲超时
	SendQueue   int           `mapstructure:"send_queue"`   // 每连接发送队列长度
}

type AppConfig struct {
	NodeType string `mapstructure:"node_type"`
	NodeID   int64  `mapstructure:"node_id"`
	HTTPAddr string `mapstructure:"http_addr"`
	GrpcAddr string `mapstructure:"grpc_addr"`

	JwtSecret      string `mapstructure:"jwt_secret"`
	FingerprintKey string `mapstructure:"fingerprint_key"`
	HandleKey      string `mapstructure:"handle_key"` // 32字节，hex 编码 64 字符
	DevTokenMint   bool   `mapstructure:"dev_token_mint"` // 开发环境令牌签发路由

	Redis  RedisConfig  `mapstructure:"redis"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
	Broker BrokerConfig `mapstructure:"broker"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Party  PartyConfig  `mapstructure:"party"`
}

// Default 默认配置，与原型部署一致；生产通过配置文件/环境变量覆盖
func Default() AppConfig {
	return AppConfig{
		NodeType: NodeTypeQueueManager,
		NodeID:   100,
		HTTPAddr: ":8080",
		GrpcAddr: ":50052",

		JwtSecret:      "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
		FingerprintKey: "film-together-fingerprint-key",
		HandleKey:      "6368616e676520746869732070617373776f726420746f206120736563726574",

		Redis: RedisConfig{Addr: "127.0.0.1:6379", DB: 0, PoolSize: 20},
		Mongo: MongoConfig{Uri: "mongodb://localhost:27017", Database: "watchTogether"},
		Broker: BrokerConfig{
			Kind:        BrokerKindNats,
			NatsServers: []string{"nats://127.0.0.1:4222"},
			Topic:       "party.formed",
			GroupID:     "", // 为空时取 NodeType，两类节点各自成组，事件各收一份
		},
		Queue: QueueConfig{
			PartySize:       10,
			MaxWaitingTime:  10 * time.Minute,
			MaxCASRetries:   8,
			PublishAttempts: 4,
			PublishBackoff:  200 * time.Millisecond,
		},
		Party: PartyConfig{
			PlaybackTTL: 30 * time.Minute,
			IdleTimeout: 60 * time.Second,
			SendQueue:   256,
		},
	}
}

// Load 读取 JSON 配置文件（可为空），再套用环境变量覆盖
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return cfg, err
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
			Result:     &cfg,
		})
		if err != nil {
			return cfg, err
		}
		if err := dec.Decode(m); err != nil {
			return cfg, err
		}
		logger.Infof("[config] loaded overrides from %s", path)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("WP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("WP_GRPC_ADDR"); v != "" {
		cfg.GrpcAddr = v
	}
	if v := os.Getenv("WP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WP_MONGO_URI"); v != "" {
		cfg.Mongo.Uri = v
	}
	if v := os.Getenv("WP_NATS_URL"); v != "" {
		cfg.Broker.NatsServers = []string{v}
	}
	if v := os.Getenv("WP_BROKER_KIND"); v != "" {
		cfg.Broker.Kind = v
	}
	if v := os.Getenv("WP_JWT_SECRET"); v != "" {
		cfg.JwtSecret = v
	}
	if v := os.Getenv("WP_FINGERPRINT_KEY"); v != "" {
		cfg.FingerprintKey = v
	}
	if v := os.Getenv("WP_HANDLE_KEY"); v != "" {
		cfg.HandleKey = v
	}
	if v := os.Getenv("WP_DEV_TOKEN_MINT"); v == "1" || v == "true" {
		cfg.DevTokenMint = true
	}
}

func (c *AppConfig) JwtSecretBytes() []byte { return []byte(c.JwtSecret) }
