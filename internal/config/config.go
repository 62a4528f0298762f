package config

import (
	"tycoon-indexer-sol/pkg/logger"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// KafkaProducerConfig 表示事件通知 Kafka 生产者相关配置
type KafkaProducerConfig struct {
	Brokers   string `yaml:"brokers"`    // Kafka broker 地址，多个用英文逗号分隔
	BatchSize int    `yaml:"batch_size"` // 批处理大小（单位字节）
	LingerMs  int    `yaml:"linger_ms"`  // 批处理最大延迟（毫秒）

	Topic         string `yaml:"topic"`           // 事件通知 topic
	Partitions    int    `yaml:"partitions"`      // topic 分区数
	SendTimeoutMs int    `yaml:"send_timeout_ms"` // 单条通知发送并等待 ack 的超时时间
}

// GrpcConfig 表示 Geyser 推送订阅（实时模式）的连接配置
type GrpcConfig struct {
	Endpoint string `yaml:"endpoint"` // gRPC 服务端地址
	XToken   string `yaml:"x_token"`  // x-token 认证

	// 应用级逻辑心跳（ping）配置
	StreamPingIntervalSec int `yaml:"stream_ping_interval_sec"` // 应用层 ping 心跳间隔（秒）

	// gRPC Keepalive 底层连接检测配置
	KeepalivePingIntervalSec int `yaml:"keepalive_ping_interval_sec"` // 底层 keepalive 间隔（秒）
	KeepalivePingTimeoutSec  int `yaml:"keepalive_ping_timeout_sec"`  // 底层 keepalive 超时（秒）

	// gRPC 窗口大小调优（用于大数据流推送）
	InitialWindowSize     int `yaml:"initial_window_size"`      // 单流窗口大小（字节）
	InitialConnWindowSize int `yaml:"initial_conn_window_size"` // 整体连接窗口大小（字节）

	// 消息体大小限制
	MaxCallSendMsgSize int `yaml:"max_call_send_msg_size"` // 单条消息最大发送字节数
	MaxCallRecvMsgSize int `yaml:"max_call_recv_msg_size"` // 单条消息最大接收字节数

	// 超时与静默检测
	ConnectTimeoutSec  int `yaml:"connect_timeout_sec"`   // 连接建立超时（秒）
	SendTimeoutSec     int `yaml:"send_timeout_sec"`      // 发送超时（秒）
	BlockSilenceSec    int `yaml:"block_silence_sec"`     // 多久未收到 block 视为断流（秒）
	ReconnectDelaySec  int `yaml:"reconnect_delay_sec"`   // 单次重连前的等待（秒）
	MaxConsecutiveFail int `yaml:"max_consecutive_fail"`  // 连续失败阈值，超过后切换到轮询回退模式
}

// RpcConfig 表示回退轮询与启动回扫使用的 RPC 配置
type RpcConfig struct {
	Endpoint           string `yaml:"endpoint"`             // Solana RPC 节点地址
	PollIntervalSec    int    `yaml:"poll_interval_sec"`    // 回退模式轮询间隔（秒）
	MaxBatchSlots      int    `yaml:"max_batch_slots"`      // 单轮最多补拉的 slot 数
	RequestTimeoutSec  int    `yaml:"request_timeout_sec"`  // 单次 RPC 调用超时（秒）
	MaxConsecutiveFail int    `yaml:"max_consecutive_fail"` // 连续失败阈值，超过后进入 Errored 状态
	BackoffBaseMs      int    `yaml:"backoff_base_ms"`      // 指数退避基础间隔（毫秒）
	BackoffCapMs       int    `yaml:"backoff_cap_ms"`       // 指数退避上限（毫秒）
	BackfillSlots      uint64 `yaml:"backfill_slots"`       // 启动时向前回扫的 slot 窗口
}

// DispatchConfig 表示事件分发的重试策略配置
type DispatchConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`    // 单笔交易处理单元的最大尝试次数
	BackoffBaseMs int `yaml:"backoff_base_ms"` // 重试指数退避基础间隔（毫秒）
	BackoffCapMs  int `yaml:"backoff_cap_ms"`  // 重试指数退避上限（毫秒）
}

// IndexerConfig 是主配置结构体，用于驱动索引器服务
type IndexerConfig struct {
	LogConf           LogConfig           `yaml:"logger"`         // 日志配置
	KafkaProducerConf KafkaProducerConfig `yaml:"kafka_producer"` // 事件通知配置
	GrpcConf          GrpcConfig          `yaml:"grpc"`           // 实时推送配置
	RpcConf           RpcConfig           `yaml:"rpc"`            // 回退轮询配置
	DispatchConf      DispatchConfig      `yaml:"dispatch"`       // 分发重试配置

	ProgramID   string `yaml:"program_id"`   // 游戏程序地址（base58）
	RedisAddr   string `yaml:"redis_addr"`   // Redis 地址
	PostgresDSN string `yaml:"postgres_dsn"` // PostgreSQL 数据源
}
