package svc

import (
	"context"
	"database/sql"
	"time"

	"tycoon-indexer-sol/internal/config"
	"tycoon-indexer-sol/internal/logic/progress"
	"tycoon-indexer-sol/internal/mq"
	"tycoon-indexer-sol/internal/storage"
	"tycoon-indexer-sol/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"
)

// ServiceContext 持有索引器的全部共享资源
type ServiceContext struct {
	Config     config.IndexerConfig
	DB         *sql.DB
	Redis      *redis.Client
	Producer   *kafka.Producer
	TxRunner   storage.TxRunner
	EventStore storage.EventStore
	Checkpoint *progress.Manager
	Notifier   *mq.Notifier
}

// NewServiceContext 初始化数据库、Redis、Kafka 与检查点管理器
func NewServiceContext(c config.IndexerConfig) (*ServiceContext, error) {
	// 1. PostgreSQL 连接 + 建表
	db, err := storage.Open(c.PostgresDSN)
	if err != nil {
		logger.Errorf("PostgreSQL 连接失败: %v", err)
		return nil, err
	}
	if err := storage.EnsureSchema(context.Background(), db); err != nil {
		logger.Errorf("建表失败: %v", err)
		db.Close()
		return nil, err
	}

	// 2. Redis 客户端（检查点镜像，可选）
	var rdb *redis.Client
	if c.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: c.RedisAddr,
		})
	}

	// 3. Kafka 生产者
	producer, err := mq.NewKafkaProducer(c.KafkaProducerConf)
	if err != nil {
		logger.Errorf("Kafka producer 初始化失败: %v", err)
		db.Close()
		return nil, err
	}

	// 4. 检查点管理器（DB 权威 + Redis 镜像）
	var checkpoint *progress.Manager
	if rdb != nil {
		checkpoint = progress.NewManager(progress.NewDBCheckpointStore(db), progress.NewRedisCheckpointStore(rdb))
	} else {
		checkpoint = progress.NewManager(progress.NewDBCheckpointStore(db), nil)
	}

	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := checkpoint.Load(loadCtx); err != nil {
		logger.Errorf("检查点加载失败: %v", err)
		producer.Close()
		db.Close()
		return nil, err
	}

	svcCtx := &ServiceContext{
		Config:     c,
		DB:         db,
		Redis:      rdb,
		Producer:   producer,
		TxRunner:   storage.NewTxRunner(db),
		EventStore: storage.NewEventStore(),
		Checkpoint: checkpoint,
		Notifier:   mq.NewNotifier(producer, c.KafkaProducerConf.Topic, c.KafkaProducerConf.SendTimeoutMs),
	}

	logger.Infof("服务上下文初始化完成: checkpoint=%d", checkpoint.Last())
	return svcCtx, nil
}

// Close 释放服务上下文持有的资源
func (s *ServiceContext) Close() {
	if s.Producer != nil {
		// 给未完成的异步通知最后一次冲刷机会
		s.Producer.Flush(3000)
		s.Producer.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
