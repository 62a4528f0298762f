package progress

import (
	"context"
	"sync"

	"tycoon-indexer-sol/pkg/logger"
)

// dbStore / redisStore 抽出接口便于测试替换
type dbStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Advance(ctx context.Context, slot uint64) error
}

type redisStore interface {
	Get(ctx context.Context) (uint64, bool, error)
	Set(ctx context.Context, slot uint64) error
}

// Manager 统一封装 DB + Redis 检查点：DB 权威、Redis 镜像、内存缓存热路径。
// 高水位只增不减，是“启动回扫从哪里开始、回退轮询补到哪里”的唯一依据。
type Manager struct {
	db    dbStore
	redis redisStore // 可为 nil（测试或无 Redis 部署）

	mu      sync.Mutex
	current uint64
	loaded  bool
}

func NewManager(db dbStore, redis redisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// Load 启动时恢复高水位。以 DB 为准；Redis 镜像落后时顺手修正。
func (m *Manager) Load(ctx context.Context) (uint64, error) {
	slot, ok, err := m.db.Load(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.current = slot
	m.loaded = true
	m.mu.Unlock()

	if ok && m.redis != nil {
		if cached, has, err := m.redis.Get(ctx); err != nil {
			logger.Warnf("[progress] Redis 镜像读取失败（忽略）: %v", err)
		} else if !has || cached < slot {
			if err := m.redis.Set(ctx, slot); err != nil {
				logger.Warnf("[progress] Redis 镜像修正失败（忽略）: %v", err)
			}
		}
	}
	return slot, nil
}

// Last 返回当前内存中的高水位
func (m *Manager) Last() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance 推进高水位。slot 不高于当前值时为静默 no-op；
// DB 写入成功后再更新内存与 Redis 镜像，镜像失败只打日志。
func (m *Manager) Advance(ctx context.Context, slot uint64) error {
	m.mu.Lock()
	if m.loaded && slot <= m.current {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.db.Advance(ctx, slot); err != nil {
		return err
	}

	m.mu.Lock()
	if slot > m.current {
		m.current = slot
	}
	m.mu.Unlock()

	if m.redis != nil {
		if err := m.redis.Set(ctx, slot); err != nil {
			logger.Warnf("[progress] Redis 镜像更新失败（忽略）: slot=%d, err=%v", slot, err)
		}
	}
	return nil
}
