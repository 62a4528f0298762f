package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// checkpointKey 不带 TTL：镜像值供热重启与外部面板读取，过期反而有害
const checkpointKey = "tycoon:indexer:checkpoint"

// RedisCheckpointStore 维护检查点在 Redis 中的镜像。
// DB 是唯一权威，Redis 只做低成本读取路径，写失败不阻塞主流程。
type RedisCheckpointStore struct {
	rdb *redis.Client
}

func NewRedisCheckpointStore(rdb *redis.Client) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb}
}

// Get 读取镜像值；key 不存在时返回 (0, false)
func (r *RedisCheckpointStore) Get(ctx context.Context) (uint64, bool, error) {
	val, err := r.rdb.Get(ctx, checkpointKey).Uint64()
	switch {
	case err == redis.Nil:
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("redis get checkpoint: %w", err)
	default:
		return val, true, nil
	}
}

// Set 覆盖镜像值（调用方保证单调性）
func (r *RedisCheckpointStore) Set(ctx context.Context, slot uint64) error {
	return r.rdb.Set(ctx, checkpointKey, slot, 0).Err()
}
