package progress

import (
	"context"
	"database/sql"
	"fmt"
)

// checkpointRowID 固定为 1：检查点是全局单行高水位
const checkpointRowID = 1

// DBCheckpointStore 管理检查点的持久化存储，服务重启后的恢复依据
type DBCheckpointStore struct {
	db *sql.DB
}

func NewDBCheckpointStore(db *sql.DB) *DBCheckpointStore {
	return &DBCheckpointStore{db: db}
}

// Load 读取最近一次落库的高水位；不存在时返回 (0, false)
func (d *DBCheckpointStore) Load(ctx context.Context) (uint64, bool, error) {
	const query = `SELECT last_processed_slot FROM checkpoint WHERE id = $1`
	var slot int64
	err := d.db.QueryRowContext(ctx, query, checkpointRowID).Scan(&slot)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return uint64(slot), true, nil
}

// Advance 推进高水位。GREATEST 保证乱序或重放的批次永远不会把检查点拉低。
func (d *DBCheckpointStore) Advance(ctx context.Context, slot uint64) error {
	const query = `
		INSERT INTO checkpoint (id, last_processed_slot, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			last_processed_slot = GREATEST(checkpoint.last_processed_slot, EXCLUDED.last_processed_slot),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := d.db.ExecContext(ctx, query, checkpointRowID, int64(slot)); err != nil {
		return fmt.Errorf("advance checkpoint to %d: %w", slot, err)
	}
	return nil
}
