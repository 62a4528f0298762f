package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tycoon-indexer-sol/internal/logic/core"
)

// StoreResult 表示一次事件写入的结果
type StoreResult int

const (
	Inserted  StoreResult = 1 // 新行已写入
	Duplicate StoreResult = 2 // 判重 key 已存在，跳过
)

// EventStore 负责原始事件的幂等落库。
// (signature, ix_index, event_index) 上的主键约束是整条管线
// “至多一次有效存储”的唯一依据，重放与回扫都靠它兜底。
type EventStore interface {
	// StoreEvent 在给定事务内写入事件；判重 key 冲突时返回 Duplicate，不报错
	StoreEvent(ctx context.Context, tx *sql.Tx, ev *core.ParsedEvent) (StoreResult, error)
	// WithSavepoint 在 savepoint 内执行 fn；fn 报错时仅回滚到 savepoint，
	// 外层事务继续有效（handler 的副作用不得波及已写入的原始事件行）
	WithSavepoint(ctx context.Context, tx *sql.Tx, fn func() error) error
}

type pgEventStore struct{}

func NewEventStore() EventStore {
	return &pgEventStore{}
}

func (s *pgEventStore) StoreEvent(ctx context.Context, tx *sql.Tx, ev *core.ParsedEvent) (StoreResult, error) {
	fields, err := json.Marshal(ev.Fields)
	if err != nil {
		return 0, fmt.Errorf("marshal fields tx=%s: %w", ev.Signature, err)
	}

	const query = `
		INSERT INTO raw_event (signature, ix_index, event_index, kind, slot, block_time, from_logs, fields, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (signature, ix_index, event_index) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, query,
		ev.Signature, int16(ev.IxIndex), int16(ev.EventIndex), int16(ev.Kind),
		ev.Slot, ev.BlockTime, ev.FromLogs, fields, ev.Raw)
	if err != nil {
		return 0, fmt.Errorf("insert raw_event tx=%s: %w", ev.Signature, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected tx=%s: %w", ev.Signature, err)
	}
	if n == 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

func (s *pgEventStore) WithSavepoint(ctx context.Context, tx *sql.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT event_handler"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT event_handler"); rbErr != nil {
			return fmt.Errorf("rollback to savepoint after %v: %w", err, rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT event_handler"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
