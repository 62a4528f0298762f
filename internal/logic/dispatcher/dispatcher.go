package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tycoon-indexer-sol/internal/consts"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/logic/eventdecoder"
	"tycoon-indexer-sol/internal/logic/progress"
	"tycoon-indexer-sol/internal/storage"
	"tycoon-indexer-sol/pkg/logger"
)

// Handler 是某一事件种类的外部业务处理函数。
// 在与原始事件落库同一个数据库事务内调用（tx 即该事务），
// 但运行在独立的 savepoint 中：handler 报错只回滚它自己的写入，
// 原始事件行照常提交（原始事件的可审计性优先于派生效果）。
type Handler func(ctx context.Context, tx *sql.Tx, ev *core.ParsedEvent) error

// Notifier 是提交成功后的通知出口，必须 fire-and-forget：
// 实现方自行消化全部失败，绝不反向影响主流程。
type Notifier interface {
	Notify(ev *core.ParsedEvent)
}

// Option 表示分发重试策略
type Option struct {
	MaxAttempts int           // 单笔交易处理单元的最大尝试次数
	BackoffBase time.Duration // 重试退避基础间隔
	BackoffCap  time.Duration // 重试退避上限
}

// Dispatcher 驱动每笔交易的处理单元：
// 解码全部事件 → 判重写入 → 调用 handler → 原子提交 → 推进检查点 → 发通知。
// 判重由分发器负责，handler 对同一 dedup key 至多被成功路径调用一次。
type Dispatcher struct {
	runner     storage.TxRunner
	store      storage.EventStore
	checkpoint *progress.Manager
	notifier   Notifier // 可为 nil
	stats      *core.Stats
	handlers   map[core.EventKind]Handler
	opt        Option
}

func New(runner storage.TxRunner, store storage.EventStore, checkpoint *progress.Manager,
	notifier Notifier, stats *core.Stats, opt Option) *Dispatcher {
	if opt.MaxAttempts < 1 {
		opt.MaxAttempts = 3
	}
	if opt.BackoffBase <= 0 {
		opt.BackoffBase = 200 * time.Millisecond
	}
	if opt.BackoffCap <= 0 {
		opt.BackoffCap = 5 * time.Second
	}
	return &Dispatcher{
		runner:     runner,
		store:      store,
		checkpoint: checkpoint,
		notifier:   notifier,
		stats:      stats,
		handlers:   make(map[core.EventKind]Handler),
		opt:        opt,
	}
}

// Register 注册某事件种类的 handler，重复注册以最后一次为准
func (d *Dispatcher) Register(kind core.EventKind, h Handler) {
	d.handlers[kind] = h
}

// ProcessTransaction 处理一笔原始交易，推送与轮询两条到达路径共用。
// 存储错误按指数退避整单重试；重试耗尽后计入 dropped 并带签名记错误日志，
// 返回最后一次错误供调用方观察（调用方不应因此中断流）。
func (d *Dispatcher) ProcessTransaction(ctx context.Context, rawTx *core.RawTransaction) error {
	events := eventdecoder.DecodeTransaction(rawTx)
	if len(events) == 0 {
		// 交易带了事件 payload 却一条都没解出来（兜底解析也没命中），单独计数
		if hasEventPayload(rawTx.Logs) {
			d.stats.DecodeFailure()
			logger.Warnf("[dispatcher] 交易事件解码零产出: tx=%s, slot=%d", rawTx.Signature, rawTx.Slot)
		}
		// 没有本程序的事件也要推进检查点，否则空 slot 会让回退轮询反复补拉
		d.advanceCheckpoint(ctx, rawTx.Slot)
		return nil
	}

	var (
		inserted   []*core.ParsedEvent
		duplicates int
	)
	err := retryWithBackoff(ctx, d.opt.MaxAttempts, d.opt.BackoffBase, d.opt.BackoffCap, func() error {
		inserted = inserted[:0]
		duplicates = 0
		return d.runner.RunTx(ctx, func(tx *sql.Tx) error {
			for _, ev := range events {
				res, err := d.store.StoreEvent(ctx, tx, ev)
				if err != nil {
					return err
				}
				if res == storage.Duplicate {
					duplicates++
					continue
				}
				d.invokeHandler(ctx, tx, ev)
				inserted = append(inserted, ev)
			}
			return nil
		})
	})
	if err != nil {
		d.stats.TxDropped()
		logger.Errorf("[dispatcher] 交易处理失败（重试耗尽，待人工回放）: tx=%s, slot=%d, events=%d, err=%v",
			rawTx.Signature, rawTx.Slot, len(events), err)
		return fmt.Errorf("process tx %s: %w", rawTx.Signature, err)
	}

	for _, ev := range inserted {
		d.stats.EventProcessed(ev.Kind)
	}
	for i := 0; i < duplicates; i++ {
		d.stats.DuplicateSkipped()
	}
	d.stats.AdvanceSlot(rawTx.Slot)
	d.advanceCheckpoint(ctx, rawTx.Slot)

	if d.notifier != nil {
		for _, ev := range inserted {
			d.notifier.Notify(ev)
		}
	}
	return nil
}

// invokeHandler 在 savepoint 内调用业务 handler。
// 未注册的种类仅告警；handler 报错回滚其自身写入并计数，从不向上传播。
func (d *Dispatcher) invokeHandler(ctx context.Context, tx *sql.Tx, ev *core.ParsedEvent) {
	h, ok := d.handlers[ev.Kind]
	if !ok {
		logger.Warnf("[dispatcher] 未注册 handler 的事件种类: kind=%s, tx=%s", ev.Kind, ev.Signature)
		return
	}

	err := d.store.WithSavepoint(ctx, tx, func() error {
		return h(ctx, tx, ev)
	})
	if err != nil {
		d.stats.HandlerFailure()
		logger.Errorf("[dispatcher] handler 执行失败（原始事件保留）: kind=%s, tx=%s, ix=%d, ev=%d, err=%v",
			ev.Kind, ev.Signature, ev.IxIndex, ev.EventIndex, err)
	}
}

// hasEventPayload 判断日志中是否出现结构化事件行
func hasEventPayload(logs []string) bool {
	for _, line := range logs {
		if strings.HasPrefix(line, consts.ProgramDataPrefix) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) advanceCheckpoint(ctx context.Context, slot uint64) {
	if err := d.checkpoint.Advance(ctx, slot); err != nil {
		// 提交已经成功，检查点推进失败只影响重启回扫量，下一笔会再推
		logger.Warnf("[dispatcher] 检查点推进失败: slot=%d, err=%v", slot, err)
	}
}
