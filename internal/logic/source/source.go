package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tycoon-indexer-sol/internal/config"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/logic/progress"
	"tycoon-indexer-sol/pkg/logger"
)

// Mode 表示数据到达路径，两种模式互斥
type Mode int32

const (
	ModeLive     Mode = 1 // Geyser 推送订阅
	ModeFallback Mode = 2 // RPC 轮询补拉
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// liveStream / pollClient 抽出接口便于测试替换
type liveStream interface {
	Run(ctx context.Context, emit func(*core.RawTransaction)) error
}

type pollClient interface {
	HeadSlot(ctx context.Context) (uint64, error)
	SlotsInRange(ctx context.Context, from, to uint64) ([]uint64, error)
	BlockTransactions(ctx context.Context, slot uint64) ([]*core.RawTransaction, error)
}

// Process 是每笔原始交易的处理入口（分发器的处理单元）。
// 返回错误表示该笔交易被丢弃（已在分发器内记日志与计数），不影响流本身。
type Process func(ctx context.Context, tx *core.RawTransaction) error

// Option 汇总 EventSource 的运行参数
type Option struct {
	LiveMaxFail    int           // 实时模式连续失败阈值，超过后切换回退模式
	ReconnectDelay time.Duration // 实时模式单次重连前的等待
	PollInterval   time.Duration // 回退模式轮询间隔
	PollMaxFail    int           // 回退模式连续失败阈值，超过后致命退出
	MaxBatchSlots  int           // 回退模式单轮最多补拉的 slot 数
	BackfillSlots  uint64        // 启动回扫窗口
	BackoffBase    time.Duration // 回退模式重试退避基础间隔
	BackoffCap     time.Duration // 回退模式重试退避上限
}

func OptionFromConfig(grpcConf config.GrpcConfig, rpcConf config.RpcConfig) Option {
	return Option{
		LiveMaxFail:    grpcConf.MaxConsecutiveFail,
		ReconnectDelay: time.Duration(grpcConf.ReconnectDelaySec) * time.Second,
		PollInterval:   time.Duration(rpcConf.PollIntervalSec) * time.Second,
		PollMaxFail:    rpcConf.MaxConsecutiveFail,
		MaxBatchSlots:  rpcConf.MaxBatchSlots,
		BackfillSlots:  rpcConf.BackfillSlots,
		BackoffBase:    time.Duration(rpcConf.BackoffBaseMs) * time.Millisecond,
		BackoffCap:     time.Duration(rpcConf.BackoffCapMs) * time.Millisecond,
	}
}

// Source 向分发器供给有序的原始交易流。
// 启动顺序：有界回扫 → 实时推送；推送连续失败达到阈值后进入回退轮询；
// 回退轮询连续失败达到阈值后返回致命错误（由编排器转入 Errored）。
// 模式切换只由连续失败计数器驱动，不设其他旁路开关。
type Source struct {
	live       liveStream // 可为 nil（未配置推送端点时直接走回退模式）
	poll       pollClient
	checkpoint *progress.Manager
	process    Process
	opt        Option

	mode atomic.Int32
}

func New(live liveStream, poll pollClient, checkpoint *progress.Manager, process Process, opt Option) *Source {
	if opt.LiveMaxFail <= 0 {
		opt.LiveMaxFail = 5
	}
	if opt.PollMaxFail <= 0 {
		opt.PollMaxFail = 10
	}
	if opt.PollInterval <= 0 {
		opt.PollInterval = 5 * time.Second
	}
	if opt.MaxBatchSlots <= 0 {
		opt.MaxBatchSlots = 100
	}
	if opt.ReconnectDelay <= 0 {
		opt.ReconnectDelay = time.Second
	}
	if opt.BackoffBase <= 0 {
		opt.BackoffBase = 500 * time.Millisecond
	}
	if opt.BackoffCap <= 0 {
		opt.BackoffCap = 30 * time.Second
	}
	return &Source{
		live:       live,
		poll:       poll,
		checkpoint: checkpoint,
		process:    process,
		opt:        opt,
	}
}

// Mode 返回当前数据到达模式
func (s *Source) Mode() Mode {
	return Mode(s.mode.Load())
}

// Run 阻塞运行直到 ctx 取消（返回 nil）或回退模式重试耗尽（返回致命错误）
func (s *Source) Run(ctx context.Context) error {
	if fresh := s.initCheckpoint(ctx); !fresh {
		s.backfill(ctx)
	}

	if s.live != nil {
		s.mode.Store(int32(ModeLive))
		if cancelled := s.runLive(ctx); cancelled || ctx.Err() != nil {
			return nil
		}
	}

	s.mode.Store(int32(ModeFallback))
	logger.Warnf("[source] 进入回退轮询模式: interval=%v", s.opt.PollInterval)
	return s.runFallback(ctx)
}

// initCheckpoint 首次启动（无检查点）时把高水位对齐到当前链头，
// 之后只跟进增量；返回 true 表示本次是全新部署。
// 历史全量回放不在职责内，检查点绝不能从 0 开始追。
func (s *Source) initCheckpoint(ctx context.Context) bool {
	if s.checkpoint.Last() != 0 {
		return false
	}

	head, err := s.poll.HeadSlot(ctx)
	if err != nil {
		logger.Warnf("[source] 首次启动读链头失败，检查点保持未初始化: err=%v", err)
		return true
	}
	if head == 0 {
		return true
	}
	if err := s.checkpoint.Advance(ctx, head); err != nil {
		logger.Warnf("[source] 首次启动检查点初始化失败: slot=%d, err=%v", head, err)
		return true
	}
	logger.Infof("[source] 首次启动，检查点对齐链头: slot=%d", head)
	return true
}

// backfill 启动回扫：重放检查点之前的一小段窗口，找回停机期间漏掉的事件。
// 有界、尽力而为；正确性由判重 key 兜底，重放已入库事件是安全 no-op。
func (s *Source) backfill(ctx context.Context) {
	cp := s.checkpoint.Last()
	if cp == 0 || s.opt.BackfillSlots == 0 {
		return
	}

	from := uint64(0)
	if cp > s.opt.BackfillSlots {
		from = cp - s.opt.BackfillSlots
	}
	logger.Infof("[source] 启动回扫: [%d, %d]", from, cp)

	if err := s.pollRange(ctx, from, cp, false); err != nil {
		logger.Warnf("[source] 启动回扫未完成（忽略）: err=%v", err)
	}
}

// runLive 运行实时推送；返回 true 表示 ctx 已取消，false 表示应切换回退模式
func (s *Source) runLive(ctx context.Context) bool {
	consecutive := 0
	for {
		if ctx.Err() != nil {
			return true
		}

		var received atomic.Bool
		err := s.live.Run(ctx, func(tx *core.RawTransaction) {
			received.Store(true)
			// 分发失败已在分发器内计数与记日志，不算连接故障
			_ = s.process(ctx, tx)
		})
		if ctx.Err() != nil {
			return true
		}

		if received.Load() {
			consecutive = 0
		}
		consecutive++
		logger.Warnf("[source] 推送流断开 (%d/%d): err=%v", consecutive, s.opt.LiveMaxFail, err)
		if consecutive >= s.opt.LiveMaxFail {
			return false
		}

		select {
		case <-ctx.Done():
			return true
		case <-time.After(s.opt.ReconnectDelay):
		}
	}
}

// runFallback 周期性读链头并补拉检查点之后的增量
func (s *Source) runFallback(ctx context.Context) error {
	ticker := time.NewTicker(s.opt.PollInterval)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := s.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			logger.Errorf("[source] 轮询失败 (%d/%d): err=%v", consecutive, s.opt.PollMaxFail, err)
			if consecutive >= s.opt.PollMaxFail {
				return fmt.Errorf("fallback poll failed %d times in a row: %w", consecutive, err)
			}
			s.backoffSleep(ctx, consecutive)
			continue
		}
		consecutive = 0
	}
}

// pollOnce 执行一轮补拉：checkpoint+1 .. min(checkpoint+maxBatch, head)
func (s *Source) pollOnce(ctx context.Context) error {
	head, err := s.poll.HeadSlot(ctx)
	if err != nil {
		return err
	}

	cp := s.checkpoint.Last()
	if cp == 0 {
		// 启动时未能对齐链头（读链头失败过），这里补齐，下一轮再跟增量
		return s.checkpoint.Advance(ctx, head)
	}
	if head <= cp {
		return nil
	}

	from := cp + 1
	to := head
	if to-from+1 > uint64(s.opt.MaxBatchSlots) {
		to = from + uint64(s.opt.MaxBatchSlots) - 1
	}
	return s.pollRange(ctx, from, to, true)
}

// pollRange 补拉闭区间 [from, to] 内所有区块的相关交易。
// advance=true 时批次成功后把检查点推进到 to（覆盖空 slot 的前进）。
func (s *Source) pollRange(ctx context.Context, from, to uint64, advance bool) error {
	slots, err := s.poll.SlotsInRange(ctx, from, to)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		txs, err := s.poll.BlockTransactions(ctx, slot)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			// 交易级失败不中断批次：分发器已按签名记日志并计数
			_ = s.process(ctx, tx)
		}
	}

	if advance {
		if err := s.checkpoint.Advance(ctx, to); err != nil {
			logger.Warnf("[source] 批次检查点推进失败: slot=%d, err=%v", to, err)
		}
	}
	return nil
}

func (s *Source) backoffSleep(ctx context.Context, attempt int) {
	delay := s.opt.BackoffBase << (attempt - 1)
	if delay > s.opt.BackoffCap || delay <= 0 {
		delay = s.opt.BackoffCap
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
