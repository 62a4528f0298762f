package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/pkg/logger"
)

// State 表示编排器生命周期状态
type State int32

const (
	StateStopped  State = 0
	StateStarting State = 1
	StateRunning  State = 2
	StateStopping State = 3
	StateErrored  State = 4
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// runner 是数据源的运行抽象：阻塞运行，ctx 取消返回 nil，致命错误返回非 nil
type runner interface {
	Run(ctx context.Context) error
}

// Snapshot 对外暴露的运行视图（只读拷贝）
type Snapshot struct {
	State   State              `json:"state"`
	Uptime  time.Duration      `json:"uptime"`
	LastErr string             `json:"last_err,omitempty"`
	Stats   core.StatsSnapshot `json:"stats"`
}

// Indexer 编排数据源的生命周期：
// Stopped → Starting → Running → Stopping → Stopped；
// 数据源致命退出时 Running → Errored，需显式 Start 重启。
// 实现 go-zero ServiceGroup 的 Start/Stop 约定。
type Indexer struct {
	src   runner
	stats *core.Stats

	state   atomic.Int32
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	lastErr error
}

func New(src runner, stats *core.Stats) *Indexer {
	return &Indexer{
		src:   src,
		stats: stats,
	}
}

// Start 启动编排器；已在运行或启动中则为 no-op。阻塞直到 Stop 或数据源退出。
func (ix *Indexer) Start() {
	ix.mu.Lock()
	st := State(ix.state.Load())
	if st == StateStarting || st == StateRunning || st == StateStopping {
		ix.mu.Unlock()
		logger.Warnf("[indexer] Start 忽略: 当前状态=%s", st)
		return
	}

	ix.state.Store(int32(StateStarting))
	ctx, cancel := context.WithCancel(context.Background())
	ix.cancel = cancel
	ix.done = make(chan struct{})
	ix.started = time.Now()
	ix.lastErr = nil
	done := ix.done
	ix.mu.Unlock()

	ix.state.Store(int32(StateRunning))
	logger.Infof("[indexer] 已启动")

	err := ix.src.Run(ctx)
	close(done)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err != nil {
		ix.lastErr = err
		ix.state.Store(int32(StateErrored))
		logger.Errorf("[indexer] 数据源致命退出: err=%v", err)
		return
	}
	ix.state.Store(int32(StateStopped))
	logger.Infof("[indexer] 已停止")
}

// Stop 请求停止并等待 Start 退出；未在运行则为 no-op
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	st := State(ix.state.Load())
	if st != StateRunning && st != StateStarting {
		ix.mu.Unlock()
		return
	}
	ix.state.Store(int32(StateStopping))
	cancel := ix.cancel
	done := ix.done
	ix.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State 返回当前状态
func (ix *Indexer) State() State {
	return State(ix.state.Load())
}

// Snapshot 返回状态 + 统计的一致性快照
func (ix *Indexer) Snapshot() Snapshot {
	ix.mu.Lock()
	started := ix.started
	lastErr := ix.lastErr
	ix.mu.Unlock()

	snap := Snapshot{
		State: State(ix.state.Load()),
		Stats: ix.stats.Snapshot(),
	}
	if snap.State == StateRunning && !started.IsZero() {
		snap.Uptime = time.Since(started)
	}
	if lastErr != nil {
		snap.LastErr = lastErr.Error()
	}
	return snap
}
