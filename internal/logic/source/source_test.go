package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/logic/progress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- 测试替身 ----------

type memCheckpoint struct {
	mu   sync.Mutex
	slot uint64
}

func (m *memCheckpoint) Load(_ context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot, m.slot > 0, nil
}

func (m *memCheckpoint) Advance(_ context.Context, slot uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot > m.slot {
		m.slot = slot
	}
	return nil
}

type rangeCall struct {
	from, to uint64
}

// fakePoll 用内存数据模拟 RPC 轮询端
type fakePoll struct {
	mu         sync.Mutex
	head       uint64
	headErr    error
	blocks     map[uint64][]*core.RawTransaction // slot → 交易
	rangeCalls []rangeCall
}

func (p *fakePoll) HeadSlot(_ context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head, p.headErr
}

func (p *fakePoll) SlotsInRange(_ context.Context, from, to uint64) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rangeCalls = append(p.rangeCalls, rangeCall{from: from, to: to})

	var slots []uint64
	for s := from; s <= to; s++ {
		if _, ok := p.blocks[s]; ok {
			slots = append(slots, s)
		}
	}
	return slots, nil
}

func (p *fakePoll) BlockTransactions(_ context.Context, slot uint64) ([]*core.RawTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks[slot], nil
}

// fakeLive 每次 Run 立即断开，可选先吐出若干交易
type fakeLive struct {
	mu   sync.Mutex
	runs int
	txs  []*core.RawTransaction
	err  error
}

func (l *fakeLive) Run(_ context.Context, emit func(*core.RawTransaction)) error {
	l.mu.Lock()
	l.runs++
	txs := l.txs
	l.txs = nil // 只在首次吐数据
	l.mu.Unlock()

	for _, tx := range txs {
		emit(tx)
	}
	return l.err
}

// blockingLive 模拟保持连接的推送流：不吐数据，直到 ctx 取消才返回
type blockingLive struct {
	started chan struct{}
}

func (l *blockingLive) Run(ctx context.Context, _ func(*core.RawTransaction)) error {
	close(l.started)
	<-ctx.Done()
	return ctx.Err()
}

func (l *fakeLive) runCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs
}

type processRecorder struct {
	mu  sync.Mutex
	txs []*core.RawTransaction
}

func (r *processRecorder) process(_ context.Context, tx *core.RawTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *processRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

func newCheckpoint(t *testing.T, slot uint64) *progress.Manager {
	t.Helper()
	m := progress.NewManager(&memCheckpoint{slot: slot}, nil)
	_, err := m.Load(context.Background())
	require.NoError(t, err)
	return m
}

func fastOpt() Option {
	return Option{
		LiveMaxFail:    2,
		ReconnectDelay: time.Millisecond,
		PollInterval:   time.Millisecond,
		PollMaxFail:    2,
		MaxBatchSlots:  100,
		BackfillSlots:  500,
		BackoffBase:    time.Millisecond,
		BackoffCap:     2 * time.Millisecond,
	}
}

func testBlockTx(sig string, slot uint64) *core.RawTransaction {
	return &core.RawTransaction{Signature: sig, Slot: slot, Logs: []string{"Program log: x"}}
}

// ---------- 用例 ----------

// 检查点 1000、回扫窗口 500：只重放 [500, 1000]，且不推进检查点
func TestSource_StartupBackfillWindow(t *testing.T) {
	cp := newCheckpoint(t, 1000)
	poll := &fakePoll{
		head: 1300,
		blocks: map[uint64][]*core.RawTransaction{
			600: {testBlockTx("sig600", 600)},
			999: {testBlockTx("sig999", 999)},
		},
	}
	rec := &processRecorder{}
	s := New(nil, poll, cp, rec.process, fastOpt())

	s.backfill(context.Background())

	require.NotEmpty(t, poll.rangeCalls)
	assert.Equal(t, rangeCall{from: 500, to: 1000}, poll.rangeCalls[0])
	assert.Equal(t, 2, rec.count())
	// 回扫不推进检查点
	assert.Equal(t, uint64(1000), cp.Last())
}

// 检查点为 0（首次启动）不回扫
func TestSource_NoBackfillOnFreshStart(t *testing.T) {
	cp := newCheckpoint(t, 0)
	poll := &fakePoll{head: 0}
	s := New(nil, poll, cp, (&processRecorder{}).process, fastOpt())

	s.backfill(context.Background())
	assert.Empty(t, poll.rangeCalls)
}

// ctx 已取消时 Run 直接干净退出
func TestSource_RunExitsOnCancelledContext(t *testing.T) {
	cp := newCheckpoint(t, 0)
	s := New(nil, &fakePoll{}, cp, (&processRecorder{}).process, fastOpt())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
}

// 实时模式运行中取消 ctx：Run 返回 nil（干净停止，不是致命错误）
func TestSource_RunReturnsNilOnCancelDuringLive(t *testing.T) {
	cp := newCheckpoint(t, 1000)
	live := &blockingLive{started: make(chan struct{})}

	opt := fastOpt()
	opt.BackfillSlots = 0
	s := New(live, &fakePoll{head: 1000}, cp, (&processRecorder{}).process, opt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-live.started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("取消后 Run 未退出")
	}
}

// 首次启动（无检查点）：对齐链头后只跟增量，不从创世 slot 追起
func TestSource_FreshStartAlignsCheckpointToHead(t *testing.T) {
	cp := newCheckpoint(t, 0)
	poll := &fakePoll{head: 250_000_000}
	s := New(nil, poll, cp, (&processRecorder{}).process, fastOpt())

	assert.True(t, s.initCheckpoint(context.Background()))
	assert.Equal(t, uint64(250_000_000), cp.Last())

	poll.mu.Lock()
	poll.head = 250_000_050
	poll.mu.Unlock()
	require.NoError(t, s.pollOnce(context.Background()))
	require.Len(t, poll.rangeCalls, 1)
	assert.Equal(t, rangeCall{from: 250_000_001, to: 250_000_050}, poll.rangeCalls[0])
}

// 启动时链头读取失败、检查点仍为 0：轮询先对齐链头，不补拉历史区间
func TestSource_PollAlignsCheckpointWhenUninitialized(t *testing.T) {
	cp := newCheckpoint(t, 0)
	poll := &fakePoll{head: 5000}
	s := New(nil, poll, cp, (&processRecorder{}).process, fastOpt())

	require.NoError(t, s.pollOnce(context.Background()))
	assert.Empty(t, poll.rangeCalls)
	assert.Equal(t, uint64(5000), cp.Last())
}

// 推送连续失败达到阈值后切换回退轮询
func TestSource_SwitchesToFallbackAfterLiveFailures(t *testing.T) {
	cp := newCheckpoint(t, 0)
	live := &fakeLive{err: errors.New("stream reset")}
	poll := &fakePoll{headErr: errors.New("rpc down")}

	opt := fastOpt()
	opt.BackfillSlots = 0
	s := New(live, poll, cp, (&processRecorder{}).process, opt)

	err := s.Run(context.Background())
	require.Error(t, err) // 轮询侧也耗尽重试，整体致命退出
	assert.Equal(t, opt.LiveMaxFail, live.runCount())
	assert.Equal(t, ModeFallback, s.Mode())
}

// 回退轮询按 MaxBatchSlots 分片补拉，批次成功后推进检查点到批次末尾
func TestSource_FallbackPollChunksAndAdvances(t *testing.T) {
	cp := newCheckpoint(t, 1000)
	poll := &fakePoll{
		head: 1250,
		blocks: map[uint64][]*core.RawTransaction{
			1001: {testBlockTx("sig1001", 1001)},
			1100: {testBlockTx("sig1100", 1100)},
		},
	}
	rec := &processRecorder{}
	s := New(nil, poll, cp, rec.process, fastOpt())

	require.NoError(t, s.pollOnce(context.Background()))

	require.Len(t, poll.rangeCalls, 1)
	assert.Equal(t, rangeCall{from: 1001, to: 1100}, poll.rangeCalls[0])
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, uint64(1100), cp.Last())

	// 第二轮从新检查点继续
	require.NoError(t, s.pollOnce(context.Background()))
	require.Len(t, poll.rangeCalls, 2)
	assert.Equal(t, rangeCall{from: 1101, to: 1200}, poll.rangeCalls[1])
}

// 链头不高于检查点时轮询是 no-op
func TestSource_FallbackPollNoNewSlots(t *testing.T) {
	cp := newCheckpoint(t, 1000)
	poll := &fakePoll{head: 1000}
	s := New(nil, poll, cp, (&processRecorder{}).process, fastOpt())

	require.NoError(t, s.pollOnce(context.Background()))
	assert.Empty(t, poll.rangeCalls)
	assert.Equal(t, uint64(1000), cp.Last())
}

// 实时模式下推送的交易直接进入处理函数
func TestSource_LiveEmitsToProcess(t *testing.T) {
	cp := newCheckpoint(t, 0)
	live := &fakeLive{
		txs: []*core.RawTransaction{testBlockTx("sigL", 42)},
		err: errors.New("disconnected"),
	}
	poll := &fakePoll{headErr: errors.New("rpc down")}

	opt := fastOpt()
	opt.BackfillSlots = 0
	rec := &processRecorder{}
	s := New(live, poll, cp, rec.process, opt)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "sigL", rec.txs[0].Signature)
}
