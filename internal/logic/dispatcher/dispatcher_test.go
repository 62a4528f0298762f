package dispatcher

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"tycoon-indexer-sol/internal/consts"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/logic/progress"
	"tycoon-indexer-sol/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- 测试替身 ----------

// fakeRunner 直接以 nil 事务执行 fn，事务语义由 fakeStore 模拟
type fakeRunner struct {
	calls int
}

func (r *fakeRunner) RunTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	r.calls++
	return fn(nil)
}

// fakeStore 用内存 map 模拟判重落库，可注入前 N 次写入失败
type fakeStore struct {
	seen         map[core.DedupKey]bool
	failuresLeft int
	rollbacks    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[core.DedupKey]bool)}
}

func (s *fakeStore) StoreEvent(_ context.Context, _ *sql.Tx, ev *core.ParsedEvent) (storage.StoreResult, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return 0, errors.New("storage unavailable")
	}
	key := ev.Key()
	if s.seen[key] {
		return storage.Duplicate, nil
	}
	s.seen[key] = true
	return storage.Inserted, nil
}

func (s *fakeStore) WithSavepoint(_ context.Context, _ *sql.Tx, fn func() error) error {
	if err := fn(); err != nil {
		s.rollbacks++
		return err
	}
	return nil
}

// memCheckpoint 实现 progress 的 DB 侧接口
type memCheckpoint struct {
	slot uint64
}

func (m *memCheckpoint) Load(_ context.Context) (uint64, bool, error) {
	return m.slot, m.slot > 0, nil
}

func (m *memCheckpoint) Advance(_ context.Context, slot uint64) error {
	if slot > m.slot {
		m.slot = slot
	}
	return nil
}

type fakeNotifier struct {
	events []*core.ParsedEvent
}

func (n *fakeNotifier) Notify(ev *core.ParsedEvent) {
	n.events = append(n.events, ev)
}

// ---------- 夹具 ----------

// EarningsUpdated 的 discriminator（与解码器路由表一致）
const testDiscEarningsUpdated uint64 = 0x1a8e65f2074dc9b3

func earningsUpdatedTx(signature string, slot uint64) *core.RawTransaction {
	body := make([]byte, 57)
	for i := 0; i < 32; i++ {
		body[i] = byte(i + 1)
	}
	binary.LittleEndian.PutUint64(body[32:], 1000)
	binary.LittleEndian.PutUint64(body[40:], 5000)
	binary.LittleEndian.PutUint64(body[48:], 1700003600)
	body[56] = 2

	data := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(data[:8], testDiscEarningsUpdated)
	copy(data[8:], body)

	return &core.RawTransaction{
		Signature: signature,
		Slot:      slot,
		BlockTime: 1700000000,
		Logs:      []string{consts.ProgramDataPrefix + base64.StdEncoding.EncodeToString(data)},
	}
}

type testEnv struct {
	disp       *Dispatcher
	runner     *fakeRunner
	store      *fakeStore
	checkpoint *progress.Manager
	cpBackend  *memCheckpoint
	notifier   *fakeNotifier
	stats      *core.Stats
}

func newTestEnv(t *testing.T, opt Option) *testEnv {
	t.Helper()
	cpBackend := &memCheckpoint{}
	checkpoint := progress.NewManager(cpBackend, nil)
	_, err := checkpoint.Load(context.Background())
	require.NoError(t, err)

	env := &testEnv{
		runner:     &fakeRunner{},
		store:      newFakeStore(),
		checkpoint: checkpoint,
		cpBackend:  cpBackend,
		notifier:   &fakeNotifier{},
		stats:      core.NewStats(),
	}
	env.disp = New(env.runner, env.store, checkpoint, env.notifier, env.stats, opt)
	return env
}

func fastOpt() Option {
	return Option{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffCap: 5 * time.Millisecond}
}

// ---------- 用例 ----------

// 同一交易重复投递：只落库一次、handler 只调用一次、通知只发一次
func TestProcessTransaction_Idempotent(t *testing.T) {
	env := newTestEnv(t, fastOpt())

	handlerCalls := 0
	env.disp.Register(core.KindEarningsUpdated, func(_ context.Context, _ *sql.Tx, _ *core.ParsedEvent) error {
		handlerCalls++
		return nil
	})

	tx := earningsUpdatedTx("sigA", 100)
	require.NoError(t, env.disp.ProcessTransaction(context.Background(), tx))
	require.NoError(t, env.disp.ProcessTransaction(context.Background(), tx))

	assert.Len(t, env.store.seen, 1)
	assert.Equal(t, 1, handlerCalls)
	assert.Len(t, env.notifier.events, 1)

	snap := env.stats.Snapshot()
	assert.Equal(t, uint64(1), snap.EventsProcessed)
	assert.Equal(t, uint64(1), snap.DuplicatesSkipped)
	assert.Equal(t, uint64(100), snap.LastProcessedSlot)
	assert.Equal(t, uint64(1), snap.PerKind["EarningsUpdated"])
}

// 存储瞬时失败：整单重试后成功，handler 仍只生效一次
func TestProcessTransaction_RetriesTransientStorageError(t *testing.T) {
	env := newTestEnv(t, fastOpt())
	env.store.failuresLeft = 2

	handlerCalls := 0
	env.disp.Register(core.KindEarningsUpdated, func(_ context.Context, _ *sql.Tx, _ *core.ParsedEvent) error {
		handlerCalls++
		return nil
	})

	err := env.disp.ProcessTransaction(context.Background(), earningsUpdatedTx("sigB", 200))
	require.NoError(t, err)

	assert.Equal(t, 3, env.runner.calls)
	assert.Equal(t, 1, handlerCalls)
	assert.Equal(t, uint64(200), env.cpBackend.slot)
}

// 重试耗尽：计入 dropped、不推检查点、错误返回但不 panic
func TestProcessTransaction_DropsAfterExhaustedRetries(t *testing.T) {
	env := newTestEnv(t, Option{MaxAttempts: 2, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond})
	env.store.failuresLeft = 10

	err := env.disp.ProcessTransaction(context.Background(), earningsUpdatedTx("sigC", 300))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sigC")

	snap := env.stats.Snapshot()
	assert.Equal(t, uint64(1), snap.DroppedTxs)
	assert.Equal(t, uint64(0), snap.EventsProcessed)
	assert.Equal(t, uint64(0), env.cpBackend.slot)
	assert.Empty(t, env.notifier.events)
}

// handler 报错：savepoint 回滚、计数、原始事件保留且照常通知
func TestProcessTransaction_HandlerFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, fastOpt())
	env.disp.Register(core.KindEarningsUpdated, func(_ context.Context, _ *sql.Tx, _ *core.ParsedEvent) error {
		return errors.New("derived state update failed")
	})

	err := env.disp.ProcessTransaction(context.Background(), earningsUpdatedTx("sigD", 400))
	require.NoError(t, err)

	assert.Equal(t, 1, env.store.rollbacks)
	assert.Len(t, env.store.seen, 1)
	assert.Len(t, env.notifier.events, 1)

	snap := env.stats.Snapshot()
	assert.Equal(t, uint64(1), snap.HandlerFailures)
	assert.Equal(t, uint64(1), snap.EventsProcessed)
	assert.Equal(t, uint64(400), snap.LastProcessedSlot)
}

// 未注册 handler 的种类：事件照常落库，不报错
func TestProcessTransaction_UnregisteredKindIsNoop(t *testing.T) {
	env := newTestEnv(t, fastOpt())

	err := env.disp.ProcessTransaction(context.Background(), earningsUpdatedTx("sigE", 500))
	require.NoError(t, err)

	assert.Len(t, env.store.seen, 1)
	assert.Equal(t, uint64(1), env.stats.Snapshot().EventsProcessed)
}

// 带事件 payload 却零产出：计入解码失败，检查点照常推进
func TestProcessTransaction_CountsDecodeFailure(t *testing.T) {
	env := newTestEnv(t, fastOpt())

	garbage := make([]byte, 48) // 未注册的 discriminator
	tx := &core.RawTransaction{
		Signature: "sigG",
		Slot:      700,
		BlockTime: 1700000000,
		Logs:      []string{consts.ProgramDataPrefix + base64.StdEncoding.EncodeToString(garbage)},
	}
	require.NoError(t, env.disp.ProcessTransaction(context.Background(), tx))

	assert.Equal(t, uint64(1), env.stats.Snapshot().DecodeFailures)
	assert.Equal(t, uint64(700), env.cpBackend.slot)
	assert.Empty(t, env.store.seen)
}

// 无事件交易：跳过落库但推进检查点（空 slot 不应被回退轮询反复补拉）
func TestProcessTransaction_NoEventsStillAdvancesCheckpoint(t *testing.T) {
	env := newTestEnv(t, fastOpt())

	tx := &core.RawTransaction{
		Signature: "sigF",
		Slot:      600,
		BlockTime: 1700000000,
		Logs:      []string{"Program log: nothing interesting"},
	}
	require.NoError(t, env.disp.ProcessTransaction(context.Background(), tx))

	assert.Empty(t, env.store.seen)
	assert.Equal(t, 0, env.runner.calls)
	assert.Equal(t, uint64(600), env.cpBackend.slot)
}
