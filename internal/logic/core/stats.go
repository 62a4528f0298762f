package core

import (
	"sync/atomic"
	"time"
)

// Stats 是索引器的全局处理计数器，单一持有点，全部基于原子操作，外部只读快照
type Stats struct {
	startedAt time.Time

	eventsProcessed   atomic.Uint64
	duplicatesSkipped atomic.Uint64
	decodeFailures    atomic.Uint64
	handlerFailures   atomic.Uint64
	droppedTxs        atomic.Uint64
	lastProcessedSlot atomic.Uint64

	perKind [KindCount]atomic.Uint64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) EventProcessed(kind EventKind) {
	s.eventsProcessed.Add(1)
	if kind < KindCount {
		s.perKind[kind].Add(1)
	}
}

func (s *Stats) DuplicateSkipped() { s.duplicatesSkipped.Add(1) }
func (s *Stats) DecodeFailure()    { s.decodeFailures.Add(1) }
func (s *Stats) HandlerFailure()   { s.handlerFailures.Add(1) }
func (s *Stats) TxDropped()        { s.droppedTxs.Add(1) }

// AdvanceSlot 记录最新处理到的 slot，只增不减
func (s *Stats) AdvanceSlot(slot uint64) {
	for {
		cur := s.lastProcessedSlot.Load()
		if slot <= cur {
			return
		}
		if s.lastProcessedSlot.CompareAndSwap(cur, slot) {
			return
		}
	}
}

func (s *Stats) StartedAt() time.Time { return s.startedAt }

// StatsSnapshot 为某一时刻的计数器只读快照
type StatsSnapshot struct {
	EventsProcessed   uint64            `json:"events_processed"`
	DuplicatesSkipped uint64            `json:"duplicates_skipped"`
	DecodeFailures    uint64            `json:"decode_failures"`
	HandlerFailures   uint64            `json:"handler_failures"`
	DroppedTxs        uint64            `json:"dropped_txs"`
	LastProcessedSlot uint64            `json:"last_processed_slot"`
	PerKind           map[string]uint64 `json:"per_kind"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		EventsProcessed:   s.eventsProcessed.Load(),
		DuplicatesSkipped: s.duplicatesSkipped.Load(),
		DecodeFailures:    s.decodeFailures.Load(),
		HandlerFailures:   s.handlerFailures.Load(),
		DroppedTxs:        s.droppedTxs.Load(),
		LastProcessedSlot: s.lastProcessedSlot.Load(),
		PerKind:           make(map[string]uint64, int(KindCount)),
	}
	for k := EventKind(1); k < KindCount; k++ {
		if n := s.perKind[k].Load(); n > 0 {
			snap.PerKind[k.String()] = n
		}
	}
	return snap
}
