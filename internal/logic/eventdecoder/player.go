package eventdecoder

import (
	"tycoon-indexer-sol/internal/logic/core"
)

// PlayerCreated 布局（56 字节）：
//
//	wallet(0:32) entry_fee(32:8 u64) created_at(40:8 i64) next_earnings_time(48:8 i64)
func decodePlayerCreated(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("wallet", pk.String())
	}
	if v, ok := p.u64(32); ok {
		ev.Fields.Set("entry_fee", v)
	}
	if v, ok := p.i64(40); ok {
		ev.Fields.Set("created_at", v)
	}
	if v, ok := p.i64(48); ok {
		ev.Fields.Set("next_earnings_time", v)
	}
}

// EarningsUpdated 布局（57 字节）：
//
//	player(0:32) earnings_added(32:8) total_pending(40:8) next_earnings_time(48:8 i64) businesses_count(56:1)
func decodeEarningsUpdated(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u64(32); ok {
		ev.Fields.Set("earnings_added", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("total_pending", v)
	}
	if v, ok := p.i64(48); ok {
		ev.Fields.Set("next_earnings_time", v)
	}
	if v, ok := p.u8(56); ok {
		ev.Fields.Set("businesses_count", v)
	}
}

// EarningsClaimed 布局（48 字节）：
//
//	player(0:32) amount(32:8) claimed_at(40:8 i64)
func decodeEarningsClaimed(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u64(32); ok {
		ev.Fields.Set("amount", v)
	}
	if v, ok := p.i64(40); ok {
		ev.Fields.Set("claimed_at", v)
	}
}
