package eventdecoder

import (
	"tycoon-indexer-sol/internal/logic/core"
)

// SlotUnlocked 布局（56 字节）：
//
//	player(0:32) slot_index(32:1) unlock_cost(40:8) unlocked_at(48:8 i64)
func decodeSlotUnlocked(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("unlock_cost", v)
	}
	if v, ok := p.i64(48); ok {
		ev.Fields.Set("unlocked_at", v)
	}
}

// PremiumSlotPurchased 布局（56 字节）：
//
//	player(0:32) slot_index(32:1) slot_type(33:1) price(40:8) purchased_at(48:8 i64)
func decodePremiumSlotPurchased(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("slot_type", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("price", v)
	}
	if v, ok := p.i64(48); ok {
		ev.Fields.Set("purchased_at", v)
	}
}
