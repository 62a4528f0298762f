package eventdecoder

import (
	"tycoon-indexer-sol/internal/logic/core"
)

// BusinessCreated 布局（66 字节，旧版无槽位事件）：
//
//	player(0:32) business_type(32:1) level(33:1) base_cost(40:8) total_paid(48:8) daily_rate(56:2 u16) created_at(58:8 i64)
//
// 34..40 为对齐填充。
func decodeBusinessCreated(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("level", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("base_cost", v)
	}
	if v, ok := p.u64(48); ok {
		ev.Fields.Set("total_paid", v)
	}
	if v, ok := p.u16(56); ok {
		ev.Fields.Set("daily_rate", v) // 基点（1/100 百分比）
	}
	if v, ok := p.i64(58); ok {
		ev.Fields.Set("created_at", v)
	}
}

// BusinessCreatedInSlot 布局（70 字节）：
//
//	player(0:32) slot_index(32:1) business_type(33:1) level(34:1)
//	base_cost(40:8) slot_cost(48:8) total_paid(56:8) daily_rate(64:2 u16) created_at(66:4 u32)
//
// created_at 为 u32 秒级时间戳，35..40 为对齐填充。
func decodeBusinessCreatedInSlot(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(34); ok {
		ev.Fields.Set("level", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("base_cost", v)
	}
	if v, ok := p.u64(48); ok {
		ev.Fields.Set("slot_cost", v)
	}
	if v, ok := p.u64(56); ok {
		ev.Fields.Set("total_paid", v)
	}
	if v, ok := p.u16(64); ok {
		ev.Fields.Set("daily_rate", v)
	}
	if v, ok := p.u32(66); ok {
		ev.Fields.Set("created_at", int64(v))
	}
}

// BusinessUpgraded 布局（66 字节）：
//
//	player(0:32) business_type(32:1) new_level(33:1)
//	upgrade_cost(40:8) total_invested(48:8) daily_rate(56:2 u16) upgraded_at(58:8 i64)
func decodeBusinessUpgraded(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("new_level", v)
	}
	if v, ok := p.u64(40); ok {
		ev.Fields.Set("upgrade_cost", v)
	}
	if v, ok := p.u64(48); ok {
		ev.Fields.Set("total_invested", v)
	}
	if v, ok := p.u16(56); ok {
		ev.Fields.Set("daily_rate", v)
	}
	if v, ok := p.i64(58); ok {
		ev.Fields.Set("upgraded_at", v)
	}
}

// BusinessUpgradedInSlot 在链上观测到两种长度：
//
//	67 字节：player(0:32) slot_index(32:1) business_type(33:1) new_level(34:1)
//	         upgrade_cost(40:8) total_invested(48:8) daily_rate(56:2) upgraded_at(58:8 i64) + 末尾 1 字节填充
//	68 字节：同上，但 u8 块后多 1 个填充字节，金额区整体右移 1：
//	         upgrade_cost(41:8) total_invested(49:8) daily_rate(57:2) upgraded_at(59:8 i64)
//
// 上游编码在版本间漂移，这里按长度探测选择偏移，不强行认定唯一布局。
func decodeBusinessUpgradedInSlot(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(34); ok {
		ev.Fields.Set("new_level", v)
	}

	base := 40
	if p.size() >= 68 {
		base = 41
	}
	if v, ok := p.u64(base); ok {
		ev.Fields.Set("upgrade_cost", v)
	}
	if v, ok := p.u64(base + 8); ok {
		ev.Fields.Set("total_invested", v)
	}
	if v, ok := p.u16(base + 16); ok {
		ev.Fields.Set("daily_rate", v)
	}
	if v, ok := p.i64(base + 18); ok {
		ev.Fields.Set("upgraded_at", v)
	}
}

// BusinessSold 布局（57 字节，旧版无槽位事件）：
//
//	player(0:32) business_type(32:1) total_invested(33:8) return_amount(41:8) sold_at(49:8 i64)
func decodeBusinessSold(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u64(33); ok {
		ev.Fields.Set("total_invested", v)
	}
	if v, ok := p.u64(41); ok {
		ev.Fields.Set("return_amount", v)
	}
	if v, ok := p.i64(49); ok {
		ev.Fields.Set("sold_at", v)
	}
}

// BusinessSoldFromSlot 的短形态（54 字节）：
//
//	player(0:32) slot_index(32:1) business_type(33:1) total_invested(34:8)
//	days_held(44:8) base_fee_pct(52:1) slot_discount(53:1)
//
// 长形态在 53 起叠加一个 u32 return_amount（与 slot_discount 重叠，53:4），
// payload ≥ 65 时尾部还带 sold_at(57:8 i64)。重叠是上游编码的已知不一致，
// 按“先读期望偏移，长度不够再回退”处理；sold_at 缺失时用区块时间兜底。
func decodeBusinessSoldFromSlot(p payload, ev *core.ParsedEvent, blockTime int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u64(34); ok {
		ev.Fields.Set("total_invested", v)
	}
	if v, ok := p.u64(44); ok {
		ev.Fields.Set("days_held", v)
	}
	if v, ok := p.u8(52); ok {
		ev.Fields.Set("base_fee_pct", v)
	}
	if v, ok := p.u8(53); ok {
		ev.Fields.Set("slot_discount", v)
	}
	if p.size() >= 57 {
		if v, ok := p.u32(53); ok {
			ev.Fields.Set("return_amount", uint64(v))
		}
	}
	if v, ok := p.i64(57); ok {
		ev.Fields.Set("sold_at", v)
	} else if blockTime > 0 {
		ev.Fields.Set("sold_at", blockTime)
	}
}

// BusinessTransferred 布局（74 字节）：
//
//	from_player(0:32) to_player(32:32) business_type(64:1) slot_index(65:1) transferred_at(66:8 i64)
func decodeBusinessTransferred(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("from_player", pk.String())
	}
	if pk, ok := p.pubkey(32); ok {
		ev.Fields.Set("to_player", pk.String())
	}
	if v, ok := p.u8(64); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(65); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.i64(66); ok {
		ev.Fields.Set("transferred_at", v)
	}
}

// BusinessDeactivated 布局（48 字节）：
//
//	player(0:32) slot_index(32:1) business_type(33:1) reason(34:1) deactivated_at(40:8 i64)
func decodeBusinessDeactivated(p payload, ev *core.ParsedEvent, _ int64) {
	if pk, ok := p.pubkey(0); ok {
		ev.Fields.Set("player", pk.String())
	}
	if v, ok := p.u8(32); ok {
		ev.Fields.Set("slot_index", v)
	}
	if v, ok := p.u8(33); ok {
		ev.Fields.Set("business_type", v)
	}
	if v, ok := p.u8(34); ok {
		ev.Fields.Set("reason", v)
	}
	if v, ok := p.i64(40); ok {
		ev.Fields.Set("deactivated_at", v)
	}
}
