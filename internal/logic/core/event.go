package core

import (
	"bytes"
	"encoding/json"
)

// EventKind 表示游戏程序产出的事件类别，封闭枚举，新增种类需同步注册解码器与 handler
type EventKind uint8

const (
	KindUnknown EventKind = iota
	KindPlayerCreated
	KindBusinessCreated
	KindBusinessCreatedInSlot
	KindBusinessUpgraded
	KindBusinessUpgradedInSlot
	KindBusinessSold
	KindBusinessSoldFromSlot
	KindEarningsUpdated
	KindEarningsClaimed
	KindBusinessTransferred
	KindBusinessDeactivated
	KindSlotUnlocked
	KindPremiumSlotPurchased

	// KindCount 为枚举上界，用于 per-kind 计数器数组
	KindCount
)

var kindNames = [KindCount]string{
	KindUnknown:                "Unknown",
	KindPlayerCreated:          "PlayerCreated",
	KindBusinessCreated:        "BusinessCreated",
	KindBusinessCreatedInSlot:  "BusinessCreatedInSlot",
	KindBusinessUpgraded:       "BusinessUpgraded",
	KindBusinessUpgradedInSlot: "BusinessUpgradedInSlot",
	KindBusinessSold:           "BusinessSold",
	KindBusinessSoldFromSlot:   "BusinessSoldFromSlot",
	KindEarningsUpdated:        "EarningsUpdated",
	KindEarningsClaimed:        "EarningsClaimed",
	KindBusinessTransferred:    "BusinessTransferred",
	KindBusinessDeactivated:    "BusinessDeactivated",
	KindSlotUnlocked:           "SlotUnlocked",
	KindPremiumSlotPurchased:   "PremiumSlotPurchased",
}

func (k EventKind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return "Unknown"
}

// DedupKey 是一条已解码事件的唯一身份：
//   - Signature:  交易签名（base58）
//   - IxIndex:    事件所属主指令在交易内的序号
//   - EventIndex: 事件在交易内的序号（同一指令可发出多条事件）
//
// 存储层以该三元组建唯一索引，重复投递只会落库一次。
type DedupKey struct {
	Signature  string
	IxIndex    uint16
	EventIndex uint16
}

// Field 是 ParsedEvent 中的一个已解码字段，保留解码顺序
type Field struct {
	Name  string
	Value any
}

// Fields 是按解码顺序排列的字段集合。
// 字段为可选语义：payload 长度不足时对应字段直接缺失，读取方需容忍缺失。
type Fields []Field

func (f *Fields) Set(name string, value any) {
	*f = append(*f, Field{Name: name, Value: value})
}

func (f Fields) Get(name string) (any, bool) {
	for _, fd := range f {
		if fd.Name == name {
			return fd.Value, true
		}
	}
	return nil, false
}

func (f Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

func (f Fields) Uint64(name string) (uint64, bool) {
	v, ok := f.Get(name)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint64)
	return u, ok
}

func (f Fields) Int64(name string) (int64, bool) {
	v, ok := f.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(int64)
	return i, ok
}

func (f Fields) Uint8(name string) (uint8, bool) {
	v, ok := f.Get(name)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint8)
	return u, ok
}

func (f Fields) String(name string) (string, bool) {
	v, ok := f.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MarshalJSON 将字段集合编码为保持解码顺序的 JSON object（落库 jsonb 用）
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fd := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(fd.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fd.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParsedEvent 表示一条已结构化的链上事件，是解码器的输出、分发器的输入
type ParsedEvent struct {
	Kind       EventKind
	Signature  string // 交易签名（base58）
	Slot       uint64 // 所属 slot，流内排序 key，重连后不保证全局单调
	BlockTime  int64  // 区块 Unix 时间戳（秒），缺失时为 0
	IxIndex    uint16 // 主指令序号
	EventIndex uint16 // 交易内事件序号
	Fields     Fields // 已解码字段（可能为部分字段）
	Raw        []byte // 原始 payload（含 8 字节 discriminator）
	FromLogs   bool   // true 表示来自日志文本兜底解析，字段保真度较低
}

// Key 返回该事件的判重 key
func (e *ParsedEvent) Key() DedupKey {
	return DedupKey{
		Signature:  e.Signature,
		IxIndex:    e.IxIndex,
		EventIndex: e.EventIndex,
	}
}

// RawTransaction 表示一笔待解码的原始交易，两种数据到达路径（推送/轮询）统一转换为该结构
type RawTransaction struct {
	Signature string   // 交易签名（base58）
	Slot      uint64   // 所属 slot
	BlockTime int64    // 区块 Unix 时间戳（秒），缺失时为 0
	Logs      []string // meta.logMessages 原始日志行
}
