package eventdecoder

import (
	"encoding/base64"
	"encoding/binary"
	"runtime/debug"
	"strings"

	"tycoon-indexer-sol/internal/consts"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/pkg/logger"
)

// 事件 discriminator：payload 前 8 字节的大端视图，静态映射到解码函数。
// 值来自链上程序的事件定义，不同事件种类各占一个。
const (
	discPlayerCreated          uint64 = 0xd84f5a4c0be196d3
	discBusinessCreated        uint64 = 0x2e1c8a7f34b05d91
	discBusinessCreatedInSlot  uint64 = 0x7b94d2c5e801a6f2
	discBusinessUpgraded       uint64 = 0x41fa6e83c97205bd
	discBusinessUpgradedInSlot uint64 = 0x9c3057e8d1fb4a26
	discBusinessSold           uint64 = 0x65b8f104a3d92c7e
	discBusinessSoldFromSlot   uint64 = 0xe27c419bd6583f0a
	discEarningsUpdated        uint64 = 0x1a8e65f2074dc9b3
	discEarningsClaimed        uint64 = 0x8d20b7c49e6153fa
	discBusinessTransferred    uint64 = 0x56e9a03178cb4d2f
	discBusinessDeactivated    uint64 = 0xc4138a5f92d07e61
	discSlotUnlocked           uint64 = 0x3f7d20e6b15c98a4
	discPremiumSlotPurchased   uint64 = 0xa0652dc8f4391b7e
)

// decodeFunc 将事件 body（不含 discriminator）解码为字段集合。
// blockTime 用于个别短 payload 变体里缺失的时间字段兜底。
type decodeFunc func(p payload, ev *core.ParsedEvent, blockTime int64)

type decoder struct {
	kind   core.EventKind
	decode decodeFunc
}

// decoders 是 discriminator → 解码器的静态路由表
var decoders = map[uint64]decoder{
	discPlayerCreated:          {core.KindPlayerCreated, decodePlayerCreated},
	discBusinessCreated:        {core.KindBusinessCreated, decodeBusinessCreated},
	discBusinessCreatedInSlot:  {core.KindBusinessCreatedInSlot, decodeBusinessCreatedInSlot},
	discBusinessUpgraded:       {core.KindBusinessUpgraded, decodeBusinessUpgraded},
	discBusinessUpgradedInSlot: {core.KindBusinessUpgradedInSlot, decodeBusinessUpgradedInSlot},
	discBusinessSold:           {core.KindBusinessSold, decodeBusinessSold},
	discBusinessSoldFromSlot:   {core.KindBusinessSoldFromSlot, decodeBusinessSoldFromSlot},
	discEarningsUpdated:        {core.KindEarningsUpdated, decodeEarningsUpdated},
	discEarningsClaimed:        {core.KindEarningsClaimed, decodeEarningsClaimed},
	discBusinessTransferred:    {core.KindBusinessTransferred, decodeBusinessTransferred},
	discBusinessDeactivated:    {core.KindBusinessDeactivated, decodeBusinessDeactivated},
	discSlotUnlocked:           {core.KindSlotUnlocked, decodeSlotUnlocked},
	discPremiumSlotPurchased:   {core.KindPremiumSlotPurchased, decodePremiumSlotPurchased},
}

// minBodyLen 是任一事件的最低可用长度：第一个字段恒为 32 字节公钥，
// 连它都放不下的 payload 没有解码价值。
const minBodyLen = 32

// DecodeEvent 按 discriminator 解码单条事件 payload（data 含 8 字节前缀）。
// 未注册的 discriminator、过短的 payload 均返回 nil，不视为错误：
// 日志流里大多数 "Program data" 属于其他程序或非事件指令。
func DecodeEvent(data []byte, tx *core.RawTransaction, ixIndex, eventIndex uint16) *core.ParsedEvent {
	if len(data) < 8 {
		return nil
	}
	d, ok := decoders[binary.BigEndian.Uint64(data[:8])]
	if !ok {
		return nil
	}

	body := data[8:]
	if len(body) < minBodyLen {
		logger.Debugf("[eventdecoder] %s payload 过短: got=%d, want>=%d, tx=%s",
			d.kind, len(body), minBodyLen, tx.Signature)
		return nil
	}

	ev := &core.ParsedEvent{
		Kind:       d.kind,
		Signature:  tx.Signature,
		Slot:       tx.Slot,
		BlockTime:  tx.BlockTime,
		IxIndex:    ixIndex,
		EventIndex: eventIndex,
		Raw:        data,
	}
	d.decode(payload{b: body}, ev, tx.BlockTime)
	return ev
}

// DecodeTransaction 从一笔交易的日志中解出全部事件，按日志顺序返回。
// 结构化解码一条都没产出时，走日志文本兜底解析（见 logscan.go）。
// 任何内部 panic 都在此边界吞掉并置空结果，不得影响后续交易。
func DecodeTransaction(tx *core.RawTransaction) (result []*core.ParsedEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[eventdecoder] panic tx=%s: %+v\nstack: %s", tx.Signature, r, debug.Stack())
			result = nil
		}
	}()

	var (
		events     []*core.ParsedEvent
		ixIndex    = -1 // 在首条顶层 invoke 前出现的事件记为指令 0
		eventIndex uint16
	)
	for _, line := range tx.Logs {
		if isTopLevelInvoke(line) {
			ixIndex++
			continue
		}

		rest, ok := strings.CutPrefix(line, consts.ProgramDataPrefix)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			logger.Warnf("[eventdecoder] base64 解码失败: tx=%s, err=%v", tx.Signature, err)
			continue
		}

		ix := uint16(0)
		if ixIndex >= 0 {
			ix = uint16(ixIndex)
		}
		if ev := DecodeEvent(data, tx, ix, eventIndex); ev != nil {
			events = append(events, ev)
			eventIndex++
		}
	}

	if len(events) == 0 {
		events = scanLogs(tx)
	}
	return events
}

// isTopLevelInvoke 判断日志行是否为顶层指令入口（"Program <id> invoke [1]"），
// 用于推进主指令序号；CPI 的 invoke [2+] 不推进。
func isTopLevelInvoke(line string) bool {
	if !strings.HasPrefix(line, "Program ") || !strings.HasSuffix(line, " invoke [1]") {
		return false
	}
	// 排除 "Program log: ..." 等误匹配：invoke 行中间只应有程序地址一个 token
	mid := strings.TrimSuffix(strings.TrimPrefix(line, "Program "), " invoke [1]")
	return mid != "" && !strings.ContainsRune(mid, ' ')
}
