package eventdecoder

import (
	"regexp"
	"strconv"
	"strings"

	"tycoon-indexer-sol/internal/consts"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/pkg/logger"
)

// 日志文本兜底解析。
// 结构化解码一条事件都没产出时（payload 被截断、编码异常等），扫描
// 人类可读日志行里的哨兵子串，用正则抽出一条低保真事件，保证起码的可观测性。
// 兜底事件只有 wallet 与增量金额两个字段，其余缺省，并打上 FromLogs 标记。

const earningsUpdatedSentinel = "Earnings updated"

// 形如 "Program log: Earnings updated for player <base58>: +1500 pending=4200"
var earningsUpdatedRe = regexp.MustCompile(
	`Earnings updated for player ([1-9A-HJ-NP-Za-km-z]{32,44}):\s*\+?(\d+)`)

func scanLogs(tx *core.RawTransaction) []*core.ParsedEvent {
	var (
		events     []*core.ParsedEvent
		eventIndex uint16
	)
	for _, line := range tx.Logs {
		if !strings.HasPrefix(line, consts.ProgramLogPrefix) {
			continue
		}
		if !strings.Contains(line, earningsUpdatedSentinel) {
			continue
		}
		m := earningsUpdatedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			logger.Debugf("[eventdecoder] 日志金额解析失败: tx=%s, raw=%q", tx.Signature, m[2])
			continue
		}

		ev := &core.ParsedEvent{
			Kind:       core.KindEarningsUpdated,
			Signature:  tx.Signature,
			Slot:       tx.Slot,
			BlockTime:  tx.BlockTime,
			IxIndex:    0,
			EventIndex: eventIndex,
			FromLogs:   true,
		}
		ev.Fields.Set("player", m[1])
		ev.Fields.Set("earnings_added", amount)
		events = append(events, ev)
		eventIndex++

		logger.Debugf("[eventdecoder] 日志兜底解析命中 EarningsUpdated: tx=%s, player=%s, added=%d",
			tx.Signature, m[1], amount)
	}
	return events
}
