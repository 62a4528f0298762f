package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/pkg/logger"

	"github.com/blocto/solana-go-sdk/rpc"
)

// maxSupportedTxVersion: 不带该参数的 getBlock 会在含版本化交易的区块上直接报错
var maxSupportedTxVersion uint8 = 0

// PollClient 封装回退轮询与启动回扫所需的 RPC 调用：
// 读链头 slot、列出区间内有块的 slot、拉取单个区块内与游戏程序相关的交易。
type PollClient struct {
	client    *rpc.RpcClient
	programID string
	timeout   time.Duration
}

func NewPollClient(endpoint, programID string, timeoutSec int) *PollClient {
	if timeoutSec <= 0 {
		timeoutSec = 6
	}
	client := rpc.NewRpcClient(endpoint)
	return &PollClient{
		client:    &client,
		programID: programID,
		timeout:   time.Duration(timeoutSec) * time.Second,
	}
}

// HeadSlot 返回链头 slot
func (c *PollClient) HeadSlot(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetSlot(callCtx)
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return resp.Result, nil
}

// SlotsInRange 返回闭区间 [from, to] 内实际出块的 slot 列表（跳过空 slot）
func (c *PollClient) SlotsInRange(ctx context.Context, from, to uint64) ([]uint64, error) {
	if from > to {
		return nil, fmt.Errorf("invalid slot range: from=%d > to=%d", from, to)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetBlocks(callCtx, from, to)
	if err != nil {
		return nil, fmt.Errorf("getBlocks [%d, %d]: %w", from, to, err)
	}
	return resp.Result, nil
}

// BlockTransactions 拉取一个区块并转换为统一的 RawTransaction 列表。
// 只保留执行成功且日志中出现游戏程序的交易。
func (c *PollClient) BlockTransactions(ctx context.Context, slot uint64) ([]*core.RawTransaction, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.GetBlockWithConfig(callCtx, slot, rpc.GetBlockConfig{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxSupportedTxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("getBlock %d: %w", slot, err)
	}

	block := resp.Result
	var blockTime int64
	if block.BlockTime != nil {
		blockTime = *block.BlockTime
	}

	txs := make([]*core.RawTransaction, 0, 4)
	for _, tx := range block.Transactions {
		if tx.Meta == nil || tx.Meta.Err != nil {
			continue
		}
		if !mentionsProgram(tx.Meta.LogMessages, c.programID) {
			continue
		}
		sig, ok := txSignature(tx.Transaction)
		if !ok {
			logger.Warnf("[source] 区块交易缺少签名，跳过: slot=%d", slot)
			continue
		}
		txs = append(txs, &core.RawTransaction{
			Signature: sig,
			Slot:      slot,
			BlockTime: blockTime,
			Logs:      tx.Meta.LogMessages,
		})
	}
	return txs, nil
}

// txSignature 从 json 编码的交易体中取出首个签名（即交易签名）
func txSignature(tx any) (string, bool) {
	m, ok := tx.(map[string]any)
	if !ok {
		return "", false
	}
	sigs, ok := m["signatures"].([]any)
	if !ok || len(sigs) == 0 {
		return "", false
	}
	sig, ok := sigs[0].(string)
	return sig, ok && sig != ""
}

// mentionsProgram 判断交易日志是否出现指定程序的 invoke 行
func mentionsProgram(logs []string, programID string) bool {
	prefix := "Program " + programID + " invoke"
	for _, line := range logs {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
