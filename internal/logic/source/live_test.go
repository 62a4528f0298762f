package source

import (
	"testing"

	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/types"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grpcTx(sig []byte, logs []string) *pb.SubscribeUpdateTransactionInfo {
	return &pb.SubscribeUpdateTransactionInfo{
		Transaction: &pb.Transaction{Signatures: [][]byte{sig}},
		Meta:        &pb.TransactionStatusMeta{LogMessages: logs},
	}
}

// 只放行相关程序的合法交易，签名 base58 编码后上交
func TestLiveStream_EmitBlockFiltersAndEncodes(t *testing.T) {
	const programID = "TycoonGame1111111111111111111111111111111111"
	m := &LiveStream{programID: programID}

	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	logs := []string{"Program " + programID + " invoke [1]"}

	vote := grpcTx(make([]byte, 64), logs)
	vote.IsVote = true

	failed := grpcTx(make([]byte, 64), logs)
	failed.Meta.Err = &pb.TransactionError{}

	block := &pb.SubscribeUpdateBlock{
		Slot:      7777,
		BlockTime: &pb.UnixTimestamp{Timestamp: 1700006000},
		Transactions: []*pb.SubscribeUpdateTransactionInfo{
			grpcTx(sig, logs),
			vote,
			failed,
			grpcTx(make([]byte, 64), []string{"Program Other111 invoke [1]"}), // 无关程序
			grpcTx(make([]byte, 12), logs),                                    // 签名长度非法
		},
	}

	var got []*core.RawTransaction
	m.emitBlock(block, func(tx *core.RawTransaction) { got = append(got, tx) })

	require.Len(t, got, 1)
	want, err := types.SignatureFromBytes(sig)
	require.NoError(t, err)
	assert.Equal(t, want.String(), got[0].Signature)
	assert.Equal(t, uint64(7777), got[0].Slot)
	assert.Equal(t, int64(1700006000), got[0].BlockTime)
	assert.Equal(t, logs, got[0].Logs)
}
