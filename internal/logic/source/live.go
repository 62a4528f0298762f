package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"tycoon-indexer-sol/internal/config"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/types"
	"tycoon-indexer-sol/pkg/logger"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// LiveStream 维护到 Geyser 推送服务的长连接订阅（实时模式）。
// 连接在构造时建立一次，Run 每次调用开启一条新的订阅流并阻塞收取，
// 流断开即返回错误，重连与失败计数由 Source 统一掌控。
type LiveStream struct {
	conn      *grpc.ClientConn
	client    pb.GeyserClient
	cfg       config.GrpcConfig
	programID string
}

func NewLiveStream(cfg config.GrpcConfig, programID string) (*LiveStream, error) {
	configTls := &tls.Config{
		InsecureSkipVerify: true,
	}

	dialCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ConnectTimeoutSec)*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		cfg.Endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(configTls)),
		grpc.WithInitialWindowSize(int32(cfg.InitialWindowSize)),
		grpc.WithInitialConnWindowSize(int32(cfg.InitialConnWindowSize)),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(cfg.MaxCallSendMsgSize),
			grpc.MaxCallRecvMsgSize(cfg.MaxCallRecvMsgSize),
		),
		grpc.WithBlock(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                time.Duration(cfg.KeepalivePingIntervalSec) * time.Second,
			Timeout:             time.Duration(cfg.KeepalivePingTimeoutSec) * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial geyser %s: %w", cfg.Endpoint, err)
	}

	return &LiveStream{
		conn:      conn,
		client:    pb.NewGeyserClient(conn),
		cfg:       cfg,
		programID: programID,
	}, nil
}

func (m *LiveStream) Close() {
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

// buildSubscribeRequest 订阅包含游戏程序交易的区块（confirmed 级别）
func (m *LiveStream) buildSubscribeRequest() *pb.SubscribeRequest {
	blocks := make(map[string]*pb.SubscribeRequestFilterBlocks)
	blocks["blocks"] = &pb.SubscribeRequestFilterBlocks{
		AccountInclude:      []string{m.programID},
		IncludeTransactions: boolPtr(true),
		IncludeAccounts:     boolPtr(false),
		IncludeEntries:      boolPtr(false),
	}
	commitment := pb.CommitmentLevel_CONFIRMED
	return &pb.SubscribeRequest{
		Blocks:     blocks,
		Commitment: &commitment,
	}
}

// Run 开启一条订阅流并阻塞收取，把每笔相关交易转成 RawTransaction 交给 emit。
// 返回 nil 仅当 ctx 取消；其余情况返回断流原因。
func (m *LiveStream) Run(ctx context.Context, emit func(*core.RawTransaction)) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	metaCtx := metadata.NewOutgoingContext(
		streamCtx,
		metadata.New(map[string]string{"x-token": m.cfg.XToken}),
	)
	stream, err := m.client.Subscribe(metaCtx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	req := m.buildSubscribeRequest()
	sendTimeout := time.Duration(m.cfg.SendTimeoutSec) * time.Second
	if err := sendWithTimeout(streamCtx, stream.Send, req, sendTimeout); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}
	logger.Infof("[source] Geyser 订阅建立: endpoint=%s, program=%s", m.cfg.Endpoint, m.programID)

	go m.pingLoop(streamCtx, stream)

	silence := time.Duration(m.cfg.BlockSilenceSec) * time.Second
	lastBlock := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		update, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("stream closed by server: %w", err)
			}
			return fmt.Errorf("stream recv: %w", err)
		}

		switch u := update.GetUpdateOneof().(type) {
		case *pb.SubscribeUpdate_Block:
			m.emitBlock(u.Block, emit)
			lastBlock = time.Now()
		}

		if silence > 0 && time.Since(lastBlock) > silence {
			return fmt.Errorf("no block received for %v", silence)
		}
	}
}

// emitBlock 把一个推送区块中与游戏程序相关的合法交易逐笔转换并上交
func (m *LiveStream) emitBlock(block *pb.SubscribeUpdateBlock, emit func(*core.RawTransaction)) {
	var blockTime int64
	if block.BlockTime != nil {
		blockTime = block.BlockTime.Timestamp
	}

	for _, tx := range block.Transactions {
		if !isValidGrpcTx(tx) {
			continue
		}
		if !mentionsProgram(tx.Meta.LogMessages, m.programID) {
			continue
		}
		sig, err := types.SignatureFromBytes(tx.Transaction.Signatures[0])
		if err != nil {
			continue
		}
		emit(&core.RawTransaction{
			Signature: sig.String(),
			Slot:      block.Slot,
			BlockTime: blockTime,
			Logs:      tx.Meta.LogMessages,
		})
	}
}

func isValidGrpcTx(tx *pb.SubscribeUpdateTransactionInfo) bool {
	if tx == nil || // - nil transaction info
		tx.Transaction == nil || // - missing Transaction field
		len(tx.Transaction.Signatures) == 0 || // - missing transaction signature
		len(tx.Transaction.Signatures[0]) != 64 || // - invalid transaction signature length
		tx.IsVote || // - vote transaction skipped
		tx.Meta == nil || // - missing transaction meta data
		tx.Meta.Err != nil { // - transaction execution failed
		return false
	}
	return true
}

// pingLoop 定期在订阅流上发应用层 ping，失败只记日志（断流由 Recv 判定）
func (m *LiveStream) pingLoop(ctx context.Context, stream pb.Geyser_SubscribeClient) {
	interval := time.Duration(m.cfg.StreamPingIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sendTimeout := time.Duration(m.cfg.SendTimeoutSec) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingReq := &pb.SubscribeRequest{
				Ping: &pb.SubscribeRequestPing{Id: 1},
			}
			if err := sendWithTimeout(ctx, stream.Send, pingReq, sendTimeout); err != nil {
				logger.Warnf("[source] stream ping 失败: %v", err)
			}
		}
	}
}

// sendWithTimeout 带超时的流式 Send（Send 本身不接受 ctx）
func sendWithTimeout[T any](ctx context.Context, sendFunc func(T) error, req T, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sendFunc(req)
	}()

	select {
	case <-timeoutCtx.Done():
		return timeoutCtx.Err()
	case err := <-done:
		return err
	}
}

func boolPtr(b bool) *bool {
	return &b
}
