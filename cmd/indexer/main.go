package main

import (
	"context"
	"database/sql"
	"flag"
	"runtime/debug"
	"time"

	"tycoon-indexer-sol/internal/config"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/logic/dispatcher"
	"tycoon-indexer-sol/internal/logic/indexer"
	"tycoon-indexer-sol/internal/logic/source"
	"tycoon-indexer-sol/internal/svc"
	"tycoon-indexer-sol/pkg/logger"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"
)

var configFile = flag.String("f", "etc/indexer.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.IndexerConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		panic(err)
	}
	defer logger.Sync()
	// go-zero 内部组件的统计日志太吵，统一关掉
	logx.DisableStat()

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		panic(err)
	}
	defer serviceContext.Close()

	stats := core.NewStats()
	disp := dispatcher.New(
		serviceContext.TxRunner,
		serviceContext.EventStore,
		serviceContext.Checkpoint,
		serviceContext.Notifier,
		stats,
		dispatcher.Option{
			MaxAttempts: c.DispatchConf.MaxAttempts,
			BackoffBase: msDuration(c.DispatchConf.BackoffBaseMs),
			BackoffCap:  msDuration(c.DispatchConf.BackoffCapMs),
		},
	)
	registerHandlers(disp)

	// 实时推送端点未配置时直接走回退轮询
	var live *source.LiveStream
	if c.GrpcConf.Endpoint != "" {
		live, err = source.NewLiveStream(c.GrpcConf, c.ProgramID)
		if err != nil {
			panic(err)
		}
		defer live.Close()
	}
	poll := source.NewPollClient(c.RpcConf.Endpoint, c.ProgramID, c.RpcConf.RequestTimeoutSec)

	var src *source.Source
	if live != nil {
		src = source.New(live, poll, serviceContext.Checkpoint, disp.ProcessTransaction,
			source.OptionFromConfig(c.GrpcConf, c.RpcConf))
	} else {
		src = source.New(nil, poll, serviceContext.Checkpoint, disp.ProcessTransaction,
			source.OptionFromConfig(c.GrpcConf, c.RpcConf))
	}

	ix := indexer.New(src, stats)

	sg := zerosvc.NewServiceGroup()
	sg.Add(ix)
	defer sg.Stop()

	logger.Infof("Starting tycoon indexer: program=%s", c.ProgramID)
	// Start 阻塞运行；SIGINT/SIGTERM 由 ServiceGroup 注册的退出监听触发 Stop
	sg.Start()

	logger.Infof("All services stopped")
}

// registerHandlers 为全部事件种类挂载默认 handler。
// 派生状态的具体业务方在此替换或追加自己的实现。
func registerHandlers(d *dispatcher.Dispatcher) {
	for kind := core.EventKind(1); kind < core.KindCount; kind++ {
		d.Register(kind, logEventHandler)
	}
}

func logEventHandler(_ context.Context, _ *sql.Tx, ev *core.ParsedEvent) error {
	logger.Debugf("[handler] %s: signature=%s, slot=%d, ix=%d, event=%d",
		ev.Kind, ev.Signature, ev.Slot, ev.IxIndex, ev.EventIndex)
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
