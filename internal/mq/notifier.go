package mq

import (
	"encoding/json"
	"time"

	"tycoon-indexer-sol/internal/consts"
	"tycoon-indexer-sol/internal/logic/core"
	"tycoon-indexer-sol/internal/utils"
	"tycoon-indexer-sol/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// eventMessage 是下游通知的消息体（JSON 编码后带 4 字节类型前缀）
type eventMessage struct {
	Kind       string      `json:"kind"`
	Signature  string      `json:"signature"`
	Slot       uint64      `json:"slot"`
	BlockTime  int64       `json:"block_time"`
	IxIndex    uint16      `json:"ix_index"`
	EventIndex uint16      `json:"event_index"`
	Fields     core.Fields `json:"fields"`
	FromLogs   bool        `json:"from_logs,omitempty"`
}

// Notifier 向 Kafka 发送事件通知。
// 发送是 fire-and-forget：失败只记日志，不重试、不回滚入库；
// 下游丢通知可通过回扫窗口重新触达（事件本身已持久化）。
type Notifier struct {
	producer *kafka.Producer
	topic    string
	timeout  time.Duration
}

func NewNotifier(producer *kafka.Producer, topic string, sendTimeoutMs int) *Notifier {
	if sendTimeoutMs <= 0 {
		sendTimeoutMs = 5000
	}
	return &Notifier{
		producer: producer,
		topic:    topic,
		timeout:  time.Duration(sendTimeoutMs) * time.Millisecond,
	}
}

// Notify 异步发送一条事件通知，立即返回
func (n *Notifier) Notify(ev *core.ParsedEvent) {
	body, err := json.Marshal(eventMessage{
		Kind:       ev.Kind.String(),
		Signature:  ev.Signature,
		Slot:       ev.Slot,
		BlockTime:  ev.BlockTime,
		IxIndex:    ev.IxIndex,
		EventIndex: ev.EventIndex,
		Fields:     ev.Fields,
		FromLogs:   ev.FromLogs,
	})
	if err != nil {
		logger.Errorf("[notifier] 消息编码失败: signature=%s, err=%v", ev.Signature, err)
		return
	}
	value := utils.EncodeMessage(consts.NotifyTypeEvent, body)

	// key 用签名，保证同一交易的事件落同一分区
	key := []byte(ev.Signature)
	go n.send(key, value, ev.Signature)
}

func (n *Notifier) send(key, value []byte, signature string) {
	deliveryChan := make(chan kafka.Event, 1)
	err := n.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &n.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   key,
		Value: value,
	}, deliveryChan)
	if err != nil {
		logger.Errorf("[notifier] produce 失败: signature=%s, err=%v", signature, err)
		return
	}

	select {
	case e, ok := <-deliveryChan:
		if !ok {
			logger.Errorf("[notifier] delivery channel 异常关闭: signature=%s", signature)
			return
		}
		msg, ok := e.(*kafka.Message)
		if !ok {
			logger.Errorf("[notifier] 非法回执类型: %T, signature=%s", e, signature)
			return
		}
		if msg.TopicPartition.Error != nil {
			logger.Errorf("[notifier] 投递失败: signature=%s, err=%v", signature, msg.TopicPartition.Error)
		}
	case <-time.After(n.timeout):
		go safeDrain(deliveryChan)
		logger.Errorf("[notifier] 投递超时 (>%v): signature=%s", n.timeout, signature)
	}
}

// safeDrain 确保 deliveryChan 被 drain，避免 Kafka 回调阻塞
func safeDrain(ch <-chan kafka.Event) {
	defer func() {
		_ = recover()
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
	}
}
