package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSDispatcher 把寫擴散批次發佈到 NATS JetStream
//
// 系統設計考量：
//
//  1. 為什麼 JetStream 而非 Core NATS？
//     批次不能丟：磁盤持久化 + 手動 ACK + 未確認自動重投，
//     正好就是「批次層級重試」的語義；消費失敗 NAK 即重試。
//
//  2. 為什麼 WorkQueue retention？
//     每個批次恰好被一個 worker 消費一次（成功 ACK 後刪除），
//     Queue Group 讓 worker 水平擴展、自動負載均衡。
//
//  3. 重複投遞怎麼辦？
//     At-least-once 必然偶有重投；動態項目建立是冪等的，
//     重跑整個批次安全。
type NATSDispatcher struct {
	js      nats.JetStreamContext
	subject string
	logger  *slog.Logger
}

// NewNATSDispatcher 創建 JetStream 批次分派器，必要時建立 stream
func NewNATSDispatcher(conn *nats.Conn, stream, subject string, logger *slog.Logger) (*NATSDispatcher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	// 冪等建立：stream 已存在時沿用
	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subject},
			Storage:   nats.FileStorage,
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
	}

	return &NATSDispatcher{js: js, subject: subject, logger: logger}, nil
}

// Dispatch 發佈一個批次任務
//
// 同步等待 PubAck：確保批次已持久化才算分派成功
func (d *NATSDispatcher) Dispatch(ctx context.Context, task BatchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal batch task: %w", err)
	}

	if _, err := d.js.Publish(d.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish batch task: %w", err)
	}
	return nil
}

// Consume 以 Queue Group 消費批次任務並交給 runner 執行
//
// 執行失敗 NAK，JetStream 自動重投——重投就是批次的重試機制
func Consume(conn *nats.Conn, subject, queue string, runner func(ctx context.Context, task BatchTask) error, logger *slog.Logger) (*nats.Subscription, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	sub, err := js.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var task BatchTask
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			logger.Error("malformed batch task, dropping", "error", err)
			_ = msg.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := runner(ctx, task); err != nil {
			logger.Error("fanout batch failed, will be redelivered",
				"batch", task.Batch, "post_id", task.PostID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck(), nats.AckWait(60*time.Second))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
