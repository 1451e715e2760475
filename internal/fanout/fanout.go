// Package fanout 實現發文的寫擴散（fan-out on write）
//
// 系統設計問題：
//
//	一則貼文如何低延遲地出現在每個追蹤者的個人動態流？
//
// 核心挑戰：
//  1. 讀取端不能每次都掃社交圖：發文時預先為每個追蹤者建立動態項目
//  2. 追蹤者可能很多：固定大小分批，批次之間彼此獨立、可平行
//  3. 重試安全：批次是重試的最小單位，建立必須冪等
//     （持久層以 (owner, post) 唯一約束兜底，重複建立是 no-op）
//  4. 作者例外：追蹤者的視圖允許最終一致，但作者自己的視圖
//     必須在發文返回前就緒——含作者的首批同步執行，其餘批次
//     交給分派器
//
// 失敗語義：
//
//	單一批次重試耗盡後記為失敗，不中止其他批次；
//	部分失敗反映在狀態回報裡，不往上拋致命錯誤。
//	批次沒有取消概念：單批寫入超時觸發該批重試，而非整個擴散。
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/store"
)

// FollowerProvider 社交圖協作方：解析作者的追蹤者集合
type FollowerProvider interface {
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// CachePusher 把新動態項目推進收件人的有界列表快取
type CachePusher interface {
	PushEntry(ctx context.Context, ownerID int64, e feed.Entry) error
}

// Dispatcher 把批次任務交給非同步執行方（如 NATS）
type Dispatcher interface {
	Dispatch(ctx context.Context, task BatchTask) error
}

// BatchTask 一個待執行的寫擴散批次
type BatchTask struct {
	PostID     uuid.UUID `json:"post_id"`
	CreatedAt  int64     `json:"created_at"`
	Recipients []int64   `json:"recipients"`
	Batch      int       `json:"batch"`
}

// Status 寫擴散的執行回報
type Status struct {
	Recipients    int
	Batches       int
	FailedBatches int
	Message       string
}

// Config 寫擴散配置
type Config struct {
	BatchSize  int
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// Writer 批次寫擴散器
type Writer struct {
	router     *store.Router
	followers  FollowerProvider
	pusher     CachePusher
	dispatcher Dispatcher // nil 時其餘批次以行程內 worker 池執行
	cfg        Config
	logger     *slog.Logger
}

// NewWriter 創建寫擴散器
func NewWriter(router *store.Router, followers FollowerProvider, pusher CachePusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Writer{
		router:    router,
		followers: followers,
		pusher:    pusher,
		cfg:       cfg,
		logger:    logger,
	}
}

// UseDispatcher 改用外部分派器執行非作者批次
func (w *Writer) UseDispatcher(d Dispatcher) {
	w.dispatcher = d
}

// Fanout 把一則新貼文擴散到作者與全部追蹤者的動態流
//
// 收件人 = 追蹤者 + 作者本人（作者要在自己的動態流看到自己的貼文）。
// 含作者的第一批在返回前同步完成；其餘批次允許落後。
func (w *Writer) Fanout(ctx context.Context, t feed.Tweet) (Status, error) {
	followerIDs, err := w.followers.FollowerIDs(ctx, t.UserID)
	if err != nil {
		return Status{}, fmt.Errorf("resolve followers: %w", err)
	}

	recipients := make([]int64, 0, len(followerIDs)+1)
	recipients = append(recipients, t.UserID)
	recipients = append(recipients, followerIDs...)

	tasks := w.partition(t, recipients)

	status := Status{
		Recipients: len(recipients),
		Batches:    len(tasks),
		Message: fmt.Sprintf("%d newsfeeds going to fanout, %d batches created.",
			len(recipients), len(tasks)),
	}

	// 首批含作者，同步執行：發文請求返回時作者視圖已可見
	if err := w.RunBatch(ctx, tasks[0]); err != nil {
		w.logger.Error("author fanout batch failed", "post_id", t.ID, "error", err)
		status.FailedBatches++
	}

	if len(tasks) == 1 {
		return status, nil
	}

	if w.dispatcher != nil {
		for _, task := range tasks[1:] {
			if err := w.dispatcher.Dispatch(ctx, task); err != nil {
				w.logger.Error("dispatch fanout batch failed",
					"post_id", t.ID, "batch", task.Batch, "error", err)
				status.FailedBatches++
			}
		}
		return status, nil
	}

	// 行程內執行：批次獨立平行，單批失敗不影響其他批次
	var failed atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(w.cfg.Workers)
	for _, task := range tasks[1:] {
		g.Go(func() error {
			if err := w.RunBatch(ctx, task); err != nil {
				w.logger.Error("fanout batch failed",
					"post_id", t.ID, "batch", task.Batch, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	status.FailedBatches += int(failed.Load())

	return status, nil
}

// RunBatch 執行單一批次，含重試
//
// 批次是重試的最小單位；建立冪等，重跑安全。
func (w *Writer) RunBatch(ctx context.Context, task BatchTask) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = w.runBatchOnce(ctx, task)
		if err == nil {
			return nil
		}
		if attempt >= w.cfg.MaxRetries {
			break
		}
		w.logger.Warn("retrying fanout batch",
			"batch", task.Batch, "attempt", attempt+1, "error", err)

		select {
		case <-time.After(w.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("fanout batch %d exhausted retries: %w", task.Batch, err)
}

// runBatchOnce 為批次內每個收件人建立動態項目，再推進其快取
func (w *Writer) runBatchOnce(ctx context.Context, task BatchTask) error {
	for _, ownerID := range task.Recipients {
		e := feed.Entry{
			OwnerID:   ownerID,
			PostID:    task.PostID,
			CreatedAt: task.CreatedAt,
		}
		if err := w.router.Create(ctx, e); err != nil {
			return fmt.Errorf("create entry for owner %d: %w", ownerID, err)
		}
	}

	// 持久項目全數落地後才推快取；快取失敗只記錄，
	// 正確性不依賴快取（下次讀取會惰性回填）
	for _, ownerID := range task.Recipients {
		e := feed.Entry{
			OwnerID:   ownerID,
			PostID:    task.PostID,
			CreatedAt: task.CreatedAt,
		}
		if err := w.pusher.PushEntry(ctx, ownerID, e); err != nil {
			w.logger.Warn("push entry to feed cache failed",
				"owner_id", ownerID, "post_id", task.PostID, "error", err)
		}
	}
	return nil
}

// partition 把收件人切成固定大小的批次
func (w *Writer) partition(t feed.Tweet, recipients []int64) []BatchTask {
	var tasks []BatchTask
	for start := 0; start < len(recipients); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(recipients))
		tasks = append(tasks, BatchTask{
			PostID:     t.ID,
			CreatedAt:  t.CreatedAt,
			Recipients: recipients[start:end],
			Batch:      len(tasks),
		})
	}
	return tasks
}
