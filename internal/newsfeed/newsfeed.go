// Package newsfeed 組合快取、持久路由、寫擴散與分頁，
// 對外提供動態流的讀寫服務
package newsfeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/newsfeed/internal/cache"
	"github.com/koopa0/newsfeed/internal/fanout"
	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/pagination"
	"github.com/koopa0/newsfeed/internal/store"
)

// FeedCache 用戶動態流的有界列表快取
//
// 每個 owner 的編解碼器跟隨其持久層路由決策：
// 同一個 key 底下的快取位元組永遠屬於同一種線格式。
type FeedCache struct {
	lists  *cache.ListCache[feed.Entry]
	router *store.Router
	logger *slog.Logger
}

// NewFeedCache 創建動態流快取
func NewFeedCache(rdb *redis.Client, limit int64, ttl time.Duration, router *store.Router, logger *slog.Logger) *FeedCache {
	return &FeedCache{
		lists:  cache.NewListCache[feed.Entry](rdb, limit, ttl, logger),
		router: router,
		logger: logger,
	}
}

// Limit 快取上限 L
func (f *FeedCache) Limit() int64 {
	return f.lists.Limit()
}

// LoadFeed 讀取 owner 的完整快取列表，未命中時從持久層回填前 L 筆
func (f *FeedCache) LoadFeed(ctx context.Context, ownerID int64) ([]feed.Entry, error) {
	return f.lists.Load(ctx, feed.FeedKey(ownerID), f.router.CodecFor(ownerID), f.loader(ownerID))
}

// PushEntry 把新動態項目推進 owner 的快取列表
func (f *FeedCache) PushEntry(ctx context.Context, ownerID int64, e feed.Entry) error {
	return f.lists.Push(ctx, feed.FeedKey(ownerID), f.router.CodecFor(ownerID), e, f.loader(ownerID))
}

// Invalidate 明確讓 owner 的動態流快取失效
func (f *FeedCache) Invalidate(ctx context.Context, ownerID int64) {
	f.lists.Invalidate(ctx, feed.FeedKey(ownerID))
}

// loader 未命中時的持久層回填：讀取 owner 最新的 limit 筆
func (f *FeedCache) loader(ownerID int64) cache.Loader[feed.Entry] {
	return func(ctx context.Context, limit int64) ([]feed.Entry, error) {
		page, err := f.router.QueryPage(ctx, ownerID, nil, int(limit))
		if err != nil {
			return nil, err
		}
		return page.Entries, nil
	}
}

// defaultPageSize 未指定時的動態流頁大小
const defaultPageSize = 20

// maxPageSize 單頁上限
const maxPageSize = 100

// Service 動態流服務
type Service struct {
	cache     *FeedCache
	paginator *pagination.Paginator
	writer    *fanout.Writer
	logger    *slog.Logger
}

// NewService 創建動態流服務
func NewService(feedCache *FeedCache, router *store.Router, writer *fanout.Writer, logger *slog.Logger) *Service {
	return &Service{
		cache:     feedCache,
		paginator: pagination.New(feedCache, router, logger),
		writer:    writer,
		logger:    logger,
	}
}

// FanoutTweet 把新貼文擴散到作者與追蹤者的動態流
func (s *Service) FanoutTweet(ctx context.Context, t feed.Tweet) (fanout.Status, error) {
	status, err := s.writer.Fanout(ctx, t)
	if err != nil {
		return status, err
	}
	s.logger.Info("fanout completed",
		"post_id", t.ID,
		"recipients", status.Recipients,
		"batches", status.Batches,
		"failed_batches", status.FailedBatches)
	return status, nil
}

// FeedPage 讀取某用戶動態流的一頁
func (s *Service) FeedPage(ctx context.Context, ownerID int64, token string, pageSize int) (pagination.Result, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return s.paginator.Page(ctx, ownerID, token, pageSize)
}

// CachedFeed 讀取某用戶的完整快取動態流
func (s *Service) CachedFeed(ctx context.Context, ownerID int64) ([]feed.Entry, error) {
	return s.cache.LoadFeed(ctx, ownerID)
}
