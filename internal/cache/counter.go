package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/newsfeed/internal/feed"
)

// BackfillFunc 從持久層讀取計數器的當前真值
//
// 回傳 pkg/errors.ErrCounterSourceNotFound（或任何 NOT_FOUND 錯誤）
// 表示來源實體已被刪除，此時不可快取任何值。
type BackfillFunc func(ctx context.Context) (int64, error)

// CounterCache 原子計數器快取
//
// 鍵格式 {Type}.{attribute}:{id}，對應持久實體上的反正規化欄位
// （如 Tweet.likes_count）。
//
// 系統設計考量：
//
//  1. 回填語義（關鍵契約）：
//     呼叫 Increment/Decrement 之前，呼叫方必須已經對持久值
//     完成了自己的 +1/-1。因此 miss 時回填的快照「已經包含」
//     這次變更，直接返回回填值，絕不能再疊加一次。
//
//  2. 原子性邊界：
//     本組件保證單次 INCR/DECR 的原子性（Redis 單執行緒模型），
//     不保證呼叫次數的正確性——每次持久變更恰好呼叫一次
//     是呼叫方的責任。
//
//  3. 一致性界限：
//     快取值等於「最後一次經由本快取的變更」當下的持久值；
//     繞過本快取直接改資料庫的路徑不在保證範圍內。
//
//  4. 降級：
//     Redis 不可用時全部操作退化為 backfill 直讀持久層。
type CounterCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCounterCache 創建計數器快取
func NewCounterCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CounterCache {
	return &CounterCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Increment 計數器加一
//
// miss 時回填持久值並原樣返回（不再 +1，見上方回填語義）；
// hit 時原子加一並返回新值。
func (c *CounterCache) Increment(ctx context.Context, ref feed.EntityRef, attr string, backfill BackfillFunc) (int64, error) {
	return c.apply(ctx, ref, attr, backfill, func(key string) (int64, error) {
		return c.rdb.Incr(ctx, key).Result()
	})
}

// Decrement 計數器減一
//
// miss 時回填持久值並原樣返回（不再 -1）；hit 時原子減一。
func (c *CounterCache) Decrement(ctx context.Context, ref feed.EntityRef, attr string, backfill BackfillFunc) (int64, error) {
	return c.apply(ctx, ref, attr, backfill, func(key string) (int64, error) {
		return c.rdb.Decr(ctx, key).Result()
	})
}

// Get 讀取計數器當前值
//
// miss 時回填並快取；來源實體不存在時返回 NOT_FOUND 且不快取。
func (c *CounterCache) Get(ctx context.Context, ref feed.EntityRef, attr string, backfill BackfillFunc) (int64, error) {
	key := feed.CountKey(ref, attr)

	val, err := c.rdb.Get(ctx, key).Int64()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		// Redis 不可用，降級直讀
		c.logger.Warn("counter cache unreachable, falling back to store", "key", key, "error", err)
		return backfill(ctx)
	}

	v, err := backfill(ctx)
	if err != nil {
		// 不快取「不存在」
		return 0, err
	}

	if err := c.rdb.Set(ctx, key, v, c.ttl).Err(); err != nil {
		c.logger.Warn("counter cache backfill write failed", "key", key, "error", err)
	}
	return v, nil
}

// Invalidate 明確讓計數器失效（來源實體被刪除時由寫入路徑呼叫）
func (c *CounterCache) Invalidate(ctx context.Context, ref feed.EntityRef, attr string) {
	key := feed.CountKey(ref, attr)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("counter cache invalidate failed", "key", key, "error", err)
	}
}

// apply 共用的 miss 回填 / hit 原子變更路徑
func (c *CounterCache) apply(ctx context.Context, ref feed.EntityRef, attr string, backfill BackfillFunc, op func(key string) (int64, error)) (int64, error) {
	key := feed.CountKey(ref, attr)

	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("counter cache unreachable, falling back to store", "key", key, "error", err)
		return backfill(ctx)
	}

	if exists == 0 {
		v, err := backfill(ctx)
		if err != nil {
			return 0, err
		}

		// SET NX + EX：併發回填只有一方寫入成功
		ok, err := c.rdb.SetNX(ctx, key, v, c.ttl).Result()
		if err != nil {
			c.logger.Warn("counter cache backfill write failed", "key", key, "error", err)
			return v, nil
		}
		if ok {
			return v, nil
		}
		// 併發對手已完成回填，改走命中路徑疊加本次變更
	}

	newVal, err := op(key)
	if err != nil {
		c.logger.Warn("counter cache op failed, falling back to store", "key", key, "error", err)
		return backfill(ctx)
	}
	return newVal, nil
}
