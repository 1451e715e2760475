// Package cache 實現動態流系統的讀取快取層
//
// 系統設計問題：
//
//	如何讓動態流讀取不必每次掃描持久層，又不讓快取無限膨脹？
//
// 核心挑戰：
//  1. 讀多寫多：每次讀 feed、每次發文都會觸碰快取
//  2. 記憶體上限：每個 key 只保留前 N 筆，越界查詢回退持久層
//  3. 正確性永遠不依賴快取：Redis 故障時全部退化為直接讀持久層
//  4. 「不存在」與「空列表」是兩種狀態：TTL 過期視為 miss 而非空
//
// 設計方案：
//
//	✅ Redis List：LPUSH + LTRIM 原子維持有界前綴
//	✅ 惰性回填：miss 時由呼叫方提供的 loader 讀持久層
//	✅ 增量推送：新項目 LPUSH 到既有列表，免整列重載
//	✅ 降級機制：任何 Redis 錯誤都退化為 loader 直讀
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Codec 快取線格式編解碼器
//
// 持久層紀錄與快取內緊湊表示之間的雙向轉換，
// 每種持久層後端各有一個變體，共用此介面。
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// Loader 快取未命中時向持久層讀取最多 limit 筆資料
type Loader[T any] func(ctx context.Context, limit int64) ([]T, error)

// emptySentinel 佔位元素，用來把「空列表」跟「key 不存在」區分開
//
// Redis 不允許空 list 存在（RPUSH 零個元素不會建 key），
// 因此空結果以單一 NUL 位元組佔位，解碼時跳過。
const emptySentinel = "\x00"

// ListCache 通用的有界列表快取
//
// 架構設計：
//
//	讀取 → 命中：LRANGE 解碼直接返回（不碰持久層）
//	     → 未命中：loader(L) 讀持久層 → RPUSH 序列化結果 + EXPIRE
//	寫入 → 命中：LPUSH 新項目 + LTRIM 裁到 L
//	     → 未命中：退化為整列回填（避免建出只有一筆的殘缺快取）
//
// 系統設計考量：
//
//  1. 為什麼 miss 時的 push 要整列回填？
//     如果直接建一個單元素列表，後續讀取會誤以為
//     該用戶只有一筆歷史，悄悄截斷舊資料。
//
//  2. 為什麼上限 L 是固定系統常數？
//     每個 key 的記憶體用量有上界；需要超過 L 筆的呼叫方
//     必須自行回退持久層查詢，這是分頁器依賴的契約。
//
//  3. 為什麼不重排序？
//     快取永遠保持持久層排序的連續前綴，
//     呼叫方必須按出現順序（最新在前）推送。
type ListCache[T any] struct {
	rdb    *redis.Client
	limit  int64
	ttl    time.Duration
	logger *slog.Logger
}

// NewListCache 創建有界列表快取
func NewListCache[T any](rdb *redis.Client, limit int64, ttl time.Duration, logger *slog.Logger) *ListCache[T] {
	return &ListCache[T]{
		rdb:    rdb,
		limit:  limit,
		ttl:    ttl,
		logger: logger,
	}
}

// Limit 回傳每個 key 保留的最大項目數
func (c *ListCache[T]) Limit() int64 {
	return c.limit
}

// Load 讀取 key 底下的完整快取列表
//
// 命中時完全不碰持久層；未命中時呼叫 loader 回填並設置過期時間。
// Redis 不可用時降級為 loader 直讀，永不因快取故障返回錯誤。
func (c *ListCache[T]) Load(ctx context.Context, key string, codec Codec[T], loader Loader[T]) ([]T, error) {
	raw, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		c.logger.Warn("list cache unreachable, falling back to loader", "key", key, "error", err)
		return loader(ctx, c.limit)
	}

	// 空結果代表 key 不存在（真正的空列表含佔位元素）
	if len(raw) == 0 {
		return c.reload(ctx, key, codec, loader)
	}

	items := make([]T, 0, len(raw))
	for _, data := range raw {
		if data == emptySentinel {
			continue
		}
		item, err := codec.Decode([]byte(data))
		if err != nil {
			// 反序列化失敗視為整鍵失效：刪除後重載，而不是讓請求失敗
			c.logger.Warn("corrupt cache entry, reloading key", "key", key, "error", err)
			c.rdb.Del(ctx, key)
			return c.reload(ctx, key, codec, loader)
		}
		items = append(items, item)
	}

	return items, nil
}

// Push 把新項目插入 key 對應列表的最前端，並裁剪到上限
//
// key 不存在時退化為 Load（整列回填）。
// Redis 不可用時此操作在快取層面為 no-op。
func (c *ListCache[T]) Push(ctx context.Context, key string, codec Codec[T], item T, loader Loader[T]) error {
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("list cache unreachable, push skipped", "key", key, "error", err)
		return nil
	}

	if exists == 0 {
		_, err := c.reload(ctx, key, codec, loader)
		return err
	}

	data, err := codec.Encode(item)
	if err != nil {
		return err
	}

	// LPUSH + LTRIM + EXPIRE 合併送出；超出上限的最舊項目被丟棄，
	// 它們之後只能從持久層讀到
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, c.limit-1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("list cache push failed", "key", key, "error", err)
	}
	return nil
}

// Invalidate 明確讓某個 key 失效
//
// 由寫入路徑（發文、刪除）直接呼叫，取代原本隱式的事件訂閱機制
func (c *ListCache[T]) Invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("list cache invalidate failed", "key", key, "error", err)
	}
}

// reload 從持久層讀取前 L 筆並寫入快取
func (c *ListCache[T]) reload(ctx context.Context, key string, codec Codec[T], loader Loader[T]) ([]T, error) {
	items, err := loader(ctx, c.limit)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(items)+1)
	for _, item := range items {
		data, err := codec.Encode(item)
		if err != nil {
			return nil, err
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		values = append(values, emptySentinel)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		// 回填失敗只影響下一次命中率，資料本身已拿到
		c.logger.Warn("list cache backfill failed", "key", key, "error", err)
	}

	return items, nil
}
