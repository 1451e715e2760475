package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisTable 以 Redis sorted set 模擬的寬列表
//
// 系統設計考量：
//
//  1. 為什麼用 ZRANGEBYLEX？
//     所有成員 score 固定為 0 時，sorted set 退化為
//     按成員位元組字典序排序的有序集合，
//     ZRANGEBYLEX 區間查詢正是寬列儲存的前綴掃描。
//
//  2. 成員格式：
//     member = row key || value。row key 為固定長度，
//     因此排序只由 row key 決定，value 附掛在尾端。
//     約束：同一 row key 的 value 必須是確定性的
//     （動態項目的 value 為空，天然滿足），
//     否則同鍵不同值會堆出重複成員。
//
//  3. Redis 字串是 binary-safe 的，row key 直接作為成員位元組，
//     不需要任何轉義或編碼。
type RedisTable struct {
	rdb    *redis.Client
	name   string
	keyLen int
	logger *slog.Logger
}

// NewRedisTable 創建 Redis 寬列表
//
// keyLen 為固定的 row key 長度，用來從成員中切出 key 與 value。
func NewRedisTable(rdb *redis.Client, name string, keyLen int, logger *slog.Logger) *RedisTable {
	return &RedisTable{
		rdb:    rdb,
		name:   "wc:" + name,
		keyLen: keyLen,
		logger: logger,
	}
}

// Put 寫入一筆鍵值
func (t *RedisTable) Put(ctx context.Context, key, value []byte) error {
	if len(key) != t.keyLen {
		return fmt.Errorf("row key length %d, want %d", len(key), t.keyLen)
	}

	member := make([]byte, 0, len(key)+len(value))
	member = append(member, key...)
	member = append(member, value...)

	// 同一成員重複 ZADD 是 no-op，冪等建立由此而來
	if err := t.rdb.ZAdd(ctx, t.name, redis.Z{Score: 0, Member: string(member)}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", t.name, err)
	}
	return nil
}

// Scan 按字典序正向掃描 [start, stop) 範圍
func (t *RedisTable) Scan(ctx context.Context, start, stop []byte, limit int) ([]KV, error) {
	members, err := t.rdb.ZRangeByLex(ctx, t.name, &redis.ZRangeBy{
		Min:   "[" + string(start),
		Max:   "(" + string(stop),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebylex %s: %w", t.name, err)
	}

	kvs := make([]KV, 0, len(members))
	for _, m := range members {
		raw := []byte(m)
		if len(raw) < t.keyLen {
			t.logger.Warn("skipping malformed wide-column member", "table", t.name, "len", len(raw))
			continue
		}
		kvs = append(kvs, KV{Key: raw[:t.keyLen], Value: raw[t.keyLen:]})
	}
	return kvs, nil
}
