package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koopa0/newsfeed/internal/feed"
)

// KV 寬列儲存的一筆鍵值
type KV struct {
	Key   []byte
	Value []byte
}

// Table 寬列儲存的掃描/寫入介面
//
// 儲存引擎內部不在本系統範圍內，只透過此介面存取。
// Scan 按 key 字典序正向回傳 [start, stop) 範圍內最多 limit 筆。
type Table interface {
	Put(ctx context.Context, key, value []byte) error
	Scan(ctx context.Context, start, stop []byte, limit int) ([]KV, error)
}

// WideColumnFeedStore 寬列後端
//
// row key 佈局 {owner_id}{^created_at}{post_id}：
// 時間戳反向編碼，讓以 owner 為前綴的正向掃描天然得到由新到舊。
// row key 已含全部欄位，value 留空；同鍵覆寫即冪等建立。
type WideColumnFeedStore struct {
	table  Table
	logger *slog.Logger
}

// NewWideColumnFeedStore 創建寬列後端
func NewWideColumnFeedStore(table Table, logger *slog.Logger) *WideColumnFeedStore {
	return &WideColumnFeedStore{table: table, logger: logger}
}

// Create 建立一筆動態項目
func (s *WideColumnFeedStore) Create(ctx context.Context, e feed.Entry) error {
	if err := s.table.Put(ctx, feed.EncodeRowKey(e), nil); err != nil {
		return fmt.Errorf("put feed entry: %w", err)
	}
	return nil
}

// QueryPage 以 owner 前綴掃描讀取一頁動態項目
func (s *WideColumnFeedStore) QueryPage(ctx context.Context, ownerID int64, cursor *Cursor, limit int) (Page, error) {
	start, stop := feed.OwnerScanRange(ownerID)
	if cursor != nil {
		// 反向時間戳 +1 等價於 created_at < cursor 述詞
		start = feed.ScanStartAfter(ownerID, cursor.CreatedAt)
	}

	kvs, err := s.table.Scan(ctx, start, stop, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("scan feed page: %w", err)
	}

	entries := make([]feed.Entry, 0, len(kvs))
	for _, kv := range kvs {
		e, err := feed.DecodeRowKey(kv.Key)
		if err != nil {
			return Page{}, fmt.Errorf("decode row key: %w", err)
		}
		entries = append(entries, e)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	return Page{
		Entries:    entries,
		NextCursor: nextCursor(cursor, entries),
		HasMore:    hasMore,
	}, nil
}
