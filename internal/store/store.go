// Package store 實現動態項目的持久層：雙後端 + 路由
//
// 系統設計問題：
//
//	如何讓動態項目同時支援兩種持久後端，且讀寫方完全無感？
//
// 核心挑戰：
//  1. 兩種後端（關聯式索引表 vs 寬列前綴掃描表）必須產出
//     相同排序（created_at 由新到舊）與相同分頁契約
//  2. 後端選擇由具名開關按 owner 灰度，同一 owner 永遠走同一邊
//  3. 建立必須冪等：同一 (owner, post) 重複建立不產生第二筆可見項目
//
// 設計方案：
//
//	✅ Backend 介面 + 兩個實作，Router 按開關分派（組合而非繼承）
//	✅ 關聯式：UNIQUE (owner_id, post_id) + ON CONFLICT DO NOTHING
//	✅ 寬列：row key 含 post_id，同鍵覆寫天然冪等
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koopa0/newsfeed/internal/feed"
)

// Cursor 持久層的分頁位置
//
// Position 是整體排序中的偏移（快取切片用），
// CreatedAt 是最後一筆的時間戳（持久層範圍述詞用）。
// 兩個後端與快取路徑共用同一個游標，路徑切換不產生縫隙或重複。
type Cursor struct {
	Position  int   `json:"position"`
	CreatedAt int64 `json:"created_at"`
}

// Page 一頁查詢結果
type Page struct {
	Entries    []feed.Entry
	NextCursor *Cursor
	HasMore    bool
}

// Backend 持久後端的統一查詢契約
//
// 兩個實作必須產出相同的排序與分頁語義，
// 讓分頁器與寫擴散完全後端無關。
type Backend interface {
	// QueryPage 讀取某 owner 的一頁動態項目，created_at 由新到舊。
	// cursor 為 nil 表示從最新開始。
	QueryPage(ctx context.Context, ownerID int64, cursor *Cursor, limit int) (Page, error)

	// Create 建立一筆動態項目。對同一 (owner, post) 重複建立
	// 是 no-op 成功，不返回錯誤。
	Create(ctx context.Context, e feed.Entry) error
}

// DBTX 關聯式後端依賴的最小資料庫介面
//
// *pgxpool.Pool 與 pgx.Tx 都滿足此介面，測試時可注入 mock
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// nextCursor 由當前游標與本頁結果推出下一頁游標
func nextCursor(cursor *Cursor, entries []feed.Entry) *Cursor {
	if len(entries) == 0 {
		return nil
	}
	pos := 0
	if cursor != nil {
		pos = cursor.Position
	}
	return &Cursor{
		Position:  pos + len(entries),
		CreatedAt: entries[len(entries)-1].CreatedAt,
	}
}
