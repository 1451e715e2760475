package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koopa0/newsfeed/internal/feed"
)

// PostgresFeedStore 關聯式後端
//
// newsfeeds 表以 (owner_id, created_at DESC) 聯合索引支撐範圍掃描，
// 單純的 owner_id 索引是不夠的；
// UNIQUE (owner_id, post_id) 則承擔寫擴散重試的冪等約束。
type PostgresFeedStore struct {
	db     DBTX
	logger *slog.Logger
}

// NewPostgresFeedStore 創建關聯式後端
func NewPostgresFeedStore(db DBTX, logger *slog.Logger) *PostgresFeedStore {
	return &PostgresFeedStore{db: db, logger: logger}
}

// Create 建立一筆動態項目
//
// 重複建立（同一 owner+post）由唯一約束攔下，
// ON CONFLICT DO NOTHING 把它吞成 no-op 成功，不重試
func (s *PostgresFeedStore) Create(ctx context.Context, e feed.Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO newsfeeds (owner_id, post_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, post_id) DO NOTHING`,
		e.OwnerID, e.PostID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create feed entry: %w", err)
	}
	return nil
}

// QueryPage 讀取某 owner 的一頁動態項目
//
// 多取一筆探測 has_more，游標述詞為 created_at < cursor.CreatedAt
func (s *PostgresFeedStore) QueryPage(ctx context.Context, ownerID int64, cursor *Cursor, limit int) (Page, error) {
	var (
		query = `
			SELECT owner_id, post_id, created_at
			FROM newsfeeds
			WHERE owner_id = $1
			ORDER BY created_at DESC
			LIMIT $2`
		args = []any{ownerID, limit + 1}
	)
	if cursor != nil {
		query = `
			SELECT owner_id, post_id, created_at
			FROM newsfeeds
			WHERE owner_id = $1 AND created_at < $2
			ORDER BY created_at DESC
			LIMIT $3`
		args = []any{ownerID, cursor.CreatedAt, limit + 1}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query feed page: %w", err)
	}
	defer rows.Close()

	entries := make([]feed.Entry, 0, limit+1)
	for rows.Next() {
		var e feed.Entry
		if err := rows.Scan(&e.OwnerID, &e.PostID, &e.CreatedAt); err != nil {
			return Page{}, fmt.Errorf("scan feed entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate feed page: %w", err)
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
