// Package friendship 實現社交圖的追蹤關係存取
//
// 追蹤邊 (follower_id, followee_id, created_at) 是寫擴散的唯讀輸入；
// 本套件另提供 follow/unfollow 寫入路徑供 API 層使用。
package friendship

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/store"
)

// Store 追蹤關係的持久存取
type Store struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewStore 創建追蹤關係存取
func NewStore(db store.DBTX, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Follow 建立 fromUser 對 toUser 的追蹤
//
// 重複追蹤返回 ALREADY_EXISTS——前端連點造成的重複請求很常見，
// 呼叫方通常靜默處理而非當成錯誤
func (s *Store) Follow(ctx context.Context, fromUserID, toUserID int64) error {
	if fromUserID == toUserID {
		return apperrors.ErrSelfFollow
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO friendships (from_user_id, to_user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (from_user_id, to_user_id) DO NOTHING`,
		fromUserID, toUserID, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create friendship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAlreadyFollowing
	}
	return nil
}

// Unfollow 解除追蹤，返回是否真的刪除了一條邊
func (s *Store) Unfollow(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM friendships
		WHERE from_user_id = $1 AND to_user_id = $2`,
		fromUserID, toUserID,
	)
	if err != nil {
		return false, fmt.Errorf("delete friendship: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasFollowed 判斷是否已追蹤
func (s *Store) HasFollowed(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE from_user_id = $1 AND to_user_id = $2
		)`,
		fromUserID, toUserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

// FollowerIDs 列出追蹤 userID 的所有用戶
//
// 寫擴散的收件人來源。追蹤者數量極大的帳號（名人問題）
// 不在本系統的設計範圍內，一次撈全量是可接受的。
func (s *Store) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_user_id FROM friendships
		WHERE to_user_id = $1
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate followers: %w", err)
	}
	return ids, nil
}
