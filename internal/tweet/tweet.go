// Package tweet 實現貼文的建立、個人貼文列表快取與按讚計數
package tweet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/cache"
	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/store"
)

// maxContentLen 貼文內容長度上限
const maxContentLen = 255

// entityType 計數器鍵使用的實體類型名稱
const entityType = "Tweet"

// Service 貼文服務
//
// 個人貼文列表與動態流共用同一套有界列表快取；
// likes_count / comments_count 的真值在 tweets 表上，
// 計數器快取只是它的回填視圖。
type Service struct {
	db       store.DBTX
	lists    *cache.ListCache[feed.Tweet]
	counters *cache.CounterCache
	logger   *slog.Logger
}

// NewService 創建貼文服務
func NewService(db store.DBTX, lists *cache.ListCache[feed.Tweet], counters *cache.CounterCache, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		lists:    lists,
		counters: counters,
		logger:   logger,
	}
}

// Create 建立一則貼文並推進作者的貼文列表快取
func (s *Service) Create(ctx context.Context, userID int64, content string) (feed.Tweet, error) {
	if content == "" || len(content) > maxContentLen {
		return feed.Tweet{}, apperrors.ErrInvalidContent
	}

	t := feed.Tweet{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UnixNano(),
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO tweets (id, user_id, content, created_at, likes_count, comments_count)
		VALUES ($1, $2, $3, $4, 0, 0)`,
		t.ID, t.UserID, t.Content, t.CreatedAt,
	)
	if err != nil {
		return feed.Tweet{}, fmt.Errorf("insert tweet: %w", err)
	}

	// 寫入路徑直接推快取（push on write），取代隱式的事件訂閱
	if err := s.lists.Push(ctx, feed.TweetsKey(userID), feed.TweetJSONCodec{}, t, s.listLoader(userID)); err != nil {
		s.logger.Warn("push tweet to list cache failed", "tweet_id", t.ID, "error", err)
	}

	return t, nil
}

// Get 讀取單則貼文
func (s *Service) Get(ctx context.Context, id uuid.UUID) (feed.Tweet, error) {
	var t feed.Tweet
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, content, created_at, likes_count, comments_count
		FROM tweets WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.UserID, &t.Content, &t.CreatedAt, &t.LikesCount, &t.CommentsCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feed.Tweet{}, apperrors.ErrTweetNotFound
		}
		return feed.Tweet{}, fmt.Errorf("get tweet: %w", err)
	}
	return t, nil
}

// CachedListByUser 讀取某用戶的快取貼文列表
func (s *Service) CachedListByUser(ctx context.Context, userID int64) ([]feed.Tweet, error) {
	return s.lists.Load(ctx, feed.TweetsKey(userID), feed.TweetJSONCodec{}, s.listLoader(userID))
}

// Like 按讚：先對持久值 +1，再套用計數器快取
//
// 順序是回填語義的前提——快取 miss 時回填的快照必須
// 已經包含這次 +1。
func (s *Service) Like(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tweets SET likes_count = likes_count + 1 WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("increment likes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperrors.ErrTweetNotFound
	}

	ref := feed.EntityRef{Type: entityType, ID: id.String()}
	return s.counters.Increment(ctx, ref, "likes_count", s.countBackfill(id, "likes_count"))
}

// Unlike 取消按讚：先對持久值 -1（地板為零），再套用計數器快取
func (s *Service) Unlike(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE tweets SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("decrement likes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperrors.ErrTweetNotFound
	}

	ref := feed.EntityRef{Type: entityType, ID: id.String()}
	return s.counters.Decrement(ctx, ref, "likes_count", s.countBackfill(id, "likes_count"))
}

// LikesCount 讀取按讚數（快取優先，miss 回填）
func (s *Service) LikesCount(ctx context.Context, id uuid.UUID) (int64, error) {
	ref := feed.EntityRef{Type: entityType, ID: id.String()}
	return s.counters.Get(ctx, ref, "likes_count", s.countBackfill(id, "likes_count"))
}

// listLoader 貼文列表快取未命中時的持久層回填
func (s *Service) listLoader(userID int64) cache.Loader[feed.Tweet] {
	return func(ctx context.Context, limit int64) ([]feed.Tweet, error) {
		rows, err := s.db.Query(ctx, `
			SELECT id, user_id, content, created_at, likes_count, comments_count
			FROM tweets
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2`,
			userID, limit,
		)
		if err != nil {
			return nil, fmt.Errorf("list tweets: %w", err)
		}
		defer rows.Close()

		var tweets []feed.Tweet
		for rows.Next() {
			var t feed.Tweet
			if err := rows.Scan(&t.ID, &t.UserID, &t.Content, &t.CreatedAt, &t.LikesCount, &t.CommentsCount); err != nil {
				return nil, fmt.Errorf("scan tweet: %w", err)
			}
			tweets = append(tweets, t)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate tweets: %w", err)
		}
		return tweets, nil
	}
}

// countBackfill 從 tweets 表讀取反正規化計數的當前真值
//
// 貼文已刪除時返回 NOT_FOUND，計數器不快取「不存在」
func (s *Service) countBackfill(id uuid.UUID, attr string) cache.BackfillFunc {
	return func(ctx context.Context) (int64, error) {
		var query string
		switch attr {
		case "likes_count":
			query = `SELECT likes_count FROM tweets WHERE id = $1`
		case "comments_count":
			query = `SELECT comments_count FROM tweets WHERE id = $1`
		default:
			return 0, fmt.Errorf("unknown counter attribute %q", attr)
		}

		var v int64
		if err := s.db.QueryRow(ctx, query, id).Scan(&v); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, apperrors.ErrCounterSourceNotFound
			}
			return 0, fmt.Errorf("backfill %s: %w", attr, err)
		}
		return v, nil
	}
}
