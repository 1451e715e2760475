// Package pagination 實現游標分頁：快取優先、持久層兜底
//
// 系統設計問題：
//
//	一頁動態流可能部分在快取、部分只在持久層，
//	如何讓兩條路徑對呼叫方完全不可區分？
//
// 關鍵性質：
//
//	快取永遠持有持久層排序的「連續前綴」，
//	兩條路徑按「位置」切分整個有序序列，而不是按值。
//	因此序列中途換路徑不會產生縫隙或重複——這是構造上保證的，
//	不需要邊界去重。
//
// 游標令牌：
//
//	base64(JSON{position, created_at})，兩條路徑共用同一編碼：
//	position 驅動快取切片，created_at 驅動持久層範圍述詞。
package pagination

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/store"
)

// FeedSource 有界列表快取的讀取面
//
// LoadFeed 命中時返回完整快取列表，未命中時自動回填前 L 筆；
// Limit 即上限 L。
type FeedSource interface {
	LoadFeed(ctx context.Context, ownerID int64) ([]feed.Entry, error)
	Limit() int64
}

// Result 一頁分頁結果
//
// 無論由快取或持久層供應，項目形狀、游標編碼與 has_more
// 語義完全一致。
type Result struct {
	Items     []feed.Entry `json:"items"`
	NextToken string       `json:"next_token,omitempty"`
	HasMore   bool         `json:"has_more"`
}

// Paginator 游標分頁器
type Paginator struct {
	source FeedSource
	router *store.Router
	logger *slog.Logger
}

// New 創建分頁器
func New(source FeedSource, router *store.Router, logger *slog.Logger) *Paginator {
	return &Paginator{source: source, router: router, logger: logger}
}

// Page 讀取某 owner 的一頁動態流
//
// 請求窗口完全落在快取界內時由快取供應；
// 越過快取上限 L 或快取未命中時回退持久層游標查詢。
func (p *Paginator) Page(ctx context.Context, ownerID int64, token string, pageSize int) (Result, error) {
	cursor, err := DecodeToken(token)
	if err != nil {
		return Result{}, err
	}

	pos := 0
	if cursor != nil {
		pos = cursor.Position
	}

	cached, err := p.source.LoadFeed(ctx, ownerID)
	if err != nil {
		return Result{}, err
	}

	total := len(cached)
	limit := int(p.source.Limit())

	// 快取短於上限 L 代表整個資料集都在快取裡，可以在記憶體完成分頁
	if total < limit {
		if pos >= total {
			return Result{}, nil
		}
		end := min(pos+pageSize, total)
		items := cached[pos:end]
		return Result{
			Items:     items,
			NextToken: tokenAfter(pos, items),
			HasMore:   end < total,
		}, nil
	}

	// 快取已被裁剪到 L：只有整頁落在界內才能供應，
	// 越界查詢一律交給持久層（這是有界快取的契約）
	if pos+pageSize <= total {
		items := cached[pos : pos+pageSize]
		return Result{
			Items:     items,
			NextToken: tokenAfter(pos, items),
			HasMore:   true,
		}, nil
	}

	page, err := p.router.QueryPage(ctx, ownerID, cursor, pageSize)
	if err != nil {
		return Result{}, err
	}

	res := Result{Items: page.Entries, HasMore: page.HasMore}
	if page.NextCursor != nil {
		res.NextToken = EncodeToken(*page.NextCursor)
	}
	return res, nil
}

// EncodeToken 把游標編碼為不透明令牌
func EncodeToken(c store.Cursor) string {
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeToken 解碼游標令牌，空字串代表第一頁
func DecodeToken(token string) (*store.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperrors.ErrInvalidCursor
	}
	var c store.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperrors.ErrInvalidCursor
	}
	return &c, nil
}

// tokenAfter 由本頁切片推出下一頁令牌
func tokenAfter(pos int, items []feed.Entry) string {
	if len(items) == 0 {
		return ""
	}
	return EncodeToken(store.Cursor{
		Position:  pos + len(items),
		CreatedAt: items[len(items)-1].CreatedAt,
	})
}
