package store

import (
	"context"
	"log/slog"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/gatekeeper"
)

// SwitchNewsfeedToWideColumn 控制動態項目走寬列後端的開關名稱
const SwitchNewsfeedToWideColumn = "switch_newsfeed_to_wide_column"

// Router 按功能開關把讀寫分派到其中一個持久後端
//
// 開關以 owner 為 routing key 做百分比灰度：
// 同一 owner 在同一灰度配置下永遠落在同一個後端，
// 其快取線格式（編解碼器）也跟著同一個決策走。
//
// 開關表在建構時注入，不讀任何全域狀態。
type Router struct {
	relational Backend
	wideColumn Backend
	gk         *gatekeeper.Gatekeeper
	logger     *slog.Logger
}

// NewRouter 創建持久層路由
func NewRouter(relational, wideColumn Backend, gk *gatekeeper.Gatekeeper, logger *slog.Logger) *Router {
	return &Router{
		relational: relational,
		wideColumn: wideColumn,
		gk:         gk,
		logger:     logger,
	}
}

// UsesWideColumn 判斷某 owner 是否由寬列後端服務
//
// 分頁器與快取層以此選擇對應的編解碼器。
func (r *Router) UsesWideColumn(ownerID int64) bool {
	return r.gk.IsSwitchOnForID(SwitchNewsfeedToWideColumn, ownerID)
}

// CodecFor 回傳某 owner 快取線格式的編解碼器
func (r *Router) CodecFor(ownerID int64) cacheCodec {
	if r.UsesWideColumn(ownerID) {
		return feed.EntryRowKeyCodec{}
	}
	return feed.EntryJSONCodec{}
}

// QueryPage 讀取某 owner 的一頁動態項目
func (r *Router) QueryPage(ctx context.Context, ownerID int64, cursor *Cursor, limit int) (Page, error) {
	return r.backendFor(ownerID).QueryPage(ctx, ownerID, cursor, limit)
}

// Create 建立一筆動態項目
func (r *Router) Create(ctx context.Context, e feed.Entry) error {
	return r.backendFor(e.OwnerID).Create(ctx, e)
}

func (r *Router) backendFor(ownerID int64) Backend {
	if r.UsesWideColumn(ownerID) {
		return r.wideColumn
	}
	return r.relational
}

// cacheCodec 是 cache.Codec[feed.Entry] 的結構化別名
//
// 在此處重新聲明以避免 store → cache 的反向依賴
type cacheCodec interface {
	Encode(feed.Entry) ([]byte, error)
	Decode([]byte) (feed.Entry, error)
}
