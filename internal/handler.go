package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/friendship"
	"github.com/koopa0/newsfeed/internal/newsfeed"
	"github.com/koopa0/newsfeed/internal/tweet"
)

// Handler HTTP 請求處理器
//
// 薄層：認證、限流等由外部協作方處理，這裡只做參數解析與服務分派
type Handler struct {
	tweets      *tweet.Service
	feeds       *newsfeed.Service
	friendships *friendship.Store
	logger      *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(tweets *tweet.Service, feeds *newsfeed.Service, friendships *friendship.Store, logger *slog.Logger) *Handler {
	return &Handler{
		tweets:      tweets,
		feeds:       feeds,
		friendships: friendships,
		logger:      logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈：恢復 -> 日誌 -> 業務處理
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// API 路由
	mux.HandleFunc("POST /api/v1/tweets", wrap(h.createTweet))
	mux.HandleFunc("GET /api/v1/tweets", wrap(h.listTweets))
	mux.HandleFunc("POST /api/v1/tweets/{id}/like", wrap(h.likeTweet))
	mux.HandleFunc("POST /api/v1/tweets/{id}/unlike", wrap(h.unlikeTweet))
	mux.HandleFunc("GET /api/v1/tweets/{id}/likes", wrap(h.likesCount))
	mux.HandleFunc("GET /api/v1/newsfeeds", wrap(h.listNewsfeeds))
	mux.HandleFunc("POST /api/v1/friendships/{id}/follow", wrap(h.follow))
	mux.HandleFunc("POST /api/v1/friendships/{id}/unfollow", wrap(h.unfollow))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))

	return mux
}

type createTweetRequest struct {
	UserID  int64  `json:"user_id"`
	Content string `json:"content"`
}

type userRequest struct {
	UserID int64 `json:"user_id"`
}

// createTweet 建立貼文並觸發寫擴散
func (h *Handler) createTweet(w http.ResponseWriter, r *http.Request) {
	var req createTweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		h.respondError(w, "user_id required", http.StatusBadRequest)
		return
	}

	t, err := h.tweets.Create(r.Context(), req.UserID, req.Content)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	status, err := h.feeds.FanoutTweet(r.Context(), t)
	if err != nil {
		// 貼文已建立，擴散失敗只記錄：追蹤者下次讀取會惰性回填
		h.logger.Error("fanout failed", "tweet_id", t.ID, "error", err)
	}

	h.respondJSON(w, http.StatusCreated, map[string]any{
		"tweet":  t,
		"fanout": status.Message,
	})
}

// listTweets 讀取某用戶的快取貼文列表
func (h *Handler) listTweets(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		h.respondError(w, "user_id required", http.StatusBadRequest)
		return
	}

	tweets, err := h.tweets.CachedListByUser(r.Context(), userID)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"tweets": tweets})
}

// listNewsfeeds 讀取某用戶動態流的一頁
func (h *Handler) listNewsfeeds(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		h.respondError(w, "user_id required", http.StatusBadRequest)
		return
	}

	pageSize := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		pageSize, _ = strconv.Atoi(raw)
	}

	page, err := h.feeds.FeedPage(r.Context(), userID, r.URL.Query().Get("cursor"), pageSize)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, page)
}

// likeTweet 按讚
func (h *Handler) likeTweet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tweetID(w, r)
	if !ok {
		return
	}

	count, err := h.tweets.Like(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"likes_count": count})
}

// unlikeTweet 取消按讚
func (h *Handler) unlikeTweet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tweetID(w, r)
	if !ok {
		return
	}

	count, err := h.tweets.Unlike(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"likes_count": count})
}

// likesCount 讀取按讚數
func (h *Handler) likesCount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tweetID(w, r)
	if !ok {
		return
	}

	count, err := h.tweets.LikesCount(r.Context(), id)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"likes_count": count})
}

// follow 追蹤路徑參數指定的用戶
func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	toUserID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.respondError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		h.respondError(w, "user_id required", http.StatusBadRequest)
		return
	}

	if err := h.friendships.Follow(r.Context(), req.UserID, toUserID); err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"success": true})
}

// unfollow 解除追蹤
func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	toUserID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.respondError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		h.respondError(w, "user_id required", http.StatusBadRequest)
		return
	}

	deleted, err := h.friendships.Unfollow(r.Context(), req.UserID, toUserID)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// tweetID 解析路徑中的貼文 ID
func (h *Handler) tweetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.respondError(w, "invalid tweet id", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

// respondJSON 輸出 JSON 響應
func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}

// respondError 輸出錯誤響應
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	h.respondJSON(w, status, map[string]any{"success": false, "error": message})
}

// respondAppError 按錯誤碼映射 HTTP 狀態
func (h *Handler) respondAppError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.IsNotFound(err):
		h.respondError(w, err.Error(), http.StatusNotFound)
	case apperrors.IsAlreadyExists(err):
		h.respondError(w, err.Error(), http.StatusBadRequest)
	case apperrors.IsInvalidInput(err):
		h.respondError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("internal error", "error", err)
		h.respondError(w, "internal error", http.StatusInternalServerError)
	}
}

// loggerMiddleware 請求日誌
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		h.logger.Debug("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				h.respondError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}
