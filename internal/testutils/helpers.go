// Package testutils 提供測試用的共用工具和輔助函數
//
// 單元測試用 miniredis（免 Docker）；
// 整合測試用 testcontainers 的 PostgreSQL 容器，
// 以 NEWSFEED_INTEGRATION 環境變數選擇性啟用。
package testutils

import (
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewTestRedis 啟動行程內的 miniredis 並返回連上它的客戶端
//
// miniredis 隨測試結束自動關閉；關閉它即可模擬快取媒介故障。
func NewTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

// NewTestLogger 測試用日誌記錄器（只輸出警告以上，減少噪音）
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}
