package testutils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/newsfeed/internal/migrations"
)

// IntegrationEnv 封裝整合測試環境（真實 PostgreSQL 容器）
type IntegrationEnv struct {
	Pool        *pgxpool.Pool
	PostgresDSN string
	container   tc.Container
}

// SetupIntegrationEnv 設置整合測試環境
//
// 這個函數會：
//  1. 啟動 PostgreSQL 容器
//  2. 執行資料庫遷移
//  3. 註冊清理函數
//
// 需要 Docker，以 NEWSFEED_INTEGRATION 環境變數選擇性啟用；
// 未設定時跳過測試。
func SetupIntegrationEnv(t testing.TB) *IntegrationEnv {
	t.Helper()

	if os.Getenv("NEWSFEED_INTEGRATION") == "" {
		t.Skip("integration tests disabled; set NEWSFEED_INTEGRATION=1 to enable")
	}

	ctx := context.Background()
	env := &IntegrationEnv{}

	// 啟動 PostgreSQL 容器
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	env.container = pgContainer

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	env.PostgresDSN = dsn

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse postgres config: %v", err)
	}
	config.MaxConns = 10
	config.MinConns = 2

	env.Pool, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	if err := env.Pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}

	// 執行資料庫遷移
	migrator, err := migrations.New(dsn, NewTestLogger())
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	_ = migrator.Close()

	t.Cleanup(func() {
		env.Cleanup()
	})
	return env
}

// Cleanup 清理測試環境
func (env *IntegrationEnv) Cleanup() {
	ctx := context.Background()

	if env.Pool != nil {
		env.Pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
}

// TruncateTables 清空資料表（用於測試之間的清理）
func (env *IntegrationEnv) TruncateTables(t testing.TB) {
	t.Helper()

	ctx := context.Background()
	for _, table := range []string{"tweets", "friendships", "newsfeeds"} {
		if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
