// 寫擴散 worker：從 JetStream 消費批次任務並寫入持久層與快取
//
// 與 API 伺服器分開部署，發文高峰時可獨立水平擴展。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/newsfeed/internal"
	"github.com/koopa0/newsfeed/internal/fanout"
	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/friendship"
	"github.com/koopa0/newsfeed/internal/gatekeeper"
	"github.com/koopa0/newsfeed/internal/newsfeed"
	"github.com/koopa0/newsfeed/internal/store"
	"github.com/koopa0/newsfeed/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置檔案路徑")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.Log.Level, config.Log.Format)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	pgPool, err := pgxpool.New(ctx, config.PostgresDSN())
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	// worker 與伺服器共用同一套路由與快取邏輯，
	// 批次寫入落在哪個後端由同一個灰度決策決定
	relational := store.NewPostgresFeedStore(pgPool, log)
	wideColumn := store.NewWideColumnFeedStore(
		store.NewRedisTable(redisClient, "newsfeeds", feed.RowKeyLen, log), log)
	gk := gatekeeper.New(config.Gatekeeper)
	router := store.NewRouter(relational, wideColumn, gk, log)

	feedCache := newsfeed.NewFeedCache(redisClient, config.Cache.ListLimit, config.Cache.TTL, router, log)
	friendships := friendship.NewStore(pgPool, log)

	writer := fanout.NewWriter(router, friendships, feedCache, fanout.Config{
		BatchSize:  config.Fanout.BatchSize,
		Workers:    config.Fanout.Workers,
		MaxRetries: config.Fanout.MaxRetries,
		RetryDelay: config.Fanout.RetryDelay,
	}, log)

	natsConn, err := nats.Connect(config.NATS.URL)
	if err != nil {
		log.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()

	sub, err := fanout.Consume(natsConn, config.NATS.Subject, config.NATS.Queue, writer.RunBatch, log)
	if err != nil {
		log.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	log.Info("fanout worker started",
		"subject", config.NATS.Subject,
		"queue", config.NATS.Queue)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig)

	// 停止接收新批次；已取出的批次由 AckWait 重投兜底
	if err := sub.Drain(); err != nil {
		log.Error("failed to drain subscription", "error", err)
	}

	log.Info("fanout worker stopped")
}
