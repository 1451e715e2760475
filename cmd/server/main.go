package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/newsfeed/internal"
	"github.com/koopa0/newsfeed/internal/cache"
	"github.com/koopa0/newsfeed/internal/fanout"
	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/friendship"
	"github.com/koopa0/newsfeed/internal/gatekeeper"
	"github.com/koopa0/newsfeed/internal/migrations"
	"github.com/koopa0/newsfeed/internal/newsfeed"
	"github.com/koopa0/newsfeed/internal/store"
	"github.com/koopa0/newsfeed/internal/tweet"
	"github.com/koopa0/newsfeed/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置檔案路徑")
	flag.Parse()

	// 載入配置
	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 設定日誌
	log := logger.New(config.Log.Level, config.Log.Format)

	// 連接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:         config.Redis.Addr,
		Password:     config.Redis.Password,
		DB:           config.Redis.DB,
		PoolSize:     config.Redis.PoolSize,
		MinIdleConns: config.Redis.MinIdleConns,
		MaxRetries:   config.Redis.MaxRetries,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// 連接 PostgreSQL
	pgConfig, err := pgxpool.ParseConfig(config.PostgresDSN())
	if err != nil {
		log.Error("failed to parse postgres config", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = config.Postgres.MaxConns
	pgConfig.MinConns = config.Postgres.MinConns

	pgPool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	// 執行資料庫遷移
	migrator, err := migrations.New(config.PostgresURL(), log)
	if err != nil {
		log.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	_ = migrator.Close()

	// 持久層：關聯式與寬列兩個後端，由灰度開關路由
	relational := store.NewPostgresFeedStore(pgPool, log)
	wideColumn := store.NewWideColumnFeedStore(
		store.NewRedisTable(redisClient, "newsfeeds", feed.RowKeyLen, log), log)
	gk := gatekeeper.New(config.Gatekeeper)
	router := store.NewRouter(relational, wideColumn, gk, log)

	// 快取層
	feedCache := newsfeed.NewFeedCache(redisClient, config.Cache.ListLimit, config.Cache.TTL, router, log)
	tweetLists := cache.NewListCache[feed.Tweet](redisClient, config.Cache.ListLimit, config.Cache.TTL, log)
	counters := cache.NewCounterCache(redisClient, config.Cache.TTL, log)

	// 服務層
	friendships := friendship.NewStore(pgPool, log)
	tweets := tweet.NewService(pgPool, tweetLists, counters, log)

	writer := fanout.NewWriter(router, friendships, feedCache, fanout.Config{
		BatchSize:  config.Fanout.BatchSize,
		Workers:    config.Fanout.Workers,
		MaxRetries: config.Fanout.MaxRetries,
		RetryDelay: config.Fanout.RetryDelay,
	}, log)

	// NATS 啟用時，非作者批次交給 JetStream worker 處理
	var natsConn *nats.Conn
	if config.NATS.Enabled {
		natsConn, err = nats.Connect(config.NATS.URL)
		if err != nil {
			log.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()

		dispatcher, err := fanout.NewNATSDispatcher(natsConn, config.NATS.Stream, config.NATS.Subject, log)
		if err != nil {
			log.Error("failed to create fanout dispatcher", "error", err)
			os.Exit(1)
		}
		writer.UseDispatcher(dispatcher)
		log.Info("fanout dispatching to jetstream", "stream", config.NATS.Stream)
	}

	feeds := newsfeed.NewService(feedCache, router, writer, log)
	handler := internal.NewHandler(tweets, feeds, friendships, log)

	// 設定 HTTP 伺服器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", config.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		// 給予 30 秒時間完成當前請求
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown server", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("failed to force close server", "error", closeErr)
			}
		}
	}

	log.Info("server stopped")
}
