// Package main 是应用程序入口
//
//	@title						School Portal API
//	@version					1.0
//	@description				学校 SaaS 门户后端：推广归因、佣金账本、提现与支付
//	@BasePath					/
//	@securityDefinitions.apikey	Bearer
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
	"github.com/dumeirei/school-portal-backend/internal/common/config"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/common/tracing"
	"github.com/dumeirei/school-portal-backend/internal/common/validate"
)

const version = "1.0.0"

func main() {
	// 加载配置
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log := logger.GetLogger()
	log.Info("Starting School Portal Backend",
		zap.String("version", version),
		zap.String("env", cfg.Server.Mode),
	)

	// 链路追踪
	shutdownTracing, err := tracing.Setup(context.Background(), &cfg.Tracing, version, cfg.Server.Mode)
	if err != nil {
		log.Fatal("Failed to init tracing", zap.Error(err))
	}

	// 初始化数据库连接
	db, err := database.Init(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis 只承担缓存、限流和归因锁，连接失败时降级运行
	var redisClient *redis.Client
	if client, err := cache.Init(&cfg.Redis); err != nil {
		log.Warn("Redis unavailable, running without cache and rate limiting", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close()
		log.Info("Redis connected successfully")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Init(cfg.Metrics.Namespace)
	}

	// gin 绑定使用自定义校验规则
	validate.SetupGin()

	comps, err := newComponents(cfg, log, db, redisClient, m)
	if err != nil {
		log.Fatal("Failed to init components", zap.Error(err))
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := comps.ensureSeedData(seedCtx); err != nil {
		log.Warn("Failed to seed default plans", zap.Error(err))
	}
	seedCancel()

	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "release", "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		log.Fatal("Failed to create engine", zap.Error(err))
	}
	setupRouter(engine, cfg, log, db, redisClient, comps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 后台任务
	sched := comps.newScheduler()
	sched.Start()

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	sched.Stop()
	comps.Close()

	if err := shutdownTracing(ctx); err != nil {
		log.Warn("Tracer shutdown failed", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		log.Warn("Close database failed", zap.Error(err))
	}

	log.Info("Server exited")
}
