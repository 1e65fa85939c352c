package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/api"
	"github.com/jengzang/shuttle-backend-go/internal/app"
	"github.com/jengzang/shuttle-backend-go/internal/config"
	"github.com/jengzang/shuttle-backend-go/internal/logging"
	"github.com/jengzang/shuttle-backend-go/internal/metrics"
	"github.com/jengzang/shuttle-backend-go/internal/publisher"
	"github.com/jengzang/shuttle-backend-go/internal/repository"
	"github.com/jengzang/shuttle-backend-go/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 初始化数据库
	db, err := app.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	collector := metrics.NewCollector(cfg.AIDailyLimit)

	pipeline, err := app.NewPipeline(ctx, cfg, logger, app.PipelineOptions{Observer: collector})
	if err != nil {
		logger.Error("AI client unavailable, serving fallback recommendations only", zap.Error(err))
		pipeline, _ = app.NewPipeline(ctx, cfg, logger, app.PipelineOptions{Offline: true, Observer: collector})
	}
	collector.TrackBudgetUsage(func() int { return pipeline.Budget().Snapshot().Used })

	opts := service.Options{
		Loader:  repository.NewAnalyticsRepository(db, cfg.DBDriver),
		Runs:    repository.NewRecommendationRepository(db, cfg.DBDriver),
		Timeout: cfg.AITimeout,
		Logger:  logger,
	}

	// 事件发布（可选）
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, logger, collector)
		if err != nil {
			logger.Warn("nats unavailable, run events disabled", zap.Error(err))
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	svc := service.NewInsightsService(pipeline, opts)

	// 初始化路由
	router := api.SetupRouter(api.Deps{
		Config:   cfg,
		Insights: svc,
		Metrics:  collector,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	// 启动服务器
	logger.Info("server starting", zap.String("addr", cfg.Port), zap.String("db_driver", cfg.DBDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	<-stopped
	logger.Info("server stopped")
}
