package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/config"
	"github.com/jengzang/shuttle-backend-go/internal/handler"
	"github.com/jengzang/shuttle-backend-go/internal/metrics"
	"github.com/jengzang/shuttle-backend-go/internal/middleware"
	"github.com/jengzang/shuttle-backend-go/internal/service"
)

// Deps 路由依赖
type Deps struct {
	Config   *config.Config
	Insights *service.InsightsService
	Metrics  *metrics.Collector // 可为空
	Logger   *zap.Logger
	Now      func() time.Time // 限流时钟，可为空
}

// SetupRouter 设置路由
func SetupRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Metrics != nil {
		r.Use(middleware.Logger(logger, deps.Metrics))
	} else {
		r.Use(middleware.Logger(logger, nil))
	}

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "Shuttle Insights API is running",
			"aiEnabled": deps.Config.AIEnabled(),
		})
	})

	// 监控指标
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	h := handler.NewInsightsHandler(deps.Insights)
	chatLimiter := middleware.NewRateLimiter(deps.Config.ChatRateLimit, time.Minute, deps.Now)

	// API 路由组（需要管理员令牌）
	api := r.Group("/api/v1", middleware.Auth(deps.Config.JWTSecret, deps.Config.AuthRequired))
	{
		// 统计接口
		analytics := api.Group("/analytics")
		{
			analytics.GET("/stats", h.GetStats)
		}

		// 智能推荐接口
		insights := api.Group("/insights")
		{
			insights.GET("/predictions", h.GetPredictions)
			insights.POST("/predictions", h.GetPredictions)
			insights.GET("/optimizations", h.GetOptimizations)
			insights.POST("/optimizations", h.GetOptimizations)
			insights.GET("/overview", h.GetOverview)
			insights.POST("/chat", middleware.RateLimit(chatLimiter), h.Chat)
			insights.GET("/budget", h.GetBudget)
			insights.GET("/runs", h.ListRuns)
			insights.GET("/runs/:id", h.GetRun)
		}
	}

	return r
}
