package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "aliasflare/backend/internal/auth/jwt"
	"aliasflare/backend/internal/config"
	"aliasflare/backend/internal/middleware"
	"aliasflare/backend/internal/monitoring"
	"aliasflare/backend/internal/service"
	"aliasflare/backend/internal/sync"
	"aliasflare/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	AliasService *service.AliasService
	Coordinator  *sync.Coordinator
	TokenManager *jwtpkg.Manager
	WebSocketHub *websocket.Hub
	Metrics      *monitoring.Metrics
	HealthLive   http.HandlerFunc // 存活探针，允许为 nil
	HealthReady  http.HandlerFunc // 就绪探针，允许为 nil
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	aliasHandler := NewAliasHandler(deps.AliasService)
	syncHandler := NewSyncHandler(deps.Coordinator)
	publicHandler := NewPublicHandler(deps.Coordinator, deps.Config.Cloudflare.Zones)
	authHandler := NewAuthHandler(deps.TokenManager)

	apiKeyAuth := middleware.NewAPIKeyAuth(deps.Config.Auth.APIKeyHash)

	// 健康检查与指标
	if deps.HealthLive != nil {
		router.GET("/live", gin.WrapF(deps.HealthLive))
	}
	if deps.HealthReady != nil {
		router.GET("/ready", gin.WrapF(deps.HealthReady))
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Public Routes（无需认证的公开API） ==========
		publicRoutes := v1.Group("/public")
		{
			publicRoutes.GET("/zones", publicHandler.GetZones)                        // 获取已配置的区域列表
			publicRoutes.GET("/forward-addresses", publicHandler.GetForwardAddresses) // 获取已知转发目标
		}

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		authRoutes.Use(apiKeyAuth.RequireAPIKey())
		{
			authRoutes.POST("/session", authHandler.CreateSession) // 用 API Key 换取 WebSocket 会话令牌
		}

		// ========== Alias Routes ==========
		aliasRoutes := v1.Group("/aliases")
		aliasRoutes.Use(apiKeyAuth.RequireAPIKey())
		{
			aliasRoutes.POST("", aliasHandler.CreateAlias)
			aliasRoutes.POST("/bulk", aliasHandler.BulkCreateAliases)
			aliasRoutes.GET("", aliasHandler.ListAliases)
			aliasRoutes.GET("/:id", aliasHandler.GetAlias)
			aliasRoutes.PATCH("/:id", aliasHandler.UpdateAlias)
			aliasRoutes.POST("/:id/toggle", aliasHandler.ToggleAlias)
			aliasRoutes.DELETE("/:id", aliasHandler.DeleteAlias)
		}

		// ========== Sync Routes ==========
		syncRoutes := v1.Group("/sync")
		syncRoutes.Use(apiKeyAuth.RequireAPIKey())
		{
			syncRoutes.POST("", syncHandler.TriggerSync)   // 手动触发同步
			syncRoutes.GET("/status", syncHandler.GetSyncStatus)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
