package handler

import (
	"vaultcredits/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		awards := api.Group("/awards")
		{
			awards.POST("/claim", h.ClaimAward)
		}

		credits := api.Group("/credits")
		{
			credits.GET("/balance", h.GetBalance)
			credits.POST("/adjust", h.AdjustBalance)
			credits.POST("/spend", h.SpendCredits)
			credits.POST("/transfer", h.TransferCredits)
			credits.GET("/transactions", h.ListTransactions)
		}

		social := api.Group("/social")
		{
			social.POST("/link", h.LinkSocial)
		}
	}

	// 账本一致性检查（不在请求链路上，供监控调用）
	r.GET("/health", h.HealthCheck)

	return r
}
