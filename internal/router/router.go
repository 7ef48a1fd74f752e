package router

import (
	"github.com/referral-next/internal/config"
	adminhandlers "github.com/referral-next/internal/http/handlers/admin"
	publichandlers "github.com/referral-next/internal/http/handlers/public"
	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 推荐归因与结算
		referrals := apiV1.Group("/referrals")
		{
			referrals.POST("/attribution", publicHandler.RecordReferralAttribution)
			referrals.POST("/settlement", publicHandler.NotifyReferralSettlement)
			referrals.POST("/:id/order", publicHandler.AttachReferralOrder)
		}

		// 用户侧查询
		users := apiV1.Group("/users")
		{
			users.GET("/:user_id/referrals/summary", publicHandler.GetUserReferralSummary)
			users.GET("/:user_id/referrals", publicHandler.ListUserReferrals)
		}

		// 运营侧接口
		admin := apiV1.Group("/admin")
		{
			admin.GET("/referrals", adminHandler.ListReferrals)
			admin.GET("/referrals/stats", adminHandler.GetReferralStats)
			admin.POST("/referrals/:id/cancel", adminHandler.CancelReferral)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
