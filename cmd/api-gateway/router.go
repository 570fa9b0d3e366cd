package main

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/config"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	commonMiddleware "github.com/dumeirei/school-portal-backend/internal/common/middleware"
	"github.com/dumeirei/school-portal-backend/internal/common/response"
	adminHandler "github.com/dumeirei/school-portal-backend/internal/handler/admin"
	affiliateHandler "github.com/dumeirei/school-portal-backend/internal/handler/affiliate"
	contactHandler "github.com/dumeirei/school-portal-backend/internal/handler/contact"
	paymentHandler "github.com/dumeirei/school-portal-backend/internal/handler/payment"
	pricingHandler "github.com/dumeirei/school-portal-backend/internal/handler/pricing"
	referralHandler "github.com/dumeirei/school-portal-backend/internal/handler/referral"
	signupHandler "github.com/dumeirei/school-portal-backend/internal/handler/signup"
	"github.com/dumeirei/school-portal-backend/internal/middleware"
	"github.com/dumeirei/school-portal-backend/internal/models"

	_ "github.com/dumeirei/school-portal-backend/docs"
)

// uploadOverhead multipart 表单除文件外的余量
const uploadOverhead = 1 << 20

// newEngine 创建 gin 引擎
// 客户端 IP 用于访问去重和限流，只信任配置中的代理
func newEngine(cfg *config.Config) (*gin.Engine, error) {
	r := gin.New()
	var proxies []string
	if len(cfg.Server.TrustedProxies) > 0 {
		proxies = cfg.Server.TrustedProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return r, nil
}

// setupRouter 设置路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
	c *components,
) {
	// 初始化处理器
	pricingH := pricingHandler.NewHandler(c.pricing)
	referralH := referralHandler.NewHandler(c.capture)
	signupH := signupHandler.NewHandler(c.signups, c.renewals, c.payments)
	paymentH := paymentHandler.NewHandler(c.payments)
	contactH := contactHandler.NewHandler(c.contacts)
	affiliateH := affiliateHandler.NewHandler(c.accounts, c.withdrawals)

	adminAuthH := adminHandler.NewAuthHandler(c.adminAuth)
	adminDashboardH := adminHandler.NewDashboardHandler(c.dashboard)
	adminSignupH := adminHandler.NewSignupHandler(c.signups, c.payments, c.attribution)
	adminAffiliateH := adminHandler.NewAffiliateHandler(c.affiliates)
	adminWithdrawalH := adminHandler.NewWithdrawalHandler(c.withdrawals)
	adminRenewalH := adminHandler.NewRenewalHandler(c.renewals)
	adminPaymentH := adminHandler.NewPaymentHandler(c.payments)
	adminPricingH := adminHandler.NewPricingHandler(c.pricing)
	adminContactH := adminHandler.NewContactHandler(c.contacts)
	adminSystemH := adminHandler.NewSystemHandler(c.affiliates, c.opLogs)

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(commonMiddleware.Tracing("/health", "/ping", "/ready", cfg.Metrics.Path))
	r.Use(middleware.CORS(&cfg.CORS))
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.Logging(logger, middleware.LoggingOptions{
		SkipPaths: []string{"/health", "/ping", "/ready", cfg.Metrics.Path},
		BodyPaths: []string{"/api/v1/admin"},
	}))
	if c.metrics != nil {
		r.Use(c.metrics.Middleware())
	}
	maxBody := int64(uploadOverhead)
	if cfg.OSS.MaxFileSize > 0 {
		maxBody += cfg.OSS.MaxFileSize
	} else {
		maxBody += 10 << 20
	}
	r.Use(middleware.RequestSizeLimiter(maxBody))

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	if c.metrics != nil {
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	// Swagger 文档
	if !cfg.IsRelease() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// 限流，Redis 不可用时放行
	var trackLimiter, loginLimiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		trackLimiter = middleware.IPRateLimit(redisClient, "track", cfg.RateLimit.TrackPerMin, time.Minute)
		loginLimiter = middleware.IPRateLimit(redisClient, "login", cfg.RateLimit.LoginPerMin, time.Minute)
	}

	v1 := r.Group("/api/v1")
	{
		// 公开接口
		pricingH.RegisterRoutes(v1)
		referralH.RegisterRoutes(v1, trackLimiter)
		signupH.RegisterRoutes(v1)
		paymentH.RegisterRoutes(v1)
		contactH.RegisterRoutes(v1)
		affiliateH.RegisterPublicRoutes(withLimiter(v1, loginLimiter))

		// 推广员接口
		affiliate := v1.Group("/affiliate")
		affiliate.Use(middleware.AffiliateAuth(c.jwtManager))
		affiliateH.RegisterRoutes(affiliate)

		// 管理后台
		admin := v1.Group("/admin")
		adminAuth := admin.Group("")
		adminAuth.Use(middleware.AdminAuth(c.jwtManager))
		adminAuth.Use(commonMiddleware.NewOperationLogger(c.opLogRepo).Log())
		{
			adminAuthH.Register(withLimiter(admin, loginLimiter), adminAuth)
			adminDashboardH.RegisterRoutes(adminAuth)
			adminSignupH.RegisterRoutes(adminAuth)
			adminRenewalH.RegisterRoutes(adminAuth)
			adminAffiliateH.RegisterRoutes(adminAuth)
			adminWithdrawalH.RegisterRoutes(adminAuth)
			adminPaymentH.RegisterRoutes(adminAuth)
			adminPricingH.RegisterRoutes(adminAuth)
			adminContactH.RegisterRoutes(adminAuth)

			system := adminAuth.Group("")
			system.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleFinanceAdmin))
			adminSystemH.RegisterRoutes(system)
		}
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Endpoint not found")
	})
}

func withLimiter(g *gin.RouterGroup, limiter gin.HandlerFunc) *gin.RouterGroup {
	if limiter == nil {
		return g
	}
	return g.Group("", limiter)
}
