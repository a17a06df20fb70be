package router

import (
	"time"

	"hirehub/internal/cloud"
	"hirehub/internal/database"
	"hirehub/internal/deployclient"
	"hirehub/internal/handlers"
	"hirehub/internal/middleware"
	"hirehub/internal/orchestrator"
	"hirehub/internal/services"
	"hirehub/pkg/config"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupRouter 设置路由
func SetupRouter() *gin.Engine {
	registerValidators()

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	// 注册路由
	registerRoutes(router)
	return router
}

// registerValidators 注册自定义参数校验器
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("subdomain", func(fl validator.FieldLevel) bool {
			return services.IsValidSubdomain(fl.Field().String())
		})
	}
}

// 注册所有路由
func registerRoutes(router *gin.Engine) {
	cfg := config.GetConfig()
	db := database.GetDB()
	logBuffer := database.GetDeployLogBuffer()

	// ========== 服务装配 ==========

	userService := services.NewUserService(db)
	registryService := services.NewVPSRegistryService(db)
	deploymentService := services.NewDeploymentService(db)

	var provider cloud.Provider
	if cfg.Provision.HCloudToken != "" {
		provider = cloud.NewHetznerProvider(cfg.Provision.HCloudToken)
	}

	var deployClient *deployclient.Client
	if cfg.Provision.UseDeploymentService {
		deployClient = deployclient.NewClient(cfg.Provision.DeploymentServiceURL, cfg.Provision.DeploymentServiceSecret)
	}

	orch := orchestrator.NewHostOrchestrator(
		orchestrator.SSHRunnerFactory(cfg.Provision.SSHUser, cfg.Provision.SSHKeyPath, cfg.Provision.SSHPrivateKey),
		logBuffer,
		cfg.Provision.BaseDomain,
	)

	provisionService := services.NewProvisionService(
		db, registryService, deploymentService,
		provider, orch, deployClient, cfg.Provision,
	)
	callbackService := services.NewCallbackService(db, deploymentService, cfg.Provision.BaseDomain)

	auth := middleware.NewAuthMiddleware(userService)
	serviceAuth := middleware.NewServiceAuthMiddleware(cfg.Provision.DeploymentServiceSecret, "deployment-service")

	// ========== API路由 ==========

	api := router.Group("/api/v1")
	{
		// 健康检查接口
		api.GET("/health", healthCheck)
		api.GET("/ping", ping)

		// JWT认证路由（无需认证）
		authHandler := handlers.NewAuthHandler(userService)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.RefreshToken)
		}

		// 租户实例开通（平台管理员专用）
		instanceHandler := handlers.NewInstanceHandler(provisionService, deploymentService, logBuffer)
		instances := api.Group("/instances")
		{
			instances.POST("", auth.RequireLogin(), auth.RequirePlatformAdmin(), instanceHandler.Provision)
			instances.GET("", auth.RequireLogin(), auth.RequirePlatformAdmin(), instanceHandler.List)
			instances.GET("/:deploymentId/status", auth.RequireLogin(), auth.RequirePlatformAdmin(), instanceHandler.GetStatus)
			instances.GET("/:deploymentId/logs", auth.RequireLogin(), auth.RequirePlatformAdmin(), instanceHandler.GetLogs)
		}

		// 兼容旧路径
		api.GET("/deployments/:deploymentId/logs", auth.RequireLogin(), auth.RequirePlatformAdmin(), instanceHandler.GetLogs)

		// 部署日志实时推送（token通过查询参数传递，处理器内校验）
		wsHandler := handlers.NewWebSocketHandler(deploymentService, userService, logBuffer)
		api.GET("/instances/:deploymentId/logs/stream", wsHandler.StreamDeployLogs)

		// VPS注册表（平台管理员专用）
		vpsHandler := handlers.NewVPSHandler(registryService)
		vps := api.Group("/vps", auth.RequireLogin(), auth.RequirePlatformAdmin())
		{
			vps.POST("", vpsHandler.Register)
			vps.GET("", vpsHandler.List)
			vps.GET("/available", vpsHandler.GetAvailable)
			vps.GET("/stats", vpsHandler.GetStats)
			vps.GET("/:id", vpsHandler.GetByID)
			vps.PUT("/:id/status", vpsHandler.UpdateStatus)
		}

		// 部署服务回调（服务令牌认证）
		callbackHandler := handlers.NewCallbackHandler(callbackService)
		api.POST("/deployments/callback", serviceAuth.RequireService(), callbackHandler.HandleDeploymentCallback)

		// 部署服务状态查询（平台管理员专用）
		deployServiceHandler := handlers.NewDeploymentServiceHandler(deployClient)
		deployService := api.Group("/deployment-service", auth.RequireLogin(), auth.RequirePlatformAdmin())
		{
			deployService.GET("/health", deployServiceHandler.Health)
			deployService.GET("/ports", deployServiceHandler.PortStats)
		}
	}
}

func healthCheck(c *gin.Context) {
	data := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "HIREHUB",
		"version":   "1.0.0",
	}
	response.Success(c, data)
}

func ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}
