package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "yuzu/docs"
	"yuzu/internal/ai"
	"yuzu/internal/config"
	"yuzu/internal/handler"
	authHandler "yuzu/internal/handler/auth"
	"yuzu/internal/pkg/cache"
	"yuzu/internal/pkg/jwt"
	"yuzu/internal/pkg/mongodb"
	"yuzu/internal/repository"
	authRepo "yuzu/internal/repository/auth"
	"yuzu/internal/server/middleware"
	"yuzu/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// MongoDB 是对话和用户数据的唯一存储，连不上直接失败
	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// Redis (可选): 对话列表缓存 + 会话事件
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	// AI 客户端: 按配置了 API Key 的 Provider 初始化
	aiClient, err := ai.NewClient(ctx, &cfg.AI)
	if err != nil {
		mongoClient.Close(context.Background())
		return nil, err
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	srv.setupRoutes(aiClient)

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(aiClient *ai.Client) {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	db := s.mongo.Database()

	// 仓库
	userRepo := authRepo.NewUserRepo(db)
	refreshTokenRepo := authRepo.NewRefreshTokenRepo(db)
	convRepo := repository.NewConversationRepo(db)
	msgRepo := repository.NewMessageRepo(db)

	// 通知器（Redis 未配置时为 nil，service 层兼容）
	var notifier service.Notifier
	if s.redis != nil {
		notifier = service.NewSessionNotifier(s.redis)
	}

	// 服务
	authSvc := service.NewAuthService(userRepo, refreshTokenRepo, &s.cfg.Auth)
	chatSvc := service.NewChatService(aiClient, convRepo, msgRepo, notifier, s.cfg.AI.DefaultModel)
	convSvc := service.NewConversationService(convRepo, msgRepo, s.redis, notifier, s.cfg.AI.DefaultModel)
	adminSvc := service.NewAdminService(userRepo, refreshTokenRepo, convRepo, msgRepo)

	// 处理器
	healthHdl := handler.NewHealthHandler(s.mongo, s.redis)
	authHdl := authHandler.NewHandler(authSvc)
	chatHdl := handler.NewChatHandler(chatSvc)
	convHdl := handler.NewConversationHandler(convSvc)
	adminHdl := handler.NewAdminHandler(adminSvc)

	// 健康检查
	s.engine.GET("/health", healthHdl.Health)
	s.engine.GET("/ready", healthHdl.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	jwtUtil := jwt.NewJWT(s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenExpiry)

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		// 认证接口（公开）
		v1.POST("/auth/login", authHdl.Login)
		v1.POST("/auth/refresh", authHdl.Refresh)

		// 需要认证的接口
		authed := v1.Group("")
		authed.Use(middleware.Auth(jwtUtil))
		{
			authed.POST("/auth/logout", authHdl.Logout)
			authed.GET("/auth/me", authHdl.Me)

			authed.GET("/models", chatHdl.ListModels)

			authed.GET("/conversations", convHdl.List)
			authed.POST("/conversations", convHdl.Create)
			authed.DELETE("/conversations/:id", convHdl.Delete)

			authed.POST("/chat/:id", chatHdl.Stream)
			authed.POST("/chat/:id/complete", chatHdl.Complete)
			authed.POST("/chat/:id/save", chatHdl.Save)
			authed.GET("/chat/:id/messages", chatHdl.ListMessages)

			// 会话事件订阅（依赖 Redis）
			if s.redis != nil {
				eventsHdl := handler.NewEventsHandler(s.redis)
				authed.GET("/events", eventsHdl.Subscribe)
			}

			// 管理端接口
			admin := authed.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				admin.GET("/users", adminHdl.ListUsers)
				admin.POST("/users", adminHdl.CreateUser)
				admin.DELETE("/users/:id", adminHdl.DeleteUser)
				admin.GET("/conversations", adminHdl.ListConversations)
			}
		}
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		if err := s.mongo.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
