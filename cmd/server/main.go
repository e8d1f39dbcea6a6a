// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/internal/handler"
	"amazing-kissan-go/internal/middleware"
	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/database"
	"amazing-kissan-go/pkg/es"
	"amazing-kissan-go/pkg/kafka"
	"amazing-kissan-go/pkg/llm"
	"amazing-kissan-go/pkg/log"
	"amazing-kissan-go/pkg/mailer"
	"amazing-kissan-go/pkg/news"
	"amazing-kissan-go/pkg/storage"
	"amazing-kissan-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 3.1 自动建表
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.ChatRecord{},
		&model.Message{},
		&model.Comment{},
		&model.Listing{},
		&model.Order{},
	); err != nil {
		log.Errorf("数据库迁移失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	chatHistoryRepo := repository.NewChatHistoryRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB)
	messageRepo := repository.NewMessageRepository(database.DB)
	marketRepo := repository.NewMarketRepository(database.DB, database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	mail := mailer.New(cfg.Mail)
	newsClient := news.NewClient(cfg.News)
	userService := service.NewUserService(userRepository, jwtManager, mail)
	sessionService := service.NewSessionService(sessionRepo, chatHistoryRepo)
	chatService := service.NewChatService(chatHistoryRepo, llmClient)
	messageService := service.NewMessageService(messageRepo)
	marketService := service.NewMarketService(marketRepo, kafka.ProduceOrderEvent)

	// 6. 启动后台 Kafka 消费者，维护卖家的待处理订单提醒
	go kafka.StartConsumer(cfg.Kafka, marketService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	userHandler := handler.NewUserHandler(userService, sessionService)
	authHandler := handler.NewAuthHandler(userService)
	chatHandler := handler.NewChatHandler(chatService, sessionService)
	messageHandler := handler.NewMessageHandler(messageService, userService, jwtManager)
	marketHandler := handler.NewMarketHandler(marketService)
	pageHandler := handler.NewPageHandler(newsClient)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.POST("/forgot-password", userHandler.ForgotPassword)
			users.POST("/verify-reset-code", userHandler.VerifyResetCode)
			users.POST("/reset-password", userHandler.ResetPassword)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.PUT("/me", userHandler.UpdateProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// AI 助手路由组：登录用户与游客共用，游客凭 X-Session-Id 维持会话
		assistant := apiV1.Group("/assistant")
		assistant.Use(middleware.OptionalAuthMiddleware(jwtManager, userService))
		{
			assistant.POST("/chat", chatHandler.Submit)
			assistant.GET("/history", chatHandler.History)
			assistant.GET("/topics", chatHandler.ListTopics)
			assistant.POST("/topics/select", chatHandler.SelectTopic)
			assistant.GET("/topics/search", chatHandler.SearchTopics)
			assistant.POST("/new-chat", chatHandler.NewChat)
		}

		// 留言板路由组，需要认证
		messages := apiV1.Group("/messages")
		messages.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			messages.POST("", messageHandler.Post)
			messages.GET("", messageHandler.Feed)
			messages.POST("/:id/like", messageHandler.Like)
			messages.POST("/:id/comments", messageHandler.AddComment)
			messages.GET("/:id/comments", messageHandler.ListComments)
		}
		// 实时消息流 (WebSocket)，token 经路径参数传递
		r.GET("/ws/messages/:token", messageHandler.Live)

		// 集市路由组，需要认证
		market := apiV1.Group("/market")
		market.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			market.POST("/listings", marketHandler.PostListing)
			market.GET("/listings", marketHandler.ListMarket)
			market.GET("/listings/search", marketHandler.Search)
			market.POST("/orders", marketHandler.PlaceOrder)
			market.GET("/orders", marketHandler.MyOrders)
			market.GET("/sales", marketHandler.MySales)
			market.POST("/orders/:orderId/accept", marketHandler.AcceptOrder)
			market.POST("/orders/:orderId/reject", marketHandler.RejectOrder)
		}

		// 静态页面与农业新闻，公开访问
		pages := apiV1.Group("/pages")
		{
			pages.GET("/home", pageHandler.Home)
			pages.GET("/about", pageHandler.About)
			pages.GET("/contact", pageHandler.Contact)
		}
		apiV1.GET("/news", pageHandler.News)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者随进程退出自然结束，无需手动关闭。
	log.Info("服务已优雅关闭")
}
