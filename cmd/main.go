package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportchat-backend/internal/config"
	"supportchat-backend/internal/events"
	"supportchat-backend/internal/handler"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/service"
	"supportchat-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 事件中心，推送给SSE和WebSocket客户端
	hub := events.NewHub()
	go hub.Run(ctx)

	// 初始化服务
	chatService, err := service.NewChatService(cfg, service.Dependencies{Publisher: hub})
	if err != nil {
		logger.Fatalf("Failed to init chat service: %v", err)
	}

	// 启动时打开一个会话
	if _, err := chatService.StartNewChat("Current Session", model.KindSupport); err != nil {
		logger.Fatalf("Failed to open initial session: %v", err)
	}

	// 初始化处理器
	chatHandler := handler.NewChatHandler(chatService, hub, events.NewWSServer(hub, cfg.CORS.AllowedOrigins))
	// 创建路由
	router := setupRouter(cfg, chatHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("Server listening on port %d (backend %s via %s)", cfg.Server.Port, cfg.Backend.URL, cfg.Backend.Provider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	// 先关闭事件中心，结束长连接
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := chatService.Close(); err != nil {
		logger.Errorf("Chat service shutdown failed: %v", err)
	}
	logger.Info("Server stopped")
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// API路由
	chatHandler.Register(router)
	return router
}
