package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Msparihar/ReddiChat/agent"
	"github.com/Msparihar/ReddiChat/auth"
	"github.com/Msparihar/ReddiChat/chat"
	"github.com/Msparihar/ReddiChat/config"
	"github.com/Msparihar/ReddiChat/handler"
	"github.com/Msparihar/ReddiChat/ingest"
	"github.com/Msparihar/ReddiChat/model"
	"github.com/Msparihar/ReddiChat/storage"
	"github.com/Msparihar/ReddiChat/tools"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("config loaded: port=%d, db=%s, model=%s", cfg.Server.Port, cfg.Database.Path, cfg.LLM.Model)

	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := model.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	log.Println("database initialized")

	// 对象存储：GCS 不可达时降级为内存存储，附件只在进程内可用
	var store storage.ObjectStore
	if cfg.Storage.Bucket != "" {
		gcs, err := storage.NewGCSStore(context.Background(), cfg.Storage.Bucket, cfg.Storage.CredentialsFile)
		if err != nil {
			log.Printf("[Storage] GCS unavailable (%v), falling back to in-memory store", err)
			store = storage.NewMemoryStore(cfg.Storage.Bucket)
		} else {
			store = gcs
			log.Printf("[Storage] using GCS bucket %s", cfg.Storage.Bucket)
		}
	} else {
		log.Println("[Storage] no bucket configured, using in-memory store")
		store = storage.NewMemoryStore("local")
	}

	// 模型与工具
	llm := agent.NewOpenAILLM(cfg.LLMAPIKey(), cfg.LLM.BaseURL)
	ag := agent.New(llm, cfg.LLM.Model, cfg.LLM.MaxRounds,
		tools.NewRedditTool(),
		tools.NewWebSearchTool(),
	)

	// 对话编排
	ing := ingest.NewService(db, cfg.Upload.MaxFileSize)
	chatSvc := chat.NewService(db, store, ing, ag,
		time.Duration(cfg.Storage.SignedURLExpiry)*time.Second,
		time.Duration(cfg.History.AttachmentWindowMinutes)*time.Minute,
	)

	chatHandler := &handler.ChatHandler{Chat: chatSvc}
	historyHandler := &handler.HistoryHandler{Chat: chatSvc}

	// 设置路由
	r := gin.Default()
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to ReddiChat API"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api/v1", auth.Middleware(db, cfg.JWTSecret()))
	api.POST("/chat", chatHandler.Handle)
	api.POST("/chat/stream", chatHandler.HandleStream)
	api.GET("/chat/history/conversations", historyHandler.List)
	api.GET("/chat/history/conversations/:id", historyHandler.Get)
	api.DELETE("/chat/history/conversations/:id", historyHandler.Delete)

	// 启动服务
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
