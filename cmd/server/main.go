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

	"github.com/gin-gonic/gin"

	"carepulse-go/internal/config"
	"carepulse-go/internal/handler"
	"carepulse-go/internal/middleware"
	"carepulse-go/internal/model"
	"carepulse-go/internal/pipeline"
	"carepulse-go/internal/repository"
	"carepulse-go/internal/service"
	"carepulse-go/pkg/database"
	"carepulse-go/pkg/embedding"
	"carepulse-go/pkg/es"
	"carepulse-go/pkg/extract"
	"carepulse-go/pkg/kafka"
	"carepulse-go/pkg/log"
	"carepulse-go/pkg/storage"
	"carepulse-go/pkg/tika"
	"carepulse-go/pkg/watcher"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储和向量索引
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(&model.FileIngest{}); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatalf("es 初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	ingestRepo := repository.NewIngestRepository(database.DB)
	recordRepo := repository.NewRecordRepository(database.DB, database.RDB)

	// 5. 初始化 Service (依赖注入)
	tikaClient := tika.NewClient(cfg.Tika)
	extractor := extract.New(cfg.Pdf, tikaClient)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	uploadService := service.NewUploadService(ingestRepo, cfg.MinIO)
	searchService := service.NewSearchService(embeddingClient, service.NewEsChunkSearcher(cfg.Elasticsearch.DocIndex), cfg.Retrieval)
	chatService := service.NewChatService(searchService)
	syncService := service.NewSyncService(recordRepo, embeddingClient, service.NewEsRecordUpserter(cfg.Elasticsearch.RecordIndex), cfg.Embedding, cfg.RecordSync)

	// 6. 初始化文档摄取管道 (Processor)
	processor := pipeline.NewProcessor(
		extractor,
		embeddingClient,
		cfg.Elasticsearch,
		cfg.MinIO,
		cfg.Embedding,
		cfg.Ingest,
		ingestRepo,
	)

	// 7. 启动后台任务
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	go kafka.StartConsumer(cfg.Kafka, processor)
	if cfg.RecordSync.Enabled {
		go syncService.Run(bgCtx)
	}
	if cfg.Watcher.Enabled {
		go watcher.Watch(bgCtx, cfg.Watcher.Dir, uploadService)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	documentHandler := handler.NewDocumentHandler(uploadService)
	queryHandler := handler.NewQueryHandler(searchService)
	chatHandler := handler.NewChatHandler(chatService)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:fileName/status", documentHandler.Status)
		}

		apiV1.POST("/query", queryHandler.Query)

		apiV1.GET("/chat/ws", chatHandler.Handle)
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

	cancelBg()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
