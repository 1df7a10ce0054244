package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"dm_sync_service/internal/sync/app"
	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/internal/sync/repository"
	"dm_sync_service/internal/sync/router"
	"dm_sync_service/pkg/config"
	"dm_sync_service/pkg/database"
	"dm_sync_service/pkg/logger"
	testtool "dm_sync_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SyncService, config.EnvConfig.SyncServiceLogPath)
	cfg := config.LoadConfig[config.Sync](config.EnvConfig.SyncService, config.EnvConfig.SyncServiceYAMLPath)

	// 非 production 環境啟用 pprof
	testtool.StartPprof()

	// 2. 建立 Mongo 連線 (存訊息)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 3. 建立 Redis 連線 (Pub/Sub + 快取)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 4. 建立 PostgreSQL 連線 (會員資料)
	pgConn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgConn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to database after retries", zap.Error(err))
	}
	defer pgPool.Close()

	// 5. 建立 MinIO 連線 (附件)
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.BucketName,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
	}

	// 6. 建立 Kafka Writer (訊息日誌)
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to kafka after retries", zap.Error(err))
	}
	defer kafkaWriter.Close()

	// 7. 初始化 Repository
	feed := repository.NewRedisPushFeed(redisClient)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database, feed)
	profileRepo := repository.NewCachedProfileRepository(
		repository.NewProfileRepository(pgPool),
		database.NewRedisRepository[domain.Profile](redisClient),
		time.Duration(cfg.ProfileCacheTTLSec)*time.Second,
	)
	attachRepo := repository.NewMinIOAttachmentRepository(minioClient)
	journal := repository.NewKafkaMessageJournal(kafkaWriter)

	// 8. Session 工廠：一條 websocket 連線一個會話
	deps := app.SessionDeps{
		Messages:       msgRepo,
		Profiles:       profileRepo,
		Feed:           feed,
		Journal:        journal,
		ReconnectDelay: time.Duration(cfg.ReconnectDelaySec) * time.Second,
	}
	newSession := func(memberID string) *app.Session {
		return app.NewSession(memberID, deps)
	}

	// 9. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SyncServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	// 注册路由
	router.RegisterRoutes(r, app.NewSyncWebsocketHandler(newSession), app.NewAttachmentHandler(attachRepo))

	// Listen
	port := ":" + cfg.Port
	log.Printf("Sync Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
