// entry point to the receipt processing worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kwasham/numzy/config"
	"github.com/kwasham/numzy/internal/compressor"
	repository "github.com/kwasham/numzy/internal/database/postgres"
	redisrepo "github.com/kwasham/numzy/internal/database/redis"
	"github.com/kwasham/numzy/internal/parser"
	"github.com/kwasham/numzy/internal/pkg/notifier"
	"github.com/kwasham/numzy/internal/pkg/ocr"
	"github.com/kwasham/numzy/internal/pkg/processor"
	"github.com/kwasham/numzy/internal/pkg/storage"
	"github.com/kwasham/numzy/internal/service"
	"github.com/kwasham/numzy/pkg/postgres"
	"github.com/kwasham/numzy/pkg/redis"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Migrations are idempotent, the worker may come up before the API
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	receiptRepo := repository.NewReceiptRepository(db)

	var cache *redisrepo.CacheRepository
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis: %v. Continuing without cache...", err)
	} else {
		defer redisClient.Close()
		cache = redisrepo.NewCacheRepository(redisClient, cfg.Redis.CacheTTL)
	}

	fileStorage, err := storage.NewFileStorage(context.Background(), cfg.Storage)
	if err != nil {
		logrus.Fatalf("Failed to initialize file storage: %v", err)
	}

	auditNotifier := notifier.NewNotifier(cfg.RabbitMQ)
	defer auditNotifier.Close()

	receiptProcessor := processor.NewReceiptProcessor(
		receiptRepo,
		cache,
		fileStorage,
		compressor.NewCompressor(),
		parser.NewTextParser(),
		service.NewAuditService(cfg.Processing),
		ocr.NewEngine(cfg.Processing),
		auditNotifier,
		cfg,
	)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
		<-quit

		logrus.Print("Processor Shutting Down")
		cancel()
	}()

	logrus.Print("Processor Started")
	processor.StartConsumer(ctx, cfg.Kafka, receiptProcessor)
}
