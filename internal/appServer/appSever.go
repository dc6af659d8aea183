// launching the server, postgres, redis, kafka
package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwasham/numzy/config"
	repository "github.com/kwasham/numzy/internal/database/postgres"
	redisrepo "github.com/kwasham/numzy/internal/database/redis"
	"github.com/kwasham/numzy/internal/pkg/kafka"
	"github.com/kwasham/numzy/internal/pkg/storage"
	"github.com/kwasham/numzy/internal/service"
	"github.com/kwasham/numzy/internal/transport"
	"github.com/kwasham/numzy/internal/worker"
	"github.com/kwasham/numzy/pkg/postgres"
	"github.com/kwasham/numzy/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	receiptRepo := repository.NewReceiptRepository(db)

	// Cache is optional, the API keeps working without it
	var cache *redisrepo.CacheRepository
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logrus.Warnf("Failed to connect to Redis: %v. Continuing without cache...", err)
	} else {
		defer redisClient.Close()
		cache = redisrepo.NewCacheRepository(redisClient, cfg.Redis.CacheTTL)
		logrus.Info("Redis cache initialized")
	}

	fileStorage, err := storage.NewFileStorage(context.Background(), cfg.Storage)
	if err != nil {
		logrus.Fatalf("Failed to initialize file storage: %v", err)
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka)
	defer kafkaProducer.Close()

	// Initialize services
	receiptService := service.NewReceiptService(receiptRepo, cache, fileStorage, kafkaProducer, cfg)

	// Initialize retention worker
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	retentionWorker := worker.NewRetentionWorker(receiptService, cfg.Retention.Interval)
	go retentionWorker.Start(ctx)
	logrus.Info("Retention worker started")

	// Initialize handlers
	receiptHandler := transport.NewReceiptHandler(receiptService)

	// Setup HTTP server
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(receiptHandler)); err != nil {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
