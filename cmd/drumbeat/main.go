package main

import (
	"context"
	"net/http"
	"strings"

	"drumbeat/internal/analyzer"
	"drumbeat/internal/experiments"
	"drumbeat/internal/handlers"
	"drumbeat/internal/ingest"
	"drumbeat/internal/inquiries"
	"drumbeat/internal/jobs"
	"drumbeat/internal/scheduler"
	"drumbeat/internal/store"
	"drumbeat/pkg/cache"
	"drumbeat/pkg/clients"
	"drumbeat/pkg/clients/publisher"
	"drumbeat/pkg/config"
	"drumbeat/pkg/database"
	"drumbeat/pkg/kafka"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/monitoring"
	driver "drumbeat/pkg/redis"
	"drumbeat/pkg/server"
	"drumbeat/pkg/version"
)

const serviceName = "drumbeat"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	databaseURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")
	publisherURL := config.RequireEnv("PUBLISHER_URL")
	publisherToken := config.GetEnv("PUBLISHER_TOKEN", "")

	pipelineCfg, err := config.LoadPipeline()
	if err != nil {
		logger.WithError(err).Fatal("Invalid pipeline configuration")
	}
	taxonomy, err := config.LoadTaxonomy(config.GetEnv("TAXONOMY_FILE", ""))
	if err != nil {
		logger.WithError(err).Fatal("Invalid inquiry taxonomy")
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = databaseURL
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()

	st := store.New(db, logger)

	execCfg := clients.DefaultHTTPExecutorConfig()
	execCfg.MaxAttempts = pipelineCfg.PublishMaxAttempts
	execCfg.BaseDelay = pipelineCfg.PublishBaseDelay
	execCfg.MaxDelay = pipelineCfg.PublishMaxDelay
	pubClient := publisher.NewClient(publisherURL, publisherToken,
		publisher.WithHTTPExecutorConfig(execCfg),
		publisher.WithHTTPClient(&http.Client{Timeout: pipelineCfg.PublishTimeout}))

	engine := experiments.New(st, pipelineCfg, logger)
	sched := scheduler.New(st, engine, pubClient, pipelineCfg, logger)

	var deduper inquiries.Deduper
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		redisClient, err := driver.NewClientFromURL(context.Background(), redisURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		deduper = inquiries.NewRedisDeduper(redisClient)
	} else {
		logger.Info("REDIS_URL not set, inquiry dedup uses the database only")
	}

	detector, err := inquiries.New(st, deduper, taxonomy, pipelineCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build inquiry detector")
	}

	analyze := analyzer.New(st, pipelineCfg, logger)
	ingestor := ingest.New(st, detector, engine, logger)

	health := monitoring.NewHealthChecker(serviceName, version.Version)
	health.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	health.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  databaseURL,
		"JWT_SECRET":    jwtSecret,
		"SERVICE_TOKEN": serviceToken,
		"PUBLISHER_URL": publisherURL,
	}))

	metrics := monitoring.NewMetricsCollector(serviceName, version.Version, version.GetShortCommit())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		consumer, err := kafka.NewConsumer(strings.Split(brokers, ","),
			config.GetEnv("KAFKA_GROUP_ID", serviceName), serviceName, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		defer consumer.Close()

		consumer.AddHandler(ingest.TopicEngagementEvents, ingestor.EventHandler())
		consumer.AddHandler(ingest.TopicEngagementMetrics, ingestor.MetricHandler())
		health.AddCheck("kafka", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))

		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()
	} else {
		logger.Info("KAFKA_BROKERS not set, engagement feeds are HTTP-only")
	}

	hub := handlers.NewHub(logger)
	go hub.Run()
	defer hub.Stop()
	detector.OnInquiry(hub.BroadcastInquiry)

	manager := jobs.NewManager(sched, st, engine, analyze, pipelineCfg, logger)
	manager.Start(ctx)
	defer manager.Stop()

	readCache := cache.New(cache.Options{
		TTL:                  pipelineCfg.ReadCacheTTL,
		StaleWhileRevalidate: pipelineCfg.ReadCacheTTL,
		MaxEntries:           256,
	})

	h := handlers.New(st, sched, engine, detector, ingestor, readCache, hub, logger, handlers.NewMetrics(metrics))

	router := server.SetupServiceRouter(logger, serviceName, health, metrics)
	h.RegisterRoutes(router, []byte(jwtSecret), serviceToken)

	srvCfg := server.DefaultConfig(serviceName, "8080")
	if err := server.Start(srvCfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server exited")
	}
}
